package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Keycloak  KeycloakConfig
	Auth      AuthConfig
	AWS       AWSConfig
	Mail      MailConfig
	DNS       DNSConfig
	Mimir     MimirConfig
	RateLimit RateLimitConfig
	Usage     UsageConfig
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	URL            string
	MaxConnections int
	MaxIdleConns   int
	AutoMigrate    bool
}

type RedisConfig struct {
	URL       string
	ReportTTL time.Duration
}

type KeycloakConfig struct {
	URL          string
	Realm        string
	ClientID     string
	ClientSecret string
}

// AuthConfig configures the HMAC fallback used when no Keycloak realm is set.
type AuthConfig struct {
	JWTSecret string
}

type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
}

type MailConfig struct {
	InboundMXHost      string
	MXPriority         int
	VerificationPrefix string
	SPFInclude         string
	DKIMTarget         string
	RuleSetName        string
	S3Bucket           string
	S3Prefix           string
	SNSTopicARN        string
}

type DNSConfig struct {
	Nameserver   string
	Timeout      time.Duration
	WhoisEnabled bool
	WhoisTimeout time.Duration
}

type MimirConfig struct {
	Enabled       bool
	URL           string
	TenantID      string
	TenantHeader  string
	BatchSize     int
	FlushInterval time.Duration
	AuthToken     string
}

type RateLimitConfig struct {
	ChecksPerMinute int
	Burst           int
}

type UsageConfig struct {
	Enabled bool
	Queue   string
}

func Load() (*Config, error) {
	// .env is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix("INBOUND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var cfg Config
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Override with environment variables
	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Database.URL = url
	}
	if url := os.Getenv("REDIS_URL"); url != "" {
		cfg.Redis.URL = url
	}
	if url := os.Getenv("KEYCLOAK_URL"); url != "" {
		cfg.Keycloak.URL = url
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if region := os.Getenv("AWS_REGION"); region != "" {
		cfg.AWS.Region = region
	}
	if url := os.Getenv("MIMIR_URL"); url != "" {
		cfg.Mimir.URL = url
	}
	if token := os.Getenv("MIMIR_AUTH_TOKEN"); token != "" {
		cfg.Mimir.AuthToken = token
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.maxconnections", 25)
	v.SetDefault("database.maxidleconns", 5)
	v.SetDefault("database.automigrate", false)
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.reportttl", "24h")
	v.SetDefault("aws.region", "us-east-1")
	v.SetDefault("mail.inboundmxhost", "inbound-smtp.us-east-1.amazonaws.com")
	v.SetDefault("mail.mxpriority", 10)
	v.SetDefault("mail.verificationprefix", "_amazonses")
	v.SetDefault("mail.spfinclude", "amazonses.com")
	v.SetDefault("mail.dkimtarget", "dkim.amazonses.com")
	v.SetDefault("mail.rulesetname", "inbound-rules")
	v.SetDefault("mail.s3prefix", "inbound/")
	v.SetDefault("dns.timeout", "5s")
	v.SetDefault("dns.whoisenabled", true)
	v.SetDefault("dns.whoistimeout", "10s")
	v.SetDefault("mimir.tenantheader", "X-Scope-OrgID")
	v.SetDefault("mimir.batchsize", 1000)
	v.SetDefault("mimir.flushinterval", "10s")
	v.SetDefault("ratelimit.checksperminute", 6)
	v.SetDefault("ratelimit.burst", 3)
	v.SetDefault("usage.enabled", true)
	v.SetDefault("usage.queue", "usage:events")
}
