// Package ses adapts Amazon SES receipt rules and domain identities to the
// rule and identity clients used by the verification engine.
package ses

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"go.uber.org/zap"

	"github.com/leozw/inbound-guardian/internal/config"
	"github.com/leozw/inbound-guardian/internal/metrics"
)

// ReceiptAPI is the subset of the SES v1 API used here.
type ReceiptAPI interface {
	CreateReceiptRule(ctx context.Context, in *ses.CreateReceiptRuleInput, optFns ...func(*ses.Options)) (*ses.CreateReceiptRuleOutput, error)
	UpdateReceiptRule(ctx context.Context, in *ses.UpdateReceiptRuleInput, optFns ...func(*ses.Options)) (*ses.UpdateReceiptRuleOutput, error)
	DescribeReceiptRule(ctx context.Context, in *ses.DescribeReceiptRuleInput, optFns ...func(*ses.Options)) (*ses.DescribeReceiptRuleOutput, error)
	DeleteReceiptRule(ctx context.Context, in *ses.DeleteReceiptRuleInput, optFns ...func(*ses.Options)) (*ses.DeleteReceiptRuleOutput, error)
	VerifyDomainIdentity(ctx context.Context, in *ses.VerifyDomainIdentityInput, optFns ...func(*ses.Options)) (*ses.VerifyDomainIdentityOutput, error)
	GetIdentityVerificationAttributes(ctx context.Context, in *ses.GetIdentityVerificationAttributesInput, optFns ...func(*ses.Options)) (*ses.GetIdentityVerificationAttributesOutput, error)
	DeleteIdentity(ctx context.Context, in *ses.DeleteIdentityInput, optFns ...func(*ses.Options)) (*ses.DeleteIdentityOutput, error)
}

// IdentityAPI is the subset of the SES v2 API used for DKIM attributes.
type IdentityAPI interface {
	GetEmailIdentity(ctx context.Context, in *sesv2.GetEmailIdentityInput, optFns ...func(*sesv2.Options)) (*sesv2.GetEmailIdentityOutput, error)
}

type Options struct {
	RuleSetName string
	S3Bucket    string
	S3Prefix    string
	SNSTopicARN string
}

func OptionsFromConfig(cfg config.MailConfig) Options {
	return Options{
		RuleSetName: cfg.RuleSetName,
		S3Bucket:    cfg.S3Bucket,
		S3Prefix:    cfg.S3Prefix,
		SNSTopicARN: cfg.SNSTopicARN,
	}
}

type Client struct {
	receipt  ReceiptAPI
	identity IdentityAPI
	opts     Options
	metrics  *metrics.Collector
	logger   *zap.Logger
}

func New(receipt ReceiptAPI, identity IdentityAPI, opts Options, collector *metrics.Collector, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		receipt:  receipt,
		identity: identity,
		opts:     opts,
		metrics:  collector,
		logger:   logger,
	}
}

// NewFromConfig builds SES v1 and v2 clients from the AWS section. Static
// credentials are used when both keys are set, the default chain otherwise.
func NewFromConfig(ctx context.Context, cfg config.AWSConfig, mail config.MailConfig, collector *metrics.Collector, logger *zap.Logger) (*Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		creds := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(creds))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	v1 := ses.NewFromConfig(awsCfg, func(o *ses.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	v2 := sesv2.NewFromConfig(awsCfg, func(o *sesv2.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return New(v1, v2, OptionsFromConfig(mail), collector, logger), nil
}

func (c *Client) record(operation string, err error) {
	if c.metrics != nil {
		c.metrics.RecordIdentityCall(operation, err)
	}
}

// objectPrefix is where SES stores raw messages for a rule. The target is
// part of the key so the ingestion side can route without a lookup.
func (c *Client) objectPrefix(domain, targetKey string) string {
	return c.basePrefix() + domain + "/" + targetKey + "/"
}

func (c *Client) basePrefix() string {
	prefix := c.opts.S3Prefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix
}

var errMissingRuleSet = errors.New("ses: rule set name is not configured")
