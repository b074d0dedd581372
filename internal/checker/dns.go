package checker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// Resolver is the read-only DNS surface the verification engine needs.
type Resolver interface {
	LookupNS(ctx context.Context, name string) ([]string, error)
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
	LookupTXT(ctx context.Context, name string) ([]string, error)
	LookupCNAME(ctx context.Context, name string) (string, error)
}

// LookupObserver receives the duration and outcome of every query.
type LookupObserver interface {
	ObserveLookup(recordType string, elapsed time.Duration, err error)
}

type ResolverConfig struct {
	// Nameserver is queried directly, e.g. "8.8.8.8:53". Empty means the
	// first server in /etc/resolv.conf, falling back to Google DNS.
	Nameserver string
	Timeout    time.Duration
}

// DNSResolver issues a single query per lookup. A truncated UDP answer is
// repeated over TCP; otherwise there are no retries and the caller decides
// whether to look again.
type DNSResolver struct {
	config    ResolverConfig
	client    *dns.Client
	tcpClient *dns.Client
	observer  LookupObserver
}

func NewDNSResolver(cfg ResolverConfig, observer LookupObserver) *DNSResolver {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Nameserver == "" {
		cfg.Nameserver = systemNameserver()
	}
	if !strings.Contains(cfg.Nameserver, ":") {
		cfg.Nameserver = net.JoinHostPort(cfg.Nameserver, "53")
	}

	return &DNSResolver{
		config:    cfg,
		client:    &dns.Client{Timeout: cfg.Timeout},
		tcpClient: &dns.Client{Net: "tcp", Timeout: cfg.Timeout},
		observer:  observer,
	}
}

func systemNameserver() string {
	conf, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || len(conf.Servers) == 0 {
		return "8.8.8.8:53"
	}
	return net.JoinHostPort(conf.Servers[0], conf.Port)
}

func (r *DNSResolver) query(ctx context.Context, name string, qtype uint16) (msg *dns.Msg, err error) {
	start := time.Now()
	defer func() {
		if r.observer != nil {
			r.observer.ObserveLookup(dns.TypeToString[qtype], time.Since(start), err)
		}
	}()

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)
	m.RecursionDesired = true
	m.SetEdns0(4096, false)

	resp, _, err := r.client.ExchangeContext(ctx, m, r.config.Nameserver)
	if err == nil && resp.Truncated {
		resp, _, err = r.tcpClient.ExchangeContext(ctx, m, r.config.Nameserver)
	}
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, ErrTimeout
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("dns query failed: %w", err)
	}

	switch resp.Rcode {
	case dns.RcodeSuccess:
		return resp, nil
	case dns.RcodeNameError:
		return nil, ErrNotFound
	case dns.RcodeServerFailure:
		return nil, ErrServFail
	case dns.RcodeRefused:
		return nil, ErrRefused
	default:
		return nil, fmt.Errorf("dns query failed with code: %s", dns.RcodeToString[resp.Rcode])
	}
}

func (r *DNSResolver) LookupNS(ctx context.Context, name string) ([]string, error) {
	resp, err := r.query(ctx, name, dns.TypeNS)
	if err != nil {
		return nil, err
	}

	var hosts []string
	for _, ans := range resp.Answer {
		if ns, ok := ans.(*dns.NS); ok {
			hosts = append(hosts, strings.ToLower(strings.TrimSuffix(ns.Ns, ".")))
		}
	}
	if len(hosts) == 0 {
		return nil, ErrNoData
	}
	return hosts, nil
}

// LookupMX returns exchanges exactly as published, trailing dot included.
func (r *DNSResolver) LookupMX(ctx context.Context, name string) ([]*net.MX, error) {
	resp, err := r.query(ctx, name, dns.TypeMX)
	if err != nil {
		return nil, err
	}

	var records []*net.MX
	for _, ans := range resp.Answer {
		if mx, ok := ans.(*dns.MX); ok {
			records = append(records, &net.MX{Host: mx.Mx, Pref: mx.Preference})
		}
	}
	if len(records) == 0 {
		return nil, ErrNoData
	}
	return records, nil
}

func (r *DNSResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	resp, err := r.query(ctx, name, dns.TypeTXT)
	if err != nil {
		return nil, err
	}

	var records []string
	for _, ans := range resp.Answer {
		if txt, ok := ans.(*dns.TXT); ok {
			// long values arrive as several character-strings
			records = append(records, strings.Join(txt.Txt, ""))
		}
	}
	if len(records) == 0 {
		return nil, ErrNoData
	}
	return records, nil
}

// LookupCNAME returns the canonical target without its trailing dot.
func (r *DNSResolver) LookupCNAME(ctx context.Context, name string) (string, error) {
	resp, err := r.query(ctx, name, dns.TypeCNAME)
	if err != nil {
		return "", err
	}

	for _, ans := range resp.Answer {
		if cname, ok := ans.(*dns.CNAME); ok {
			return strings.ToLower(strings.TrimSuffix(cname.Target, ".")), nil
		}
	}
	return "", ErrNoData
}
