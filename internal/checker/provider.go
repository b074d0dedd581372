package checker

import (
	"context"
	"strings"

	"github.com/leozw/inbound-guardian/internal/core"
	"go.uber.org/zap"
)

type providerPattern struct {
	Name       string
	Nameserver string
}

// Checked in order; first match wins.
var knownProviders = []providerPattern{
	{Name: "Cloudflare", Nameserver: "cloudflare.com"},
	{Name: "Amazon Route 53", Nameserver: "awsdns"},
	{Name: "GoDaddy", Nameserver: "domaincontrol.com"},
	{Name: "Namecheap", Nameserver: "registrar-servers.com"},
	{Name: "Google Cloud DNS", Nameserver: "googledomains.com"},
	{Name: "Google Cloud DNS", Nameserver: "ns-cloud"},
	{Name: "DigitalOcean", Nameserver: "digitalocean.com"},
	{Name: "Vercel", Nameserver: "vercel-dns.com"},
	{Name: "Netlify", Nameserver: "nsone.net"},
	{Name: "Azure DNS", Nameserver: "azure-dns"},
	{Name: "Squarespace", Nameserver: "squarespacedns.com"},
	{Name: "Wix", Nameserver: "wixdns.net"},
	{Name: "Porkbun", Nameserver: "porkbun.com"},
	{Name: "Name.com", Nameserver: "name.com"},
	{Name: "Hover", Nameserver: "hover.com"},
	{Name: "Gandi", Nameserver: "gandi.net"},
	{Name: "DNSimple", Nameserver: "dnsimple.com"},
	{Name: "Linode", Nameserver: "linode.com"},
	{Name: "Hostinger", Nameserver: "dns-parking.com"},
	{Name: "IONOS", Nameserver: "ui-dns"},
	{Name: "Network Solutions", Nameserver: "worldnic.com"},
	{Name: "Bluehost", Nameserver: "bluehost.com"},
	{Name: "HostGator", Nameserver: "hostgator.com"},
	{Name: "Vultr", Nameserver: "vultr.com"},
	{Name: "OVHcloud", Nameserver: "ovh.net"},
}

const (
	customProviderName  = "Custom DNS"
	unknownProviderName = "Unknown"
)

// RegistrarLookup names the registrar of a domain. Used only as a hint.
type RegistrarLookup interface {
	Registrar(ctx context.Context, domain string) (string, error)
}

type ProviderDetector struct {
	resolver  Resolver
	registrar RegistrarLookup
	logger    *zap.Logger
}

// NewProviderDetector builds a detector. registrar may be nil.
func NewProviderDetector(resolver Resolver, registrar RegistrarLookup, logger *zap.Logger) *ProviderDetector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProviderDetector{
		resolver:  resolver,
		registrar: registrar,
		logger:    logger,
	}
}

// Detect classifies the DNS host of domain. It never fails: when nothing
// resolves it returns an unknown provider with low confidence.
func (d *ProviderDetector) Detect(ctx context.Context, domain string) core.Provider {
	domain = core.NormalizeDomain(domain)
	provider := d.detectNameservers(ctx, domain)

	if d.registrar != nil && provider.Confidence != core.ConfidenceHigh {
		registrar, err := d.registrar.Registrar(ctx, domain)
		if err != nil {
			d.logger.Debug("Registrar lookup failed", zap.String("domain", domain), zap.Error(err))
		} else {
			provider.Registrar = registrar
		}
	}
	return provider
}

func (d *ProviderDetector) detectNameservers(ctx context.Context, domain string) core.Provider {
	for zone, parent := domain, false; zone != ""; zone, parent = parentZone(zone), true {
		nameservers, err := d.resolver.LookupNS(ctx, zone)
		if err != nil || len(nameservers) == 0 {
			if ctx.Err() != nil {
				break
			}
			continue
		}

		provider := classify(nameservers)
		provider.DetectedAt = zone
		if parent {
			provider.Confidence = provider.Confidence.Downgrade()
		}
		return provider
	}

	return core.Provider{Name: unknownProviderName, Confidence: core.ConfidenceLow}
}

func classify(nameservers []string) core.Provider {
	for _, ns := range nameservers {
		host := strings.ToLower(ns)
		for _, p := range knownProviders {
			if strings.Contains(host, p.Nameserver) {
				return core.Provider{Name: p.Name, Confidence: core.ConfidenceHigh, Nameservers: nameservers}
			}
		}
	}
	return core.Provider{Name: customProviderName, Confidence: core.ConfidenceMedium, Nameservers: nameservers}
}

// parentZone strips the leftmost label. It returns "" once only the
// top-level label would remain.
func parentZone(zone string) string {
	i := strings.IndexByte(zone, '.')
	if i < 0 {
		return ""
	}
	parent := zone[i+1:]
	if !strings.Contains(parent, ".") {
		return ""
	}
	return parent
}
