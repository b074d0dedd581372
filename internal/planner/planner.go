// Package planner computes the DNS records a domain owner has to publish
// and compares them against what is live.
package planner

import (
	"context"
	"fmt"

	"github.com/leozw/inbound-guardian/internal/checker"
	"github.com/leozw/inbound-guardian/internal/core"
)

type Config struct {
	// VerificationPrefix is the label the ownership token is published under.
	VerificationPrefix string
	InboundMXHost      string
	MXPriority         int
	SPFInclude         string
	DKIMTarget         string
}

func DefaultConfig() Config {
	return Config{
		VerificationPrefix: "_amazonses",
		InboundMXHost:      "inbound-smtp.us-east-1.amazonaws.com",
		MXPriority:         10,
		SPFInclude:         "amazonses.com",
		DKIMTarget:         "dkim.amazonses.com",
	}
}

type Planner struct {
	config   Config
	resolver checker.Resolver
}

func New(cfg Config, resolver checker.Resolver) *Planner {
	return &Planner{config: cfg, resolver: resolver}
}

func (p *Planner) InboundHost() string {
	return p.config.InboundMXHost
}

// Plan returns exactly one required TXT (ownership token) and one required
// MX record, followed by the optional SPF and DMARC recommendations.
func (p *Planner) Plan(domain, token string) []core.ExpectedRecord {
	return []core.ExpectedRecord{
		{
			Type:     core.RecordTypeTXT,
			Name:     p.config.VerificationPrefix + "." + domain,
			Value:    token,
			Purpose:  core.PurposeVerification,
			Required: true,
		},
		{
			Type:     core.RecordTypeMX,
			Name:     domain,
			Value:    p.config.InboundMXHost,
			Priority: p.config.MXPriority,
			Purpose:  core.PurposeMX,
			Required: true,
		},
		{
			Type:    core.RecordTypeTXT,
			Name:    domain,
			Value:   fmt.Sprintf("v=spf1 include:%s ~all", p.config.SPFInclude),
			Match:   "include:" + p.config.SPFInclude,
			Purpose: core.PurposeSPF,
		},
		{
			Type:    core.RecordTypeTXT,
			Name:    "_dmarc." + domain,
			Value:   "v=DMARC1; p=none;",
			Match:   "v=DMARC1",
			Purpose: core.PurposeDMARC,
		},
	}
}

// PlanDKIM turns provider-issued DKIM tokens into CNAME recommendations.
func (p *Planner) PlanDKIM(domain string, tokens []string) []core.ExpectedRecord {
	records := make([]core.ExpectedRecord, 0, len(tokens))
	for _, token := range tokens {
		records = append(records, core.ExpectedRecord{
			Type:    core.RecordTypeCNAME,
			Name:    token + "._domainkey." + domain,
			Value:   token + "." + p.config.DKIMTarget,
			Purpose: core.PurposeDKIM,
		})
	}
	return records
}

type DiffResult struct {
	Records             []core.RecordCheck
	AllRequiredVerified bool
}

// Diff verifies expected against live DNS. AllRequiredVerified is the AND
// over required records only, and false when none are required.
func (p *Planner) Diff(ctx context.Context, domain string, expected []core.ExpectedRecord) DiffResult {
	checks := checker.VerifyRecords(ctx, p.resolver, domain, expected)

	required := 0
	allVerified := true
	for _, c := range checks {
		if !c.Record.Required {
			continue
		}
		required++
		allVerified = allVerified && c.IsVerified
	}

	return DiffResult{
		Records:             checks,
		AllRequiredVerified: required > 0 && allVerified,
	}
}

// Required filters records down to the required ones.
func Required(records []core.ExpectedRecord) []core.ExpectedRecord {
	var out []core.ExpectedRecord
	for _, r := range records {
		if r.Required {
			out = append(out, r)
		}
	}
	return out
}
