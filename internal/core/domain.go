package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type DomainStatus string

const (
	DomainPending  DomainStatus = "pending"
	DomainVerified DomainStatus = "verified"
	DomainFailed   DomainStatus = "failed"
)

func (s DomainStatus) IsValid() error {
	switch s {
	case DomainPending, DomainVerified, DomainFailed:
		return nil
	}

	return fmt.Errorf("invalid domain status %q", string(s))
}

// IdentityStatus is the remote provider's view of a domain identity.
// The empty value means the identity was never registered from here.
type IdentityStatus string

const (
	IdentityUnset    IdentityStatus = ""
	IdentityPending  IdentityStatus = "Pending"
	IdentitySuccess  IdentityStatus = "Success"
	IdentityFailed   IdentityStatus = "Failed"
	IdentityNotFound IdentityStatus = "NotFound"
)

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Downgrade returns the next lower confidence. Low stays low.
func (c Confidence) Downgrade() Confidence {
	switch c {
	case ConfidenceHigh:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

type Provider struct {
	Name        string     `json:"name"`
	Confidence  Confidence `json:"confidence"`
	Nameservers []string   `json:"nameservers,omitempty"`
	// DetectedAt is the zone the nameservers were found on; differs from the
	// domain itself when detection fell back to a parent.
	DetectedAt string `json:"detected_at,omitempty"`
	Registrar  string `json:"registrar,omitempty"`
}

type Domain struct {
	ID                uuid.UUID      `json:"id"`
	OwnerID           string         `json:"owner_id"`
	Name              string         `json:"name"`
	Status            DomainStatus   `json:"status"`
	VerificationToken string         `json:"verification_token"`
	CanReceiveEmails  bool           `json:"can_receive_emails"`
	HasMXRecords      bool           `json:"has_mx_records"`
	Routing           DomainRouting  `json:"routing"`
	IdentityStatus    IdentityStatus `json:"identity_status,omitempty"`

	// Remote rule names cached for idempotent re-synchronization
	CatchAllRuleName   string `json:"catch_all_rule_name,omitempty"`
	IndividualRuleName string `json:"individual_rule_name,omitempty"`

	ProviderName       string     `json:"provider_name,omitempty"`
	ProviderConfidence Confidence `json:"provider_confidence,omitempty"`

	LastDNSCheckAt      *time.Time `json:"last_dns_check_at,omitempty"`
	LastIdentityCheckAt *time.Time `json:"last_identity_check_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func (d *Domain) IsVerified() bool {
	return d.Status == DomainVerified
}

// SuggestedSubdomains are offered when the apex already receives mail elsewhere.
func SuggestedSubdomains(domain string) []string {
	prefixes := []string{"mail", "inbound", "emails", "app"}
	out := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		out = append(out, p+"."+domain)
	}
	return out
}
