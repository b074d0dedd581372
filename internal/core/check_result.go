package core

import (
	"time"

	"github.com/google/uuid"
)

// CheckReport is the diagnostic payload of one verification check.
type CheckReport struct {
	DomainID       uuid.UUID      `json:"domain_id"`
	Domain         string         `json:"domain"`
	Status         DomainStatus   `json:"status"`
	Records        []RecordCheck  `json:"records"`
	DNSVerified    bool           `json:"dns_verified"`
	IdentityStatus IdentityStatus `json:"identity_status"`
	AllVerified    bool           `json:"all_verified"`
	CanProceed     bool           `json:"can_proceed"`
	Provider       Provider       `json:"provider"`

	// Deliverability records, only filled once the domain is verified
	Recommendations []RecordCheck `json:"recommendations,omitempty"`

	CheckedAt time.Time `json:"checked_at"`
}

// DomainDetails is what GetDomain returns.
type DomainDetails struct {
	Domain     *Domain         `json:"domain"`
	Records    []*DNSRecord    `json:"records"`
	Addresses  []*EmailAddress `json:"addresses"`
	LastReport *CheckReport    `json:"last_report,omitempty"`
}
