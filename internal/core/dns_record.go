package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type RecordType string

const (
	RecordTypeTXT   RecordType = "TXT"
	RecordTypeMX    RecordType = "MX"
	RecordTypeCNAME RecordType = "CNAME"
)

func (rt RecordType) IsValid() error {
	switch rt {
	case RecordTypeTXT, RecordTypeMX, RecordTypeCNAME:
		return nil
	}

	return fmt.Errorf("invalid record type %q", string(rt))
}

type RecordPurpose string

const (
	PurposeVerification RecordPurpose = "verification"
	PurposeMX           RecordPurpose = "mx"
	PurposeSPF          RecordPurpose = "spf"
	PurposeDMARC        RecordPurpose = "dmarc"
	PurposeDKIM         RecordPurpose = "dkim"
)

// ExpectedRecord is a record the domain owner has to publish.
type ExpectedRecord struct {
	Type     RecordType    `json:"type" db:"type"`
	Name     string        `json:"name" db:"name"`
	Value    string        `json:"value" db:"value"`
	Priority int           `json:"priority,omitempty" db:"priority"`
	Purpose  RecordPurpose `json:"purpose" db:"purpose"`
	Required bool          `json:"required" db:"required"`
	// Match is the substring a published TXT value has to contain. Empty
	// means the full Value.
	Match string `json:"-" db:"match_value"`
}

func (r ExpectedRecord) MatchValue() string {
	if r.Match != "" {
		return r.Match
	}
	return r.Value
}

type DNSRecord struct {
	ExpectedRecord
	ID            uuid.UUID  `json:"id" db:"id"`
	DomainID      uuid.UUID  `json:"domain_id" db:"domain_id"`
	Verified      bool       `json:"verified" db:"verified"`
	LastCheckedAt *time.Time `json:"last_checked_at,omitempty" db:"last_checked_at"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
}

// RecordCheck is the outcome of verifying one expected record.
type RecordCheck struct {
	Record       ExpectedRecord `json:"record"`
	IsVerified   bool           `json:"is_verified"`
	ActualValues []string       `json:"actual_values"`
	Error        string         `json:"error,omitempty"`
	Hint         string         `json:"hint,omitempty"`
}
