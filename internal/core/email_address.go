package core

import (
	"time"

	"github.com/google/uuid"
)

type EmailAddress struct {
	ID             uuid.UUID `json:"id"`
	DomainID       uuid.UUID `json:"domain_id"`
	Address        string    `json:"address"`
	Target         TargetRef `json:"target"`
	Active         bool      `json:"active"`
	RuleConfigured bool      `json:"rule_configured"`
	RuleName       string    `json:"rule_name,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ActiveAddresses returns the address strings of active entries, in order.
func ActiveAddresses(addrs []*EmailAddress) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a.Active {
			out = append(out, a.Address)
		}
	}
	return out
}
