// Package routing decides where an inbound message for a domain address goes.
package routing

import (
	"github.com/leozw/inbound-guardian/internal/core"
)

type Source string

const (
	SourceAddressEndpoint  Source = "address_endpoint"
	SourceAddressWebhook   Source = "address_webhook"
	SourceCatchAllEndpoint Source = "catch_all_endpoint"
	SourceCatchAllWebhook  Source = "catch_all_webhook"
	SourceStoreOnly        Source = "store_only"
)

type Target struct {
	Source     Source `json:"source"`
	EndpointID string `json:"endpoint_id,omitempty"`
	WebhookID  string `json:"webhook_id,omitempty"`
}

// Forwards reports whether the message leaves the platform.
func (t Target) Forwards() bool {
	return t.Source != SourceStoreOnly
}

// Resolve picks the delivery target for a message addressed to address
// (nil when the recipient has no configured address). Precedence: address
// endpoint, address webhook, catch-all endpoint, catch-all webhook, store only.
func Resolve(domain *core.Domain, address *core.EmailAddress) Target {
	if address != nil && address.Active {
		if address.Target.EndpointID != "" {
			return Target{Source: SourceAddressEndpoint, EndpointID: address.Target.EndpointID}
		}
		if address.Target.WebhookID != "" {
			return Target{Source: SourceAddressWebhook, WebhookID: address.Target.WebhookID}
		}
	}

	if domain != nil {
		if target, ok := domain.Routing.CatchAllTarget(); ok {
			if target.EndpointID != "" {
				return Target{Source: SourceCatchAllEndpoint, EndpointID: target.EndpointID}
			}
			if target.WebhookID != "" {
				return Target{Source: SourceCatchAllWebhook, WebhookID: target.WebhookID}
			}
		}
	}

	return Target{Source: SourceStoreOnly}
}
