package core

import (
	"encoding/json"
	"errors"
	"fmt"
)

type RoutingMode string

const (
	RoutingIndividual RoutingMode = "none"
	RoutingCatchAll   RoutingMode = "catch-all"
)

// TargetRef points at a delivery destination. Rows written before endpoints
// existed may carry only a webhook id; a few legacy rows carry both.
type TargetRef struct {
	EndpointID string `json:"endpoint_id,omitempty"`
	WebhookID  string `json:"webhook_id,omitempty"`
}

func (t TargetRef) IsZero() bool {
	return t.EndpointID == "" && t.WebhookID == ""
}

// Validate rejects refs naming both kinds. Only legacy rows may do that.
func (t TargetRef) Validate() error {
	if t.EndpointID != "" && t.WebhookID != "" {
		return errors.New("target must reference either an endpoint or a webhook, not both")
	}
	return nil
}

// DomainRouting is either individual (per-address rules) or catch-all with a
// non-empty target. Fields are unexported so the two can't be mixed.
type DomainRouting struct {
	mode   RoutingMode
	target TargetRef
}

func IndividualRouting() DomainRouting {
	return DomainRouting{mode: RoutingIndividual}
}

func CatchAllRouting(target TargetRef) (DomainRouting, error) {
	if target.IsZero() {
		return DomainRouting{}, errors.New("catch-all routing requires a target")
	}
	if err := target.Validate(); err != nil {
		return DomainRouting{}, err
	}
	return DomainRouting{mode: RoutingCatchAll, target: target}, nil
}

// RestoreRouting rebuilds routing from stored columns. A catch-all row
// without a target is reported as an error rather than silently fixed.
func RestoreRouting(mode string, target TargetRef) (DomainRouting, error) {
	switch RoutingMode(mode) {
	case RoutingIndividual, "":
		return IndividualRouting(), nil
	case RoutingCatchAll:
		if target.IsZero() {
			return DomainRouting{}, errors.New("catch-all routing requires a target")
		}
		return DomainRouting{mode: RoutingCatchAll, target: target}, nil
	}
	return DomainRouting{}, fmt.Errorf("invalid routing mode %q", mode)
}

func (r DomainRouting) Mode() RoutingMode {
	if r.mode == "" {
		return RoutingIndividual
	}
	return r.mode
}

func (r DomainRouting) IsCatchAll() bool {
	return r.mode == RoutingCatchAll
}

// CatchAllTarget returns the target when the domain is in catch-all mode.
func (r DomainRouting) CatchAllTarget() (TargetRef, bool) {
	if r.mode != RoutingCatchAll {
		return TargetRef{}, false
	}
	return r.target, true
}

type routingJSON struct {
	Mode   RoutingMode `json:"mode"`
	Target *TargetRef  `json:"catch_all_target,omitempty"`
}

func (r DomainRouting) MarshalJSON() ([]byte, error) {
	out := routingJSON{Mode: r.Mode()}
	if t, ok := r.CatchAllTarget(); ok {
		out.Target = &t
	}
	return json.Marshal(out)
}

func (r *DomainRouting) UnmarshalJSON(data []byte) error {
	var in routingJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	var target TargetRef
	if in.Target != nil {
		target = *in.Target
	}
	restored, err := RestoreRouting(string(in.Mode), target)
	if err != nil {
		return err
	}
	*r = restored
	return nil
}
