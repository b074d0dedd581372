package checker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/leozw/inbound-guardian/internal/core"
)

// VerifyRecords resolves every expected record and compares it against
// what is published. Results keep the order of expected. A record that
// can't be resolved is reported unverified with the lookup error.
func VerifyRecords(ctx context.Context, r Resolver, domain string, expected []core.ExpectedRecord) []core.RecordCheck {
	results := make([]core.RecordCheck, 0, len(expected))
	for _, rec := range expected {
		var check core.RecordCheck
		switch rec.Type {
		case core.RecordTypeTXT:
			check = verifyTXT(ctx, r, rec)
		case core.RecordTypeMX:
			check = verifyMX(ctx, r, domain, rec)
		case core.RecordTypeCNAME:
			check = verifyCNAME(ctx, r, rec)
		default:
			check = core.RecordCheck{Record: rec, Error: fmt.Sprintf("unsupported record type %s", rec.Type)}
		}
		if check.ActualValues == nil {
			check.ActualValues = []string{}
		}
		results = append(results, check)
	}
	return results
}

func verifyTXT(ctx context.Context, r Resolver, rec core.ExpectedRecord) core.RecordCheck {
	check := core.RecordCheck{Record: rec}

	values, err := r.LookupTXT(ctx, rec.Name)
	if err != nil {
		check.Error = describeLookupError(err, rec)
		if IsNotFound(err) {
			check.Hint = fmt.Sprintf("Add a TXT record named %s with the value shown.", rec.Name)
		}
		return check
	}

	want := strings.TrimSpace(rec.MatchValue())
	for _, v := range values {
		v = strings.TrimSpace(v)
		check.ActualValues = append(check.ActualValues, v)
		if want != "" && strings.Contains(v, want) {
			check.IsVerified = true
		}
	}

	if !check.IsVerified {
		check.Hint = fmt.Sprintf("A TXT record exists at %s but none of its values contain %q.", rec.Name, want)
	}
	return check
}

func verifyMX(ctx context.Context, r Resolver, domain string, rec core.ExpectedRecord) core.RecordCheck {
	check := core.RecordCheck{Record: rec}

	records, err := r.LookupMX(ctx, rec.Name)
	if err != nil {
		check.Error = describeLookupError(err, rec)
		if IsNotFound(err) {
			check.Hint = fmt.Sprintf("Add an MX record on %s pointing at %s with priority %d.", rec.Name, rec.Value, rec.Priority)
		}
		return check
	}

	want := normalizeHost(rec.Value)
	var appendedZone string
	for _, mx := range records {
		got := normalizeHost(mx.Host)
		check.ActualValues = append(check.ActualValues, fmt.Sprintf("%d %s", mx.Pref, strings.TrimSuffix(mx.Host, ".")))
		if got == want {
			check.IsVerified = true
		} else if zone := appendedSuffix(got, want, normalizeHost(domain)); zone != "" {
			appendedZone = zone
		}
	}

	switch {
	case check.IsVerified:
	case appendedZone != "":
		check.Hint = fmt.Sprintf(
			"Your DNS host appended %s to the MX value. Enter it as %s. (with a trailing dot) or remove the domain suffix.",
			appendedZone, rec.Value)
	default:
		check.Hint = fmt.Sprintf("MX records on %s do not point at %s.", rec.Name, rec.Value)
	}
	return check
}

// appendedSuffix reports which zone a DNS host tacked onto want: the domain
// itself or any parent of it short of the TLD.
func appendedSuffix(got, want, domain string) string {
	for zone := domain; zone != ""; zone = parentZone(zone) {
		if got == want+"."+zone {
			return zone
		}
	}
	return ""
}

func verifyCNAME(ctx context.Context, r Resolver, rec core.ExpectedRecord) core.RecordCheck {
	check := core.RecordCheck{Record: rec}

	target, err := r.LookupCNAME(ctx, rec.Name)
	if err != nil {
		check.Error = describeLookupError(err, rec)
		return check
	}

	check.ActualValues = []string{target}
	check.IsVerified = normalizeHost(target) == normalizeHost(rec.Value)
	if !check.IsVerified {
		check.Hint = fmt.Sprintf("CNAME %s points at %s instead of %s.", rec.Name, target, rec.Value)
	}
	return check
}

// HasMXRecords is the availability form of an MX lookup: a missing name or
// empty answer is "no records", not an error.
func HasMXRecords(ctx context.Context, r Resolver, domain string) ([]*net.MX, error) {
	records, err := r.LookupMX(ctx, domain)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return records, nil
}

// PointsAt reports whether every MX record targets host.
func PointsAt(records []*net.MX, host string) bool {
	if len(records) == 0 {
		return false
	}
	want := normalizeHost(host)
	for _, mx := range records {
		if normalizeHost(mx.Host) != want {
			return false
		}
	}
	return true
}

// normalizeHost lowercases and drops a single trailing dot.
func normalizeHost(host string) string {
	return strings.ToLower(strings.TrimSuffix(strings.TrimSpace(host), "."))
}

func describeLookupError(err error, rec core.ExpectedRecord) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return fmt.Sprintf("%s does not exist (NXDOMAIN)", rec.Name)
	case errors.Is(err, ErrNoData):
		return fmt.Sprintf("no %s records found at %s", rec.Type, rec.Name)
	case errors.Is(err, ErrTimeout):
		return "DNS lookup timed out"
	default:
		return fmt.Sprintf("DNS lookup failed: %v", err)
	}
}
