package receipt

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/leozw/inbound-guardian/internal/core"
)

var (
	ErrRuleNotFound      = errors.New("receipt rule not found")
	ErrTooManyRecipients = fmt.Errorf("receipt rule holds at most %d recipients", MaxRecipientsPerRule)
)

// Rule is the provider-side mapping of recipients to a delivery action.
// Recipients holding only the bare domain match every address under it.
type Rule struct {
	Name       string
	Domain     string
	Recipients []string
	Target     core.TargetRef
}

type RuleClient interface {
	// GetRule returns ErrRuleNotFound when no rule has that name.
	GetRule(ctx context.Context, name string) (*Rule, error)
	CreateRule(ctx context.Context, rule Rule) error
	UpdateRule(ctx context.Context, rule Rule) error
	// DeleteRule returns ErrRuleNotFound when no rule has that name.
	DeleteRule(ctx context.Context, name string) error
}

const (
	maxRuleNameLength = 64

	// MaxRecipientsPerRule is the provider's cap on recipients in one rule.
	MaxRecipientsPerRule = 100
)

// IndividualRuleName names the first individual rule of a domain. Further
// rules, one per MaxRecipientsPerRule addresses, come from
// IndividualChunkRuleName.
func IndividualRuleName(domain string) string {
	return ruleName(domain, "individual")
}

// IndividualChunkRuleName names the n-th individual rule, counting from 1.
func IndividualChunkRuleName(domain string, n int) string {
	if n <= 1 {
		return IndividualRuleName(domain)
	}
	return ruleName(domain, "individual-"+strconv.Itoa(n))
}

func CatchAllRuleName(domain string) string {
	return ruleName(domain, "catch-all")
}

// ruleName is deterministic per domain so repeated syncs converge on one rule.
func ruleName(domain, kind string) string {
	name := domain + "-" + kind
	if len(name) <= maxRuleNameLength {
		return name
	}

	sum := sha256.Sum256([]byte(domain))
	suffix := "-" + hex.EncodeToString(sum[:4]) + "-" + kind
	prefix := strings.TrimRight(domain[:maxRuleNameLength-len(suffix)], ".-")
	return prefix + suffix
}

func normalizeRecipients(addresses []string) []string {
	out := make([]string, 0, len(addresses))
	for _, a := range addresses {
		a = strings.ToLower(strings.TrimSpace(a))
		if a != "" {
			out = append(out, a)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func chunkRecipients(recipients []string) [][]string {
	var chunks [][]string
	for len(recipients) > MaxRecipientsPerRule {
		chunks = append(chunks, recipients[:MaxRecipientsPerRule])
		recipients = recipients[MaxRecipientsPerRule:]
	}
	return append(chunks, recipients)
}

func sameRule(a *Rule, b Rule) bool {
	return a.Target == b.Target && slices.Equal(normalizeRecipients(a.Recipients), b.Recipients)
}
