// Package receipt keeps the remote provider's per-domain receipt rules in
// line with local routing state.
package receipt

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/leozw/inbound-guardian/internal/core"
	"github.com/leozw/inbound-guardian/internal/metrics"
)

type SyncStatus string

const (
	SyncCreated SyncStatus = "created"
	SyncUpdated SyncStatus = "updated"
	SyncRemoved SyncStatus = "removed"
	SyncError   SyncStatus = "error"
)

type SyncResult struct {
	Status   SyncStatus
	RuleName string
	Err      error
}

func (r SyncResult) OK() bool {
	return r.Status != SyncError
}

type RestoreResult struct {
	SyncResult
	RestoredCount int
}

// Manager never returns an error past its boundary: remote failures are
// reported as SyncError results and the caller decides what to surface.
type Manager struct {
	client  RuleClient
	metrics *metrics.Collector
	logger  *zap.Logger
}

func NewManager(client RuleClient, collector *metrics.Collector, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		client:  client,
		metrics: collector,
		logger:  logger,
	}
}

// ConfigureIndividualAddresses converges the domain's individual rules on
// addresses, MaxRecipientsPerRule per rule. Rules beyond what the list needs
// are removed; an empty list removes them all.
func (m *Manager) ConfigureIndividualAddresses(ctx context.Context, domain string, addresses []string, target core.TargetRef) SyncResult {
	name := IndividualRuleName(domain)
	recipients := normalizeRecipients(addresses)

	if len(recipients) == 0 {
		if !m.removeIndividualFrom(ctx, domain, 1) {
			return SyncResult{Status: SyncError, RuleName: name, Err: errors.New("failed to remove empty individual rule")}
		}
		return SyncResult{Status: SyncRemoved, RuleName: name}
	}

	chunks := chunkRecipients(recipients)
	result := SyncResult{Status: SyncUpdated, RuleName: name}
	for i, chunk := range chunks {
		res := m.upsert(ctx, "individual", Rule{
			Name:       IndividualChunkRuleName(domain, i+1),
			Domain:     domain,
			Recipients: chunk,
			Target:     target,
		})
		if !res.OK() {
			return SyncResult{Status: SyncError, RuleName: name, Err: res.Err}
		}
		if i == 0 {
			result.Status = res.Status
		}
	}

	if !m.removeIndividualFrom(ctx, domain, len(chunks)+1) {
		return SyncResult{Status: SyncError, RuleName: name, Err: errors.New("failed to remove surplus individual rules")}
	}
	return result
}

// ConfigureCatchAll matches the bare domain. Removing any individual rule
// beforehand is the caller's job.
func (m *Manager) ConfigureCatchAll(ctx context.Context, domain string, target core.TargetRef) SyncResult {
	return m.upsert(ctx, "catch_all", Rule{
		Name:       CatchAllRuleName(domain),
		Domain:     domain,
		Recipients: []string{domain},
		Target:     target,
	})
}

func (m *Manager) RemoveCatchAll(ctx context.Context, domain string) bool {
	return m.remove(ctx, "catch_all", domain, CatchAllRuleName(domain))
}

func (m *Manager) RemoveIndividualAddresses(ctx context.Context, domain string) bool {
	return m.removeIndividualFrom(ctx, domain, 1)
}

// removeIndividualFrom deletes individual rules numbered from first upward.
// Rules are numbered without gaps, so the walk stops at the first missing
// one, and deletion runs from the highest number down to keep that true
// when a delete fails halfway.
func (m *Manager) removeIndividualFrom(ctx context.Context, domain string, first int) bool {
	last := first - 1
	for n := first; ; n++ {
		_, err := m.client.GetRule(ctx, IndividualChunkRuleName(domain, n))
		if errors.Is(err, ErrRuleNotFound) {
			break
		}
		if err != nil {
			m.record("individual", SyncError)
			m.logger.Error("Failed to look up receipt rule",
				zap.String("domain", domain),
				zap.String("rule", IndividualChunkRuleName(domain, n)),
				zap.Error(err),
			)
			return false
		}
		last = n
	}

	for n := last; n >= first; n-- {
		if !m.remove(ctx, "individual", domain, IndividualChunkRuleName(domain, n)) {
			return false
		}
	}
	return true
}

// RestoreIndividualEmailRules recreates the individual rule from the
// addresses that are active right now.
func (m *Manager) RestoreIndividualEmailRules(ctx context.Context, domain string, addresses []string, target core.TargetRef) RestoreResult {
	result := m.ConfigureIndividualAddresses(ctx, domain, addresses, target)

	restored := 0
	if result.OK() {
		restored = len(normalizeRecipients(addresses))
	}

	m.logger.Info("Restored individual receipt rules",
		zap.String("domain", domain),
		zap.String("status", string(result.Status)),
		zap.Int("restored", restored),
	)

	return RestoreResult{SyncResult: result, RestoredCount: restored}
}

func (m *Manager) upsert(ctx context.Context, operation string, rule Rule) SyncResult {
	result := m.apply(ctx, rule)
	m.record(operation, result.Status)

	if result.Err != nil {
		m.logger.Error("Failed to sync receipt rule",
			zap.String("domain", rule.Domain),
			zap.String("rule", rule.Name),
			zap.Error(result.Err),
		)
	} else {
		m.logger.Info("Synced receipt rule",
			zap.String("domain", rule.Domain),
			zap.String("rule", rule.Name),
			zap.String("status", string(result.Status)),
			zap.Int("recipients", len(rule.Recipients)),
		)
	}

	return result
}

func (m *Manager) apply(ctx context.Context, rule Rule) SyncResult {
	existing, err := m.client.GetRule(ctx, rule.Name)
	switch {
	case errors.Is(err, ErrRuleNotFound):
		if err := m.client.CreateRule(ctx, rule); err != nil {
			return SyncResult{Status: SyncError, RuleName: rule.Name, Err: err}
		}
		return SyncResult{Status: SyncCreated, RuleName: rule.Name}
	case err != nil:
		return SyncResult{Status: SyncError, RuleName: rule.Name, Err: err}
	}

	if sameRule(existing, rule) {
		return SyncResult{Status: SyncUpdated, RuleName: rule.Name}
	}
	if err := m.client.UpdateRule(ctx, rule); err != nil {
		return SyncResult{Status: SyncError, RuleName: rule.Name, Err: err}
	}
	return SyncResult{Status: SyncUpdated, RuleName: rule.Name}
}

func (m *Manager) remove(ctx context.Context, operation, domain, name string) bool {
	err := m.client.DeleteRule(ctx, name)
	if err != nil && !errors.Is(err, ErrRuleNotFound) {
		m.record(operation, SyncError)
		m.logger.Error("Failed to remove receipt rule",
			zap.String("domain", domain),
			zap.String("rule", name),
			zap.Error(err),
		)
		return false
	}

	m.record(operation, SyncRemoved)
	m.logger.Info("Removed receipt rule", zap.String("domain", domain), zap.String("rule", name))
	return true
}

func (m *Manager) record(operation string, status SyncStatus) {
	if m.metrics != nil {
		m.metrics.RecordRuleSync(operation, string(status))
	}
}
