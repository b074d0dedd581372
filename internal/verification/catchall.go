package verification

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leozw/inbound-guardian/internal/core"
	"github.com/leozw/inbound-guardian/internal/receipt"
)

type ToggleResult struct {
	Domain        *core.Domain `json:"domain"`
	RuleName      string       `json:"rule_name,omitempty"`
	RestoredCount int          `json:"restored_count"`
}

// ToggleCatchAll switches a verified domain between catch-all and
// individual routing. Enabling removes the individual rule before the
// catch-all rule is configured; disabling removes the catch-all rule and
// rebuilds the individual rule from the addresses active right now.
func (s *Service) ToggleCatchAll(ctx context.Context, ownerID string, domainID uuid.UUID, enable bool, target *core.TargetRef) core.Result[*ToggleResult] {
	domain, cerr := s.ownedDomain(ctx, ownerID, domainID)
	if cerr != nil {
		return core.Fail[*ToggleResult](cerr)
	}
	if !domain.IsVerified() {
		return core.Fail[*ToggleResult](core.ValidationError("domain %s must be verified before changing routing", domain.Name))
	}

	if enable {
		return s.enableCatchAll(ctx, domain, target)
	}
	return s.disableCatchAll(ctx, domain)
}

func (s *Service) enableCatchAll(ctx context.Context, domain *core.Domain, target *core.TargetRef) core.Result[*ToggleResult] {
	if target == nil || target.IsZero() {
		return core.Fail[*ToggleResult](core.ValidationError("catch-all requires a delivery target"))
	}
	routing, err := core.CatchAllRouting(*target)
	if err != nil {
		return core.Fail[*ToggleResult](core.ValidationError("%s", err.Error()))
	}

	addresses, err := s.store.ListAddresses(ctx, domain.ID)
	if err != nil {
		return core.Fail[*ToggleResult](storeError(err, "email addresses"))
	}

	// The individual rule must be gone before catch-all goes live.
	if !s.rules.RemoveIndividualAddresses(ctx, domain.Name) {
		return core.Fail[*ToggleResult](core.ExternalServiceError(
			"failed to remove the existing address rule; catch-all was not enabled", nil))
	}
	if err := s.applySync(ctx, domain, addresses, receipt.SyncResult{Status: receipt.SyncRemoved}); err != nil {
		return core.Fail[*ToggleResult](storeError(err, "email addresses"))
	}

	var warnings []string
	result := s.rules.ConfigureCatchAll(ctx, domain.Name, *target)
	domain.CatchAllRuleName = ""
	if result.OK() {
		domain.CatchAllRuleName = result.RuleName
	} else {
		warnings = append(warnings, ruleWarning)
	}

	domain.Routing = routing
	domain.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateDomain(ctx, domain); err != nil {
		return core.Fail[*ToggleResult](storeError(err, "domain"))
	}

	s.logger.Info("Catch-all enabled",
		zap.String("domain", domain.Name),
		zap.String("rule_status", string(result.Status)),
	)

	return core.OK(&ToggleResult{Domain: domain, RuleName: domain.CatchAllRuleName}, warnings...)
}

func (s *Service) disableCatchAll(ctx context.Context, domain *core.Domain) core.Result[*ToggleResult] {
	// addresses are read before anything changes, so a failed read leaves the
	// catch-all rule in place
	addresses, err := s.store.ListAddresses(ctx, domain.ID)
	if err != nil {
		return core.Fail[*ToggleResult](storeError(err, "email addresses"))
	}

	if !s.rules.RemoveCatchAll(ctx, domain.Name) {
		return core.Fail[*ToggleResult](core.ExternalServiceError(
			"failed to remove the catch-all rule; routing was not changed", nil))
	}

	domain.Routing = core.IndividualRouting()
	domain.CatchAllRuleName = ""
	domain.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateDomain(ctx, domain); err != nil {
		return core.Fail[*ToggleResult](storeError(err, "domain"))
	}

	var warnings []string
	restored := s.rules.RestoreIndividualEmailRules(ctx, domain.Name, core.ActiveAddresses(addresses), core.TargetRef{})
	if !restored.OK() {
		warnings = append(warnings, ruleWarning)
	}
	if err := s.applySync(ctx, domain, addresses, restored.SyncResult); err != nil {
		return core.Fail[*ToggleResult](storeError(err, "email addresses"))
	}

	s.logger.Info("Catch-all disabled",
		zap.String("domain", domain.Name),
		zap.Int("restored", restored.RestoredCount),
	)

	return core.OK(&ToggleResult{
		Domain:        domain,
		RuleName:      domain.IndividualRuleName,
		RestoredCount: restored.RestoredCount,
	}, warnings...)
}
