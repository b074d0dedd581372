package verification

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leozw/inbound-guardian/internal/core"
	"github.com/leozw/inbound-guardian/internal/queue"
	"github.com/leozw/inbound-guardian/internal/receipt"
)

const ruleWarning = "Saved, but the mail provider's routing rule could not be updated; retry the change later."

// AddEmailAddress creates an active address under a verified domain and
// brings the individual receipt rule in line when the domain is not in
// catch-all mode.
func (s *Service) AddEmailAddress(ctx context.Context, ownerID string, domainID uuid.UUID, address string, target core.TargetRef) core.Result[*core.EmailAddress] {
	domain, cerr := s.ownedDomain(ctx, ownerID, domainID)
	if cerr != nil {
		return core.Fail[*core.EmailAddress](cerr)
	}
	if !domain.IsVerified() {
		return core.Fail[*core.EmailAddress](core.ValidationError("domain %s must be verified before adding addresses", domain.Name))
	}

	address = core.NormalizeAddress(address)
	if err := core.ValidateEmailAddress(address, domain.Name); err != nil {
		return core.Fail[*core.EmailAddress](err)
	}
	if err := target.Validate(); err != nil {
		return core.Fail[*core.EmailAddress](core.ValidationError("%s", err.Error()))
	}

	if _, err := s.store.GetAddressByAddress(ctx, address); err == nil {
		return core.Fail[*core.EmailAddress](core.ConflictError(
			fmt.Sprintf("email address %s already exists", address), nil))
	} else if !errors.Is(err, core.ErrNotFound) {
		return core.Fail[*core.EmailAddress](storeError(err, "email address"))
	}

	now := s.now().UTC()
	created := &core.EmailAddress{
		ID:        uuid.New(),
		DomainID:  domain.ID,
		Address:   address,
		Target:    target,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateAddress(ctx, created); err != nil {
		return core.Fail[*core.EmailAddress](storeError(err, "email address"))
	}

	var warnings []string
	if !domain.Routing.IsCatchAll() {
		if w := s.syncIndividualRule(ctx, domain); w != "" {
			warnings = append(warnings, w)
		}
	}

	s.logger.Info("Email address added", zap.String("domain", domain.Name), zap.String("address", address))
	s.track(ctx, queue.EventAddressAdded, domain, address)

	return s.reloadAddress(ctx, created, warnings)
}

// UpdateEmailRouting changes an address's target and/or active flag. Active
// changes resync the individual rule.
func (s *Service) UpdateEmailRouting(ctx context.Context, ownerID string, addressID uuid.UUID, target *core.TargetRef, active *bool) core.Result[*core.EmailAddress] {
	if target == nil && active == nil {
		return core.Fail[*core.EmailAddress](core.ValidationError("nothing to update"))
	}
	if target != nil {
		if err := target.Validate(); err != nil {
			return core.Fail[*core.EmailAddress](core.ValidationError("%s", err.Error()))
		}
	}

	address, domain, cerr := s.ownedAddress(ctx, ownerID, addressID)
	if cerr != nil {
		return core.Fail[*core.EmailAddress](cerr)
	}

	activeChanged := active != nil && *active != address.Active
	if target != nil {
		address.Target = *target
	}
	if active != nil {
		address.Active = *active
	}
	address.UpdatedAt = s.now().UTC()

	if err := s.store.UpdateAddress(ctx, address); err != nil {
		return core.Fail[*core.EmailAddress](storeError(err, "email address"))
	}

	var warnings []string
	if activeChanged && !domain.Routing.IsCatchAll() && domain.IsVerified() {
		if w := s.syncIndividualRule(ctx, domain); w != "" {
			warnings = append(warnings, w)
		}
	}

	s.logger.Info("Email routing updated",
		zap.String("address", address.Address),
		zap.Bool("active", address.Active),
	)

	return s.reloadAddress(ctx, address, warnings)
}

type AddressDeleteResult struct {
	ID      uuid.UUID `json:"id"`
	Address string    `json:"address"`
}

func (s *Service) DeleteEmailAddress(ctx context.Context, ownerID string, addressID uuid.UUID) core.Result[*AddressDeleteResult] {
	address, domain, cerr := s.ownedAddress(ctx, ownerID, addressID)
	if cerr != nil {
		return core.Fail[*AddressDeleteResult](cerr)
	}

	if err := s.store.DeleteAddress(ctx, address.ID); err != nil {
		return core.Fail[*AddressDeleteResult](storeError(err, "email address"))
	}

	var warnings []string
	if address.Active && !domain.Routing.IsCatchAll() && domain.IsVerified() {
		if w := s.syncIndividualRule(ctx, domain); w != "" {
			warnings = append(warnings, w)
		}
	}

	s.logger.Info("Email address deleted", zap.String("domain", domain.Name), zap.String("address", address.Address))

	return core.OK(&AddressDeleteResult{ID: address.ID, Address: address.Address}, warnings...)
}

// syncIndividualRule converges the individual rule on the live active
// addresses and records the outcome on the domain and its addresses.
// It returns a warning when the provider call failed.
func (s *Service) syncIndividualRule(ctx context.Context, domain *core.Domain) string {
	addresses, err := s.store.ListAddresses(ctx, domain.ID)
	if err != nil {
		s.logger.Error("Failed to list addresses for rule sync", zap.String("domain", domain.Name), zap.Error(err))
		return ruleWarning
	}

	result := s.rules.ConfigureIndividualAddresses(ctx, domain.Name, core.ActiveAddresses(addresses), core.TargetRef{})
	if err := s.applySync(ctx, domain, addresses, result); err != nil {
		s.logger.Error("Failed to record rule sync", zap.String("domain", domain.Name), zap.Error(err))
	}
	if !result.OK() {
		return ruleWarning
	}
	return ""
}

// applySync stores which addresses are covered by the individual rule. A
// failed sync leaves the flags as they were, since the remote rule did not
// change either.
func (s *Service) applySync(ctx context.Context, domain *core.Domain, addresses []*core.EmailAddress, result receipt.SyncResult) error {
	if !result.OK() {
		return nil
	}

	ruleName := ""
	if result.Status == receipt.SyncCreated || result.Status == receipt.SyncUpdated {
		ruleName = result.RuleName
	}
	configured := ruleName != ""

	for _, a := range addresses {
		wantConfigured := configured && a.Active
		wantName := ""
		if wantConfigured {
			wantName = ruleName
		}
		if a.RuleConfigured == wantConfigured && a.RuleName == wantName {
			continue
		}
		a.RuleConfigured = wantConfigured
		a.RuleName = wantName
		a.UpdatedAt = s.now().UTC()
		if err := s.store.UpdateAddress(ctx, a); err != nil {
			return err
		}
	}

	if domain.IndividualRuleName != ruleName {
		domain.IndividualRuleName = ruleName
		domain.UpdatedAt = s.now().UTC()
		return s.store.UpdateDomain(ctx, domain)
	}
	return nil
}

func (s *Service) reloadAddress(ctx context.Context, address *core.EmailAddress, warnings []string) core.Result[*core.EmailAddress] {
	fresh, err := s.store.GetAddress(ctx, address.ID)
	if err != nil {
		return core.OK(address, warnings...)
	}
	return core.OK(fresh, warnings...)
}
