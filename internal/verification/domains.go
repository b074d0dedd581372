package verification

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leozw/inbound-guardian/internal/checker"
	"github.com/leozw/inbound-guardian/internal/core"
	"github.com/leozw/inbound-guardian/internal/queue"
	"github.com/leozw/inbound-guardian/internal/receipt"
)

// AddDomain registers name for ownerID in pending state with its planned
// DNS records. A domain whose MX records point elsewhere is rejected with
// suggested subdomains.
func (s *Service) AddDomain(ctx context.Context, ownerID, name string) core.Result[*core.DomainDetails] {
	name = core.NormalizeDomain(name)
	if err := core.ValidateDomainName(name); err != nil {
		return core.Fail[*core.DomainDetails](err)
	}

	if _, err := s.store.GetDomainByName(ctx, name); err == nil {
		return core.Fail[*core.DomainDetails](core.ConflictError(
			fmt.Sprintf("domain %s is already registered", name), nil))
	} else if !errors.Is(err, core.ErrNotFound) {
		return core.Fail[*core.DomainDetails](storeError(err, "domain"))
	}

	var warnings []string

	mx, err := checker.HasMXRecords(ctx, s.resolver, name)
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("Could not check existing MX records: %v", err))
	}
	if len(mx) > 0 && !checker.PointsAt(mx, s.planner.InboundHost()) {
		if s.metrics != nil {
			s.metrics.RecordConflict()
		}
		hosts := make([]string, 0, len(mx))
		for _, r := range mx {
			hosts = append(hosts, r.Host)
		}
		return core.Fail[*core.DomainDetails](core.ConflictError(
			fmt.Sprintf("%s already receives email through other MX records; use a subdomain instead", name),
			map[string]any{
				"suggested_subdomains": core.SuggestedSubdomains(name),
				"existing_mx":          hosts,
			},
		))
	}

	identityStatus := core.IdentityPending
	token, err := s.identity.VerifyDomain(ctx, name)
	if err != nil {
		s.logger.Warn("Failed to register domain identity", zap.String("domain", name), zap.Error(err))
		token, err = generateToken()
		if err != nil {
			return core.Fail[*core.DomainDetails](core.InternalError("failed to generate verification token", err))
		}
		identityStatus = core.IdentityUnset
		warnings = append(warnings, "The mail provider could not register this domain yet; run a check to retry.")
	}

	provider := s.detector.Detect(ctx, name)
	now := s.now().UTC()

	domain := &core.Domain{
		ID:                 uuid.New(),
		OwnerID:            ownerID,
		Name:               name,
		Status:             core.DomainPending,
		VerificationToken:  token,
		HasMXRecords:       len(mx) > 0,
		Routing:            core.IndividualRouting(),
		IdentityStatus:     identityStatus,
		ProviderName:       provider.Name,
		ProviderConfidence: provider.Confidence,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	planned := s.planner.Plan(name, token)
	records := make([]*core.DNSRecord, 0, len(planned))
	for _, p := range planned {
		records = append(records, &core.DNSRecord{
			ExpectedRecord: p,
			ID:             uuid.New(),
			DomainID:       domain.ID,
			CreatedAt:      now,
		})
	}

	if err := s.store.CreateDomain(ctx, domain, records); err != nil {
		if identityStatus != core.IdentityUnset {
			if derr := s.identity.DeleteIdentity(ctx, name); derr != nil {
				s.logger.Warn("Failed to clean up domain identity", zap.String("domain", name), zap.Error(derr))
			}
		}
		return core.Fail[*core.DomainDetails](storeError(err, "domain"))
	}

	s.logger.Info("Domain added",
		zap.String("domain", name),
		zap.String("owner_id", ownerID),
		zap.String("provider", provider.Name),
	)
	s.track(ctx, queue.EventDomainAdded, domain, "")

	return core.OK(&core.DomainDetails{
		Domain:    domain,
		Records:   records,
		Addresses: []*core.EmailAddress{},
	}, warnings...)
}

// Check re-resolves DNS, refreshes the remote identity status and applies
// the resulting status transition. Verified domains are never demoted.
func (s *Service) Check(ctx context.Context, ownerID string, id uuid.UUID) core.Result[*core.CheckReport] {
	domain, cerr := s.ownedDomain(ctx, ownerID, id)
	if cerr != nil {
		return core.Fail[*core.CheckReport](cerr)
	}

	records, err := s.store.ListRecords(ctx, domain.ID)
	if err != nil {
		return core.Fail[*core.CheckReport](storeError(err, "dns records"))
	}

	var warnings []string
	now := s.now().UTC()
	previous := domain.Status

	identityStatus, fresh, identityWarnings := s.refreshIdentity(ctx, domain, records)
	warnings = append(warnings, identityWarnings...)

	expected := make([]core.ExpectedRecord, 0, len(records))
	for _, r := range records {
		expected = append(expected, r.ExpectedRecord)
	}
	diff := s.planner.Diff(ctx, domain.Name, expected)

	for i, r := range records {
		r.Verified = diff.Records[i].IsVerified
		r.LastCheckedAt = &now
		if r.Purpose == core.PurposeMX {
			domain.HasMXRecords = len(diff.Records[i].ActualValues) > 0
		}
		if err := s.store.UpdateRecord(ctx, r); err != nil {
			return core.Fail[*core.CheckReport](storeError(err, "dns record"))
		}
	}

	// a stale status never drives a transition
	observed := identityStatus
	if !fresh {
		observed = core.IdentityUnset
	}

	dnsVerified := diff.AllRequiredVerified
	allVerified := dnsVerified && observed == core.IdentitySuccess

	domain.Status = nextStatus(domain.Status, allVerified, observed)
	domain.IdentityStatus = identityStatus
	domain.CanReceiveEmails = allVerified
	domain.LastDNSCheckAt = &now

	provider := s.detector.Detect(ctx, domain.Name)
	domain.ProviderName = provider.Name
	domain.ProviderConfidence = provider.Confidence
	domain.UpdatedAt = now

	if err := s.store.UpdateDomain(ctx, domain); err != nil {
		return core.Fail[*core.CheckReport](storeError(err, "domain"))
	}

	report := &core.CheckReport{
		DomainID:       domain.ID,
		Domain:         domain.Name,
		Status:         domain.Status,
		Records:        diff.Records,
		DNSVerified:    dnsVerified,
		IdentityStatus: identityStatus,
		AllVerified:    allVerified,
		CanProceed:     domain.IsVerified(),
		Provider:       provider,
		CheckedAt:      now,
	}

	if domain.IsVerified() {
		recs, err := s.dkimRecommendations(ctx, domain.Name)
		if err != nil {
			warnings = append(warnings, "DKIM recommendations are unavailable right now.")
			s.logger.Warn("Failed to load DKIM tokens", zap.String("domain", domain.Name), zap.Error(err))
		}
		report.Recommendations = recs
	}

	if s.cache != nil {
		if err := s.cache.SaveReport(ctx, report); err != nil {
			s.logger.Warn("Failed to cache check report", zap.String("domain", domain.Name), zap.Error(err))
		}
	}
	if s.metrics != nil {
		s.metrics.RecordCheck(previous, domain.Status)
	}

	s.logger.Info("Domain checked",
		zap.String("domain", domain.Name),
		zap.String("from", string(previous)),
		zap.String("to", string(domain.Status)),
		zap.Bool("dns_verified", dnsVerified),
		zap.String("identity_status", string(identityStatus)),
	)

	return core.OK(report, warnings...).WithVerification(allVerified, report.CanProceed)
}

// nextStatus is the domain state machine. Only an explicit check moves a
// domain, and verified is terminal.
func nextStatus(current core.DomainStatus, allVerified bool, identity core.IdentityStatus) core.DomainStatus {
	switch {
	case current == core.DomainVerified:
		return core.DomainVerified
	case allVerified:
		return core.DomainVerified
	case current == core.DomainPending && identity == core.IdentityFailed:
		return core.DomainFailed
	default:
		return current
	}
}

// refreshIdentity queries the provider and re-registers identities it no
// longer knows, moving the new token onto the verification record. fresh is
// false when the provider could not be reached and the stored status is
// returned instead.
func (s *Service) refreshIdentity(ctx context.Context, domain *core.Domain, records []*core.DNSRecord) (status core.IdentityStatus, fresh bool, warnings []string) {
	statuses, err := s.identity.GetVerificationStatus(ctx, []string{domain.Name})
	if err != nil {
		s.logger.Warn("Failed to query identity status", zap.String("domain", domain.Name), zap.Error(err))
		return domain.IdentityStatus, false, []string{"Could not reach the mail provider; identity status was not refreshed."}
	}

	now := s.now().UTC()
	domain.LastIdentityCheckAt = &now

	status, ok := statuses[domain.Name]
	if !ok {
		status = core.IdentityNotFound
	}
	if status != core.IdentityNotFound {
		return status, true, nil
	}

	token, err := s.identity.VerifyDomain(ctx, domain.Name)
	if err != nil {
		s.logger.Warn("Failed to re-register domain identity", zap.String("domain", domain.Name), zap.Error(err))
		return core.IdentityNotFound, true, []string{"The mail provider does not know this domain and re-registration failed; try again later."}
	}

	if token != domain.VerificationToken {
		domain.VerificationToken = token
		for _, r := range records {
			if r.Purpose == core.PurposeVerification {
				r.Value = token
			}
		}
		warnings = append(warnings, "The verification token changed; publish the new TXT value.")
	}

	s.logger.Info("Re-registered domain identity", zap.String("domain", domain.Name))
	return core.IdentityPending, true, warnings
}

func (s *Service) dkimRecommendations(ctx context.Context, domain string) ([]core.RecordCheck, error) {
	tokens, err := s.identity.DKIMTokens(ctx, domain)
	if err != nil || len(tokens) == 0 {
		return nil, err
	}
	return s.planner.Diff(ctx, domain, s.planner.PlanDKIM(domain, tokens)).Records, nil
}

func (s *Service) GetDomain(ctx context.Context, ownerID string, id uuid.UUID) core.Result[*core.DomainDetails] {
	domain, cerr := s.ownedDomain(ctx, ownerID, id)
	if cerr != nil {
		return core.Fail[*core.DomainDetails](cerr)
	}

	records, err := s.store.ListRecords(ctx, domain.ID)
	if err != nil {
		return core.Fail[*core.DomainDetails](storeError(err, "dns records"))
	}
	addresses, err := s.store.ListAddresses(ctx, domain.ID)
	if err != nil {
		return core.Fail[*core.DomainDetails](storeError(err, "email addresses"))
	}

	details := &core.DomainDetails{Domain: domain, Records: records, Addresses: addresses}
	if s.cache != nil {
		report, err := s.cache.LastReport(ctx, domain.ID)
		if err != nil {
			s.logger.Warn("Failed to read cached report", zap.String("domain", domain.Name), zap.Error(err))
		}
		details.LastReport = report
	}

	return core.OK(details)
}

func (s *Service) ListDomains(ctx context.Context, ownerID string) core.Result[[]*core.Domain] {
	domains, err := s.store.ListDomains(ctx, ownerID)
	if err != nil {
		return core.Fail[[]*core.Domain](storeError(err, "domains"))
	}
	if domains == nil {
		domains = []*core.Domain{}
	}
	return core.OK(domains)
}

type DeleteResult struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// DeleteDomain removes receipt rules best effort, then the remote identity,
// then local rows. If the identity can't be deleted nothing local changes.
func (s *Service) DeleteDomain(ctx context.Context, ownerID string, id uuid.UUID) core.Result[*DeleteResult] {
	domain, cerr := s.ownedDomain(ctx, ownerID, id)
	if cerr != nil {
		return core.Fail[*DeleteResult](cerr)
	}

	var warnings []string
	catchAllRemoved := s.rules.RemoveCatchAll(ctx, domain.Name)
	if !catchAllRemoved {
		warnings = append(warnings, "The catch-all receipt rule could not be removed.")
	}
	individualRemoved := s.rules.RemoveIndividualAddresses(ctx, domain.Name)
	if !individualRemoved {
		warnings = append(warnings, "The address receipt rule could not be removed.")
	}

	if err := s.identity.DeleteIdentity(ctx, domain.Name); err != nil {
		s.logger.Error("Failed to delete domain identity", zap.String("domain", domain.Name), zap.Error(err))
		if ferr := s.forgetRemovedRules(ctx, domain, catchAllRemoved, individualRemoved); ferr != nil {
			s.logger.Warn("Failed to clear removed rule names", zap.String("domain", domain.Name), zap.Error(ferr))
		}
		return core.Fail[*DeleteResult](core.ExternalServiceError(
			"failed to remove the domain from the mail provider; the domain was kept", err))
	}

	if err := s.store.DeleteDomain(ctx, domain.ID); err != nil {
		return core.Fail[*DeleteResult](storeError(err, "domain"))
	}

	if s.cache != nil {
		if err := s.cache.DeleteReport(ctx, domain.ID); err != nil {
			s.logger.Warn("Failed to drop cached report", zap.String("domain", domain.Name), zap.Error(err))
		}
	}

	s.logger.Info("Domain deleted", zap.String("domain", domain.Name), zap.String("owner_id", ownerID))
	s.track(ctx, queue.EventDomainDeleted, domain, "")

	return core.OK(&DeleteResult{ID: domain.ID, Name: domain.Name}, warnings...)
}

// forgetRemovedRules clears the local record of rules that are already gone
// remotely when a delete stops halfway.
func (s *Service) forgetRemovedRules(ctx context.Context, domain *core.Domain, catchAll, individual bool) error {
	if individual {
		addresses, err := s.store.ListAddresses(ctx, domain.ID)
		if err != nil {
			return err
		}
		if err := s.applySync(ctx, domain, addresses, receipt.SyncResult{Status: receipt.SyncRemoved}); err != nil {
			return err
		}
	}
	if catchAll && domain.CatchAllRuleName != "" {
		domain.CatchAllRuleName = ""
		domain.UpdatedAt = s.now().UTC()
		return s.store.UpdateDomain(ctx, domain)
	}
	return nil
}
