// Package verification coordinates DNS state, the remote mail provider and
// the local store for inbound domains. It is the only entry point callers use
// to change domain or address state.
package verification

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leozw/inbound-guardian/internal/checker"
	"github.com/leozw/inbound-guardian/internal/core"
	"github.com/leozw/inbound-guardian/internal/metrics"
	"github.com/leozw/inbound-guardian/internal/planner"
	"github.com/leozw/inbound-guardian/internal/queue"
	"github.com/leozw/inbound-guardian/internal/receipt"
)

// Store persists domains, their planned records and their addresses.
// Lookups return core.ErrNotFound; unique violations core.ErrAlreadyExists.
type Store interface {
	CreateDomain(ctx context.Context, domain *core.Domain, records []*core.DNSRecord) error
	GetDomain(ctx context.Context, id uuid.UUID) (*core.Domain, error)
	GetDomainByName(ctx context.Context, name string) (*core.Domain, error)
	ListDomains(ctx context.Context, ownerID string) ([]*core.Domain, error)
	UpdateDomain(ctx context.Context, domain *core.Domain) error
	// DeleteDomain removes the domain with its records and addresses.
	DeleteDomain(ctx context.Context, id uuid.UUID) error

	ListRecords(ctx context.Context, domainID uuid.UUID) ([]*core.DNSRecord, error)
	UpdateRecord(ctx context.Context, record *core.DNSRecord) error

	CreateAddress(ctx context.Context, address *core.EmailAddress) error
	GetAddress(ctx context.Context, id uuid.UUID) (*core.EmailAddress, error)
	GetAddressByAddress(ctx context.Context, address string) (*core.EmailAddress, error)
	ListAddresses(ctx context.Context, domainID uuid.UUID) ([]*core.EmailAddress, error)
	UpdateAddress(ctx context.Context, address *core.EmailAddress) error
	DeleteAddress(ctx context.Context, id uuid.UUID) error
}

// IdentityClient is the remote provider's domain identity API.
type IdentityClient interface {
	VerifyDomain(ctx context.Context, domain string) (string, error)
	// GetVerificationStatus reports NotFound for unknown domains.
	GetVerificationStatus(ctx context.Context, domains []string) (map[string]core.IdentityStatus, error)
	DeleteIdentity(ctx context.Context, domain string) error
	DKIMTokens(ctx context.Context, domain string) ([]string, error)
}

type ReportCache interface {
	SaveReport(ctx context.Context, report *core.CheckReport) error
	LastReport(ctx context.Context, domainID uuid.UUID) (*core.CheckReport, error)
	DeleteReport(ctx context.Context, domainID uuid.UUID) error
}

type UsageTracker interface {
	Track(ctx context.Context, eventType queue.EventType, ownerID, domainID, domain, address string)
}

type ProviderDetector interface {
	Detect(ctx context.Context, domain string) core.Provider
}

// Dependencies wires the service. Cache, Usage and Metrics are optional.
type Dependencies struct {
	Store    Store
	Resolver checker.Resolver
	Planner  *planner.Planner
	Detector ProviderDetector
	Identity IdentityClient
	Rules    *receipt.Manager
	Cache    ReportCache
	Usage    UsageTracker
	Metrics  *metrics.Collector
}

type Service struct {
	store    Store
	resolver checker.Resolver
	planner  *planner.Planner
	detector ProviderDetector
	identity IdentityClient
	rules    *receipt.Manager
	cache    ReportCache
	usage    UsageTracker
	metrics  *metrics.Collector
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(deps Dependencies, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    deps.Store,
		resolver: deps.Resolver,
		planner:  deps.Planner,
		detector: deps.Detector,
		identity: deps.Identity,
		rules:    deps.Rules,
		cache:    deps.Cache,
		usage:    deps.Usage,
		metrics:  deps.Metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// storeError turns a repository error into the service error taxonomy.
func storeError(err error, what string) *core.Error {
	switch {
	case errors.Is(err, core.ErrNotFound):
		return core.NotFoundError(what)
	case errors.Is(err, core.ErrAlreadyExists):
		return core.ConflictError(what+" already exists", nil)
	default:
		return core.InternalError("failed to access "+what, err)
	}
}

// ownedDomain loads a domain and hides other owners' domains as not found.
func (s *Service) ownedDomain(ctx context.Context, ownerID string, id uuid.UUID) (*core.Domain, *core.Error) {
	domain, err := s.store.GetDomain(ctx, id)
	if err != nil {
		return nil, storeError(err, "domain")
	}
	if domain.OwnerID != ownerID {
		return nil, core.NotFoundError("domain")
	}
	return domain, nil
}

func (s *Service) ownedAddress(ctx context.Context, ownerID string, id uuid.UUID) (*core.EmailAddress, *core.Domain, *core.Error) {
	address, err := s.store.GetAddress(ctx, id)
	if err != nil {
		return nil, nil, storeError(err, "email address")
	}
	domain, cerr := s.ownedDomain(ctx, ownerID, address.DomainID)
	if cerr != nil {
		return nil, nil, core.NotFoundError("email address")
	}
	return address, domain, nil
}

func (s *Service) track(ctx context.Context, event queue.EventType, domain *core.Domain, address string) {
	if s.usage == nil {
		return
	}
	s.usage.Track(ctx, event, domain.OwnerID, domain.ID.String(), domain.Name, address)
}

// generateToken stands in for the provider token when identity
// registration fails, so the domain can still be created.
func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}
