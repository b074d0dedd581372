// Package memory is an in-process store used by tests and by the API when no
// database is configured.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/leozw/inbound-guardian/internal/core"
)

type Store struct {
	mu        sync.RWMutex
	domains   map[uuid.UUID]*core.Domain
	records   map[uuid.UUID]*core.DNSRecord
	addresses map[uuid.UUID]*core.EmailAddress
}

func NewStore() *Store {
	return &Store{
		domains:   make(map[uuid.UUID]*core.Domain),
		records:   make(map[uuid.UUID]*core.DNSRecord),
		addresses: make(map[uuid.UUID]*core.EmailAddress),
	}
}

func copyDomain(d *core.Domain) *core.Domain {
	c := *d
	return &c
}

func copyRecord(r *core.DNSRecord) *core.DNSRecord {
	c := *r
	return &c
}

func copyAddress(a *core.EmailAddress) *core.EmailAddress {
	c := *a
	return &c
}

func (s *Store) CreateDomain(ctx context.Context, domain *core.Domain, records []*core.DNSRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.domains[domain.ID]; ok {
		return core.ErrAlreadyExists
	}
	for _, d := range s.domains {
		if d.Name == domain.Name {
			return core.ErrAlreadyExists
		}
	}

	s.domains[domain.ID] = copyDomain(domain)
	for _, r := range records {
		r.DomainID = domain.ID
		s.records[r.ID] = copyRecord(r)
	}
	return nil
}

func (s *Store) GetDomain(ctx context.Context, id uuid.UUID) (*core.Domain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.domains[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return copyDomain(d), nil
}

func (s *Store) GetDomainByName(ctx context.Context, name string) (*core.Domain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, d := range s.domains {
		if d.Name == name {
			return copyDomain(d), nil
		}
	}
	return nil, core.ErrNotFound
}

func (s *Store) ListDomains(ctx context.Context, ownerID string) ([]*core.Domain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*core.Domain{}
	for _, d := range s.domains {
		if d.OwnerID == ownerID {
			out = append(out, copyDomain(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) UpdateDomain(ctx context.Context, domain *core.Domain) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.domains[domain.ID]; !ok {
		return core.ErrNotFound
	}
	s.domains[domain.ID] = copyDomain(domain)
	return nil
}

func (s *Store) DeleteDomain(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.domains[id]; !ok {
		return core.ErrNotFound
	}
	delete(s.domains, id)
	for rid, r := range s.records {
		if r.DomainID == id {
			delete(s.records, rid)
		}
	}
	for aid, a := range s.addresses {
		if a.DomainID == id {
			delete(s.addresses, aid)
		}
	}
	return nil
}

func (s *Store) ListRecords(ctx context.Context, domainID uuid.UUID) ([]*core.DNSRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*core.DNSRecord{}
	for _, r := range s.records {
		if r.DomainID == domainID {
			out = append(out, copyRecord(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Name+string(out[i].Type) < out[j].Name+string(out[j].Type)
	})
	return out, nil
}

func (s *Store) UpdateRecord(ctx context.Context, record *core.DNSRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[record.ID]; !ok {
		return core.ErrNotFound
	}
	s.records[record.ID] = copyRecord(record)
	return nil
}

func (s *Store) CreateAddress(ctx context.Context, address *core.EmailAddress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.domains[address.DomainID]; !ok {
		return core.ErrNotFound
	}
	for _, a := range s.addresses {
		if a.Address == address.Address {
			return core.ErrAlreadyExists
		}
	}
	s.addresses[address.ID] = copyAddress(address)
	return nil
}

func (s *Store) GetAddress(ctx context.Context, id uuid.UUID) (*core.EmailAddress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.addresses[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return copyAddress(a), nil
}

func (s *Store) GetAddressByAddress(ctx context.Context, address string) (*core.EmailAddress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.addresses {
		if a.Address == address {
			return copyAddress(a), nil
		}
	}
	return nil, core.ErrNotFound
}

func (s *Store) ListAddresses(ctx context.Context, domainID uuid.UUID) ([]*core.EmailAddress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*core.EmailAddress{}
	for _, a := range s.addresses {
		if a.DomainID == domainID {
			out = append(out, copyAddress(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

func (s *Store) UpdateAddress(ctx context.Context, address *core.EmailAddress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.addresses[address.ID]; !ok {
		return core.ErrNotFound
	}
	s.addresses[address.ID] = copyAddress(address)
	return nil
}

func (s *Store) DeleteAddress(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.addresses[id]; !ok {
		return core.ErrNotFound
	}
	delete(s.addresses, id)
	return nil
}
