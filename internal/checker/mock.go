package checker

import (
	"context"
	"net"
	"slices"
	"strings"
	"sync"
)

// MockResolver is a Resolver for tests. Maps are keyed by domain name
// without a trailing dot.
type MockResolver struct {
	NS    map[string][]string
	MX    map[string][]*net.MX
	TXT   map[string][]string
	CNAME map[string]string

	// Fail lists lookups that return ErrServFail, as "type name",
	// e.g. "mx example.com".
	Fail []string

	mu      sync.Mutex
	lookups []string
}

var _ Resolver = (*MockResolver)(nil)

func mockKey(name string) string {
	return strings.ToLower(strings.TrimSuffix(name, "."))
}

func (r *MockResolver) record(ctx context.Context, qtype, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	req := qtype + " " + mockKey(name)

	r.mu.Lock()
	r.lookups = append(r.lookups, req)
	r.mu.Unlock()

	if slices.Contains(r.Fail, req) {
		return ErrServFail
	}
	return nil
}

// Lookups returns every query made so far, in order.
func (r *MockResolver) Lookups() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.lookups)
}

func (r *MockResolver) LookupNS(ctx context.Context, name string) ([]string, error) {
	if err := r.record(ctx, "ns", name); err != nil {
		return nil, err
	}
	records, ok := r.NS[mockKey(name)]
	if !ok || len(records) == 0 {
		return nil, ErrNotFound
	}
	return records, nil
}

func (r *MockResolver) LookupMX(ctx context.Context, name string) ([]*net.MX, error) {
	if err := r.record(ctx, "mx", name); err != nil {
		return nil, err
	}
	records, ok := r.MX[mockKey(name)]
	if !ok || len(records) == 0 {
		return nil, ErrNotFound
	}
	return records, nil
}

func (r *MockResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	if err := r.record(ctx, "txt", name); err != nil {
		return nil, err
	}
	records, ok := r.TXT[mockKey(name)]
	if !ok || len(records) == 0 {
		return nil, ErrNoData
	}
	return records, nil
}

func (r *MockResolver) LookupCNAME(ctx context.Context, name string) (string, error) {
	if err := r.record(ctx, "cname", name); err != nil {
		return "", err
	}
	target, ok := r.CNAME[mockKey(name)]
	if !ok || target == "" {
		return "", ErrNoData
	}
	return target, nil
}
