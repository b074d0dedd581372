package receipt

import (
	"context"
	"slices"
	"strings"
	"sync"
)

// MemoryClient is an in-process RuleClient for tests and local runs.
// Fail maps an operation ("get", "create", "update", "delete") to the error
// it should return.
type MemoryClient struct {
	mu    sync.Mutex
	rules map[string]Rule
	calls []string

	Fail map[string]error
}

func NewMemoryClient() *MemoryClient {
	return &MemoryClient{rules: make(map[string]Rule)}
}

func (c *MemoryClient) GetRule(ctx context.Context, name string) (*Rule, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.fail("get " + name); err != nil {
		return nil, err
	}
	rule, ok := c.rules[name]
	if !ok {
		return nil, ErrRuleNotFound
	}
	rule.Recipients = slices.Clone(rule.Recipients)
	return &rule, nil
}

func (c *MemoryClient) CreateRule(ctx context.Context, rule Rule) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.fail("create " + rule.Name); err != nil {
		return err
	}
	if len(rule.Recipients) > MaxRecipientsPerRule {
		return ErrTooManyRecipients
	}
	rule.Recipients = slices.Clone(rule.Recipients)
	c.rules[rule.Name] = rule
	return nil
}

func (c *MemoryClient) UpdateRule(ctx context.Context, rule Rule) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.fail("update " + rule.Name); err != nil {
		return err
	}
	if len(rule.Recipients) > MaxRecipientsPerRule {
		return ErrTooManyRecipients
	}
	if _, ok := c.rules[rule.Name]; !ok {
		return ErrRuleNotFound
	}
	rule.Recipients = slices.Clone(rule.Recipients)
	c.rules[rule.Name] = rule
	return nil
}

func (c *MemoryClient) DeleteRule(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.fail("delete " + name); err != nil {
		return err
	}
	if _, ok := c.rules[name]; !ok {
		return ErrRuleNotFound
	}
	delete(c.rules, name)
	return nil
}

// Rules returns a snapshot of stored rules keyed by name.
func (c *MemoryClient) Rules() map[string]Rule {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]Rule, len(c.rules))
	for k, v := range c.rules {
		v.Recipients = slices.Clone(v.Recipients)
		out[k] = v
	}
	return out
}

// Calls lists operations in order, e.g. "create example.com-catch-all".
func (c *MemoryClient) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.calls)
}

func (c *MemoryClient) fail(call string) error {
	c.calls = append(c.calls, call)
	if c.Fail == nil {
		return nil
	}
	op, _, _ := strings.Cut(call, " ")
	if err, ok := c.Fail[op]; ok {
		return err
	}
	return nil
}
