package receipt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/leozw/inbound-guardian/internal/core"
	"github.com/leozw/inbound-guardian/internal/metrics"
)

var target = core.TargetRef{EndpointID: "ep-1"}

func newManager(t *testing.T) (*Manager, *MemoryClient) {
	t.Helper()
	client := NewMemoryClient()
	return NewManager(client, metrics.NewCollector(prometheus.NewRegistry()), zaptest.NewLogger(t)), client
}

func TestConfigureIndividualIsIdempotent(t *testing.T) {
	m, client := newManager(t)
	ctx := context.Background()

	first := m.ConfigureIndividualAddresses(ctx, "example.com", []string{"b@example.com", "a@example.com"}, target)
	require.Equal(t, SyncCreated, first.Status)
	assert.Equal(t, "example.com-individual", first.RuleName)

	second := m.ConfigureIndividualAddresses(ctx, "example.com", []string{"A@example.com", "b@example.com", "a@example.com"}, target)
	assert.Equal(t, SyncUpdated, second.Status)
	assert.Equal(t, first.RuleName, second.RuleName)

	rules := client.Rules()
	require.Len(t, rules, 1)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, rules[first.RuleName].Recipients)
	// unchanged recipients skip the remote update
	assert.NotContains(t, client.Calls(), "update example.com-individual")
}

func TestConfigureIndividualUpdatesRecipients(t *testing.T) {
	m, client := newManager(t)
	ctx := context.Background()

	m.ConfigureIndividualAddresses(ctx, "example.com", []string{"a@example.com"}, target)
	res := m.ConfigureIndividualAddresses(ctx, "example.com", []string{"a@example.com", "c@example.com"}, target)

	assert.Equal(t, SyncUpdated, res.Status)
	assert.Equal(t, []string{"a@example.com", "c@example.com"}, client.Rules()[res.RuleName].Recipients)
}

func TestConfigureIndividualEmptyListRemovesRule(t *testing.T) {
	m, client := newManager(t)
	ctx := context.Background()

	m.ConfigureIndividualAddresses(ctx, "example.com", []string{"a@example.com"}, target)
	res := m.ConfigureIndividualAddresses(ctx, "example.com", nil, target)

	assert.Equal(t, SyncRemoved, res.Status)
	assert.Empty(t, client.Rules())
}

func TestConfigureCatchAllMatchesBareDomain(t *testing.T) {
	m, client := newManager(t)

	res := m.ConfigureCatchAll(context.Background(), "example.com", target)
	require.Equal(t, SyncCreated, res.Status)

	rule := client.Rules()["example.com-catch-all"]
	assert.Equal(t, []string{"example.com"}, rule.Recipients)
	assert.Equal(t, target, rule.Target)
}

func TestRemoveIsIdempotent(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()

	assert.True(t, m.RemoveCatchAll(ctx, "example.com"))
	assert.True(t, m.RemoveIndividualAddresses(ctx, "example.com"))
}

func TestRemoteFailuresNeverEscape(t *testing.T) {
	m, client := newManager(t)
	client.Fail = map[string]error{"get": errors.New("throttled"), "delete": errors.New("throttled")}
	ctx := context.Background()

	res := m.ConfigureCatchAll(ctx, "example.com", target)
	assert.Equal(t, SyncError, res.Status)
	assert.False(t, res.OK())
	assert.EqualError(t, res.Err, "throttled")

	assert.False(t, m.RemoveCatchAll(ctx, "example.com"))

	empty := m.ConfigureIndividualAddresses(ctx, "example.com", nil, target)
	assert.Equal(t, SyncError, empty.Status)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.metrics.RuleSyncs("catch_all", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.RuleSyncs("individual", "error")))
}

func TestRestoreCountsActiveAddresses(t *testing.T) {
	m, client := newManager(t)
	ctx := context.Background()
	active := []string{"a@example.com", "b@example.com", "c@example.com"}

	m.ConfigureIndividualAddresses(ctx, "example.com", active, target)
	require.True(t, m.RemoveIndividualAddresses(ctx, "example.com"))
	m.ConfigureCatchAll(ctx, "example.com", target)

	require.True(t, m.RemoveCatchAll(ctx, "example.com"))
	res := m.RestoreIndividualEmailRules(ctx, "example.com", active, target)

	assert.Equal(t, SyncCreated, res.Status)
	assert.Equal(t, len(active), res.RestoredCount)
	assert.Equal(t, active, client.Rules()["example.com-individual"].Recipients)
}

func TestRestoreFailureRestoresNothing(t *testing.T) {
	m, client := newManager(t)
	client.Fail = map[string]error{"create": errors.New("limit exceeded")}

	res := m.RestoreIndividualEmailRules(context.Background(), "example.com", []string{"a@example.com"}, target)
	assert.Equal(t, SyncError, res.Status)
	assert.Zero(t, res.RestoredCount)
}

func TestRuleNameLength(t *testing.T) {
	long := strings.Repeat("a", 60) + ".example.com"

	name := CatchAllRuleName(long)
	assert.LessOrEqual(t, len(name), maxRuleNameLength)
	assert.True(t, strings.HasSuffix(name, "-catch-all"))
	assert.Equal(t, name, CatchAllRuleName(long))
	assert.NotEqual(t, name, IndividualRuleName(long))
}

func addresses(n int) []string {
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, fmt.Sprintf("user%03d@example.com", i))
	}
	return out
}

func TestConfigureIndividualSplitsLargeLists(t *testing.T) {
	m, client := newManager(t)
	ctx := context.Background()

	res := m.ConfigureIndividualAddresses(ctx, "example.com", addresses(150), target)
	require.True(t, res.OK(), res.Err)
	assert.Equal(t, SyncCreated, res.Status)
	assert.Equal(t, "example.com-individual", res.RuleName)

	rules := client.Rules()
	require.Len(t, rules, 2)
	assert.Len(t, rules["example.com-individual"].Recipients, MaxRecipientsPerRule)
	assert.Len(t, rules["example.com-individual-2"].Recipients, 50)
	assert.Equal(t, "user100@example.com", rules["example.com-individual-2"].Recipients[0])

	restored := m.RestoreIndividualEmailRules(ctx, "example.com", addresses(250), target)
	require.True(t, restored.OK())
	assert.Equal(t, 250, restored.RestoredCount)
	assert.Len(t, client.Rules(), 3)

	shrunk := m.ConfigureIndividualAddresses(ctx, "example.com", addresses(40), target)
	require.True(t, shrunk.OK())
	rules = client.Rules()
	require.Len(t, rules, 1)
	assert.Len(t, rules["example.com-individual"].Recipients, 40)

	m.ConfigureIndividualAddresses(ctx, "example.com", addresses(201), target)
	require.Len(t, client.Rules(), 3)
	assert.True(t, m.RemoveIndividualAddresses(ctx, "example.com"))
	assert.Empty(t, client.Rules())
}

func TestSurplusRuleRemovalFailureIsReported(t *testing.T) {
	m, client := newManager(t)
	ctx := context.Background()

	m.ConfigureIndividualAddresses(ctx, "example.com", addresses(150), target)
	client.Fail = map[string]error{"delete": errors.New("throttled")}

	res := m.ConfigureIndividualAddresses(ctx, "example.com", addresses(10), target)
	assert.Equal(t, SyncError, res.Status)
	assert.Contains(t, client.Rules(), "example.com-individual-2")
}

func TestChunkRuleNames(t *testing.T) {
	assert.Equal(t, IndividualRuleName("example.com"), IndividualChunkRuleName("example.com", 1))
	assert.Equal(t, "example.com-individual-3", IndividualChunkRuleName("example.com", 3))

	long := strings.Repeat("a", 60) + ".example.com"
	name := IndividualChunkRuleName(long, 12)
	assert.LessOrEqual(t, len(name), maxRuleNameLength)
	assert.True(t, strings.HasSuffix(name, "-individual-12"))
}
