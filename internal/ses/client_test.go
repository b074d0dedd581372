package ses

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	v2types "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/leozw/inbound-guardian/internal/core"
	"github.com/leozw/inbound-guardian/internal/metrics"
	"github.com/leozw/inbound-guardian/internal/receipt"
)

type fakeSES struct {
	rules      map[string]types.ReceiptRule
	identities map[string]types.VerificationStatus
	batches    [][]string
	deleteErr  error
}

func newFakeSES() *fakeSES {
	return &fakeSES{
		rules:      map[string]types.ReceiptRule{},
		identities: map[string]types.VerificationStatus{},
	}
}

func ruleMissing() error {
	return &types.RuleDoesNotExistException{Message: aws.String("rule does not exist")}
}

func (f *fakeSES) CreateReceiptRule(ctx context.Context, in *ses.CreateReceiptRuleInput, _ ...func(*ses.Options)) (*ses.CreateReceiptRuleOutput, error) {
	f.rules[aws.ToString(in.Rule.Name)] = *in.Rule
	return &ses.CreateReceiptRuleOutput{}, nil
}

func (f *fakeSES) UpdateReceiptRule(ctx context.Context, in *ses.UpdateReceiptRuleInput, _ ...func(*ses.Options)) (*ses.UpdateReceiptRuleOutput, error) {
	name := aws.ToString(in.Rule.Name)
	if _, ok := f.rules[name]; !ok {
		return nil, ruleMissing()
	}
	f.rules[name] = *in.Rule
	return &ses.UpdateReceiptRuleOutput{}, nil
}

func (f *fakeSES) DescribeReceiptRule(ctx context.Context, in *ses.DescribeReceiptRuleInput, _ ...func(*ses.Options)) (*ses.DescribeReceiptRuleOutput, error) {
	rule, ok := f.rules[aws.ToString(in.RuleName)]
	if !ok {
		return nil, ruleMissing()
	}
	return &ses.DescribeReceiptRuleOutput{Rule: &rule}, nil
}

func (f *fakeSES) DeleteReceiptRule(ctx context.Context, in *ses.DeleteReceiptRuleInput, _ ...func(*ses.Options)) (*ses.DeleteReceiptRuleOutput, error) {
	name := aws.ToString(in.RuleName)
	if _, ok := f.rules[name]; !ok {
		return nil, ruleMissing()
	}
	delete(f.rules, name)
	return &ses.DeleteReceiptRuleOutput{}, nil
}

func (f *fakeSES) VerifyDomainIdentity(ctx context.Context, in *ses.VerifyDomainIdentityInput, _ ...func(*ses.Options)) (*ses.VerifyDomainIdentityOutput, error) {
	domain := aws.ToString(in.Domain)
	f.identities[domain] = types.VerificationStatusPending
	return &ses.VerifyDomainIdentityOutput{VerificationToken: aws.String("token-for-" + domain)}, nil
}

func (f *fakeSES) GetIdentityVerificationAttributes(ctx context.Context, in *ses.GetIdentityVerificationAttributesInput, _ ...func(*ses.Options)) (*ses.GetIdentityVerificationAttributesOutput, error) {
	f.batches = append(f.batches, in.Identities)
	attrs := map[string]types.IdentityVerificationAttributes{}
	for _, id := range in.Identities {
		if status, ok := f.identities[id]; ok {
			attrs[id] = types.IdentityVerificationAttributes{VerificationStatus: status}
		}
	}
	return &ses.GetIdentityVerificationAttributesOutput{VerificationAttributes: attrs}, nil
}

func (f *fakeSES) DeleteIdentity(ctx context.Context, in *ses.DeleteIdentityInput, _ ...func(*ses.Options)) (*ses.DeleteIdentityOutput, error) {
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	delete(f.identities, aws.ToString(in.Identity))
	return &ses.DeleteIdentityOutput{}, nil
}

type fakeSESv2 struct {
	tokens map[string][]string
}

func (f *fakeSESv2) GetEmailIdentity(ctx context.Context, in *sesv2.GetEmailIdentityInput, _ ...func(*sesv2.Options)) (*sesv2.GetEmailIdentityOutput, error) {
	tokens, ok := f.tokens[aws.ToString(in.EmailIdentity)]
	if !ok {
		return nil, &v2types.NotFoundException{Message: aws.String("identity not found")}
	}
	return &sesv2.GetEmailIdentityOutput{DkimAttributes: &v2types.DkimAttributes{Tokens: tokens}}, nil
}

func newTestClient(api *fakeSES, v2 IdentityAPI) *Client {
	opts := Options{RuleSetName: "inbound-rules", S3Bucket: "mail-bucket", S3Prefix: "inbound", SNSTopicARN: "arn:aws:sns:us-east-1:1:inbound"}
	return New(api, v2, opts, metrics.NewCollector(prometheus.NewRegistry()), zap.NewNop())
}

func TestRuleRoundTrip(t *testing.T) {
	api := newFakeSES()
	c := newTestClient(api, nil)
	ctx := context.Background()

	_, err := c.GetRule(ctx, "example.com-individual")
	require.ErrorIs(t, err, receipt.ErrRuleNotFound)

	rule := receipt.Rule{
		Name:       "example.com-individual",
		Domain:     "example.com",
		Recipients: []string{"a@example.com"},
		Target:     core.TargetRef{EndpointID: "ep-9"},
	}
	require.NoError(t, c.CreateRule(ctx, rule))

	stored := api.rules["example.com-individual"]
	assert.True(t, stored.Enabled)
	require.Len(t, stored.Actions, 1)
	assert.Equal(t, "mail-bucket", aws.ToString(stored.Actions[0].S3Action.BucketName))
	assert.Equal(t, "inbound/example.com/endpoint-ep-9/", aws.ToString(stored.Actions[0].S3Action.ObjectKeyPrefix))

	got, err := c.GetRule(ctx, rule.Name)
	require.NoError(t, err)
	assert.Equal(t, rule, *got)
}

func TestManagerAgainstSES(t *testing.T) {
	api := newFakeSES()
	c := newTestClient(api, nil)
	m := receipt.NewManager(c, nil, zap.NewNop())
	ctx := context.Background()
	target := core.TargetRef{WebhookID: "wh-1"}

	first := m.ConfigureIndividualAddresses(ctx, "example.com", []string{"a@example.com"}, target)
	second := m.ConfigureIndividualAddresses(ctx, "example.com", []string{"a@example.com"}, target)

	assert.Equal(t, receipt.SyncCreated, first.Status)
	assert.Equal(t, receipt.SyncUpdated, second.Status)
	assert.Len(t, api.rules, 1)

	assert.True(t, m.RemoveIndividualAddresses(ctx, "example.com"))
	assert.True(t, m.RemoveIndividualAddresses(ctx, "example.com"))
	assert.Empty(t, api.rules)
}

func TestRuleRecipientCap(t *testing.T) {
	api := newFakeSES()
	c := newTestClient(api, nil)

	recipients := make([]string, receipt.MaxRecipientsPerRule+1)
	for i := range recipients {
		recipients[i] = fmt.Sprintf("u%d@example.com", i)
	}
	err := c.CreateRule(context.Background(), receipt.Rule{Name: "example.com-individual", Domain: "example.com", Recipients: recipients})
	assert.ErrorIs(t, err, receipt.ErrTooManyRecipients)
	assert.Empty(t, api.rules)

	m := receipt.NewManager(c, nil, zap.NewNop())
	res := m.ConfigureIndividualAddresses(context.Background(), "example.com", recipients, core.TargetRef{})
	require.True(t, res.OK(), res.Err)
	assert.Len(t, api.rules, 2)
}

func TestDeleteMissingRule(t *testing.T) {
	c := newTestClient(newFakeSES(), nil)

	err := c.DeleteRule(context.Background(), "nope")
	assert.ErrorIs(t, err, receipt.ErrRuleNotFound)
}

func TestRulesRequireRuleSet(t *testing.T) {
	c := New(newFakeSES(), nil, Options{}, nil, nil)

	_, err := c.GetRule(context.Background(), "x")
	assert.ErrorIs(t, err, errMissingRuleSet)
}

func TestVerificationStatusMapping(t *testing.T) {
	api := newFakeSES()
	api.identities["ok.com"] = types.VerificationStatusSuccess
	api.identities["bad.com"] = types.VerificationStatusFailed
	api.identities["slow.com"] = types.VerificationStatusTemporaryFailure
	api.identities["new.com"] = types.VerificationStatusNotStarted
	c := newTestClient(api, nil)

	statuses, err := c.GetVerificationStatus(context.Background(), []string{"ok.com", "bad.com", "slow.com", "new.com", "gone.com"})
	require.NoError(t, err)

	assert.Equal(t, map[string]core.IdentityStatus{
		"ok.com":   core.IdentitySuccess,
		"bad.com":  core.IdentityFailed,
		"slow.com": core.IdentityPending,
		"new.com":  core.IdentityPending,
		"gone.com": core.IdentityNotFound,
	}, statuses)
}

func TestVerificationStatusBatches(t *testing.T) {
	api := newFakeSES()
	c := newTestClient(api, nil)

	domains := make([]string, 0, 150)
	for i := 0; i < 150; i++ {
		domains = append(domains, fmt.Sprintf("d%d.example.com", i))
	}

	statuses, err := c.GetVerificationStatus(context.Background(), domains)
	require.NoError(t, err)
	assert.Len(t, statuses, 150)
	require.Len(t, api.batches, 2)
	assert.Len(t, api.batches[0], 100)
	assert.Len(t, api.batches[1], 50)
}

func TestVerifyAndDeleteIdentity(t *testing.T) {
	api := newFakeSES()
	c := newTestClient(api, nil)
	ctx := context.Background()

	token, err := c.VerifyDomain(ctx, "example.com")
	require.NoError(t, err)
	assert.Equal(t, "token-for-example.com", token)

	require.NoError(t, c.DeleteIdentity(ctx, "example.com"))
	assert.Empty(t, api.identities)

	api.deleteErr = errors.New("access denied")
	assert.Error(t, c.DeleteIdentity(ctx, "example.com"))
}

func TestDKIMTokens(t *testing.T) {
	c := newTestClient(newFakeSES(), &fakeSESv2{tokens: map[string][]string{"example.com": {"t1", "t2", "t3"}}})
	ctx := context.Background()

	tokens, err := c.DKIMTokens(ctx, "example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2", "t3"}, tokens)

	tokens, err = c.DKIMTokens(ctx, "unknown.com")
	require.NoError(t, err)
	assert.Nil(t, tokens)
}
