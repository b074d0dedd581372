package ses

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/leozw/inbound-guardian/internal/core"
	"github.com/leozw/inbound-guardian/internal/receipt"
)

const (
	endpointKeyPrefix = "endpoint-"
	webhookKeyPrefix  = "webhook-"
	storeOnlyKey      = "store"
)

func targetKey(t core.TargetRef) string {
	switch {
	case t.EndpointID != "":
		return endpointKeyPrefix + t.EndpointID
	case t.WebhookID != "":
		return webhookKeyPrefix + t.WebhookID
	default:
		return storeOnlyKey
	}
}

func parseTargetKey(key string) core.TargetRef {
	switch {
	case strings.HasPrefix(key, endpointKeyPrefix):
		return core.TargetRef{EndpointID: strings.TrimPrefix(key, endpointKeyPrefix)}
	case strings.HasPrefix(key, webhookKeyPrefix):
		return core.TargetRef{WebhookID: strings.TrimPrefix(key, webhookKeyPrefix)}
	default:
		return core.TargetRef{}
	}
}

func (c *Client) toReceiptRule(rule receipt.Rule) *types.ReceiptRule {
	s3 := &types.S3Action{
		BucketName:      aws.String(c.opts.S3Bucket),
		ObjectKeyPrefix: aws.String(c.objectPrefix(rule.Domain, targetKey(rule.Target))),
	}
	if c.opts.SNSTopicARN != "" {
		s3.TopicArn = aws.String(c.opts.SNSTopicARN)
	}

	return &types.ReceiptRule{
		Name:        aws.String(rule.Name),
		Enabled:     true,
		ScanEnabled: true,
		TlsPolicy:   types.TlsPolicyOptional,
		Recipients:  rule.Recipients,
		Actions:     []types.ReceiptAction{{S3Action: s3}},
	}
}

func (c *Client) fromReceiptRule(r *types.ReceiptRule) *receipt.Rule {
	rule := &receipt.Rule{
		Name:       aws.ToString(r.Name),
		Recipients: r.Recipients,
	}

	for _, action := range r.Actions {
		if action.S3Action == nil {
			continue
		}
		key := strings.TrimPrefix(aws.ToString(action.S3Action.ObjectKeyPrefix), c.basePrefix())
		parts := strings.Split(strings.TrimSuffix(key, "/"), "/")
		if len(parts) == 2 {
			rule.Domain = parts[0]
			rule.Target = parseTargetKey(parts[1])
		}
	}

	return rule
}

func (c *Client) GetRule(ctx context.Context, name string) (*receipt.Rule, error) {
	if c.opts.RuleSetName == "" {
		return nil, errMissingRuleSet
	}

	out, err := c.receipt.DescribeReceiptRule(ctx, &ses.DescribeReceiptRuleInput{
		RuleSetName: aws.String(c.opts.RuleSetName),
		RuleName:    aws.String(name),
	})
	if err != nil {
		var notFound *types.RuleDoesNotExistException
		if errors.As(err, &notFound) {
			return nil, receipt.ErrRuleNotFound
		}
		return nil, fmt.Errorf("describe receipt rule %s: %w", name, err)
	}
	if out.Rule == nil {
		return nil, receipt.ErrRuleNotFound
	}

	return c.fromReceiptRule(out.Rule), nil
}

func (c *Client) CreateRule(ctx context.Context, rule receipt.Rule) error {
	if c.opts.RuleSetName == "" {
		return errMissingRuleSet
	}
	if len(rule.Recipients) > receipt.MaxRecipientsPerRule {
		return fmt.Errorf("create receipt rule %s: %w", rule.Name, receipt.ErrTooManyRecipients)
	}

	_, err := c.receipt.CreateReceiptRule(ctx, &ses.CreateReceiptRuleInput{
		RuleSetName: aws.String(c.opts.RuleSetName),
		Rule:        c.toReceiptRule(rule),
	})
	if err != nil {
		return fmt.Errorf("create receipt rule %s: %w", rule.Name, err)
	}
	return nil
}

func (c *Client) UpdateRule(ctx context.Context, rule receipt.Rule) error {
	if c.opts.RuleSetName == "" {
		return errMissingRuleSet
	}
	if len(rule.Recipients) > receipt.MaxRecipientsPerRule {
		return fmt.Errorf("update receipt rule %s: %w", rule.Name, receipt.ErrTooManyRecipients)
	}

	_, err := c.receipt.UpdateReceiptRule(ctx, &ses.UpdateReceiptRuleInput{
		RuleSetName: aws.String(c.opts.RuleSetName),
		Rule:        c.toReceiptRule(rule),
	})
	if err != nil {
		var notFound *types.RuleDoesNotExistException
		if errors.As(err, &notFound) {
			return receipt.ErrRuleNotFound
		}
		return fmt.Errorf("update receipt rule %s: %w", rule.Name, err)
	}
	return nil
}

func (c *Client) DeleteRule(ctx context.Context, name string) error {
	if c.opts.RuleSetName == "" {
		return errMissingRuleSet
	}

	_, err := c.receipt.DeleteReceiptRule(ctx, &ses.DeleteReceiptRuleInput{
		RuleSetName: aws.String(c.opts.RuleSetName),
		RuleName:    aws.String(name),
	})
	if err != nil {
		var notFound *types.RuleDoesNotExistException
		if errors.As(err, &notFound) {
			return receipt.ErrRuleNotFound
		}
		return fmt.Errorf("delete receipt rule %s: %w", name, err)
	}
	return nil
}
