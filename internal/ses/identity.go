package ses

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	v2types "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"go.uber.org/zap"

	"github.com/leozw/inbound-guardian/internal/core"
)

// GetIdentityVerificationAttributes accepts at most 100 identities per call.
const maxIdentitiesPerCall = 100

// VerifyDomain registers the domain identity and returns the token the
// owner publishes at _amazonses.<domain>.
func (c *Client) VerifyDomain(ctx context.Context, domain string) (string, error) {
	out, err := c.receipt.VerifyDomainIdentity(ctx, &ses.VerifyDomainIdentityInput{
		Domain: aws.String(domain),
	})
	c.record("verify_domain", err)
	if err != nil {
		return "", fmt.Errorf("verify domain identity %s: %w", domain, err)
	}

	c.logger.Info("Registered domain identity", zap.String("domain", domain))
	return aws.ToString(out.VerificationToken), nil
}

// GetVerificationStatus returns a status for every requested domain.
// Domains SES does not know are reported as NotFound.
func (c *Client) GetVerificationStatus(ctx context.Context, domains []string) (map[string]core.IdentityStatus, error) {
	statuses := make(map[string]core.IdentityStatus, len(domains))

	for start := 0; start < len(domains); start += maxIdentitiesPerCall {
		end := min(start+maxIdentitiesPerCall, len(domains))
		batch := domains[start:end]

		out, err := c.receipt.GetIdentityVerificationAttributes(ctx, &ses.GetIdentityVerificationAttributesInput{
			Identities: batch,
		})
		c.record("get_verification_status", err)
		if err != nil {
			return nil, fmt.Errorf("get identity verification attributes: %w", err)
		}

		for _, domain := range batch {
			attrs, ok := out.VerificationAttributes[domain]
			if !ok {
				statuses[domain] = core.IdentityNotFound
				continue
			}
			statuses[domain] = mapVerificationStatus(attrs.VerificationStatus)
		}
	}

	return statuses, nil
}

func mapVerificationStatus(s types.VerificationStatus) core.IdentityStatus {
	switch s {
	case types.VerificationStatusSuccess:
		return core.IdentitySuccess
	case types.VerificationStatusFailed:
		return core.IdentityFailed
	default:
		// Pending, TemporaryFailure and NotStarted
		return core.IdentityPending
	}
}

// DeleteIdentity removes the domain identity. Deleting an identity SES does
// not know succeeds.
func (c *Client) DeleteIdentity(ctx context.Context, domain string) error {
	_, err := c.receipt.DeleteIdentity(ctx, &ses.DeleteIdentityInput{
		Identity: aws.String(domain),
	})
	c.record("delete_identity", err)
	if err != nil {
		return fmt.Errorf("delete identity %s: %w", domain, err)
	}

	c.logger.Info("Deleted domain identity", zap.String("domain", domain))
	return nil
}

// DKIMTokens returns the Easy DKIM tokens for the identity, or nil when
// the identity is not registered.
func (c *Client) DKIMTokens(ctx context.Context, domain string) ([]string, error) {
	if c.identity == nil {
		return nil, nil
	}

	out, err := c.identity.GetEmailIdentity(ctx, &sesv2.GetEmailIdentityInput{
		EmailIdentity: aws.String(domain),
	})
	if err != nil {
		var notFound *v2types.NotFoundException
		if errors.As(err, &notFound) {
			c.record("dkim_tokens", nil)
			return nil, nil
		}
		c.record("dkim_tokens", err)
		return nil, fmt.Errorf("get email identity %s: %w", domain, err)
	}
	c.record("dkim_tokens", nil)

	if out.DkimAttributes == nil {
		return nil, nil
	}
	return out.DkimAttributes.Tokens, nil
}
