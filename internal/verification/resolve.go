package verification

import (
	"context"
	"errors"
	"strings"

	"github.com/leozw/inbound-guardian/internal/core"
	"github.com/leozw/inbound-guardian/internal/routing"
)

type RecipientRoute struct {
	Recipient string         `json:"recipient"`
	Domain    string         `json:"domain"`
	Known     bool           `json:"known_address"`
	Target    routing.Target `json:"target"`
}

// ResolveRecipient reports where a message for recipient would be delivered.
// Unknown addresses under a known domain fall through to the domain routing.
func (s *Service) ResolveRecipient(ctx context.Context, ownerID, recipient string) core.Result[*RecipientRoute] {
	recipient = core.NormalizeAddress(recipient)
	at := strings.LastIndexByte(recipient, '@')
	if at < 1 || at == len(recipient)-1 {
		return core.Fail[*RecipientRoute](core.ValidationError("invalid recipient %q", recipient))
	}
	name := recipient[at+1:]

	domain, err := s.store.GetDomainByName(ctx, name)
	if err != nil {
		return core.Fail[*RecipientRoute](storeError(err, "domain"))
	}
	if domain.OwnerID != ownerID {
		return core.Fail[*RecipientRoute](core.NotFoundError("domain"))
	}

	address, err := s.store.GetAddressByAddress(ctx, recipient)
	switch {
	case errors.Is(err, core.ErrNotFound):
		address = nil
	case err != nil:
		return core.Fail[*RecipientRoute](storeError(err, "email address"))
	}

	return core.OK(&RecipientRoute{
		Recipient: recipient,
		Domain:    domain.Name,
		Known:     address != nil,
		Target:    routing.Resolve(domain, address),
	})
}
