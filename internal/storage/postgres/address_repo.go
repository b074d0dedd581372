package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/leozw/inbound-guardian/internal/core"
)

const addressColumns = `
    id, domain_id, address, endpoint_id, webhook_id,
    active, rule_configured, rule_name, created_at, updated_at`

type addressRow struct {
	ID             uuid.UUID `db:"id"`
	DomainID       uuid.UUID `db:"domain_id"`
	Address        string    `db:"address"`
	EndpointID     string    `db:"endpoint_id"`
	WebhookID      string    `db:"webhook_id"`
	Active         bool      `db:"active"`
	RuleConfigured bool      `db:"rule_configured"`
	RuleName       string    `db:"rule_name"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

func toAddressRow(a *core.EmailAddress) addressRow {
	return addressRow{
		ID:             a.ID,
		DomainID:       a.DomainID,
		Address:        a.Address,
		EndpointID:     a.Target.EndpointID,
		WebhookID:      a.Target.WebhookID,
		Active:         a.Active,
		RuleConfigured: a.RuleConfigured,
		RuleName:       a.RuleName,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

func (r addressRow) toAddress() *core.EmailAddress {
	return &core.EmailAddress{
		ID:             r.ID,
		DomainID:       r.DomainID,
		Address:        r.Address,
		Target:         core.TargetRef{EndpointID: r.EndpointID, WebhookID: r.WebhookID},
		Active:         r.Active,
		RuleConfigured: r.RuleConfigured,
		RuleName:       r.RuleName,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func (db *DB) CreateAddress(ctx context.Context, address *core.EmailAddress) error {
	query := `
        INSERT INTO email_addresses (` + addressColumns + `
        ) VALUES (
            :id, :domain_id, :address, :endpoint_id, :webhook_id,
            :active, :rule_configured, :rule_name, :created_at, :updated_at
        )`

	_, err := db.NamedExecContext(ctx, query, toAddressRow(address))
	return translate(err)
}

func (db *DB) GetAddress(ctx context.Context, id uuid.UUID) (*core.EmailAddress, error) {
	var row addressRow
	query := `SELECT ` + addressColumns + ` FROM email_addresses WHERE id = $1`
	if err := db.GetContext(ctx, &row, query, id); err != nil {
		return nil, translate(err)
	}
	return row.toAddress(), nil
}

func (db *DB) GetAddressByAddress(ctx context.Context, address string) (*core.EmailAddress, error) {
	var row addressRow
	query := `SELECT ` + addressColumns + ` FROM email_addresses WHERE address = $1`
	if err := db.GetContext(ctx, &row, query, address); err != nil {
		return nil, translate(err)
	}
	return row.toAddress(), nil
}

func (db *DB) ListAddresses(ctx context.Context, domainID uuid.UUID) ([]*core.EmailAddress, error) {
	rows := []addressRow{}
	query := `SELECT ` + addressColumns + ` FROM email_addresses WHERE domain_id = $1 ORDER BY address`
	if err := db.SelectContext(ctx, &rows, query, domainID); err != nil {
		return nil, err
	}

	addresses := make([]*core.EmailAddress, 0, len(rows))
	for _, r := range rows {
		addresses = append(addresses, r.toAddress())
	}
	return addresses, nil
}

func (db *DB) UpdateAddress(ctx context.Context, address *core.EmailAddress) error {
	query := `
        UPDATE email_addresses SET
            endpoint_id = :endpoint_id,
            webhook_id = :webhook_id,
            active = :active,
            rule_configured = :rule_configured,
            rule_name = :rule_name,
            updated_at = :updated_at
        WHERE id = :id`

	return expectOne(db.NamedExecContext(ctx, query, toAddressRow(address)))
}

func (db *DB) DeleteAddress(ctx context.Context, id uuid.UUID) error {
	return expectOne(db.ExecContext(ctx, `DELETE FROM email_addresses WHERE id = $1`, id))
}
