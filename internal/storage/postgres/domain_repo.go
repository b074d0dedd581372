package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/leozw/inbound-guardian/internal/core"
)

const domainColumns = `
    id, owner_id, name, status, verification_token,
    can_receive_emails, has_mx_records, routing_mode,
    catch_all_endpoint_id, catch_all_webhook_id, identity_status,
    catch_all_rule_name, individual_rule_name,
    provider_name, provider_confidence,
    last_dns_check_at, last_identity_check_at, created_at, updated_at`

type domainRow struct {
	ID                  uuid.UUID  `db:"id"`
	OwnerID             string     `db:"owner_id"`
	Name                string     `db:"name"`
	Status              string     `db:"status"`
	VerificationToken   string     `db:"verification_token"`
	CanReceiveEmails    bool       `db:"can_receive_emails"`
	HasMXRecords        bool       `db:"has_mx_records"`
	RoutingMode         string     `db:"routing_mode"`
	CatchAllEndpointID  string     `db:"catch_all_endpoint_id"`
	CatchAllWebhookID   string     `db:"catch_all_webhook_id"`
	IdentityStatus      string     `db:"identity_status"`
	CatchAllRuleName    string     `db:"catch_all_rule_name"`
	IndividualRuleName  string     `db:"individual_rule_name"`
	ProviderName        string     `db:"provider_name"`
	ProviderConfidence  string     `db:"provider_confidence"`
	LastDNSCheckAt      *time.Time `db:"last_dns_check_at"`
	LastIdentityCheckAt *time.Time `db:"last_identity_check_at"`
	CreatedAt           time.Time  `db:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at"`
}

func toDomainRow(d *core.Domain) domainRow {
	target, _ := d.Routing.CatchAllTarget()
	return domainRow{
		ID:                  d.ID,
		OwnerID:             d.OwnerID,
		Name:                d.Name,
		Status:              string(d.Status),
		VerificationToken:   d.VerificationToken,
		CanReceiveEmails:    d.CanReceiveEmails,
		HasMXRecords:        d.HasMXRecords,
		RoutingMode:         string(d.Routing.Mode()),
		CatchAllEndpointID:  target.EndpointID,
		CatchAllWebhookID:   target.WebhookID,
		IdentityStatus:      string(d.IdentityStatus),
		CatchAllRuleName:    d.CatchAllRuleName,
		IndividualRuleName:  d.IndividualRuleName,
		ProviderName:        d.ProviderName,
		ProviderConfidence:  string(d.ProviderConfidence),
		LastDNSCheckAt:      d.LastDNSCheckAt,
		LastIdentityCheckAt: d.LastIdentityCheckAt,
		CreatedAt:           d.CreatedAt,
		UpdatedAt:           d.UpdatedAt,
	}
}

func (r domainRow) toDomain() (*core.Domain, error) {
	status := core.DomainStatus(r.Status)
	if err := status.IsValid(); err != nil {
		return nil, fmt.Errorf("domain %s: %w", r.Name, err)
	}

	routing, err := core.RestoreRouting(r.RoutingMode, core.TargetRef{
		EndpointID: r.CatchAllEndpointID,
		WebhookID:  r.CatchAllWebhookID,
	})
	if err != nil {
		return nil, fmt.Errorf("domain %s: %w", r.Name, err)
	}

	return &core.Domain{
		ID:                  r.ID,
		OwnerID:             r.OwnerID,
		Name:                r.Name,
		Status:              status,
		VerificationToken:   r.VerificationToken,
		CanReceiveEmails:    r.CanReceiveEmails,
		HasMXRecords:        r.HasMXRecords,
		Routing:             routing,
		IdentityStatus:      core.IdentityStatus(r.IdentityStatus),
		CatchAllRuleName:    r.CatchAllRuleName,
		IndividualRuleName:  r.IndividualRuleName,
		ProviderName:        r.ProviderName,
		ProviderConfidence:  core.Confidence(r.ProviderConfidence),
		LastDNSCheckAt:      r.LastDNSCheckAt,
		LastIdentityCheckAt: r.LastIdentityCheckAt,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}, nil
}

// CreateDomain inserts the domain and its planned records in one transaction.
func (db *DB) CreateDomain(ctx context.Context, domain *core.Domain, records []*core.DNSRecord) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
        INSERT INTO domains (` + domainColumns + `
        ) VALUES (
            :id, :owner_id, :name, :status, :verification_token,
            :can_receive_emails, :has_mx_records, :routing_mode,
            :catch_all_endpoint_id, :catch_all_webhook_id, :identity_status,
            :catch_all_rule_name, :individual_rule_name,
            :provider_name, :provider_confidence,
            :last_dns_check_at, :last_identity_check_at, :created_at, :updated_at
        )`

	if _, err := tx.NamedExecContext(ctx, query, toDomainRow(domain)); err != nil {
		return translate(err)
	}

	for _, rec := range records {
		rec.DomainID = domain.ID
		if _, err := tx.NamedExecContext(ctx, insertRecordQuery, rec); err != nil {
			return translate(err)
		}
	}

	return tx.Commit()
}

func (db *DB) GetDomain(ctx context.Context, id uuid.UUID) (*core.Domain, error) {
	var row domainRow
	query := `SELECT ` + domainColumns + ` FROM domains WHERE id = $1`
	if err := db.GetContext(ctx, &row, query, id); err != nil {
		return nil, translate(err)
	}
	return row.toDomain()
}

func (db *DB) GetDomainByName(ctx context.Context, name string) (*core.Domain, error) {
	var row domainRow
	query := `SELECT ` + domainColumns + ` FROM domains WHERE name = $1`
	if err := db.GetContext(ctx, &row, query, name); err != nil {
		return nil, translate(err)
	}
	return row.toDomain()
}

func (db *DB) ListDomains(ctx context.Context, ownerID string) ([]*core.Domain, error) {
	rows := []domainRow{}
	query := `SELECT ` + domainColumns + ` FROM domains WHERE owner_id = $1 ORDER BY name`
	if err := db.SelectContext(ctx, &rows, query, ownerID); err != nil {
		return nil, err
	}

	domains := make([]*core.Domain, 0, len(rows))
	for _, r := range rows {
		d, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		domains = append(domains, d)
	}
	return domains, nil
}

func (db *DB) UpdateDomain(ctx context.Context, domain *core.Domain) error {
	query := `
        UPDATE domains SET
            status = :status,
            verification_token = :verification_token,
            can_receive_emails = :can_receive_emails,
            has_mx_records = :has_mx_records,
            routing_mode = :routing_mode,
            catch_all_endpoint_id = :catch_all_endpoint_id,
            catch_all_webhook_id = :catch_all_webhook_id,
            identity_status = :identity_status,
            catch_all_rule_name = :catch_all_rule_name,
            individual_rule_name = :individual_rule_name,
            provider_name = :provider_name,
            provider_confidence = :provider_confidence,
            last_dns_check_at = :last_dns_check_at,
            last_identity_check_at = :last_identity_check_at,
            updated_at = :updated_at
        WHERE id = :id`

	return expectOne(db.NamedExecContext(ctx, query, toDomainRow(domain)))
}

// DeleteDomain relies on ON DELETE CASCADE for records and addresses.
func (db *DB) DeleteDomain(ctx context.Context, id uuid.UUID) error {
	return expectOne(db.ExecContext(ctx, `DELETE FROM domains WHERE id = $1`, id))
}

const insertRecordQuery = `
    INSERT INTO dns_records (
        id, domain_id, type, name, value, priority, purpose,
        required, match_value, verified, last_checked_at, created_at
    ) VALUES (
        :id, :domain_id, :type, :name, :value, :priority, :purpose,
        :required, :match_value, :verified, :last_checked_at, :created_at
    )`

func (db *DB) ListRecords(ctx context.Context, domainID uuid.UUID) ([]*core.DNSRecord, error) {
	records := []*core.DNSRecord{}
	query := `
        SELECT id, domain_id, type, name, value, priority, purpose,
               required, match_value, verified, last_checked_at, created_at
        FROM dns_records
        WHERE domain_id = $1
        ORDER BY created_at, required DESC, type, name`

	if err := db.SelectContext(ctx, &records, query, domainID); err != nil {
		return nil, err
	}
	for _, rec := range records {
		if err := rec.Type.IsValid(); err != nil {
			return nil, fmt.Errorf("dns record %s: %w", rec.ID, err)
		}
	}
	return records, nil
}

func (db *DB) UpdateRecord(ctx context.Context, record *core.DNSRecord) error {
	query := `
        UPDATE dns_records SET
            value = :value,
            verified = :verified,
            last_checked_at = :last_checked_at
        WHERE id = :id`

	return expectOne(db.NamedExecContext(ctx, query, record))
}
