package postgres

import (
	"context"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leozw/inbound-guardian/internal/core"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return New(sqlx.NewDb(mockDB, "postgres")), mock
}

var domainCols = []string{
	"id", "owner_id", "name", "status", "verification_token",
	"can_receive_emails", "has_mx_records", "routing_mode",
	"catch_all_endpoint_id", "catch_all_webhook_id", "identity_status",
	"catch_all_rule_name", "individual_rule_name",
	"provider_name", "provider_confidence",
	"last_dns_check_at", "last_identity_check_at", "created_at", "updated_at",
}

func domainValues(id uuid.UUID, mode, endpoint string) []driver.Value {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return []driver.Value{
		id.String(), "user-1", "example.com", "verified", "tok",
		true, true, mode,
		endpoint, "", "Success",
		"example.com-catch-all", "",
		"Cloudflare", "high",
		now, nil, now, now,
	}
}

func TestGetDomainRestoresRouting(t *testing.T) {
	db, mock := newMockDB(t)
	id := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("FROM domains WHERE id = $1")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(domainCols).AddRow(domainValues(id, "catch-all", "ep-1")...))

	d, err := db.GetDomain(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, d.ID)
	assert.Equal(t, core.DomainVerified, d.Status)
	assert.Equal(t, core.IdentitySuccess, d.IdentityStatus)
	target, ok := d.Routing.CatchAllTarget()
	require.True(t, ok)
	assert.Equal(t, "ep-1", target.EndpointID)
	assert.NotNil(t, d.LastDNSCheckAt)
	assert.Nil(t, d.LastIdentityCheckAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDomainRejectsCatchAllWithoutTarget(t *testing.T) {
	db, mock := newMockDB(t)
	id := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("FROM domains WHERE id = $1")).
		WillReturnRows(sqlmock.NewRows(domainCols).AddRow(domainValues(id, "catch-all", "")...))

	_, err := db.GetDomain(context.Background(), id)
	assert.Error(t, err)
}

func TestGetDomainRejectsUnknownStatus(t *testing.T) {
	db, mock := newMockDB(t)
	id := uuid.New()
	values := domainValues(id, "individual", "")
	values[3] = "archived"

	mock.ExpectQuery(regexp.QuoteMeta("FROM domains WHERE id = $1")).
		WillReturnRows(sqlmock.NewRows(domainCols).AddRow(values...))

	_, err := db.GetDomain(context.Background(), id)
	assert.ErrorContains(t, err, `invalid domain status "archived"`)
}

var recordCols = []string{
	"id", "domain_id", "type", "name", "value", "priority", "purpose",
	"required", "match_value", "verified", "last_checked_at", "created_at",
}

func TestListRecordsValidatesType(t *testing.T) {
	db, mock := newMockDB(t)
	domainID := uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("FROM dns_records")).
		WithArgs(domainID).
		WillReturnRows(sqlmock.NewRows(recordCols).
			AddRow(uuid.NewString(), domainID.String(), "MX", "example.com", "inbound.example.net", 10, "mx", true, "", false, nil, now))

	records, err := db.ListRecords(context.Background(), domainID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, core.RecordTypeMX, records[0].Type)

	mock.ExpectQuery(regexp.QuoteMeta("FROM dns_records")).
		WithArgs(domainID).
		WillReturnRows(sqlmock.NewRows(recordCols).
			AddRow(uuid.NewString(), domainID.String(), "SRV", "example.com", "x", 0, "mx", false, "", false, nil, now))

	_, err = db.ListRecords(context.Background(), domainID)
	assert.ErrorContains(t, err, `invalid record type "SRV"`)
}

func TestGetDomainNotFound(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM domains WHERE name = $1")).
		WithArgs("missing.com").
		WillReturnRows(sqlmock.NewRows(domainCols))

	_, err := db.GetDomainByName(context.Background(), "missing.com")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestCreateDomainWritesRecordsInTransaction(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()
	domain := &core.Domain{
		ID: uuid.New(), OwnerID: "user-1", Name: "example.com",
		Status: core.DomainPending, Routing: core.IndividualRouting(),
		CreatedAt: now, UpdatedAt: now,
	}
	records := []*core.DNSRecord{
		{ID: uuid.New(), ExpectedRecord: core.ExpectedRecord{Type: core.RecordTypeTXT, Name: "_amazonses.example.com", Value: "tok", Purpose: core.PurposeVerification, Required: true}},
		{ID: uuid.New(), ExpectedRecord: core.ExpectedRecord{Type: core.RecordTypeMX, Name: "example.com", Value: "inbound", Priority: 10, Purpose: core.PurposeMX, Required: true}},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO domains")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO dns_records")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO dns_records")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, db.CreateDomain(context.Background(), domain, records))
	assert.Equal(t, domain.ID, records[1].DomainID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDomainUniqueViolation(t *testing.T) {
	db, mock := newMockDB(t)
	domain := &core.Domain{ID: uuid.New(), Name: "example.com", Routing: core.IndividualRouting()}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO domains")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "domains_name_key"})
	mock.ExpectRollback()

	err := db.CreateDomain(context.Background(), domain, nil)
	assert.ErrorIs(t, err, core.ErrAlreadyExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateDomainMissing(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE domains SET")).WillReturnResult(sqlmock.NewResult(0, 0))

	err := db.UpdateDomain(context.Background(), &core.Domain{ID: uuid.New(), Routing: core.IndividualRouting()})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestUpdateRecordPersistsValue(t *testing.T) {
	db, mock := newMockDB(t)
	checked := time.Now().UTC()
	rec := &core.DNSRecord{
		ID:             uuid.New(),
		ExpectedRecord: core.ExpectedRecord{Value: "new-token"},
		Verified:       true,
		LastCheckedAt:  &checked,
	}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE dns_records SET")).
		WithArgs("new-token", true, &checked, rec.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, db.UpdateRecord(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListAddresses(t *testing.T) {
	db, mock := newMockDB(t)
	domainID := uuid.New()
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"id", "domain_id", "address", "endpoint_id", "webhook_id",
		"active", "rule_configured", "rule_name", "created_at", "updated_at",
	}).
		AddRow(uuid.NewString(), domainID.String(), "a@example.com", "", "wh-1", true, true, "example.com-individual", now, now).
		AddRow(uuid.NewString(), domainID.String(), "b@example.com", "ep-1", "", false, false, "", now, now)

	mock.ExpectQuery(regexp.QuoteMeta("FROM email_addresses WHERE domain_id = $1")).
		WithArgs(domainID).
		WillReturnRows(rows)

	addresses, err := db.ListAddresses(context.Background(), domainID)
	require.NoError(t, err)
	require.Len(t, addresses, 2)
	assert.Equal(t, "wh-1", addresses[0].Target.WebhookID)
	assert.Equal(t, []string{"a@example.com"}, core.ActiveAddresses(addresses))
}

func TestDeleteAddressMissing(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM email_addresses")).WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, db.DeleteAddress(context.Background(), uuid.New()), core.ErrNotFound)
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrations.ReadDir("migrations")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
