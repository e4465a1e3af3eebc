package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/atriumhq/atrium/internal/domain/dashboard"
	"github.com/atriumhq/atrium/internal/domain/message"
	"github.com/atriumhq/atrium/internal/domain/tenant"
	"github.com/atriumhq/atrium/internal/errors"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(sqlx.NewDb(db, "sqlmock")), mock
}

func TestGetTenantNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("FROM tenants").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetTenant(context.Background(), "missing")
	se := errors.GetServiceError(err)
	if se == nil || se.Code != errors.CodeNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestCreateTenantUniqueViolation(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO tenants").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "tenants_slug_key"})

	_, err := store.CreateTenant(context.Background(), tenant.Tenant{Name: "Acme", Slug: "acme"})
	se := errors.GetServiceError(err)
	if se == nil || se.Code != errors.CodeAlreadyExists {
		t.Fatalf("expected already_exists, got %v", err)
	}
	if se.Details["constraint"] != "tenants_slug_key" {
		t.Fatalf("expected constraint detail, got %v", se.Details)
	}
}

func TestCreateDeliveryForeignKeyViolation(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO message_deliveries").
		WillReturnError(&pq.Error{Code: "23503", Constraint: "message_deliveries_message_id_fkey"})

	_, err := store.CreateDelivery(context.Background(), message.Delivery{MessageID: "m1", RecipientID: "bob"})
	se := errors.GetServiceError(err)
	if se == nil || se.Code != errors.CodeInvalidInput {
		t.Fatalf("expected invalid_input, got %v", err)
	}
}

func TestMarkDispatchedMissingRow(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE notifications SET dispatched_at").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.MarkDispatched(context.Background(), "missing", time.Now())
	se := errors.GetServiceError(err)
	if se == nil || se.Code != errors.CodeNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestListCandidatesScansOrderedRows(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now().UTC()
	tenantID := "t1"
	cols := []string{
		"id", "tenant_id", "owner_id", "slug", "title", "visibility",
		"forked_from_id", "active_version_id", "created_at", "updated_at", "deleted_at",
	}
	rows := sqlmock.NewRows(cols).
		AddRow("d-user", tenantID, "alice", "home", "Mine", "user", nil, nil, now, now, nil).
		AddRow("d-fork", tenantID, nil, "home", "Fork", "tenant", "d-sys", nil, now, now, nil).
		AddRow("d-sys", nil, nil, "home", "Default", "system", nil, nil, now, now, nil)

	mock.ExpectQuery("FROM dashboards d").
		WithArgs(tenantID, "alice", "home").
		WillReturnRows(rows)

	candidates, err := store.ListCandidates(context.Background(), "home", tenantID, "alice")
	if err != nil {
		t.Fatalf("list candidates: %v", err)
	}
	if len(candidates) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(candidates))
	}
	if candidates[0].ID != "d-user" || candidates[0].Visibility != dashboard.VisibilityUser {
		t.Fatalf("unexpected first candidate: %#v", candidates[0])
	}
	if candidates[1].ForkedFromID == nil || *candidates[1].ForkedFromID != "d-sys" {
		t.Fatalf("expected fork lineage on second candidate: %#v", candidates[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateVersionNumbersAndPromotes(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(number\), 0\) \+ 1`).
		WithArgs("d1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(3))
	mock.ExpectExec("INSERT INTO dashboard_versions").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE dashboards SET active_version_id").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	v, err := store.CreateVersion(context.Background(), dashboard.Version{
		DashboardID: "d1",
		Layout:      []byte(`{"columns":12,"widgets":[]}`),
		CreatedBy:   "alice",
	})
	if err != nil {
		t.Fatalf("create version: %v", err)
	}
	if v.Number != 3 {
		t.Fatalf("expected version number 3, got %d", v.Number)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateVersionRollsBackOnMissingDashboard(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(number\), 0\) \+ 1`).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(1))
	mock.ExpectExec("INSERT INTO dashboard_versions").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE dashboards SET active_version_id").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := store.CreateVersion(context.Background(), dashboard.Version{
		DashboardID: "gone",
		Layout:      []byte(`{"columns":12,"widgets":[]}`),
	})
	se := errors.GetServiceError(err)
	if se == nil || se.Code != errors.CodeNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
