package funnel

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/rationly/rationbot/internal/domain"
)

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	return db, mock, func() { db.Close() }
}

func TestUsersOnlyStarted(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT u.user_id").
		WithArgs(int64(86400)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(101).AddRow(102))

	store := NewStore(db)
	ids, err := store.UsersOnlyStarted(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatalf("UsersOnlyStarted() error: %v", err)
	}
	if len(ids) != 2 || ids[0] != 101 || ids[1] != 102 {
		t.Errorf("UsersOnlyStarted() = %v, want [101 102]", ids)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestUsersOnlyStarted_ScanErrorFailsBatch(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	// a malformed row must fail the whole batch, not silently shrink it
	mock.ExpectQuery("SELECT u.user_id").
		WithArgs(int64(86400)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(101).AddRow("not-an-id"))

	store := NewStore(db)
	ids, err := store.UsersOnlyStarted(context.Background(), 24*time.Hour)
	if err == nil {
		t.Fatalf("UsersOnlyStarted() = %v, want scan error", ids)
	}
	if ids != nil {
		t.Errorf("UsersOnlyStarted() returned partial batch %v alongside error", ids)
	}
}

func TestEligibleForTrigger_WindowSeconds(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	// trigger=rejected, delay=24h must query with an 86400s window
	mock.ExpectQuery("payment_rejected").
		WithArgs(int64(86400)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(7))

	store := NewStore(db)
	ids, err := store.EligibleForTrigger(context.Background(), domain.TriggerPaymentRejected, 24)
	if err != nil {
		t.Fatalf("EligibleForTrigger() error: %v", err)
	}
	if len(ids) != 1 || ids[0] != 7 {
		t.Errorf("EligibleForTrigger() = %v, want [7]", ids)
	}
}

func TestEligibleForTrigger_Unknown(t *testing.T) {
	db, _, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewStore(db)
	if _, err := store.EligibleForTrigger(context.Background(), domain.TriggerType("bogus"), 1); err == nil {
		t.Error("EligibleForTrigger() with unknown trigger should error")
	}
}

func TestAudienceUsers(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT user_id FROM users").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(1).AddRow(2).AddRow(3))

	store := NewStore(db)
	ids, err := store.AudienceUsers(context.Background(), domain.AudienceAll)
	if err != nil {
		t.Fatalf("AudienceUsers() error: %v", err)
	}
	if len(ids) != 3 {
		t.Errorf("AudienceUsers(all) returned %d users, want 3", len(ids))
	}

	if _, err := store.AudienceUsers(context.Background(), domain.Audience("nope")); err == nil {
		t.Error("AudienceUsers() with unknown audience should error")
	}
}

func TestFunnelCounts(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("FROM users u").
		WillReturnRows(sqlmock.NewRows([]string{"total", "paid", "only_started", "no_screen", "rejected"}).
			AddRow(200, 50, 80, 20, 10))

	store := NewStore(db)
	c, err := store.FunnelCounts(context.Background())
	if err != nil {
		t.Fatalf("FunnelCounts() error: %v", err)
	}
	if c.TotalUsers != 200 || c.Paid != 50 {
		t.Errorf("FunnelCounts() = %+v", c)
	}
	if got := c.ConversionPercent(); got != 25.0 {
		t.Errorf("ConversionPercent() = %v, want 25", got)
	}
}

func TestConversionPercent_EmptyFunnel(t *testing.T) {
	var c Counts
	if got := c.ConversionPercent(); got != 0 {
		t.Errorf("ConversionPercent() on empty funnel = %v, want 0", got)
	}
}
