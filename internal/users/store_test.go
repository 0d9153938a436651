package users

import (
	"context"
	"database/sql"
	"testing"

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

func TestUpsert(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO users").
		WithArgs(int64(1), "anna", "Anna").
		WillReturnResult(sqlmock.NewResult(1, 1))

	store := NewStore(db)
	if err := store.Upsert(context.Background(), 1, "anna", "Anna"); err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPaidColumn(t *testing.T) {
	cases := map[domain.Product]string{
		domain.ProductMain:   "paid_main",
		domain.ProductFMD:    "paid_fmd",
		domain.ProductBundle: "paid_bundle",
		domain.ProductDry:    "paid_dry",
	}
	for p, want := range cases {
		got, err := paidColumn(p)
		if err != nil || got != want {
			t.Errorf("paidColumn(%s) = %q, %v; want %q", p, got, err, want)
		}
	}
	if _, err := paidColumn(domain.Product("vip")); err == nil {
		t.Error("paidColumn(unknown) should error")
	}
}

func TestRequestedColumn(t *testing.T) {
	got, err := requestedColumn(domain.ProductFMD)
	if err != nil || got != "payment_requested_fmd" {
		t.Errorf("requestedColumn(fmd) = %q, %v", got, err)
	}
}

func TestHasPaid_UnknownUser(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT paid_main FROM users").
		WithArgs(int64(404)).
		WillReturnError(sql.ErrNoRows)

	store := NewStore(db)
	paid, err := store.HasPaid(context.Background(), 404, domain.ProductMain)
	if err != nil {
		t.Fatalf("HasPaid() error: %v", err)
	}
	if paid {
		t.Error("HasPaid() for an unknown user = true, want false")
	}
}
