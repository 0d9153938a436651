package payment

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/rationly/rationbot/internal/domain"
	"github.com/rationly/rationbot/internal/telegram"
)

type fakeSender struct {
	messages []string
	to       []int64
}

func (f *fakeSender) SendMessage(ctx context.Context, userID int64, content string, buttons ...telegram.Button) error {
	f.to = append(f.to, userID)
	f.messages = append(f.messages, content)
	return nil
}

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	return db, mock, func() { db.Close() }
}

func requestRow(id, userID int64, product, status string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "user_id", "product", "status", "admin_message_id", "created_at", "resolved_at"}).
		AddRow(id, userID, product, status, 0, time.Now(), nil)
}

func TestApprove_FansOut(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("FROM payment_requests WHERE id").
		WithArgs(int64(1)).
		WillReturnRows(requestRow(1, 100, "main", "pending"))
	mock.ExpectExec("UPDATE payment_requests").
		WithArgs(domain.PaymentApproved, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE users SET paid_main").
		WithArgs(true, int64(100)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO events").
		WithArgs(int64(100), domain.EventPaymentApproved, "main").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE followup_messages").
		WithArgs(int64(100)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE chain_user_states").
		WithArgs(int64(100)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	sender := &fakeSender{}
	svc := NewService(db, sender, -100500, 499, "card 1234")
	req, err := svc.Approve(context.Background(), 1)
	if err != nil {
		t.Fatalf("Approve() error: %v", err)
	}
	if req.Status != domain.PaymentApproved {
		t.Errorf("status = %s, want approved", req.Status)
	}
	if len(sender.to) != 1 || sender.to[0] != 100 {
		t.Errorf("notified %v, want [100]", sender.to)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestApprove_AlreadyResolved(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("FROM payment_requests WHERE id").
		WithArgs(int64(2)).
		WillReturnRows(requestRow(2, 100, "main", "approved"))
	// the status guard in the UPDATE matches no rows
	mock.ExpectExec("UPDATE payment_requests").
		WithArgs(domain.PaymentApproved, int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	sender := &fakeSender{}
	svc := NewService(db, sender, -100500, 499, "card 1234")
	_, err := svc.Approve(context.Background(), 2)
	if !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("Approve() error = %v, want ErrAlreadyResolved", err)
	}
	if len(sender.to) != 0 {
		t.Errorf("resolved request must not notify again, sent to %v", sender.to)
	}
}

func TestReject_NotifiesUser(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("FROM payment_requests WHERE id").
		WithArgs(int64(3)).
		WillReturnRows(requestRow(3, 200, "fmd", "pending"))
	mock.ExpectExec("UPDATE payment_requests").
		WithArgs(domain.PaymentRejected, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO events").
		WithArgs(int64(200), domain.EventPaymentRejected, "fmd").
		WillReturnResult(sqlmock.NewResult(1, 1))

	sender := &fakeSender{}
	svc := NewService(db, sender, -100500, 499, "card 1234")
	req, err := svc.Reject(context.Background(), 3)
	if err != nil {
		t.Fatalf("Reject() error: %v", err)
	}
	if req.Status != domain.PaymentRejected {
		t.Errorf("status = %s, want rejected", req.Status)
	}
	if len(sender.to) != 1 || sender.to[0] != 200 {
		t.Errorf("notified %v, want [200]", sender.to)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRequestPayment_ReusesOpenRequest(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("FROM payment_requests").
		WithArgs(int64(100), domain.ProductMain).
		WillReturnRows(requestRow(7, 100, "main", "pending"))

	svc := NewService(db, &fakeSender{}, -100500, 499, "card 1234")
	req, err := svc.RequestPayment(context.Background(), 100, domain.ProductMain)
	if err != nil {
		t.Fatalf("RequestPayment() error: %v", err)
	}
	if req.ID != 7 {
		t.Errorf("request id = %d, want the existing 7", req.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRequestPayment_CreatesWhenNoneOpen(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("FROM payment_requests").
		WithArgs(int64(100), domain.ProductDry).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("INSERT INTO payment_requests").
		WithArgs(int64(100), domain.ProductDry).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(8, time.Now()))
	mock.ExpectExec("UPDATE users SET payment_requested_dry").
		WithArgs(int64(100)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	svc := NewService(db, &fakeSender{}, -100500, 499, "card 1234")
	req, err := svc.RequestPayment(context.Background(), 100, domain.ProductDry)
	if err != nil {
		t.Fatalf("RequestPayment() error: %v", err)
	}
	if req.ID != 8 || req.Status != domain.PaymentPending {
		t.Errorf("request = %+v, want id 8 pending", req)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
