package followup

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/rationly/rationbot/internal/domain"
	"github.com/rationly/rationbot/internal/telegram"
)

type fakeSender struct {
	sent []int64
	err  error
}

func (f *fakeSender) SendMessage(ctx context.Context, userID int64, content string, buttons ...telegram.Button) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, userID)
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

func dueRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "message_type", "paid_main"})
}

func TestRunDispatch_SendsAndMarksSent(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("FROM followup_messages f").
		WillReturnRows(dueRows().AddRow(1, 100, "only_start", false))
	mock.ExpectExec("UPDATE followup_messages SET status").
		WithArgs(domain.FollowupSent, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	sender := &fakeSender{}
	s := NewScheduler(db, sender, Options{})
	s.runDispatch(context.Background())

	if len(sender.sent) != 1 || sender.sent[0] != 100 {
		t.Errorf("sent = %v, want [100]", sender.sent)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRunDispatch_CancelsPaidUserWithoutSending(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("FROM followup_messages f").
		WillReturnRows(dueRows().AddRow(2, 200, "clicked_payment", true))
	mock.ExpectExec("UPDATE followup_messages SET status").
		WithArgs(domain.FollowupCancelled, int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	sender := &fakeSender{}
	s := NewScheduler(db, sender, Options{})
	s.runDispatch(context.Background())

	if len(sender.sent) != 0 {
		t.Errorf("paid user must not receive a reminder, sent = %v", sender.sent)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRunDispatch_SendFailureIsTerminal(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("FROM followup_messages f").
		WillReturnRows(dueRows().AddRow(3, 300, "only_start", false))
	mock.ExpectExec("UPDATE followup_messages SET status").
		WithArgs(domain.FollowupFailed, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	sender := &fakeSender{err: errors.New("telegram: 403 blocked")}
	s := NewScheduler(db, sender, Options{})
	s.runDispatch(context.Background())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRunDiscovery_DuplicateIsSilent(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT u.user_id").
		WithArgs(int64(86400)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(100))
	mock.ExpectExec("INSERT INTO followup_messages").
		WithArgs(int64(100), domain.FollowupOnlyStart, sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectQuery("payment_button_clicked").
		WithArgs(int64(7200)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))

	s := NewScheduler(db, &fakeSender{}, Options{})
	s.runDiscovery(context.Background())

	if got := s.scheduled; got != 0 {
		t.Errorf("scheduled = %d, want 0 for a duplicate booking", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRunDiscovery_BooksBothTypes(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT u.user_id").
		WithArgs(int64(86400)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(10))
	mock.ExpectExec("INSERT INTO followup_messages").
		WithArgs(int64(10), domain.FollowupOnlyStart, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("payment_button_clicked").
		WithArgs(int64(7200)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(20))
	mock.ExpectExec("INSERT INTO followup_messages").
		WithArgs(int64(20), domain.FollowupClickedPayment, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(2, 1))

	s := NewScheduler(db, &fakeSender{}, Options{})
	s.runDiscovery(context.Background())

	if got := s.scheduled; got != 2 {
		t.Errorf("scheduled = %d, want 2", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestJitterWithinBounds(t *testing.T) {
	for i := 0; i < 100; i++ {
		d := jitter(time.Hour, 3*time.Hour)
		if d < time.Hour || d >= 3*time.Hour {
			t.Fatalf("jitter() = %v, want [1h, 3h)", d)
		}
	}
}

func TestCancelPendingForUser(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("UPDATE followup_messages SET status = 'cancelled'").
		WithArgs(int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	store := NewStore(db)
	n, err := store.CancelPendingForUser(context.Background(), 42)
	if err != nil {
		t.Fatalf("CancelPendingForUser() error: %v", err)
	}
	if n != 2 {
		t.Errorf("CancelPendingForUser() = %d, want 2", n)
	}
}

func TestRandomMessage_UnknownType(t *testing.T) {
	if got := RandomMessage(domain.FollowupType("bogus")); got != "" {
		t.Errorf("RandomMessage(unknown) = %q, want empty", got)
	}
}
