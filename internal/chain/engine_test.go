package chain

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

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

func testEngine(db *sql.DB, sender Sender) *Engine {
	return NewEngine(db, sender, Options{SendDelay: time.Nanosecond})
}

// expectChain mocks GetChain for a chain with the given steps. Every step is
// mocked with no buttons.
func expectChain(mock sqlmock.Sqlmock, chainID uuid.UUID, steps ...domain.ChainStep) {
	now := time.Now()
	mock.ExpectQuery("FROM chains WHERE id").
		WithArgs(chainID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "trigger_type", "is_active", "created_at", "updated_at"}).
			AddRow(chainID, "onboarding", "only_started", true, now, now))
	stepRows := sqlmock.NewRows([]string{"id", "chain_id", "step_order", "content", "delay_hours"})
	for _, st := range steps {
		stepRows.AddRow(st.ID, chainID, st.Order, st.Content, st.DelayHours)
	}
	mock.ExpectQuery("FROM chain_steps").
		WithArgs(chainID).
		WillReturnRows(stepRows)
	for _, st := range steps {
		mock.ExpectQuery("FROM chain_buttons").
			WithArgs(st.ID).
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "step_id", "label", "action", "target_step", "url", "command", "product", "button_order"}))
	}
}

func buttonRow(btn domain.ChainButton, chainID uuid.UUID) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "step_id", "label", "action", "target_step", "url", "command", "product", "button_order", "chain_id"}).
		AddRow(btn.ID, btn.StepID, btn.Label, btn.Action, btn.TargetStep,
			btn.URL, btn.Command, btn.Product, btn.Order, chainID)
}

func stateRow(chainID uuid.UUID, userID int64, stepID uuid.UUID, status string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"chain_id", "user_id", "current_step", "status", "next_send_at", "started_at", "updated_at"}).
		AddRow(chainID, userID, stepID, status, nil, now, now)
}

func TestLaunch_SendsFirstStepAndSkipsActiveRuns(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	chainID := uuid.New()
	step1 := domain.ChainStep{ID: uuid.New(), Order: 1, Content: "welcome", DelayHours: 12}
	expectChain(mock, chainID, step1)
	mock.ExpectQuery("SELECT user_id FROM users").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(1).AddRow(2))
	// user 1 is fresh, user 2 already has an active run
	mock.ExpectExec("INSERT INTO chain_user_states").
		WithArgs(chainID, int64(1), step1.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO chain_message_log").
		WithArgs(chainID, int64(1), step1.ID, domain.ChainLogSent, "").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO chain_user_states").
		WithArgs(chainID, int64(2), step1.ID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	sender := &fakeSender{}
	e := testEngine(db, sender)
	n, err := e.Launch(context.Background(), chainID, domain.AudienceAll)
	if err != nil {
		t.Fatalf("Launch() error: %v", err)
	}
	if n != 1 {
		t.Errorf("Launch() = %d, want 1", n)
	}
	// the first step's 12h delay does not postpone the launch send
	if len(sender.sent) != 1 || sender.sent[0] != 1 {
		t.Errorf("sent = %v, want [1]", sender.sent)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRunTick_DeliversDueStepAndLeavesCursor(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	chainID := uuid.New()
	step2 := domain.ChainStep{ID: uuid.New(), Order: 2, Content: "day two", DelayHours: 24}
	mock.ExpectQuery("FROM chain_user_states s").
		WillReturnRows(stateRow(chainID, 7, step2.ID, "active"))
	expectChain(mock, chainID, step2)
	mock.ExpectExec("UPDATE chain_user_states SET next_send_at = NULL").
		WithArgs(chainID, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO chain_message_log").
		WithArgs(chainID, int64(7), step2.ID, domain.ChainLogSent, "").
		WillReturnResult(sqlmock.NewResult(1, 1))

	sender := &fakeSender{}
	e := testEngine(db, sender)
	e.runTick(context.Background())

	if len(sender.sent) != 1 || sender.sent[0] != 7 {
		t.Errorf("sent = %v, want [7]", sender.sent)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestHandleButton_AdvanceToDelayedStepDefersSend(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	chainID := uuid.New()
	step1 := domain.ChainStep{ID: uuid.New(), Order: 1, Content: "one"}
	step2 := domain.ChainStep{ID: uuid.New(), Order: 2, Content: "two", DelayHours: 24}
	btn := domain.ChainButton{ID: uuid.New(), StepID: step1.ID, Label: "next", Action: domain.ActionAdvance}

	mock.ExpectQuery("FROM chain_buttons b").
		WithArgs(btn.ID).
		WillReturnRows(buttonRow(btn, chainID))
	mock.ExpectQuery("FROM chain_user_states WHERE").
		WithArgs(chainID, int64(5)).
		WillReturnRows(stateRow(chainID, 5, step1.ID, "active"))
	mock.ExpectExec("INSERT INTO chain_message_log").
		WithArgs(chainID, int64(5), step1.ID, domain.ChainLogClicked, "advance").
		WillReturnResult(sqlmock.NewResult(1, 1))
	expectChain(mock, chainID, step1, step2)
	mock.ExpectExec("UPDATE chain_user_states").
		WithArgs(step2.ID, sqlmock.AnyArg(), chainID, int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	sender := &fakeSender{}
	e := testEngine(db, sender)
	out, err := e.HandleButton(context.Background(), 5, btn.ID)
	if err != nil {
		t.Fatalf("HandleButton() error: %v", err)
	}
	if out.Action != domain.ActionAdvance {
		t.Errorf("outcome action = %s, want advance", out.Action)
	}
	if len(sender.sent) != 0 {
		t.Errorf("delayed step must not send immediately, sent = %v", sender.sent)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestHandleButton_AdvancePastLastStepCompletes(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	chainID := uuid.New()
	last := domain.ChainStep{ID: uuid.New(), Order: 1, Content: "only"}
	btn := domain.ChainButton{ID: uuid.New(), StepID: last.ID, Label: "done", Action: domain.ActionAdvance}

	mock.ExpectQuery("FROM chain_buttons b").
		WithArgs(btn.ID).
		WillReturnRows(buttonRow(btn, chainID))
	mock.ExpectQuery("FROM chain_user_states WHERE").
		WithArgs(chainID, int64(9)).
		WillReturnRows(stateRow(chainID, 9, last.ID, "active"))
	mock.ExpectExec("INSERT INTO chain_message_log").
		WithArgs(chainID, int64(9), last.ID, domain.ChainLogClicked, "advance").
		WillReturnResult(sqlmock.NewResult(1, 1))
	expectChain(mock, chainID, last)
	mock.ExpectExec("UPDATE chain_user_states").
		WithArgs(domain.ChainCompleted, chainID, int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	e := testEngine(db, &fakeSender{})
	if _, err := e.HandleButton(context.Background(), 9, btn.ID); err != nil {
		t.Fatalf("HandleButton() error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestHandleButton_TriggerPaymentStopsRun(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	chainID := uuid.New()
	stepID := uuid.New()
	btn := domain.ChainButton{
		ID: uuid.New(), StepID: stepID, Label: "buy",
		Action: domain.ActionTriggerPayment, Product: domain.ProductMain,
	}

	mock.ExpectQuery("FROM chain_buttons b").
		WithArgs(btn.ID).
		WillReturnRows(buttonRow(btn, chainID))
	mock.ExpectQuery("FROM chain_user_states WHERE").
		WithArgs(chainID, int64(11)).
		WillReturnRows(stateRow(chainID, 11, stepID, "active"))
	mock.ExpectExec("INSERT INTO chain_message_log").
		WithArgs(chainID, int64(11), stepID, domain.ChainLogClicked, "trigger_payment").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE chain_user_states").
		WithArgs(domain.ChainStopped, chainID, int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	e := testEngine(db, &fakeSender{})
	out, err := e.HandleButton(context.Background(), 11, btn.ID)
	if err != nil {
		t.Fatalf("HandleButton() error: %v", err)
	}
	if out.Product != domain.ProductMain {
		t.Errorf("outcome product = %s, want main", out.Product)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestHandleButton_GotoWithoutTargetIsNoOp(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	chainID := uuid.New()
	stepID := uuid.New()
	btn := domain.ChainButton{ID: uuid.New(), StepID: stepID, Label: "jump", Action: domain.ActionGoto}

	mock.ExpectQuery("FROM chain_buttons b").
		WithArgs(btn.ID).
		WillReturnRows(buttonRow(btn, chainID))
	mock.ExpectQuery("FROM chain_user_states WHERE").
		WithArgs(chainID, int64(3)).
		WillReturnRows(stateRow(chainID, 3, stepID, "active"))
	mock.ExpectExec("INSERT INTO chain_message_log").
		WithArgs(chainID, int64(3), stepID, domain.ChainLogClicked, "goto").
		WillReturnResult(sqlmock.NewResult(1, 1))

	e := testEngine(db, &fakeSender{})
	out, err := e.HandleButton(context.Background(), 3, btn.ID)
	if err != nil {
		t.Fatalf("HandleButton() error: %v", err)
	}
	if out == nil {
		t.Fatal("HandleButton() returned nil outcome")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestHandleButton_StaleRunSkipsCursorWork(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	chainID := uuid.New()
	stepID := uuid.New()
	btn := domain.ChainButton{ID: uuid.New(), StepID: stepID, Label: "next", Action: domain.ActionAdvance}

	mock.ExpectQuery("FROM chain_buttons b").
		WithArgs(btn.ID).
		WillReturnRows(buttonRow(btn, chainID))
	mock.ExpectQuery("FROM chain_user_states WHERE").
		WithArgs(chainID, int64(4)).
		WillReturnRows(stateRow(chainID, 4, stepID, "stopped"))

	e := testEngine(db, &fakeSender{})
	out, err := e.HandleButton(context.Background(), 4, btn.ID)
	if err != nil {
		t.Fatalf("HandleButton() error: %v", err)
	}
	if out.Action != domain.ActionAdvance {
		t.Errorf("outcome action = %s, want advance", out.Action)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestStopAllForUser(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("UPDATE chain_user_states").
		WithArgs(int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	store := NewStore(db)
	n, err := store.StopAllForUser(context.Background(), 42)
	if err != nil {
		t.Fatalf("StopAllForUser() error: %v", err)
	}
	if n != 2 {
		t.Errorf("StopAllForUser() = %d, want 2", n)
	}
}
