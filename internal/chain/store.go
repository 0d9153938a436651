// Package chain implements button-driven drip sequences: a directed graph of
// steps per chain, a per-user cursor, and a scheduler that delivers delayed
// steps. The message log, not the cursor, records what was actually sent.
package chain

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/rationly/rationbot/internal/domain"
)

// Store handles the chains, chain_steps, chain_buttons, chain_user_states and
// chain_message_log tables.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// =============================================================================
// Chain definitions
// =============================================================================

// CreateChain persists a chain with its steps and buttons in one transaction.
func (s *Store) CreateChain(ctx context.Context, c *domain.Chain) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO chains (id, name, trigger_type, is_active)
		VALUES ($1, $2, $3, $4)`,
		c.ID, c.Name, c.Trigger, c.IsActive)
	if err != nil {
		return err
	}

	for i := range c.Steps {
		step := &c.Steps[i]
		if step.ID == uuid.Nil {
			step.ID = uuid.New()
		}
		step.ChainID = c.ID
		_, err = tx.ExecContext(ctx, `
			INSERT INTO chain_steps (id, chain_id, step_order, content, delay_hours)
			VALUES ($1, $2, $3, $4, $5)`,
			step.ID, step.ChainID, step.Order, step.Content, step.DelayHours)
		if err != nil {
			return err
		}
		for j := range step.Buttons {
			btn := &step.Buttons[j]
			if btn.ID == uuid.Nil {
				btn.ID = uuid.New()
			}
			btn.StepID = step.ID
			_, err = tx.ExecContext(ctx, `
				INSERT INTO chain_buttons (id, step_id, label, action, target_step, url, command, product, button_order)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				btn.ID, btn.StepID, btn.Label, btn.Action, btn.TargetStep,
				btn.URL, btn.Command, btn.Product, btn.Order)
			if err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// GetChain loads a chain with its steps and buttons.
func (s *Store) GetChain(ctx context.Context, id uuid.UUID) (*domain.Chain, error) {
	var c domain.Chain
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, trigger_type, is_active, created_at, updated_at
		FROM chains WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Trigger, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := s.loadSteps(ctx, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) loadSteps(ctx context.Context, c *domain.Chain) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chain_id, step_order, content, delay_hours
		FROM chain_steps WHERE chain_id = $1 ORDER BY step_order`, c.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var step domain.ChainStep
		if err := rows.Scan(&step.ID, &step.ChainID, &step.Order, &step.Content, &step.DelayHours); err != nil {
			return err
		}
		c.Steps = append(c.Steps, step)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for i := range c.Steps {
		if err := s.loadButtons(ctx, &c.Steps[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) loadButtons(ctx context.Context, step *domain.ChainStep) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, step_id, label, action, target_step, url, command, product, button_order
		FROM chain_buttons WHERE step_id = $1 ORDER BY button_order`, step.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var b domain.ChainButton
		if err := rows.Scan(&b.ID, &b.StepID, &b.Label, &b.Action, &b.TargetStep,
			&b.URL, &b.Command, &b.Product, &b.Order); err != nil {
			return err
		}
		step.Buttons = append(step.Buttons, b)
	}
	return rows.Err()
}

// ListChains returns chain headers without steps, newest first.
func (s *Store) ListChains(ctx context.Context) ([]*domain.Chain, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, trigger_type, is_active, created_at, updated_at
		FROM chains ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Chain
	for rows.Next() {
		var c domain.Chain
		if err := rows.Scan(&c.ID, &c.Name, &c.Trigger, &c.IsActive, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// SetChainActive flips a chain's active flag. Inactive chains are skipped by
// the auto-advance tick.
func (s *Store) SetChainActive(ctx context.Context, id uuid.UUID, active bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE chains SET is_active = $1, updated_at = NOW() WHERE id = $2`, active, id)
	return err
}

// DeleteChain removes a chain and, via cascade, its steps, buttons, states
// and log entries.
func (s *Store) DeleteChain(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chains WHERE id = $1`, id)
	return err
}

// ButtonContext is a button joined with its step's chain, enough for the
// engine to process a press without loading the whole graph first.
type ButtonContext struct {
	Button  domain.ChainButton
	ChainID uuid.UUID
}

// GetButton resolves a button id to the button and its chain.
func (s *Store) GetButton(ctx context.Context, buttonID uuid.UUID) (*ButtonContext, error) {
	var bc ButtonContext
	err := s.db.QueryRowContext(ctx, `
		SELECT b.id, b.step_id, b.label, b.action, b.target_step, b.url, b.command, b.product, b.button_order,
			st.chain_id
		FROM chain_buttons b
		JOIN chain_steps st ON st.id = b.step_id
		WHERE b.id = $1`, buttonID).
		Scan(&bc.Button.ID, &bc.Button.StepID, &bc.Button.Label, &bc.Button.Action,
			&bc.Button.TargetStep, &bc.Button.URL, &bc.Button.Command, &bc.Button.Product,
			&bc.Button.Order, &bc.ChainID)
	if err != nil {
		return nil, err
	}
	return &bc, nil
}

// =============================================================================
// Per-user cursors
// =============================================================================

// ActivateState creates or restarts a user's cursor at the given step.
// Returns false when the user is already active in the chain: restart of an
// active run is a no-op, only stopped and completed rows are overwritten.
func (s *Store) ActivateState(ctx context.Context, chainID uuid.UUID, userID int64, stepID uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO chain_user_states (chain_id, user_id, current_step, status, next_send_at, started_at, updated_at)
		VALUES ($1, $2, $3, 'active', NULL, NOW(), NOW())
		ON CONFLICT (chain_id, user_id) DO UPDATE
		SET current_step = EXCLUDED.current_step, status = 'active',
			next_send_at = NULL, started_at = NOW(), updated_at = NOW()
		WHERE chain_user_states.status <> 'active'`,
		chainID, userID, stepID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// GetState returns the user's cursor in a chain, or nil when none exists.
func (s *Store) GetState(ctx context.Context, chainID uuid.UUID, userID int64) (*domain.ChainUserState, error) {
	var st domain.ChainUserState
	err := s.db.QueryRowContext(ctx, `
		SELECT chain_id, user_id, current_step, status, next_send_at, started_at, updated_at
		FROM chain_user_states WHERE chain_id = $1 AND user_id = $2`,
		chainID, userID).
		Scan(&st.ChainID, &st.UserID, &st.CurrentStep, &st.Status, &st.NextSendAt, &st.StartedAt, &st.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// SetCursor moves the cursor to a step. nextSendAt is nil when the step's
// content has already been delivered.
func (s *Store) SetCursor(ctx context.Context, chainID uuid.UUID, userID int64, stepID uuid.UUID, nextSendAt *time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE chain_user_states
		SET current_step = $1, next_send_at = $2, updated_at = NOW()
		WHERE chain_id = $3 AND user_id = $4 AND status = 'active'`,
		stepID, nextSendAt, chainID, userID)
	return err
}

// ClearNextSend marks the current step as delivered.
func (s *Store) ClearNextSend(ctx context.Context, chainID uuid.UUID, userID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE chain_user_states SET next_send_at = NULL, updated_at = NOW()
		WHERE chain_id = $1 AND user_id = $2`,
		chainID, userID)
	return err
}

// SetStatus finishes a cursor as completed or stopped.
func (s *Store) SetStatus(ctx context.Context, chainID uuid.UUID, userID int64, status domain.ChainUserStatus) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE chain_user_states
		SET status = $1, next_send_at = NULL, updated_at = NOW()
		WHERE chain_id = $2 AND user_id = $3`,
		status, chainID, userID)
	return err
}

// StopAllForUser stops every active chain run of a user. The payment
// workflow calls this on approval. Returns the number of runs stopped.
func (s *Store) StopAllForUser(ctx context.Context, userID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE chain_user_states
		SET status = 'stopped', next_send_at = NULL, updated_at = NOW()
		WHERE user_id = $1 AND status = 'active'`,
		userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DueStates returns active cursors whose send time has arrived, restricted
// to chains that are still active.
func (s *Store) DueStates(ctx context.Context) ([]*domain.ChainUserState, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.chain_id, s.user_id, s.current_step, s.status, s.next_send_at, s.started_at, s.updated_at
		FROM chain_user_states s
		JOIN chains c ON c.id = s.chain_id
		WHERE s.status = 'active' AND s.next_send_at IS NOT NULL AND s.next_send_at <= NOW()
		  AND c.is_active
		ORDER BY s.next_send_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.ChainUserState
	for rows.Next() {
		var st domain.ChainUserState
		if err := rows.Scan(&st.ChainID, &st.UserID, &st.CurrentStep, &st.Status,
			&st.NextSendAt, &st.StartedAt, &st.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &st)
	}
	return out, rows.Err()
}

// =============================================================================
// Message log
// =============================================================================

// AppendLog records one send, click or failure.
func (s *Store) AppendLog(ctx context.Context, chainID uuid.UUID, userID int64, stepID uuid.UUID, kind domain.ChainLogKind, detail string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chain_message_log (chain_id, user_id, step_id, kind, detail)
		VALUES ($1, $2, $3, $4, $5)`,
		chainID, userID, stepID, kind, detail)
	return err
}

// SentCountSince counts chain messages sent after the cutoff.
func (s *Store) SentCountSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM chain_message_log
		WHERE kind = 'sent' AND created_at >= $1`,
		since).Scan(&n)
	return n, err
}
