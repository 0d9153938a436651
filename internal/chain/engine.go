package chain

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rationly/rationbot/internal/domain"
	"github.com/rationly/rationbot/internal/funnel"
	"github.com/rationly/rationbot/internal/pkg/distlock"
	"github.com/rationly/rationbot/internal/telegram"
)

// Sender is the transport slice the engine needs.
type Sender interface {
	SendMessage(ctx context.Context, userID int64, content string, buttons ...telegram.Button) error
}

// ButtonOutcome tells the bot layer what to do after a press has been
// applied to the cursor. Payment handoff and command execution live outside
// this package.
type ButtonOutcome struct {
	Action  domain.ButtonAction
	URL     string
	Command string
	Product domain.Product
}

// Options tune the engine.
type Options struct {
	TickInterval time.Duration // delayed-step delivery cadence
	SendDelay    time.Duration // pause between consecutive sends in a batch
}

func (o *Options) applyDefaults() {
	if o.TickInterval == 0 {
		o.TickInterval = 5 * time.Minute
	}
	if o.SendDelay == 0 {
		o.SendDelay = 50 * time.Millisecond
	}
}

// Engine drives chain cursors: launch puts an audience on a chain's first
// step, the tick delivers steps whose delay elapsed, and HandleButton applies
// press semantics. Cursor writes happen before or alongside sends, so a
// transport failure can leave a cursor ahead of what the user received; the
// message log records the truth.
type Engine struct {
	db          *sql.DB
	store       *Store
	funnel      *funnel.Store
	sender      Sender
	opts        Options
	redisClient *redis.Client

	// Stats
	launched int64
	sent     int64
	failed   int64
	clicks   int64

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

// NewEngine creates a chain engine over the given database.
func NewEngine(db *sql.DB, sender Sender, opts Options) *Engine {
	opts.applyDefaults()
	return &Engine{
		db:     db,
		store:  NewStore(db),
		funnel: funnel.NewStore(db),
		sender: sender,
		opts:   opts,
	}
}

// Store exposes the chain store for the admin API and payment workflow.
func (e *Engine) Store() *Store { return e.store }

// SetRedisClient switches tick locking to Redis.
func (e *Engine) SetRedisClient(client *redis.Client) {
	e.redisClient = client
}

// Start begins the auto-advance loop.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return errors.New("chain engine already running")
	}
	e.running = true
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.mu.Unlock()

	log.Printf("[Chain] Starting: tick every %v", e.opts.TickInterval)

	e.wg.Add(1)
	go e.loop()
	return nil
}

// Stop gracefully stops the engine.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.cancel()
	e.mu.Unlock()

	e.wg.Wait()
	log.Printf("[Chain] Stopped. Launched: %d, Sent: %d, Failed: %d, Clicks: %d",
		atomic.LoadInt64(&e.launched), atomic.LoadInt64(&e.sent),
		atomic.LoadInt64(&e.failed), atomic.LoadInt64(&e.clicks))
}

func (e *Engine) loop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(e.ctx, 10*time.Minute)
			lock := distlock.NewLock(e.redisClient, e.db, distlock.KeyChainTick, 20*time.Minute)
			if _, err := distlock.WithTickLock(ctx, lock, e.runTick); err != nil {
				log.Printf("[Chain] tick lock: %v", err)
			}
			cancel()
		}
	}
}

// stepButtons converts a step's buttons to transport buttons. Callback data
// carries the button id.
func stepButtons(step *domain.ChainStep) []telegram.Button {
	if len(step.Buttons) == 0 {
		return nil
	}
	out := make([]telegram.Button, 0, len(step.Buttons))
	for _, b := range step.Buttons {
		btn := telegram.Button{Label: b.Label}
		if b.Action == domain.ActionOpenURL {
			btn.URL = b.URL
		} else {
			btn.Data = "chain:" + b.ID.String()
		}
		out = append(out, btn)
	}
	return out
}

// sendStep delivers one step and logs the outcome.
func (e *Engine) sendStep(ctx context.Context, chainID uuid.UUID, userID int64, step *domain.ChainStep) {
	err := e.sender.SendMessage(ctx, userID, step.Content, stepButtons(step)...)
	if err != nil {
		atomic.AddInt64(&e.failed, 1)
		log.Printf("[Chain] send step %s to %d: %v", step.ID, userID, err)
		if logErr := e.store.AppendLog(ctx, chainID, userID, step.ID, domain.ChainLogFailed, err.Error()); logErr != nil {
			log.Printf("[Chain] log failure for %d: %v", userID, logErr)
		}
		return
	}
	atomic.AddInt64(&e.sent, 1)
	if err := e.store.AppendLog(ctx, chainID, userID, step.ID, domain.ChainLogSent, ""); err != nil {
		log.Printf("[Chain] log send for %d: %v", userID, err)
	}
}

// Launch starts a chain for every user in the audience. Users already active
// in the chain keep their run untouched; stopped and completed runs restart
// at the first step. The first step always sends immediately, its configured
// delay only governs later revisits.
func (e *Engine) Launch(ctx context.Context, chainID uuid.UUID, audience domain.Audience) (int, error) {
	c, err := e.store.GetChain(ctx, chainID)
	if err != nil {
		return 0, fmt.Errorf("load chain: %w", err)
	}
	if !c.IsActive {
		return 0, fmt.Errorf("chain %s is not active", chainID)
	}
	first := c.FirstStep()
	if first == nil {
		return 0, fmt.Errorf("chain %s has no steps", chainID)
	}

	users, err := e.funnel.AudienceUsers(ctx, audience)
	if err != nil {
		return 0, fmt.Errorf("resolve audience: %w", err)
	}

	log.Printf("[Chain] launching %q for %d users (audience %s)", c.Name, len(users), audience)

	launched := 0
	for _, userID := range users {
		if ctx.Err() != nil {
			break
		}
		fresh, err := e.store.ActivateState(ctx, chainID, userID, first.ID)
		if err != nil {
			log.Printf("[Chain] activate %d: %v", userID, err)
			continue
		}
		if !fresh {
			// already active, launch is a no-op for this user
			continue
		}
		launched++
		e.sendStep(ctx, chainID, userID, first)
		time.Sleep(e.opts.SendDelay)
	}

	atomic.AddInt64(&e.launched, int64(launched))
	log.Printf("[Chain] %q launched for %d users", c.Name, launched)
	return launched, nil
}

// runTick delivers every due delayed step. The cursor stays on the step after
// delivery; only a button press moves it further. A step without buttons is a
// dead end and its cursor stays active indefinitely.
func (e *Engine) runTick(ctx context.Context) {
	due, err := e.store.DueStates(ctx)
	if err != nil {
		log.Printf("[Chain] due states query: %v", err)
		return
	}

	chains := make(map[uuid.UUID]*domain.Chain)
	for _, st := range due {
		if ctx.Err() != nil {
			return
		}

		c, ok := chains[st.ChainID]
		if !ok {
			c, err = e.store.GetChain(ctx, st.ChainID)
			if err != nil {
				log.Printf("[Chain] load chain %s: %v", st.ChainID, err)
				continue
			}
			chains[st.ChainID] = c
		}

		step := c.StepByID(st.CurrentStep)
		if step == nil {
			log.Printf("[Chain] user %d points at missing step %s in %q, skipping", st.UserID, st.CurrentStep, c.Name)
			continue
		}

		if err := e.store.ClearNextSend(ctx, st.ChainID, st.UserID); err != nil {
			log.Printf("[Chain] clear next send for %d: %v", st.UserID, err)
			continue
		}
		e.sendStep(ctx, st.ChainID, st.UserID, step)
		time.Sleep(e.opts.SendDelay)
	}
}

// HandleButton applies one press. The returned outcome tells the caller
// whether a handoff (payment entry, command) is still owed; the cursor work
// is done here.
func (e *Engine) HandleButton(ctx context.Context, userID int64, buttonID uuid.UUID) (*ButtonOutcome, error) {
	bc, err := e.store.GetButton(ctx, buttonID)
	if err != nil {
		return nil, fmt.Errorf("resolve button: %w", err)
	}
	btn := &bc.Button

	state, err := e.store.GetState(ctx, bc.ChainID, userID)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	if state == nil || state.Status != domain.ChainActive {
		// press on a stale message after the run ended
		return &ButtonOutcome{Action: btn.Action, URL: btn.URL, Command: btn.Command, Product: btn.Product}, nil
	}

	atomic.AddInt64(&e.clicks, 1)
	if err := e.store.AppendLog(ctx, bc.ChainID, userID, btn.StepID, domain.ChainLogClicked, string(btn.Action)); err != nil {
		log.Printf("[Chain] log click for %d: %v", userID, err)
	}

	outcome := &ButtonOutcome{Action: btn.Action, URL: btn.URL, Command: btn.Command, Product: btn.Product}

	switch btn.Action {
	case domain.ActionAdvance:
		c, err := e.store.GetChain(ctx, bc.ChainID)
		if err != nil {
			return nil, fmt.Errorf("load chain: %w", err)
		}
		next := c.NextStep(btn.StepID)
		if next == nil {
			if err := e.store.SetStatus(ctx, bc.ChainID, userID, domain.ChainCompleted); err != nil {
				return nil, err
			}
			return outcome, nil
		}
		return outcome, e.moveCursor(ctx, bc.ChainID, userID, next)

	case domain.ActionGoto:
		if btn.TargetStep == nil {
			log.Printf("[Chain] button %s has no goto target, skipping transition", btn.ID)
			return outcome, nil
		}
		c, err := e.store.GetChain(ctx, bc.ChainID)
		if err != nil {
			return nil, fmt.Errorf("load chain: %w", err)
		}
		target := c.StepByID(*btn.TargetStep)
		if target == nil {
			log.Printf("[Chain] button %s targets missing step %s, skipping transition", btn.ID, btn.TargetStep)
			return outcome, nil
		}
		return outcome, e.moveCursor(ctx, bc.ChainID, userID, target)

	case domain.ActionStop:
		return outcome, e.store.SetStatus(ctx, bc.ChainID, userID, domain.ChainStopped)

	case domain.ActionTriggerPayment:
		// the user is converting, the run exits and payment takes over
		return outcome, e.store.SetStatus(ctx, bc.ChainID, userID, domain.ChainStopped)

	case domain.ActionOpenURL, domain.ActionRunCommand:
		// transport-level actions, the cursor does not move
		return outcome, nil
	}

	return nil, fmt.Errorf("unknown button action %q", btn.Action)
}

// moveCursor places the cursor on a step. Zero delay sends the content right
// away; otherwise the tick delivers it once the delay elapses.
func (e *Engine) moveCursor(ctx context.Context, chainID uuid.UUID, userID int64, step *domain.ChainStep) error {
	if step.DelayHours == 0 {
		if err := e.store.SetCursor(ctx, chainID, userID, step.ID, nil); err != nil {
			return err
		}
		e.sendStep(ctx, chainID, userID, step)
		return nil
	}
	at := time.Now().Add(time.Duration(step.DelayHours) * time.Hour)
	return e.store.SetCursor(ctx, chainID, userID, step.ID, &at)
}
