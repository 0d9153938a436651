package followup

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rationly/rationbot/internal/domain"
	"github.com/rationly/rationbot/internal/funnel"
	"github.com/rationly/rationbot/internal/pkg/distlock"
	"github.com/rationly/rationbot/internal/telegram"
)

// Sender is the slice of the transport the scheduler needs.
type Sender interface {
	SendMessage(ctx context.Context, userID int64, content string, buttons ...telegram.Button) error
}

// Options tune the scheduler cadences and eligibility windows.
type Options struct {
	DiscoveryInterval time.Duration // how often to look for newly eligible users
	DispatchInterval  time.Duration // how often to send due reminders
	OnlyStartAge      time.Duration // account age before an only-start nudge
	ClickedAge        time.Duration // click age before a screenshot nudge
}

func (o *Options) applyDefaults() {
	if o.DiscoveryInterval == 0 {
		o.DiscoveryInterval = time.Hour
	}
	if o.DispatchInterval == 0 {
		o.DispatchInterval = 5 * time.Minute
	}
	if o.OnlyStartAge == 0 {
		o.OnlyStartAge = 24 * time.Hour
	}
	if o.ClickedAge == 0 {
		o.ClickedAge = 2 * time.Hour
	}
}

// Scheduler runs the two follow-up phases: discovery finds newly eligible
// users and books a reminder with a randomized send time; dispatch sends
// the due reminders exactly once.
type Scheduler struct {
	db          *sql.DB
	store       *Store
	funnel      *funnel.Store
	sender      Sender
	opts        Options
	redisClient *redis.Client

	// Stats
	scheduled int64
	sent      int64
	cancelled int64
	failed    int64

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

// NewScheduler creates a follow-up scheduler over the given database.
func NewScheduler(db *sql.DB, sender Sender, opts Options) *Scheduler {
	opts.applyDefaults()
	return &Scheduler{
		db:     db,
		store:  NewStore(db),
		funnel: funnel.NewStore(db),
		sender: sender,
		opts:   opts,
	}
}

// SetRedisClient switches tick locking to Redis. Without it the scheduler
// uses PostgreSQL advisory locks.
func (s *Scheduler) SetRedisClient(client *redis.Client) {
	s.redisClient = client
}

// Start begins both ticker loops.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("followup scheduler already running")
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	log.Printf("[Followup] Starting: discovery every %v, dispatch every %v",
		s.opts.DiscoveryInterval, s.opts.DispatchInterval)

	s.wg.Add(2)
	go s.loop(s.opts.DiscoveryInterval, distlock.KeyFollowupDiscovery, s.runDiscovery)
	go s.loop(s.opts.DispatchInterval, distlock.KeyFollowupDispatch, s.runDispatch)
	return nil
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	log.Printf("[Followup] Stopped. Scheduled: %d, Sent: %d, Cancelled: %d, Failed: %d",
		atomic.LoadInt64(&s.scheduled), atomic.LoadInt64(&s.sent),
		atomic.LoadInt64(&s.cancelled), atomic.LoadInt64(&s.failed))
}

func (s *Scheduler) loop(interval time.Duration, lockKey string, tick func(context.Context)) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(s.ctx, 5*time.Minute)
			lock := distlock.NewLock(s.redisClient, s.db, lockKey, 10*time.Minute)
			if _, err := distlock.WithTickLock(ctx, lock, tick); err != nil {
				log.Printf("[Followup] tick lock %s: %v", lockKey, err)
			}
			cancel()
		}
	}
}

// jitter returns a random duration in [min, max). Spreading send times
// keeps a batch of reminders from landing at the same instant.
func jitter(min, max time.Duration) time.Duration {
	return min + time.Duration(rand.Int63n(int64(max-min)))
}

// runDiscovery books reminders for newly eligible users. The partial
// unique index on (user, type) makes re-discovery a silent no-op.
func (s *Scheduler) runDiscovery(ctx context.Context) {
	onlyStart, err := s.funnel.UsersOnlyStarted(ctx, s.opts.OnlyStartAge)
	if err != nil {
		log.Printf("[Followup] discovery only_start query: %v", err)
		return
	}
	for _, userID := range onlyStart {
		s.book(ctx, userID, domain.FollowupOnlyStart, jitter(time.Hour, 3*time.Hour))
	}

	clicked, err := s.funnel.UsersClickedPaymentNoScreenshot(ctx, s.opts.ClickedAge)
	if err != nil {
		log.Printf("[Followup] discovery clicked_payment query: %v", err)
		return
	}
	for _, userID := range clicked {
		s.book(ctx, userID, domain.FollowupClickedPayment, jitter(30*time.Minute, time.Hour))
	}
}

func (s *Scheduler) book(ctx context.Context, userID int64, t domain.FollowupType, delay time.Duration) {
	at := time.Now().Add(delay)
	err := s.store.Schedule(ctx, userID, t, at)
	switch {
	case err == nil:
		atomic.AddInt64(&s.scheduled, 1)
		log.Printf("[Followup] scheduled %s for user %d at %s", t, userID, at.Format(time.RFC3339))
	case errors.Is(err, ErrAlreadyScheduled):
		// already booked by an earlier tick
	default:
		log.Printf("[Followup] schedule %s for user %d: %v", t, userID, err)
	}
}

// runDispatch sends every due reminder once. A user who paid in the
// meantime gets the reminder cancelled without a send; a transport error
// is terminal for that reminder.
func (s *Scheduler) runDispatch(ctx context.Context) {
	due, err := s.store.PendingDue(ctx)
	if err != nil {
		log.Printf("[Followup] dispatch query: %v", err)
		return
	}

	for _, d := range due {
		if ctx.Err() != nil {
			return
		}

		if d.HasPaid {
			if err := s.store.MarkStatus(ctx, d.ID, domain.FollowupCancelled); err != nil {
				log.Printf("[Followup] cancel %d: %v", d.ID, err)
			}
			atomic.AddInt64(&s.cancelled, 1)
			continue
		}

		status := domain.FollowupSent
		content := RandomMessage(d.Type)
		if content == "" {
			status = domain.FollowupFailed
		} else if err := s.sender.SendMessage(ctx, d.UserID, content); err != nil {
			log.Printf("[Followup] send %s to user %d: %v", d.Type, d.UserID, err)
			status = domain.FollowupFailed
		}

		if err := s.store.MarkStatus(ctx, d.ID, status); err != nil {
			log.Printf("[Followup] mark %d %s: %v", d.ID, status, err)
		}
		if status == domain.FollowupSent {
			atomic.AddInt64(&s.sent, 1)
		} else {
			atomic.AddInt64(&s.failed, 1)
		}
	}
}
