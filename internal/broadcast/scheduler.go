package broadcast

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rationly/rationbot/internal/domain"
	"github.com/rationly/rationbot/internal/funnel"
	"github.com/rationly/rationbot/internal/pkg/distlock"
	"github.com/rationly/rationbot/internal/telegram"
)

// Sender is the transport slice the broadcast workers need.
type Sender interface {
	SendMessage(ctx context.Context, userID int64, content string, buttons ...telegram.Button) error
}

// Options tune the broadcast workers.
type Options struct {
	PollInterval time.Duration // one-shot broadcast poll cadence
	AutoInterval time.Duration // auto-broadcast rule evaluation cadence
	SendDelay    time.Duration // pause between consecutive sends
}

func (o *Options) applyDefaults() {
	if o.PollInterval == 0 {
		o.PollInterval = 5 * time.Minute
	}
	if o.AutoInterval == 0 {
		o.AutoInterval = 15 * time.Minute
	}
	if o.SendDelay == 0 {
		o.SendDelay = 50 * time.Millisecond
	}
}

// Scheduler runs both broadcast channels: the one-shot poller picks up due
// broadcasts and pushes them through their whole audience, the auto engine
// evaluates active rules against the funnel and fires each rule at most once
// per user.
type Scheduler struct {
	db          *sql.DB
	store       *Store
	funnel      *funnel.Store
	sender      Sender
	opts        Options
	redisClient *redis.Client

	// Stats
	broadcastsSent int64
	messagesSent   int64
	messagesFailed int64
	autoSent       int64

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

// NewScheduler creates a broadcast scheduler over the given database.
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

// SetRedisClient switches tick locking to Redis.
func (s *Scheduler) SetRedisClient(client *redis.Client) {
	s.redisClient = client
}

// Start begins both ticker loops.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("broadcast scheduler already running")
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	log.Printf("[Broadcast] Starting: poll every %v, auto rules every %v",
		s.opts.PollInterval, s.opts.AutoInterval)

	s.wg.Add(2)
	go s.loop(s.opts.PollInterval, distlock.KeyBroadcastPoll, s.runPoll)
	go s.loop(s.opts.AutoInterval, distlock.KeyAutoBroadcast, s.runAutoRules)
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
	log.Printf("[Broadcast] Stopped. Broadcasts: %d, Messages: %d sent / %d failed, Auto: %d",
		atomic.LoadInt64(&s.broadcastsSent), atomic.LoadInt64(&s.messagesSent),
		atomic.LoadInt64(&s.messagesFailed), atomic.LoadInt64(&s.autoSent))
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
			ctx, cancel := context.WithTimeout(s.ctx, 30*time.Minute)
			lock := distlock.NewLock(s.redisClient, s.db, lockKey, time.Hour)
			if _, err := distlock.WithTickLock(ctx, lock, tick); err != nil {
				log.Printf("[Broadcast] tick lock %s: %v", lockKey, err)
			}
			cancel()
		}
	}
}

// runPoll executes every due one-shot broadcast to completion. The status
// flip to sending claims the broadcast; a broadcast interrupted mid-send is
// not resumed.
func (s *Scheduler) runPoll(ctx context.Context) {
	due, err := s.store.PendingDue(ctx)
	if err != nil {
		log.Printf("[Broadcast] poll query: %v", err)
		return
	}

	for _, b := range due {
		claimed, err := s.store.MarkSending(ctx, b.ID)
		if err != nil {
			log.Printf("[Broadcast] claim %s: %v", b.ID, err)
			continue
		}
		if !claimed {
			continue
		}
		s.execute(ctx, b)
	}
}

func (s *Scheduler) execute(ctx context.Context, b *domain.Broadcast) {
	users, err := s.funnel.AudienceUsers(ctx, b.Audience)
	if err != nil {
		log.Printf("[Broadcast] resolve audience %s for %s: %v", b.Audience, b.ID, err)
		if err := s.store.Complete(ctx, b.ID, 0, 0); err != nil {
			log.Printf("[Broadcast] complete %s: %v", b.ID, err)
		}
		return
	}

	log.Printf("[Broadcast] %s: sending to %d users (audience %s)", b.ID, len(users), b.Audience)

	sent, failed := 0, 0
	for _, userID := range users {
		if ctx.Err() != nil {
			break
		}
		if err := s.sender.SendMessage(ctx, userID, b.Content); err != nil {
			failed++
			if telegram.IsBlocked(err) {
				log.Printf("[Broadcast] user %d blocked the bot", userID)
			} else {
				log.Printf("[Broadcast] send to %d: %v", userID, err)
			}
		} else {
			sent++
		}
		time.Sleep(s.opts.SendDelay)
	}

	if err := s.store.Complete(ctx, b.ID, sent, failed); err != nil {
		log.Printf("[Broadcast] complete %s: %v", b.ID, err)
		return
	}

	atomic.AddInt64(&s.broadcastsSent, 1)
	atomic.AddInt64(&s.messagesSent, int64(sent))
	atomic.AddInt64(&s.messagesFailed, int64(failed))
	log.Printf("[Broadcast] %s done: %d sent, %d failed", b.ID, sent, failed)
}

// runAutoRules evaluates every active rule against the funnel. The ledger
// insert claims the (rule, user) pair before the send; a failed send gives
// the claim back so a later tick retries.
func (s *Scheduler) runAutoRules(ctx context.Context) {
	rules, err := s.store.ActiveRules(ctx)
	if err != nil {
		log.Printf("[Broadcast] auto rules query: %v", err)
		return
	}

	for _, rule := range rules {
		if ctx.Err() != nil {
			return
		}
		s.evaluateRule(ctx, rule)
	}
}

func (s *Scheduler) evaluateRule(ctx context.Context, rule *domain.AutoBroadcastRule) {
	users, err := s.funnel.EligibleForTrigger(ctx, rule.Trigger, rule.DelayHours)
	if err != nil {
		log.Printf("[Broadcast] rule %s eligibility: %v", rule.ID, err)
		return
	}

	sent := 0
	for _, userID := range users {
		if ctx.Err() != nil {
			break
		}

		fresh, err := s.store.MarkSentOnce(ctx, rule.ID, userID)
		if err != nil {
			log.Printf("[Broadcast] rule %s ledger for %d: %v", rule.ID, userID, err)
			continue
		}
		if !fresh {
			continue
		}

		if err := s.sender.SendMessage(ctx, userID, rule.Content); err != nil {
			log.Printf("[Broadcast] rule %s send to %d: %v", rule.ID, userID, err)
			if err := s.store.ClearLedgerEntry(ctx, rule.ID, userID); err != nil {
				log.Printf("[Broadcast] rule %s ledger rollback for %d: %v", rule.ID, userID, err)
			}
			continue
		}

		sent++
		time.Sleep(s.opts.SendDelay)
	}

	if sent > 0 {
		if err := s.store.IncrementRuleSent(ctx, rule.ID, sent); err != nil {
			log.Printf("[Broadcast] rule %s counter: %v", rule.ID, err)
		}
		atomic.AddInt64(&s.autoSent, int64(sent))
		log.Printf("[Broadcast] rule %s (%s): %d sent", rule.ID, rule.Trigger, sent)
	}
}
