package stats

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/rationly/rationbot/internal/telegram"
)

// Sender is the transport slice the reporter needs.
type Sender interface {
	SendMessage(ctx context.Context, userID int64, content string, buttons ...telegram.Button) error
}

// Reporter posts the weekly report to the admin channel on a fixed weekday
// and hour.
type Reporter struct {
	store          *Store
	sender         Sender
	adminChannelID int64
	weekday        time.Weekday
	hour           int

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewReporter creates a weekly reporter.
func NewReporter(db *sql.DB, sender Sender, adminChannelID int64, weekday time.Weekday, hour int) *Reporter {
	return &Reporter{
		store:          NewStore(db),
		sender:         sender,
		adminChannelID: adminChannelID,
		weekday:        weekday,
		hour:           hour,
	}
}

// nextRun returns the next occurrence of the configured weekday and hour
// strictly after now.
func (r *Reporter) nextRun(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), r.hour, 0, 0, 0, now.Location())
	days := (int(r.weekday) - int(now.Weekday()) + 7) % 7
	next = next.AddDate(0, 0, days)
	if !next.After(now) {
		next = next.AddDate(0, 0, 7)
	}
	return next
}

// Start begins the report loop.
func (r *Reporter) Start() error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return errors.New("reporter already running")
	}
	r.running = true
	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.mu.Unlock()

	log.Printf("[Stats] Weekly report scheduled for %s %02d:00", r.weekday, r.hour)

	r.wg.Add(1)
	go r.loop()
	return nil
}

// Stop gracefully stops the reporter.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Reporter) loop() {
	defer r.wg.Done()

	for {
		wait := time.Until(r.nextRun(time.Now()))
		timer := time.NewTimer(wait)
		select {
		case <-r.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			r.run()
		}
	}
}

func (r *Reporter) run() {
	ctx, cancel := context.WithTimeout(r.ctx, time.Minute)
	defer cancel()

	report, err := r.store.BuildWeekly(ctx, time.Now())
	if err != nil {
		log.Printf("[Stats] build weekly report: %v", err)
		return
	}
	if err := r.sender.SendMessage(ctx, r.adminChannelID, report.Format()); err != nil {
		log.Printf("[Stats] send weekly report: %v", err)
		return
	}
	log.Printf("[Stats] weekly report sent")
}
