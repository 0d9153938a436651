// Package stats builds the weekly admin report: how the funnel moved, what
// the schedulers sent, and how payments went over the last seven days.
package stats

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rationly/rationbot/internal/broadcast"
	"github.com/rationly/rationbot/internal/calculator"
	"github.com/rationly/rationbot/internal/chain"
	"github.com/rationly/rationbot/internal/followup"
	"github.com/rationly/rationbot/internal/funnel"
)

// WeeklyReport is the aggregate snapshot for one reporting window.
type WeeklyReport struct {
	From time.Time
	To   time.Time

	NewUsers             int
	PaymentsApproved     int
	PaymentsRejected     int
	FollowupsSent        int
	BroadcastMessages    int
	ChainMessages        int
	CalculatorsCompleted int

	Funnel funnel.Counts
}

// Store aggregates report numbers across the other packages' tables.
type Store struct {
	db         *sql.DB
	funnel     *funnel.Store
	followups  *followup.Store
	broadcasts *broadcast.Store
	chains     *chain.Store
	calc       *calculator.Store
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:         db,
		funnel:     funnel.NewStore(db),
		followups:  followup.NewStore(db),
		broadcasts: broadcast.NewStore(db),
		chains:     chain.NewStore(db),
		calc:       calculator.NewStore(db),
	}
}

func (s *Store) countSince(ctx context.Context, query string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, query, since).Scan(&n)
	return n, err
}

// BuildWeekly assembles the report for the week ending now.
func (s *Store) BuildWeekly(ctx context.Context, now time.Time) (*WeeklyReport, error) {
	since := now.AddDate(0, 0, -7)
	r := &WeeklyReport{From: since, To: now}

	var err error
	if r.NewUsers, err = s.countSince(ctx,
		`SELECT COUNT(*) FROM users WHERE created_at >= $1`, since); err != nil {
		return nil, fmt.Errorf("new users: %w", err)
	}
	if r.PaymentsApproved, err = s.countSince(ctx,
		`SELECT COUNT(*) FROM payment_requests WHERE status = 'approved' AND resolved_at >= $1`, since); err != nil {
		return nil, fmt.Errorf("approved payments: %w", err)
	}
	if r.PaymentsRejected, err = s.countSince(ctx,
		`SELECT COUNT(*) FROM payment_requests WHERE status = 'rejected' AND resolved_at >= $1`, since); err != nil {
		return nil, fmt.Errorf("rejected payments: %w", err)
	}
	if r.FollowupsSent, err = s.followups.SentCountSince(ctx, since); err != nil {
		return nil, fmt.Errorf("followups: %w", err)
	}
	if r.BroadcastMessages, err = s.broadcasts.SentCountSince(ctx, since); err != nil {
		return nil, fmt.Errorf("broadcasts: %w", err)
	}
	if r.ChainMessages, err = s.chains.SentCountSince(ctx, since); err != nil {
		return nil, fmt.Errorf("chain messages: %w", err)
	}
	if r.CalculatorsCompleted, err = s.calc.CompletedSince(ctx, since); err != nil {
		return nil, fmt.Errorf("calculators: %w", err)
	}

	counts, err := s.funnel.FunnelCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("funnel counts: %w", err)
	}
	r.Funnel = *counts
	return r, nil
}

// Format renders the report for the admin channel.
func (r *WeeklyReport) Format() string {
	return fmt.Sprintf(
		"📊 <b>Отчёт за неделю</b> (%s — %s)\n\n"+
			"👥 Новых пользователей: %d\n"+
			"✅ Оплат подтверждено: %d\n"+
			"❌ Оплат отклонено: %d\n"+
			"🧮 Калькуляторов пройдено: %d\n\n"+
			"📨 Отправлено сообщений:\n"+
			"• напоминания: %d\n"+
			"• рассылки: %d\n"+
			"• цепочки: %d\n\n"+
			"🔻 Воронка: всего %d, оплатили %d (%.1f%%)\n"+
			"• только /start: %d\n"+
			"• клик без скрина: %d\n"+
			"• отклонённые: %d",
		r.From.Format("02.01"), r.To.Format("02.01"),
		r.NewUsers, r.PaymentsApproved, r.PaymentsRejected, r.CalculatorsCompleted,
		r.FollowupsSent, r.BroadcastMessages, r.ChainMessages,
		r.Funnel.TotalUsers, r.Funnel.Paid, r.Funnel.ConversionPercent(),
		r.Funnel.OnlyStarted, r.Funnel.ClickedNoScreenshot, r.Funnel.Rejected)
}
