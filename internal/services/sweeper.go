package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/lolmarket/topup-backend/internal/metrics"
	"github.com/lolmarket/topup-backend/internal/models"
	"github.com/lolmarket/topup-backend/internal/payos"
	repo "github.com/lolmarket/topup-backend/internal/repository"
	"github.com/lolmarket/topup-backend/internal/worker"
	"github.com/shopspring/decimal"
)

const sweepBatch = 100

// Sweeper asks PayOS about top-ups that stayed PENDING past MinAge and feeds
// the answers through the Reconciler, covering webhooks that never arrived.
type Sweeper struct {
	store  repo.Store
	gw     Gateway
	rec    *Reconciler
	pool   *worker.Pool
	log    *slog.Logger
	minAge time.Duration
	now    func() time.Time
}

func NewSweeper(store repo.Store, gw Gateway, rec *Reconciler, pool *worker.Pool, minAge time.Duration, log *slog.Logger) *Sweeper {
	return &Sweeper{
		store:  store,
		gw:     gw,
		rec:    rec,
		pool:   pool,
		log:    log,
		minAge: minAge,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n, err := s.SweepOnce(ctx); err != nil {
				s.log.Error("sweep pending topups", "err", err)
			} else if n > 0 {
				s.log.Info("swept pending topups", "checked", n)
			}
		}
	}
}

// SweepOnce checks one batch on the worker pool and waits for it to finish.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	pending, err := s.store.Repos().TopUps.ListPendingBefore(ctx, s.now().Add(-s.minAge), sweepBatch)
	if err != nil {
		return 0, err
	}

	var wg sync.WaitGroup
	submitted := 0
	for _, t := range pending {
		t := t
		wg.Add(1)
		if err := s.pool.Submit(ctx, func() {
			defer wg.Done()
			s.check(ctx, t)
		}); err != nil {
			wg.Done()
			if errors.Is(err, worker.ErrStopped) || ctx.Err() != nil {
				break
			}
			continue
		}
		submitted++
	}
	wg.Wait()
	return submitted, nil
}

func (s *Sweeper) check(ctx context.Context, t models.TopUpTransaction) {
	// Rotate the row to the back of the queue whatever PayOS says.
	defer func() {
		if err := s.store.Repos().TopUps.MarkChecked(ctx, t.ID, s.now()); err != nil {
			s.log.Warn("mark topup checked", "reference", t.Reference, "err", err)
		}
	}()

	info, err := s.gw.GetPaymentInfo(ctx, *t.OrderCode)
	if err != nil {
		s.log.Warn("payos payment info", "reference", t.Reference, "err", err)
		return
	}
	ev := payos.Event{
		OrderCode:    *t.OrderCode,
		HasOrderCode: true,
		Reference:    t.Reference,
		Status:       payos.NormalizeStatus(info.Status),
		PaymentID:    info.ID,
		Method:       "sweeper",
		Raw:          info.Raw,
	}
	if info.AmountPaid > 0 {
		ev.Amount = decimal.NewNullDecimal(decimal.NewFromInt(info.AmountPaid))
	}
	if len(info.Transactions) > 0 {
		last := info.Transactions[len(info.Transactions)-1]
		ev.BankReference = last.Reference
		ev.PaidAt = last.TransactionDateTime
	}

	res, err := s.rec.Apply(ctx, ev)
	if err != nil {
		metrics.WebhookOutcomes.WithLabelValues("sweeper", "error").Inc()
		s.log.Error("reconcile swept topup", "reference", t.Reference, "err", err)
		return
	}
	metrics.WebhookOutcomes.WithLabelValues("sweeper", string(res.Outcome)).Inc()
}
