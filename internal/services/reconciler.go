package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/lolmarket/topup-backend/internal/metrics"
	"github.com/lolmarket/topup-backend/internal/models"
	"github.com/lolmarket/topup-backend/internal/payos"
	repo "github.com/lolmarket/topup-backend/internal/repository"
	"github.com/shopspring/decimal"
)

type Outcome string

const (
	OutcomeCredited   Outcome = "credited"
	OutcomeFailed     Outcome = "failed"
	OutcomeProcessing Outcome = "processing"
	OutcomeDuplicate  Outcome = "duplicate"
)

// Result is what one event did to one top-up.
type Result struct {
	Outcome Outcome
	TopUp   models.TopUpTransaction
}

// Reconciler applies normalized gateway events to top-up transactions.
// It is the only writer of user balances.
type Reconciler struct {
	store repo.Store
	log   *slog.Logger
	now   func() time.Time
}

func NewReconciler(store repo.Store, log *slog.Logger) *Reconciler {
	return &Reconciler{store: store, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// Locate finds the top-up an event refers to: by order code, then by reference.
func (r *Reconciler) Locate(ctx context.Context, ev payos.Event) (models.TopUpTransaction, error) {
	topUps := r.store.Repos().TopUps
	if ev.HasOrderCode {
		t, err := topUps.GetByOrderCode(ctx, ev.OrderCode)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return models.TopUpTransaction{}, err
		}
	}
	if ev.Reference != "" {
		t, err := topUps.GetByReference(ctx, ev.Reference)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return models.TopUpTransaction{}, err
		}
	}
	return models.TopUpTransaction{}, ErrTopUpNotFound
}

// Apply reconciles one event. Replays of an event that was already applied
// return OutcomeDuplicate and write nothing.
func (r *Reconciler) Apply(ctx context.Context, ev payos.Event) (Result, error) {
	t, err := r.Locate(ctx, ev)
	if err != nil {
		return Result{}, err
	}

	switch ev.Status {
	case payos.StatusPaid:
		if t.Status == models.TopUpSuccess {
			return Result{Outcome: OutcomeDuplicate, TopUp: t}, nil
		}
		return r.credit(ctx, t, ev)
	case payos.StatusCancelled, payos.StatusError, payos.StatusExpired:
		if t.Terminal() {
			return Result{Outcome: OutcomeDuplicate, TopUp: t}, nil
		}
		return r.fail(ctx, t, ev)
	default:
		return Result{Outcome: OutcomeProcessing, TopUp: t}, nil
	}
}

func (r *Reconciler) credit(ctx context.Context, t models.TopUpTransaction, ev payos.Event) (Result, error) {
	if ev.Amount.Valid && !ev.Amount.Decimal.Equal(t.Amount) {
		r.log.Warn("payos amount mismatch, crediting stored amount",
			"reference", t.Reference, "stored", t.Amount.String(), "reported", ev.Amount.Decimal.String())
	}

	now := r.now()
	res := Result{Outcome: OutcomeCredited}
	var before, after decimal.Decimal
	err := r.store.WithTx(ctx, func(tx repo.Repositories) error {
		cur, ok, err := tx.TopUps.Transition(ctx, t.ID,
			[]models.TopUpStatus{models.TopUpPending, models.TopUpFailed},
			models.TopUpTransition{
				To:            models.TopUpSuccess,
				TransferTime:  &now,
				BankReference: ev.BankReference,
				APIResponse:   ev.Raw,
			})
		if err != nil {
			return fmt.Errorf("transition: %w", err)
		}
		res.TopUp = cur
		if !ok {
			res.Outcome = OutcomeDuplicate
			return nil
		}

		before, after, err = tx.Users.Credit(ctx, cur.UserID, cur.Amount)
		if err != nil {
			return fmt.Errorf("credit: %w", err)
		}

		meta, _ := json.Marshal(map[string]any{
			"paymentId":     ev.PaymentID,
			"method":        ev.Method,
			"timestamp":     now.Format(time.RFC3339),
			"paidAt":        ev.PaidAt,
			"orderCode":     cur.OrderCode,
			"bankReference": ev.BankReference,
		})
		if _, err := tx.Histories.Create(ctx, models.TransactionHistory{
			UserID:             cur.UserID,
			Amount:             cur.Amount,
			BalanceBefore:      before,
			BalanceAfter:       after,
			Type:               models.HistoryTopUp,
			Reference:          cur.Reference,
			Status:             string(models.TopUpSuccess),
			TopUpTransactionID: &cur.ID,
			Metadata:           meta,
		}); err != nil {
			return fmt.Errorf("history: %w", err)
		}

		if _, err := tx.Notifications.Create(ctx, models.Notification{
			UserID:  cur.UserID,
			Type:    "TOPUP_SUCCESS",
			Title:   "Top-up successful",
			Message: fmt.Sprintf("Top-up %s of %s VND was credited. New balance: %s VND.", cur.Reference, cur.Amount.String(), after.String()),
		}); err != nil {
			return fmt.Errorf("notification: %w", err)
		}

		if err := tx.AuditLogs.Create(ctx, statusAudit(cur, t.Status, ev)); err != nil {
			return fmt.Errorf("audit: %w", err)
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	if res.Outcome == OutcomeCredited {
		r.log.Info("topup credited",
			"reference", res.TopUp.Reference, "user_id", res.TopUp.UserID,
			"amount", res.TopUp.Amount.String(), "balance_before", before.String(), "balance_after", after.String())
		metrics.CreditsTotal.Inc()
		metrics.CreditedAmount.Add(res.TopUp.Amount.InexactFloat64())
	}
	return res, nil
}

func (r *Reconciler) fail(ctx context.Context, t models.TopUpTransaction, ev payos.Event) (Result, error) {
	res := Result{Outcome: OutcomeFailed}
	err := r.store.WithTx(ctx, func(tx repo.Repositories) error {
		cur, ok, err := tx.TopUps.Transition(ctx, t.ID,
			[]models.TopUpStatus{models.TopUpPending},
			models.TopUpTransition{To: models.TopUpFailed, APIResponse: ev.Raw})
		if err != nil {
			return fmt.Errorf("transition: %w", err)
		}
		res.TopUp = cur
		if !ok {
			res.Outcome = OutcomeDuplicate
			return nil
		}
		if err := tx.AuditLogs.Create(ctx, statusAudit(cur, t.Status, ev)); err != nil {
			return fmt.Errorf("audit: %w", err)
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	if res.Outcome == OutcomeFailed {
		r.log.Info("topup failed", "reference", t.Reference, "gateway_status", string(ev.Status))
	}
	return res, nil
}

func statusAudit(t models.TopUpTransaction, from models.TopUpStatus, ev payos.Event) models.AuditLog {
	id := strconv.FormatInt(t.ID, 10)
	return models.AuditLog{
		EntityType: "topup_transaction",
		EntityID:   &id,
		Action:     "status_change",
		Details: map[string]any{
			"reference":      t.Reference,
			"from":           string(from),
			"to":             string(t.Status),
			"gateway_status": string(ev.Status),
			"method":         ev.Method,
		},
	}
}
