package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/lolmarket/topup-backend/internal/models"
	"github.com/lolmarket/topup-backend/internal/payos"
	"github.com/lolmarket/topup-backend/internal/repository/memory"
	"github.com/shopspring/decimal"
)

func TestApplyPaidTwiceCreditsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.pending(t, "TOPUP-1", 1001, "100000")

	res, err := f.rec.Apply(ctx, paid(1001))
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeCredited {
		t.Fatalf("first delivery outcome = %s", res.Outcome)
	}
	writes := f.store.Writes()

	res, err = f.rec.Apply(ctx, paid(1001))
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeDuplicate {
		t.Fatalf("second delivery outcome = %s", res.Outcome)
	}
	if got := f.balance(t); !got.Equal(decimal.NewFromInt(100000)) {
		t.Fatalf("balance = %s, want 100000", got)
	}
	if h := f.histories(t); len(h) != 1 {
		t.Fatalf("history rows = %d, want 1", len(h))
	}
	if f.store.Writes() != writes {
		t.Fatal("duplicate delivery wrote to the store")
	}
}

func TestApplyStatusMapping(t *testing.T) {
	cases := []struct {
		status payos.Status
		want   models.TopUpStatus
		out    Outcome
	}{
		{payos.StatusPaid, models.TopUpSuccess, OutcomeCredited},
		{payos.StatusCancelled, models.TopUpFailed, OutcomeFailed},
		{payos.StatusError, models.TopUpFailed, OutcomeFailed},
		{payos.StatusExpired, models.TopUpFailed, OutcomeFailed},
		{payos.StatusProcessing, models.TopUpPending, OutcomeProcessing},
		{payos.StatusRefunded, models.TopUpPending, OutcomeProcessing},
	}
	for _, tc := range cases {
		t.Run(string(tc.status), func(t *testing.T) {
			f := newFixture(t)
			f.pending(t, "TOPUP-M", 7, "50000")
			ev := paid(7)
			ev.Status = tc.status

			res, err := f.rec.Apply(context.Background(), ev)
			if err != nil {
				t.Fatal(err)
			}
			if res.Outcome != tc.out {
				t.Fatalf("outcome = %s, want %s", res.Outcome, tc.out)
			}
			got, _ := f.store.Repos().TopUps.GetByOrderCode(context.Background(), 7)
			if got.Status != tc.want {
				t.Fatalf("status = %s, want %s", got.Status, tc.want)
			}
			if tc.want != models.TopUpSuccess && !f.balance(t).IsZero() {
				t.Fatal("non-paid status moved the balance")
			}
		})
	}
}

func TestApplyAmountIsExact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.pending(t, "TOPUP-X", 1, "123456.78")
	if _, err := f.rec.Apply(ctx, paid(1)); err != nil {
		t.Fatal(err)
	}
	h := f.histories(t)
	if len(h) != 1 {
		t.Fatalf("history rows = %d", len(h))
	}
	if diff := h[0].BalanceAfter.Sub(h[0].BalanceBefore); !diff.Equal(decimal.RequireFromString("123456.78")) {
		t.Fatalf("after-before = %s", diff)
	}

	for i := int64(0); i < 1000; i++ {
		code := 10_000 + i
		f.pending(t, "TOPUP-S"+decimal.NewFromInt(i).String(), code, "0.01")
		if _, err := f.rec.Apply(ctx, paid(code)); err != nil {
			t.Fatal(err)
		}
	}
	want := decimal.RequireFromString("123466.78")
	if got := f.balance(t); !got.Equal(want) {
		t.Fatalf("balance = %s, want %s", got, want)
	}
}

func TestApplyUnknownOrderWritesNothing(t *testing.T) {
	f := newFixture(t)
	writes := f.store.Writes()
	ev := paid(424242)
	ev.Reference = "TOPUP-NOPE"
	if _, err := f.rec.Apply(context.Background(), ev); !errors.Is(err, ErrTopUpNotFound) {
		t.Fatalf("expected ErrTopUpNotFound, got %v", err)
	}
	if f.store.Writes() != writes {
		t.Fatal("unknown order wrote to the store")
	}
}

func TestApplyFallsBackToReference(t *testing.T) {
	f := newFixture(t)
	f.pending(t, "TOPUP-REF", 55, "5000")
	ev := payos.Event{Reference: "TOPUP-REF", Status: payos.StatusPaid}
	res, err := f.rec.Apply(context.Background(), ev)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeCredited || res.TopUp.Reference != "TOPUP-REF" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestSuccessIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.pending(t, "TOPUP-T", 9, "20000")
	if _, err := f.rec.Apply(ctx, paid(9)); err != nil {
		t.Fatal(err)
	}
	for _, st := range []payos.Status{payos.StatusCancelled, payos.StatusError, payos.StatusExpired, payos.StatusProcessing, payos.StatusPaid} {
		ev := paid(9)
		ev.Status = st
		if _, err := f.rec.Apply(ctx, ev); err != nil {
			t.Fatal(err)
		}
		got, _ := f.store.Repos().TopUps.GetByOrderCode(ctx, 9)
		if got.Status != models.TopUpSuccess {
			t.Fatalf("%s moved a SUCCESS row to %s", st, got.Status)
		}
	}
	if got := f.balance(t); !got.Equal(decimal.NewFromInt(20000)) {
		t.Fatalf("balance = %s", got)
	}
}

func TestFailedRecoversOnLatePaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.pending(t, "TOPUP-F", 3, "30000")

	ev := paid(3)
	ev.Status = payos.StatusExpired
	if res, _ := f.rec.Apply(ctx, ev); res.Outcome != OutcomeFailed {
		t.Fatalf("expected failed, got %s", res.Outcome)
	}
	ev.Status = payos.StatusCancelled
	if res, _ := f.rec.Apply(ctx, ev); res.Outcome != OutcomeDuplicate {
		t.Fatalf("second failure should be a no-op, got %s", res.Outcome)
	}
	res, err := f.rec.Apply(ctx, paid(3))
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeCredited || res.TopUp.Status != models.TopUpSuccess {
		t.Fatalf("late PAID not applied: %+v", res)
	}
	if got := f.balance(t); !got.Equal(decimal.NewFromInt(30000)) {
		t.Fatalf("balance = %s", got)
	}
}

func TestConcurrentDuplicateDeliveries(t *testing.T) {
	f := newFixture(t)
	f.pending(t, "TOPUP-C", 11, "100000")

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		credited int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.rec.Apply(context.Background(), paid(11))
			if err != nil {
				t.Error(err)
				return
			}
			if res.Outcome == OutcomeCredited {
				mu.Lock()
				credited++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if credited != 1 {
		t.Fatalf("credited %d times", credited)
	}
	if got := f.balance(t); !got.Equal(decimal.NewFromInt(100000)) {
		t.Fatalf("balance = %s", got)
	}
}

func TestFailureMidSequenceRollsBack(t *testing.T) {
	for _, op := range []string{memory.OpUserCredit, memory.OpHistoryCreate, memory.OpNotificationCreate, memory.OpAuditCreate} {
		t.Run(op, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			f.pending(t, "TOPUP-R", 21, "40000")
			boom := errors.New("db down")
			f.store.FailNext(op, boom)

			if _, err := f.rec.Apply(ctx, paid(21)); !errors.Is(err, boom) {
				t.Fatalf("expected injected error, got %v", err)
			}
			got, _ := f.store.Repos().TopUps.GetByOrderCode(ctx, 21)
			if got.Status != models.TopUpPending {
				t.Fatalf("status = %s after rollback", got.Status)
			}
			if !f.balance(t).IsZero() || len(f.histories(t)) != 0 {
				t.Fatal("partial credit survived rollback")
			}

			// the retry the gateway would send succeeds
			if res, err := f.rec.Apply(ctx, paid(21)); err != nil || res.Outcome != OutcomeCredited {
				t.Fatalf("retry: %+v %v", res, err)
			}
		})
	}
}

func TestPaidWritesHistoryNotificationAndAudit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.pending(t, "TOPUP-H", 31, "50000")
	ev := paid(31)
	ev.BankReference = "FT123"
	ev.PaymentID = "pl_31"
	ev.Amount = decimal.NewNullDecimal(decimal.NewFromInt(49000)) // mismatch is only logged
	if _, err := f.rec.Apply(ctx, ev); err != nil {
		t.Fatal(err)
	}

	h := f.histories(t)[0]
	if !h.BalanceBefore.IsZero() || !h.BalanceAfter.Equal(decimal.NewFromInt(50000)) || h.Type != models.HistoryTopUp {
		t.Fatalf("unexpected history: %+v", h)
	}
	if h.Reference != "TOPUP-H" || h.TopUpTransactionID == nil {
		t.Fatalf("history not linked: %+v", h)
	}
	n, _ := f.store.Repos().Notifications.ListByUser(ctx, f.user.ID, 10, 0)
	if len(n) != 1 || n[0].IsRead {
		t.Fatalf("notifications: %+v", n)
	}
	got, _ := f.store.Repos().TopUps.GetByOrderCode(ctx, 31)
	if got.BankReference == nil || *got.BankReference != "FT123" || got.TransferTime == nil {
		t.Fatalf("topup not stamped: %+v", got)
	}
	if len(f.store.AuditLogs()) != 1 {
		t.Fatalf("audit rows = %d", len(f.store.AuditLogs()))
	}
}
