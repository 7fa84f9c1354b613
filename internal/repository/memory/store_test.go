package memory

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/lolmarket/topup-backend/internal/models"
	repo "github.com/lolmarket/topup-backend/internal/repository"
	"github.com/shopspring/decimal"
)

func seedUser(t *testing.T, s *Store) models.User {
	t.Helper()
	u, err := s.Repos().Users.Create(context.Background(), "alice", "alice@example.com", "x", models.RoleUser)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func TestWithTxRollsBackEveryWrite(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	u := seedUser(t, s)
	code := int64(42)
	top, err := s.Repos().TopUps.Create(ctx, models.TopUpTransaction{
		UserID: u.ID, Reference: "TOPUP-1", OrderCode: &code, Amount: decimal.NewFromInt(10000),
	})
	if err != nil {
		t.Fatalf("create topup: %v", err)
	}
	writes := s.Writes()

	boom := errors.New("boom")
	s.FailNext(OpHistoryCreate, boom)
	err = s.WithTx(ctx, func(r repo.Repositories) error {
		if _, ok, err := r.TopUps.Transition(ctx, top.ID, []models.TopUpStatus{models.TopUpPending}, models.TopUpTransition{To: models.TopUpSuccess}); err != nil || !ok {
			t.Fatalf("transition: ok=%v err=%v", ok, err)
		}
		if _, _, err := r.Users.Credit(ctx, u.ID, top.Amount); err != nil {
			t.Fatalf("credit: %v", err)
		}
		_, err := r.Histories.Create(ctx, models.TransactionHistory{UserID: u.ID, TopUpTransactionID: &top.ID})
		return err
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}

	got, _ := s.Repos().TopUps.GetByID(ctx, top.ID)
	if got.Status != models.TopUpPending {
		t.Fatalf("status not rolled back: %s", got.Status)
	}
	user, _ := s.Repos().Users.GetByID(ctx, u.ID)
	if !user.Balance.IsZero() {
		t.Fatalf("balance not rolled back: %s", user.Balance)
	}
	if s.Writes() != writes {
		t.Fatalf("write counter moved: %d -> %d", writes, s.Writes())
	}
}

func TestTransitionRespectsFromSet(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	u := seedUser(t, s)
	top, _ := s.Repos().TopUps.Create(ctx, models.TopUpTransaction{UserID: u.ID, Reference: "TOPUP-2", Amount: decimal.NewFromInt(5000)})

	tr := models.TopUpTransition{To: models.TopUpSuccess}
	if _, ok, _ := s.Repos().TopUps.Transition(ctx, top.ID, []models.TopUpStatus{models.TopUpPending}, tr); !ok {
		t.Fatal("first transition should apply")
	}
	cur, ok, err := s.Repos().TopUps.Transition(ctx, top.ID, []models.TopUpStatus{models.TopUpPending}, tr)
	if err != nil || ok {
		t.Fatalf("second transition should be a no-op: ok=%v err=%v", ok, err)
	}
	if cur.Status != models.TopUpSuccess {
		t.Fatalf("expected current row back, got %s", cur.Status)
	}
	if _, _, err := s.Repos().TopUps.Transition(ctx, 999, nil, tr); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUniqueConstraints(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	u := seedUser(t, s)
	if _, err := s.Repos().Users.Create(ctx, "bob", u.Email, "x", models.RoleUser); !errors.Is(err, repo.ErrDuplicate) {
		t.Fatalf("duplicate email: %v", err)
	}
	code := int64(7)
	first := models.TopUpTransaction{UserID: u.ID, Reference: "TOPUP-A", OrderCode: &code, Amount: decimal.NewFromInt(5000)}
	if _, err := s.Repos().TopUps.Create(ctx, first); err != nil {
		t.Fatal(err)
	}
	dupRef := first
	dupRef.OrderCode = nil
	if _, err := s.Repos().TopUps.Create(ctx, dupRef); !errors.Is(err, repo.ErrDuplicate) {
		t.Fatalf("duplicate reference: %v", err)
	}
	dupCode := first
	dupCode.Reference = "TOPUP-B"
	if _, err := s.Repos().TopUps.Create(ctx, dupCode); !errors.Is(err, repo.ErrDuplicate) {
		t.Fatalf("duplicate order code: %v", err)
	}
}

func TestCreditIsExactDecimal(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	u := seedUser(t, s)
	step := decimal.RequireFromString("0.1")
	for i := 0; i < 1000; i++ {
		if _, _, err := s.Repos().Users.Credit(ctx, u.ID, step); err != nil {
			t.Fatal(err)
		}
	}
	got, _ := s.Repos().Users.GetByID(ctx, u.ID)
	if !got.Balance.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected 100, got %s", got.Balance)
	}
}

func TestNotificationsMarkReadScopedToOwner(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	u := seedUser(t, s)
	n, _ := s.Repos().Notifications.Create(ctx, models.Notification{UserID: u.ID, Type: "TOPUP", Title: "t"})
	if err := s.Repos().Notifications.MarkRead(ctx, "someone-else", n.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign user, got %v", err)
	}
	if err := s.Repos().Notifications.MarkRead(ctx, u.ID, n.ID); err != nil {
		t.Fatal(err)
	}
	list, _ := s.Repos().Notifications.ListByUser(ctx, u.ID, 10, 0)
	if len(list) != 1 || !list[0].IsRead {
		t.Fatalf("unexpected notifications: %+v", list)
	}
}

func TestListPendingBeforeRotatesChecked(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	u := seedUser(t, s)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []int64
	for i := int64(1); i <= 3; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		s.SetClock(func() time.Time { return at })
		code := i
		top, err := s.Repos().TopUps.Create(ctx, models.TopUpTransaction{
			UserID: u.ID, Reference: "TOPUP-R" + strconv.FormatInt(i, 10), OrderCode: &code, Amount: decimal.NewFromInt(5000),
		})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, top.ID)
	}
	cutoff := base.Add(time.Hour)
	topUps := s.Repos().TopUps

	first, _ := topUps.ListPendingBefore(ctx, cutoff, 2)
	if len(first) != 2 || first[0].ID != ids[0] || first[1].ID != ids[1] {
		t.Fatalf("first batch = %+v", first)
	}
	for i, row := range first {
		if err := topUps.MarkChecked(ctx, row.ID, cutoff.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatal(err)
		}
	}

	second, _ := topUps.ListPendingBefore(ctx, cutoff, 2)
	if len(second) != 2 || second[0].ID != ids[2] || second[1].ID != ids[0] {
		t.Fatalf("second batch should start with the unchecked row: %+v", second)
	}
	if second[1].LastCheckedAt == nil {
		t.Fatal("last_checked_at not stored")
	}
	if err := topUps.MarkChecked(ctx, 999, cutoff); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("unknown id: %v", err)
	}
}
