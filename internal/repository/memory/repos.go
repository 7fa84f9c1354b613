package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lolmarket/topup-backend/internal/models"
	repo "github.com/lolmarket/topup-backend/internal/repository"
	"github.com/shopspring/decimal"
)

type usersRepo struct{ b binding }

func (r usersRepo) Create(_ context.Context, username, email, hash, role string) (models.User, error) {
	var u models.User
	err := r.b.do(func(st *state) error {
		for _, existing := range st.users {
			if existing.Email == email {
				return repo.ErrDuplicate
			}
		}
		now := r.b.s.now()
		u = models.User{
			ID:           uuid.NewString(),
			Username:     username,
			Email:        email,
			PasswordHash: hash,
			Role:         role,
			Balance:      decimal.Zero,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		st.users[u.ID] = u
		st.writes++
		return nil
	})
	return u, err
}

func (r usersRepo) GetByID(_ context.Context, id string) (models.User, error) {
	var u models.User
	err := r.b.do(func(st *state) error {
		var ok bool
		if u, ok = st.users[id]; !ok {
			return repo.ErrNotFound
		}
		return nil
	})
	return u, err
}

func (r usersRepo) GetByEmail(_ context.Context, email string) (models.User, error) {
	var u models.User
	err := r.b.do(func(st *state) error {
		for _, cand := range st.users {
			if cand.Email == email {
				u = cand
				return nil
			}
		}
		return repo.ErrNotFound
	})
	return u, err
}

func (r usersRepo) List(_ context.Context, limit, offset int) ([]models.User, error) {
	var out []models.User
	err := r.b.do(func(st *state) error {
		all := make([]models.User, 0, len(st.users))
		for _, u := range st.users {
			all = append(all, u)
		}
		sort.Slice(all, func(i, j int) bool {
			if all[i].CreatedAt.Equal(all[j].CreatedAt) {
				return all[i].ID < all[j].ID
			}
			return all[i].CreatedAt.After(all[j].CreatedAt)
		})
		out = page(all, limit, offset)
		return nil
	})
	return out, err
}

func (r usersRepo) Credit(_ context.Context, id string, amount decimal.Decimal) (before, after decimal.Decimal, err error) {
	err = r.b.do(func(st *state) error {
		if err := r.b.fault(OpUserCredit); err != nil {
			return err
		}
		u, ok := st.users[id]
		if !ok {
			return repo.ErrNotFound
		}
		before = u.Balance
		u.Balance = u.Balance.Add(amount)
		u.UpdatedAt = r.b.s.now()
		after = u.Balance
		st.users[id] = u
		st.writes++
		return nil
	})
	return before, after, err
}

type topUpsRepo struct{ b binding }

func (r topUpsRepo) Create(_ context.Context, t models.TopUpTransaction) (models.TopUpTransaction, error) {
	err := r.b.do(func(st *state) error {
		if _, ok := st.users[t.UserID]; !ok {
			return repo.ErrNotFound
		}
		for _, existing := range st.topUps {
			if existing.Reference == t.Reference {
				return repo.ErrDuplicate
			}
			if t.OrderCode != nil && existing.OrderCode != nil && *existing.OrderCode == *t.OrderCode {
				return repo.ErrDuplicate
			}
		}
		st.nextTopUpID++
		now := r.b.s.now()
		t.ID = st.nextTopUpID
		if t.Status == "" {
			t.Status = models.TopUpPending
		}
		t.CreatedAt, t.UpdatedAt = now, now
		st.topUps[t.ID] = t
		st.writes++
		return nil
	})
	if err != nil {
		return models.TopUpTransaction{}, err
	}
	return t, nil
}

func (r topUpsRepo) find(match func(models.TopUpTransaction) bool) (models.TopUpTransaction, error) {
	var t models.TopUpTransaction
	err := r.b.do(func(st *state) error {
		for _, cand := range st.topUps {
			if match(cand) {
				t = cand
				return nil
			}
		}
		return repo.ErrNotFound
	})
	return t, err
}

func (r topUpsRepo) GetByID(_ context.Context, id int64) (models.TopUpTransaction, error) {
	return r.find(func(t models.TopUpTransaction) bool { return t.ID == id })
}

func (r topUpsRepo) GetByReference(_ context.Context, reference string) (models.TopUpTransaction, error) {
	return r.find(func(t models.TopUpTransaction) bool { return t.Reference == reference })
}

func (r topUpsRepo) GetByOrderCode(_ context.Context, orderCode int64) (models.TopUpTransaction, error) {
	return r.find(func(t models.TopUpTransaction) bool { return t.OrderCode != nil && *t.OrderCode == orderCode })
}

func (r topUpsRepo) sorted(st *state, keep func(models.TopUpTransaction) bool) []models.TopUpTransaction {
	var out []models.TopUpTransaction
	for _, t := range st.topUps {
		if keep(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (r topUpsRepo) List(_ context.Context, f models.TopUpFilter) ([]models.TopUpTransaction, error) {
	var out []models.TopUpTransaction
	err := r.b.do(func(st *state) error {
		all := r.sorted(st, func(t models.TopUpTransaction) bool {
			return (f.Status == "" || t.Status == f.Status) && (f.UserID == "" || t.UserID == f.UserID)
		})
		out = page(all, f.Limit, f.Offset)
		return nil
	})
	return out, err
}

func (r topUpsRepo) ListPendingBefore(_ context.Context, before time.Time, limit int) ([]models.TopUpTransaction, error) {
	var out []models.TopUpTransaction
	err := r.b.do(func(st *state) error {
		all := r.sorted(st, func(t models.TopUpTransaction) bool {
			return t.Status == models.TopUpPending && t.OrderCode != nil && t.CreatedAt.Before(before)
		})
		sort.Slice(all, func(i, j int) bool { return checkedBefore(all[i], all[j]) })
		out = page(all, limit, 0)
		return nil
	})
	return out, err
}

func (r topUpsRepo) MarkChecked(_ context.Context, id int64, at time.Time) error {
	return r.b.do(func(st *state) error {
		t, ok := st.topUps[id]
		if !ok {
			return repo.ErrNotFound
		}
		t.LastCheckedAt = &at
		st.topUps[id] = t
		st.writes++
		return nil
	})
}

// checkedBefore orders like "last_checked_at NULLS FIRST, created_at, id".
func checkedBefore(a, b models.TopUpTransaction) bool {
	switch {
	case a.LastCheckedAt == nil && b.LastCheckedAt != nil:
		return true
	case a.LastCheckedAt != nil && b.LastCheckedAt == nil:
		return false
	case a.LastCheckedAt != nil && !a.LastCheckedAt.Equal(*b.LastCheckedAt):
		return a.LastCheckedAt.Before(*b.LastCheckedAt)
	case !a.CreatedAt.Equal(b.CreatedAt):
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func (r topUpsRepo) AttachCheckout(_ context.Context, id int64, c models.Checkout) error {
	return r.b.do(func(st *state) error {
		t, ok := st.topUps[id]
		if !ok {
			return repo.ErrNotFound
		}
		t.PaymentLinkID = strPtr(c.PaymentLinkID)
		t.CheckoutURL = strPtr(c.CheckoutURL)
		t.QRCode = strPtr(c.QRCode)
		if len(c.APIResponse) > 0 {
			t.APIResponse = c.APIResponse
		}
		t.UpdatedAt = r.b.s.now()
		st.topUps[id] = t
		st.writes++
		return nil
	})
}

func (r topUpsRepo) Transition(_ context.Context, id int64, from []models.TopUpStatus, tr models.TopUpTransition) (models.TopUpTransaction, bool, error) {
	var (
		out     models.TopUpTransaction
		applied bool
	)
	err := r.b.do(func(st *state) error {
		if err := r.b.fault(OpTopUpTransition); err != nil {
			return err
		}
		t, ok := st.topUps[id]
		if !ok {
			return repo.ErrNotFound
		}
		out = t
		if !statusIn(t.Status, from) {
			return nil
		}
		t.Status = tr.To
		if tr.TransferTime != nil {
			t.TransferTime = tr.TransferTime
		}
		if tr.BankReference != "" {
			t.BankReference = strPtr(tr.BankReference)
		}
		if len(tr.APIResponse) > 0 {
			t.APIResponse = tr.APIResponse
		}
		t.UpdatedAt = r.b.s.now()
		st.topUps[id] = t
		st.writes++
		out, applied = t, true
		return nil
	})
	return out, applied, err
}

type historiesRepo struct{ b binding }

func (r historiesRepo) Create(_ context.Context, h models.TransactionHistory) (models.TransactionHistory, error) {
	err := r.b.do(func(st *state) error {
		if err := r.b.fault(OpHistoryCreate); err != nil {
			return err
		}
		if h.TopUpTransactionID != nil {
			for _, existing := range st.histories {
				if existing.TopUpTransactionID != nil && *existing.TopUpTransactionID == *h.TopUpTransactionID {
					return repo.ErrDuplicate
				}
			}
		}
		st.nextHistoryID++
		h.ID = st.nextHistoryID
		h.CreatedAt = r.b.s.now()
		st.histories = append(st.histories, h)
		st.writes++
		return nil
	})
	if err != nil {
		return models.TransactionHistory{}, err
	}
	return h, nil
}

func (r historiesRepo) ListByUser(_ context.Context, userID string, limit, offset int) ([]models.TransactionHistory, error) {
	var out []models.TransactionHistory
	err := r.b.do(func(st *state) error {
		var all []models.TransactionHistory
		for i := len(st.histories) - 1; i >= 0; i-- {
			if st.histories[i].UserID == userID {
				all = append(all, st.histories[i])
			}
		}
		out = page(all, limit, offset)
		return nil
	})
	return out, err
}

type notificationsRepo struct{ b binding }

func (r notificationsRepo) Create(_ context.Context, n models.Notification) (models.Notification, error) {
	err := r.b.do(func(st *state) error {
		if err := r.b.fault(OpNotificationCreate); err != nil {
			return err
		}
		st.nextNotificationID++
		n.ID = st.nextNotificationID
		n.IsRead = false
		n.CreatedAt = r.b.s.now()
		st.notifications = append(st.notifications, n)
		st.writes++
		return nil
	})
	if err != nil {
		return models.Notification{}, err
	}
	return n, nil
}

func (r notificationsRepo) ListByUser(_ context.Context, userID string, limit, offset int) ([]models.Notification, error) {
	var out []models.Notification
	err := r.b.do(func(st *state) error {
		var all []models.Notification
		for i := len(st.notifications) - 1; i >= 0; i-- {
			if st.notifications[i].UserID == userID {
				all = append(all, st.notifications[i])
			}
		}
		out = page(all, limit, offset)
		return nil
	})
	return out, err
}

func (r notificationsRepo) MarkRead(_ context.Context, userID string, id int64) error {
	return r.b.do(func(st *state) error {
		for i := range st.notifications {
			if st.notifications[i].ID == id && st.notifications[i].UserID == userID {
				st.notifications[i].IsRead = true
				st.writes++
				return nil
			}
		}
		return repo.ErrNotFound
	})
}

type auditLogsRepo struct{ b binding }

func (r auditLogsRepo) Create(_ context.Context, l models.AuditLog) error {
	return r.b.do(func(st *state) error {
		if err := r.b.fault(OpAuditCreate); err != nil {
			return err
		}
		st.nextAuditID++
		l.ID = st.nextAuditID
		l.CreatedAt = r.b.s.now()
		st.audits = append(st.audits, l)
		st.writes++
		return nil
	})
}

// AuditLogs returns a copy of every committed audit entry.
func (s *Store) AuditLogs() []models.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.AuditLog(nil), s.st.audits...)
}

func statusIn(s models.TopUpStatus, set []models.TopUpStatus) bool {
	for _, c := range set {
		if c == s {
			return true
		}
	}
	return false
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
