// Package memory is an in-process Store with the same transactional
// semantics as the Postgres one. It backs unit tests and STORE_DRIVER=memory.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/lolmarket/topup-backend/internal/models"
	repo "github.com/lolmarket/topup-backend/internal/repository"
)

// Fault names accepted by FailNext.
const (
	OpUserCredit         = "users.credit"
	OpTopUpTransition    = "topups.transition"
	OpHistoryCreate      = "histories.create"
	OpNotificationCreate = "notifications.create"
	OpAuditCreate        = "audit.create"
)

type Store struct {
	mu     sync.Mutex
	st     *state
	faults map[string]error
	now    func() time.Time
}

type state struct {
	users         map[string]models.User
	topUps        map[int64]models.TopUpTransaction
	histories     []models.TransactionHistory
	notifications []models.Notification
	audits        []models.AuditLog

	nextTopUpID        int64
	nextHistoryID      int64
	nextNotificationID int64
	nextAuditID        int64
	writes             int
}

func NewStore() *Store {
	return &Store{
		st: &state{
			users:  map[string]models.User{},
			topUps: map[int64]models.TopUpTransaction{},
		},
		faults: map[string]error{},
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *state) clone() *state {
	c := *s
	c.users = make(map[string]models.User, len(s.users))
	for k, v := range s.users {
		c.users[k] = v
	}
	c.topUps = make(map[int64]models.TopUpTransaction, len(s.topUps))
	for k, v := range s.topUps {
		c.topUps[k] = v
	}
	c.histories = append([]models.TransactionHistory(nil), s.histories...)
	c.notifications = append([]models.Notification(nil), s.notifications...)
	c.audits = append([]models.AuditLog(nil), s.audits...)
	return &c
}

// binding ties repositories to the store; inTx means the caller already holds mu.
type binding struct {
	s    *Store
	inTx bool
}

func (b binding) do(fn func(st *state) error) error {
	if !b.inTx {
		b.s.mu.Lock()
		defer b.s.mu.Unlock()
	}
	return fn(b.s.st)
}

// fault pops a one-shot injected error for op. Caller holds mu.
func (b binding) fault(op string) error {
	err, ok := b.s.faults[op]
	if !ok {
		return nil
	}
	delete(b.s.faults, op)
	return err
}

func (s *Store) bind(inTx bool) repo.Repositories {
	b := binding{s: s, inTx: inTx}
	return repo.Repositories{
		Users:         usersRepo{b},
		TopUps:        topUpsRepo{b},
		Histories:     historiesRepo{b},
		Notifications: notificationsRepo{b},
		AuditLogs:     auditLogsRepo{b},
	}
}

func (s *Store) Repos() repo.Repositories { return s.bind(false) }

// WithTx serializes all transactions behind one mutex and restores the
// pre-transaction snapshot when fn fails.
func (s *Store) WithTx(ctx context.Context, fn func(repo.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.st.clone()
	if err := fn(s.bind(true)); err != nil {
		s.st = snap
		return err
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

// FailNext makes the next call of op return err.
func (s *Store) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = err
}

// Writes reports how many committed mutations the store has seen.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.writes
}

// SetClock overrides the timestamp source.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
