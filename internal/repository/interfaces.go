package repository

import (
	"context"
	"errors"
	"time"

	"github.com/lolmarket/topup-backend/internal/models"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
)

type Users interface {
	Create(ctx context.Context, username, email, passwordHash, role string) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
	GetByEmail(ctx context.Context, email string) (models.User, error)
	List(ctx context.Context, limit, offset int) ([]models.User, error)

	// Credit adds amount to the user's balance as a relative update and
	// returns the balance before and after.
	Credit(ctx context.Context, id string, amount decimal.Decimal) (before, after decimal.Decimal, err error)
}

type TopUps interface {
	Create(ctx context.Context, t models.TopUpTransaction) (models.TopUpTransaction, error)
	GetByID(ctx context.Context, id int64) (models.TopUpTransaction, error)
	GetByReference(ctx context.Context, reference string) (models.TopUpTransaction, error)
	GetByOrderCode(ctx context.Context, orderCode int64) (models.TopUpTransaction, error)
	List(ctx context.Context, f models.TopUpFilter) ([]models.TopUpTransaction, error)
	// ListPendingBefore returns PENDING rows created before the cutoff, never
	// checked first, then least recently checked.
	ListPendingBefore(ctx context.Context, before time.Time, limit int) ([]models.TopUpTransaction, error)
	MarkChecked(ctx context.Context, id int64, at time.Time) error
	AttachCheckout(ctx context.Context, id int64, c models.Checkout) error

	// Transition moves the row to tr.To only if its current status is in
	// from. ok is false when the row was not in an allowed status.
	Transition(ctx context.Context, id int64, from []models.TopUpStatus, tr models.TopUpTransition) (t models.TopUpTransaction, ok bool, err error)
}

type Histories interface {
	Create(ctx context.Context, h models.TransactionHistory) (models.TransactionHistory, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.TransactionHistory, error)
}

type Notifications interface {
	Create(ctx context.Context, n models.Notification) (models.Notification, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Notification, error)
	MarkRead(ctx context.Context, userID string, id int64) error
}

type AuditLogs interface {
	Create(ctx context.Context, l models.AuditLog) error
}

// Repositories bundles every repository bound to one connection or transaction.
type Repositories struct {
	Users         Users
	TopUps        TopUps
	Histories     Histories
	Notifications Notifications
	AuditLogs     AuditLogs
}

type Store interface {
	Repos() Repositories
	// WithTx runs fn in a single datastore transaction; any error rolls back everything fn wrote.
	WithTx(ctx context.Context, fn func(r Repositories) error) error
	Ping(ctx context.Context) error
}
