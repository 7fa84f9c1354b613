package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/lolmarket/topup-backend/internal/logger"
	"github.com/lolmarket/topup-backend/internal/models"
	"github.com/lolmarket/topup-backend/internal/payos"
	"github.com/lolmarket/topup-backend/internal/repository/memory"
	"github.com/shopspring/decimal"
)

var ErrMockGateway = errors.New("mock gateway error")

// MockGateway implements Gateway for testing.
type MockGateway struct {
	mu         sync.Mutex
	CreateFunc func(ctx context.Context, req payos.PaymentRequest) (payos.PaymentLink, error)
	InfoFunc   func(ctx context.Context, orderCode int64) (payos.PaymentInfo, error)
	Requests   []payos.PaymentRequest
	InfoCalls  int
}

func (m *MockGateway) CreatePaymentLink(ctx context.Context, req payos.PaymentRequest) (payos.PaymentLink, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, req)
	}
	return payos.PaymentLink{
		OrderCode:     req.OrderCode,
		Amount:        req.Amount,
		PaymentLinkID: "pl_test",
		CheckoutURL:   "https://pay.payos.vn/web/pl_test",
		QRCode:        "00020101",
		Raw:           []byte(`{"paymentLinkId":"pl_test"}`),
	}, nil
}

func (m *MockGateway) GetPaymentInfo(ctx context.Context, orderCode int64) (payos.PaymentInfo, error) {
	m.mu.Lock()
	m.InfoCalls++
	m.mu.Unlock()
	if m.InfoFunc != nil {
		return m.InfoFunc(ctx, orderCode)
	}
	return payos.PaymentInfo{OrderCode: orderCode, Status: "PENDING"}, nil
}

type fixture struct {
	store *memory.Store
	gw    *MockGateway
	topUp *TopUpService
	rec   *Reconciler
	user  models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	u, err := store.Repos().Users.Create(context.Background(), "alice", "alice@example.com", "hash", models.RoleUser)
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	gw := &MockGateway{}
	log := logger.Discard()
	return &fixture{
		store: store,
		gw:    gw,
		topUp: NewTopUpService(store, gw, TopUpOptions{
			MinAmount: decimal.NewFromInt(5000),
			MaxAmount: decimal.NewFromInt(50_000_000),
			ReturnURL: "http://localhost/ok",
			CancelURL: "http://localhost/cancel",
		}, log),
		rec:  NewReconciler(store, log),
		user: u,
	}
}

// pending inserts a PENDING top-up directly, bypassing the gateway.
func (f *fixture) pending(t *testing.T, ref string, code int64, amount string) models.TopUpTransaction {
	t.Helper()
	top, err := f.store.Repos().TopUps.Create(context.Background(), models.TopUpTransaction{
		UserID:    f.user.ID,
		Reference: ref,
		OrderCode: &code,
		Amount:    decimal.RequireFromString(amount),
		Status:    models.TopUpPending,
	})
	if err != nil {
		t.Fatalf("seed topup: %v", err)
	}
	return top
}

func (f *fixture) balance(t *testing.T) decimal.Decimal {
	t.Helper()
	u, err := f.store.Repos().Users.GetByID(context.Background(), f.user.ID)
	if err != nil {
		t.Fatal(err)
	}
	return u.Balance
}

func (f *fixture) histories(t *testing.T) []models.TransactionHistory {
	t.Helper()
	h, err := f.store.Repos().Histories.ListByUser(context.Background(), f.user.ID, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func paid(code int64) payos.Event {
	return payos.Event{OrderCode: code, HasOrderCode: true, Status: payos.StatusPaid, Raw: []byte(`{"status":"PAID"}`)}
}
