package services

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lolmarket/topup-backend/internal/metrics"
	"github.com/lolmarket/topup-backend/internal/models"
	"github.com/lolmarket/topup-backend/internal/payos"
	repo "github.com/lolmarket/topup-backend/internal/repository"
	"github.com/shopspring/decimal"
)

// PayOS rejects order codes above JavaScript's MAX_SAFE_INTEGER.
const maxOrderCode = 1<<53 - 1

// persistTimeout bounds writes that must land after the caller has gone away.
const persistTimeout = 5 * time.Second

type TopUpOptions struct {
	MinAmount decimal.Decimal
	MaxAmount decimal.Decimal
	ReturnURL string
	CancelURL string
	// LinkTTL makes PayOS expire unpaid checkouts; zero leaves the gateway default.
	LinkTTL time.Duration
}

// Intent is handed back to the client after a payment link is opened.
type Intent struct {
	Reference  string             `json:"reference"`
	OrderCode  int64              `json:"orderCode"`
	PaymentURL string             `json:"paymentUrl"`
	QRCode     string             `json:"qrCode"`
	Amount     decimal.Decimal    `json:"amount"`
	Status     models.TopUpStatus `json:"status"`
}

type TopUpService struct {
	store repo.Store
	gw    Gateway
	opts  TopUpOptions
	log   *slog.Logger
	now   func() time.Time
}

// NewTopUpService wires the intent creator and status poller. gw may be nil
// when PayOS credentials are absent; CreateIntent then fails fast.
func NewTopUpService(store repo.Store, gw Gateway, opts TopUpOptions, log *slog.Logger) *TopUpService {
	return &TopUpService{store: store, gw: gw, opts: opts, log: log, now: time.Now}
}

func (s *TopUpService) validateAmount(amount decimal.Decimal) error {
	switch {
	case amount.LessThan(s.opts.MinAmount):
		return fmt.Errorf("%w (%s)", ErrAmountTooLow, s.opts.MinAmount.String())
	case s.opts.MaxAmount.IsPositive() && amount.GreaterThan(s.opts.MaxAmount):
		return fmt.Errorf("%w (%s)", ErrAmountTooHigh, s.opts.MaxAmount.String())
	case !amount.Equal(amount.Truncate(0)):
		return ErrAmountNotWhole
	}
	return nil
}

// CreateIntent records a PENDING top-up and opens a PayOS checkout for it.
// If the gateway call fails the row is moved to FAILED so it can never be
// polled as a live payment.
func (s *TopUpService) CreateIntent(ctx context.Context, userID string, amount decimal.Decimal) (Intent, error) {
	if err := s.validateAmount(amount); err != nil {
		metrics.TopUpIntents.WithLabelValues("rejected").Inc()
		return Intent{}, err
	}
	if s.gw == nil {
		return Intent{}, ErrGatewayNotConfigured
	}

	t, err := s.insertPending(ctx, userID, amount)
	if err != nil {
		return Intent{}, err
	}

	req := payos.PaymentRequest{
		OrderCode:   *t.OrderCode,
		Amount:      amount.IntPart(),
		Description: t.Reference,
		CancelURL:   s.opts.CancelURL,
		ReturnURL:   s.opts.ReturnURL,
	}
	if s.opts.LinkTTL > 0 {
		req.ExpiredAt = s.now().Add(s.opts.LinkTTL).Unix()
	}
	link, err := s.gw.CreatePaymentLink(ctx, req)

	// The row must leave this function either FAILED or carrying its
	// checkout, even if the client hung up during the gateway call.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err != nil {
		metrics.TopUpIntents.WithLabelValues("gateway_error").Inc()
		s.log.Error("payos create payment link", "reference", t.Reference, "err", err)
		s.abandon(pctx, t, err)
		return Intent{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	if err := s.store.Repos().TopUps.AttachCheckout(pctx, t.ID, models.Checkout{
		PaymentLinkID: link.PaymentLinkID,
		CheckoutURL:   link.CheckoutURL,
		QRCode:        link.QRCode,
		APIResponse:   link.Raw,
	}); err != nil {
		return Intent{}, fmt.Errorf("attach checkout: %w", err)
	}

	metrics.TopUpIntents.WithLabelValues("created").Inc()
	s.log.Info("topup intent created", "reference", t.Reference, "order_code", *t.OrderCode, "user_id", userID, "amount", amount.String())
	return Intent{
		Reference:  t.Reference,
		OrderCode:  *t.OrderCode,
		PaymentURL: link.CheckoutURL,
		QRCode:     link.QRCode,
		Amount:     t.Amount,
		Status:     t.Status,
	}, nil
}

func (s *TopUpService) insertPending(ctx context.Context, userID string, amount decimal.Decimal) (models.TopUpTransaction, error) {
	var (
		t   models.TopUpTransaction
		err error
	)
	for attempt := 0; attempt < 3; attempt++ {
		code := newOrderCode()
		err = s.store.WithTx(ctx, func(r repo.Repositories) error {
			var err error
			t, err = r.TopUps.Create(ctx, models.TopUpTransaction{
				UserID:    userID,
				Reference: newReference(),
				OrderCode: &code,
				Amount:    amount,
				Status:    models.TopUpPending,
			})
			if err != nil {
				return err
			}
			id := strconv.FormatInt(t.ID, 10)
			return r.AuditLogs.Create(ctx, models.AuditLog{
				EntityType: "topup_transaction",
				EntityID:   &id,
				Action:     "created",
				Details:    map[string]any{"reference": t.Reference, "amount": amount.String(), "user_id": userID},
			})
		})
		if !errors.Is(err, repo.ErrDuplicate) {
			break
		}
	}
	if errors.Is(err, repo.ErrNotFound) {
		return models.TopUpTransaction{}, ErrUserNotFound
	}
	if err != nil {
		return models.TopUpTransaction{}, fmt.Errorf("create topup: %w", err)
	}
	return t, nil
}

func (s *TopUpService) abandon(ctx context.Context, t models.TopUpTransaction, cause error) {
	detail, _ := json.Marshal(map[string]string{"error": cause.Error()})
	err := s.store.WithTx(ctx, func(r repo.Repositories) error {
		cur, ok, err := r.TopUps.Transition(ctx, t.ID, []models.TopUpStatus{models.TopUpPending},
			models.TopUpTransition{To: models.TopUpFailed, APIResponse: detail})
		if err != nil || !ok {
			return err
		}
		id := strconv.FormatInt(cur.ID, 10)
		return r.AuditLogs.Create(ctx, models.AuditLog{
			EntityType: "topup_transaction",
			EntityID:   &id,
			Action:     "status_change",
			Details:    map[string]any{"reference": cur.Reference, "from": "PENDING", "to": "FAILED", "reason": "gateway_error"},
		})
	})
	if err != nil {
		s.log.Error("mark topup failed", "reference", t.Reference, "err", err)
	}
}

// owned loads a top-up visible to the caller; other users' rows look absent.
func (s *TopUpService) owned(ctx context.Context, userID, role, reference string) (models.TopUpTransaction, error) {
	t, err := s.store.Repos().TopUps.GetByReference(ctx, reference)
	if errors.Is(err, repo.ErrNotFound) {
		return models.TopUpTransaction{}, ErrTopUpNotFound
	}
	if err != nil {
		return models.TopUpTransaction{}, err
	}
	if t.UserID != userID && role != models.RoleAdmin {
		return models.TopUpTransaction{}, ErrTopUpNotFound
	}
	return t, nil
}

// Status is the read-only poll used by the checkout page.
func (s *TopUpService) Status(ctx context.Context, userID, role, reference string) (models.TopUpStatus, error) {
	t, err := s.owned(ctx, userID, role, reference)
	if err != nil {
		return "", err
	}
	return t.Status, nil
}

func (s *TopUpService) Detail(ctx context.Context, userID, role, reference string) (models.TopUpTransaction, error) {
	return s.owned(ctx, userID, role, reference)
}

func (s *TopUpService) ListMine(ctx context.Context, userID string, limit, offset int) ([]models.TopUpTransaction, error) {
	return s.store.Repos().TopUps.List(ctx, models.TopUpFilter{UserID: userID, Limit: limit, Offset: offset})
}

func (s *TopUpService) AdminList(ctx context.Context, f models.TopUpFilter) ([]models.TopUpTransaction, error) {
	return s.store.Repos().TopUps.List(ctx, f)
}

func newReference() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "TOPUP-" + strings.ToUpper(id[:16])
}

func newOrderCode() int64 {
	for {
		u := uuid.New()
		if n := int64(binary.BigEndian.Uint64(u[:8]) & maxOrderCode); n > 0 {
			return n
		}
	}
}
