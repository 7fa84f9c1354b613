package services

import (
	"context"
	"errors"

	"github.com/lolmarket/topup-backend/internal/payos"
)

var (
	ErrAmountTooLow         = errors.New("amount below minimum deposit")
	ErrAmountTooHigh        = errors.New("amount above maximum deposit")
	ErrAmountNotWhole       = errors.New("amount must be a whole number")
	ErrTopUpNotFound        = errors.New("top-up not found")
	ErrGatewayUnavailable   = errors.New("payment gateway unavailable")
	ErrGatewayNotConfigured = errors.New("payment gateway not configured")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrEmailTaken           = errors.New("email already registered")
	ErrUserNotFound         = errors.New("user not found")
)

// Gateway is the slice of the PayOS client the services need.
type Gateway interface {
	CreatePaymentLink(ctx context.Context, req payos.PaymentRequest) (payos.PaymentLink, error)
	GetPaymentInfo(ctx context.Context, orderCode int64) (payos.PaymentInfo, error)
}
