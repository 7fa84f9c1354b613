package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type TopUpStatus string

const (
	TopUpPending TopUpStatus = "PENDING"
	TopUpSuccess TopUpStatus = "SUCCESS"
	TopUpFailed  TopUpStatus = "FAILED"
)

func (s TopUpStatus) Valid() bool {
	switch s {
	case TopUpPending, TopUpSuccess, TopUpFailed:
		return true
	}
	return false
}

// TopUpTransaction is one attempt to add funds to a user's balance.
// OrderCode is the PayOS correlation key; Reference is ours.
type TopUpTransaction struct {
	ID            int64           `json:"id"`
	UserID        string          `json:"user_id"`
	Reference     string          `json:"reference"`
	OrderCode     *int64          `json:"order_code,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Status        TopUpStatus     `json:"status"`
	PaymentLinkID *string         `json:"payment_link_id,omitempty"`
	CheckoutURL   *string         `json:"checkout_url,omitempty"`
	QRCode        *string         `json:"qr_code,omitempty"`
	BankReference *string         `json:"bank_reference,omitempty"`
	APIResponse   json.RawMessage `json:"api_response,omitempty"`
	TransferTime  *time.Time      `json:"transfer_time,omitempty"`
	LastCheckedAt *time.Time      `json:"last_checked_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (t TopUpTransaction) Terminal() bool {
	return t.Status == TopUpSuccess || t.Status == TopUpFailed
}

// Checkout is what the gateway hands back when a payment link is opened.
type Checkout struct {
	PaymentLinkID string
	CheckoutURL   string
	QRCode        string
	APIResponse   json.RawMessage
}

// TopUpTransition describes a conditional status change.
type TopUpTransition struct {
	To            TopUpStatus
	TransferTime  *time.Time
	BankReference string
	APIResponse   json.RawMessage
}

type TopUpFilter struct {
	Status TopUpStatus
	UserID string
	Limit  int
	Offset int
}
