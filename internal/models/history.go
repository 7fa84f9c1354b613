package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type HistoryType string

const HistoryTopUp HistoryType = "TOPUP"

// TransactionHistory is append-only.
type TransactionHistory struct {
	ID                 int64           `json:"id"`
	UserID             string          `json:"user_id"`
	Amount             decimal.Decimal `json:"amount"`
	BalanceBefore      decimal.Decimal `json:"balance_before"`
	BalanceAfter       decimal.Decimal `json:"balance_after"`
	Type               HistoryType     `json:"type"`
	Reference          string          `json:"reference"`
	Status             string          `json:"status"`
	TopUpTransactionID *int64          `json:"topup_transaction_id,omitempty"`
	Metadata           json.RawMessage `json:"metadata,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
}
