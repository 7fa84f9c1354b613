package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/lolmarket/topup-backend/internal/models"
)

type historiesRepo struct{ q querier }

const historyCols = `id, user_id, amount, balance_before, balance_after, type, reference, status,
	topup_transaction_id, metadata, created_at`

func scanHistory(row rowScanner) (models.TransactionHistory, error) {
	var (
		h                     models.TransactionHistory
		amount, before, after pgtype.Numeric
		typ                   string
		meta                  []byte
	)
	err := row.Scan(&h.ID, &h.UserID, &amount, &before, &after, &typ, &h.Reference, &h.Status,
		&h.TopUpTransactionID, &meta, &h.CreatedAt)
	if err != nil {
		return models.TransactionHistory{}, mapErr(err)
	}
	h.Amount = fromNumeric(amount)
	h.BalanceBefore = fromNumeric(before)
	h.BalanceAfter = fromNumeric(after)
	h.Type = models.HistoryType(typ)
	h.Metadata = meta
	return h, nil
}

func (r *historiesRepo) Create(ctx context.Context, h models.TransactionHistory) (models.TransactionHistory, error) {
	row := r.q.QueryRow(ctx, `
INSERT INTO transaction_histories
  (user_id, amount, balance_before, balance_after, type, reference, status, topup_transaction_id, metadata)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
RETURNING `+historyCols,
		h.UserID, numeric(h.Amount), numeric(h.BalanceBefore), numeric(h.BalanceAfter), string(h.Type),
		h.Reference, h.Status, h.TopUpTransactionID, jsonOrNil(h.Metadata),
	)
	return scanHistory(row)
}

func (r *historiesRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.TransactionHistory, error) {
	rows, err := r.q.Query(ctx, `
SELECT `+historyCols+`
  FROM transaction_histories
 WHERE user_id = $1
 ORDER BY created_at DESC, id DESC
 LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.TransactionHistory
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
