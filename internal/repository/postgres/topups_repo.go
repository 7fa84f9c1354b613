package postgres

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/lolmarket/topup-backend/internal/models"
	repo "github.com/lolmarket/topup-backend/internal/repository"
)

type topUpsRepo struct{ q querier }

const topUpCols = `id, user_id, reference, order_code, amount, status, payment_link_id,
	checkout_url, qr_code, bank_reference, api_response, transfer_time, last_checked_at, created_at, updated_at`

func scanTopUp(row rowScanner) (models.TopUpTransaction, error) {
	var (
		t      models.TopUpTransaction
		amount pgtype.Numeric
		status string
		raw    []byte
	)
	err := row.Scan(&t.ID, &t.UserID, &t.Reference, &t.OrderCode, &amount, &status, &t.PaymentLinkID,
		&t.CheckoutURL, &t.QRCode, &t.BankReference, &raw, &t.TransferTime, &t.LastCheckedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return models.TopUpTransaction{}, mapErr(err)
	}
	t.Amount = fromNumeric(amount)
	t.Status = models.TopUpStatus(status)
	t.APIResponse = raw
	return t, nil
}

func (r *topUpsRepo) Create(ctx context.Context, t models.TopUpTransaction) (models.TopUpTransaction, error) {
	if t.Status == "" {
		t.Status = models.TopUpPending
	}
	row := r.q.QueryRow(ctx, `
INSERT INTO topup_transactions (user_id, reference, order_code, amount, status, api_response)
VALUES ($1,$2,$3,$4,$5,$6)
RETURNING `+topUpCols,
		t.UserID, t.Reference, t.OrderCode, numeric(t.Amount), string(t.Status), jsonOrNil(t.APIResponse),
	)
	return scanTopUp(row)
}

func (r *topUpsRepo) GetByID(ctx context.Context, id int64) (models.TopUpTransaction, error) {
	return scanTopUp(r.q.QueryRow(ctx, `SELECT `+topUpCols+` FROM topup_transactions WHERE id=$1`, id))
}

func (r *topUpsRepo) GetByReference(ctx context.Context, reference string) (models.TopUpTransaction, error) {
	return scanTopUp(r.q.QueryRow(ctx, `SELECT `+topUpCols+` FROM topup_transactions WHERE reference=$1`, reference))
}

func (r *topUpsRepo) GetByOrderCode(ctx context.Context, orderCode int64) (models.TopUpTransaction, error) {
	return scanTopUp(r.q.QueryRow(ctx, `SELECT `+topUpCols+` FROM topup_transactions WHERE order_code=$1`, orderCode))
}

func (r *topUpsRepo) List(ctx context.Context, f models.TopUpFilter) ([]models.TopUpTransaction, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, "status = $"+strconv.Itoa(len(args)))
	}
	if f.UserID != "" {
		args = append(args, f.UserID)
		where = append(where, "user_id = $"+strconv.Itoa(len(args)))
	}
	q := `SELECT ` + topUpCols + ` FROM topup_transactions`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit, f.Offset)
	q += ` ORDER BY created_at DESC, id DESC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	return r.query(ctx, q, args...)
}

func (r *topUpsRepo) ListPendingBefore(ctx context.Context, before time.Time, limit int) ([]models.TopUpTransaction, error) {
	return r.query(ctx, `
SELECT `+topUpCols+`
  FROM topup_transactions
 WHERE status = 'PENDING' AND order_code IS NOT NULL AND created_at < $1
 ORDER BY last_checked_at NULLS FIRST, created_at, id
 LIMIT $2`, before, limit)
}

func (r *topUpsRepo) MarkChecked(ctx context.Context, id int64, at time.Time) error {
	tag, err := r.q.Exec(ctx, `UPDATE topup_transactions SET last_checked_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *topUpsRepo) query(ctx context.Context, q string, args ...any) ([]models.TopUpTransaction, error) {
	rows, err := r.q.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.TopUpTransaction
	for rows.Next() {
		t, err := scanTopUp(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *topUpsRepo) AttachCheckout(ctx context.Context, id int64, c models.Checkout) error {
	tag, err := r.q.Exec(ctx, `
UPDATE topup_transactions
   SET payment_link_id = NULLIF($2, ''),
       checkout_url = NULLIF($3, ''),
       qr_code = NULLIF($4, ''),
       api_response = COALESCE($5, api_response),
       updated_at = now()
 WHERE id = $1`,
		id, c.PaymentLinkID, c.CheckoutURL, c.QRCode, jsonOrNil(c.APIResponse))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// Transition is the single write path for status changes. The status
// predicate in the WHERE clause is the idempotency gate: a second delivery
// blocks on the row lock, re-evaluates the predicate and matches nothing.
func (r *topUpsRepo) Transition(ctx context.Context, id int64, from []models.TopUpStatus, tr models.TopUpTransition) (models.TopUpTransaction, bool, error) {
	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}
	row := r.q.QueryRow(ctx, `
UPDATE topup_transactions
   SET status = $2,
       transfer_time = COALESCE($3, transfer_time),
       bank_reference = COALESCE(NULLIF($4, ''), bank_reference),
       api_response = COALESCE($5, api_response),
       updated_at = now()
 WHERE id = $1 AND status = ANY($6)
RETURNING `+topUpCols,
		id, string(tr.To), tr.TransferTime, tr.BankReference, jsonOrNil(tr.APIResponse), allowed,
	)
	t, err := scanTopUp(row)
	if err == nil {
		return t, true, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return models.TopUpTransaction{}, false, err
	}
	// Either the row is gone or it is not in an allowed status.
	cur, err := r.GetByID(ctx, id)
	if err != nil {
		return models.TopUpTransaction{}, false, err
	}
	return cur, false, nil
}
