package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/lolmarket/topup-backend/internal/models"
	"github.com/shopspring/decimal"
)

type usersRepo struct{ q querier }

const userCols = `id, username, email, password_hash, role, balance, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (models.User, error) {
	var (
		u   models.User
		bal pgtype.Numeric
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &bal, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return models.User{}, mapErr(err)
	}
	u.Balance = fromNumeric(bal)
	return u, nil
}

func (r *usersRepo) Create(ctx context.Context, username, email, hash, role string) (models.User, error) {
	row := r.q.QueryRow(ctx,
		`INSERT INTO users(id, username, email, password_hash, role)
		 VALUES($1,$2,$3,$4,$5)
		 RETURNING `+userCols,
		uuid.NewString(), username, email, hash, role,
	)
	return scanUser(row)
}

func (r *usersRepo) GetByID(ctx context.Context, id string) (models.User, error) {
	return scanUser(r.q.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id=$1`, id))
}

func (r *usersRepo) GetByEmail(ctx context.Context, email string) (models.User, error) {
	return scanUser(r.q.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE email=$1`, email))
}

func (r *usersRepo) List(ctx context.Context, limit, offset int) ([]models.User, error) {
	rows, err := r.q.Query(ctx,
		`SELECT `+userCols+` FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *usersRepo) Credit(ctx context.Context, id string, amount decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	var before, after pgtype.Numeric
	err := r.q.QueryRow(ctx,
		`UPDATE users
		    SET balance = balance + $2,
		        updated_at = now()
		  WHERE id = $1
		  RETURNING balance - $2, balance`,
		id, numeric(amount),
	).Scan(&before, &after)
	if err != nil {
		return decimal.Zero, decimal.Zero, mapErr(err)
	}
	return fromNumeric(before), fromNumeric(after), nil
}
