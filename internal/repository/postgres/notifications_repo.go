package postgres

import (
	"context"

	"github.com/lolmarket/topup-backend/internal/models"
	repo "github.com/lolmarket/topup-backend/internal/repository"
)

type notificationsRepo struct{ q querier }

const notificationCols = `id, user_id, type, title, message, is_read, created_at`

func scanNotification(row rowScanner) (models.Notification, error) {
	var n models.Notification
	if err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.IsRead, &n.CreatedAt); err != nil {
		return models.Notification{}, mapErr(err)
	}
	return n, nil
}

func (r *notificationsRepo) Create(ctx context.Context, n models.Notification) (models.Notification, error) {
	return scanNotification(r.q.QueryRow(ctx,
		`INSERT INTO notifications(user_id, type, title, message) VALUES($1,$2,$3,$4) RETURNING `+notificationCols,
		n.UserID, n.Type, n.Title, n.Message))
}

func (r *notificationsRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Notification, error) {
	rows, err := r.q.Query(ctx,
		`SELECT `+notificationCols+` FROM notifications WHERE user_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *notificationsRepo) MarkRead(ctx context.Context, userID string, id int64) error {
	tag, err := r.q.Exec(ctx, `UPDATE notifications SET is_read = true WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}
