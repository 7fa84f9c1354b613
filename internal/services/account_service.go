package services

import (
	"context"
	"errors"

	"github.com/lolmarket/topup-backend/internal/models"
	repo "github.com/lolmarket/topup-backend/internal/repository"
)

// AccountService serves the signed-in user's own profile, ledger and inbox.
type AccountService struct {
	store repo.Store
}

func NewAccountService(store repo.Store) *AccountService { return &AccountService{store: store} }

func (s *AccountService) Me(ctx context.Context, userID string) (models.User, error) {
	u, err := s.store.Repos().Users.GetByID(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return models.User{}, ErrUserNotFound
	}
	return u, err
}

func (s *AccountService) History(ctx context.Context, userID string, limit, offset int) ([]models.TransactionHistory, error) {
	return s.store.Repos().Histories.ListByUser(ctx, userID, limit, offset)
}

func (s *AccountService) Notifications(ctx context.Context, userID string, limit, offset int) ([]models.Notification, error) {
	return s.store.Repos().Notifications.ListByUser(ctx, userID, limit, offset)
}

var ErrNotificationNotFound = errors.New("notification not found")

func (s *AccountService) MarkRead(ctx context.Context, userID string, id int64) error {
	err := s.store.Repos().Notifications.MarkRead(ctx, userID, id)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrNotificationNotFound
	}
	return err
}
