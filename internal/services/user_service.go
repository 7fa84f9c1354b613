package services

import (
	"context"
	"errors"
	"strings"

	"github.com/lolmarket/topup-backend/internal/auth"
	"github.com/lolmarket/topup-backend/internal/models"
	repo "github.com/lolmarket/topup-backend/internal/repository"
)

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

type UserService struct {
	r      repo.Users
	tm     *auth.TokenManager
	admins map[string]struct{}
}

// NewUserService registers emails listed in adminEmails with the admin role.
func NewUserService(r repo.Users, tm *auth.TokenManager, adminEmails []string) *UserService {
	admins := make(map[string]struct{}, len(adminEmails))
	for _, e := range adminEmails {
		admins[strings.ToLower(strings.TrimSpace(e))] = struct{}{}
	}
	return &UserService{r: r, tm: tm, admins: admins}
}

func (s *UserService) Register(ctx context.Context, username, email, password string) (models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u := models.User{Username: strings.TrimSpace(username), Email: email, Role: models.RoleUser}
	if _, ok := s.admins[email]; ok {
		u.Role = models.RoleAdmin
	}
	if err := u.Validate(); err != nil {
		return models.User{}, err
	}
	if len(password) < 8 {
		return models.User{}, errors.New("password too short")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return models.User{}, err
	}
	created, err := s.r.Create(ctx, u.Username, u.Email, hash, u.Role)
	if errors.Is(err, repo.ErrDuplicate) {
		return models.User{}, ErrEmailTaken
	}
	return created, err
}

func (s *UserService) Login(ctx context.Context, email, password string) (TokenPair, error) {
	u, err := s.r.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, repo.ErrNotFound) {
		return TokenPair{}, ErrInvalidCredentials
	}
	if err != nil {
		return TokenPair{}, err
	}
	if err := auth.VerifyPassword(password, u.PasswordHash); err != nil {
		return TokenPair{}, ErrInvalidCredentials
	}
	return s.issue(u.ID, u.Role)
}

func (s *UserService) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, isRefresh, err := s.tm.ParseAny(refreshToken)
	if err != nil || !isRefresh {
		return TokenPair{}, ErrInvalidCredentials
	}
	// role may have changed since the refresh token was minted
	u, err := s.r.GetByID(ctx, claims.UserID)
	if errors.Is(err, repo.ErrNotFound) {
		return TokenPair{}, ErrInvalidCredentials
	}
	if err != nil {
		return TokenPair{}, err
	}
	return s.issue(u.ID, u.Role)
}

func (s *UserService) issue(userID, role string) (TokenPair, error) {
	access, refresh, exp, err := s.tm.GeneratePair(userID, role)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: int64(exp.Sub(s.tm.Now()).Seconds())}, nil
}

func (s *UserService) List(ctx context.Context, limit, offset int) ([]models.User, error) {
	return s.r.List(ctx, limit, offset)
}
