package service

import (
	"context"
	"fmt"

	"github.com/payraan/narmoonai-test-sub000/internal/models"
)

type UserService struct {
	users UserStore
}

func NewUserService(users UserStore) *UserService {
	return &UserService{users: users}
}

// Ensure registers the user on first contact. New users start on FREE.
func (s *UserService) Ensure(ctx context.Context, userID int64, username, firstName string) (*models.User, bool, error) {
	user, created, err := s.users.Ensure(ctx, userID, username, firstName)
	if err != nil {
		return nil, false, fmt.Errorf("ensure user: %w", err)
	}
	return user, created, nil
}

func (s *UserService) ListIDs(ctx context.Context) ([]int64, error) {
	ids, err := s.users.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list user ids: %w", err)
	}
	return ids, nil
}
