package user

import (
	"context"

	"timeline/internal/domain"
)

type UserRepositoryInterface interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	UpdatePlan(ctx context.Context, id int64, plan domain.UserPlan) error
	List(ctx context.Context, limit, offset int) ([]*domain.User, int64, error)
}

type Service struct {
	users UserRepositoryInterface
}

func NewService(users UserRepositoryInterface) *Service {
	return &Service{users: users}
}

func (s *Service) Profile(ctx context.Context, id int64) (*domain.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	u.PasswordHash = ""
	return u, nil
}

// UpgradePremium is idempotent. Tokens carry only the subject, so existing
// tokens pick up the new plan on their next request.
func (s *Service) UpgradePremium(ctx context.Context, id int64) (*domain.User, error) {
	if err := s.users.UpdatePlan(ctx, id, domain.PlanPremium); err != nil {
		return nil, err
	}
	return s.Profile(ctx, id)
}

func (s *Service) List(ctx context.Context, page, size int) ([]*domain.User, int64, error) {
	if size <= 0 || size > 100 {
		size = 20
	}
	if page < 1 {
		page = 1
	}
	users, total, err := s.users.List(ctx, size, (page-1)*size)
	if err != nil {
		return nil, 0, err
	}
	for _, u := range users {
		u.PasswordHash = ""
	}
	return users, total, nil
}
