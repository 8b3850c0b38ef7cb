package user

import (
	"context"
	"testing"

	"timeline/internal/domain"
	"timeline/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockUserRepo struct {
	mock.Mock
}

func (m *mockUserRepo) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	u := *args.Get(0).(*domain.User)
	return &u, args.Error(1)
}

func (m *mockUserRepo) UpdatePlan(ctx context.Context, id int64, plan domain.UserPlan) error {
	return m.Called(ctx, id, plan).Error(0)
}

func (m *mockUserRepo) List(ctx context.Context, limit, offset int) ([]*domain.User, int64, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]*domain.User), args.Get(1).(int64), args.Error(2)
}

func TestService_Profile(t *testing.T) {
	users := new(mockUserRepo)
	svc := NewService(users)
	ctx := context.Background()

	users.On("GetByID", mock.Anything, int64(1)).
		Return(&domain.User{ID: 1, Email: "ana@example.com", PasswordHash: "hash"}, nil)
	users.On("GetByID", mock.Anything, int64(2)).Return(nil, repository.ErrUserNotFound)

	u, err := svc.Profile(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", u.Email)
	assert.Empty(t, u.PasswordHash)

	_, err = svc.Profile(ctx, 2)
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
}

func TestService_UpgradePremium(t *testing.T) {
	users := new(mockUserRepo)
	svc := NewService(users)
	ctx := context.Background()

	users.On("UpdatePlan", mock.Anything, int64(1), domain.PlanPremium).Return(nil)
	users.On("GetByID", mock.Anything, int64(1)).
		Return(&domain.User{ID: 1, Email: "ana@example.com", Plan: domain.PlanPremium}, nil)
	users.On("UpdatePlan", mock.Anything, int64(9), domain.PlanPremium).Return(repository.ErrUserNotFound)

	u, err := svc.UpgradePremium(ctx, 1)
	require.NoError(t, err)
	assert.True(t, u.IsPremium())

	_, err = svc.UpgradePremium(ctx, 9)
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
	users.AssertExpectations(t)
}

func TestService_ListClampsPaging(t *testing.T) {
	users := new(mockUserRepo)
	svc := NewService(users)
	ctx := context.Background()

	page := []*domain.User{{ID: 1, PasswordHash: "hash"}}
	users.On("List", mock.Anything, 20, 0).Return(page, int64(1), nil).Once()
	users.On("List", mock.Anything, 10, 20).Return([]*domain.User{}, int64(1), nil).Once()

	got, total, err := svc.List(ctx, 0, 500)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Empty(t, got[0].PasswordHash)

	_, _, err = svc.List(ctx, 3, 10)
	require.NoError(t, err)
	users.AssertExpectations(t)
}
