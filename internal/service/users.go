package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/opengov/internal/model"
	"github.com/jmerrifield20/opengov/internal/store"
	"go.uber.org/zap"
)

// ErrDuplicateEmail is returned when registering an address that is taken.
var ErrDuplicateEmail = errors.New("email already registered")

// UserService manages the user collection.
type UserService struct {
	mu     sync.Mutex
	users  *store.Collection[model.User]
	logger *zap.Logger
	now    func() time.Time
}

// NewUserService creates a UserService.
func NewUserService(users *store.Collection[model.User], logger *zap.Logger) *UserService {
	return &UserService{
		users:  users,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Register creates a user. Email addresses are unique, compared
// case-insensitively.
func (s *UserService) Register(ctx context.Context, email, name string, role model.Role) (*model.User, error) {
	u := model.User{
		ID:        uuid.NewString(),
		Email:     strings.TrimSpace(email),
		Name:      strings.TrimSpace(name),
		Role:      role,
		CreatedAt: s.now(),
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.users.Update(ctx, func(all []model.User) ([]model.User, error) {
		for _, existing := range all {
			if strings.EqualFold(existing.Email, u.Email) {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateEmail, u.Email)
			}
		}
		return append(all, u), nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered",
		zap.String("user_id", u.ID),
		zap.String("role", string(u.Role)),
	)
	return &u, nil
}

// Get returns the user with id.
func (s *UserService) Get(ctx context.Context, id string) (*model.User, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range all {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, fmt.Errorf("%w: user %s", model.ErrNotFound, id)
}

// GetByEmail returns the user registered with email.
func (s *UserService) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	email = strings.TrimSpace(email)
	for _, u := range all {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return nil, fmt.Errorf("%w: no user with email %s", model.ErrNotFound, email)
}

// List returns the structurally valid users in collection order. Invalid
// records are skipped and logged.
func (s *UserService) List(ctx context.Context) ([]*model.User, error) {
	all, err := s.users.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*model.User, 0, len(all))
	for i := range all {
		u := all[i]
		if err := u.Validate(); err != nil {
			s.logger.Warn("skipping invalid user record", zap.String("user_id", u.ID), zap.Error(err))
			continue
		}
		out = append(out, &u)
	}
	return out, nil
}
