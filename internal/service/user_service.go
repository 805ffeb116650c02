package service

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/dlddu/registry-oauth/internal/domain"
	"github.com/dlddu/registry-oauth/internal/repository"
)

var validUserID = regexp.MustCompile(`^[a-zA-Z0-9_.@-]{1,128}$`)

// UserService maintains the local projection of users owned by the login
// front-end: the display fields shown on the consent screen and the
// developer enrollment flag.
type UserService struct {
	tx repository.Transactor
}

// NewUserService creates a new UserService instance
func NewUserService(tx repository.Transactor) *UserService {
	return &UserService{tx: tx}
}

// CreateUser records a user known to the login front-end
func (s *UserService) CreateUser(ctx context.Context, id, name, picture string) (*domain.User, error) {
	if err := ValidateUserID(id); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyUserName
	}

	user := &domain.User{
		ID:        id,
		Name:      name,
		Picture:   picture,
		CreatedAt: time.Now().UTC(),
	}
	err := s.tx.RunInTx(ctx, func(ctx context.Context, st repository.Stores) error {
		return st.Users.Create(ctx, user)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetByID retrieves a user by id
func (s *UserService) GetByID(ctx context.Context, id string) (*domain.User, error) {
	var user *domain.User
	err := s.tx.RunInTx(ctx, func(ctx context.Context, st repository.Stores) error {
		var err error
		user, err = st.Users.GetByID(ctx, id)
		return err
	})
	return user, err
}

// ValidateUserID validates the format of an externally assigned user id
func ValidateUserID(id string) error {
	if !validUserID.MatchString(id) {
		return ErrInvalidUserID
	}
	return nil
}
