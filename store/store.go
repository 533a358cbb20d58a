package store

import (
	"context"
	"errors"

	"github.com/Goofygiraffe06/blaze/internal/models"
)

var (
	// ErrUserExists is returned when an email is already registered.
	ErrUserExists = errors.New("user already exists")
	// ErrNotFound is returned when no row matches a lookup.
	ErrNotFound = errors.New("not found")
)

// UserStore persists user records keyed by email.
type UserStore interface {
	CreateUser(ctx context.Context, user models.User) (models.User, error)
	FindUserByEmail(ctx context.Context, email string) (models.User, error)
	MarkUserVerified(ctx context.Context, email string) error
}

// CodeStore persists one-time codes keyed by (code, userID).
type CodeStore interface {
	CreateCode(ctx context.Context, code models.OneTimeCode) error
	FindUnverifiedCode(ctx context.Context, code, userID string) (models.OneTimeCode, error)
	MarkCodeVerified(ctx context.Context, code, userID string) error
}
