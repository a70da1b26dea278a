package auth

import (
	"context"
	"errors"
	"time"
)

var ErrNoSession = errors.New("session not found")

// Store persists session id -> user id bindings.
type Store interface {
	Save(ctx context.Context, id string, userID uint, expires time.Time) error
	// Load returns ErrNoSession for unknown ids.
	Load(ctx context.Context, id string) (uint, time.Time, error)
	Delete(ctx context.Context, id string) error
	DeleteUser(ctx context.Context, userID uint) error
}

// Expirer is implemented by stores that need expired rows removed
// explicitly.
type Expirer interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
