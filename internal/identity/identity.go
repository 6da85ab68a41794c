// Package identity maps verified external identities to stable internal user ids.
package identity

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/campuskit/authgate/internal/shared/errors"
)

// Resolver resolves an email to a stable internal user id, creating the
// user record on first resolution. Ids are immutable once assigned and
// exactly one record exists per email.
type Resolver interface {
	Resolve(ctx context.Context, email string) (string, error)
}

// Memory is an in-process Resolver used when no database is configured.
type Memory struct {
	mu  sync.Mutex
	ids map[string]string
}

// NewMemory creates an in-memory resolver.
func NewMemory() *Memory {
	return &Memory{ids: make(map[string]string)}
}

// Resolve returns the id for email, assigning one on first use.
func (m *Memory) Resolve(ctx context.Context, email string) (string, error) {
	if email == "" {
		return "", errors.InvalidInput("email is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.ids[email]; ok {
		return id, nil
	}

	id := uuid.New().String()
	m.ids[email] = id
	return id, nil
}
