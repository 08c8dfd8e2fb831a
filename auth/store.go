package auth

import (
	"context"
	"sync"
	"time"
)

// Credential is a bearer token together with the instant after which it must
// be treated as invalid.
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// ValidAt reports whether the credential can still be used at the given
// instant. The expiry bound is exclusive.
func (c Credential) ValidAt(now time.Time) bool {
	return c.Token != "" && now.Before(c.ExpiresAt)
}

// Store holds the cached credential. Implementations must be safe for
// concurrent use; Load reports false when nothing usable is stored.
type Store interface {
	Load(ctx context.Context) (Credential, bool, error)
	Save(ctx context.Context, cred Credential) error
}

type memoryStore struct {
	mu   sync.RWMutex
	cred Credential
	has  bool
}

// NewMemoryStore returns the default in-process store. The credential lives
// as long as the owning client instance and is never explicitly destroyed.
func NewMemoryStore() Store {
	return &memoryStore{}
}

func (s *memoryStore) Load(_ context.Context) (Credential, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred, s.has, nil
}

func (s *memoryStore) Save(_ context.Context, cred Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = cred
	s.has = true
	return nil
}
