package grace

import (
	"context"
	"time"

	"github.com/robalyx/legalgate/pkg/utils"
)

// MemoryStore keeps grace flags in process memory. Used when Redis is not configured.
type MemoryStore struct {
	flags *utils.TTLMap[string, struct{}]
}

// NewMemoryStore creates an in-process grace store.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		flags: utils.NewTTLMap[string, struct{}](normalizeTTL(ttl)),
	}
}

// Set marks the session as inside its grace window.
func (s *MemoryStore) Set(_ context.Context, userID, sessionID string) error {
	s.flags.Set(Key(userID, sessionID), struct{}{})
	return nil
}

// Active reports whether the session is still inside its grace window.
func (s *MemoryStore) Active(_ context.Context, userID, sessionID string) (bool, error) {
	_, ok := s.flags.Get(Key(userID, sessionID))
	return ok, nil
}

// Close stops the background cleanup of expired flags.
func (s *MemoryStore) Close() {
	s.flags.Close()
}
