package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrMiss is returned when no live entry exists for a key.
var ErrMiss = errors.New("cache miss")

// Entry is a cached response.
type Entry struct {
	UserID      string          `json:"user_id"`
	Feature     string          `json:"feature"`
	RequestHash string          `json:"request_hash"`
	InputData   json.RawMessage `json:"input_data"`
	Result      json.RawMessage `json:"result"`
	CreatedAt   time.Time       `json:"created_at"`
	ExpiresAt   time.Time       `json:"expires_at"`
}

// Expired reports whether the entry is no longer servable at now.
func (e *Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.After(now)
}

// Store persists cache entries.
type Store interface {
	// GetEntry returns the entry for the key if ExpiresAt > now, or ErrMiss.
	GetEntry(ctx context.Context, userID, feature, requestHash string, now time.Time) (*Entry, error)

	// PutEntry inserts or overwrites the entry for its key.
	PutEntry(ctx context.Context, entry *Entry) error

	// DeleteExpired removes entries with ExpiresAt <= now and returns the
	// number removed.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
