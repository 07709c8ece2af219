package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Config configures a Cache.
type Config struct {
	// LookupTimeout bounds each read. Zero means no extra deadline.
	LookupTimeout time.Duration

	// Now overrides the wall clock. Default: time.Now.
	Now func() time.Time

	// Logger receives degraded-read diagnostics.
	Logger *slog.Logger
}

// Cache stores and serves settled results by request hash.
type Cache struct {
	store         Store
	lookupTimeout time.Duration
	now           func() time.Time
	logger        *slog.Logger
}

// New creates a Cache over store.
func New(store Store, cfg Config) *Cache {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Cache{
		store:         store,
		lookupTimeout: cfg.LookupTimeout,
		now:           cfg.Now,
		logger:        cfg.Logger.With("component", "cache"),
	}
}

// Lookup returns the live entry for (userID, feature, input). It returns
// ErrMiss when no entry exists; any other error is a backend failure that
// callers must also treat as a miss.
func (c *Cache) Lookup(ctx context.Context, userID, feature string, input any) (*Entry, error) {
	hash, _, err := HashInput(input)
	if err != nil {
		return nil, err
	}
	return c.LookupHash(ctx, userID, feature, hash)
}

// LookupHash is Lookup for a precomputed request hash.
func (c *Cache) LookupHash(ctx context.Context, userID, feature, hash string) (*Entry, error) {
	if c.lookupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.lookupTimeout)
		defer cancel()
	}

	now := c.now()
	entry, err := c.store.GetEntry(ctx, userID, feature, hash, now)
	if err != nil {
		if errors.Is(err, ErrMiss) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("cache lookup failed: %w", err)
	}
	// Stores filter on expiry already; this guards adapters with coarse
	// timestamp precision.
	if entry.Expired(now) {
		return nil, ErrMiss
	}
	return entry, nil
}

// Put stores result for (userID, feature, input) with the given TTL,
// overwriting any previous entry for the same key.
func (c *Cache) Put(ctx context.Context, userID, feature string, input, result any, ttl time.Duration) (*Entry, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("cache ttl must be positive: %v", ttl)
	}
	hash, canonical, err := HashInput(input)
	if err != nil {
		return nil, err
	}
	payload, err := encodeResult(result)
	if err != nil {
		return nil, err
	}

	now := c.now()
	entry := &Entry{
		UserID:      userID,
		Feature:     feature,
		RequestHash: hash,
		InputData:   canonical,
		Result:      payload,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
	if err := c.store.PutEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("cache store failed: %w", err)
	}
	return entry, nil
}

// Sweep deletes expired entries and returns how many were removed.
func (c *Cache) Sweep(ctx context.Context) (int, error) {
	n, err := c.store.DeleteExpired(ctx, c.now())
	if err != nil {
		return 0, fmt.Errorf("cache sweep failed: %w", err)
	}
	return n, nil
}

func encodeResult(result any) (json.RawMessage, error) {
	switch v := result.(type) {
	case json.RawMessage:
		if !json.Valid(v) {
			return nil, fmt.Errorf("result is not valid JSON")
		}
		return v, nil
	case []byte:
		if !json.Valid(v) {
			return nil, fmt.Errorf("result is not valid JSON")
		}
		return json.RawMessage(v), nil
	}
	b, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return b, nil
}
