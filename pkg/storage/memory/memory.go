// Package memory provides an in-process storage backend for the ledger and
// response cache. It is the default backend and the one used by tests.
// All data is lost when the process exits.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"mercator-hq/creditgate/pkg/cache"
	"mercator-hq/creditgate/pkg/ledger"
)

type recordKey struct {
	userID    string
	periodKey string
}

type cacheKey struct {
	userID  string
	feature string
	hash    string
}

type recordState struct {
	record ledger.UsageRecord
	txns   []ledger.Transaction
}

// Store implements ledger.Store and cache.Store in memory.
//
// Every mutation runs inside a single critical section, which makes the
// conditional deduction atomic with respect to concurrent callers.
type Store struct {
	mu          sync.RWMutex
	records     map[recordKey]*recordState
	lastCharged map[string]map[string]time.Time
	entries     map[cacheKey]*cache.Entry
}

// New creates an empty store.
func New() *Store {
	return &Store{
		records:     make(map[recordKey]*recordState),
		lastCharged: make(map[string]map[string]time.Time),
		entries:     make(map[cacheKey]*cache.Entry),
	}
}

// GetOrCreateRecord implements ledger.Store.
func (s *Store) GetOrCreateRecord(ctx context.Context, userID, periodKey string, limit int, now time.Time) (*ledger.UsageRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	k := recordKey{userID, periodKey}
	st, ok := s.records[k]
	if !ok {
		st = &recordState{record: ledger.UsageRecord{
			UserID:       userID,
			PeriodKey:    periodKey,
			CreditsLimit: limit,
			CreatedAt:    now,
			UpdatedAt:    now,
		}}
		s.records[k] = st
	}
	rec := st.record
	return &rec, nil
}

// DeductCredits implements ledger.Store.
func (s *Store) DeductCredits(ctx context.Context, userID, periodKey string, txn ledger.Transaction) (*ledger.UsageRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.records[recordKey{userID, periodKey}]
	if !ok {
		return nil, ledger.ErrRecordNotFound
	}
	if st.record.CreditsUsed+txn.CreditsDeducted > st.record.CreditsLimit {
		rec := st.record
		return &rec, ledger.ErrInsufficientCredits
	}

	st.record.CreditsUsed += txn.CreditsDeducted
	st.record.UpdatedAt = txn.Timestamp
	st.txns = append(st.txns, txn)
	s.markCharged(userID, txn)

	rec := st.record
	return &rec, nil
}

// AppendTransaction implements ledger.Store.
func (s *Store) AppendTransaction(ctx context.Context, userID, periodKey string, txn ledger.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.records[recordKey{userID, periodKey}]
	if !ok {
		return ledger.ErrRecordNotFound
	}
	st.txns = append(st.txns, txn)
	st.record.UpdatedAt = txn.Timestamp
	s.markCharged(userID, txn)
	return nil
}

func (s *Store) markCharged(userID string, txn ledger.Transaction) {
	if txn.Metadata.Cached {
		return
	}
	byFeature, ok := s.lastCharged[userID]
	if !ok {
		byFeature = make(map[string]time.Time)
		s.lastCharged[userID] = byFeature
	}
	if txn.Timestamp.After(byFeature[txn.Feature]) {
		byFeature[txn.Feature] = txn.Timestamp
	}
}

// ClaimWarning implements ledger.Store.
func (s *Store) ClaimWarning(ctx context.Context, userID, periodKey string, t ledger.Threshold) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.records[recordKey{userID, periodKey}]
	if !ok {
		return false, ledger.ErrRecordNotFound
	}
	if st.record.Warnings.Has(t) {
		return false, nil
	}
	st.record.Warnings.Set(t)
	return true, nil
}

// Transactions implements ledger.Store.
func (s *Store) Transactions(ctx context.Context, userID, periodKey string, limit int) ([]ledger.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.records[recordKey{userID, periodKey}]
	if !ok {
		return nil, nil
	}
	n := len(st.txns)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]ledger.Transaction, 0, n)
	for i := len(st.txns) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, st.txns[i])
	}
	return out, nil
}

// LastCharged implements ledger.Store.
func (s *Store) LastCharged(ctx context.Context, userID, feature string) (time.Time, bool, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ts, ok := s.lastCharged[userID][feature]
	return ts, ok, nil
}

// GetEntry implements cache.Store.
func (s *Store) GetEntry(ctx context.Context, userID, feature, requestHash string, now time.Time) (*cache.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[cacheKey{userID, feature, requestHash}]
	if !ok || e.Expired(now) {
		return nil, cache.ErrMiss
	}
	cp := *e
	return &cp, nil
}

// PutEntry implements cache.Store.
func (s *Store) PutEntry(ctx context.Context, entry *cache.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *entry
	s.entries[cacheKey{entry.UserID, entry.Feature, entry.RequestHash}] = &cp
	return nil
}

// DeleteExpired implements cache.Store.
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for k, e := range s.entries {
		if e.Expired(now) {
			delete(s.entries, k)
			deleted++
		}
	}
	return deleted, nil
}

// Records returns a snapshot of every usage record, ordered by user and
// period. Intended for diagnostics and tests.
func (s *Store) Records() []ledger.UsageRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ledger.UsageRecord, 0, len(s.records))
	for _, st := range s.records {
		out = append(out, st.record)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].PeriodKey < out[j].PeriodKey
	})
	return out
}

// CacheSize returns the number of stored cache entries, expired or not.
func (s *Store) CacheSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Ping implements storage.Backend.
func (s *Store) Ping(context.Context) error {
	return nil
}

// Name implements storage.Backend.
func (s *Store) Name() string {
	return "memory"
}

// Close implements storage.Backend. It is a no-op.
func (s *Store) Close() error {
	return nil
}
