// Package storagetest provides a conformance suite shared by every storage
// backend.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"mercator-hq/creditgate/pkg/cache"
	"mercator-hq/creditgate/pkg/ledger"
)

// Store is the combined interface exercised by the suite.
type Store interface {
	ledger.Store
	cache.Store
}

// Factory returns a fresh, empty store. Cleanup should be registered with
// t.Cleanup.
type Factory func(t *testing.T) Store

// Base is the reference time used by the suite. It has millisecond
// precision so every backend round-trips it exactly.
var Base = time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)

// Run executes the full conformance suite.
func Run(t *testing.T, newStore Factory) {
	t.Run("GetOrCreateRecord", func(t *testing.T) { testGetOrCreate(t, newStore(t)) })
	t.Run("ConcurrentCreate", func(t *testing.T) { testConcurrentCreate(t, newStore(t)) })
	t.Run("DeductCredits", func(t *testing.T) { testDeduct(t, newStore(t)) })
	t.Run("ConcurrentDeduct", func(t *testing.T) { testConcurrentDeduct(t, newStore(t)) })
	t.Run("Transactions", func(t *testing.T) { testTransactions(t, newStore(t)) })
	t.Run("ClaimWarning", func(t *testing.T) { testClaimWarning(t, newStore(t)) })
	t.Run("LastCharged", func(t *testing.T) { testLastCharged(t, newStore(t)) })
	t.Run("CacheEntries", func(t *testing.T) { testCacheEntries(t, newStore(t)) })
	t.Run("DeleteExpired", func(t *testing.T) { testDeleteExpired(t, newStore(t)) })
}

func txn(feature string, credits int, cached bool, ts time.Time) ledger.Transaction {
	return ledger.Transaction{
		ID:              fmt.Sprintf("%s-%d-%d", feature, credits, ts.UnixNano()),
		Feature:         feature,
		CreditsDeducted: credits,
		Timestamp:       ts,
		Metadata:        ledger.TransactionMetadata{Cached: cached, RequestID: "req", InputSize: 12},
	}
}

func testGetOrCreate(t *testing.T, s Store) {
	ctx := context.Background()

	rec, err := s.GetOrCreateRecord(ctx, "user-1", "2026-03", 100, Base)
	if err != nil {
		t.Fatalf("GetOrCreateRecord failed: %v", err)
	}
	if rec.UserID != "user-1" || rec.PeriodKey != "2026-03" || rec.CreditsLimit != 100 || rec.CreditsUsed != 0 {
		t.Fatalf("unexpected new record %+v", rec)
	}

	// A second call must not reset the limit or usage.
	if _, err := s.DeductCredits(ctx, "user-1", "2026-03", txn("chat_message", 7, false, Base)); err != nil {
		t.Fatalf("DeductCredits failed: %v", err)
	}
	rec, err = s.GetOrCreateRecord(ctx, "user-1", "2026-03", 500, Base.Add(time.Minute))
	if err != nil {
		t.Fatalf("GetOrCreateRecord failed: %v", err)
	}
	if rec.CreditsLimit != 100 || rec.CreditsUsed != 7 {
		t.Errorf("existing record was modified: %+v", rec)
	}
	if !rec.CreatedAt.Equal(Base) {
		t.Errorf("CreatedAt = %v, want %v", rec.CreatedAt, Base)
	}

	other, err := s.GetOrCreateRecord(ctx, "user-1", "2026-04", 200, Base)
	if err != nil {
		t.Fatalf("GetOrCreateRecord failed: %v", err)
	}
	if other.CreditsUsed != 0 || other.CreditsLimit != 200 {
		t.Errorf("new period should start fresh, got %+v", other)
	}
}

func testConcurrentCreate(t *testing.T, s Store) {
	ctx := context.Background()
	const workers = 8

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.GetOrCreateRecord(ctx, "user-1", "2026-03", 100, Base); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent GetOrCreateRecord failed: %v", err)
	}

	if _, err := s.DeductCredits(ctx, "user-1", "2026-03", txn("chat_message", 1, false, Base)); err != nil {
		t.Fatalf("DeductCredits failed: %v", err)
	}
	rec, err := s.GetOrCreateRecord(ctx, "user-1", "2026-03", 100, Base)
	if err != nil {
		t.Fatalf("GetOrCreateRecord failed: %v", err)
	}
	if rec.CreditsUsed != 1 {
		t.Errorf("expected a single record with 1 credit used, got %+v", rec)
	}
}

func testDeduct(t *testing.T, s Store) {
	ctx := context.Background()

	if _, err := s.DeductCredits(ctx, "ghost", "2026-03", txn("chat_message", 1, false, Base)); !errors.Is(err, ledger.ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound, got %v", err)
	}

	if _, err := s.GetOrCreateRecord(ctx, "user-1", "2026-03", 100, Base); err != nil {
		t.Fatalf("GetOrCreateRecord failed: %v", err)
	}

	rec, err := s.DeductCredits(ctx, "user-1", "2026-03", txn("weekly_report", 60, false, Base))
	if err != nil {
		t.Fatalf("DeductCredits failed: %v", err)
	}
	if rec.CreditsUsed != 60 || rec.CreditsLimit != 100 {
		t.Errorf("unexpected record after deduction %+v", rec)
	}

	rec, err = s.DeductCredits(ctx, "user-1", "2026-03", txn("weekly_report", 41, false, Base))
	if !errors.Is(err, ledger.ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}
	if rec == nil || rec.CreditsUsed != 60 {
		t.Errorf("expected current record with the rejection, got %+v", rec)
	}

	rec, err = s.DeductCredits(ctx, "user-1", "2026-03", txn("weekly_report", 40, false, Base))
	if err != nil {
		t.Fatalf("deduction up to the limit must succeed: %v", err)
	}
	if rec.CreditsUsed != 100 || rec.Remaining() != 0 {
		t.Errorf("expected exhausted record, got %+v", rec)
	}

	txns, err := s.Transactions(ctx, "user-1", "2026-03", 0)
	if err != nil {
		t.Fatalf("Transactions failed: %v", err)
	}
	if len(txns) != 2 {
		t.Errorf("rejected deduction must not append a transaction, got %d", len(txns))
	}
}

func testConcurrentDeduct(t *testing.T, s Store) {
	ctx := context.Background()
	if _, err := s.GetOrCreateRecord(ctx, "user-1", "2026-03", 100, Base); err != nil {
		t.Fatalf("GetOrCreateRecord failed: %v", err)
	}

	const workers = 10
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		rejected int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tx := txn("project_insights", 30, false, Base.Add(time.Duration(i)*time.Millisecond))
			for {
				_, err := s.DeductCredits(ctx, "user-1", "2026-03", tx)
				mu.Lock()
				switch {
				case err == nil:
					ok++
				case errors.Is(err, ledger.ErrInsufficientCredits):
					rejected++
				case errors.Is(err, ledger.ErrConflict):
					mu.Unlock()
					continue
				default:
					t.Errorf("unexpected error: %v", err)
				}
				mu.Unlock()
				return
			}
		}(i)
	}
	wg.Wait()

	if ok != 3 || rejected != workers-3 {
		t.Errorf("expected 3 successes and %d rejections, got %d and %d", workers-3, ok, rejected)
	}
	rec, err := s.GetOrCreateRecord(ctx, "user-1", "2026-03", 100, Base)
	if err != nil {
		t.Fatalf("GetOrCreateRecord failed: %v", err)
	}
	if rec.CreditsUsed != 90 {
		t.Errorf("expected 90 credits used, got %d", rec.CreditsUsed)
	}
}

func testTransactions(t *testing.T, s Store) {
	ctx := context.Background()
	if _, err := s.GetOrCreateRecord(ctx, "user-1", "2026-03", 100, Base); err != nil {
		t.Fatalf("GetOrCreateRecord failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := s.DeductCredits(ctx, "user-1", "2026-03", txn("chat_message", 1, false, Base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("DeductCredits failed: %v", err)
		}
	}
	hit := txn("meeting_summary", 0, true, Base.Add(10*time.Second))
	if err := s.AppendTransaction(ctx, "user-1", "2026-03", hit); err != nil {
		t.Fatalf("AppendTransaction failed: %v", err)
	}

	rec, _ := s.GetOrCreateRecord(ctx, "user-1", "2026-03", 100, Base)
	if rec.CreditsUsed != 3 {
		t.Errorf("AppendTransaction changed usage: %d", rec.CreditsUsed)
	}

	all, err := s.Transactions(ctx, "user-1", "2026-03", 0)
	if err != nil {
		t.Fatalf("Transactions failed: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 transactions, got %d", len(all))
	}
	first := all[0]
	if first.ID != hit.ID || !first.Metadata.Cached || first.CreditsDeducted != 0 {
		t.Errorf("expected newest cache hit first, got %+v", first)
	}
	if !first.Timestamp.Equal(hit.Timestamp) || first.Metadata.RequestID != "req" || first.Metadata.InputSize != 12 {
		t.Errorf("transaction did not round-trip: %+v", first)
	}

	limited, err := s.Transactions(ctx, "user-1", "2026-03", 2)
	if err != nil {
		t.Fatalf("Transactions failed: %v", err)
	}
	if len(limited) != 2 || limited[1].Timestamp.After(limited[0].Timestamp) {
		t.Errorf("expected 2 transactions newest first, got %+v", limited)
	}

	if err := s.AppendTransaction(ctx, "ghost", "2026-03", hit); !errors.Is(err, ledger.ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound, got %v", err)
	}
}

func testClaimWarning(t *testing.T, s Store) {
	ctx := context.Background()
	if _, err := s.GetOrCreateRecord(ctx, "user-1", "2026-03", 100, Base); err != nil {
		t.Fatalf("GetOrCreateRecord failed: %v", err)
	}

	const workers = 6
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.ClaimWarning(ctx, "user-1", "2026-03", ledger.Threshold50)
			if err != nil {
				t.Errorf("ClaimWarning failed: %v", err)
				return
			}
			if ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if winners != 1 {
		t.Errorf("expected exactly one claim to win, got %d", winners)
	}

	rec, _ := s.GetOrCreateRecord(ctx, "user-1", "2026-03", 100, Base)
	if !rec.Warnings.FiftyPercent || rec.Warnings.EightyPercent || rec.Warnings.HundredPercent {
		t.Errorf("unexpected warnings %+v", rec.Warnings)
	}

	ok, err := s.ClaimWarning(ctx, "user-1", "2026-03", ledger.Threshold80)
	if err != nil || !ok {
		t.Errorf("expected 80%% claim to succeed, got %v, %v", ok, err)
	}
}

func testLastCharged(t *testing.T, s Store) {
	ctx := context.Background()

	if _, ok, err := s.LastCharged(ctx, "user-1", "context_analysis"); err != nil || ok {
		t.Fatalf("expected no charge history, got %v, %v", ok, err)
	}

	if _, err := s.GetOrCreateRecord(ctx, "user-1", "2026-02", 100, Base); err != nil {
		t.Fatalf("GetOrCreateRecord failed: %v", err)
	}
	if _, err := s.GetOrCreateRecord(ctx, "user-1", "2026-03", 100, Base); err != nil {
		t.Fatalf("GetOrCreateRecord failed: %v", err)
	}

	charged := Base.Add(-time.Hour)
	if _, err := s.DeductCredits(ctx, "user-1", "2026-02", txn("context_analysis", 5, false, charged)); err != nil {
		t.Fatalf("DeductCredits failed: %v", err)
	}
	if _, err := s.DeductCredits(ctx, "user-1", "2026-03", txn("task_breakdown", 3, false, Base)); err != nil {
		t.Fatalf("DeductCredits failed: %v", err)
	}
	if err := s.AppendTransaction(ctx, "user-1", "2026-03", txn("context_analysis", 0, true, Base)); err != nil {
		t.Fatalf("AppendTransaction failed: %v", err)
	}

	last, ok, err := s.LastCharged(ctx, "user-1", "context_analysis")
	if err != nil || !ok {
		t.Fatalf("LastCharged = %v, %v", ok, err)
	}
	if !last.Equal(charged) {
		t.Errorf("cache hit moved the charge time: got %v, want %v", last, charged)
	}

	if _, ok, _ := s.LastCharged(ctx, "user-2", "context_analysis"); ok {
		t.Error("charge history leaked across users")
	}
}

func testCacheEntries(t *testing.T, s Store) {
	ctx := context.Background()

	if _, err := s.GetEntry(ctx, "user-1", "meeting_summary", "h1", Base); !errors.Is(err, cache.ErrMiss) {
		t.Fatalf("expected ErrMiss, got %v", err)
	}

	entry := &cache.Entry{
		UserID:      "user-1",
		Feature:     "meeting_summary",
		RequestHash: "h1",
		InputData:   []byte(`{"a":1}`),
		Result:      []byte(`{"summary":"v1"}`),
		CreatedAt:   Base,
		ExpiresAt:   Base.Add(24 * time.Hour),
	}
	if err := s.PutEntry(ctx, entry); err != nil {
		t.Fatalf("PutEntry failed: %v", err)
	}

	got, err := s.GetEntry(ctx, "user-1", "meeting_summary", "h1", Base.Add(23*time.Hour))
	if err != nil {
		t.Fatalf("GetEntry failed: %v", err)
	}
	if string(got.Result) != `{"summary":"v1"}` || string(got.InputData) != `{"a":1}` {
		t.Errorf("entry did not round-trip: %+v", got)
	}
	if !got.ExpiresAt.Equal(entry.ExpiresAt) {
		t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, entry.ExpiresAt)
	}

	if _, err := s.GetEntry(ctx, "user-1", "meeting_summary", "h1", Base.Add(25*time.Hour)); !errors.Is(err, cache.ErrMiss) {
		t.Errorf("expired entry served: %v", err)
	}

	overwrite := *entry
	overwrite.Result = []byte(`{"summary":"v2"}`)
	overwrite.CreatedAt = Base.Add(time.Hour)
	overwrite.ExpiresAt = Base.Add(25 * time.Hour)
	if err := s.PutEntry(ctx, &overwrite); err != nil {
		t.Fatalf("PutEntry overwrite failed: %v", err)
	}
	got, err = s.GetEntry(ctx, "user-1", "meeting_summary", "h1", Base.Add(24*time.Hour+30*time.Minute))
	if err != nil {
		t.Fatalf("GetEntry after overwrite failed: %v", err)
	}
	if string(got.Result) != `{"summary":"v2"}` || !got.ExpiresAt.Equal(overwrite.ExpiresAt) {
		t.Errorf("overwrite not applied: %+v", got)
	}

	if _, err := s.GetEntry(ctx, "user-2", "meeting_summary", "h1", Base); !errors.Is(err, cache.ErrMiss) {
		t.Errorf("entry leaked across users: %v", err)
	}
}

func testDeleteExpired(t *testing.T, s Store) {
	ctx := context.Background()

	for i, ttl := range []time.Duration{time.Hour, 2 * time.Hour, 48 * time.Hour} {
		e := &cache.Entry{
			UserID:      "user-1",
			Feature:     "task_breakdown",
			RequestHash: fmt.Sprintf("h%d", i),
			InputData:   []byte(`{}`),
			Result:      []byte(`"r"`),
			CreatedAt:   Base,
			ExpiresAt:   Base.Add(ttl),
		}
		if err := s.PutEntry(ctx, e); err != nil {
			t.Fatalf("PutEntry failed: %v", err)
		}
	}

	n, err := s.DeleteExpired(ctx, Base.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("DeleteExpired failed: %v", err)
	}
	if n != 2 && n != 0 {
		// Backends with native expiry report 0 deletions.
		t.Errorf("expected 2 deletions, got %d", n)
	}

	if _, err := s.GetEntry(ctx, "user-1", "task_breakdown", "h2", Base.Add(3*time.Hour)); err != nil {
		t.Errorf("live entry removed by sweep: %v", err)
	}
}
