package memory

import (
	"context"
	"testing"
	"time"

	"mercator-hq/creditgate/pkg/cache"
	"mercator-hq/creditgate/pkg/storage/storagetest"
)

func TestStore_Conformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storagetest.Store {
		return New()
	})
}

func TestStore_DeleteExpiredCounts(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := storagetest.Base

	s.PutEntry(ctx, &cache.Entry{UserID: "u", Feature: "f", RequestHash: "a", ExpiresAt: base.Add(time.Hour)})
	s.PutEntry(ctx, &cache.Entry{UserID: "u", Feature: "f", RequestHash: "b", ExpiresAt: base.Add(3 * time.Hour)})

	n, err := s.DeleteExpired(ctx, base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("DeleteExpired failed: %v", err)
	}
	if n != 1 || s.CacheSize() != 1 {
		t.Errorf("expected 1 deletion and 1 remaining, got %d and %d", n, s.CacheSize())
	}
}

func TestStore_CancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.GetOrCreateRecord(ctx, "u", "p", 10, time.Now()); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestStore_Records(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.GetOrCreateRecord(ctx, "b", "2026-03", 10, storagetest.Base)
	s.GetOrCreateRecord(ctx, "a", "2026-04", 10, storagetest.Base)
	s.GetOrCreateRecord(ctx, "a", "2026-03", 10, storagetest.Base)

	recs := s.Records()
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	if recs[0].UserID != "a" || recs[0].PeriodKey != "2026-03" || recs[2].UserID != "b" {
		t.Errorf("records not ordered: %+v", recs)
	}
}
