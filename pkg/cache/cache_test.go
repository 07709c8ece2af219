package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

type mapStore struct {
	mu      sync.Mutex
	entries map[string]*Entry
	getErr  error
}

func newMapStore() *mapStore {
	return &mapStore{entries: make(map[string]*Entry)}
}

func (s *mapStore) key(user, feature, hash string) string {
	return user + "|" + feature + "|" + hash
}

func (s *mapStore) GetEntry(_ context.Context, user, feature, hash string, now time.Time) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	e, ok := s.entries[s.key(user, feature, hash)]
	if !ok || e.Expired(now) {
		return nil, ErrMiss
	}
	cp := *e
	return &cp, nil
}

func (s *mapStore) PutEntry(_ context.Context, e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.entries[s.key(e.UserID, e.Feature, e.RequestHash)] = &cp
	return nil
}

func (s *mapStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, e := range s.entries {
		if e.Expired(now) {
			delete(s.entries, k)
			n++
		}
	}
	return n, nil
}

func TestHashInput_KeyOrderIndependent(t *testing.T) {
	a := json.RawMessage(`{"meeting":"standup","attendees":["a","b"],"opts":{"x":1,"y":2}}`)
	b := map[string]any{
		"opts":      map[string]any{"y": 2, "x": 1},
		"attendees": []string{"a", "b"},
		"meeting":   "standup",
	}

	ha, _, err := HashInput(a)
	if err != nil {
		t.Fatalf("HashInput failed: %v", err)
	}
	hb, _, err := HashInput(b)
	if err != nil {
		t.Fatalf("HashInput failed: %v", err)
	}
	if ha != hb {
		t.Errorf("expected equal hashes, got %s and %s", ha, hb)
	}
}

func TestHashInput_Distinguishes(t *testing.T) {
	tests := []struct {
		name string
		a, b any
	}{
		{name: "array order matters", a: []int{1, 2}, b: []int{2, 1}},
		{name: "value differs", a: map[string]string{"q": "x"}, b: map[string]string{"q": "y"}},
		{name: "large integers keep precision", a: json.RawMessage(`{"id":9007199254740993}`), b: json.RawMessage(`{"id":9007199254740992}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ha, _, err := HashInput(tt.a)
			if err != nil {
				t.Fatalf("HashInput failed: %v", err)
			}
			hb, _, err := HashInput(tt.b)
			if err != nil {
				t.Fatalf("HashInput failed: %v", err)
			}
			if ha == hb {
				t.Errorf("expected different hashes")
			}
		})
	}
}

func TestHashInput_InvalidRawJSON(t *testing.T) {
	tests := []struct {
		name  string
		input any
	}{
		{"truncated", json.RawMessage(`{"broken"`)},
		{"trailing value", json.RawMessage(`{"a":1} {"b":2}`)},
		{"trailing bytes", []byte(`{"a":1}]`)},
		{"empty", json.RawMessage(``)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := HashInput(tt.input); err == nil {
				t.Errorf("expected error for %q", tt.input)
			}
		})
	}

	// Surrounding whitespace is not trailing data.
	h1, _, err := HashInput(json.RawMessage(`{"a":1}`))
	if err != nil {
		t.Fatalf("HashInput failed: %v", err)
	}
	h2, _, err := HashInput(json.RawMessage(" {\"a\":1}\n"))
	if err != nil {
		t.Fatalf("HashInput with whitespace failed: %v", err)
	}
	if h1 != h2 {
		t.Error("whitespace changed the hash")
	}
}

func TestCache_TTL(t *testing.T) {
	store := newMapStore()
	start := time.Date(2026, time.January, 5, 8, 0, 0, 0, time.UTC)
	now := start
	c := New(store, Config{Now: func() time.Time { return now }})
	ctx := context.Background()

	input := map[string]string{"transcript": "notes"}
	if _, err := c.Put(ctx, "user-1", "meeting_summary", input, map[string]string{"summary": "ok"}, 24*time.Hour); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	now = start.Add(23 * time.Hour)
	entry, err := c.Lookup(ctx, "user-1", "meeting_summary", input)
	if err != nil {
		t.Fatalf("expected hit at 23h, got %v", err)
	}
	if string(entry.Result) != `{"summary":"ok"}` {
		t.Errorf("unexpected result %s", entry.Result)
	}

	now = start.Add(24 * time.Hour)
	if _, err := c.Lookup(ctx, "user-1", "meeting_summary", input); !errors.Is(err, ErrMiss) {
		t.Errorf("expected miss at exactly expiry, got %v", err)
	}

	now = start.Add(25 * time.Hour)
	if _, err := c.Lookup(ctx, "user-1", "meeting_summary", input); !errors.Is(err, ErrMiss) {
		t.Errorf("expected miss at 25h, got %v", err)
	}
}

func TestCache_KeyScoping(t *testing.T) {
	store := newMapStore()
	c := New(store, Config{})
	ctx := context.Background()

	if _, err := c.Put(ctx, "user-1", "task_breakdown", "plan", "result", time.Hour); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	tests := []struct {
		name    string
		user    string
		feature string
		input   any
		wantHit bool
	}{
		{name: "same key", user: "user-1", feature: "task_breakdown", input: "plan", wantHit: true},
		{name: "other user", user: "user-2", feature: "task_breakdown", input: "plan"},
		{name: "other feature", user: "user-1", feature: "meeting_summary", input: "plan"},
		{name: "other input", user: "user-1", feature: "task_breakdown", input: "plan2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Lookup(ctx, tt.user, tt.feature, tt.input)
			if tt.wantHit && err != nil {
				t.Errorf("expected hit, got %v", err)
			}
			if !tt.wantHit && !errors.Is(err, ErrMiss) {
				t.Errorf("expected miss, got %v", err)
			}
		})
	}
}

func TestCache_PutOverwrites(t *testing.T) {
	store := newMapStore()
	start := time.Date(2026, time.January, 5, 8, 0, 0, 0, time.UTC)
	now := start
	c := New(store, Config{Now: func() time.Time { return now }})
	ctx := context.Background()

	if _, err := c.Put(ctx, "user-1", "meeting_summary", "in", "out", time.Hour); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	now = start.Add(30 * time.Minute)
	second, err := c.Put(ctx, "user-1", "meeting_summary", "in", "out", time.Hour)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if len(store.entries) != 1 {
		t.Fatalf("expected a single entry, got %d", len(store.entries))
	}
	for _, e := range store.entries {
		if !e.ExpiresAt.Equal(second.ExpiresAt) {
			t.Errorf("expected later expiry %v, got %v", second.ExpiresAt, e.ExpiresAt)
		}
	}
}

func TestCache_BackendErrorIsNotMiss(t *testing.T) {
	store := newMapStore()
	store.getErr = errors.New("connection refused")
	c := New(store, Config{})

	_, err := c.Lookup(context.Background(), "user-1", "meeting_summary", "in")
	if err == nil || errors.Is(err, ErrMiss) {
		t.Fatalf("expected backend error, got %v", err)
	}
}

func TestCache_PutRejectsInvalid(t *testing.T) {
	c := New(newMapStore(), Config{})
	ctx := context.Background()

	if _, err := c.Put(ctx, "u", "f", "in", "out", 0); err == nil {
		t.Error("expected error for zero ttl")
	}
	if _, err := c.Put(ctx, "u", "f", "in", json.RawMessage(`{`), time.Hour); err == nil {
		t.Error("expected error for invalid raw result")
	}
}

func TestCache_Sweep(t *testing.T) {
	store := newMapStore()
	start := time.Date(2026, time.January, 5, 8, 0, 0, 0, time.UTC)
	now := start
	c := New(store, Config{Now: func() time.Time { return now }})
	ctx := context.Background()

	c.Put(ctx, "u", "a", "1", "r", time.Hour)
	c.Put(ctx, "u", "b", "2", "r", 3*time.Hour)

	now = start.Add(2 * time.Hour)
	n, err := c.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 deletion, got %d", n)
	}
	if len(store.entries) != 1 {
		t.Errorf("expected 1 remaining entry, got %d", len(store.entries))
	}
}
