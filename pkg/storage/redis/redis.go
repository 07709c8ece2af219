// Package redis provides a Redis storage backend.
//
// Every ledger mutation is a Lua script, so the compare-and-increment on a
// user's credits executes atomically on the server. Keys for one user share
// a hash tag and land in the same cluster slot.
//
// Cache entries are hashes with an absolute PEXPIREAT, so Redis reclaims
// them natively and DeleteExpired is a no-op. Reads still compare
// expires_at against the caller's clock.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"mercator-hq/creditgate/pkg/cache"
	"mercator-hq/creditgate/pkg/ledger"
)

// Config configures the Redis backend.
type Config struct {
	Addr     string
	Password string
	DB       int

	// KeyPrefix namespaces every key. Default: "creditgate:"
	KeyPrefix string
}

// Store is a Redis-backed ledger and cache store.
type Store struct {
	client *redis.Client
	prefix string
}

// Open connects to Redis and verifies connectivity.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewWithClient(client, cfg.KeyPrefix), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "creditgate:"
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) recordKey(userID, periodKey string) string {
	return s.prefix + "rec:{" + userID + "}:" + periodKey
}

func (s *Store) txnKey(userID, periodKey string) string {
	return s.prefix + "txn:{" + userID + "}:" + periodKey
}

func (s *Store) lastKey(userID string) string {
	return s.prefix + "last:{" + userID + "}"
}

func (s *Store) cacheKey(userID, feature, hash string) string {
	return s.prefix + "cache:{" + userID + "}:" + feature + ":" + hash
}

// GetOrCreateRecord implements ledger.Store.
func (s *Store) GetOrCreateRecord(ctx context.Context, userID, periodKey string, limit int, now time.Time) (*ledger.UsageRecord, error) {
	res, err := getOrCreateScript.Run(ctx, s.client,
		[]string{s.recordKey(userID, periodKey)},
		limit, now.UnixMilli(),
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("failed to create usage record: %w", err)
	}
	return parseRecord(userID, periodKey, res)
}

// DeductCredits implements ledger.Store.
func (s *Store) DeductCredits(ctx context.Context, userID, periodKey string, txn ledger.Transaction) (*ledger.UsageRecord, error) {
	payload, err := json.Marshal(txn)
	if err != nil {
		return nil, fmt.Errorf("failed to encode transaction: %w", err)
	}

	res, err := deductScript.Run(ctx, s.client,
		[]string{s.recordKey(userID, periodKey), s.txnKey(userID, periodKey), s.lastKey(userID)},
		txn.CreditsDeducted, txn.Timestamp.UnixMilli(), payload, txn.Feature,
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("failed to deduct credits: %w", err)
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("empty deduct script reply")
	}

	status, err := toInt(res[0])
	if err != nil {
		return nil, err
	}
	switch status {
	case -1:
		return nil, ledger.ErrRecordNotFound
	case 0:
		rec, err := parseRecord(userID, periodKey, res[1:])
		if err != nil {
			return nil, err
		}
		return rec, ledger.ErrInsufficientCredits
	}
	return parseRecord(userID, periodKey, res[1:])
}

// AppendTransaction implements ledger.Store.
func (s *Store) AppendTransaction(ctx context.Context, userID, periodKey string, txn ledger.Transaction) error {
	payload, err := json.Marshal(txn)
	if err != nil {
		return fmt.Errorf("failed to encode transaction: %w", err)
	}
	cached := "0"
	if txn.Metadata.Cached {
		cached = "1"
	}

	status, err := appendScript.Run(ctx, s.client,
		[]string{s.recordKey(userID, periodKey), s.txnKey(userID, periodKey), s.lastKey(userID)},
		txn.Timestamp.UnixMilli(), payload, txn.Feature, cached,
	).Int()
	if err != nil {
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	if status == -1 {
		return ledger.ErrRecordNotFound
	}
	return nil
}

func warningField(t ledger.Threshold) (string, error) {
	switch t {
	case ledger.Threshold50:
		return "w50", nil
	case ledger.Threshold80:
		return "w80", nil
	case ledger.Threshold100:
		return "w100", nil
	}
	return "", fmt.Errorf("unknown warning threshold %d", int(t))
}

// ClaimWarning implements ledger.Store.
func (s *Store) ClaimWarning(ctx context.Context, userID, periodKey string, t ledger.Threshold) (bool, error) {
	field, err := warningField(t)
	if err != nil {
		return false, err
	}
	status, err := claimWarningScript.Run(ctx, s.client, []string{s.recordKey(userID, periodKey)}, field).Int()
	if err != nil {
		return false, fmt.Errorf("failed to claim warning: %w", err)
	}
	if status == -1 {
		return false, ledger.ErrRecordNotFound
	}
	return status == 1, nil
}

// Transactions implements ledger.Store.
func (s *Store) Transactions(ctx context.Context, userID, periodKey string, limit int) ([]ledger.Transaction, error) {
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}
	raw, err := s.client.LRange(ctx, s.txnKey(userID, periodKey), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	txns := make([]ledger.Transaction, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var txn ledger.Transaction
		if err := json.Unmarshal([]byte(raw[i]), &txn); err != nil {
			return nil, fmt.Errorf("failed to decode transaction: %w", err)
		}
		txns = append(txns, txn)
	}
	return txns, nil
}

// LastCharged implements ledger.Store.
func (s *Store) LastCharged(ctx context.Context, userID, feature string) (time.Time, bool, error) {
	ms, err := s.client.HGet(ctx, s.lastKey(userID), feature).Int64()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read last charge: %w", err)
	}
	return time.UnixMilli(ms).UTC(), true, nil
}

// GetEntry implements cache.Store.
func (s *Store) GetEntry(ctx context.Context, userID, feature, requestHash string, now time.Time) (*cache.Entry, error) {
	vals, err := s.client.HMGet(ctx, s.cacheKey(userID, feature, requestHash),
		"input", "result", "created_at", "expires_at").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load cache entry: %w", err)
	}
	if len(vals) != 4 || vals[1] == nil || vals[3] == nil {
		return nil, cache.ErrMiss
	}

	createdAt, err := toInt(vals[2])
	if err != nil {
		return nil, err
	}
	expiresAt, err := toInt(vals[3])
	if err != nil {
		return nil, err
	}
	if expiresAt <= now.UnixMilli() {
		return nil, cache.ErrMiss
	}

	input, _ := vals[0].(string)
	result, _ := vals[1].(string)
	return &cache.Entry{
		UserID:      userID,
		Feature:     feature,
		RequestHash: requestHash,
		InputData:   []byte(input),
		Result:      []byte(result),
		CreatedAt:   time.UnixMilli(createdAt).UTC(),
		ExpiresAt:   time.UnixMilli(expiresAt).UTC(),
	}, nil
}

// PutEntry implements cache.Store.
func (s *Store) PutEntry(ctx context.Context, e *cache.Entry) error {
	key := s.cacheKey(e.UserID, e.Feature, e.RequestHash)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"input", string(e.InputData),
			"result", string(e.Result),
			"created_at", e.CreatedAt.UnixMilli(),
			"expires_at", e.ExpiresAt.UnixMilli(),
		)
		pipe.PExpireAt(ctx, key, e.ExpiresAt)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	return nil
}

// DeleteExpired implements cache.Store. Redis expires entries itself.
func (s *Store) DeleteExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}

// Ping implements storage.Backend.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Name implements storage.Backend.
func (s *Store) Name() string {
	return "redis"
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

// parseRecord decodes the HMGET reply ordered as recordFields.
func parseRecord(userID, periodKey string, vals []interface{}) (*ledger.UsageRecord, error) {
	if len(vals) != 7 {
		return nil, fmt.Errorf("unexpected record reply length %d", len(vals))
	}
	nums := make([]int64, len(vals))
	for i, v := range vals {
		n, err := toInt(v)
		if err != nil {
			return nil, err
		}
		nums[i] = n
	}
	return &ledger.UsageRecord{
		UserID:       userID,
		PeriodKey:    periodKey,
		CreditsUsed:  int(nums[0]),
		CreditsLimit: int(nums[1]),
		Warnings: ledger.Warnings{
			FiftyPercent:   nums[2] == 1,
			EightyPercent:  nums[3] == 1,
			HundredPercent: nums[4] == 1,
		},
		CreatedAt: time.UnixMilli(nums[5]).UTC(),
		UpdatedAt: time.UnixMilli(nums[6]).UTC(),
	}, nil
}

func toInt(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid integer %q in redis reply: %w", n, err)
		}
		return i, nil
	case nil:
		return 0, fmt.Errorf("missing field in redis reply")
	}
	return 0, fmt.Errorf("unexpected redis reply type %T", v)
}
