package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"mercator-hq/creditgate/pkg/cache"
	"mercator-hq/creditgate/pkg/ledger"
)

// Store implements ledger.Store and cache.Store over a *sql.DB.
type Store struct {
	db      *sql.DB
	dialect Dialect
	queries map[string]string
}

// New wraps db. Call Migrate before first use.
func New(db *sql.DB, dialect Dialect) *Store {
	s := &Store{db: db, dialect: dialect, queries: make(map[string]string)}
	for _, q := range []string{
		insertRecordQuery, selectRecordQuery, deductQuery, touchRecordQuery,
		insertTransactionQuery, selectTransactionsQuery, lastChargedQuery,
		selectEntryQuery, upsertEntryQuery, deleteExpiredQuery,
	} {
		s.queries[q] = dialect.Rebind(q)
	}
	for _, q := range claimWarningQueries {
		s.queries[q] = dialect.Rebind(q)
	}
	return s
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) q(query string) string {
	if rebound, ok := s.queries[query]; ok {
		return rebound
	}
	return s.dialect.Rebind(query)
}

// Migrate creates tables and indexes if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.Schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply %s schema: %w", s.dialect.Name, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// classify maps engine contention errors to ledger.ErrConflict.
func (s *Store) classify(err error) error {
	if err == nil {
		return nil
	}
	if s.dialect.IsConflict != nil && s.dialect.IsConflict(err) {
		return fmt.Errorf("%w: %v", ledger.ErrConflict, err)
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner, userID, periodKey string) (*ledger.UsageRecord, error) {
	var (
		rec                  = &ledger.UsageRecord{UserID: userID, PeriodKey: periodKey}
		w50, w80, w100       int
		createdAt, updatedAt int64
	)
	if err := row.Scan(&rec.CreditsUsed, &rec.CreditsLimit, &w50, &w80, &w100, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	rec.Warnings = ledger.Warnings{FiftyPercent: w50 != 0, EightyPercent: w80 != 0, HundredPercent: w100 != 0}
	rec.CreatedAt = fromMillis(createdAt)
	rec.UpdatedAt = fromMillis(updatedAt)
	return rec, nil
}

// GetOrCreateRecord implements ledger.Store.
func (s *Store) GetOrCreateRecord(ctx context.Context, userID, periodKey string, limit int, now time.Time) (*ledger.UsageRecord, error) {
	ts := now.UnixMilli()
	if _, err := s.db.ExecContext(ctx, s.q(insertRecordQuery), userID, periodKey, limit, ts, ts); err != nil {
		return nil, fmt.Errorf("failed to create usage record: %w", s.classify(err))
	}

	rec, err := scanRecord(s.db.QueryRowContext(ctx, s.q(selectRecordQuery), userID, periodKey), userID, periodKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load usage record: %w", s.classify(err))
	}
	return rec, nil
}

// DeductCredits implements ledger.Store.
func (s *Store) DeductCredits(ctx context.Context, userID, periodKey string, txn ledger.Transaction) (rec *ledger.UsageRecord, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", s.classify(err))
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	ts := txn.Timestamp.UnixMilli()
	rec, err = scanRecord(tx.QueryRowContext(ctx, s.q(deductQuery),
		txn.CreditsDeducted, ts, userID, periodKey, txn.CreditsDeducted,
	), userID, periodKey)
	if errors.Is(err, sql.ErrNoRows) {
		current, lookupErr := scanRecord(tx.QueryRowContext(ctx, s.q(selectRecordQuery), userID, periodKey), userID, periodKey)
		if errors.Is(lookupErr, sql.ErrNoRows) {
			return nil, ledger.ErrRecordNotFound
		}
		if lookupErr != nil {
			return nil, fmt.Errorf("failed to load usage record: %w", s.classify(lookupErr))
		}
		return current, ledger.ErrInsufficientCredits
	}
	if err != nil {
		return nil, fmt.Errorf("failed to deduct credits: %w", s.classify(err))
	}

	if err = s.insertTransaction(ctx, tx, userID, periodKey, txn); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit deduction: %w", s.classify(err))
	}
	return rec, nil
}

func (s *Store) insertTransaction(ctx context.Context, tx *sql.Tx, userID, periodKey string, txn ledger.Transaction) error {
	cached := 0
	if txn.Metadata.Cached {
		cached = 1
	}
	_, err := tx.ExecContext(ctx, s.q(insertTransactionQuery),
		txn.ID, userID, periodKey, txn.Feature, txn.CreditsDeducted, cached,
		txn.Metadata.RequestID, txn.Metadata.InputSize, txn.Timestamp.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to append transaction: %w", s.classify(err))
	}
	return nil
}

// AppendTransaction implements ledger.Store.
func (s *Store) AppendTransaction(ctx context.Context, userID, periodKey string, txn ledger.Transaction) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", s.classify(err))
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, s.q(touchRecordQuery), txn.Timestamp.UnixMilli(), userID, periodKey)
	if err != nil {
		return fmt.Errorf("failed to update usage record: %w", s.classify(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrRecordNotFound
	}
	if err = s.insertTransaction(ctx, tx, userID, periodKey, txn); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", s.classify(err))
	}
	return nil
}

func warningColumn(t ledger.Threshold) (string, error) {
	switch t {
	case ledger.Threshold50:
		return "warn_fifty", nil
	case ledger.Threshold80:
		return "warn_eighty", nil
	case ledger.Threshold100:
		return "warn_hundred", nil
	}
	return "", fmt.Errorf("unknown warning threshold %d", int(t))
}

// ClaimWarning implements ledger.Store.
func (s *Store) ClaimWarning(ctx context.Context, userID, periodKey string, t ledger.Threshold) (bool, error) {
	col, err := warningColumn(t)
	if err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, s.q(claimWarningQueries[col]), userID, periodKey)
	if err != nil {
		return false, fmt.Errorf("failed to claim warning: %w", s.classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n > 0 {
		return true, nil
	}

	var used int
	err = s.db.QueryRowContext(ctx, s.q(`SELECT credits_used FROM usage_records WHERE user_id = ? AND period_key = ?`), userID, periodKey).Scan(&used)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ledger.ErrRecordNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to load usage record: %w", s.classify(err))
	}
	return false, nil
}

// Transactions implements ledger.Store.
func (s *Store) Transactions(ctx context.Context, userID, periodKey string, limit int) ([]ledger.Transaction, error) {
	query := selectTransactionsQuery
	args := []any{userID, periodKey}
	if limit > 0 {
		query += "\n\t\tLIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", s.classify(err))
	}
	defer rows.Close()

	var txns []ledger.Transaction
	for rows.Next() {
		var (
			txn       ledger.Transaction
			cached    int
			requestID sql.NullString
			inputSize sql.NullInt64
			createdAt int64
		)
		if err := rows.Scan(&txn.ID, &txn.Feature, &txn.CreditsDeducted, &cached, &requestID, &inputSize, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txn.Metadata = ledger.TransactionMetadata{
			Cached:    cached != 0,
			RequestID: requestID.String,
			InputSize: int(inputSize.Int64),
		}
		txn.Timestamp = fromMillis(createdAt)
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return txns, nil
}

// LastCharged implements ledger.Store.
func (s *Store) LastCharged(ctx context.Context, userID, feature string) (time.Time, bool, error) {
	var last sql.NullInt64
	if err := s.db.QueryRowContext(ctx, s.q(lastChargedQuery), userID, feature).Scan(&last); err != nil {
		return time.Time{}, false, fmt.Errorf("failed to query last charge: %w", s.classify(err))
	}
	if !last.Valid {
		return time.Time{}, false, nil
	}
	return fromMillis(last.Int64), true, nil
}

// GetEntry implements cache.Store.
func (s *Store) GetEntry(ctx context.Context, userID, feature, requestHash string, now time.Time) (*cache.Entry, error) {
	var (
		input, result        string
		createdAt, expiresAt int64
	)
	err := s.db.QueryRowContext(ctx, s.q(selectEntryQuery), userID, feature, requestHash, now.UnixMilli()).
		Scan(&input, &result, &createdAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cache.ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cache entry: %w", err)
	}

	return &cache.Entry{
		UserID:      userID,
		Feature:     feature,
		RequestHash: requestHash,
		InputData:   []byte(input),
		Result:      []byte(result),
		CreatedAt:   fromMillis(createdAt),
		ExpiresAt:   fromMillis(expiresAt),
	}, nil
}

// PutEntry implements cache.Store.
func (s *Store) PutEntry(ctx context.Context, e *cache.Entry) error {
	_, err := s.db.ExecContext(ctx, s.q(upsertEntryQuery),
		e.UserID, e.Feature, e.RequestHash, string(e.InputData), string(e.Result),
		e.CreatedAt.UnixMilli(), e.ExpiresAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to store cache entry: %w", s.classify(err))
	}
	return nil
}

// DeleteExpired implements cache.Store.
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, s.q(deleteExpiredQuery), now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired entries: %w", s.classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
