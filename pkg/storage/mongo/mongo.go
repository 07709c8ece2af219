// Package mongo provides a MongoDB storage backend.
//
// Each usage record is one document holding its counters, warning flags,
// embedded transaction log and a per-feature last-charged map. Every ledger
// mutation is a single-document update, which MongoDB applies atomically,
// so no multi-document transactions or replica set are required.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"mercator-hq/creditgate/pkg/cache"
	"mercator-hq/creditgate/pkg/ledger"
)

const (
	recordsCollection = "usage_records"
	cacheCollection   = "response_cache"

	// codeWriteConflict is returned when concurrent writers touch one document.
	codeWriteConflict = 112
)

// Config configures the MongoDB backend.
type Config struct {
	URI      string
	Database string

	// ConnectTimeout bounds the initial connection. Default: 10 seconds
	ConnectTimeout time.Duration

	// TTLIndex adds a TTL index on cache expiry so MongoDB also reclaims
	// expired entries in the background.
	TTLIndex bool
}

// Store is a MongoDB-backed ledger and cache store.
type Store struct {
	client  *mongo.Client
	records *mongo.Collection
	entries *mongo.Collection
}

type warningsDoc struct {
	Fifty   bool `bson:"fifty"`
	Eighty  bool `bson:"eighty"`
	Hundred bool `bson:"hundred"`
}

type txnDoc struct {
	ID              string    `bson:"id"`
	Feature         string    `bson:"feature"`
	CreditsDeducted int       `bson:"credits_deducted"`
	Timestamp       time.Time `bson:"timestamp"`
	Cached          bool      `bson:"cached"`
	RequestID       string    `bson:"request_id,omitempty"`
	InputSize       int       `bson:"input_size,omitempty"`
}

type recordDoc struct {
	ID           string      `bson:"_id"`
	UserID       string      `bson:"user_id"`
	PeriodKey    string      `bson:"period_key"`
	CreditsUsed  int         `bson:"credits_used"`
	CreditsLimit int         `bson:"credits_limit"`
	Warnings     warningsDoc `bson:"warnings"`
	CreatedAt    time.Time   `bson:"created_at"`
	UpdatedAt    time.Time   `bson:"updated_at"`
	Transactions []txnDoc    `bson:"transactions,omitempty"`
}

type entryDoc struct {
	ID          string    `bson:"_id"`
	UserID      string    `bson:"user_id"`
	Feature     string    `bson:"feature"`
	RequestHash string    `bson:"request_hash"`
	InputData   string    `bson:"input_data"`
	Result      string    `bson:"result"`
	CreatedAt   time.Time `bson:"created_at"`
	ExpiresAt   time.Time `bson:"expires_at"`
}

// Open connects to MongoDB, verifies connectivity and ensures indexes.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongo uri cannot be empty")
	}
	if cfg.Database == "" {
		cfg.Database = "creditgate"
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	db := client.Database(cfg.Database)
	s := &Store{
		client:  client,
		records: db.Collection(recordsCollection),
		entries: db.Collection(cacheCollection),
	}
	if err := s.ensureIndexes(ctx, cfg.TTLIndex); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context, ttl bool) error {
	_, err := s.records.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "period_key", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create record index: %w", err)
	}

	expiry := mongo.IndexModel{Keys: bson.D{{Key: "expires_at", Value: 1}}}
	if ttl {
		expiry.Options = options.Index().SetExpireAfterSeconds(0)
	}
	if _, err := s.entries.Indexes().CreateOne(ctx, expiry); err != nil {
		return fmt.Errorf("failed to create cache expiry index: %w", err)
	}
	return nil
}

func recordID(userID, periodKey string) string {
	return userID + "|" + periodKey
}

func entryID(userID, feature, hash string) string {
	return userID + "|" + feature + "|" + hash
}

// lastChargedField returns the document path storing feature's last charge.
func lastChargedField(feature string) (string, error) {
	if feature == "" || strings.ContainsAny(feature, ".$") {
		return "", fmt.Errorf("invalid feature name %q", feature)
	}
	return "last_charged." + feature, nil
}

func warningField(t ledger.Threshold) (string, error) {
	switch t {
	case ledger.Threshold50:
		return "warnings.fifty", nil
	case ledger.Threshold80:
		return "warnings.eighty", nil
	case ledger.Threshold100:
		return "warnings.hundred", nil
	}
	return "", fmt.Errorf("unknown warning threshold %d", int(t))
}

func classify(err error) error {
	var se mongo.ServerError
	if errors.As(err, &se) && se.HasErrorCode(codeWriteConflict) {
		return fmt.Errorf("%w: %v", ledger.ErrConflict, err)
	}
	return err
}

var withoutTransactions = bson.M{"transactions": 0, "last_charged": 0}

// GetOrCreateRecord implements ledger.Store.
func (s *Store) GetOrCreateRecord(ctx context.Context, userID, periodKey string, limit int, now time.Time) (*ledger.UsageRecord, error) {
	id := recordID(userID, periodKey)
	update := bson.M{"$setOnInsert": bson.M{
		"user_id":       userID,
		"period_key":    periodKey,
		"credits_used":  0,
		"credits_limit": limit,
		"warnings":      warningsDoc{},
		"created_at":    now,
		"updated_at":    now,
		"transactions":  bson.A{},
	}}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After).
		SetProjection(withoutTransactions)

	var doc recordDoc
	err := s.records.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&doc)
	if mongo.IsDuplicateKeyError(err) {
		// A concurrent upsert inserted first; the document now exists.
		err = s.records.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&doc)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create usage record: %w", classify(err))
	}
	return doc.toRecord(), nil
}

// DeductCredits implements ledger.Store.
func (s *Store) DeductCredits(ctx context.Context, userID, periodKey string, txn ledger.Transaction) (*ledger.UsageRecord, error) {
	field, err := lastChargedField(txn.Feature)
	if err != nil {
		return nil, err
	}

	id := recordID(userID, periodKey)
	filter := bson.M{
		"_id": id,
		"$expr": bson.M{"$lte": bson.A{
			bson.M{"$add": bson.A{"$credits_used", txn.CreditsDeducted}},
			"$credits_limit",
		}},
	}
	update := bson.M{
		"$inc":  bson.M{"credits_used": txn.CreditsDeducted},
		"$set":  bson.M{"updated_at": txn.Timestamp},
		"$push": bson.M{"transactions": toTxnDoc(txn)},
		"$max":  bson.M{field: txn.Timestamp},
	}
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(withoutTransactions)

	var doc recordDoc
	err = s.records.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		current, lookupErr := s.findRecord(ctx, id)
		if lookupErr != nil {
			return nil, lookupErr
		}
		return current, ledger.ErrInsufficientCredits
	}
	if err != nil {
		return nil, fmt.Errorf("failed to deduct credits: %w", classify(err))
	}
	return doc.toRecord(), nil
}

func (s *Store) findRecord(ctx context.Context, id string) (*ledger.UsageRecord, error) {
	var doc recordDoc
	err := s.records.FindOne(ctx, bson.M{"_id": id}, options.FindOne().SetProjection(withoutTransactions)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ledger.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load usage record: %w", classify(err))
	}
	return doc.toRecord(), nil
}

// AppendTransaction implements ledger.Store.
func (s *Store) AppendTransaction(ctx context.Context, userID, periodKey string, txn ledger.Transaction) error {
	update := bson.M{
		"$set":  bson.M{"updated_at": txn.Timestamp},
		"$push": bson.M{"transactions": toTxnDoc(txn)},
	}
	if !txn.Metadata.Cached {
		field, err := lastChargedField(txn.Feature)
		if err != nil {
			return err
		}
		update["$max"] = bson.M{field: txn.Timestamp}
	}

	res, err := s.records.UpdateOne(ctx, bson.M{"_id": recordID(userID, periodKey)}, update)
	if err != nil {
		return fmt.Errorf("failed to append transaction: %w", classify(err))
	}
	if res.MatchedCount == 0 {
		return ledger.ErrRecordNotFound
	}
	return nil
}

// ClaimWarning implements ledger.Store.
func (s *Store) ClaimWarning(ctx context.Context, userID, periodKey string, t ledger.Threshold) (bool, error) {
	field, err := warningField(t)
	if err != nil {
		return false, err
	}
	id := recordID(userID, periodKey)

	res, err := s.records.UpdateOne(ctx,
		bson.M{"_id": id, field: bson.M{"$ne": true}},
		bson.M{"$set": bson.M{field: true}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim warning: %w", classify(err))
	}
	if res.ModifiedCount > 0 {
		return true, nil
	}

	n, err := s.records.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return false, fmt.Errorf("failed to load usage record: %w", err)
	}
	if n == 0 {
		return false, ledger.ErrRecordNotFound
	}
	return false, nil
}

// Transactions implements ledger.Store.
func (s *Store) Transactions(ctx context.Context, userID, periodKey string, limit int) ([]ledger.Transaction, error) {
	projection := bson.M{"transactions": 1}
	if limit > 0 {
		projection = bson.M{"transactions": bson.M{"$slice": -limit}}
	}

	var doc recordDoc
	err := s.records.FindOne(ctx,
		bson.M{"_id": recordID(userID, periodKey)},
		options.FindOne().SetProjection(projection),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	txns := make([]ledger.Transaction, 0, len(doc.Transactions))
	for i := len(doc.Transactions) - 1; i >= 0; i-- {
		txns = append(txns, doc.Transactions[i].toTransaction())
	}
	return txns, nil
}

// LastCharged implements ledger.Store.
func (s *Store) LastCharged(ctx context.Context, userID, feature string) (time.Time, bool, error) {
	field, err := lastChargedField(feature)
	if err != nil {
		return time.Time{}, false, err
	}

	var doc struct {
		LastCharged map[string]time.Time `bson:"last_charged"`
	}
	err = s.records.FindOne(ctx,
		bson.M{"user_id": userID, field: bson.M{"$exists": true}},
		options.FindOne().
			SetSort(bson.D{{Key: field, Value: -1}}).
			SetProjection(bson.M{field: 1}),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to query last charge: %w", err)
	}
	ts, ok := doc.LastCharged[feature]
	return ts.UTC(), ok, nil
}

// GetEntry implements cache.Store.
func (s *Store) GetEntry(ctx context.Context, userID, feature, requestHash string, now time.Time) (*cache.Entry, error) {
	var doc entryDoc
	err := s.entries.FindOne(ctx, bson.M{
		"_id":        entryID(userID, feature, requestHash),
		"expires_at": bson.M{"$gt": now},
	}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, cache.ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cache entry: %w", err)
	}
	return &cache.Entry{
		UserID:      doc.UserID,
		Feature:     doc.Feature,
		RequestHash: doc.RequestHash,
		InputData:   []byte(doc.InputData),
		Result:      []byte(doc.Result),
		CreatedAt:   doc.CreatedAt.UTC(),
		ExpiresAt:   doc.ExpiresAt.UTC(),
	}, nil
}

// PutEntry implements cache.Store.
func (s *Store) PutEntry(ctx context.Context, e *cache.Entry) error {
	id := entryID(e.UserID, e.Feature, e.RequestHash)
	doc := entryDoc{
		ID:          id,
		UserID:      e.UserID,
		Feature:     e.Feature,
		RequestHash: e.RequestHash,
		InputData:   string(e.InputData),
		Result:      string(e.Result),
		CreatedAt:   e.CreatedAt,
		ExpiresAt:   e.ExpiresAt,
	}
	_, err := s.entries.ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	return nil
}

// DeleteExpired implements cache.Store.
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.entries.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": now}})
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired entries: %w", err)
	}
	return int(res.DeletedCount), nil
}

// Ping implements storage.Backend.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Name implements storage.Backend.
func (s *Store) Name() string {
	return "mongo"
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Drop removes both collections. Used by tests.
func (s *Store) Drop(ctx context.Context) error {
	if err := s.records.Drop(ctx); err != nil {
		return err
	}
	return s.entries.Drop(ctx)
}

func toTxnDoc(txn ledger.Transaction) txnDoc {
	return txnDoc{
		ID:              txn.ID,
		Feature:         txn.Feature,
		CreditsDeducted: txn.CreditsDeducted,
		Timestamp:       txn.Timestamp,
		Cached:          txn.Metadata.Cached,
		RequestID:       txn.Metadata.RequestID,
		InputSize:       txn.Metadata.InputSize,
	}
}

func (d txnDoc) toTransaction() ledger.Transaction {
	return ledger.Transaction{
		ID:              d.ID,
		Feature:         d.Feature,
		CreditsDeducted: d.CreditsDeducted,
		Timestamp:       d.Timestamp.UTC(),
		Metadata: ledger.TransactionMetadata{
			Cached:    d.Cached,
			RequestID: d.RequestID,
			InputSize: d.InputSize,
		},
	}
}

func (d recordDoc) toRecord() *ledger.UsageRecord {
	return &ledger.UsageRecord{
		UserID:       d.UserID,
		PeriodKey:    d.PeriodKey,
		CreditsUsed:  d.CreditsUsed,
		CreditsLimit: d.CreditsLimit,
		Warnings: ledger.Warnings{
			FiftyPercent:   d.Warnings.Fifty,
			EightyPercent:  d.Warnings.Eighty,
			HundredPercent: d.Warnings.Hundred,
		},
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
}
