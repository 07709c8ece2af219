package mongo

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mercator-hq/creditgate/pkg/ledger"
	"mercator-hq/creditgate/pkg/storage/storagetest"
)

// getTestURI returns the MongoDB URI for integration tests.
func getTestURI() string {
	uri := os.Getenv("MONGODB_TEST_URI")
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}
	return uri
}

func skipIfNoMongoDB(t *testing.T) *Store {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	s, err := Open(ctx, Config{
		URI:            getTestURI(),
		Database:       fmt.Sprintf("creditgate_test_%d", time.Now().UnixNano()),
		ConnectTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Skipf("MongoDB not available: %v", err)
		return nil
	}
	t.Cleanup(func() {
		s.Drop(context.Background())
		s.Close()
	})
	return s
}

func TestStore_Conformance(t *testing.T) {
	skipIfNoMongoDB(t)

	storagetest.Run(t, func(t *testing.T) storagetest.Store {
		return skipIfNoMongoDB(t)
	})
}

func TestLastChargedField(t *testing.T) {
	tests := []struct {
		feature string
		want    string
		wantErr bool
	}{
		{feature: "context_analysis", want: "last_charged.context_analysis"},
		{feature: "", wantErr: true},
		{feature: "a.b", wantErr: true},
		{feature: "$where", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.feature, func(t *testing.T) {
			got, err := lastChargedField(tt.feature)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWarningField(t *testing.T) {
	for th, want := range map[ledger.Threshold]string{
		ledger.Threshold50:  "warnings.fifty",
		ledger.Threshold80:  "warnings.eighty",
		ledger.Threshold100: "warnings.hundred",
	} {
		got, err := warningField(th)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := warningField(ledger.Threshold(75))
	assert.Error(t, err)
}

func TestDocumentConversion(t *testing.T) {
	ts := storagetest.Base
	txn := ledger.Transaction{
		ID:              "t1",
		Feature:         "meeting_summary",
		CreditsDeducted: 10,
		Timestamp:       ts,
		Metadata:        ledger.TransactionMetadata{Cached: true, RequestID: "r", InputSize: 5},
	}
	assert.Equal(t, txn, toTxnDoc(txn).toTransaction())

	doc := recordDoc{
		UserID: "u", PeriodKey: "2026-03", CreditsUsed: 60, CreditsLimit: 100,
		Warnings: warningsDoc{Fifty: true}, CreatedAt: ts, UpdatedAt: ts,
	}
	rec := doc.toRecord()
	assert.Equal(t, 40, rec.Remaining())
	assert.True(t, rec.Warnings.FiftyPercent)
	assert.False(t, rec.Warnings.EightyPercent)
}

func TestOpen_Validation(t *testing.T) {
	_, err := Open(context.Background(), Config{})
	assert.Error(t, err)
}
