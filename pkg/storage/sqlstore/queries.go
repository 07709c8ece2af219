package sqlstore

const (
	insertRecordQuery = `
		INSERT INTO usage_records (user_id, period_key, credits_used, credits_limit, warn_fifty, warn_eighty, warn_hundred, created_at, updated_at)
		VALUES (?, ?, 0, ?, 0, 0, 0, ?, ?)
		ON CONFLICT (user_id, period_key) DO NOTHING`

	selectRecordQuery = `
		SELECT credits_used, credits_limit, warn_fifty, warn_eighty, warn_hundred, created_at, updated_at
		FROM usage_records
		WHERE user_id = ? AND period_key = ?`

	deductQuery = `
		UPDATE usage_records
		SET credits_used = credits_used + ?, updated_at = ?
		WHERE user_id = ? AND period_key = ? AND credits_used + ? <= credits_limit
		RETURNING credits_used, credits_limit, warn_fifty, warn_eighty, warn_hundred, created_at, updated_at`

	touchRecordQuery = `
		UPDATE usage_records SET updated_at = ?
		WHERE user_id = ? AND period_key = ?`

	insertTransactionQuery = `
		INSERT INTO usage_transactions (id, user_id, period_key, feature, credits_deducted, cached, request_id, input_size, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectTransactionsQuery = `
		SELECT id, feature, credits_deducted, cached, request_id, input_size, created_at
		FROM usage_transactions
		WHERE user_id = ? AND period_key = ?
		ORDER BY seq DESC`

	lastChargedQuery = `
		SELECT MAX(created_at)
		FROM usage_transactions
		WHERE user_id = ? AND feature = ? AND cached = 0`

	selectEntryQuery = `
		SELECT input_data, result, created_at, expires_at
		FROM response_cache
		WHERE user_id = ? AND feature = ? AND request_hash = ? AND expires_at > ?`

	upsertEntryQuery = `
		INSERT INTO response_cache (user_id, feature, request_hash, input_data, result, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, feature, request_hash) DO UPDATE SET
			input_data = excluded.input_data,
			result = excluded.result,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at`

	deleteExpiredQuery = `
		DELETE FROM response_cache
		WHERE expires_at <= ?`
)

// claimWarningQueries maps each threshold column to its set-if-unset update.
var claimWarningQueries = map[string]string{
	"warn_fifty":   `UPDATE usage_records SET warn_fifty = 1 WHERE user_id = ? AND period_key = ? AND warn_fifty = 0`,
	"warn_eighty":  `UPDATE usage_records SET warn_eighty = 1 WHERE user_id = ? AND period_key = ? AND warn_eighty = 0`,
	"warn_hundred": `UPDATE usage_records SET warn_hundred = 1 WHERE user_id = ? AND period_key = ? AND warn_hundred = 0`,
}
