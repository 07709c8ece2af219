// Package logging builds the process logger on top of log/slog.
//
// Loggers created by New:
//   - write JSON or text records at a configurable level
//   - attach request_id, user_id and feature from the record's context
//   - optionally mask emails, URL credentials and sensitive keys
//
// # Usage
//
//	logger, err := logging.New(logging.FromConfig(cfg.Telemetry.Logging))
//	ctx = logging.WithUserID(ctx, "alice@example.com")
//	logger.InfoContext(ctx, "credits deducted", "credits", 10)
//	// {"msg":"credits deducted","credits":10,"user_id":"a***@example.com"}
//
// Components accept a *slog.Logger and fall back to slog.Default() tagged
// with a component attribute.
package logging
