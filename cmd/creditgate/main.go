// Creditgate meters AI features against per-user credit budgets.
//
// Usage:
//
//	# Run the cache sweeper, config hot reload and the metrics/health server
//	creditgate serve --config creditgate.yaml
//
//	# Show a user's usage for the current period
//	creditgate stats --user user-123
//
//	# Show what a feature costs
//	creditgate estimate meeting_summary
//
//	# Check a configuration file
//	creditgate validate --config creditgate.yaml
package main

func main() {
	Execute()
}
