// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings. Broker definitions live separately in
// marketplace.yaml under the home directory (see pkg/registry).
//
// # Configuration Structure
//
// Paths:
//
//	SKILLMEAT_HOME="~/.skillmeat"
//	SKILLMEAT_KEYS_DIR="~/.skillmeat/keys"
//
// Broker access:
//
//	SKILLMEAT_FANOUT_TIMEOUT="10s"  # per-broker bound for aggregate listings
//	SKILLMEAT_HTTP_TIMEOUT="30s"
//	SKILLMEAT_SPDX_URL="https://raw.githubusercontent.com/spdx/license-list-data/main/json/licenses.json"
//
// Housekeeping:
//
//	SKILLMEAT_SUBMISSION_RETENTION_DAYS="90"
//	SKILLMEAT_CLEANUP_SCHEDULE="30 3 * * *"
//	SKILLMEAT_METRICS_ADDR=":9090"
//
// Observability:
//
//	SKILLMEAT_LOG_LEVEL="info"  # debug, info, warn, error
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//	logger := observability.NewLogger(cfg.LogLevel, os.Stderr)
//
// # Related Packages
//
//   - pkg/registry: Reads marketplace.yaml from the home directory
//   - pkg/observability: Uses the log level
package config
