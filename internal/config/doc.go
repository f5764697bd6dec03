// Package config loads listingstore configuration.
//
// Values are layered, later sources winning:
//
//  1. Defaults (database real_estate_analysis.db, 10s busy timeout, 5000 row reads)
//  2. An optional TOML file
//  3. An optional dotenv file
//  4. LISTINGSTORE_* environment variables
//
// Command line flags are applied on top by the caller.
//
// Example file:
//
//	[database]
//	path = "/var/lib/listingstore/real_estate_analysis.db"
//	busy_timeout = "15s"
//	read_limit = 2000
//
//	[log]
//	level = "debug"
//	format = "json"
//
//	[ingest]
//	workers = 4
//	skip_existing = true
//
// Environment variables: LISTINGSTORE_DB_PATH, LISTINGSTORE_BUSY_TIMEOUT,
// LISTINGSTORE_READ_LIMIT, LISTINGSTORE_LOG_LEVEL, LISTINGSTORE_LOG_FORMAT,
// LISTINGSTORE_WORKERS, LISTINGSTORE_METRICS_ADDR.
package config
