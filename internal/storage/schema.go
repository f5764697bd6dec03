package storage

import (
	"context"
	"database/sql"

	"github.com/Masterminds/semver/v3"
	log "github.com/sirupsen/logrus"
)

const (
	// CurrentSchemaVersion tracks the database schema version
	CurrentSchemaVersion = "1.0.0"
)

// schemaObject is a single table or index created by EnsureSchema
type schemaObject struct {
	Name string
	DDL  string
}

// schemaObjects are created in order. Tables come before their indexes.
var schemaObjects = []schemaObject{
	{
		Name: "schema_version",
		DDL: `
CREATE TABLE IF NOT EXISTS schema_version (
    version TEXT PRIMARY KEY,
    applied_at TEXT
)`,
	},
	{
		Name: "listings",
		DDL: `
CREATE TABLE IF NOT EXISTS listings (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    listing_id TEXT NOT NULL UNIQUE,
    district TEXT,
    neighborhood TEXT,
    full_address TEXT,
    full_address_overridden INTEGER NOT NULL DEFAULT 0,
    room_count TEXT,
    gross_area REAL,
    price REAL,
    listing_date TEXT,
    source_file TEXT,
    created_at TEXT,
    updated_at TEXT
)`,
	},
	{
		Name: "analysis_history",
		DDL: `
CREATE TABLE IF NOT EXISTS analysis_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    analysis_type TEXT,
    parameters TEXT,
    result_summary TEXT,
    created_at TEXT
)`,
	},
	{
		// listing_id is associative only; listings rows are replaced in place
		// and never cascade here.
		Name: "price_history",
		DDL: `
CREATE TABLE IF NOT EXISTS price_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    listing_id TEXT NOT NULL,
    price REAL NOT NULL,
    recorded_at TEXT
)`,
	},
	{Name: "idx_listings_listing_id", DDL: `CREATE INDEX IF NOT EXISTS idx_listings_listing_id ON listings(listing_id)`},
	{Name: "idx_listings_district", DDL: `CREATE INDEX IF NOT EXISTS idx_listings_district ON listings(district)`},
	{Name: "idx_listings_neighborhood", DDL: `CREATE INDEX IF NOT EXISTS idx_listings_neighborhood ON listings(neighborhood)`},
	{Name: "idx_listings_updated_at", DDL: `CREATE INDEX IF NOT EXISTS idx_listings_updated_at ON listings(updated_at)`},
	{Name: "idx_price_history_listing_id", DDL: `CREATE INDEX IF NOT EXISTS idx_price_history_listing_id ON price_history(listing_id)`},
}

// EnsureSchema creates every table and index that does not exist yet.
// Existing structures are never dropped or altered. A failure to create one
// structure is logged and does not stop the others; the names of the failed
// structures are returned.
func EnsureSchema(ctx context.Context, db *sql.DB) []string {
	return ensureObjects(ctx, db, schemaObjects)
}

func ensureObjects(ctx context.Context, db *sql.DB, objects []schemaObject) []string {
	var failed []string
	for _, obj := range objects {
		if _, err := db.ExecContext(ctx, obj.DDL); err != nil {
			log.WithFields(log.Fields{"structure": obj.Name, "err": err}).
				Error("failed to create schema structure")
			failed = append(failed, obj.Name)
		}
	}
	checkSchemaVersion(ctx, db)
	return failed
}

// checkSchemaVersion records CurrentSchemaVersion on a fresh database and warns
// when the file was written by a newer schema. It never migrates.
func checkSchemaVersion(ctx context.Context, db *sql.DB) {
	current := semver.MustParse(CurrentSchemaVersion)

	var stored string
	err := db.QueryRowContext(ctx,
		"SELECT version FROM schema_version ORDER BY applied_at DESC LIMIT 1").Scan(&stored)
	switch {
	case err == sql.ErrNoRows:
		_, err = db.ExecContext(ctx,
			"INSERT OR IGNORE INTO schema_version (version, applied_at) VALUES (?, ?)",
			CurrentSchemaVersion, formatTimestamp(now()))
		if err != nil {
			log.WithField("err", err).Warn("failed to record schema version")
		}
		return
	case err != nil:
		log.WithField("err", err).Warn("failed to read schema version")
		return
	}

	version, err := semver.NewVersion(stored)
	if err != nil {
		log.WithFields(log.Fields{"version": stored, "err": err}).Warn("invalid stored schema version")
		return
	}
	if version.GreaterThan(current) {
		log.WithFields(log.Fields{
			"stored":  version.String(),
			"current": current.String(),
		}).Warn("database was written by a newer schema version")
	}
}

// schemaVersion returns the version recorded in the database, or "" if none.
func schemaVersion(ctx context.Context, q Querier) (string, error) {
	var version string
	err := q.QueryRowContext(ctx,
		"SELECT version FROM schema_version ORDER BY applied_at DESC LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return version, err
}
