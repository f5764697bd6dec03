package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

const (
	// DefaultDBName is the database file used when no path is configured
	DefaultDBName = "real_estate_analysis.db"
	// DefaultBusyTimeout bounds how long SQLite waits on a locked database
	DefaultBusyTimeout = 10 * time.Second

	memoryPath = ":memory:"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrClosed is returned by operations on a closed store
	ErrClosed = errors.New("store is closed")
	// ErrAlreadyOpen is returned when a second handle is opened on a live database file
	ErrAlreadyOpen = errors.New("database is already open in this process")
)

// Options configure a Store
type Options struct {
	// Path of the database file. ":memory:" opens a private in-memory database.
	Path string
	// BusyTimeout is how long SQLite waits for a lock before failing.
	BusyTimeout time.Duration
	// Fs is used for backup copies and size reporting. Defaults to the OS filesystem.
	Fs afero.Fs
	// Registerer receives the store's metrics. Defaults to a private registry.
	Registerer prometheus.Registerer
}

func (o Options) withDefaults() Options {
	if o.Path == "" {
		o.Path = DefaultDBName
	}
	if o.BusyTimeout <= 0 {
		o.BusyTimeout = DefaultBusyTimeout
	}
	if o.Fs == nil {
		o.Fs = afero.NewOsFs()
	}
	if o.Registerer == nil {
		o.Registerer = prometheus.NewRegistry()
	}
	return o
}

// Store is the single handle to a listing database. All access to the
// underlying connection is serialized by mu.
type Store struct {
	mu      sync.Mutex
	db      *sql.DB // nil once closed
	opts    Options
	key     string // registry key, empty for in-memory databases
	metrics *metrics
}

var _ Storage = (*Store)(nil)

// live tracks database files with an open Store, keyed by absolute path.
var live = struct {
	sync.Mutex
	paths map[string]struct{}
}{paths: make(map[string]struct{})}

func isMemoryPath(path string) bool {
	return path == memoryPath || strings.HasPrefix(path, "file::memory:")
}

func register(path string) (string, error) {
	if isMemoryPath(path) {
		return "", nil
	}
	key, err := filepath.Abs(path)
	if err != nil {
		return "", errors.Wrapf(err, "resolving %s", path)
	}

	live.Lock()
	defer live.Unlock()
	if _, ok := live.paths[key]; ok {
		return "", errors.WithMessage(ErrAlreadyOpen, key)
	}
	live.paths[key] = struct{}{}
	return key, nil
}

func unregister(key string) {
	if key == "" {
		return
	}
	live.Lock()
	delete(live.paths, key)
	live.Unlock()
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(ctx context.Context, opts Options) (*sql.DB, error) {
	db, err := sql.Open(DriverName, connectionURI(opts.Path, opts.BusyTimeout))
	if err != nil {
		return nil, err
	}

	// A single connection: SQLite has one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to connect")
	}
	return db, nil
}

// connect opens the database and ensures its schema
func connect(ctx context.Context, opts Options) (*sql.DB, error) {
	db, err := openDatabase(ctx, opts)
	if err != nil {
		return nil, err
	}
	if failed := EnsureSchema(ctx, db); len(failed) != 0 {
		log.WithFields(log.Fields{"path": opts.Path, "failed": failed}).
			Warn("schema is incomplete")
	}
	return db, nil
}

// Open opens the listing database described by opts. Failure is fatal for the
// caller: no store operation is possible without a connection.
func Open(ctx context.Context, opts Options) (*Store, error) {
	opts = opts.withDefaults()

	key, err := register(opts.Path)
	if err != nil {
		return nil, err
	}

	db, err := connect(ctx, opts)
	if err != nil {
		unregister(key)
		return nil, errors.WithMessagef(err, "failed to open database %s", opts.Path)
	}

	m, err := newMetrics(opts.Registerer)
	if err != nil {
		_ = db.Close()
		unregister(key)
		return nil, err
	}

	log.WithFields(log.Fields{"path": opts.Path, "driver": DriverName}).Debug("opened listing store")
	return &Store{db: db, opts: opts, key: key, metrics: m}, nil
}

// Path returns the database path the store was opened with
func (s *Store) Path() string {
	return s.opts.Path
}

// Close closes the database connection. Calling Close more than once is a no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *Store) closeLocked() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	unregister(s.key)
	if err != nil {
		log.WithFields(log.Fields{"path": s.opts.Path, "err": err}).Error("error closing database")
		return errors.Wrap(err, "close database")
	}
	return nil
}

// WithTransaction runs fn inside a single transaction while holding the store
// lock. The transaction commits if fn returns nil and rolls back otherwise. A
// panic in fn rolls back and is re-raised. The lock is released on every path.
//
// Once the transaction has begun it runs to completion: cancellation of ctx is
// only observed before it starts.
func (s *Store) WithTransaction(ctx context.Context, fn func(q Querier) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx = context.WithoutCancel(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			log.WithField("err", rbErr).Error("rollback failed")
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit transaction")
	}
	committed = true
	return nil
}

// withConn runs a single locked statement (or read) against the connection
func (s *Store) withConn(ctx context.Context, fn func(q Querier) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return ErrClosed
	}
	return fn(s.db)
}

// fail logs an operation failure and counts it
func (s *Store) fail(op string, err error, fields log.Fields) error {
	entry := log.WithFields(log.Fields{"op": op, "err": err})
	if fields != nil {
		entry = entry.WithFields(fields)
	}
	entry.Error("store operation failed")
	s.metrics.failures.WithLabelValues(op).Inc()
	return err
}

// Timestamps are stored as fixed-width UTC text so that lexical and
// chronological order agree.
const timestampLayout = "2006-01-02 15:04:05.000000000"

// now is replaced in tests
var now = time.Now

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{timestampLayout, "2006-01-02 15:04:05"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Errorf("unrecognized timestamp %q", s)
}

func parseNullTimestamp(s sql.NullString) (time.Time, error) {
	if !s.Valid || s.String == "" {
		return time.Time{}, nil
	}
	return parseTimestamp(s.String)
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}
