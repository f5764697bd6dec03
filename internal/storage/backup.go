package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// ErrBackupUnsupported is returned when backing up an in-memory database
var ErrBackupUnsupported = errors.New("backup requires a file-backed database")

// ErrBackupSameFile is returned when the backup destination is the live database
var ErrBackupSameFile = errors.New("backup destination is the database file")

// BackupTo copies the database file to path. The live connection is closed
// for the copy, so that the file on disk is complete, and reopened afterwards
// whether or not the copy succeeded.
func (s *Store) BackupTo(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return ErrClosed
	}
	if isMemoryPath(s.opts.Path) {
		return ErrBackupUnsupported
	}
	if err := checkDistinct(s.opts.Fs, s.opts.Path, path); err != nil {
		return err
	}
	ctx = context.WithoutCancel(ctx)

	if err := s.db.Close(); err != nil {
		log.WithFields(log.Fields{"path": s.opts.Path, "err": err}).Warn("error closing database for backup")
	}
	s.db = nil

	size, copyErr := copyFile(s.opts.Fs, s.opts.Path, path)

	db, err := connect(ctx, s.opts)
	if err != nil {
		unregister(s.key)
		return s.fail("backup", errors.WithMessage(err, "failed to reopen database after backup"),
			log.Fields{"dest": path})
	}
	s.db = db

	if copyErr != nil {
		return s.fail("backup", copyErr, log.Fields{"dest": path})
	}
	log.WithFields(log.Fields{
		"src":  s.opts.Path,
		"dest": path,
		"size": humanize.Bytes(uint64(size)),
	}).Info("backed up database")
	return nil
}

// checkDistinct fails when dst names the same file as src, including through
// a symlink or hardlink. Copying onto src would truncate it before reading.
func checkDistinct(fs afero.Fs, src, dst string) error {
	absSrc, err := filepath.Abs(src)
	if err != nil {
		return errors.Wrapf(err, "resolve %s", src)
	}
	absDst, err := filepath.Abs(dst)
	if err != nil {
		return errors.Wrapf(err, "resolve %s", dst)
	}
	if absSrc == absDst {
		return errors.WithMessage(ErrBackupSameFile, dst)
	}

	srcInfo, err := fs.Stat(src)
	if err != nil {
		return nil
	}
	dstInfo, err := fs.Stat(dst)
	if err != nil {
		return nil
	}
	if os.SameFile(srcInfo, dstInfo) {
		return errors.WithMessage(ErrBackupSameFile, dst)
	}
	return nil
}

func copyFile(fs afero.Fs, src, dst string) (int64, error) {
	in, err := fs.Open(src)
	if err != nil {
		return 0, errors.Wrapf(err, "open %s", src)
	}
	defer func() { _ = in.Close() }()

	if err := fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, errors.Wrapf(err, "create directory for %s", dst)
	}
	out, err := fs.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, errors.Wrapf(err, "create %s", dst)
	}

	n, err := io.Copy(out, in)
	if err == nil {
		err = out.Sync()
	}
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return n, errors.Wrapf(err, "copy %s to %s", src, dst)
	}
	return n, nil
}

// Stats returns row counts and the database file size
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{Path: s.opts.Path}
	err := s.withConn(ctx, func(q Querier) error {
		for _, c := range []struct {
			table string
			dest  *int
		}{
			{"listings", &stats.Listings},
			{"price_history", &stats.PriceHistoryEntries},
			{"analysis_history", &stats.Analyses},
		} {
			if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+c.table).Scan(c.dest); err != nil {
				return errors.Wrapf(err, "count %s", c.table)
			}
		}
		var err error
		stats.SchemaVersion, err = schemaVersion(ctx, q)
		return err
	})
	if err != nil {
		return nil, s.fail("stats", err, nil)
	}

	if !isMemoryPath(s.opts.Path) {
		if info, err := s.opts.Fs.Stat(s.opts.Path); err == nil {
			stats.SizeBytes = info.Size()
		}
	}
	return stats, nil
}
