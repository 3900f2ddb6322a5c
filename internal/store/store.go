// Package store provides access to AE archive files: SQLite databases with
// a fixed table layout per store kind.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ae-archive/vae/internal/cache"
	"github.com/ae-archive/vae/internal/errs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// DefaultTimeBase is the number of time ticks per second in new files.
const DefaultTimeBase = 10_000_000

const writerID = "vae"

// Kind describes one store flavor.
type Kind struct {
	Name      string
	Prefix    string
	Extension string
	Version   int
	schema    string
}

var (
	// PriDB is the primary-data store (hits, status, parametric, markers).
	PriDB = Kind{Name: "pridb", Prefix: "ae", Extension: ".pridb", Version: 2, schema: priSchema}
	// TraDB is the transient waveform store.
	TraDB = Kind{Name: "tradb", Prefix: "tr", Extension: ".tradb", Version: 1, schema: traSchema}
	// TrfDB is the derived feature store.
	TrfDB = Kind{Name: "trfdb", Prefix: "trf", Extension: ".trfdb", Version: 1, schema: trfSchema}
)

// KindByName returns the kind for "pridb", "tradb" or "trfdb".
func KindByName(name string) (Kind, error) {
	for _, k := range []Kind{PriDB, TraDB, TrfDB} {
		if k.Name == name {
			return k, nil
		}
	}
	return Kind{}, fmt.Errorf("%w: unknown store kind %q", errs.ErrValidation, name)
}

// DataTable returns the main table name, e.g. ae_data.
func (k Kind) DataTable() string { return k.Prefix + "_data" }

// ParamsTable returns the parameter table name.
func (k Kind) ParamsTable() string { return k.Prefix + "_params" }

// GlobalInfoTable returns the global metadata table name.
func (k Kind) GlobalInfoTable() string { return k.Prefix + "_globalinfo" }

// FieldInfoTable returns the field metadata table name.
func (k Kind) FieldInfoTable() string { return k.Prefix + "_fieldinfo" }

// Mode is the file access mode.
type Mode string

const (
	ModeReadOnly        Mode = "ro"
	ModeReadWrite       Mode = "rw"
	ModeReadWriteCreate Mode = "rwc"
)

// ParseMode validates a mode string. The empty string means read-only.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeReadOnly:
		return ModeReadOnly, nil
	case ModeReadWrite, ModeReadWriteCreate:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("%w: invalid mode %q (expected ro, rw or rwc)", errs.ErrValidation, s)
	}
}

// Options configures Open.
type Options struct {
	Mode Mode
	// TimeBase is written to new files. Existing files keep theirs.
	TimeBase int64
	// BusyTimeout is how long a connection waits on a locked file.
	BusyTimeout time.Duration
}

// FileStatus is the writer-active flag in global info.
type FileStatus int

const (
	FileStatusOffline   FileStatus = 0
	FileStatusSuspended FileStatus = 1
	FileStatusActive    FileStatus = 2
)

// Database is an open archive file. Reads go through a read-only handle;
// writes go through a single-connection writer handle when the mode allows.
type Database struct {
	path     string
	kind     Kind
	mode     Mode
	reader   *sql.DB
	writer   *sql.DB
	timeBase int64
	params   *cache.Parameters
}

// Open opens an archive file of the given kind.
func Open(ctx context.Context, path string, kind Kind, opts Options) (*Database, error) {
	if !strings.EqualFold(filepath.Ext(path), kind.Extension) {
		return nil, &FileExtensionError{Path: path, Want: kind.Extension}
	}
	mode, err := ParseMode(string(opts.Mode))
	if err != nil {
		return nil, err
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = 5 * time.Second
	}
	if opts.TimeBase <= 0 {
		opts.TimeBase = DefaultTimeBase
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if mode != ModeReadWriteCreate {
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}
		if err := Create(ctx, path, kind, opts.TimeBase); err != nil {
			return nil, err
		}
	}

	var writer *sql.DB
	if mode != ModeReadOnly {
		writer, err = openHandle(ctx, path, "rw", opts.BusyTimeout)
		if err != nil {
			return nil, err
		}
		writer.SetMaxOpenConns(1)
		if _, err := writer.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			writer.Close()
			return nil, fmt.Errorf("enabling WAL on %s: %w", path, err)
		}
	}

	reader, err := openHandle(ctx, path, "ro", opts.BusyTimeout)
	if err != nil {
		if writer != nil {
			writer.Close()
		}
		return nil, err
	}

	d := newDatabase(path, kind, mode, reader, writer)
	if err := d.init(ctx); err != nil {
		d.Close()
		return nil, err
	}

	slog.Debug("opened store", "path", path, "kind", kind.Name, "mode", mode, "timebase", d.timeBase)
	return d, nil
}

func newDatabase(path string, kind Kind, mode Mode, reader, writer *sql.DB) *Database {
	return &Database{
		path:     path,
		kind:     kind,
		mode:     mode,
		reader:   reader,
		writer:   writer,
		timeBase: DefaultTimeBase,
		params:   cache.NewParameters(),
	}
}

func (d *Database) init(ctx context.Context) error {
	tables, err := d.Tables(ctx)
	if err != nil {
		return err
	}
	if !containsFold(tables, d.kind.DataTable()) {
		return fmt.Errorf("%w: %s is not a %s file: table %s missing",
			errs.ErrValidation, d.path, d.kind.Name, d.kind.DataTable())
	}
	info, err := d.GlobalInfo(ctx)
	if err != nil {
		return err
	}
	if tb, ok := info["TimeBase"].(int64); ok && tb > 0 {
		d.timeBase = tb
	}
	return nil
}

// Create writes a new, empty archive file with the full schema.
func Create(ctx context.Context, path string, kind Kind, timeBase int64) error {
	if !strings.EqualFold(filepath.Ext(path), kind.Extension) {
		return &FileExtensionError{Path: path, Want: kind.Extension}
	}
	if timeBase <= 0 {
		timeBase = DefaultTimeBase
	}
	db, err := openHandle(ctx, path, "rwc", 5*time.Second)
	if err != nil {
		return err
	}
	defer db.Close()

	fileID := "{" + strings.ToUpper(uuid.NewString()) + "}"
	if _, err := db.ExecContext(ctx, renderSchema(kind, timeBase, fileID)); err != nil {
		return fmt.Errorf("creating %s schema in %s: %w", kind.Name, path, err)
	}
	slog.Info("created store", "path", path, "kind", kind.Name, "file_id", fileID)
	return nil
}

func openHandle(ctx context.Context, path, mode string, busy time.Duration) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=%s&_pragma=busy_timeout(%d)", escapePath(path), mode, busy.Milliseconds())
	if mode != "ro" {
		dsn += "&_txlock=immediate"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database %s: %w", path, err)
	}
	return db, nil
}

var uriEscaper = strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23")

func escapePath(path string) string {
	return uriEscaper.Replace(filepath.ToSlash(path))
}

// Close closes both handles.
func (d *Database) Close() error {
	var errList []error
	if d.writer != nil {
		errList = append(errList, d.writer.Close())
	}
	if d.reader != nil {
		errList = append(errList, d.reader.Close())
	}
	return errors.Join(errList...)
}

// Path returns the file path.
func (d *Database) Path() string { return d.path }

// Kind returns the store kind.
func (d *Database) Kind() Kind { return d.kind }

// Mode returns the access mode.
func (d *Database) Mode() Mode { return d.mode }

// ReadOnly reports whether writes are rejected.
func (d *Database) ReadOnly() bool { return d.writer == nil }

// TimeBase returns ticks per second.
func (d *Database) TimeBase() int64 { return d.timeBase }

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Tx runs fn in a write transaction, rolling back on error or panic.
func (d *Database) Tx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	if d.writer == nil {
		return &ReadOnlyError{Path: d.path}
	}
	tx, err := d.writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				slog.Warn("rolling back transaction", "path", d.path, "error", rbErr)
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// Reader returns the read-only handle.
func (d *Database) Reader() *sql.DB { return d.reader }
