// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package container

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/slurmflow/slurmflow/lib/sqlitepool"
)

// FormatVersion is the schema version written to new containers.
const FormatVersion = 1

// Mode selects how a container file is opened.
type Mode int

const (
	// ModeReadOnly opens an existing container. Every mutating
	// operation returns ErrReadOnly.
	ModeReadOnly Mode = iota

	// ModeAppend opens a container for reading and writing, creating
	// the file and its parent directories if needed.
	ModeAppend
)

// String returns "read-only" or "append".
func (m Mode) String() string {
	switch m {
	case ModeReadOnly:
		return "read-only"
	case ModeAppend:
		return "append"
	default:
		return "Mode(" + strconv.Itoa(int(m)) + ")"
	}
}

var (
	// ErrNotFound is returned when no node exists at a path.
	ErrNotFound = errors.New("node not found")

	// ErrExists is returned by CreateGroup when the path is taken.
	ErrExists = errors.New("node already exists")

	// ErrNotGroup is returned when a group was required and a dataset
	// was found.
	ErrNotGroup = errors.New("node is not a group")

	// ErrNotDataset is returned when a dataset was required and a
	// group was found.
	ErrNotDataset = errors.New("node is not a dataset")

	// ErrReadOnly is returned by mutating operations on a container
	// opened with ModeReadOnly.
	ErrReadOnly = errors.New("container is read-only")

	// ErrNotContainer is returned when a file is a SQLite database
	// without the container schema, or with an unsupported version.
	ErrNotContainer = errors.New("not a container file")
)

const schema = `
	CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS nodes (
		id       INTEGER PRIMARY KEY,
		path     TEXT NOT NULL UNIQUE,
		parent   TEXT,
		name     TEXT NOT NULL,
		is_group INTEGER NOT NULL,
		data     BLOB
	);
	CREATE INDEX IF NOT EXISTS idx_nodes_parent ON nodes(parent, id);
	CREATE TABLE IF NOT EXISTS attrs (
		path  TEXT NOT NULL,
		name  TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (path, name)
	);
	INSERT OR IGNORE INTO nodes (path, parent, name, is_group) VALUES ('/', NULL, '', 1);
`

// Config holds the parameters for Open.
type Config struct {
	// Path is the container file. Required.
	Path string

	// Mode defaults to ModeReadOnly.
	Mode Mode

	// Logger receives debug messages about opens, closes and
	// mutations. If nil, a no-op logger is used.
	Logger *slog.Logger
}

// Container is an open container file.
type Container struct {
	pool   *sqlitepool.Pool
	conn   *sqlite.Conn
	path   string
	mode   Mode
	logger *slog.Logger
}

// Open opens the container file at cfg.Path. In ModeAppend the file
// and its parent directories are created if missing and the schema is
// initialized. In ModeReadOnly a missing file is an error wrapping
// fs.ErrNotExist.
//
// The caller must Close the container.
func Open(ctx context.Context, cfg Config) (*Container, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("container: Path is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	switch cfg.Mode {
	case ModeReadOnly:
		info, err := os.Stat(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("container: opening %s: %w", cfg.Path, err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("container: opening %s: %w: is a directory", cfg.Path, ErrNotContainer)
		}
	case ModeAppend:
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("container: creating parent directory of %s: %w", cfg.Path, err)
		}
	default:
		return nil, fmt.Errorf("container: unknown mode %v", cfg.Mode)
	}

	readOnly := cfg.Mode == ModeReadOnly
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		ReadOnly: readOnly,
		Logger:   logger,
		OnConnect: func(conn *sqlite.Conn) error {
			if !readOnly {
				empty, err := isEmptyDatabase(conn)
				if err != nil {
					return err
				}
				if empty {
					if err := initializeSchema(conn); err != nil {
						return err
					}
				}
			}
			return checkVersion(conn)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("container: %w", notADatabase(err))
	}

	conn, err := pool.Take(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("container: opening %s: %w", cfg.Path, notADatabase(err))
	}
	// The connection outlives ctx. Callers check cancellation between
	// operations; a statement is never interrupted halfway.
	conn.SetInterrupt(nil)

	logger.Debug("container opened", "path", cfg.Path, "mode", cfg.Mode.String())

	return &Container{
		pool:   pool,
		conn:   conn,
		path:   cfg.Path,
		mode:   cfg.Mode,
		logger: logger,
	}, nil
}

// Close releases the connection and closes the file. A second Close
// is a no-op.
func (c *Container) Close() error {
	if c.pool == nil {
		return nil
	}
	c.pool.Put(c.conn)
	err := c.pool.Close()
	c.pool = nil
	c.conn = nil
	if err != nil {
		return fmt.Errorf("container: %w", err)
	}
	c.logger.Debug("container closed", "path", c.path)
	return nil
}

// Path returns the container file path.
func (c *Container) Path() string {
	return c.path
}

// Mode returns the mode the container was opened with.
func (c *Container) Mode() Mode {
	return c.mode
}

// Transaction runs fn inside a savepoint. If fn returns an error (or
// panics) every mutation made by fn is rolled back. Transactions nest.
func (c *Container) Transaction(fn func() error) (err error) {
	release := sqlitex.Save(c.conn)
	defer release(&err)
	return fn()
}

// isEmptyDatabase reports whether the file holds no schema at all.
// Only such files receive the container schema; any other SQLite
// database is left untouched and fails checkVersion.
func isEmptyDatabase(conn *sqlite.Conn) (bool, error) {
	var objects int
	err := sqlitex.Execute(conn, "SELECT count(*) FROM sqlite_master", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			objects = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrNotContainer, err)
	}
	return objects == 0, nil
}

// notADatabase tags SQLite's "file is not a database" failure with
// ErrNotContainer so callers can tell a foreign file from an I/O error.
func notADatabase(err error) error {
	if sqlite.ErrCode(err).ToPrimary() == sqlite.ResultNotADB && !errors.Is(err, ErrNotContainer) {
		return fmt.Errorf("%w: %w", ErrNotContainer, err)
	}
	return err
}

func initializeSchema(conn *sqlite.Conn) (err error) {
	release := sqlitex.Save(conn)
	defer release(&err)

	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return sqlitex.Execute(conn,
		"INSERT OR IGNORE INTO meta (key, value) VALUES ('format_version', ?)",
		&sqlitex.ExecOptions{Args: []any{strconv.Itoa(FormatVersion)}})
}

func checkVersion(conn *sqlite.Conn) error {
	var tables int
	err := sqlitex.Execute(conn,
		"SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name IN ('meta', 'nodes', 'attrs')",
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				tables = stmt.ColumnInt(0)
				return nil
			},
		})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotContainer, err)
	}
	if tables != 3 {
		return fmt.Errorf("%w: missing container tables", ErrNotContainer)
	}

	version := ""
	err = sqlitex.Execute(conn, "SELECT value FROM meta WHERE key = 'format_version'", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			version = stmt.ColumnText(0)
			return nil
		},
	})
	if err != nil {
		return fmt.Errorf("reading format version: %w", err)
	}
	if version != strconv.Itoa(FormatVersion) {
		return fmt.Errorf("%w: format version %q, want %d", ErrNotContainer, version, FormatVersion)
	}
	return nil
}

// IsNotExist reports whether err means the container file is missing.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
