// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package container

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/slurmflow/slurmflow/lib/sqlitepool"
)

// Compactor rewrites a closed container file in place into a smaller
// equivalent. It must leave the file unusable only by returning an
// error: callers compact a scratch copy and discard it on failure.
type Compactor interface {
	Compact(ctx context.Context, path string) error
}

// ErrIntegrity is returned by VacuumCompactor when SQLite's integrity
// check fails after compaction.
var ErrIntegrity = errors.New("integrity check failed")

// VacuumCompactor compacts with SQLite's VACUUM, then verifies the
// result with PRAGMA integrity_check.
type VacuumCompactor struct {
	Logger *slog.Logger
}

// Compact implements Compactor.
func (v VacuumCompactor) Compact(ctx context.Context, path string) error {
	logger := v.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:      path,
		Logger:    logger,
		OnConnect: checkVersion,
	})
	if err != nil {
		return fmt.Errorf("vacuum %s: %w", path, err)
	}
	defer pool.Close()

	conn, err := pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("vacuum %s: %w", path, err)
	}
	defer pool.Put(conn)

	if err := sqlitex.ExecuteTransient(conn, "VACUUM", nil); err != nil {
		return fmt.Errorf("vacuum %s: %w", path, err)
	}

	var problems []string
	err = sqlitex.ExecuteTransient(conn, "PRAGMA integrity_check", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			if result := stmt.ColumnText(0); result != "ok" {
				problems = append(problems, result)
			}
			return nil
		},
	})
	if err != nil {
		return fmt.Errorf("integrity check %s: %w", path, err)
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s: %s", ErrIntegrity, path, strings.Join(problems, "; "))
	}

	logger.Debug("container vacuumed", "path", path)
	return nil
}

// PathPlaceholder is replaced by the container path in the arguments
// of a CommandCompactor.
const PathPlaceholder = "{path}"

// CommandCompactor runs an external program against the container
// file. Every occurrence of PathPlaceholder in Args is replaced by the
// file path; if no argument contains it, the path is appended. A
// non-zero exit status is a failure.
//
//	CommandCompactor{Program: "sqlite3", Args: []string{"{path}", "VACUUM"}}
type CommandCompactor struct {
	Program string
	Args    []string
	Logger  *slog.Logger
}

// ParseCommandCompactor splits a whitespace-separated command line
// such as "sqlite3 {path} VACUUM" into a CommandCompactor.
func ParseCommandCompactor(commandLine string) (CommandCompactor, error) {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return CommandCompactor{}, fmt.Errorf("empty compaction command")
	}
	return CommandCompactor{Program: fields[0], Args: fields[1:]}, nil
}

// Compact implements Compactor.
func (c CommandCompactor) Compact(ctx context.Context, path string) error {
	if c.Program == "" {
		return fmt.Errorf("compaction command has no program")
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	args := c.arguments(path)
	cmd := exec.CommandContext(ctx, c.Program, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %s: %w (%s)",
			c.Program, strings.Join(args, " "), err, strings.TrimSpace(string(output)))
	}
	logger.Debug("compaction command finished", "program", c.Program, "path", path)
	return nil
}

func (c CommandCompactor) arguments(path string) []string {
	args := make([]string, 0, len(c.Args)+1)
	substituted := false
	for _, arg := range c.Args {
		if strings.Contains(arg, PathPlaceholder) {
			arg = strings.ReplaceAll(arg, PathPlaceholder, path)
			substituted = true
		}
		args = append(args, arg)
	}
	if !substituted {
		args = append(args, path)
	}
	return args
}
