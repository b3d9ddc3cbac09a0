// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package persist

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/slurmflow/slurmflow/lib/container"
)

// RepackOptions controls Repack.
type RepackOptions struct {
	// Compactor rewrites the scratch copy. Nil means
	// container.VacuumCompactor.
	Compactor container.Compactor

	// Logger receives progress messages. If nil, a no-op logger is
	// used.
	Logger *slog.Logger
}

// Repack compacts the container file at location. The file is copied
// to a scratch file in the same directory, the compactor runs against
// the copy, and only after it succeeds is the copy renamed over the
// original. On any failure the scratch file is removed and location is
// left byte-for-byte unchanged.
func Repack(ctx context.Context, location string, options RepackOptions) error {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	compactor := options.Compactor
	if compactor == nil {
		compactor = container.VacuumCompactor{Logger: logger}
	}

	fail := func(step string, err error) error {
		return &Error{Op: "repack", Path: location, Err: fmt.Errorf("%w: %s: %w", ErrRepackFailure, step, err)}
	}

	original, err := os.Stat(location)
	if err != nil {
		return fail("stat", err)
	}
	if !original.Mode().IsRegular() {
		return fail("stat", fmt.Errorf("%s is not a regular file", location))
	}

	scratchPath, err := copyToScratch(location, original.Mode().Perm())
	if err != nil {
		return fail("copy", err)
	}
	committed := false
	defer func() {
		if !committed {
			os.Remove(scratchPath)
		}
	}()

	if err := compactor.Compact(ctx, scratchPath); err != nil {
		return fail("compact", err)
	}
	if err := syncFile(scratchPath); err != nil {
		return fail("sync", err)
	}
	compacted, err := os.Stat(scratchPath)
	if err != nil {
		return fail("stat", err)
	}

	// The rename is the commit point: everything before it leaves
	// location untouched.
	if err := os.Rename(scratchPath, location); err != nil {
		return fail("rename", err)
	}
	committed = true

	if err := syncDirectory(filepath.Dir(location)); err != nil {
		logger.Warn("syncing directory after repack", "location", location, "error", err)
	}

	logger.Info("container repacked",
		"location", location,
		"size_before", original.Size(),
		"size_after", compacted.Size(),
	)
	return nil
}

// copyToScratch copies location to a new file named
// "<base>.repack-*" in the same directory and returns its path.
func copyToScratch(location string, perm os.FileMode) (path string, err error) {
	source, err := os.Open(location)
	if err != nil {
		return "", err
	}
	defer source.Close()

	scratch, err := os.CreateTemp(filepath.Dir(location), filepath.Base(location)+".repack-*")
	if err != nil {
		return "", err
	}
	path = scratch.Name()
	defer func() {
		if err != nil {
			scratch.Close()
			os.Remove(path)
		}
	}()

	if _, err = io.Copy(scratch, source); err != nil {
		return "", err
	}
	if err = scratch.Chmod(perm); err != nil {
		return "", err
	}
	if err = scratch.Close(); err != nil {
		return "", err
	}
	return path, nil
}

func syncFile(path string) error {
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// syncDirectory makes a completed rename durable.
func syncDirectory(directory string) error {
	fd, err := unix.Open(directory, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("opening %s: %w", directory, err)
	}
	defer unix.Close(fd)
	if err := unix.Fsync(fd); err != nil {
		return fmt.Errorf("fsync %s: %w", directory, err)
	}
	return nil
}
