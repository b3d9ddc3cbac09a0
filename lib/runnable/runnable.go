// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package runnable

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/slurmflow/slurmflow/lib/objtree"
	"github.com/slurmflow/slurmflow/lib/persist"
)

// Unit is a piece of work that can be stored in a container and run
// later, typically inside a batch job.
type Unit interface {
	// Run does the work. It should return promptly once ctx is done.
	Run(ctx context.Context) error

	// HandleSignal is called for each SIGINT or SIGTERM received
	// while Run is in progress.
	HandleSignal(sig os.Signal) error

	// Cleanup is called once after Run returns, whatever the outcome.
	Cleanup() error
}

// ErrNotRunnable is returned by Launch when the stored value does not
// implement Unit.
var ErrNotRunnable = errors.New("stored value is not a runnable unit")

// Options controls Execute.
type Options struct {
	// Signals delivers the signals forwarded to HandleSignal. Nil
	// means SIGINT and SIGTERM sent to this process.
	Signals <-chan os.Signal

	// Logger receives lifecycle messages. If nil, a no-op logger is
	// used.
	Logger *slog.Logger
}

// Execute runs unit, forwarding signals to it until Run returns, then
// calls Cleanup. The errors from Run, from HandleSignal and from
// Cleanup are joined. A panic in Run is returned as an error and does
// not skip Cleanup.
func Execute(ctx context.Context, unit Unit, options Options) error {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	signals := options.Signals
	if signals == nil {
		notify := make(chan os.Signal, 1)
		signal.Notify(notify, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(notify)
		signals = notify
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if recovered := recover(); recovered != nil {
				done <- fmt.Errorf("run panicked: %v", recovered)
			}
		}()
		done <- unit.Run(ctx)
	}()

	var errs []error
	for running := true; running; {
		select {
		case err := <-done:
			if err != nil {
				errs = append(errs, fmt.Errorf("run: %w", err))
			}
			running = false
		case sig := <-signals:
			logger.Info("forwarding signal to unit", "signal", sig.String())
			if err := unit.HandleSignal(sig); err != nil {
				errs = append(errs, fmt.Errorf("handling %v: %w", sig, err))
			}
		}
	}

	if err := unit.Cleanup(); err != nil {
		errs = append(errs, fmt.Errorf("cleanup: %w", err))
	}
	return errors.Join(errs...)
}

// LaunchOptions controls Launch.
type LaunchOptions struct {
	// Registry resolves stored type tags. Nil means
	// objtree.DefaultRegistry.
	Registry *objtree.Registry

	// Signals and Logger are passed to Execute.
	Signals <-chan os.Signal
	Logger  *slog.Logger
}

// Launch loads the unit stored at internalPath of the container file
// at location and executes it.
func Launch(ctx context.Context, location, internalPath string, options LaunchOptions) error {
	value, err := persist.Load(ctx, location, internalPath, persist.LoadOptions{
		Registry: options.Registry,
		Logger:   options.Logger,
	})
	if err != nil {
		return err
	}
	unit, ok := value.(Unit)
	if !ok {
		return fmt.Errorf("%w: %s at %s is %T", ErrNotRunnable, location, internalPath, value)
	}
	return Execute(ctx, unit, Options{Signals: options.Signals, Logger: options.Logger})
}

// Store saves unit at internalPath of the container file at location,
// leaving the rest of the file in place.
func Store(ctx context.Context, unit Unit, location, internalPath string) error {
	options := persist.DefaultOptions()
	options.InternalPath = internalPath
	options.Overwrite = false
	return persist.Save(ctx, unit, location, options)
}
