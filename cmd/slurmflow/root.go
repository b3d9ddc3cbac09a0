// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"io"
	"log/slog"

	"github.com/slurmflow/slurmflow/cmd/slurmflow/cli"
	"github.com/slurmflow/slurmflow/lib/slurm"
)

// environment is what commands need from the process. Tests swap in
// buffers and a fake scheduler.
type environment struct {
	stdout    io.Writer
	newLogger func(verbose bool) *slog.Logger
	runner    slurm.Runner

	// scriptDir receives batch scripts. Empty means os.TempDir().
	scriptDir string
}

// commonParams are accepted by every leaf command.
type commonParams struct {
	Verbose bool `flag:"verbose,v" desc:"log debug messages"`
}

// Root returns the slurmflow command tree.
func Root(env environment) *cli.Command {
	return &cli.Command{
		Name: "slurmflow",
		Description: `slurmflow stores object graphs in container files and runs stored
work units on a Slurm cluster.`,
		Subcommands: []*cli.Command{
			summaryCommand(env),
			inspectCommand(env),
			repackCommand(env),
			unitCommand(env),
			runCommand(env),
			configCommand(env),
			jobCommand(env),
			versionCommand(env),
		},
	}
}
