// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"os"

	"github.com/slurmflow/slurmflow/cmd/slurmflow/cli"
	"github.com/slurmflow/slurmflow/lib/process"
	"github.com/slurmflow/slurmflow/lib/slurm"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	env := environment{
		stdout:    os.Stdout,
		newLogger: cli.NewCommandLogger,
		runner:    slurm.ExecRunner{},
	}
	return Root(env).Execute(context.Background(), os.Args[1:])
}
