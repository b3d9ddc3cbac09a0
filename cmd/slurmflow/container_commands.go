// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/slurmflow/slurmflow/cmd/slurmflow/cli"
	"github.com/slurmflow/slurmflow/lib/container"
	"github.com/slurmflow/slurmflow/lib/persist"
	"github.com/slurmflow/slurmflow/lib/runnable"
)

func summaryCommand(env environment) *cli.Command {
	var params struct {
		commonParams
		Chunks   bool `flag:"chunks" desc:"include chunk records"`
		MaxDepth int  `flag:"max-depth" desc:"deepest level to list, 0 for top level only, negative for all" default:"-1"`
	}
	return &cli.Command{
		Name:    "summary",
		Summary: "List the nodes of a container file",
		Usage:   "slurmflow summary <file> [flags]",
		Examples: []cli.Example{
			{Description: "Top-level fields only", Command: "slurmflow summary run.sfc --max-depth 0"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("summary", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, "file"); err != nil {
				return err
			}
			return persist.PrintSummary(ctx, env.stdout, args[0], persist.SummaryOptions{
				IncludeChunks: params.Chunks,
				MaxDepth:      params.MaxDepth,
			})
		},
	}
}

func inspectCommand(env environment) *cli.Command {
	var params struct {
		commonParams
		Path string `flag:"path,p" desc:"node to inspect" default:"/"`
	}
	return &cli.Command{
		Name:    "inspect",
		Summary: "Show a stored node without loading it",
		Description: `Show the node at --path. Composites print their type tag and field
names. Leaves print their chunk count, decompressed size and value in
CBOR diagnostic notation.`,
		Usage: "slurmflow inspect <file> [flags]",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("inspect", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, "file"); err != nil {
				return err
			}
			report, err := persist.Inspect(ctx, args[0], params.Path)
			if err != nil {
				return err
			}
			_, err = report.WriteTo(env.stdout)
			return err
		},
	}
}

func repackCommand(env environment) *cli.Command {
	var params struct {
		commonParams
		Command string `flag:"command" desc:"external compaction command; {path} is replaced by the scratch copy"`
	}
	return &cli.Command{
		Name:    "repack",
		Summary: "Compact a container file in place",
		Description: `Reclaim the space left by overwritten values. The file is copied,
the copy is compacted, and the copy replaces the original only if
compaction succeeded.`,
		Usage: "slurmflow repack <file> [flags]",
		Examples: []cli.Example{
			{Description: "Built-in VACUUM", Command: "slurmflow repack run.sfc"},
			{Description: "External tool", Command: `slurmflow repack run.sfc --command "sqlite3 {path} VACUUM"`},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("repack", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, "file"); err != nil {
				return err
			}
			logger := env.newLogger(params.Verbose).With("command", "repack")
			options := persist.RepackOptions{Logger: logger}
			if params.Command != "" {
				compactor, err := container.ParseCommandCompactor(params.Command)
				if err != nil {
					return err
				}
				compactor.Logger = logger
				options.Compactor = compactor
			}
			return persist.Repack(ctx, args[0], options)
		},
	}
}

func unitCommand(env environment) *cli.Command {
	var params struct {
		commonParams
		Path string   `flag:"path,p" desc:"where to store the unit" default:"/"`
		Name string   `flag:"name" desc:"unit name"`
		Dir  string   `flag:"dir" desc:"working directory for the program"`
		Env  []string `flag:"env" desc:"KEY=value added to the program's environment"`
	}
	return &cli.Command{
		Name:    "unit",
		Summary: "Store a program as a runnable unit",
		Usage:   "slurmflow unit <file> [flags] -- <program> [args...]",
		Examples: []cli.Example{
			{
				Description: "Store a training step, then run it in a batch job",
				Command:     "slurmflow unit steps.sfc --path /train -- python train.py --epochs 3",
			},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("unit", &params) },
		Run: func(ctx context.Context, args []string) error {
			if len(args) < 2 {
				return fmt.Errorf("usage: slurmflow unit <file> [flags] -- <program> [args...]")
			}
			for _, entry := range params.Env {
				if !strings.Contains(entry, "=") {
					return fmt.Errorf("--env %q: want KEY=value", entry)
				}
			}
			unit := &runnable.Command{
				Name:    params.Name,
				Program: args[1],
				Args:    args[2:],
				Dir:     params.Dir,
				Env:     params.Env,
			}
			if err := runnable.Store(ctx, unit, args[0], params.Path); err != nil {
				return err
			}
			env.newLogger(params.Verbose).Info("unit stored", "file", args[0], "path", params.Path, "program", unit.Program)
			return nil
		},
	}
}

func runCommand(env environment) *cli.Command {
	var params struct {
		commonParams
		Path string `flag:"path,p" desc:"stored unit to run" default:"/"`
	}
	return &cli.Command{
		Name:    "run",
		Summary: "Load a stored unit and execute it",
		Description: `Load the unit at --path and run it. SIGINT and SIGTERM are passed to
the unit while it runs, and its cleanup always runs afterwards. Batch
scripts written by "slurmflow job submit --unit" call this.`,
		Usage: "slurmflow run <file> [flags]",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("run", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, "file"); err != nil {
				return err
			}
			logger := env.newLogger(params.Verbose).With("command", "run", "file", args[0], "path", params.Path)
			return runnable.Launch(ctx, args[0], params.Path, runnable.LaunchOptions{Logger: logger})
		},
	}
}
