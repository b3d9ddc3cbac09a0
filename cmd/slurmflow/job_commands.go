// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/slurmflow/slurmflow/cmd/slurmflow/cli"
	"github.com/slurmflow/slurmflow/lib/config"
	"github.com/slurmflow/slurmflow/lib/slurm"
)

func newDriver(env environment, verbose bool) *slurm.Driver {
	return slurm.New(slurm.Config{
		Runner:    env.runner,
		ScriptDir: env.scriptDir,
		Logger:    env.newLogger(verbose).With("component", "slurm"),
	})
}

func jobCommand(env environment) *cli.Command {
	return &cli.Command{
		Name:    "job",
		Summary: "Submit and follow Slurm batch jobs",
		Subcommands: []*cli.Command{
			jobSubmitCommand(env),
			jobStatusCommand(env),
			jobCancelCommand(env),
			jobListCommand(env),
			jobWaitCommand(env),
		},
	}
}

type submitParams struct {
	commonParams

	Config  string `flag:"config" desc:"configuration file holding resource settings"`
	Section string `flag:"section" desc:"configuration section with the resource settings" default:"slurm"`

	Partition   string `flag:"partition" desc:"Slurm partition"`
	NTasks      int    `flag:"ntasks" desc:"number of tasks"`
	CPUsPerTask int    `flag:"cpus-per-task" desc:"CPUs per task"`
	Memory      string `flag:"mem" desc:"memory, e.g. 16G"`
	Time        string `flag:"time" desc:"wall time limit, e.g. 2:00:00"`
	JobName     string `flag:"job-name" desc:"job name"`
	GRES        string `flag:"gres" desc:"generic resources, e.g. gpu:1"`
	OutputDir   string `flag:"output-dir" desc:"directory for the job's stdout and stderr"`

	Env        string   `flag:"env" desc:"environment to activate before the command"`
	EnvManager string   `flag:"env-manager" desc:"mamba or conda" default:"mamba"`
	Modules    []string `flag:"module" desc:"module to load, repeatable"`

	Unit string `flag:"unit" desc:"container file holding a stored unit to run instead of a command"`
	Path string `flag:"path" desc:"unit path inside --unit" default:"/"`

	Wait     bool          `flag:"wait" desc:"block until the job finishes"`
	Interval time.Duration `flag:"interval" desc:"poll interval for --wait" default:"10s"`
}

// resources merges, in increasing precedence, the defaults, the
// configuration section and the flags that were given.
func (p submitParams) resources(env environment) (slurm.Resources, error) {
	resources := slurm.DefaultResources()
	if p.Config != "" {
		cfg, err := config.Load(p.Config, config.Options{Logger: env.newLogger(p.Verbose)})
		if err != nil {
			return slurm.Resources{}, err
		}
		if resources, err = slurm.ResourcesFromConfig(cfg, p.Section); err != nil {
			return slurm.Resources{}, err
		}
	}

	overrideString := func(target *string, value string) {
		if value != "" {
			*target = value
		}
	}
	overrideString(&resources.Partition, p.Partition)
	overrideString(&resources.Memory, p.Memory)
	overrideString(&resources.Time, p.Time)
	overrideString(&resources.JobName, p.JobName)
	overrideString(&resources.GRES, p.GRES)
	overrideString(&resources.OutputDir, p.OutputDir)
	if p.NTasks > 0 {
		resources.NTasks = p.NTasks
	}
	if p.CPUsPerTask > 0 {
		resources.CPUsPerTask = p.CPUsPerTask
	}
	return resources, nil
}

// command returns the shell command the batch script runs.
func (p submitParams) command(args []string) (string, error) {
	if p.Unit == "" {
		if len(args) == 0 {
			return "", fmt.Errorf("missing argument <command> (or use --unit)")
		}
		return strings.Join(args, " "), nil
	}
	if len(args) > 0 {
		return "", fmt.Errorf("--unit and a command are mutually exclusive")
	}
	location, err := filepath.Abs(p.Unit)
	if err != nil {
		return "", err
	}
	executable, err := os.Executable()
	if err != nil {
		executable = "slurmflow"
	}
	return fmt.Sprintf("%s run %s --path %s", shellQuote(executable), shellQuote(location), shellQuote(p.Path)), nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func jobSubmitCommand(env environment) *cli.Command {
	var params submitParams
	return &cli.Command{
		Name:    "submit",
		Summary: "Submit a command or a stored unit as a batch job",
		Usage:   "slurmflow job submit [flags] [--] <command...>",
		Examples: []cli.Example{
			{Description: "Run a shell command on a GPU node", Command: "slurmflow job submit --partition gpu --gres gpu:1 -- python eval.py"},
			{Description: "Run a stored unit with resources from a config file", Command: "slurmflow job submit --config sweep.yaml --unit steps.sfc --path /train --wait"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("submit", &params) },
		Run: func(ctx context.Context, args []string) error {
			command, err := params.command(args)
			if err != nil {
				return err
			}
			resources, err := params.resources(env)
			if err != nil {
				return err
			}

			driver := newDriver(env, params.Verbose)
			id, err := driver.Submit(ctx, command, resources, slurm.SubmitOptions{
				Env:        params.Env,
				EnvManager: slurm.EnvManager(params.EnvManager),
				Modules:    params.Modules,
				Track:      params.Wait,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(env.stdout, id)

			if !params.Wait {
				return nil
			}
			if err := driver.Wait(ctx, params.Interval); err != nil {
				return err
			}
			status, err := driver.Status(ctx, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(env.stdout, "%s %s\n", id, status)
			return nil
		},
	}
}

func jobStatusCommand(env environment) *cli.Command {
	var params commonParams
	return &cli.Command{
		Name:    "status",
		Summary: "Print the state of jobs",
		Usage:   "slurmflow job status <id>... [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("status", &params) },
		Run: func(ctx context.Context, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("missing argument <id>")
			}
			driver := newDriver(env, params.Verbose)
			for _, id := range args {
				status, err := driver.Query(ctx, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(env.stdout, "%s %s\n", id, status)
			}
			return nil
		},
	}
}

func jobCancelCommand(env environment) *cli.Command {
	var params commonParams
	return &cli.Command{
		Name:    "cancel",
		Summary: "Cancel jobs",
		Usage:   "slurmflow job cancel <id>... [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("cancel", &params) },
		Run: func(ctx context.Context, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("missing argument <id>")
			}
			driver := newDriver(env, params.Verbose)
			for _, id := range args {
				driver.Track(id)
				if _, err := driver.Cancel(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(env.stdout, "%s %s\n", id, slurm.StatusCancelled)
			}
			return nil
		},
	}
}

func jobListCommand(env environment) *cli.Command {
	var params struct {
		commonParams
		State string `flag:"state" desc:"only jobs in this state, e.g. PENDING or R"`
	}
	return &cli.Command{
		Name:    "list",
		Summary: "List job IDs known to squeue",
		Usage:   "slurmflow job list [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("list", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args); err != nil {
				return err
			}
			ids, err := newDriver(env, params.Verbose).List(ctx, params.State)
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(env.stdout, id)
			}
			return nil
		},
	}
}

func jobWaitCommand(env environment) *cli.Command {
	var params struct {
		commonParams
		Interval time.Duration `flag:"interval" desc:"poll interval" default:"10s"`
	}
	return &cli.Command{
		Name:    "wait",
		Summary: "Block until jobs finish",
		Usage:   "slurmflow job wait <id>... [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("wait", &params) },
		Run: func(ctx context.Context, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("missing argument <id>")
			}
			driver := newDriver(env, params.Verbose)
			for _, id := range args {
				driver.Track(id)
			}
			if err := driver.Wait(ctx, params.Interval); err != nil {
				return err
			}
			for _, job := range driver.Jobs() {
				fmt.Fprintf(env.stdout, "%s %s\n", job.ID, job.Status)
			}
			return nil
		},
	}
}
