// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/slurmflow/slurmflow/cmd/slurmflow/cli"
	"github.com/slurmflow/slurmflow/lib/config"
)

type configParams struct {
	commonParams
	Parent string `flag:"parent" desc:"configuration file whose keys placeholders may also refer to"`
}

// loadConfig loads path and, if given, its parent.
func loadConfig(env environment, params configParams, path string) (*config.Config, error) {
	options := config.Options{Logger: env.newLogger(params.Verbose).With("config", path)}
	cfg, err := config.Load(path, options)
	if err != nil {
		return nil, err
	}
	if params.Parent == "" {
		return cfg, nil
	}
	parent, err := config.Load(params.Parent, options)
	if err != nil {
		return nil, err
	}
	return cfg.WithParent(parent), nil
}

func configCommand(env environment) *cli.Command {
	return &cli.Command{
		Name:    "config",
		Summary: "Resolve values in a job configuration file",
		Subcommands: []*cli.Command{
			configGetCommand(env),
			configCompileCommand(env),
		},
	}
}

func configGetCommand(env environment) *cli.Command {
	var params configParams
	return &cli.Command{
		Name:    "get",
		Summary: "Print one resolved value",
		Usage:   "slurmflow config get <file> <key> [flags]",
		Examples: []cli.Example{
			{Command: "slurmflow config get sweep.yaml paths.output"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("get", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, "file", "key"); err != nil {
				return err
			}
			cfg, err := loadConfig(env, params, args[0])
			if err != nil {
				return err
			}
			value, err := cfg.Get(args[1])
			if err != nil {
				return err
			}
			if text, ok := value.(string); ok {
				_, err = fmt.Fprintln(env.stdout, text)
				return err
			}
			return writeYAML(env, value)
		},
	}
}

func configCompileCommand(env environment) *cli.Command {
	var params struct {
		configParams
		Leaves bool `flag:"leaves" desc:"key values by their last segment only"`
		Flat   bool `flag:"flat" desc:"print dotted keys instead of nested sections"`
	}
	return &cli.Command{
		Name:    "compile",
		Summary: "Print every value with placeholders resolved, as YAML",
		Usage:   "slurmflow config compile <file> [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("compile", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, "file"); err != nil {
				return err
			}
			cfg, err := loadConfig(env, params.configParams, args[0])
			if err != nil {
				return err
			}
			var compiled map[string]any
			if params.Leaves || params.Flat {
				compiled, err = cfg.Compile(params.Leaves)
			} else {
				compiled, err = cfg.Nested()
			}
			if err != nil {
				return err
			}
			return writeYAML(env, compiled)
		},
	}
}

func writeYAML(env environment, value any) error {
	encoder := yaml.NewEncoder(env.stdout)
	encoder.SetIndent(2)
	if err := encoder.Encode(value); err != nil {
		return err
	}
	return encoder.Close()
}
