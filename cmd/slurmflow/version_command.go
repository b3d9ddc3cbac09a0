// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/slurmflow/slurmflow/cmd/slurmflow/cli"
	"github.com/slurmflow/slurmflow/lib/version"
)

func versionCommand(env environment) *cli.Command {
	var params struct {
		Full bool `flag:"full" desc:"include Go version and platform"`
	}
	return &cli.Command{
		Name:    "version",
		Summary: "Print the slurmflow version",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("version", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args); err != nil {
				return err
			}
			build := version.Current()
			if params.Full {
				_, err := fmt.Fprintln(env.stdout, build.Full())
				return err
			}
			_, err := fmt.Fprintln(env.stdout, build.String())
			return err
		},
	}
}
