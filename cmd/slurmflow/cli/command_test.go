// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestExecuteDispatchesNestedSubcommand(t *testing.T) {
	var called string
	var received []string

	root := &Command{
		Name: "slurmflow",
		Subcommands: []*Command{
			{Name: "summary", Run: func(ctx context.Context, args []string) error {
				called = "summary"
				return nil
			}},
			{Name: "job", Subcommands: []*Command{
				{Name: "status", Run: func(ctx context.Context, args []string) error {
					called = "job status"
					received = args
					return nil
				}},
			}},
		},
	}

	if err := root.Execute(context.Background(), []string{"job", "status", "4242"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if called != "job status" {
		t.Errorf("dispatched to %q", called)
	}
	if len(received) != 1 || received[0] != "4242" {
		t.Errorf("args = %v, want [4242]", received)
	}
}

func TestExecuteParsesFlags(t *testing.T) {
	var path string
	var target string
	command := &Command{
		Name: "inspect",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("inspect", pflag.ContinueOnError)
			flagSet.StringVarP(&path, "path", "p", "/", "node path")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			target = args[0]
			return nil
		},
	}

	if err := command.Execute(context.Background(), []string{"-p", "/model/weights", "run.sfc"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if path != "/model/weights" || target != "run.sfc" {
		t.Errorf("path = %q, target = %q", path, target)
	}
}

func TestExecuteSuggestsCommand(t *testing.T) {
	root := &Command{
		Name:   "slurmflow",
		Output: &bytes.Buffer{},
		Subcommands: []*Command{
			{Name: "summary", Run: func(context.Context, []string) error { return nil }},
			{Name: "repack", Run: func(context.Context, []string) error { return nil }},
		},
	}
	err := root.Execute(context.Background(), []string{"sumary"})
	if err == nil || !strings.Contains(err.Error(), `did you mean "summary"`) {
		t.Errorf("Execute = %v", err)
	}

	err = root.Execute(context.Background(), []string{"xyzzyplugh"})
	if err == nil || strings.Contains(err.Error(), "did you mean") {
		t.Errorf("Execute = %v, want no suggestion", err)
	}
}

func TestExecuteSuggestsFlag(t *testing.T) {
	command := &Command{
		Name: "summary",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("summary", pflag.ContinueOnError)
			flagSet.Bool("chunks", false, "")
			flagSet.Int("max-depth", -1, "")
			return flagSet
		},
		Run: func(context.Context, []string) error { return nil },
	}
	err := command.Execute(context.Background(), []string{"--chunk", "file.sfc"})
	if err == nil || !strings.Contains(err.Error(), "did you mean --chunks?") {
		t.Errorf("Execute = %v", err)
	}
}

func TestExecuteHelp(t *testing.T) {
	var output bytes.Buffer
	root := &Command{
		Name:   "slurmflow",
		Output: &output,
		Subcommands: []*Command{
			{
				Name:    "repack",
				Summary: "Compact a container file",
				Flags: func() *pflag.FlagSet {
					flagSet := pflag.NewFlagSet("repack", pflag.ContinueOnError)
					flagSet.String("command", "", "external compaction command")
					return flagSet
				},
				Examples: []Example{{Description: "Vacuum in place", Command: "slurmflow repack run.sfc"}},
				Run:      func(context.Context, []string) error { return nil },
			},
		},
	}

	if err := root.Execute(context.Background(), []string{"--help"}); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Usage:\n  slurmflow <command> [flags]", "repack", "Compact a container file"} {
		if !strings.Contains(output.String(), want) {
			t.Errorf("root help missing %q:\n%s", want, output.String())
		}
	}

	output.Reset()
	if err := root.Execute(context.Background(), []string{"repack", "-h"}); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Usage:\n  slurmflow repack [flags]", "--command", "# Vacuum in place"} {
		if !strings.Contains(output.String(), want) {
			t.Errorf("repack help missing %q:\n%s", want, output.String())
		}
	}
}

func TestExecuteRequiresSubcommand(t *testing.T) {
	root := &Command{Name: "slurmflow", Output: &bytes.Buffer{}, Subcommands: []*Command{{Name: "job"}}}
	if err := root.Execute(context.Background(), nil); err == nil || !strings.Contains(err.Error(), "subcommand required") {
		t.Errorf("Execute = %v", err)
	}
}

func TestExecutePassesContext(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "value")
	var seen any
	command := &Command{Name: "run", Run: func(ctx context.Context, args []string) error {
		seen = ctx.Value(key{})
		return nil
	}}
	if err := command.Execute(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if seen != "value" {
		t.Errorf("Run saw context value %v", seen)
	}
}

func TestRequireArgs(t *testing.T) {
	if err := RequireArgs([]string{"a.sfc", "key"}, "file", "key"); err != nil {
		t.Errorf("exact: %v", err)
	}
	if err := RequireArgs([]string{"a.sfc"}, "file", "key"); err == nil || err.Error() != "missing argument <key>" {
		t.Errorf("missing: %v", err)
	}
	if err := RequireArgs([]string{"a.sfc", "b"}, "file"); err == nil || err.Error() != `unexpected argument "b"` {
		t.Errorf("extra: %v", err)
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "job", 3},
		{"repack", "repack", 0},
		{"sumary", "summary", 1},
		{"kitten", "sitting", 3},
	}
	for _, tt := range tests {
		if got := levenshtein(tt.a, tt.b); got != tt.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestFlagsFromParams(t *testing.T) {
	type shared struct {
		Verbose bool `flag:"verbose,v" desc:"debug logging"`
	}
	var params struct {
		shared
		Path     string        `flag:"path" desc:"node path" default:"/"`
		Depth    int           `flag:"max-depth" default:"-1"`
		Interval time.Duration `flag:"interval" default:"10s"`
		Modules  []string      `flag:"module"`
		Ignored  string
	}

	flagSet := FlagsFromParams("test", &params)
	if params.Path != "/" || params.Depth != -1 || params.Interval != 10*time.Second {
		t.Fatalf("defaults not applied: %+v", params)
	}
	if err := flagSet.Parse([]string{"-v", "--path", "/x", "--max-depth", "2", "--module", "cuda", "--module", "gcc"}); err != nil {
		t.Fatal(err)
	}
	if !params.Verbose || params.Path != "/x" || params.Depth != 2 {
		t.Errorf("parsed = %+v", params)
	}
	if len(params.Modules) != 2 || params.Modules[1] != "gcc" {
		t.Errorf("modules = %v", params.Modules)
	}
	if flagSet.Lookup("Ignored") != nil {
		t.Error("untagged field was bound")
	}
}

func TestBindFlagsRejectsBadParams(t *testing.T) {
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	if err := BindFlags(struct{}{}, flagSet); err == nil {
		t.Error("non-pointer accepted")
	}
	var unsupported struct {
		Ratio float32 `flag:"ratio"`
	}
	if err := BindFlags(&unsupported, flagSet); err == nil {
		t.Error("float32 field accepted")
	}
}

func TestNewLoggerHandlers(t *testing.T) {
	var output bytes.Buffer
	newLogger(&output, false, false).Info("saved", "path", "/a")
	if !strings.HasPrefix(output.String(), "{") {
		t.Errorf("non-terminal logger wrote %q, want JSON", output.String())
	}

	output.Reset()
	logger := newLogger(&output, true, false)
	logger.Debug("hidden")
	logger.Info("shown")
	if strings.Contains(output.String(), "hidden") || !strings.Contains(output.String(), "msg=shown") {
		t.Errorf("terminal logger wrote %q", output.String())
	}
}
