// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command tree behind the slurmflow binary.
//
// A [Command] has a name, an optional pflag flag set factory, and
// either a Run function or nested Subcommands. [Command.Execute]
// routes arguments down the tree, parses flags, and prints help with
// usage examples. Unknown commands and flags get a "did you mean"
// suggestion when a known name is within edit distance 3.
//
// Flags are usually declared as tagged struct fields and bound with
// [FlagsFromParams].
package cli
