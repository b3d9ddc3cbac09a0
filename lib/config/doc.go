// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config reads job and workflow configuration files and
// resolves templated values in them.
//
// A [Config] is loaded from YAML, TOML or JSON-with-comments ([Load])
// or built from nested maps ([FromMap]). Values are addressed by
// dotted keys ("slurm.partition"). String values may contain
// {{dotted.key}} placeholders that [Config.Get] replaces with the
// referenced value, repeating until the string stops changing.
// Placeholders naming a missing key are left in place and logged.
// A chain of placeholders that never settles fails with
// [ErrSubstitutionCycle].
//
// [Config.WithParent] lets a per-job configuration refer to keys of a
// shared parent. [Config.Compile] resolves every leaf at once, which is
// what the CLI prints and what job submission consumes.
package config
