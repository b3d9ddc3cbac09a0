// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package slurm drives the Slurm batch scheduler through its command
// line tools.
//
// A [Driver] renders a batch script from a command and [Resources],
// submits it with sbatch, and tracks the job IDs it is told to. Job
// state comes from squeue's compact state codes; a job that squeue no
// longer lists has completed. Cancellation goes through scancel.
// [Driver.Wait] polls the tracked jobs on a [clock.Clock] until all of
// them have finished.
//
// Every command runs through a [Runner], so tests substitute a fake
// scheduler and never need Slurm installed.
package slurm
