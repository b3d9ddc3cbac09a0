// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports what slurmflow build is running.
//
// Release builds set the variables with -ldflags:
//
//	go build -ldflags "-X github.com/slurmflow/slurmflow/lib/version.Version=0.3.0" ./cmd/slurmflow
//
// Other builds fall back to the VCS stamp the Go toolchain embeds.
package version
