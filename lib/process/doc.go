// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the entrypoint error handling for the
// slurmflow binary. It is the one place outside the CLI that writes
// to stderr directly, because it runs after the structured logger may
// already be gone.
package process
