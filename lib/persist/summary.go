// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package persist

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/slurmflow/slurmflow/lib/container"
	"github.com/slurmflow/slurmflow/lib/nodepath"
)

// SummaryOptions controls Summary.
type SummaryOptions struct {
	// IncludeChunks lists chunk records (chunk_0, chunk_1, ...) too.
	IncludeChunks bool

	// MaxDepth excludes names with more than MaxDepth separators, so
	// the zero value lists top-level names only. Negative means
	// unlimited.
	MaxDepth int
}

// DefaultSummaryOptions lists every non-chunk node at any depth.
func DefaultSummaryOptions() SummaryOptions {
	return SummaryOptions{MaxDepth: -1}
}

// Summary lists every node of the container file at location except
// the root, depth-first in stored order. Names are paths without the
// leading '/': "a", "a/b", "a/b/chunk_0".
func Summary(ctx context.Context, location string, options SummaryOptions) ([]string, error) {
	c, err := container.Open(ctx, container.Config{Path: location, Mode: container.ModeReadOnly})
	if err != nil {
		if container.IsNotExist(err) {
			err = fmt.Errorf("%w: %w", ErrPathNotFound, err)
		}
		return nil, &Error{Op: "summary", Path: location, Err: err}
	}
	defer c.Close()

	names, err := SummarizeContainer(ctx, c, options)
	if err != nil {
		return nil, &Error{Op: "summary", Path: location, Err: err}
	}
	return names, nil
}

// SummarizeContainer is Summary for an open container.
func SummarizeContainer(ctx context.Context, c *container.Container, options SummaryOptions) ([]string, error) {
	var names []string
	err := c.Walk(nodepath.Root, func(info container.NodeInfo) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if info.Path == nodepath.Root {
			return nil
		}
		name := strings.TrimPrefix(info.Path, nodepath.Separator)
		if !options.IncludeChunks && nodepath.IsChunkName(info.Name) {
			return nil
		}
		if options.MaxDepth >= 0 && nodepath.Depth(name) > options.MaxDepth {
			return nil
		}
		names = append(names, name)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

// PrintSummary writes Summary's names to w, one per line.
func PrintSummary(ctx context.Context, w io.Writer, location string, options SummaryOptions) error {
	names, err := Summary(ctx, location, options)
	if err != nil {
		return err
	}
	for _, name := range names {
		if _, err := fmt.Fprintln(w, name); err != nil {
			return err
		}
	}
	return nil
}
