// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package persist

import (
	"fmt"
	"log/slog"

	"github.com/slurmflow/slurmflow/lib/compress"
	"github.com/slurmflow/slurmflow/lib/container"
	"github.com/slurmflow/slurmflow/lib/nodepath"
	"github.com/slurmflow/slurmflow/lib/objtree"
)

// TypeAttr is the attribute holding a composite group's type tag.
const TypeAttr = "type"

// Policy decides what a store does when the target path already holds
// a node of the other kind (leaf versus composite).
type Policy int

const (
	// PolicyReplace deletes whatever is at the path and writes the new
	// value. Last write wins.
	PolicyReplace Policy = iota

	// PolicyStrict fails with ErrKindConflict when the existing node
	// is a leaf and the new value a composite, or the other way round.
	// Replacing a node of the same kind is allowed.
	PolicyStrict
)

// String returns "replace" or "strict".
func (p Policy) String() string {
	switch p {
	case PolicyReplace:
		return "replace"
	case PolicyStrict:
		return "strict"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy parses the output of Policy.String.
func ParsePolicy(name string) (Policy, error) {
	switch name {
	case "", "replace":
		return PolicyReplace, nil
	case "strict":
		return PolicyStrict, nil
	default:
		return 0, fmt.Errorf("unknown overwrite policy %q (want replace or strict)", name)
	}
}

// Options controls Save and NewEngine.
type Options struct {
	// InternalPath is where the value is stored inside the container.
	// Empty means the root.
	InternalPath string

	// Overwrite clears the entire container before storing. When
	// false, only the node at InternalPath is replaced.
	Overwrite bool

	// Compression controls chunking. A zero ChunkSize means
	// compress.DefaultOptions().
	Compression compress.Options

	// Registry resolves type tags of empty composites. Nil means
	// objtree.DefaultRegistry.
	Registry *objtree.Registry

	// Policy applies when replacing an existing node.
	Policy Policy

	// Logger receives per-node debug messages. If nil, a no-op logger
	// is used.
	Logger *slog.Logger
}

// DefaultOptions stores at the root, overwriting the whole container,
// with default compression and PolicyReplace.
func DefaultOptions() Options {
	return Options{
		InternalPath: nodepath.Root,
		Overwrite:    true,
		Compression:  compress.DefaultOptions(),
		Policy:       PolicyReplace,
	}
}

// Engine stores and loads values against open containers.
type Engine struct {
	registry    *objtree.Registry
	compression compress.Options
	policy      Policy
	logger      *slog.Logger
}

// NewEngine creates an engine from the registry, compression, policy
// and logger fields of options. InternalPath and Overwrite are used
// only by Save.
func NewEngine(options Options) *Engine {
	registry := options.Registry
	if registry == nil {
		registry = objtree.DefaultRegistry
	}
	compression := options.Compression
	if compression.ChunkSize == 0 {
		compression = compress.DefaultOptions()
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		registry:    registry,
		compression: compression,
		policy:      options.Policy,
		logger:      logger,
	}
}

// nodeKind is the kind of an existing node as stored.
type nodeKind int

const (
	// nodeAbsent: no node, or a plain group with no type tag and no
	// chunk run, such as an ancestor created by EnsurePath.
	nodeAbsent nodeKind = iota
	nodeLeaf
	nodeComposite
)

func (k nodeKind) String() string {
	switch k {
	case nodeLeaf:
		return "leaf"
	case nodeComposite:
		return "composite"
	default:
		return "absent"
	}
}

// storedKind classifies the node at path.
func storedKind(c *container.Container, path string) (nodeKind, error) {
	info, found, err := stat(c, path)
	if err != nil || !found {
		return nodeAbsent, err
	}
	if !info.IsGroup {
		return nodeLeaf, nil
	}
	if _, tagged, err := c.Attr(path, TypeAttr); err != nil {
		return nodeAbsent, err
	} else if tagged {
		return nodeComposite, nil
	}
	hasChunk, err := c.Exists(nodepath.Join(path, nodepath.ChunkName(0)))
	if err != nil {
		return nodeAbsent, err
	}
	if hasChunk {
		return nodeLeaf, nil
	}
	return nodeAbsent, nil
}

func stat(c *container.Container, path string) (container.NodeInfo, bool, error) {
	info, err := c.Stat(path)
	if err == nil {
		return info, true, nil
	}
	if isNotFound(err) {
		return container.NodeInfo{}, false, nil
	}
	return container.NodeInfo{}, false, err
}
