// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package persist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/slurmflow/slurmflow/lib/codec"
	"github.com/slurmflow/slurmflow/lib/compress"
	"github.com/slurmflow/slurmflow/lib/container"
	"github.com/slurmflow/slurmflow/lib/nodepath"
	"github.com/slurmflow/slurmflow/lib/objtree"
)

// LoadOptions controls Load.
type LoadOptions struct {
	// Registry resolves type tags. Nil means objtree.DefaultRegistry.
	Registry *objtree.Registry

	// Logger receives per-node debug messages. If nil, a no-op logger
	// is used.
	Logger *slog.Logger
}

// Load reconstructs the value stored at internalPath ("" means the
// root) in the container file at location. A missing file is
// ErrPathNotFound.
func Load(ctx context.Context, location, internalPath string, options LoadOptions) (any, error) {
	if internalPath == "" {
		internalPath = nodepath.Root
	}

	c, err := container.Open(ctx, container.Config{
		Path:   location,
		Mode:   container.ModeReadOnly,
		Logger: options.Logger,
	})
	if err != nil {
		if container.IsNotExist(err) {
			err = fmt.Errorf("%w: %w", ErrPathNotFound, err)
		}
		return nil, &Error{Op: "load", Path: location, Err: err}
	}
	defer c.Close()

	engine := NewEngine(Options{Registry: options.Registry, Logger: options.Logger})
	return engine.Load(ctx, c, internalPath)
}

// Load reconstructs the value at path in c. Any failure aborts the
// whole subtree; no partial value is returned.
func (e *Engine) Load(ctx context.Context, c *container.Container, path string) (any, error) {
	cleaned, err := nodepath.Clean(path)
	if err != nil {
		return nil, &Error{Op: "load", Path: path, Err: fmt.Errorf("%w: %w", ErrPathNotFound, err)}
	}

	info, found, err := stat(c, cleaned)
	if err != nil {
		return nil, &Error{Op: "load", Path: cleaned, Err: err}
	}
	if !found {
		return nil, &Error{Op: "load", Path: cleaned, Err: ErrPathNotFound}
	}

	value, err := e.readNode(ctx, c, info)
	if err != nil {
		return nil, wrapError("load", cleaned, err)
	}
	return value, nil
}

func (e *Engine) readNode(ctx context.Context, c *container.Container, info container.NodeInfo) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Error{Op: "load", Path: info.Path, Err: err}
	}
	if !info.IsGroup {
		return nil, &Error{Op: "load", Path: info.Path, Err: fmt.Errorf("%w: dataset is not a node", ErrCorruptData)}
	}

	tag, tagged, err := c.Attr(info.Path, TypeAttr)
	if err != nil {
		return nil, &Error{Op: "load", Path: info.Path, Err: err}
	}
	if tagged {
		return e.readComposite(ctx, c, info.Path, tag)
	}
	return e.readLeaf(c, info.Path)
}

func (e *Engine) readComposite(ctx context.Context, c *container.Container, path, tag string) (any, error) {
	builder, err := e.registry.New(tag)
	if err != nil {
		return nil, &Error{Op: "load", Path: path, Err: err}
	}

	children, err := c.Children(path)
	if err != nil {
		return nil, &Error{Op: "load", Path: path, Err: err}
	}
	for _, child := range children {
		value, err := e.readNode(ctx, c, child)
		if err != nil {
			return nil, err
		}
		if err := builder.SetField(child.Name, value); err != nil {
			return nil, &Error{Op: "load", Path: child.Path, Err: fmt.Errorf("%w: setting field %q of %s: %w", ErrSerialization, child.Name, tag, err)}
		}
	}

	value, err := objtree.Build(builder)
	if err != nil {
		return nil, &Error{Op: "load", Path: path, Err: fmt.Errorf("%w: finishing %s: %w", ErrSerialization, tag, err)}
	}
	e.logger.Debug("loaded composite", "path", path, "type", tag, "fields", len(children))
	return value, nil
}

func (e *Engine) readLeaf(c *container.Container, path string) (any, error) {
	data, chunkCount, err := readPayload(c, path)
	if err != nil {
		return nil, err
	}
	value, err := codec.DecodeValue(data)
	if err != nil {
		return nil, &Error{Op: "load", Path: path, Err: fmt.Errorf("%w: %w", ErrCorruptData, err)}
	}

	if marker, ok := value.(codec.EmptyComposite); ok {
		builder, err := e.registry.New(marker.TypeTag)
		if err != nil {
			return nil, &Error{Op: "load", Path: path, Err: err}
		}
		value, err = objtree.Build(builder)
		if err != nil {
			return nil, &Error{Op: "load", Path: path, Err: fmt.Errorf("%w: finishing %s: %w", ErrSerialization, marker.TypeTag, err)}
		}
	}

	e.logger.Debug("loaded leaf", "path", path, "bytes", len(data), "chunks", chunkCount)
	return value, nil
}

// readPayload reassembles and decompresses the chunk records of the
// leaf at path. It also returns the number of chunks read.
func readPayload(c *container.Container, path string) ([]byte, int, error) {
	var chunks []compress.Chunk
	for index := 0; ; index++ {
		chunkPath := nodepath.Join(path, nodepath.ChunkName(index))
		data, err := c.ReadDataset(chunkPath)
		if isNotFound(err) {
			break
		}
		if err != nil {
			return nil, 0, &Error{Op: "load", Path: chunkPath, Err: fmt.Errorf("%w: %w", ErrCorruptData, err)}
		}
		chunks = append(chunks, compress.Chunk{Index: index, Data: data})
	}
	if len(chunks) == 0 {
		return nil, 0, &Error{Op: "load", Path: path, Err: fmt.Errorf("%w: group has neither a type tag nor chunk records", ErrCorruptData)}
	}

	data, err := compress.Decode(chunks)
	if err != nil {
		return nil, 0, &Error{Op: "load", Path: path, Err: err}
	}
	return data, len(chunks), nil
}

func isNotFound(err error) bool {
	return errors.Is(err, container.ErrNotFound)
}
