// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package persist

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/slurmflow/slurmflow/lib/codec"
	"github.com/slurmflow/slurmflow/lib/compress"
	"github.com/slurmflow/slurmflow/lib/container"
	"github.com/slurmflow/slurmflow/lib/nodepath"
	"github.com/slurmflow/slurmflow/lib/objtree"
)

// Save stores value in the container file at location, creating the
// file if needed. With options.Overwrite the container is cleared
// first; otherwise only the node at options.InternalPath is replaced.
// The whole operation is atomic with respect to the file.
//
// A regular file at location that is not a container of the current
// format version is replaced when options.Overwrite is set and rejected
// with container.ErrNotContainer otherwise.
func Save(ctx context.Context, value any, location string, options Options) error {
	internalPath := options.InternalPath
	if internalPath == "" {
		internalPath = nodepath.Root
	}
	engine := NewEngine(options)

	openConfig := container.Config{
		Path:   location,
		Mode:   container.ModeAppend,
		Logger: options.Logger,
	}
	c, err := container.Open(ctx, openConfig)
	if err != nil && options.Overwrite && errors.Is(err, container.ErrNotContainer) {
		if removeErr := removeForeignFile(location); removeErr != nil {
			return &Error{Op: "save", Path: location, Err: errors.Join(err, removeErr)}
		}
		engine.logger.Warn("replacing file that is not a container",
			"location", location,
			"error", err,
		)
		c, err = container.Open(ctx, openConfig)
	}
	if err != nil {
		return &Error{Op: "save", Path: location, Err: err}
	}
	defer c.Close()

	err = c.Transaction(func() error {
		if options.Overwrite {
			if err := c.Clear(); err != nil {
				return &Error{Op: "save", Path: location, Err: err}
			}
		}
		return engine.Store(ctx, c, value, internalPath)
	})
	if err != nil {
		return err
	}

	engine.logger.Info("saved value",
		"location", location,
		"path", internalPath,
		"overwrite", options.Overwrite,
	)
	return nil
}

// removeForeignFile deletes the regular file at location together with
// any SQLite journal files beside it. Directories and other special
// files are refused.
func removeForeignFile(location string) error {
	info, err := os.Lstat(location)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", location)
	}
	if err := os.Remove(location); err != nil {
		return err
	}
	for _, suffix := range []string{"-wal", "-shm", "-journal"} {
		if err := os.Remove(location + suffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// Store writes value at path in c, replacing any prior content at that
// path. Ancestor groups are created as needed. On error nothing is
// changed.
func (e *Engine) Store(ctx context.Context, c *container.Container, value any, path string) error {
	cleaned, err := nodepath.Clean(path)
	if err != nil {
		return &Error{Op: "store", Path: path, Err: fmt.Errorf("%w: %w", ErrSerialization, err)}
	}
	path = cleaned

	err = c.Transaction(func() error {
		if err := e.checkPolicy(c, value, path); err != nil {
			return err
		}
		if err := e.prepare(c, path); err != nil {
			return wrapError("store", path, err)
		}
		return e.writeNode(ctx, c, value, path)
	})
	if err != nil {
		return wrapError("store", path, err)
	}
	return nil
}

func (e *Engine) checkPolicy(c *container.Container, value any, path string) error {
	if e.policy != PolicyStrict {
		return nil
	}
	existing, err := storedKind(c, path)
	if err != nil {
		return wrapError("store", path, err)
	}
	incoming := nodeLeaf
	if objtree.Classify(value) == objtree.KindComposite {
		incoming = nodeComposite
	}
	if existing != nodeAbsent && existing != incoming {
		return &Error{Op: "store", Path: path, Err: fmt.Errorf("%w: existing %s, new %s", ErrKindConflict, existing, incoming)}
	}
	return nil
}

// prepare leaves an empty group at path: ancestors exist, prior
// content is gone. The root keeps its group and loses its contents.
func (e *Engine) prepare(c *container.Container, path string) error {
	if path == nodepath.Root {
		return c.Delete(nodepath.Root)
	}
	if _, err := c.EnsurePath(nodepath.Parent(path)); err != nil {
		return err
	}
	exists, err := c.Exists(path)
	if err != nil {
		return err
	}
	if exists {
		if err := c.Delete(path); err != nil {
			return err
		}
		e.logger.Debug("replaced prior content", "path", path)
	}
	return c.CreateGroup(path)
}

// writeNode fills the empty group at path with value.
func (e *Engine) writeNode(ctx context.Context, c *container.Container, value any, path string) error {
	if err := ctx.Err(); err != nil {
		return &Error{Op: "store", Path: path, Err: err}
	}

	if objtree.Classify(value) == objtree.KindComposite {
		return e.writeComposite(ctx, c, value.(objtree.Composite), path)
	}
	return e.writeLeaf(c, value, path)
}

func (e *Engine) writeComposite(ctx context.Context, c *container.Container, composite objtree.Composite, path string) error {
	fields, err := objtree.ExtractFields(composite)
	if err != nil {
		return &Error{Op: "store", Path: path, Err: fmt.Errorf("%w: %w", ErrSerialization, err)}
	}
	tag := composite.TypeTag()
	if tag == "" {
		return &Error{Op: "store", Path: path, Err: fmt.Errorf("%w: %T has an empty type tag", ErrSerialization, composite)}
	}
	if err := c.SetAttr(path, TypeAttr, tag); err != nil {
		return &Error{Op: "store", Path: path, Err: err}
	}

	for _, field := range fields {
		childPath := nodepath.Join(path, field.Name)
		if err := c.CreateGroup(childPath); err != nil {
			return &Error{Op: "store", Path: childPath, Err: err}
		}
		if err := e.writeNode(ctx, c, field.Value, childPath); err != nil {
			return err
		}
	}

	e.logger.Debug("stored composite", "path", path, "type", tag, "fields", len(fields))
	return nil
}

func (e *Engine) writeLeaf(c *container.Container, value any, path string) error {
	if objtree.IsNilPointer(value) {
		value = nil
	}
	// A composite with no fields carries nothing but its type tag.
	if composite, ok := value.(objtree.Composite); ok && objtree.TypeTag(value) != "" {
		value = codec.EmptyComposite{TypeTag: composite.TypeTag()}
	}

	data, err := codec.EncodeValue(value)
	if err != nil {
		return &Error{Op: "store", Path: path, Err: fmt.Errorf("%w: %w", ErrSerialization, err)}
	}
	chunks, err := compress.Encode(data, e.compression)
	if err != nil {
		return &Error{Op: "store", Path: path, Err: fmt.Errorf("%w: %w", ErrSerialization, err)}
	}
	for _, chunk := range chunks {
		chunkPath := nodepath.Join(path, nodepath.ChunkName(chunk.Index))
		if err := c.WriteDataset(chunkPath, chunk.Data); err != nil {
			return &Error{Op: "store", Path: chunkPath, Err: err}
		}
	}

	e.logger.Debug("stored leaf", "path", path, "bytes", len(data), "chunks", len(chunks))
	return nil
}
