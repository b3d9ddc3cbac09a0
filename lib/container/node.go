// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package container

import (
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/slurmflow/slurmflow/lib/nodepath"
)

// NodeInfo describes one node.
type NodeInfo struct {
	// Path is the canonical absolute path.
	Path string

	// Name is the last path segment, "" for the root.
	Name string

	// IsGroup is true for groups and false for datasets.
	IsGroup bool

	// Size is the dataset length in bytes. Zero for groups.
	Size int64
}

// Exists reports whether a node exists at path.
func (c *Container) Exists(path string) (bool, error) {
	_, found, err := c.lookup(path)
	return found, err
}

// Stat returns information about the node at path, or ErrNotFound.
func (c *Container) Stat(path string) (NodeInfo, error) {
	info, found, err := c.lookup(path)
	if err != nil {
		return NodeInfo{}, err
	}
	if !found {
		return NodeInfo{}, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return info, nil
}

// CreateGroup creates an empty group at path. The parent must be an
// existing group and path must be free.
func (c *Container) CreateGroup(path string) error {
	if err := c.writable(); err != nil {
		return err
	}
	path, err := nodepath.Clean(path)
	if err != nil {
		return err
	}
	if path == nodepath.Root {
		return fmt.Errorf("%w: %s", ErrExists, path)
	}
	if err := c.requireParentGroup(path); err != nil {
		return err
	}
	if _, found, err := c.lookup(path); err != nil {
		return err
	} else if found {
		return fmt.Errorf("%w: %s", ErrExists, path)
	}
	return c.insertNode(path, true, nil)
}

// EnsurePath makes path and every ancestor of it exist as groups,
// creating only the missing ones, and returns how many groups were
// created. Calling EnsurePath again with the same path creates
// nothing. A dataset anywhere along the path is ErrNotGroup.
func (c *Container) EnsurePath(path string) (created int, err error) {
	if err := c.writable(); err != nil {
		return 0, err
	}
	path, err = nodepath.Clean(path)
	if err != nil {
		return 0, err
	}
	if path == nodepath.Root {
		return 0, nil
	}

	segments := append(nodepath.Ancestors(path), path)
	err = c.Transaction(func() error {
		for _, segment := range segments {
			info, found, err := c.lookup(segment)
			if err != nil {
				return err
			}
			if found {
				if !info.IsGroup {
					return fmt.Errorf("%w: %s", ErrNotGroup, segment)
				}
				continue
			}
			if err := c.insertNode(segment, true, nil); err != nil {
				return err
			}
			created++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if created > 0 {
		c.logger.Debug("ensured path", "path", path, "created", created)
	}
	return created, nil
}

// WriteDataset stores data at path. The parent must be an existing
// group. An existing dataset at path is replaced in place, keeping
// its position among its siblings. An existing group is ErrNotDataset.
func (c *Container) WriteDataset(path string, data []byte) error {
	if err := c.writable(); err != nil {
		return err
	}
	path, err := nodepath.Clean(path)
	if err != nil {
		return err
	}
	if path == nodepath.Root {
		return fmt.Errorf("%w: %s", ErrNotDataset, path)
	}
	if err := c.requireParentGroup(path); err != nil {
		return err
	}
	info, found, err := c.lookup(path)
	if err != nil {
		return err
	}
	if data == nil {
		data = []byte{}
	}
	if !found {
		return c.insertNode(path, false, data)
	}
	if info.IsGroup {
		return fmt.Errorf("%w: %s", ErrNotDataset, path)
	}
	return sqlitex.Execute(c.conn, "UPDATE nodes SET data = ? WHERE path = ?", &sqlitex.ExecOptions{
		Args: []any{data, path},
	})
}

// ReadDataset returns the contents of the dataset at path.
func (c *Container) ReadDataset(path string) ([]byte, error) {
	path, err := nodepath.Clean(path)
	if err != nil {
		return nil, err
	}
	var (
		found   bool
		isGroup bool
		data    []byte
	)
	err = sqlitex.Execute(c.conn, "SELECT is_group, data FROM nodes WHERE path = ?", &sqlitex.ExecOptions{
		Args: []any{path},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			found = true
			isGroup = stmt.ColumnInt64(0) != 0
			data = make([]byte, stmt.ColumnLen(1))
			stmt.ColumnBytes(1, data)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("container: reading %s: %w", path, err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if isGroup {
		return nil, fmt.Errorf("%w: %s", ErrNotDataset, path)
	}
	return data, nil
}

// Children returns the direct children of the group at path in
// insertion order.
func (c *Container) Children(path string) ([]NodeInfo, error) {
	info, err := c.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsGroup {
		return nil, fmt.Errorf("%w: %s", ErrNotGroup, info.Path)
	}

	var children []NodeInfo
	err = sqlitex.Execute(c.conn,
		"SELECT path, name, is_group, length(data) FROM nodes WHERE parent = ? ORDER BY id",
		&sqlitex.ExecOptions{
			Args: []any{info.Path},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				children = append(children, scanNodeInfo(stmt))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("container: listing %s: %w", info.Path, err)
	}
	return children, nil
}

// Delete removes the node at path and everything beneath it, with
// their attributes. Deleting the root removes every other node and
// the root's attributes but keeps the root group itself.
func (c *Container) Delete(path string) error {
	if err := c.writable(); err != nil {
		return err
	}
	path, err := nodepath.Clean(path)
	if err != nil {
		return err
	}
	if path == nodepath.Root {
		return c.Clear()
	}
	if _, found, err := c.lookup(path); err != nil {
		return err
	} else if !found {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	prefix := path + nodepath.Separator
	err = c.Transaction(func() error {
		args := &sqlitex.ExecOptions{Args: []any{path, prefix}}
		if err := sqlitex.Execute(c.conn,
			"DELETE FROM nodes WHERE path = ?1 OR substr(path, 1, length(?2)) = ?2", args); err != nil {
			return err
		}
		return sqlitex.Execute(c.conn,
			"DELETE FROM attrs WHERE path = ?1 OR substr(path, 1, length(?2)) = ?2", args)
	})
	if err != nil {
		return fmt.Errorf("container: deleting %s: %w", path, err)
	}
	c.logger.Debug("deleted node", "path", path)
	return nil
}

// Clear removes every node except the root, and every attribute.
func (c *Container) Clear() error {
	if err := c.writable(); err != nil {
		return err
	}
	err := c.Transaction(func() error {
		return sqlitex.ExecuteScript(c.conn, `
			DELETE FROM nodes WHERE path != '/';
			DELETE FROM attrs;
		`, nil)
	})
	if err != nil {
		return fmt.Errorf("container: clearing: %w", err)
	}
	c.logger.Debug("cleared container", "path", c.path)
	return nil
}

// Walk calls fn for path and every node beneath it in depth-first
// preorder, visiting siblings in insertion order. If fn returns an
// error the walk stops and returns it.
func (c *Container) Walk(path string, fn func(NodeInfo) error) error {
	info, err := c.Stat(path)
	if err != nil {
		return err
	}
	return c.walk(info, fn)
}

func (c *Container) walk(info NodeInfo, fn func(NodeInfo) error) error {
	if err := fn(info); err != nil {
		return err
	}
	if !info.IsGroup {
		return nil
	}
	children, err := c.Children(info.Path)
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := c.walk(child, fn); err != nil {
			return err
		}
	}
	return nil
}

// SetAttr sets a string attribute on the node at path, replacing any
// previous value.
func (c *Container) SetAttr(path, name, value string) error {
	if err := c.writable(); err != nil {
		return err
	}
	info, err := c.Stat(path)
	if err != nil {
		return err
	}
	return sqlitex.Execute(c.conn,
		"INSERT INTO attrs (path, name, value) VALUES (?, ?, ?) ON CONFLICT (path, name) DO UPDATE SET value = excluded.value",
		&sqlitex.ExecOptions{Args: []any{info.Path, name, value}})
}

// Attr returns a string attribute of the node at path. found is false
// if the node exists but has no such attribute.
func (c *Container) Attr(path, name string) (value string, found bool, err error) {
	info, err := c.Stat(path)
	if err != nil {
		return "", false, err
	}
	err = sqlitex.Execute(c.conn, "SELECT value FROM attrs WHERE path = ? AND name = ?", &sqlitex.ExecOptions{
		Args: []any{info.Path, name},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			value = stmt.ColumnText(0)
			found = true
			return nil
		},
	})
	if err != nil {
		return "", false, fmt.Errorf("container: reading attribute %s of %s: %w", name, info.Path, err)
	}
	return value, found, nil
}

// Attrs returns every attribute of the node at path.
func (c *Container) Attrs(path string) (map[string]string, error) {
	info, err := c.Stat(path)
	if err != nil {
		return nil, err
	}
	attrs := make(map[string]string)
	err = sqlitex.Execute(c.conn, "SELECT name, value FROM attrs WHERE path = ?", &sqlitex.ExecOptions{
		Args: []any{info.Path},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			attrs[stmt.ColumnText(0)] = stmt.ColumnText(1)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("container: reading attributes of %s: %w", info.Path, err)
	}
	return attrs, nil
}

func (c *Container) writable() error {
	if c.mode != ModeAppend {
		return fmt.Errorf("%w: %s", ErrReadOnly, c.path)
	}
	return nil
}

func (c *Container) lookup(path string) (NodeInfo, bool, error) {
	path, err := nodepath.Clean(path)
	if err != nil {
		return NodeInfo{}, false, err
	}
	var (
		info  NodeInfo
		found bool
	)
	err = sqlitex.Execute(c.conn, "SELECT path, name, is_group, length(data) FROM nodes WHERE path = ?", &sqlitex.ExecOptions{
		Args: []any{path},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			info = scanNodeInfo(stmt)
			found = true
			return nil
		},
	})
	if err != nil {
		return NodeInfo{}, false, fmt.Errorf("container: looking up %s: %w", path, err)
	}
	return info, found, nil
}

func (c *Container) requireParentGroup(path string) error {
	parent := nodepath.Parent(path)
	info, found, err := c.lookup(parent)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: parent %s of %s", ErrNotFound, parent, path)
	}
	if !info.IsGroup {
		return fmt.Errorf("%w: parent %s of %s", ErrNotGroup, parent, path)
	}
	return nil
}

func (c *Container) insertNode(path string, isGroup bool, data []byte) error {
	groupFlag := 0
	var payload any
	if isGroup {
		groupFlag = 1
	} else {
		payload = data
	}
	err := sqlitex.Execute(c.conn,
		"INSERT INTO nodes (path, parent, name, is_group, data) VALUES (?, ?, ?, ?, ?)",
		&sqlitex.ExecOptions{
			Args: []any{path, nodepath.Parent(path), nodepath.Base(path), groupFlag, payload},
		})
	if err != nil {
		return fmt.Errorf("container: creating %s: %w", path, err)
	}
	return nil
}

// scanNodeInfo reads the columns (path, name, is_group, length(data)).
func scanNodeInfo(stmt *sqlite.Stmt) NodeInfo {
	return NodeInfo{
		Path:    stmt.ColumnText(0),
		Name:    stmt.ColumnText(1),
		IsGroup: stmt.ColumnInt64(2) != 0,
		Size:    stmt.ColumnInt64(3),
	}
}
