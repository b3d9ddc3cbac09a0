// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package container

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/slurmflow/slurmflow/lib/nodepath"
)

func openTestContainer(t *testing.T) *Container {
	t.Helper()
	c, err := Open(context.Background(), Config{
		Path: filepath.Join(t.TempDir(), "nested", "test.sfc"),
		Mode: ModeAppend,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func childNames(t *testing.T, c *Container, path string) []string {
	t.Helper()
	children, err := c.Children(path)
	if err != nil {
		t.Fatalf("Children(%s): %v", path, err)
	}
	names := []string{}
	for _, child := range children {
		names = append(names, child.Name)
	}
	return names
}

func TestOpenCreatesRoot(t *testing.T) {
	c := openTestContainer(t)

	info, err := c.Stat("/")
	if err != nil {
		t.Fatalf("Stat(/): %v", err)
	}
	if !info.IsGroup || info.Path != "/" || info.Name != "" {
		t.Errorf("root = %+v", info)
	}
	if names := childNames(t, c, "/"); len(names) != 0 {
		t.Errorf("new container has children %v", names)
	}
	if c.Mode() != ModeAppend {
		t.Errorf("Mode = %v", c.Mode())
	}
}

func TestOpenReadOnlyMissingFile(t *testing.T) {
	_, err := Open(context.Background(), Config{Path: filepath.Join(t.TempDir(), "absent.sfc")})
	if !IsNotExist(err) {
		t.Fatalf("Open error = %v, want not-exist", err)
	}
}

func TestOpenRejectsForeignDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foreign.sfc")
	if err := os.WriteFile(path, []byte("not a database at all, just text padding to look like a file"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(context.Background(), Config{Path: path}); err == nil {
		t.Fatal("Open of a non-database file should fail")
	}
}

func TestAppendLeavesForeignSQLiteUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.db")
	conn, err := sqlite.OpenConn(path, sqlite.OpenReadWrite|sqlite.OpenCreate)
	if err != nil {
		t.Fatal(err)
	}
	if err := sqlitex.ExecuteTransient(conn, "CREATE TABLE notes (body TEXT)", nil); err != nil {
		t.Fatal(err)
	}
	if err := conn.Close(); err != nil {
		t.Fatal(err)
	}

	_, err = Open(context.Background(), Config{Path: path, Mode: ModeAppend})
	if !errors.Is(err, ErrNotContainer) {
		t.Fatalf("Open error = %v, want ErrNotContainer", err)
	}

	conn, err = sqlite.OpenConn(path, sqlite.OpenReadWrite)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	var names []string
	err = sqlitex.ExecuteTransient(conn, "SELECT name FROM sqlite_master ORDER BY name", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			names = append(names, stmt.ColumnText(0))
			return nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(names, []string{"notes"}) {
		t.Errorf("schema after rejected open = %v, want [notes]", names)
	}
}

func TestOpenAppendTagsGarbageFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.sfc")
	if err := os.WriteFile(path, bytes.Repeat([]byte("not sqlite "), 100), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(context.Background(), Config{Path: path, Mode: ModeAppend}); !errors.Is(err, ErrNotContainer) {
		t.Fatalf("Open error = %v, want ErrNotContainer", err)
	}
}

func TestReadOnlyRejectsWrites(t *testing.T) {
	c := openTestContainer(t)
	path := c.Path()
	if err := c.WriteDataset("/blob", []byte("x")); err != nil {
		t.Fatalf("WriteDataset: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reader, err := Open(context.Background(), Config{Path: path, Mode: ModeReadOnly})
	if err != nil {
		t.Fatalf("Open read-only: %v", err)
	}
	defer reader.Close()

	data, err := reader.ReadDataset("/blob")
	if err != nil || string(data) != "x" {
		t.Fatalf("ReadDataset = %q, %v", data, err)
	}

	mutations := map[string]func() error{
		"CreateGroup":  func() error { return reader.CreateGroup("/g") },
		"WriteDataset": func() error { return reader.WriteDataset("/d", nil) },
		"SetAttr":      func() error { return reader.SetAttr("/", "k", "v") },
		"Delete":       func() error { return reader.Delete("/blob") },
		"Clear":        reader.Clear,
		"EnsurePath": func() error {
			_, err := reader.EnsurePath("/a/b")
			return err
		},
	}
	for name, mutate := range mutations {
		if err := mutate(); !errors.Is(err, ErrReadOnly) {
			t.Errorf("%s error = %v, want ErrReadOnly", name, err)
		}
	}
}

func TestEnsurePathIdempotent(t *testing.T) {
	c := openTestContainer(t)

	created, err := c.EnsurePath("/a/b/c")
	if err != nil {
		t.Fatalf("EnsurePath: %v", err)
	}
	if created != 3 {
		t.Errorf("first EnsurePath created %d groups, want 3", created)
	}

	var before []NodeInfo
	c.Walk("/", func(info NodeInfo) error {
		before = append(before, info)
		return nil
	})

	created, err = c.EnsurePath("/a/b/c")
	if err != nil {
		t.Fatalf("second EnsurePath: %v", err)
	}
	if created != 0 {
		t.Errorf("second EnsurePath created %d groups, want 0", created)
	}

	var after []NodeInfo
	c.Walk("/", func(info NodeInfo) error {
		after = append(after, info)
		return nil
	})
	if !reflect.DeepEqual(before, after) {
		t.Errorf("tree changed:\nbefore %v\nafter  %v", before, after)
	}

	created, err = c.EnsurePath("/a/x")
	if err != nil || created != 1 {
		t.Errorf("EnsurePath(/a/x) = %d, %v, want 1 created", created, err)
	}
	if created, err := c.EnsurePath("/"); err != nil || created != 0 {
		t.Errorf("EnsurePath(/) = %d, %v", created, err)
	}
}

func TestEnsurePathThroughDataset(t *testing.T) {
	c := openTestContainer(t)
	if err := c.WriteDataset("/a", []byte("leaf")); err != nil {
		t.Fatal(err)
	}
	_, err := c.EnsurePath("/a/b")
	if !errors.Is(err, ErrNotGroup) {
		t.Fatalf("EnsurePath error = %v, want ErrNotGroup", err)
	}
	if exists, _ := c.Exists("/a/b"); exists {
		t.Error("failed EnsurePath left /a/b behind")
	}
}

func TestEnsurePathInvalid(t *testing.T) {
	c := openTestContainer(t)
	if _, err := c.EnsurePath("/a//b"); !errors.Is(err, nodepath.ErrInvalidPath) {
		t.Errorf("EnsurePath error = %v, want ErrInvalidPath", err)
	}
}

func TestCreateGroup(t *testing.T) {
	c := openTestContainer(t)

	if err := c.CreateGroup("/a"); err != nil {
		t.Fatalf("CreateGroup(/a): %v", err)
	}
	if err := c.CreateGroup("/a"); !errors.Is(err, ErrExists) {
		t.Errorf("duplicate CreateGroup error = %v, want ErrExists", err)
	}
	if err := c.CreateGroup("/missing/child"); !errors.Is(err, ErrNotFound) {
		t.Errorf("CreateGroup without parent error = %v, want ErrNotFound", err)
	}
	if err := c.WriteDataset("/d", []byte{1}); err != nil {
		t.Fatal(err)
	}
	if err := c.CreateGroup("/d/child"); !errors.Is(err, ErrNotGroup) {
		t.Errorf("CreateGroup under dataset error = %v, want ErrNotGroup", err)
	}
}

func TestDatasets(t *testing.T) {
	c := openTestContainer(t)
	payload := bytes.Repeat([]byte{0xAB, 0x00}, 4096)

	if err := c.WriteDataset("/data", payload); err != nil {
		t.Fatalf("WriteDataset: %v", err)
	}
	got, err := c.ReadDataset("/data")
	if err != nil {
		t.Fatalf("ReadDataset: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("ReadDataset returned %d bytes, want %d", len(got), len(payload))
	}
	info, err := c.Stat("/data")
	if err != nil {
		t.Fatal(err)
	}
	if info.IsGroup || info.Size != int64(len(payload)) {
		t.Errorf("Stat = %+v", info)
	}

	if err := c.WriteDataset("/empty", nil); err != nil {
		t.Fatalf("WriteDataset(empty): %v", err)
	}
	if got, err := c.ReadDataset("/empty"); err != nil || len(got) != 0 {
		t.Errorf("ReadDataset(empty) = %v, %v", got, err)
	}

	// Rewriting keeps the position among siblings.
	if err := c.WriteDataset("/data", []byte("new")); err != nil {
		t.Fatal(err)
	}
	if names := childNames(t, c, "/"); !reflect.DeepEqual(names, []string{"data", "empty"}) {
		t.Errorf("children = %v", names)
	}

	if _, err := c.ReadDataset("/"); !errors.Is(err, ErrNotDataset) {
		t.Errorf("ReadDataset(/) error = %v, want ErrNotDataset", err)
	}
	if _, err := c.ReadDataset("/nothing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ReadDataset(missing) error = %v, want ErrNotFound", err)
	}
	if err := c.CreateGroup("/g"); err != nil {
		t.Fatal(err)
	}
	if err := c.WriteDataset("/g", []byte{1}); !errors.Is(err, ErrNotDataset) {
		t.Errorf("WriteDataset over group error = %v, want ErrNotDataset", err)
	}
}

func TestChildrenInsertionOrder(t *testing.T) {
	c := openTestContainer(t)
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := c.CreateGroup("/" + name); err != nil {
			t.Fatal(err)
		}
	}
	if names := childNames(t, c, "/"); !reflect.DeepEqual(names, []string{"zeta", "alpha", "mid"}) {
		t.Errorf("children = %v", names)
	}
	if _, err := c.Children("/missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Children(missing) error = %v", err)
	}
}

func TestDeleteRecursive(t *testing.T) {
	c := openTestContainer(t)
	if _, err := c.EnsurePath("/a/b"); err != nil {
		t.Fatal(err)
	}
	if err := c.WriteDataset("/a/b/chunk_0", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := c.SetAttr("/a/b", "type", "example.T"); err != nil {
		t.Fatal(err)
	}
	// A sibling sharing the name prefix must survive.
	if err := c.CreateGroup("/ab"); err != nil {
		t.Fatal(err)
	}

	if err := c.Delete("/a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	for _, path := range []string{"/a", "/a/b", "/a/b/chunk_0"} {
		if exists, _ := c.Exists(path); exists {
			t.Errorf("%s still exists", path)
		}
	}
	if exists, _ := c.Exists("/ab"); !exists {
		t.Error("/ab was deleted")
	}

	// Recreating the path does not resurrect stale attributes.
	if _, err := c.EnsurePath("/a/b"); err != nil {
		t.Fatal(err)
	}
	if _, found, _ := c.Attr("/a/b", "type"); found {
		t.Error("attribute survived deletion")
	}

	if err := c.Delete("/missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete(missing) error = %v", err)
	}
}

func TestDeleteRootClears(t *testing.T) {
	c := openTestContainer(t)
	if _, err := c.EnsurePath("/x/y"); err != nil {
		t.Fatal(err)
	}
	if err := c.SetAttr("/", "type", "example.Root"); err != nil {
		t.Fatal(err)
	}
	if err := c.Delete("/"); err != nil {
		t.Fatalf("Delete(/): %v", err)
	}
	if names := childNames(t, c, "/"); len(names) != 0 {
		t.Errorf("root children after clear = %v", names)
	}
	if _, found, _ := c.Attr("/", "type"); found {
		t.Error("root attribute survived clear")
	}
	if exists, _ := c.Exists("/"); !exists {
		t.Error("root was deleted")
	}
}

func TestAttributes(t *testing.T) {
	c := openTestContainer(t)
	if err := c.CreateGroup("/g"); err != nil {
		t.Fatal(err)
	}
	if err := c.SetAttr("/g", "type", "a.B"); err != nil {
		t.Fatal(err)
	}
	if err := c.SetAttr("/g", "type", "a.C"); err != nil {
		t.Fatal(err)
	}
	if err := c.SetAttr("/g", "note", "hello"); err != nil {
		t.Fatal(err)
	}

	value, found, err := c.Attr("/g", "type")
	if err != nil || !found || value != "a.C" {
		t.Errorf("Attr = %q, %v, %v", value, found, err)
	}
	if _, found, err := c.Attr("/g", "missing"); err != nil || found {
		t.Errorf("Attr(missing) = %v, %v", found, err)
	}
	attrs, err := c.Attrs("/g")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(attrs, map[string]string{"type": "a.C", "note": "hello"}) {
		t.Errorf("Attrs = %v", attrs)
	}
	if err := c.SetAttr("/nothing", "k", "v"); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetAttr(missing) error = %v", err)
	}
}

func TestWalkPreorder(t *testing.T) {
	c := openTestContainer(t)
	if _, err := c.EnsurePath("/a/b"); err != nil {
		t.Fatal(err)
	}
	if err := c.WriteDataset("/a/b/chunk_0", nil); err != nil {
		t.Fatal(err)
	}
	if err := c.CreateGroup("/c"); err != nil {
		t.Fatal(err)
	}
	if err := c.WriteDataset("/a/z", nil); err != nil {
		t.Fatal(err)
	}

	var visited []string
	err := c.Walk("/", func(info NodeInfo) error {
		visited = append(visited, info.Path)
		return nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	want := []string{"/", "/a", "/a/b", "/a/b/chunk_0", "/a/z", "/c"}
	if !reflect.DeepEqual(visited, want) {
		t.Errorf("Walk order = %v, want %v", visited, want)
	}

	stop := errors.New("stop")
	count := 0
	err = c.Walk("/", func(NodeInfo) error {
		count++
		if count == 2 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) || count != 2 {
		t.Errorf("Walk stop = %v after %d visits", err, count)
	}
}

func TestTransactionRollback(t *testing.T) {
	c := openTestContainer(t)
	failure := errors.New("abort")

	err := c.Transaction(func() error {
		if err := c.CreateGroup("/temp"); err != nil {
			return err
		}
		if err := c.WriteDataset("/temp/d", []byte("x")); err != nil {
			return err
		}
		return failure
	})
	if !errors.Is(err, failure) {
		t.Fatalf("Transaction error = %v", err)
	}
	if exists, _ := c.Exists("/temp"); exists {
		t.Error("rolled-back group still exists")
	}

	err = c.Transaction(func() error {
		return c.CreateGroup("/kept")
	})
	if err != nil {
		t.Fatal(err)
	}
	if exists, _ := c.Exists("/kept"); !exists {
		t.Error("committed group missing")
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.sfc")
	c, err := Open(context.Background(), Config{Path: path, Mode: ModeAppend})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.EnsurePath("/x"); err != nil {
		t.Fatal(err)
	}
	if err := c.WriteDataset("/x/chunk_0", []byte("persisted")); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	reopened, err := Open(context.Background(), Config{Path: path, Mode: ModeAppend})
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	data, err := reopened.ReadDataset("/x/chunk_0")
	if err != nil || string(data) != "persisted" {
		t.Errorf("ReadDataset = %q, %v", data, err)
	}
}
