// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens SQLite database files with the pragmas used
// for slurmflow container files.
//
// It wraps zombiezen.com/go/sqlite's sqlitex.Pool. Callers
// [Pool.Take] a connection, perform work, and [Pool.Put] it back.
// Connections are NOT safe for concurrent use.
//
// # Pragmas
//
// Writable connections get:
//
//   - journal_mode=DELETE: the rollback journal is removed at commit,
//     so a closed database is exactly one file. Repack copies and
//     renames that file, which WAL sidecars would break.
//   - synchronous=FULL: a committed store survives power loss.
//
// Every connection gets:
//
//   - busy_timeout=5000: wait up to 5 seconds for a lock held by
//     another process instead of returning SQLITE_BUSY immediately.
//   - foreign_keys=OFF: the container schema has no foreign keys.
//   - cache_size=-8192: 8 MB page cache per connection.
//   - temp_store=MEMORY: VACUUM and sorts use memory for temporaries.
//
// # Usage
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{
//	    Path:   "/data/run.sfc",
//	    Logger: logger,
//	    OnConnect: func(conn *sqlite.Conn) error {
//	        return sqlitex.ExecuteScript(conn, schema, nil)
//	    },
//	})
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	conn, err := pool.Take(ctx)
//	if err != nil {
//	    return err
//	}
//	defer pool.Put(conn)
package sqlitepool
