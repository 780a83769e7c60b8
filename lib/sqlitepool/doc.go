// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens the SQLite connection pool behind the local
// store.
//
// Every connection gets WAL journaling, NORMAL synchronous and a busy
// timeout, then the caller's OnConnect hook (schema creation). Callers
// Take a connection, use it from one goroutine, and Put it back; WithConn
// does both:
//
//	err := pool.WithConn(ctx, func(conn *sqlite.Conn) error {
//	    return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{...})
//	})
package sqlitepool
