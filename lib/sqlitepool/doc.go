// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens a pool of SQLite connections with the pragmas
// every peerdocs database uses (WAL, NORMAL sync, busy timeout) and an
// optional schema script applied to each connection on first use.
//
// The disk-backed blob store is the consumer:
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{Path: path, Schema: schema})
//	err = pool.WithConn(ctx, func(conn *sqlite.Conn) error { ... })
package sqlitepool
