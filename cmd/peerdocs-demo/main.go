// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// peerdocs-demo starts a single in-memory node, writes two entries to
// a fresh document, overwrites one of them, and prints the document
// before and after the overwrite.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/bureau-foundation/peerdocs/docs"
	"github.com/bureau-foundation/peerdocs/lib/config"
	"github.com/bureau-foundation/peerdocs/lib/process"
	"github.com/bureau-foundation/peerdocs/node"
)

const separator = "-----------------"

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	if len(os.Args) > 1 {
		return fmt.Errorf("unexpected argument: %s", os.Args[1])
	}

	logger, err := process.NewLogger(os.Stderr, "warn")
	if err != nil {
		return err
	}

	ctx := context.Background()
	n, err := node.New(ctx, config.Default(), logger)
	if err != nil {
		return err
	}

	demoErr := demo(ctx, n.Docs(), os.Stdout)

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := n.Shutdown(shutdownCtx); err != nil && demoErr == nil {
		return err
	}
	return demoErr
}

// demo performs the write/dump/overwrite/dump sequence against a new
// document owned by a new author.
func demo(ctx context.Context, d *docs.Docs, out io.Writer) error {
	doc, err := d.Create(ctx)
	if err != nil {
		return err
	}
	defer doc.Close()

	author, err := d.CreateAuthor(ctx)
	if err != nil {
		return err
	}

	if _, err := doc.SetBytes(ctx, author, []byte("t"), []byte("bork")); err != nil {
		return err
	}
	if _, err := doc.SetBytes(ctx, author, []byte("todo"), []byte("bork")); err != nil {
		return err
	}
	if err := dump(ctx, doc, out); err != nil {
		return err
	}

	fmt.Fprintln(out, separator)

	if _, err := doc.SetText(ctx, author, "t", "bork2"); err != nil {
		return err
	}
	return dump(ctx, doc, out)
}

func dump(ctx context.Context, doc *docs.Doc, out io.Writer) error {
	entries, err := doc.GetMany(ctx, docs.QueryAll())
	if err != nil {
		return err
	}
	defer entries.Close()

	for entries.Next() {
		entry := entries.Entry()
		content, err := doc.Content(ctx, entry)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s => %q\n", entry, content)
	}
	return entries.Err()
}
