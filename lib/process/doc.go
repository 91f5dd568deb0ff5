// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the entrypoint helpers shared by the peerdocs
// binaries: building the process logger and reporting a fatal error as
// a single diagnostic line before exiting non-zero.
package process
