// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version carries build information for peerdocs binaries.
//
// [Version], [GitCommit], [GitDirty] and [BuildTime] are injected with
// -ldflags -X and default to "0.1.0-dev" / "unknown" in development
// builds and tests. [Info] formats them for --version output.
package version
