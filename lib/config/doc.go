// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the YAML configuration of a peerdocs node.
//
// The file named by the node's --config flag is the single source of
// truth: there are no environment overrides and no search paths. Fields
// absent from the file keep the values from [Default], which describe a
// single in-memory node on loopback (the configuration the demo runs
// with). Unknown keys are rejected so typos surface at startup.
package config
