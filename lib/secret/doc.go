// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds key material outside the Go heap.
//
// A [Buffer] is an anonymous mmap region locked into RAM (mlock) and
// excluded from core dumps (MADV_DONTDUMP). Close zeroes, unlocks, and
// unmaps it; any later access panics. The garbage collector never sees
// the region, so it cannot leave copies behind.
//
// peerdocs keeps the age identity that seals the author keyring in a
// Buffer, along with every decrypted keyring payload.
package secret
