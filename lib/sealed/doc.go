// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed encrypts small payloads to age x25519 recipients.
//
// Sealed payloads are ASCII-armored age files, safe to keep next to
// YAML configuration. Private keys and decrypted plaintext are handed
// out as [secret.Buffer] values and must be closed by the caller.
//
//   - [GenerateKeypair] creates an age identity
//   - [Seal] encrypts to one or more public keys
//   - [Open] decrypts with a private key
//   - [ParsePublicKey] and [PublicKeyOf] validate and derive keys
//
// The author keyring of a peerdocs node is stored this way.
package sealed
