// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"filippo.io/age"
	"filippo.io/age/armor"

	"github.com/bureau-foundation/peerdocs/lib/secret"
)

// ErrEmptyPayload is returned by Open for a sealed empty payload.
var ErrEmptyPayload = errors.New("sealed payload is empty")

// Keypair is an age x25519 identity. Close releases the private key.
type Keypair struct {
	// PrivateKey is the AGE-SECRET-KEY-1... encoding.
	PrivateKey *secret.Buffer

	// PublicKey is the age1... recipient string.
	PublicKey string
}

func (k *Keypair) Close() error {
	if k.PrivateKey != nil {
		return k.PrivateKey.Close()
	}
	return nil
}

func GenerateKeypair() (*Keypair, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating age keypair: %w", err)
	}
	privateKey, err := secret.NewFromBytes([]byte(identity.String()))
	if err != nil {
		return nil, fmt.Errorf("protecting private key: %w", err)
	}
	return &Keypair{PrivateKey: privateKey, PublicKey: identity.Recipient().String()}, nil
}

// Seal writes plaintext to w as an armored age file readable by any of
// recipientKeys.
func Seal(w io.Writer, plaintext []byte, recipientKeys []string) error {
	if len(recipientKeys) == 0 {
		return fmt.Errorf("at least one recipient is required")
	}
	recipients := make([]age.Recipient, 0, len(recipientKeys))
	for _, key := range recipientKeys {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return fmt.Errorf("parsing recipient key %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}

	armored := armor.NewWriter(w)
	encrypted, err := age.Encrypt(armored, recipients...)
	if err != nil {
		return fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := encrypted.Write(plaintext); err != nil {
		return fmt.Errorf("encrypting: %w", err)
	}
	if err := encrypted.Close(); err != nil {
		return fmt.Errorf("finalizing encryption: %w", err)
	}
	if err := armored.Close(); err != nil {
		return fmt.Errorf("finalizing armor: %w", err)
	}
	return nil
}

// Open decrypts a file written by Seal. The private key is borrowed and
// not closed.
func Open(r io.Reader, privateKey *secret.Buffer) (*secret.Buffer, error) {
	identity, err := age.ParseX25519Identity(privateKey.String())
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	decrypted, err := age.Decrypt(armor.NewReader(bufio.NewReader(r)), identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	plaintext, err := io.ReadAll(decrypted)
	if err != nil {
		secret.Zero(plaintext)
		return nil, fmt.Errorf("reading plaintext: %w", err)
	}
	if len(plaintext) == 0 {
		return nil, ErrEmptyPayload
	}
	return secret.NewFromBytes(plaintext)
}

// ParsePublicKey validates an age1... recipient string.
func ParsePublicKey(publicKey string) error {
	if _, err := age.ParseX25519Recipient(publicKey); err != nil {
		return fmt.Errorf("invalid age public key: %w", err)
	}
	return nil
}

// PublicKeyOf returns the recipient string for a private key.
func PublicKeyOf(privateKey *secret.Buffer) (string, error) {
	identity, err := age.ParseX25519Identity(privateKey.String())
	if err != nil {
		return "", fmt.Errorf("invalid age private key: %w", err)
	}
	return identity.Recipient().String(), nil
}
