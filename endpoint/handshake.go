// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package endpoint

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"net"

	"github.com/bureau-foundation/peerdocs/lib/codec"
)

const (
	nonceSize = 32

	// maxALPNLength bounds the tag a dialer may send.
	maxALPNLength = 255

	// handshakeDomain prefixes every signed handshake message.
	handshakeDomain = "peerdocs-session-v1\x00"
)

type hello struct {
	ALPN  string `cbor:"1,keyasint"`
	Node  NodeID `cbor:"2,keyasint"`
	Nonce []byte `cbor:"3,keyasint"`
}

type challenge struct {
	Node      NodeID `cbor:"1,keyasint"`
	Nonce     []byte `cbor:"2,keyasint"`
	Signature []byte `cbor:"3,keyasint"`
}

type proof struct {
	Signature []byte `cbor:"1,keyasint"`
}

type verdict struct {
	OK      bool      `cbor:"1,keyasint"`
	Code    CloseCode `cbor:"2,keyasint,omitempty"`
	Message string    `cbor:"3,keyasint,omitempty"`
}

// challengeMessage is what a responder signs: the challenger's nonce
// bound to the ALPN and to the challenger's identity.
func challengeMessage(alpn string, nonce []byte, challenger NodeID) []byte {
	message := make([]byte, 0, len(handshakeDomain)+len(alpn)+1+len(nonce)+len(challenger))
	message = append(message, handshakeDomain...)
	message = append(message, alpn...)
	message = append(message, 0)
	message = append(message, nonce...)
	message = append(message, challenger[:]...)
	return message
}

func newNonce() ([]byte, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating handshake nonce: %w", err)
	}
	return nonce, nil
}

// dialHandshake runs the dialer side on conn. It returns once the
// acceptor's verdict is in: a *RejectedError for a refusal, or a
// ready session.
func dialHandshake(conn net.Conn, identity *Identity, target NodeID, alpn string) (*Session, error) {
	encoder := codec.NewEncoder(conn)
	decoder := codec.NewDecoder(conn)

	nonce, err := newNonce()
	if err != nil {
		return nil, err
	}
	if err := encoder.Encode(hello{ALPN: alpn, Node: identity.NodeID(), Nonce: nonce}); err != nil {
		return nil, NewPeerError(target, "sending hello", err, true)
	}

	var response challenge
	if err := decoder.Decode(&response); err != nil {
		return nil, NewPeerError(target, "reading challenge", err, true)
	}
	if response.Node != target {
		return nil, NewPeerError(target, "handshake",
			fmt.Errorf("%w: answered by %s", ErrAuthentication, response.Node.ShortString()), false)
	}
	if len(response.Nonce) != nonceSize ||
		!ed25519.Verify(target.PublicKey(), challengeMessage(alpn, nonce, identity.NodeID()), response.Signature) {
		return nil, NewPeerError(target, "handshake", ErrAuthentication, false)
	}

	signature := identity.Sign(challengeMessage(alpn, response.Nonce, target))
	if err := encoder.Encode(proof{Signature: signature}); err != nil {
		return nil, NewPeerError(target, "sending proof", err, true)
	}

	var result verdict
	if err := decoder.Decode(&result); err != nil {
		return nil, NewPeerError(target, "reading verdict", err, true)
	}
	if !result.OK {
		return nil, &RejectedError{Node: target, ALPN: alpn, Code: result.Code, Message: result.Message}
	}
	return newSession(conn, decoder, alpn, identity.NodeID(), target, true), nil
}

// acceptHandshake runs the acceptor side on conn up to, but not
// including, the verdict.
func acceptHandshake(conn net.Conn, identity *Identity) (*Session, error) {
	encoder := codec.NewEncoder(conn)
	decoder := codec.NewDecoder(conn)

	var request hello
	if err := decoder.Decode(&request); err != nil {
		return nil, fmt.Errorf("reading hello: %w", err)
	}
	if request.ALPN == "" || len(request.ALPN) > maxALPNLength {
		return nil, fmt.Errorf("hello: invalid ALPN length %d", len(request.ALPN))
	}
	if len(request.Nonce) != nonceSize {
		return nil, fmt.Errorf("hello: nonce is %d bytes, want %d", len(request.Nonce), nonceSize)
	}
	if request.Node == identity.NodeID() {
		return nil, fmt.Errorf("hello: peer claims our own node ID")
	}

	nonce, err := newNonce()
	if err != nil {
		return nil, err
	}
	response := challenge{
		Node:      identity.NodeID(),
		Nonce:     nonce,
		Signature: identity.Sign(challengeMessage(request.ALPN, request.Nonce, request.Node)),
	}
	if err := encoder.Encode(response); err != nil {
		return nil, fmt.Errorf("sending challenge: %w", err)
	}

	var answer proof
	if err := decoder.Decode(&answer); err != nil {
		return nil, fmt.Errorf("reading proof: %w", err)
	}
	if !ed25519.Verify(request.Node.PublicKey(), challengeMessage(request.ALPN, nonce, identity.NodeID()), answer.Signature) {
		return nil, fmt.Errorf("peer %s: %w", request.Node.ShortString(), ErrAuthentication)
	}

	session := newSession(conn, decoder, request.ALPN, identity.NodeID(), request.Node, false)
	session.encoder = encoder
	return session, nil
}
