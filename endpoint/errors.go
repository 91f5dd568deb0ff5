// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package endpoint

import (
	"errors"
	"fmt"
)

var (
	// ErrNetworkStartup matches every *StartupError.
	ErrNetworkStartup = errors.New("network startup failed")

	// ErrNoProtocol matches a *RejectedError whose code is
	// CodeNoProtocol: the peer has no handler for the requested ALPN.
	ErrNoProtocol = errors.New("no protocol handler for ALPN")

	// ErrAuthentication is returned when a peer fails the handshake
	// challenge or is not the node that was dialed.
	ErrAuthentication = errors.New("peer authentication failed")

	// ErrClosed is returned by operations on a closed endpoint.
	ErrClosed = errors.New("endpoint closed")
)

// CloseCode is the reason an acceptor gives for rejecting a session.
type CloseCode string

const (
	CodeNoProtocol       CloseCode = "no-protocol"
	CodeInternal         CloseCode = "internal"
	CodeUnknownNamespace CloseCode = "unknown-namespace"
	CodeBadRequest       CloseCode = "bad-request"
)

// StartupError reports a failure to bring the endpoint up: binding the
// listener or publishing to the directory.
type StartupError struct {
	Op  string
	Err error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("network startup: %s: %v", e.Op, e.Err)
}

func (e *StartupError) Unwrap() error { return e.Err }

func (e *StartupError) Is(target error) bool { return target == ErrNetworkStartup }

// RejectedError is returned by Connect when the peer completed the
// handshake but refused the session.
type RejectedError struct {
	Node    NodeID
	ALPN    string
	Code    CloseCode
	Message string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("peer %s rejected %s session: %s", e.Node.ShortString(), e.ALPN, e.Code)
	}
	return fmt.Sprintf("peer %s rejected %s session: %s: %s", e.Node.ShortString(), e.ALPN, e.Code, e.Message)
}

func (e *RejectedError) Is(target error) bool {
	return target == ErrNoProtocol && e.Code == CodeNoProtocol
}

// PeerError wraps a failure talking to a remote node. Transient errors
// (unreachable, reset, timed out) are worth retrying; authentication
// failures and protocol violations are not.
type PeerError struct {
	Node      NodeID
	Op        string
	Err       error
	transient bool
}

// NewPeerError wraps err as a failure of op against node.
func NewPeerError(node NodeID, op string, err error, transient bool) *PeerError {
	return &PeerError{Node: node, Op: op, Err: err, transient: transient}
}

func (e *PeerError) Error() string {
	return fmt.Sprintf("peer %s: %s: %v", e.Node.ShortString(), e.Op, e.Err)
}

func (e *PeerError) Unwrap() error { return e.Err }

func (e *PeerError) Transient() bool { return e.transient }

// IsTransient reports whether err is, or wraps, a transient PeerError.
func IsTransient(err error) bool {
	var peerError *PeerError
	return errors.As(err, &peerError) && peerError.Transient()
}
