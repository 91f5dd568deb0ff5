// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package endpoint

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/bureau-foundation/peerdocs/lib/codec"
)

// Session is an authenticated stream to one peer, speaking one ALPN.
//
// Send and Receive may be called from different goroutines; concurrent
// Sends are serialized. Receive must not be called concurrently with
// itself.
type Session struct {
	conn   net.Conn
	alpn   string
	local  NodeID
	remote NodeID
	dialed bool

	sendMu  sync.Mutex
	encoder *codec.Encoder
	decoder *codec.Decoder

	verdictOnce sync.Once
	verdictErr  error
	closeOnce   sync.Once
	onClose     func()
}

func newSession(conn net.Conn, decoder *codec.Decoder, alpn string, local, remote NodeID, dialed bool) *Session {
	return &Session{
		conn:    conn,
		alpn:    alpn,
		local:   local,
		remote:  remote,
		dialed:  dialed,
		encoder: codec.NewEncoder(conn),
		decoder: decoder,
	}
}

// ALPN returns the protocol tag the session was opened for.
func (s *Session) ALPN() string { return s.alpn }

// RemoteNode returns the authenticated peer.
func (s *Session) RemoteNode() NodeID { return s.remote }

// LocalNode returns this endpoint's node ID.
func (s *Session) LocalNode() NodeID { return s.local }

// Dialed reports whether this end opened the session.
func (s *Session) Dialed() bool { return s.dialed }

// RemoteAddr is the transport address of the peer.
func (s *Session) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

// Confirm accepts an inbound session. It sends the final handshake
// frame, after which the dialer's Connect returns.
func (s *Session) Confirm() error {
	return s.sendVerdict(verdict{OK: true})
}

// Reject refuses an inbound session with a reason and closes it.
func (s *Session) Reject(code CloseCode, message string) error {
	err := s.sendVerdict(verdict{Code: code, Message: message})
	s.Close()
	return err
}

func (s *Session) sendVerdict(v verdict) error {
	if s.dialed {
		return errors.New("verdict sent on a dialed session")
	}
	s.verdictOnce.Do(func() {
		s.verdictErr = s.Send(v)
	})
	return s.verdictErr
}

// Send writes one CBOR frame.
func (s *Session) Send(frame any) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := s.encoder.Encode(frame); err != nil {
		return fmt.Errorf("sending %s frame: %w", s.alpn, err)
	}
	return nil
}

// Receive reads the next CBOR frame into frame. It returns io.EOF,
// unwrapped, when the peer closed the stream between frames.
func (s *Session) Receive(frame any) error {
	return s.decoder.Decode(frame)
}

// SetDeadline bounds pending and future Send and Receive calls. A zero
// time clears it.
func (s *Session) SetDeadline(deadline time.Time) error {
	return s.conn.SetDeadline(deadline)
}

// SetReadDeadline bounds pending and future Receive calls.
func (s *Session) SetReadDeadline(deadline time.Time) error {
	return s.conn.SetReadDeadline(deadline)
}

// Close closes the underlying stream. It is safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.conn.Close()
		if s.onClose != nil {
			s.onClose()
		}
	})
	return err
}
