// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/peerdocs/endpoint"
)

// ALPN is the protocol tag blob sessions are opened with.
const ALPN = "/iroh-bytes/4"

// MaxBlobSize is the largest blob the protocol transfers.
const MaxBlobSize = 16 << 20

// idleTimeout closes a session that sends no request for this long.
const idleTimeout = 60 * time.Second

// Request actions.
const (
	actionGet = "get"
	actionPut = "put"
	actionHas = "has"
)

// Response error codes.
const (
	codeNotFound   = "not-found"
	codeBadRequest = "bad-request"
	codeInternal   = "internal"
)

type request struct {
	Action      string      `cbor:"1,keyasint"`
	Hash        Hash        `cbor:"2,keyasint"`
	Data        []byte      `cbor:"3,keyasint,omitempty"`
	Compression Compression `cbor:"4,keyasint,omitempty"`
	Size        int         `cbor:"5,keyasint,omitempty"`
}

type response struct {
	OK          bool        `cbor:"1,keyasint"`
	Error       string      `cbor:"2,keyasint,omitempty"`
	Code        string      `cbor:"3,keyasint,omitempty"`
	Hash        Hash        `cbor:"4,keyasint"`
	Data        []byte      `cbor:"5,keyasint,omitempty"`
	Compression Compression `cbor:"6,keyasint,omitempty"`
	Size        int         `cbor:"7,keyasint,omitempty"`
	Present     bool        `cbor:"8,keyasint,omitempty"`
}

// requestError carries a wire error code.
type requestError struct {
	code string
	err  error
}

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

func badRequest(format string, args ...any) error {
	return &requestError{code: codeBadRequest, err: fmt.Errorf(format, args...)}
}

type actionFunc func(ctx context.Context, req *request) (response, error)

// Protocol serves a Store to peers. It implements the router's
// protocol handler interface.
type Protocol struct {
	store   Store
	logger  *slog.Logger
	actions map[string]actionFunc

	mu       sync.Mutex
	sessions map[*endpoint.Session]struct{}
	closed   bool
}

// NewProtocol serves store to peers that reach ep. A nil logger
// falls back to the endpoint's. Log lines carry the serving node's ID.
func NewProtocol(ep *endpoint.Endpoint, store Store, logger *slog.Logger) *Protocol {
	if logger == nil {
		logger = ep.Logger()
	} else {
		logger = logger.With("node", ep.NodeID().ShortString())
	}
	p := &Protocol{
		store:    store,
		logger:   logger.With("protocol", "blobs"),
		actions:  make(map[string]actionFunc),
		sessions: make(map[*endpoint.Session]struct{}),
	}
	p.handle(actionGet, p.get)
	p.handle(actionPut, p.put)
	p.handle(actionHas, p.has)
	return p
}

func (p *Protocol) handle(action string, fn actionFunc) {
	if _, exists := p.actions[action]; exists {
		panic(fmt.Sprintf("blobs: duplicate handler for action %q", action))
	}
	p.actions[action] = fn
}

// Accept serves request/response cycles until the peer closes the
// session or goes idle.
func (p *Protocol) Accept(ctx context.Context, session *endpoint.Session) error {
	defer session.Close()
	if !p.track(session) {
		return nil
	}
	defer p.untrack(session)

	peer := session.RemoteNode().ShortString()
	for {
		session.SetReadDeadline(time.Now().Add(idleTimeout))
		var req request
		if err := session.Receive(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("reading blob request: %w", err)
		}
		session.SetReadDeadline(time.Time{})

		resp := p.dispatch(ctx, &req)
		if !resp.OK {
			p.logger.Debug("blob request failed", "peer", peer, "action", req.Action, "code", resp.Code, "error", resp.Error)
		}
		if err := session.Send(resp); err != nil {
			return err
		}
	}
}

func (p *Protocol) dispatch(ctx context.Context, req *request) response {
	action, ok := p.actions[req.Action]
	if !ok {
		return response{Code: codeBadRequest, Error: fmt.Sprintf("unknown action %q", req.Action)}
	}
	resp, err := action(ctx, req)
	if err != nil {
		code := codeInternal
		var coded *requestError
		switch {
		case errors.As(err, &coded):
			code = coded.code
		case IsNotFound(err):
			code = codeNotFound
		}
		return response{Code: code, Error: err.Error()}
	}
	resp.OK = true
	return resp
}

func (p *Protocol) get(ctx context.Context, req *request) (response, error) {
	data, err := p.store.Get(ctx, req.Hash)
	if err != nil {
		return response{}, err
	}
	payload, compression, err := compressPayload(data)
	if err != nil {
		return response{}, err
	}
	return response{Hash: req.Hash, Data: payload, Compression: compression, Size: len(data)}, nil
}

func (p *Protocol) put(ctx context.Context, req *request) (response, error) {
	data, err := decompressPayload(req.Data, req.Compression, req.Size)
	if err != nil {
		return response{}, badRequest("%v", err)
	}
	if !req.Hash.IsZero() && Sum(data) != req.Hash {
		return response{}, badRequest("content does not match declared hash %s", req.Hash.ShortString())
	}
	hash, err := p.store.Put(ctx, data)
	if err != nil {
		return response{}, err
	}
	return response{Hash: hash}, nil
}

func (p *Protocol) has(ctx context.Context, req *request) (response, error) {
	present, err := p.store.Has(ctx, req.Hash)
	if err != nil {
		return response{}, err
	}
	return response{Hash: req.Hash, Present: present}, nil
}

func (p *Protocol) track(session *endpoint.Session) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.sessions[session] = struct{}{}
	return true
}

func (p *Protocol) untrack(session *endpoint.Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.sessions, session)
}

// Shutdown closes every open session. Later sessions are closed on
// arrival.
func (p *Protocol) Shutdown(context.Context) error {
	p.mu.Lock()
	p.closed = true
	sessions := make([]*endpoint.Session, 0, len(p.sessions))
	for session := range p.sessions {
		sessions = append(sessions, session)
	}
	p.mu.Unlock()

	for _, session := range sessions {
		session.Close()
	}
	return nil
}
