// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package endpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"sync"
	"time"

	"github.com/bureau-foundation/peerdocs/transport"
)

// DefaultHandshakeTimeout bounds a session handshake in either
// direction.
const DefaultHandshakeTimeout = 10 * time.Second

// DefaultListenAddress is where Build listens when Config.Listener is nil.
const DefaultListenAddress = "127.0.0.1:0"

// directoryTimeout bounds Unpublish during Close.
const directoryTimeout = 5 * time.Second

// Config configures Build. Every field is optional.
type Config struct {
	// Identity is the node keypair. Nil generates a fresh one.
	Identity *Identity

	// Listener accepts inbound streams. Nil listens on TCP at
	// ListenAddress.
	Listener transport.Listener

	// ListenAddress is used only when Listener is nil. Defaults to
	// DefaultListenAddress.
	ListenAddress string

	// Dialer opens outbound streams. Nil dials TCP.
	Dialer transport.Dialer

	// Directory publishes this node and resolves peers. Nil limits
	// resolution to addresses added with AddNodeAddr.
	Directory Directory

	HandshakeTimeout time.Duration

	Logger *slog.Logger
}

// Endpoint is a node's network presence. See the package
// documentation for the session handshake.
type Endpoint struct {
	identity         *Identity
	listener         transport.Listener
	dialer           transport.Dialer
	directory        Directory
	handshakeTimeout time.Duration
	logger           *slog.Logger

	mu       sync.Mutex
	book     map[NodeID][]string
	sessions map[*Session]struct{}

	inbound chan *Session

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Build brings up an endpoint: it binds the listener, publishes the
// node's address, and starts accepting streams in the background.
// Failures are reported as *StartupError.
func Build(ctx context.Context, config Config) (*Endpoint, error) {
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if config.Identity == nil {
		identity, err := GenerateIdentity()
		if err != nil {
			return nil, &StartupError{Op: "identity", Err: err}
		}
		config.Identity = identity
	}
	if config.Dialer == nil {
		config.Dialer = &transport.TCPDialer{Timeout: 5 * time.Second}
	}
	ownsListener := false
	if config.Listener == nil {
		address := config.ListenAddress
		if address == "" {
			address = DefaultListenAddress
		}
		listener, err := transport.NewTCPListener(address)
		if err != nil {
			return nil, &StartupError{Op: "listen", Err: err}
		}
		config.Listener = listener
		ownsListener = true
	}

	runCtx, cancel := context.WithCancel(context.Background())
	endpoint := &Endpoint{
		identity:         config.Identity,
		listener:         config.Listener,
		dialer:           config.Dialer,
		directory:        config.Directory,
		handshakeTimeout: config.HandshakeTimeout,
		logger:           config.Logger.With("node", config.Identity.NodeID().ShortString()),
		book:             make(map[NodeID][]string),
		sessions:         make(map[*Session]struct{}),
		inbound:          make(chan *Session),
		ctx:              runCtx,
		cancel:           cancel,
	}

	if endpoint.directory != nil {
		if err := endpoint.directory.Publish(ctx, endpoint.Addr()); err != nil {
			cancel()
			if ownsListener {
				config.Listener.Close()
			}
			return nil, &StartupError{Op: "publish", Err: err}
		}
	}

	endpoint.wg.Add(1)
	go endpoint.acceptLoop()

	endpoint.logger.Info("endpoint started", "address", endpoint.listener.Address())
	return endpoint, nil
}

// NodeID returns this node's identity.
func (e *Endpoint) NodeID() NodeID { return e.identity.NodeID() }

// Identity returns the node keypair.
func (e *Endpoint) Identity() *Identity { return e.identity }

// Addr returns the address peers use to reach this node.
func (e *Endpoint) Addr() NodeAddr {
	return NodeAddr{ID: e.NodeID(), Addresses: []string{e.listener.Address()}}
}

// Logger returns the endpoint's logger, for handlers that share it.
func (e *Endpoint) Logger() *slog.Logger { return e.logger }

// AddNodeAddr records addresses for a peer. They are tried before the
// directory when connecting.
func (e *Endpoint) AddNodeAddr(addr NodeAddr) {
	if addr.ID == e.NodeID() || len(addr.Addresses) == 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	known := e.book[addr.ID]
	for _, address := range addr.Addresses {
		if !slices.Contains(known, address) {
			known = append(known, address)
		}
	}
	e.book[addr.ID] = known
}

// KnownAddr returns the addresses recorded for node with AddNodeAddr.
// The directory is not consulted.
func (e *Endpoint) KnownAddr(node NodeID) NodeAddr {
	e.mu.Lock()
	defer e.mu.Unlock()
	return NodeAddr{ID: node, Addresses: slices.Clone(e.book[node])}
}

// Connect opens a session to node speaking alpn. A refusal is a
// *RejectedError (errors.Is(err, ErrNoProtocol) when the peer lacks the
// protocol). Connectivity failures are transient *PeerErrors.
func (e *Endpoint) Connect(ctx context.Context, node NodeID, alpn string) (*Session, error) {
	if e.ctx.Err() != nil {
		return nil, ErrClosed
	}
	if node == e.NodeID() {
		return nil, fmt.Errorf("connecting to %s: cannot dial own node", alpn)
	}

	addresses, err := e.resolve(ctx, node)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, address := range addresses {
		session, err := e.connectAddress(ctx, node, address, alpn)
		if err == nil {
			return session, nil
		}
		var rejected *RejectedError
		if errors.As(err, &rejected) || errors.Is(err, ErrAuthentication) || ctx.Err() != nil {
			return nil, err
		}
		e.logger.Debug("dial attempt failed", "peer", node.ShortString(), "address", address, "error", err)
		lastErr = err
	}
	return nil, lastErr
}

func (e *Endpoint) resolve(ctx context.Context, node NodeID) ([]string, error) {
	e.mu.Lock()
	addresses := slices.Clone(e.book[node])
	e.mu.Unlock()

	if e.directory != nil {
		published, err := e.directory.Resolve(ctx, node)
		switch {
		case err == nil:
			for _, address := range published.Addresses {
				if !slices.Contains(addresses, address) {
					addresses = append(addresses, address)
				}
			}
		case errors.Is(err, ErrNodeNotFound):
		default:
			if len(addresses) == 0 {
				return nil, NewPeerError(node, "resolving", err, true)
			}
		}
	}
	if len(addresses) == 0 {
		return nil, NewPeerError(node, "resolving", ErrNodeNotFound, true)
	}
	return addresses, nil
}

func (e *Endpoint) connectAddress(ctx context.Context, node NodeID, address, alpn string) (*Session, error) {
	conn, err := e.dialer.DialContext(ctx, address)
	if err != nil {
		return nil, NewPeerError(node, "dialing "+address, err, true)
	}

	conn.SetDeadline(time.Now().Add(e.handshakeTimeout))
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	session, err := dialHandshake(conn, e.identity, node, alpn)
	interrupted := !stop()
	if err != nil || interrupted {
		conn.Close()
		if interrupted && err == nil {
			err = ctx.Err()
		}
		return nil, err
	}
	conn.SetDeadline(time.Time{})

	if !e.track(session) {
		session.Close()
		return nil, ErrClosed
	}
	return session, nil
}

// Accept returns the next authenticated inbound session. The caller
// must Confirm or Reject it.
func (e *Endpoint) Accept(ctx context.Context) (*Session, error) {
	select {
	case session := <-e.inbound:
		return session, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.ctx.Done():
		return nil, ErrClosed
	}
}

func (e *Endpoint) acceptLoop() {
	defer e.wg.Done()
	for {
		conn, err := e.listener.Accept(e.ctx)
		if err != nil {
			if e.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			e.logger.Warn("accepting stream failed", "error", err)
			continue
		}
		e.wg.Add(1)
		go e.handleInbound(conn)
	}
}

func (e *Endpoint) handleInbound(conn net.Conn) {
	defer e.wg.Done()

	conn.SetDeadline(time.Now().Add(e.handshakeTimeout))
	session, err := acceptHandshake(conn, e.identity)
	if err != nil {
		e.logger.Debug("inbound handshake failed", "remote", conn.RemoteAddr().String(), "error", err)
		conn.Close()
		return
	}
	if !e.track(session) {
		session.Close()
		return
	}

	// The handshake deadline is cleared before handoff; once accepted,
	// deadlines belong to the handler. A session nobody accepts is
	// dropped after the handshake timeout.
	conn.SetDeadline(time.Time{})
	select {
	case e.inbound <- session:
	case <-e.ctx.Done():
		session.Close()
	case <-time.After(e.handshakeTimeout):
		e.logger.Warn("no one accepted inbound session", "alpn", session.ALPN(), "peer", session.RemoteNode().ShortString())
		session.Close()
	}
}

// track registers a live session so Close can tear it down.
func (e *Endpoint) track(session *Session) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctx.Err() != nil {
		return false
	}
	e.sessions[session] = struct{}{}
	session.onClose = func() {
		e.mu.Lock()
		delete(e.sessions, session)
		e.mu.Unlock()
	}
	return true
}

// Close unpublishes the node, stops accepting, and closes every live
// session. It is idempotent.
func (e *Endpoint) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.cancel()
		err = e.listener.Close()

		if e.directory != nil {
			ctx, cancel := context.WithTimeout(context.Background(), directoryTimeout)
			if unpublishErr := e.directory.Unpublish(ctx, e.NodeID()); unpublishErr != nil {
				e.logger.Warn("unpublishing node failed", "error", unpublishErr)
			}
			cancel()
		}

		e.mu.Lock()
		live := make([]*Session, 0, len(e.sessions))
		for session := range e.sessions {
			live = append(live, session)
		}
		e.mu.Unlock()
		for _, session := range live {
			session.Close()
		}

		e.wg.Wait()
		e.logger.Info("endpoint closed")
	})
	return err
}
