// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package node

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/bureau-foundation/peerdocs/blobs"
	"github.com/bureau-foundation/peerdocs/discovery"
	"github.com/bureau-foundation/peerdocs/docs"
	"github.com/bureau-foundation/peerdocs/endpoint"
	"github.com/bureau-foundation/peerdocs/gossip"
	"github.com/bureau-foundation/peerdocs/lib/clock"
	"github.com/bureau-foundation/peerdocs/lib/config"
	"github.com/bureau-foundation/peerdocs/lib/sealed"
	"github.com/bureau-foundation/peerdocs/lib/secret"
	"github.com/bureau-foundation/peerdocs/router"
	"github.com/bureau-foundation/peerdocs/transport"
)

// Option adjusts how New composes a node.
type Option func(*options)

type options struct {
	directory endpoint.Directory
	clock     clock.Clock
}

// WithDirectory replaces the directory the configuration would build.
// Nodes in one process share a MemoryDirectory this way.
func WithDirectory(directory endpoint.Directory) Option {
	return func(o *options) { o.directory = directory }
}

// WithClock sets the clock that stamps document writes.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// Node is a running peerdocs node.
type Node struct {
	endpoint *endpoint.Endpoint
	store    blobs.Store
	gossip   *gossip.Gossip
	docs     *docs.Docs
	router   *router.Router
	metrics  *router.Metrics
	logger   *slog.Logger

	keyringPath string
	keyringKey  *secret.Buffer
	etcd        *clientv3.Client
	closers     []io.Closer

	shutdownOnce sync.Once
	shutdownErr  error
}

// New brings a node up: Endpoint, then the blob store, Gossip, Docs,
// and finally the router with all three protocols registered. On
// failure everything already started is torn down.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Node, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	n := &Node{logger: logger, metrics: router.NewMetrics()}
	built := false
	defer func() {
		if !built {
			n.release()
		}
	}()

	identity, err := loadIdentity(cfg.Node.IdentityFile)
	if err != nil {
		return nil, err
	}

	directory := o.directory
	var signaler transport.Signaler
	if directory == nil {
		directory, signaler, err = n.buildDiscovery(cfg)
		if err != nil {
			return nil, err
		}
	}

	endpointConfig := endpoint.Config{
		Identity:         identity,
		ListenAddress:    cfg.Node.ListenAddress,
		Directory:        directory,
		HandshakeTimeout: cfg.Node.HandshakeTimeout,
		Logger:           logger,
	}
	if cfg.Node.Transport == config.TransportWebRTC {
		webrtc, err := n.buildWebRTC(cfg, identity.NodeID(), signaler)
		if err != nil {
			return nil, err
		}
		endpointConfig.Listener = webrtc
		endpointConfig.Dialer = webrtc
	}
	n.endpoint, err = endpoint.Build(ctx, endpointConfig)
	if err != nil {
		return nil, err
	}
	n.closers = append(n.closers, n.endpoint)

	if n.store, err = n.buildStore(cfg); err != nil {
		return nil, err
	}

	keyring, err := n.loadKeyring(cfg)
	if err != nil {
		return nil, err
	}

	n.gossip = gossip.New(n.endpoint, gossip.Config{Logger: logger})
	n.docs = docs.New(n.endpoint, n.store, n.gossip, docs.Config{
		Keyring: keyring,
		Clock:   o.clock,
		Logger:  logger,
	})

	n.router, err = router.NewBuilder(n.endpoint).
		Accept(blobs.ALPN, blobs.NewProtocol(n.endpoint, n.store, logger)).
		Accept(gossip.ALPN, n.gossip).
		Accept(docs.ALPN, n.docs).
		WithLogger(logger).
		WithMetrics(n.metrics).
		Spawn(ctx)
	if err != nil {
		return nil, err
	}

	built = true
	logger.Info("node started",
		"node", n.endpoint.NodeID().String(),
		"addresses", n.endpoint.Addr().Addresses,
		"alpns", n.router.ALPNs(),
	)
	return n, nil
}

func loadIdentity(path string) (*endpoint.Identity, error) {
	if path == "" {
		return endpoint.GenerateIdentity()
	}
	return endpoint.LoadOrCreateIdentity(path)
}

func (n *Node) buildDiscovery(cfg *config.Config) (endpoint.Directory, transport.Signaler, error) {
	switch cfg.Discovery.Kind {
	case config.DiscoveryEtcd:
		client, err := discovery.NewEtcdClient(cfg.Discovery.EtcdEndpoints)
		if err != nil {
			return nil, nil, &endpoint.StartupError{Op: "discovery", Err: err}
		}
		n.etcd = client
		directory := discovery.NewEtcdDirectory(client, cfg.Discovery.EtcdPrefix, cfg.Discovery.LeaseTTL, n.logger)
		return directory, discovery.NewEtcdSignaler(client, cfg.Discovery.EtcdPrefix), nil
	default:
		return discovery.NewMemoryDirectory(), transport.NewMemorySignaler(), nil
	}
}

func (n *Node) buildWebRTC(cfg *config.Config, id endpoint.NodeID, signaler transport.Signaler) (*transport.WebRTCTransport, error) {
	if signaler == nil {
		return nil, &endpoint.StartupError{Op: "transport", Err: errors.New("webrtc transport needs a signaler")}
	}
	ice, err := transport.ParseICEServers(cfg.Node.ICEServers)
	if err != nil {
		return nil, &endpoint.StartupError{Op: "transport", Err: err}
	}
	webrtc, err := transport.NewWebRTCTransport(transport.WebRTCConfig{
		Signaler: signaler,
		Name:     id.String(),
		ICE:      ice,
		Logger:   n.logger,
	})
	if err != nil {
		return nil, &endpoint.StartupError{Op: "transport", Err: err}
	}
	return webrtc, nil
}

func (n *Node) buildStore(cfg *config.Config) (blobs.Store, error) {
	if cfg.Storage.BlobPath == "" {
		return blobs.NewMemStore(), nil
	}
	store, err := blobs.OpenSQLite(cfg.Storage.BlobPath, n.logger)
	if err != nil {
		return nil, fmt.Errorf("opening blob store: %w", err)
	}
	n.closers = append(n.closers, store)
	return store, nil
}

// loadKeyring unseals the configured keyring, creating its age
// identity on first start. Without a keyring path authors live in
// memory only.
func (n *Node) loadKeyring(cfg *config.Config) (*docs.Keyring, error) {
	if cfg.Keyring.Path == "" {
		return docs.NewKeyring(), nil
	}
	key, err := loadOrCreateAgeIdentity(cfg.Keyring.IdentityFile)
	if err != nil {
		return nil, err
	}
	n.keyringKey = key
	n.keyringPath = cfg.Keyring.Path

	file, err := os.Open(cfg.Keyring.Path)
	if errors.Is(err, os.ErrNotExist) {
		return docs.NewKeyring(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	defer file.Close()
	return docs.UnsealKeyring(file, key)
}

func loadOrCreateAgeIdentity(path string) (*secret.Buffer, error) {
	key, err := secret.ReadFile(path)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading keyring identity: %w", err)
	}
	keypair, err := sealed.GenerateKeypair()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		keypair.Close()
		return nil, fmt.Errorf("creating keyring identity directory: %w", err)
	}
	line := append(slices.Clone(keypair.PrivateKey.Bytes()), '\n')
	err = os.WriteFile(path, line, 0o600)
	secret.Zero(line)
	if err != nil {
		keypair.Close()
		return nil, fmt.Errorf("writing keyring identity: %w", err)
	}
	return keypair.PrivateKey, nil
}

// SaveKeyring seals the keyring to the node's age identity. It is a
// no-op when no keyring path is configured.
func (n *Node) SaveKeyring() error {
	if n.keyringPath == "" {
		return nil
	}
	recipient, err := sealed.PublicKeyOf(n.keyringKey)
	if err != nil {
		return err
	}
	var sealedKeyring bytes.Buffer
	if err := n.docs.Keyring().Seal(&sealedKeyring, recipient); err != nil {
		return err
	}
	temporary := n.keyringPath + ".tmp"
	if err := os.WriteFile(temporary, sealedKeyring.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing keyring: %w", err)
	}
	if err := os.Rename(temporary, n.keyringPath); err != nil {
		return fmt.Errorf("replacing keyring: %w", err)
	}
	return nil
}

func (n *Node) Endpoint() *endpoint.Endpoint { return n.endpoint }
func (n *Node) Blobs() blobs.Store            { return n.store }
func (n *Node) Gossip() *gossip.Gossip        { return n.gossip }
func (n *Node) Docs() *docs.Docs              { return n.docs }
func (n *Node) Router() *router.Router        { return n.router }
func (n *Node) Metrics() *router.Metrics      { return n.metrics }

// Shutdown stops the router and every protocol, saves the keyring,
// and releases storage and discovery clients.
func (n *Node) Shutdown(ctx context.Context) error {
	n.shutdownOnce.Do(func() {
		var errs []error
		if n.router != nil {
			errs = append(errs, n.router.Shutdown(ctx))
		}
		errs = append(errs, n.SaveKeyring())
		n.release()
		n.shutdownErr = errors.Join(errs...)
	})
	return n.shutdownErr
}

// release closes resources in reverse order of acquisition.
func (n *Node) release() {
	for index := len(n.closers) - 1; index >= 0; index-- {
		n.closers[index].Close()
	}
	n.closers = nil
	if n.etcd != nil {
		n.etcd.Close()
		n.etcd = nil
	}
	if n.keyringKey != nil {
		n.keyringKey.Close()
	}
}
