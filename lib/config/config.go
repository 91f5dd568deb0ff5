// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Transport kinds.
const (
	TransportTCP    = "tcp"
	TransportWebRTC = "webrtc"
)

// Discovery kinds.
const (
	DiscoveryMemory = "memory"
	DiscoveryEtcd   = "etcd"
)

// Config is the complete node configuration.
type Config struct {
	Node      NodeConfig      `yaml:"node"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Storage   StorageConfig   `yaml:"storage"`
	Keyring   KeyringConfig   `yaml:"keyring"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
}

// NodeConfig selects the transport the endpoint binds.
type NodeConfig struct {
	// ListenAddress is the TCP bind address. Ignored for webrtc.
	ListenAddress string `yaml:"listen_address"`

	// Transport is "tcp" or "webrtc".
	Transport string `yaml:"transport"`

	// ICEServers lists STUN/TURN URLs for the webrtc transport.
	ICEServers []string `yaml:"ice_servers"`

	// HandshakeTimeout bounds the session handshake.
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`

	// IdentityFile holds the node's Ed25519 seed, created on first
	// start. Empty generates a fresh identity every run.
	IdentityFile string `yaml:"identity_file"`
}

// DiscoveryConfig selects where node addresses are published.
type DiscoveryConfig struct {
	// Kind is "memory" (in-process only) or "etcd".
	Kind string `yaml:"kind"`

	EtcdEndpoints []string `yaml:"etcd_endpoints"`

	// EtcdPrefix namespaces every key the node writes.
	EtcdPrefix string `yaml:"etcd_prefix"`

	// LeaseTTL is how long a published address survives the node.
	LeaseTTL time.Duration `yaml:"lease_ttl"`
}

// StorageConfig selects the blob store.
type StorageConfig struct {
	// BlobPath is a SQLite database file. Empty keeps blobs in memory.
	BlobPath string `yaml:"blob_path"`
}

// KeyringConfig locates the sealed author keyring.
type KeyringConfig struct {
	// Path is the age-encrypted keyring file. Empty keeps authors in
	// memory only.
	Path string `yaml:"path"`

	// IdentityFile is the age X25519 identity that seals the keyring.
	// It is generated on first start if missing.
	IdentityFile string `yaml:"identity_file"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Address serves /metrics when non-empty (e.g. "127.0.0.1:9464").
	Address string `yaml:"address"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration of a single in-memory node.
func Default() *Config {
	return &Config{
		Node: NodeConfig{
			ListenAddress:    "127.0.0.1:0",
			Transport:        TransportTCP,
			HandshakeTimeout: 10 * time.Second,
		},
		Discovery: DiscoveryConfig{
			Kind:       DiscoveryMemory,
			EtcdPrefix: "/peerdocs",
			LeaseTTL:   30 * time.Second,
		},
		Log: LogConfig{Level: "info"},
	}
}

// LoadFile reads path over Default and validates the result.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML data over Default and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first inconsistency in the configuration.
func (c *Config) Validate() error {
	switch c.Node.Transport {
	case TransportTCP:
		if c.Node.ListenAddress == "" {
			return fmt.Errorf("node.listen_address is required for the tcp transport")
		}
	case TransportWebRTC:
	default:
		return fmt.Errorf("node.transport: unknown transport %q", c.Node.Transport)
	}
	if c.Node.HandshakeTimeout <= 0 {
		return fmt.Errorf("node.handshake_timeout must be positive")
	}

	switch c.Discovery.Kind {
	case DiscoveryMemory:
		if c.Node.Transport == TransportWebRTC {
			return fmt.Errorf("the webrtc transport needs etcd discovery for signaling")
		}
	case DiscoveryEtcd:
		if len(c.Discovery.EtcdEndpoints) == 0 {
			return fmt.Errorf("discovery.etcd_endpoints is required for etcd discovery")
		}
		if c.Discovery.LeaseTTL < time.Second {
			return fmt.Errorf("discovery.lease_ttl must be at least 1s")
		}
	default:
		return fmt.Errorf("discovery.kind: unknown kind %q", c.Discovery.Kind)
	}

	if c.Keyring.Path != "" && c.Keyring.IdentityFile == "" {
		return fmt.Errorf("keyring.identity_file is required when keyring.path is set")
	}
	return nil
}
