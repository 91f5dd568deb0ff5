// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValidInMemoryNode(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate: %v", err)
	}
	if cfg.Node.Transport != TransportTCP {
		t.Errorf("transport = %q, want tcp", cfg.Node.Transport)
	}
	if cfg.Discovery.Kind != DiscoveryMemory {
		t.Errorf("discovery = %q, want memory", cfg.Discovery.Kind)
	}
	if cfg.Storage.BlobPath != "" {
		t.Errorf("blob_path = %q, want in-memory", cfg.Storage.BlobPath)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.yaml")
	content := `
node:
  listen_address: 0.0.0.0:7891
  handshake_timeout: 3s
discovery:
  kind: etcd
  etcd_endpoints: [http://etcd:2379]
  lease_ttl: 15s
storage:
  blob_path: /var/lib/peerdocs/blobs.db
metrics:
  address: 127.0.0.1:9464
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Node.ListenAddress != "0.0.0.0:7891" {
		t.Errorf("listen_address = %q", cfg.Node.ListenAddress)
	}
	if cfg.Node.HandshakeTimeout != 3*time.Second {
		t.Errorf("handshake_timeout = %v, want 3s", cfg.Node.HandshakeTimeout)
	}
	if cfg.Node.Transport != TransportTCP {
		t.Errorf("transport = %q, want default tcp", cfg.Node.Transport)
	}
	if cfg.Discovery.Kind != DiscoveryEtcd || len(cfg.Discovery.EtcdEndpoints) != 1 {
		t.Errorf("discovery = %+v", cfg.Discovery)
	}
	if cfg.Discovery.EtcdPrefix != "/peerdocs" {
		t.Errorf("etcd_prefix = %q, want default", cfg.Discovery.EtcdPrefix)
	}
	if cfg.Discovery.LeaseTTL != 15*time.Second {
		t.Errorf("lease_ttl = %v", cfg.Discovery.LeaseTTL)
	}
	if cfg.Storage.BlobPath != "/var/lib/peerdocs/blobs.db" {
		t.Errorf("blob_path = %q", cfg.Storage.BlobPath)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
}

func TestParseEmptyFileKeepsDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse(nil): %v", err)
	}
	if cfg.Node.ListenAddress != Default().Node.ListenAddress {
		t.Errorf("listen_address = %q", cfg.Node.ListenAddress)
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"unknown field", "node:\n  listen_adress: x\n", "listen_adress"},
		{"unknown transport", "node:\n  transport: quic\n", "unknown transport"},
		{"webrtc without etcd", "node:\n  transport: webrtc\n", "etcd discovery"},
		{"etcd without endpoints", "discovery:\n  kind: etcd\n", "etcd_endpoints"},
		{"keyring without identity", "keyring:\n  path: /tmp/keys.age\n", "identity_file"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Parse([]byte(test.content))
			if err == nil {
				t.Fatal("Parse succeeded, want error")
			}
			if !strings.Contains(err.Error(), test.wantErr) {
				t.Errorf("error = %q, want it to mention %q", err, test.wantErr)
			}
		})
	}
}
