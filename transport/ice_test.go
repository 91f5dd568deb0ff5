// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import "testing"

func TestParseICEServers(t *testing.T) {
	config, err := ParseICEServers([]string{
		"stun:stun.example.net:3478",
		"turn:alice:s3cret@turn.example.net:3478?transport=udp",
		"turns:turn.example.net:5349",
	})
	if err != nil {
		t.Fatalf("ParseICEServers: %v", err)
	}
	if len(config.Servers) != 3 {
		t.Fatalf("got %d servers, want 3", len(config.Servers))
	}

	if got := config.Servers[0].URLs[0]; got != "stun:stun.example.net:3478" {
		t.Errorf("stun URL = %q", got)
	}

	turn := config.Servers[1]
	if turn.URLs[0] != "turn:turn.example.net:3478?transport=udp" {
		t.Errorf("turn URL = %q, credentials should be stripped", turn.URLs[0])
	}
	if turn.Username != "alice" || turn.Credential != "s3cret" {
		t.Errorf("turn credentials = %q / %v", turn.Username, turn.Credential)
	}

	if config.Servers[2].Username != "" {
		t.Errorf("turns without credentials got username %q", config.Servers[2].Username)
	}
}

func TestParseICEServersRejects(t *testing.T) {
	for _, raw := range []string{"stun.example.net", "http://example.net", "turn:alice@host:3478"} {
		if _, err := ParseICEServers([]string{raw}); err == nil {
			t.Errorf("ParseICEServers(%q) succeeded, want error", raw)
		}
	}
}

func TestEmptyICEConfig(t *testing.T) {
	config, err := ParseICEServers(nil)
	if err != nil {
		t.Fatalf("ParseICEServers(nil): %v", err)
	}
	if len(config.Servers) != 0 {
		t.Errorf("got %d servers, want host candidates only", len(config.Servers))
	}
}
