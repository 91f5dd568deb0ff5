// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
)

// ICEConfig holds the STUN and TURN servers used while gathering
// candidates. The zero value gathers host candidates only, which is
// enough on loopback and flat networks.
type ICEConfig struct {
	Servers []webrtc.ICEServer
}

// ParseICEServers builds an ICEConfig from server URLs as written in
// node configuration. TURN credentials may be embedded as
// "turn:user:password@host:port".
func ParseICEServers(urls []string) (ICEConfig, error) {
	var config ICEConfig
	for _, raw := range urls {
		scheme, rest, ok := strings.Cut(raw, ":")
		if !ok {
			return ICEConfig{}, fmt.Errorf("ICE server %q: missing scheme", raw)
		}
		switch scheme {
		case "stun", "stuns":
			config.Servers = append(config.Servers, webrtc.ICEServer{URLs: []string{raw}})
		case "turn", "turns":
			server := webrtc.ICEServer{URLs: []string{raw}}
			if credentials, host, hasCredentials := strings.Cut(rest, "@"); hasCredentials {
				username, password, ok := strings.Cut(credentials, ":")
				if !ok {
					return ICEConfig{}, fmt.Errorf("ICE server %q: credentials must be user:password", raw)
				}
				server.URLs = []string{scheme + ":" + host}
				server.Username = username
				server.Credential = password
			}
			config.Servers = append(config.Servers, server)
		default:
			return ICEConfig{}, fmt.Errorf("ICE server %q: unsupported scheme %q", raw, scheme)
		}
	}
	return config, nil
}
