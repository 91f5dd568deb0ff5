// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package docs

import (
	"encoding/base32"
	"fmt"
	"strings"

	"github.com/bureau-foundation/peerdocs/endpoint"
	"github.com/bureau-foundation/peerdocs/lib/codec"
)

const ticketPrefix = "doc"

var ticketEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Ticket is everything a peer needs to join a document: its namespace
// and nodes that hold it.
type Ticket struct {
	Namespace NamespaceID         `cbor:"1,keyasint"`
	Nodes     []endpoint.NodeAddr `cbor:"2,keyasint,omitempty"`
}

// String renders the ticket as "doc" followed by lower-case base32 of
// its CBOR encoding.
func (t Ticket) String() string {
	encoded, err := codec.Marshal(t)
	if err != nil {
		panic("docs: encoding ticket: " + err.Error())
	}
	return ticketPrefix + strings.ToLower(ticketEncoding.EncodeToString(encoded))
}

// ParseTicket reverses Ticket.String. It accepts the base32 body in
// either case; the "doc" prefix must be lower-case.
func ParseTicket(text string) (Ticket, error) {
	body, ok := strings.CutPrefix(text, ticketPrefix)
	if !ok {
		return Ticket{}, fmt.Errorf("ticket does not start with %q", ticketPrefix)
	}
	encoded, err := ticketEncoding.DecodeString(strings.ToUpper(body))
	if err != nil {
		return Ticket{}, fmt.Errorf("decoding ticket: %w", err)
	}
	var ticket Ticket
	if err := codec.Unmarshal(encoded, &ticket); err != nil {
		return Ticket{}, fmt.Errorf("decoding ticket: %w", err)
	}
	return ticket, nil
}
