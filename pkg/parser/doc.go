// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package parser defines the interface between the datagram transport and the
// request handlers.
//
// # Architecture Overview
//
// Parsers sit between the transport layer (the UDP server) and the business
// logic layer (handlers). A parser owns the wire format: it turns bytes into a
// request, asks the handler for a response, and turns that response back into
// bytes.
//
// # Parser Interface
//
// The Parser interface has a single method:
//
//	Parse(ctx context.Context, r io.Reader, w io.Writer, h handler.Handler, hctx *handler.Context) error
//
// The reader yields exactly one datagram. The writer sends to the datagram's
// sender, so a parser never needs to know addresses.
//
// # Silent Drop
//
// A datagram that cannot be decoded has no message ID or token to echo, so no
// response can be correlated with it. Parsers write nothing in that case and
// return the decode error for the server to count and log.
//
// # Protocol-Specific Parsers
//
//   - parser/coap: CoAP over UDP
package parser
