// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package parser

import (
	"context"
	"io"

	"github.com/absmach/coapfs/pkg/handler"
)

// Parser handles protocol-specific datagram processing.
// Implementations are responsible for:
//  1. Reading one complete datagram from the reader
//  2. Decoding it into a request
//  3. Calling the handler to obtain the response
//  4. Encoding the response and writing it to the writer
//
// Parse is called once per datagram. It should:
// - Write exactly one response to w for every decodable request
// - Write nothing when the datagram cannot be decoded
// - Return an error describing anything the caller should log
type Parser interface {
	// Parse reads one datagram from r, processes it, and writes the reply to w.
	// The handler h produces the response for the decoded request.
	// The handler context hctx contains per-datagram metadata.
	//
	// Returns nil if the datagram was answered without incident.
	// A non-nil error may still follow a written response, for example
	// when the handler reports a request with an undefined class.
	Parse(ctx context.Context, r io.Reader, w io.Writer, h handler.Handler, hctx *handler.Context) error
}
