// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package coap

import (
	"context"
	"fmt"
	"io"

	"github.com/absmach/coapfs/pkg/coap"
	"github.com/absmach/coapfs/pkg/errors"
	"github.com/absmach/coapfs/pkg/handler"
	"github.com/absmach/coapfs/pkg/parser"
)

// Protocol is the value the parser stores in handler.Context.Protocol.
const Protocol = "coap"

// Parser implements the parser.Parser interface for CoAP over UDP.
type Parser struct{}

var _ parser.Parser = (*Parser)(nil)

// Parse reads one CoAP datagram from r, dispatches it and writes the response to w.
func (p *Parser) Parse(ctx context.Context, r io.Reader, w io.Writer, h handler.Handler, hctx *handler.Context) error {
	hctx.Protocol = Protocol

	data, err := io.ReadAll(r)
	if err != nil {
		return errors.New("read", Protocol, hctx.RequestID, hctx.RemoteAddr, err)
	}

	req, err := coap.Decode(data)
	if err != nil {
		return errors.New("decode", Protocol, hctx.RequestID, hctx.RemoteAddr,
			fmt.Errorf("%w: %w", errors.ErrMalformedDatagram, err))
	}

	resp, herr := h.Handle(ctx, hctx, req)
	if resp == nil {
		if herr == nil {
			herr = fmt.Errorf("no response for %s", req.Header)
		}
		return errors.New("handle", Protocol, hctx.RequestID, hctx.RemoteAddr, herr)
	}

	out, err := coap.Encode(resp)
	if err != nil {
		return errors.New("encode", Protocol, hctx.RequestID, hctx.RemoteAddr,
			fmt.Errorf("%w: %w", errors.ErrEncode, err))
	}

	if _, err := w.Write(out); err != nil {
		return errors.New("write", Protocol, hctx.RequestID, hctx.RemoteAddr, err)
	}

	return errors.New("handle", Protocol, hctx.RequestID, hctx.RemoteAddr, herr)
}
