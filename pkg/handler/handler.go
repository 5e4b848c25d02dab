// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"context"
	"errors"

	"github.com/absmach/coapfs/pkg/coap"
)

// ErrUndefinedClass is returned alongside a Bad Request response when the
// request carries a code class the protocol does not define.
var ErrUndefinedClass = errors.New("undefined message class")

// Context contains per-datagram metadata. It is passed to Handler methods
// for correlation and logging.
type Context struct {
	// RequestID is a unique identifier for this datagram
	RequestID string

	// RemoteAddr is the sender's network address
	RemoteAddr string

	// Protocol indicates the protocol being used (coap)
	Protocol string
}

// Handler turns a decoded request into exactly one response.
//
// Handle must return a non-nil response for every request. A non-nil error
// does not replace the response: it reports a condition the caller may want
// to log, such as ErrUndefinedClass, while the response is still sent.
type Handler interface {
	Handle(ctx context.Context, hctx *Context, req *coap.Message) (*coap.Message, error)
}

// HandlerFunc adapts an ordinary function to the Handler interface.
type HandlerFunc func(ctx context.Context, hctx *Context, req *coap.Message) (*coap.Message, error)

// Handle calls f(ctx, hctx, req).
func (f HandlerFunc) Handle(ctx context.Context, hctx *Context, req *coap.Message) (*coap.Message, error) {
	return f(ctx, hctx, req)
}

// NewResponse builds the acknowledgement for req. Version, message ID and
// token are echoed. A non-empty payload is preceded by a text/plain
// Content-Format option.
func NewResponse(req *coap.Message, class coap.Class, code uint8, payload []byte) *coap.Message {
	resp := &coap.Message{
		Header: coap.Header{
			Version:   req.Version,
			Type:      coap.Acknowledgement,
			Class:     class,
			Code:      code,
			MessageID: req.MessageID,
			Token:     append([]byte(nil), req.Token...),
		},
	}
	if len(payload) > 0 {
		resp.Options = resp.Options.Add(coap.ContentFormat, []byte{coap.TextPlain})
		resp.Payload = payload
	}
	return resp
}

// BadRequest builds a 4.00 response for req.
func BadRequest(req *coap.Message) *coap.Message {
	return NewResponse(req, coap.ClassClientError, coap.CodeBadRequest, nil)
}
