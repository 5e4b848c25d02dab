// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/absmach/coapfs/pkg/coap"
	"github.com/absmach/coapfs/pkg/metrics"
)

// LoggingHandler wraps a handler and logs every answered request.
type LoggingHandler struct {
	handler Handler
	logger  *slog.Logger
}

var _ Handler = (*LoggingHandler)(nil)

// NewLogging creates a handler that logs requests passed to h.
func NewLogging(h Handler, logger *slog.Logger) *LoggingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingHandler{
		handler: h,
		logger:  logger,
	}
}

// Handle implements Handler with logging.
func (h *LoggingHandler) Handle(ctx context.Context, hctx *Context, req *coap.Message) (*coap.Message, error) {
	resp, err := h.handler.Handle(ctx, hctx, req)

	attrs := []any{
		slog.String("request", hctx.RequestID),
		slog.String("remote", hctx.RemoteAddr),
		slog.String("type", req.Type.String()),
		slog.Int("id", int(req.MessageID)),
		slog.String("code", req.CodeString()),
		slog.Int("options", len(req.Options)),
		slog.Int("payload_size", len(req.Payload)),
	}
	if resp != nil {
		attrs = append(attrs, slog.String("response", resp.CodeString()))
	}

	switch {
	case errors.Is(err, ErrUndefinedClass):
		h.logger.Warn("request with undefined class", append(attrs, slog.String("error", err.Error()))...)
	case err != nil:
		h.logger.Error("request failed", append(attrs, slog.String("error", err.Error()))...)
	default:
		h.logger.Info("request handled", attrs...)
	}

	return resp, err
}

// InstrumentedHandler wraps a handler with metrics instrumentation.
type InstrumentedHandler struct {
	handler Handler
	metrics *metrics.Metrics
}

var _ Handler = (*InstrumentedHandler)(nil)

// NewInstrumented creates a handler that records metrics for requests passed to h.
func NewInstrumented(h Handler, m *metrics.Metrics) *InstrumentedHandler {
	return &InstrumentedHandler{
		handler: h,
		metrics: m,
	}
}

// Handle implements Handler with metrics.
func (h *InstrumentedHandler) Handle(ctx context.Context, hctx *Context, req *coap.Message) (*coap.Message, error) {
	start := time.Now()

	resp, err := h.handler.Handle(ctx, hctx, req)

	if errors.Is(err, ErrUndefinedClass) {
		h.metrics.UndefinedClassSeen()
	}

	code, respSize := "none", 0
	if resp != nil {
		code = coap.CodeName(resp.Class, resp.Code)
		respSize = len(resp.Payload)
	}
	h.metrics.ObserveRequest(coap.CodeName(req.Class, req.Code), code, time.Since(start), len(req.Payload), respSize)

	return resp, err
}
