// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/absmach/coapfs/pkg/coap"
	"github.com/absmach/coapfs/pkg/resolver"
	"github.com/absmach/coapfs/pkg/storage"
)

// outcome is the protocol status a resource action ends in.
type outcome struct {
	class   coap.Class
	code    uint8
	payload []byte
}

var (
	badRequest       = outcome{class: coap.ClassClientError, code: coap.CodeBadRequest}
	notFound         = outcome{class: coap.ClassClientError, code: coap.CodeNotFound}
	methodNotAllowed = outcome{class: coap.ClassClientError, code: coap.CodeMethodNotAllowed}
	conflict         = outcome{class: coap.ClassClientError, code: coap.CodeConflict}
	created          = outcome{class: coap.ClassSuccess, code: coap.CodeCreated}
	deleted          = outcome{class: coap.ClassSuccess, code: coap.CodeDeleted}
	internalError    = outcome{class: coap.ClassServerError, code: coap.CodeInternalServerError}
)

// Dispatcher maps requests onto files under the storage root.
type Dispatcher struct {
	resolver *resolver.Resolver
	store    storage.Store
	logger   *slog.Logger
}

var _ Handler = (*Dispatcher)(nil)

// NewDispatcher creates a dispatcher resolving paths with r and acting on s.
func NewDispatcher(r *resolver.Resolver, s storage.Store, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		resolver: r,
		store:    s,
		logger:   logger,
	}
}

// Handle implements Handler.
func (d *Dispatcher) Handle(ctx context.Context, hctx *Context, req *coap.Message) (*coap.Message, error) {
	switch {
	case !req.Class.Defined():
		return BadRequest(req), fmt.Errorf("%w: %d", ErrUndefinedClass, req.Class)

	case req.Class == coap.ClassMethod:
		out := d.method(ctx, hctx, req)
		return NewResponse(req, out.class, out.code, out.payload), nil

	default:
		// Responses and signaling are never processed as requests.
		return BadRequest(req), nil
	}
}

func (d *Dispatcher) method(ctx context.Context, hctx *Context, req *coap.Message) outcome {
	var act func(ctx context.Context, hctx *Context, path string, payload []byte) outcome

	switch req.Code {
	case coap.CodeEmpty:
		return methodNotAllowed
	case coap.CodeGET:
		act = d.get
	case coap.CodePOST:
		act = d.post
	case coap.CodePUT:
		act = d.put
	case coap.CodeDELETE:
		act = d.delete
	default:
		return badRequest
	}

	path, err := d.resolver.Resolve(req.Options)
	if err != nil {
		d.logger.Debug("path resolution failed",
			slog.String("request", hctx.RequestID),
			slog.String("remote", hctx.RemoteAddr),
			slog.String("error", err.Error()))
		return badRequest
	}

	return act(ctx, hctx, path, req.Payload)
}

func (d *Dispatcher) get(ctx context.Context, hctx *Context, path string, _ []byte) outcome {
	exists, err := d.store.Exists(path)
	if err != nil {
		return d.storageFailure(hctx, "exists", path, err)
	}
	if !exists {
		return notFound
	}

	data, err := d.store.ReadAll(path)
	if err != nil {
		return d.storageFailure(hctx, "read", path, err)
	}
	return outcome{class: coap.ClassSuccess, code: coap.CodeContent, payload: data}
}

func (d *Dispatcher) post(ctx context.Context, hctx *Context, path string, _ []byte) outcome {
	exists, err := d.store.Exists(path)
	if err != nil {
		return d.storageFailure(hctx, "exists", path, err)
	}
	if exists {
		return conflict
	}

	if err := d.store.Create(path); err != nil {
		return d.storageFailure(hctx, "create", path, err)
	}
	return created
}

func (d *Dispatcher) put(ctx context.Context, hctx *Context, path string, payload []byte) outcome {
	exists, err := d.store.Exists(path)
	if err != nil {
		return d.storageFailure(hctx, "exists", path, err)
	}
	if !exists {
		return notFound
	}

	if err := d.store.WriteReplace(path, payload); err != nil {
		return d.storageFailure(hctx, "write", path, err)
	}
	return created
}

func (d *Dispatcher) delete(ctx context.Context, hctx *Context, path string, _ []byte) outcome {
	exists, err := d.store.Exists(path)
	if err != nil {
		return d.storageFailure(hctx, "exists", path, err)
	}
	if !exists {
		return notFound
	}

	if err := d.store.Remove(path); err != nil {
		return d.storageFailure(hctx, "remove", path, err)
	}
	return deleted
}

// storageFailure maps a store error onto a response. Races with concurrent
// requests on the same path surface as ErrNotExist or ErrExist.
func (d *Dispatcher) storageFailure(hctx *Context, op, path string, err error) outcome {
	switch {
	case errors.Is(err, storage.ErrNotExist):
		return notFound
	case errors.Is(err, storage.ErrExist):
		return conflict
	case errors.Is(err, storage.ErrOutsideRoot), errors.Is(err, storage.ErrSymlink):
		d.logger.Warn("storage sandbox violation",
			slog.String("request", hctx.RequestID),
			slog.String("remote", hctx.RemoteAddr),
			slog.String("op", op),
			slog.String("path", path),
			slog.String("error", err.Error()))
		return badRequest
	default:
		d.logger.Error("storage operation failed",
			slog.String("request", hctx.RequestID),
			slog.String("remote", hctx.RemoteAddr),
			slog.String("op", op),
			slog.String("path", path),
			slog.String("error", err.Error()))
		return internalError
	}
}
