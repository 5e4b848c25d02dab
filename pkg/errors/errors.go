// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package errors provides structured error handling for coapfs.
package errors

import (
	"errors"
	"fmt"
)

// Common error types
var (
	// ErrMalformedDatagram indicates a datagram that could not be decoded.
	ErrMalformedDatagram = errors.New("malformed datagram")

	// ErrRateLimited indicates a sender exceeded its rate limit.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrQueueFull indicates the worker queue had no room for a datagram.
	ErrQueueFull = errors.New("worker queue full")

	// ErrEncode indicates a response could not be serialized.
	ErrEncode = errors.New("response encoding failed")
)

// RequestError wraps an error with the context of the datagram that caused it.
type RequestError struct {
	Op         string // Operation that failed
	Protocol   string // Protocol (coap)
	RequestID  string // Datagram identifier
	RemoteAddr string // Sender address
	Err        error  // Underlying error
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("%s %s [%s] %s: %v", e.Protocol, e.Op, e.RequestID, e.RemoteAddr, e.Err)
	}
	return fmt.Sprintf("%s %s %s: %v", e.Protocol, e.Op, e.RemoteAddr, e.Err)
}

// Unwrap returns the underlying error.
func (e *RequestError) Unwrap() error {
	return e.Err
}

// New creates a new RequestError. It returns nil when err is nil.
func New(op, protocol, requestID, remoteAddr string, err error) error {
	if err == nil {
		return nil
	}
	return &RequestError{
		Op:         op,
		Protocol:   protocol,
		RequestID:  requestID,
		RemoteAddr: remoteAddr,
		Err:        err,
	}
}
