// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package coap implements the CoAP datagram parser for coapfs.
//
// # Overview
//
// Each call to Parse handles one datagram:
//
//  1. Read the whole datagram
//  2. Decode it with pkg/coap
//  3. Call the handler for a response
//  4. Encode the response and write it back to the sender
//
// # Errors
//
// Decode failures are wrapped in ErrMalformedDatagram and nothing is written.
// Handler errors such as handler.ErrUndefinedClass are returned after the
// response has been written. Every error is a *errors.RequestError carrying
// the request ID and sender address.
//
// # Protocol Field
//
// The parser sets hctx.Protocol = "coap" for every datagram.
package coap
