// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package udp implements the datagram server for coapfs.
//
// # Overview
//
// The server binds one UDP socket, reads datagrams into pooled buffers and
// hands them to a fixed pool of workers. Each worker runs the parser for one
// datagram at a time and writes the reply back to the datagram's sender.
// No per-sender state is kept.
//
// # Architecture
//
//	┌─────────┐          ┌───────────┐   queue   ┌─────────┐
//	│ Client  │ ─UDP──→  │ Read loop │ ────────→ │ Workers │
//	└─────────┘          └───────────┘           └─────────┘
//	     ↑                                            │
//	     │                                       ┌─────────┐
//	     │                                       │ Parser  │
//	     │                                       └─────────┘
//	     │                                            │
//	     │                                       ┌─────────┐
//	     └──────────────── reply ─────────────── │ Handler │
//	                                             └─────────┘
//
// # Backpressure
//
// The queue between the read loop and the workers is bounded by QueueSize.
// When it is full new datagrams are dropped and counted, so a burst never
// blocks the socket reader. An optional per-sender rate limiter drops
// datagrams before they reach the queue.
//
// # Graceful Shutdown
//
//  1. Context cancelled
//  2. Pending read interrupted with a read deadline
//  3. Queue closed
//  4. Workers answer queued datagrams (up to ShutdownTimeout)
//  5. Socket closed
//
// Handlers run with a context that is not cancelled by shutdown, so a
// request being served completes and its response is sent.
//
// # Usage
//
//	cfg := udp.Config{
//	    Address:        ":5683",
//	    WorkerPoolSize: 100,
//	    Logger:         logger,
//	}
//	srv := udp.New(cfg, &coap.Parser{}, h)
//	err := srv.Listen(ctx)
package udp
