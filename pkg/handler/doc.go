// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package handler provides the request dispatcher that links the CoAP parser to the resource store.
//
// # Data Flow
//
//	Datagram → Parser (decode) → Handler (dispatch) → Store
//	Store → Handler (response) → Parser (encode) → Sender
//
// # Dispatch Table
//
// Requests are keyed by the class and code of the incoming message:
//
//	0.00 Empty     4.05 Method Not Allowed
//	0.01 GET       2.05 Content | 4.04 Not Found
//	0.02 POST      2.01 Created | 4.09 Conflict
//	0.03 PUT       2.01 Created | 4.04 Not Found
//	0.04 DELETE    2.02 Deleted | 4.04 Not Found
//	0.xx other     4.00 Bad Request
//	2/4/5/7.xx     4.00 Bad Request
//	1/3/6.xx       4.00 Bad Request + ErrUndefinedClass
//
// Any path resolution failure answers 4.00 Bad Request. Storage failures
// answer 5.00 Internal Server Error.
//
// # Responses
//
// A response always echoes the request version, message ID and token and is
// sent as an acknowledgement. A non-empty payload is preceded by a single
// text/plain Content-Format option.
//
// # Middleware
//
// LoggingHandler and InstrumentedHandler wrap any Handler:
//
//	var h handler.Handler = handler.NewDispatcher(res, store, logger)
//	h = handler.NewInstrumented(h, m)
//	h = handler.NewLogging(h, logger)
package handler
