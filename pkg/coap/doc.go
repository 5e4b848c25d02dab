// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package coap implements the binary CoAP message codec used by coapfs.
//
// # Wire Format
//
// Every message starts with a fixed 4 byte header, followed by the token,
// the options and an optional payload:
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|Ver| T |  TKL  | Class |  Code  |          Message ID           |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|   Token (if any, TKL bytes) ...
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|   Options (if any) ...
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|1 1 1 1 1 1 1 1|    Payload (if any) ...
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//
// # Options
//
// Options are transmitted as a delta from the previous option number. Both
// the delta and the value length start as a 4 bit nibble and escalate:
//
//	0..12     nibble carries the value
//	13        one extra byte, value = byte + 13
//	14        two extra bytes (big-endian), value = uint16 + 269
//	15        reserved, message is rejected
//
// Decode rebuilds absolute option numbers with a running accumulator and
// Encode re-derives the deltas, so Options always hold absolute numbers in
// ascending order.
//
// # Ownership
//
// Decode copies token, option values and payload out of the input slice.
// The caller may reuse its receive buffer as soon as Decode returns.
//
// # Limitations
//
//   - No block-wise transfer
//   - No retransmission or deduplication, the message type is only echoed
//   - Content-Format negotiation is limited to a single text/plain marker
package coap
