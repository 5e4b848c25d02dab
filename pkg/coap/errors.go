// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package coap

import "errors"

// Decode errors. A message failing with any of these cannot be answered.
var (
	ErrHeaderTooShort = errors.New("coap: header too short")
	ErrInvalidVersion = errors.New("coap: invalid version")
	ErrTokenTooLong   = errors.New("coap: token too long")
	ErrTruncated      = errors.New("coap: message truncated")
	ErrReservedDelta  = errors.New("coap: reserved option delta")
	ErrReservedLength = errors.New("coap: reserved option length")
	ErrOptionOverflow = errors.New("coap: option number or length overflows 16 bits")
)

// ErrOptionOrder is returned by Encode when option numbers are not ascending.
var ErrOptionOrder = errors.New("coap: options not in ascending order")

var decodeReasons = []struct {
	err    error
	reason string
}{
	{ErrHeaderTooShort, "header_too_short"},
	{ErrInvalidVersion, "invalid_version"},
	{ErrTokenTooLong, "token_too_long"},
	{ErrTruncated, "truncated"},
	{ErrReservedDelta, "reserved_delta"},
	{ErrReservedLength, "reserved_length"},
	{ErrOptionOverflow, "option_overflow"},
}

// DecodeReason returns a short label for a decode error and whether err is one.
func DecodeReason(err error) (string, bool) {
	for _, d := range decodeReasons {
		if errors.Is(err, d.err) {
			return d.reason, true
		}
	}
	return "", false
}
