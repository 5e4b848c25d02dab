// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"errors"
	"testing"
)

func TestNew(t *testing.T) {
	if err := New("decode", "coap", "id", "127.0.0.1:1", nil); err != nil {
		t.Errorf("expected nil for a nil cause, got %v", err)
	}

	cause := errors.New("boom")
	err := New("decode", "coap", "abc", "127.0.0.1:1", cause)

	if !errors.Is(err, cause) {
		t.Error("expected the cause to be unwrapped")
	}
	var re *RequestError
	if !errors.As(err, &re) {
		t.Fatal("expected a *RequestError")
	}
	if re.Op != "decode" || re.RequestID != "abc" {
		t.Errorf("unexpected fields %+v", re)
	}
	if got, want := err.Error(), "coap decode [abc] 127.0.0.1:1: boom"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestRequestError_NoID(t *testing.T) {
	err := New("write", "coap", "", "127.0.0.1:1", ErrEncode)
	if got, want := err.Error(), "coap write 127.0.0.1:1: response encoding failed"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestRequestError_DropReason(t *testing.T) {
	err := New("enqueue", "udp", "", "127.0.0.1:1", ErrQueueFull)
	if !errors.Is(err, ErrQueueFull) || errors.Is(err, ErrRateLimited) {
		t.Errorf("expected only ErrQueueFull to match, got %v", err)
	}
	if got, want := err.Error(), "udp enqueue 127.0.0.1:1: worker queue full"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
