// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package coap

import (
	"bytes"
	"errors"
	"testing"
)

func sampleMessage() *Message {
	return &Message{
		Header: Header{
			Version:   Version,
			Type:      Confirmable,
			Class:     ClassMethod,
			Code:      CodePUT,
			MessageID: 0xBEEF,
			Token:     []byte{0xDE, 0xAD, 0xBE, 0xEF},
		},
		Options: Options{}.
			Add(URIHost, []byte("localhost")).
			Add(URIPath, []byte("a")).
			Add(URIPath, []byte("b")).
			Add(ContentFormat, []byte{TextPlain}).
			Add(300, bytes.Repeat([]byte{0x01}, 20)).
			Add(1000, bytes.Repeat([]byte{0x02}, 300)),
		Payload: []byte{0x00, 'h', 0x00, 'i', 0xFF},
	}
}

func assertMessageEqual(t *testing.T, want, got *Message) {
	t.Helper()

	if got.Version != want.Version || got.Type != want.Type || got.Class != want.Class ||
		got.Code != want.Code || got.MessageID != want.MessageID {
		t.Fatalf("header mismatch: want %s, got %s", want.Header, got.Header)
	}
	if !bytes.Equal(got.Token, want.Token) {
		t.Errorf("token mismatch: want %#x, got %#x", want.Token, got.Token)
	}
	if len(got.Options) != len(want.Options) {
		t.Fatalf("expected %d options, got %d", len(want.Options), len(got.Options))
	}
	for i := range want.Options {
		if got.Options[i].Number != want.Options[i].Number {
			t.Errorf("option %d: want number %d, got %d", i, want.Options[i].Number, got.Options[i].Number)
		}
		if !bytes.Equal(got.Options[i].Value, want.Options[i].Value) {
			t.Errorf("option %d: value mismatch", i)
		}
	}
	if !bytes.Equal(got.Payload, want.Payload) {
		t.Errorf("payload mismatch: want %#x, got %#x", want.Payload, got.Payload)
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  *Message
	}{
		{
			name: "full message",
			msg:  sampleMessage(),
		},
		{
			name: "header only",
			msg: &Message{Header: Header{
				Version: Version, Type: NonConfirmable, Class: ClassMethod, Code: CodeGET, MessageID: 1,
			}},
		},
		{
			name: "max token no options",
			msg: &Message{
				Header: Header{
					Version: Version, Type: Acknowledgement, Class: ClassSuccess, Code: CodeContent,
					MessageID: 0xFFFF, Token: []byte{1, 2, 3, 4, 5, 6, 7, 8},
				},
				Payload: []byte("hello"),
			},
		},
		{
			name: "repeated option numbers",
			msg: &Message{
				Header: Header{Version: Version, Type: Reset, Class: ClassMethod, Code: CodeDELETE},
				Options: Options{}.
					Add(URIPath, []byte("x")).
					Add(URIPath, nil).
					Add(URIPath, []byte("y")),
			},
		},
		{
			name: "largest option number",
			msg: &Message{
				Header:  Header{Version: Version, Class: ClassMethod, Code: CodePOST},
				Options: Options{}.Add(65535, bytes.Repeat([]byte{0x03}, 13)),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.msg)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}

			got, err := Decode(data)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}

			assertMessageEqual(t, tt.msg, got)
		})
	}
}

func TestEncode_DeltaTiers(t *testing.T) {
	header := []byte{0x40, 0x01, 0x00, 0x01}

	tests := []struct {
		name   string
		number OptionNumber
		want   []byte
	}{
		{name: "delta 12 fits the nibble", number: 12, want: []byte{0xC0}},
		{name: "delta 13 takes one extra byte", number: 13, want: []byte{0xD0, 0x00}},
		{name: "delta 268 is the one byte ceiling", number: 268, want: []byte{0xD0, 0xFF}},
		{name: "delta 269 takes two extra bytes", number: 269, want: []byte{0xE0, 0x00, 0x00}},
		{name: "delta 300", number: 300, want: []byte{0xE0, 0x00, 0x1F}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &Message{
				Header:  Header{Version: Version, Class: ClassMethod, Code: CodeGET, MessageID: 1},
				Options: Options{}.Add(tt.number, nil),
			}

			data, err := Encode(msg)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}

			want := append(append([]byte{}, header...), tt.want...)
			if !bytes.Equal(data, want) {
				t.Fatalf("Encode() = %#x, want %#x", data, want)
			}

			got, err := Decode(data)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if len(got.Options) != 1 || got.Options[0].Number != tt.number {
				t.Fatalf("expected option %d, got %v", tt.number, got.Options)
			}
		})
	}
}

func TestEncode_LengthTiers(t *testing.T) {
	tests := []struct {
		length int
		prefix []byte
	}{
		{length: 12, prefix: []byte{0xBC}},
		{length: 13, prefix: []byte{0xBD, 0x00}},
		{length: 268, prefix: []byte{0xBD, 0xFF}},
		{length: 269, prefix: []byte{0xBE, 0x00, 0x00}},
		{length: 1000, prefix: []byte{0xBE, 0x02, 0xDB}},
	}

	for _, tt := range tests {
		msg := &Message{
			Header:  Header{Version: Version, Class: ClassMethod, Code: CodeGET},
			Options: Options{}.Add(URIPath, bytes.Repeat([]byte{'z'}, tt.length)),
		}

		data, err := Encode(msg)
		if err != nil {
			t.Fatalf("length %d: Encode() error = %v", tt.length, err)
		}

		opts := data[HeaderSize:]
		if !bytes.HasPrefix(opts, tt.prefix) {
			t.Errorf("length %d: expected prefix %#x, got %#x", tt.length, tt.prefix, opts[:len(tt.prefix)])
		}
		if len(opts) != len(tt.prefix)+tt.length {
			t.Errorf("length %d: expected %d option bytes, got %d", tt.length, len(tt.prefix)+tt.length, len(opts))
		}

		got, err := Decode(data)
		if err != nil {
			t.Fatalf("length %d: Decode() error = %v", tt.length, err)
		}
		if got.Options[0].Len() != tt.length {
			t.Errorf("expected decoded length %d, got %d", tt.length, got.Options[0].Len())
		}
	}
}

func TestDecode_Header(t *testing.T) {
	data := []byte{0x62, 0x45, 0x12, 0x34, 0xAA, 0xBB}

	msg, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if msg.Version != 1 {
		t.Errorf("expected version 1, got %d", msg.Version)
	}
	if msg.Type != Acknowledgement {
		t.Errorf("expected type ACK, got %s", msg.Type)
	}
	if msg.Class != ClassSuccess || msg.Code != CodeContent {
		t.Errorf("expected code 2.05, got %s", msg.CodeString())
	}
	if msg.MessageID != 0x1234 {
		t.Errorf("expected message id 0x1234, got %#x", msg.MessageID)
	}
	if !bytes.Equal(msg.Token, []byte{0xAA, 0xBB}) {
		t.Errorf("unexpected token %#x", msg.Token)
	}
	if len(msg.Options) != 0 || len(msg.Payload) != 0 {
		t.Errorf("expected no options and no payload")
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{name: "empty", data: nil, want: ErrHeaderTooShort},
		{name: "three bytes", data: []byte{0x40, 0x01, 0x00}, want: ErrHeaderTooShort},
		{name: "version 0", data: []byte{0x00, 0x01, 0x00, 0x01}, want: ErrInvalidVersion},
		{name: "version 2", data: []byte{0x80, 0x01, 0x00, 0x01}, want: ErrInvalidVersion},
		{name: "token length 9", data: append([]byte{0x49, 0x01, 0x00, 0x01}, make([]byte, 9)...), want: ErrTokenTooLong},
		{name: "token length 15", data: []byte{0x4F, 0x01, 0x00, 0x01}, want: ErrTokenTooLong},
		{name: "token missing bytes", data: []byte{0x44, 0x01, 0x00, 0x01, 0xAA}, want: ErrTruncated},
		{name: "reserved delta", data: []byte{0x40, 0x01, 0x00, 0x01, 0xF0}, want: ErrReservedDelta},
		{name: "reserved length", data: []byte{0x40, 0x01, 0x00, 0x01, 0x3F}, want: ErrReservedLength},
		{name: "reserved delta after valid option", data: []byte{0x40, 0x01, 0x00, 0x01, 0xB1, 'a', 0xF1, 'b'}, want: ErrReservedDelta},
		{name: "value past end", data: []byte{0x40, 0x01, 0x00, 0x01, 0xB5, 'a'}, want: ErrTruncated},
		{name: "one byte delta missing", data: []byte{0x40, 0x01, 0x00, 0x01, 0xD0}, want: ErrTruncated},
		{name: "two byte length missing", data: []byte{0x40, 0x01, 0x00, 0x01, 0x0E, 0x01}, want: ErrTruncated},
		{name: "number overflow", data: []byte{0x40, 0x01, 0x00, 0x01, 0xE0, 0xFF, 0xFF}, want: ErrOptionOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode(tt.data)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Decode() error = %v, want %v", err, tt.want)
			}
			if msg != nil {
				t.Errorf("expected no partial message on error")
			}
			if _, ok := DecodeReason(err); !ok {
				t.Errorf("expected %v to be classified as a decode error", err)
			}
		})
	}
}

func TestDecode_TokenBounds(t *testing.T) {
	for _, tkl := range []int{0, 8} {
		data := append([]byte{0x40 | byte(tkl), 0x01, 0x00, 0x07}, bytes.Repeat([]byte{0x5A}, tkl)...)

		msg, err := Decode(data)
		if err != nil {
			t.Fatalf("token length %d: Decode() error = %v", tkl, err)
		}
		if len(msg.Token) != tkl {
			t.Errorf("expected token length %d, got %d", tkl, len(msg.Token))
		}
	}
}

func TestDecode_Payload(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want []byte
	}{
		{
			name: "no marker",
			data: []byte{0x40, 0x02, 0x00, 0x01, 0xB1, 'r'},
			want: nil,
		},
		{
			name: "payload with zero bytes",
			data: []byte{0x40, 0x03, 0x00, 0x01, 0xB1, 'r', 0xFF, 0x00, 0x01, 0x00},
			want: []byte{0x00, 0x01, 0x00},
		},
		{
			name: "marker right after header",
			data: []byte{0x40, 0x03, 0x00, 0x01, 0xFF, 'x', 0xFF},
			want: []byte{'x', 0xFF},
		},
		{
			name: "marker without payload bytes",
			data: []byte{0x40, 0x03, 0x00, 0x01, 0xFF},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode(tt.data)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if !bytes.Equal(msg.Payload, tt.want) {
				t.Errorf("payload = %#x, want %#x", msg.Payload, tt.want)
			}
		})
	}
}

func TestDecode_CopiesInput(t *testing.T) {
	data := []byte{0x41, 0x01, 0x00, 0x01, 0x77, 0xB1, 'r', 0xFF, 'p'}

	msg, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	for i := range data {
		data[i] = 0
	}

	if msg.Token[0] != 0x77 || msg.Options[0].Value[0] != 'r' || msg.Payload[0] != 'p' {
		t.Error("decoded message must not alias the receive buffer")
	}
}

func TestEncode_Errors(t *testing.T) {
	msg := &Message{
		Header:  Header{Version: Version, Token: make([]byte, 9)},
		Options: nil,
	}
	if _, err := Encode(msg); !errors.Is(err, ErrTokenTooLong) {
		t.Errorf("expected ErrTokenTooLong, got %v", err)
	}

	msg = &Message{
		Header:  Header{Version: Version},
		Options: Options{}.Add(URIPath, nil).Add(URIHost, nil),
	}
	if _, err := Encode(msg); !errors.Is(err, ErrOptionOrder) {
		t.Errorf("expected ErrOptionOrder, got %v", err)
	}
}

func TestEncode_EmptyPayloadHasNoMarker(t *testing.T) {
	msg := &Message{Header: Header{Version: Version, Type: Acknowledgement, Class: ClassSuccess, Code: CodeCreated}}

	data, err := Encode(msg)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	if !bytes.Equal(data, []byte{0x60, 0x41, 0x00, 0x00}) {
		t.Errorf("Encode() = %#x", data)
	}
}

func TestEncode_ResponseContentFormat(t *testing.T) {
	msg := &Message{
		Header: Header{
			Version:   Version,
			Type:      Acknowledgement,
			Class:     ClassSuccess,
			Code:      CodeContent,
			MessageID: 0x1234,
			Token:     []byte{0xAB},
		},
		Options: Options{}.Add(ContentFormat, []byte{TextPlain}),
		Payload: []byte("hi"),
	}

	data, err := Encode(msg)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	want := []byte{0x61, 0x45, 0x12, 0x34, 0xAB, 0xC1, 0x00, 0xFF, 'h', 'i'}
	if !bytes.Equal(data, want) {
		t.Errorf("Encode() = %#x, want %#x", data, want)
	}
	if TextPlain != 0 {
		t.Errorf("TextPlain = %d, want 0", TextPlain)
	}
}

func TestCodeName(t *testing.T) {
	tests := []struct {
		class Class
		code  uint8
		want  string
	}{
		{ClassMethod, CodeGET, "GET"},
		{ClassSuccess, CodeContent, "Content"},
		{ClassClientError, CodeNotFound, "NotFound"},
		{ClassServerError, CodeInternalServerError, "InternalServerError"},
	}

	for _, tt := range tests {
		if got := CodeName(tt.class, tt.code); got != tt.want {
			t.Errorf("CodeName(%d, %d) = %q, want %q", tt.class, tt.code, got, tt.want)
		}
	}
}

func TestClass_Defined(t *testing.T) {
	for c := Class(0); c < 8; c++ {
		want := c != 1 && c != 3 && c != 6
		if got := c.Defined(); got != want {
			t.Errorf("Class(%d).Defined() = %v, want %v", c, got, want)
		}
	}
}
