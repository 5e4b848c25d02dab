// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package coap

import (
	"fmt"
	"math"
)

// Nibble values that escalate an option delta or length to extended form.
const (
	extend1Byte  = 13
	extend2Bytes = 14
	reserved     = 15

	extend1Base = 13
	extend2Base = 269
)

// Decode parses a single datagram. len(data) is the number of valid bytes;
// payload bytes may be zero, so the datagram is never scanned for a sentinel.
func Decode(data []byte) (*Message, error) {
	n := len(data)
	if n < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrHeaderTooShort, n)
	}

	ver := data[0] >> 6
	if ver != Version {
		return nil, fmt.Errorf("%w: %d", ErrInvalidVersion, ver)
	}
	tkl := int(data[0] & 0x0F)
	if tkl > MaxTokenSize {
		return nil, fmt.Errorf("%w: %d", ErrTokenTooLong, tkl)
	}

	msg := &Message{
		Header: Header{
			Version:   ver,
			Type:      Type((data[0] >> 4) & 0x03),
			Class:     Class(data[1] >> 5),
			Code:      data[1] & 0x1F,
			MessageID: uint16(data[2])<<8 | uint16(data[3]),
		},
	}

	pos := HeaderSize
	if pos+tkl > n {
		return nil, fmt.Errorf("%w: token needs %d bytes", ErrTruncated, tkl)
	}
	msg.Token = clone(data[pos : pos+tkl])
	pos += tkl

	var prev uint32
	for pos < n && data[pos] != PayloadMarker {
		b := data[pos]
		pos++

		delta, next, err := readExtended(data, pos, b>>4, ErrReservedDelta)
		if err != nil {
			return nil, err
		}
		pos = next
		length, next, err := readExtended(data, pos, b&0x0F, ErrReservedLength)
		if err != nil {
			return nil, err
		}
		pos = next

		number := prev + delta
		if number > math.MaxUint16 || length > math.MaxUint16 {
			return nil, fmt.Errorf("%w: number %d, length %d", ErrOptionOverflow, number, length)
		}
		prev = number

		end := pos + int(length)
		if end > n {
			return nil, fmt.Errorf("%w: option %d needs %d value bytes", ErrTruncated, number, length)
		}
		msg.Options = msg.Options.Add(OptionNumber(number), clone(data[pos:end]))
		pos = end
	}

	if pos < n {
		// Stopped on the payload marker.
		msg.Payload = clone(data[pos+1:])
	}

	return msg, nil
}

// readExtended resolves a delta or length nibble starting at pos.
func readExtended(data []byte, pos int, nibble byte, reservedErr error) (uint32, int, error) {
	switch nibble {
	case extend1Byte:
		if pos+1 > len(data) {
			return 0, pos, fmt.Errorf("%w: extended byte missing", ErrTruncated)
		}
		return uint32(data[pos]) + extend1Base, pos + 1, nil
	case extend2Bytes:
		if pos+2 > len(data) {
			return 0, pos, fmt.Errorf("%w: extended bytes missing", ErrTruncated)
		}
		return (uint32(data[pos])<<8 | uint32(data[pos+1])) + extend2Base, pos + 2, nil
	case reserved:
		return 0, pos, reservedErr
	default:
		return uint32(nibble), pos, nil
	}
}

// Encode serializes m. The payload marker is only written for a non-empty payload.
func Encode(m *Message) ([]byte, error) {
	if len(m.Token) > MaxTokenSize {
		return nil, fmt.Errorf("%w: %d", ErrTokenTooLong, len(m.Token))
	}

	size := HeaderSize + len(m.Token) + len(m.Payload) + 1
	for _, o := range m.Options {
		size += 5 + len(o.Value)
	}
	buf := make([]byte, 0, size)

	buf = append(buf,
		(m.Version&0x03)<<6|(uint8(m.Type)&0x03)<<4|uint8(len(m.Token)),
		(uint8(m.Class)&0x07)<<5|m.Code&0x1F,
		byte(m.MessageID>>8),
		byte(m.MessageID),
	)
	buf = append(buf, m.Token...)

	var prev OptionNumber
	for _, o := range m.Options {
		if o.Number < prev {
			return nil, fmt.Errorf("%w: %d after %d", ErrOptionOrder, o.Number, prev)
		}
		if len(o.Value) > math.MaxUint16 {
			return nil, fmt.Errorf("%w: length %d", ErrOptionOverflow, len(o.Value))
		}
		delta := uint32(o.Number - prev)
		length := uint32(len(o.Value))
		prev = o.Number

		dn, dext := splitExtended(delta)
		ln, lext := splitExtended(length)
		buf = append(buf, dn<<4|ln)
		buf = append(buf, dext...)
		buf = append(buf, lext...)
		buf = append(buf, o.Value...)
	}

	if len(m.Payload) > 0 {
		buf = append(buf, PayloadMarker)
		buf = append(buf, m.Payload...)
	}

	return buf, nil
}

// splitExtended picks the nibble and extension bytes for v.
func splitExtended(v uint32) (byte, []byte) {
	switch {
	case v < extend1Base:
		return byte(v), nil
	case v < extend2Base:
		return extend1Byte, []byte{byte(v - extend1Base)}
	default:
		v -= extend2Base
		return extend2Bytes, []byte{byte(v >> 8), byte(v)}
	}
}

func clone(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
