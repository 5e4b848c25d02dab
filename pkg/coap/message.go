// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package coap

import (
	"fmt"

	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/plgd-dev/go-coap/v3/message/codes"
)

const (
	// Version is the only protocol version this codec accepts.
	Version uint8 = 1

	// HeaderSize is the size of the mandatory message header.
	HeaderSize = 4

	// MaxTokenSize is the largest token length a message may carry.
	MaxTokenSize = 8

	// PayloadMarker separates options from the payload.
	PayloadMarker byte = 0xFF
)

// Type is the 2 bit message type.
type Type uint8

const (
	Confirmable     Type = 0
	NonConfirmable  Type = 1
	Acknowledgement Type = 2
	Reset           Type = 3
)

// String returns a string representation of the message type.
func (t Type) String() string {
	switch t {
	case Confirmable:
		return "CON"
	case NonConfirmable:
		return "NON"
	case Acknowledgement:
		return "ACK"
	case Reset:
		return "RST"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// Class is the 3 bit class of a message code.
type Class uint8

const (
	ClassMethod      Class = 0
	ClassSuccess     Class = 2
	ClassClientError Class = 4
	ClassServerError Class = 5
	ClassSignaling   Class = 7
)

// Defined reports whether the class has a meaning in the protocol.
func (c Class) Defined() bool {
	switch c {
	case ClassMethod, ClassSuccess, ClassClientError, ClassServerError, ClassSignaling:
		return true
	default:
		return false
	}
}

// Method codes (class 0).
const (
	CodeEmpty  uint8 = 0
	CodeGET    uint8 = 1
	CodePOST   uint8 = 2
	CodePUT    uint8 = 3
	CodeDELETE uint8 = 4
)

// Success codes (class 2).
const (
	CodeCreated uint8 = 1
	CodeDeleted uint8 = 2
	CodeContent uint8 = 5
)

// Client error codes (class 4).
const (
	CodeBadRequest       uint8 = 0
	CodeNotFound         uint8 = 4
	CodeMethodNotAllowed uint8 = 5
	CodeConflict         uint8 = 9
)

// Server error codes (class 5).
const (
	CodeInternalServerError uint8 = 0
)

// CodeName returns the registered name of a class/code pair, e.g. "Content" for 2.05.
func CodeName(class Class, code uint8) string {
	return codes.Code(uint16(class)<<5 | uint16(code&0x1F)).String()
}

// OptionNumber identifies an option.
type OptionNumber uint16

// Option numbers understood by coapfs.
const (
	URIHost       OptionNumber = OptionNumber(message.URIHost)
	URIPath       OptionNumber = OptionNumber(message.URIPath)
	ContentFormat OptionNumber = OptionNumber(message.ContentFormat)
)

// TextPlain is the content format carried by every response payload.
var TextPlain = byte(message.TextPlain)

// Option is a single decoded option with its absolute number.
type Option struct {
	Number OptionNumber
	Value  []byte
}

// Len returns the byte length of the option value.
func (o Option) Len() int {
	return len(o.Value)
}

func (o Option) String() string {
	return fmt.Sprintf("option(%d, len=%d, %#x)", o.Number, len(o.Value), o.Value)
}

// Options is an ordered option sequence, ascending by number.
type Options []Option

// Add appends an option. The caller keeps numbers ascending.
func (o Options) Add(number OptionNumber, value []byte) Options {
	return append(o, Option{Number: number, Value: value})
}

// Header is the fixed part of a message plus its token.
type Header struct {
	Version   uint8
	Type      Type
	Class     Class
	Code      uint8
	MessageID uint16
	Token     []byte
}

// CodeString formats the header code as "c.dd".
func (h Header) CodeString() string {
	return fmt.Sprintf("%d.%02d", h.Class, h.Code)
}

func (h Header) String() string {
	return fmt.Sprintf("header(v=%d, type=%s, code=%s, id=%d, token=%#x)",
		h.Version, h.Type, h.CodeString(), h.MessageID, h.Token)
}

// Message is a decoded CoAP message.
type Message struct {
	Header
	Options Options
	Payload []byte
}
