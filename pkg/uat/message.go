// Package uat defines the message types shared by the 978 MHz receive
// pipeline: raw downlink/uplink frames as produced by the demodulator, the
// address identity model, and the structured decode used for the JSON feed.
package uat

import (
	"fmt"
	"strings"
)

// MessageType identifies the frame class of a received UAT message.
type MessageType int

const (
	// DownlinkShort is a basic UAT ADS-B message (18 payload bytes).
	DownlinkShort MessageType = iota

	// DownlinkLong is a long UAT ADS-B message (34 payload bytes).
	DownlinkLong

	// Uplink is a ground uplink frame (FIS-B).
	Uplink
)

// String returns a short name for the frame class.
func (t MessageType) String() string {
	switch t {
	case DownlinkShort:
		return "downlink_short"
	case DownlinkLong:
		return "downlink_long"
	case Uplink:
		return "uplink"
	default:
		return "invalid"
	}
}

// IsDownlink reports whether the message is an air-to-ground frame.
func (t MessageType) IsDownlink() bool {
	return t == DownlinkShort || t == DownlinkLong
}

// Message is a single received frame with its capture timestamp.
//
// Payload holds the error-corrected frame bytes without sync word or FEC
// parity. Errors is the number of bits repaired by forward error correction
// (zero when the frame was accepted as received). Timestamp is milliseconds
// since the Unix epoch at capture time.
type Message struct {
	Type      MessageType
	Payload   []byte
	Errors    int
	Timestamp uint64
}

// String renders the message in the dump978 raw text form:
// a '-' (downlink) or '+' (uplink) prefix, the payload as lowercase hex, an
// rs= field when error correction repaired anything, and the capture time in
// seconds with millisecond precision. Example:
//
//	-0d15f2a9b8c1...;t=1688410029.108;
func (m Message) String() string {
	var b strings.Builder
	if m.Type == Uplink {
		b.WriteByte('+')
	} else {
		b.WriteByte('-')
	}
	fmt.Fprintf(&b, "%x", m.Payload)
	if m.Errors > 0 {
		fmt.Fprintf(&b, ";rs=%d", m.Errors)
	}
	fmt.Fprintf(&b, ";t=%d.%03d;", m.Timestamp/1000, m.Timestamp%1000)
	return b.String()
}

// Batch is a group of messages demodulated from one block of samples.
// Batches are delivered to dispatch consumers by shared reference and must be
// treated as immutable.
type Batch []Message
