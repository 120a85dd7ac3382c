// Package sample acquires raw IQ sample blocks for the demodulator from
// stdin, a recorded file, or an RTL-SDR dongle, and converts between the
// supported sample encodings.
package sample

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Rate is the UAT sample rate in samples per second (two samples per bit at
// the 1.041667 Mbps UAT bit rate).
const Rate = 2083334

// Format identifies an IQ sample encoding.
type Format int

const (
	// CU8 is interleaved unsigned 8-bit I/Q (RTL-SDR native).
	CU8 Format = iota

	// CS8 is interleaved signed 8-bit I/Q.
	CS8

	// CS16H is interleaved signed 16-bit little-endian I/Q.
	CS16H

	// CF32H is interleaved 32-bit little-endian float I/Q.
	CF32H
)

// ParseFormat maps a --format option value to a Format.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "CU8":
		return CU8, nil
	case "CS8":
		return CS8, nil
	case "CS16H":
		return CS16H, nil
	case "CF32H":
		return CF32H, nil
	default:
		return 0, fmt.Errorf("unknown sample format %q", s)
	}
}

// String returns the option name of the format.
func (f Format) String() string {
	switch f {
	case CU8:
		return "CU8"
	case CS8:
		return "CS8"
	case CS16H:
		return "CS16H"
	case CF32H:
		return "CF32H"
	default:
		return "invalid"
	}
}

// BytesPerSample returns the encoded size of one complex sample.
func (f Format) BytesPerSample() int {
	switch f {
	case CU8, CS8:
		return 2
	case CS16H:
		return 4
	case CF32H:
		return 8
	default:
		return 0
	}
}

// Convert decodes data into normalized complex baseband samples. Trailing
// bytes that do not form a whole sample are ignored.
func (f Format) Convert(data []byte) []complex64 {
	n := len(data) / f.BytesPerSample()
	out := make([]complex64, n)

	switch f {
	case CU8:
		for i := 0; i < n; i++ {
			re := (float32(data[2*i]) - 127.5) / 127.5
			im := (float32(data[2*i+1]) - 127.5) / 127.5
			out[i] = complex(re, im)
		}
	case CS8:
		for i := 0; i < n; i++ {
			re := float32(int8(data[2*i])) / 127.0
			im := float32(int8(data[2*i+1])) / 127.0
			out[i] = complex(re, im)
		}
	case CS16H:
		for i := 0; i < n; i++ {
			re := float32(int16(binary.LittleEndian.Uint16(data[4*i:]))) / 32768.0
			im := float32(int16(binary.LittleEndian.Uint16(data[4*i+2:]))) / 32768.0
			out[i] = complex(re, im)
		}
	case CF32H:
		for i := 0; i < n; i++ {
			re := math.Float32frombits(binary.LittleEndian.Uint32(data[8*i:]))
			im := math.Float32frombits(binary.LittleEndian.Uint32(data[8*i+4:]))
			out[i] = complex(re, im)
		}
	}
	return out
}
