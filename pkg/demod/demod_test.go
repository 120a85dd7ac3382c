package demod

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/zberry/dump978/pkg/sample"
	"github.com/zberry/dump978/pkg/uat"
)

// testPayload is a short-frame payload (type code 0 selects short framing).
func testPayload() []byte {
	p := make([]byte, 18)
	p[1], p[2], p[3] = 0xab, 0xcd, 0xef
	return p
}

// frameBits expands the sync word and frame bytes (payload plus parity
// padding) into the transmitted bit sequence, most significant bit first.
func frameBits(payload []byte) []bool {
	var bits []bool
	for i := syncBits - 1; i >= 0; i-- {
		bits = append(bits, downlinkSync>>uint(i)&1 == 1)
	}
	frame := make([]byte, shortFrameBytes)
	copy(frame, payload)
	for _, b := range frame {
		for i := 7; i >= 0; i-- {
			bits = append(bits, b>>uint(i)&1 == 1)
		}
	}
	return bits
}

// modulate synthesizes CF32H samples carrying the bit sequence as 2-FSK:
// each bit is two samples of positive or negative phase rotation.
func modulate(bits []bool) []byte {
	phase := 0.0
	samples := []complex64{complex(1, 0)}
	for _, bit := range bits {
		delta := 0.5
		if !bit {
			delta = -0.5
		}
		for i := 0; i < samplesPerBit; i++ {
			phase += delta
			samples = append(samples, complex(float32(math.Cos(phase)), float32(math.Sin(phase))))
		}
	}

	var buf bytes.Buffer
	scratch := make([]byte, 4)
	for _, s := range samples {
		binary.LittleEndian.PutUint32(scratch, math.Float32bits(real(s)))
		buf.Write(scratch)
		binary.LittleEndian.PutUint32(scratch, math.Float32bits(imag(s)))
		buf.Write(scratch)
	}
	return buf.Bytes()
}

func TestDemodulateShortFrame(t *testing.T) {
	var batches []uat.Batch
	r := NewReceiver(sample.CF32H, func(b uat.Batch) { batches = append(batches, b) })

	data := modulate(frameBits(testPayload()))
	r.HandleSamples(sample.Block{Timestamp: 1688410029108, Data: data})

	if len(batches) != 1 || len(batches[0]) != 1 {
		t.Fatalf("Expected 1 batch with 1 message, got %v", batches)
	}

	msg := batches[0][0]
	if msg.Type != uat.DownlinkShort {
		t.Errorf("Expected short downlink, got %v", msg.Type)
	}
	if !bytes.Equal(msg.Payload, testPayload()) {
		t.Errorf("Payload mismatch:\n got %x\nwant %x", msg.Payload, testPayload())
	}
	if msg.Timestamp != 1688410029108 {
		t.Errorf("Expected block timestamp, got %d", msg.Timestamp)
	}
	if msg.Errors != 0 {
		t.Errorf("Expected zero corrected errors, got %d", msg.Errors)
	}
}

func TestDemodulateFrameSplitAcrossBlocks(t *testing.T) {
	var batches []uat.Batch
	r := NewReceiver(sample.CF32H, func(b uat.Batch) { batches = append(batches, b) })

	data := modulate(frameBits(testPayload()))
	split := len(data) / 2
	split -= split % 8 // keep whole samples per block

	r.HandleSamples(sample.Block{Timestamp: 1000, Data: data[:split]})
	if len(batches) != 0 {
		t.Fatalf("Expected no message from a partial frame, got %v", batches)
	}

	r.HandleSamples(sample.Block{Timestamp: 1200, Data: data[split:]})
	if len(batches) != 1 || len(batches[0]) != 1 {
		t.Fatalf("Expected the completed frame from the second block, got %v", batches)
	}
	if !bytes.Equal(batches[0][0].Payload, testPayload()) {
		t.Errorf("Payload mismatch after split: %x", batches[0][0].Payload)
	}
}

func TestDemodulateLeadingNoiseBits(t *testing.T) {
	var batches []uat.Batch
	r := NewReceiver(sample.CF32H, func(b uat.Batch) { batches = append(batches, b) })

	// A run of zero bits before the sync word must not defeat detection.
	bits := append(make([]bool, 25), frameBits(testPayload())...)
	r.HandleSamples(sample.Block{Timestamp: 1000, Data: modulate(bits)})

	if len(batches) != 1 || len(batches[0]) != 1 {
		t.Fatalf("Expected 1 message after leading noise, got %v", batches)
	}
}

func TestDemodulateSilence(t *testing.T) {
	var batches []uat.Batch
	r := NewReceiver(sample.CF32H, func(b uat.Batch) { batches = append(batches, b) })

	// A steady tone with no bit transitions carries no sync word.
	data := modulate(make([]bool, 200))
	r.HandleSamples(sample.Block{Timestamp: 1000, Data: data})

	if len(batches) != 0 {
		t.Errorf("Expected no messages from silence, got %v", batches)
	}
}
