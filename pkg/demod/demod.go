// Package demod turns raw IQ sample blocks into UAT downlink messages.
//
// The demodulator is a straightforward 2-FSK slicer: the sign of the
// sample-to-sample phase rotation gives the bit decision (UAT transmits one
// bit per two samples at 2.083334 MS/s), and frames are located by
// correlating against the 36-bit downlink sync word. Frames are accepted on
// an exact sync match; Reed-Solomon correction is not applied, so occasional
// corrupt frames can appear under noise and the reported error-corrected bit
// count is always zero.
package demod

import (
	"github.com/zberry/dump978/pkg/sample"
	"github.com/zberry/dump978/pkg/uat"
)

// Receiver consumes sample blocks and produces message batches. The concrete
// implementation is pluggable so tests can drive the pipeline with synthetic
// batches.
type Receiver interface {
	HandleSamples(b sample.Block)
}

const (
	syncBits = 36

	// downlinkSync is the 36-bit UAT ADS-B sync word.
	downlinkSync uint64 = 0xEACDDA4E2

	samplesPerBit = 2

	shortFrameBytes = 30 // 18 payload + 12 FEC parity
	longFrameBytes  = 48 // 34 payload + 14 FEC parity

	shortPayloadBytes = 18
	longPayloadBytes  = 34
)

// FSKReceiver demodulates downlink frames from a continuous sample stream.
// Not safe for concurrent use; blocks must arrive in order.
type FSKReceiver struct {
	format  sample.Format
	consume func(uat.Batch)

	// dphi holds the per-sample phase rotation carried across blocks.
	dphi        []float32
	last        complex64
	haveLast    bool
	blockStamp  uint64
	stampOffset int
}

// NewReceiver creates a demodulator that delivers one batch per sample block
// containing messages.
func NewReceiver(format sample.Format, consume func(uat.Batch)) *FSKReceiver {
	return &FSKReceiver{format: format, consume: consume}
}

// HandleSamples demodulates one block and forwards any recovered messages.
func (r *FSKReceiver) HandleSamples(b sample.Block) {
	samples := r.format.Convert(b.Data)
	if len(samples) == 0 {
		return
	}

	r.blockStamp = b.Timestamp
	r.stampOffset = len(r.dphi)

	for _, s := range samples {
		if r.haveLast {
			// Sign of the phase rotation: imag(s * conj(last)).
			rot := real(s)*(-imag(r.last)) + imag(s)*real(r.last)
			r.dphi = append(r.dphi, rot)
		}
		r.last = s
		r.haveLast = true
	}

	batch := r.scan()
	if len(batch) > 0 {
		r.consume(batch)
	}
}

// scan searches the buffered phase stream for sync words and extracts whole
// frames, retaining the unconsumed tail for the next block.
func (r *FSKReceiver) scan() uat.Batch {
	var batch uat.Batch

	pos := 0
	for {
		if len(r.dphi)-pos < syncBits*samplesPerBit {
			break
		}

		if !r.syncAt(pos) {
			pos++
			continue
		}

		// Frames may be split across blocks; extractFrame reports when
		// the buffer does not yet hold the whole frame.
		frameStart := pos + syncBits*samplesPerBit
		frame, consumedBits, ok := r.extractFrame(frameStart)
		if !ok {
			break
		}
		frame.Timestamp = r.stampFor(pos)
		batch = append(batch, *frame)
		pos = frameStart + consumedBits*samplesPerBit
	}

	// Drop consumed samples, bounding the retained tail.
	maxTail := syncBits*samplesPerBit + longFrameBytes*8*samplesPerBit
	if keep := len(r.dphi) - pos; keep > maxTail {
		pos = len(r.dphi) - maxTail
	}
	if pos > 0 {
		r.dphi = append(r.dphi[:0], r.dphi[pos:]...)
		r.stampOffset -= pos
	}

	return batch
}

func (r *FSKReceiver) bitAt(pos int) bool {
	return r.dphi[pos]+r.dphi[pos+1] > 0
}

func (r *FSKReceiver) syncAt(pos int) bool {
	for i := 0; i < syncBits; i++ {
		want := downlinkSync>>(syncBits-1-i)&1 == 1
		if r.bitAt(pos+i*samplesPerBit) != want {
			return false
		}
	}
	return true
}

// extractFrame slices the frame following a sync word. The first payload
// byte's type code selects short vs long framing. Returns ok=false when the
// buffer does not yet hold the whole frame.
func (r *FSKReceiver) extractFrame(pos int) (*uat.Message, int, bool) {
	if len(r.dphi)-pos < 8*samplesPerBit {
		return nil, 0, false
	}

	first := r.byteAt(pos)
	frameBytes := longFrameBytes
	payloadBytes := longPayloadBytes
	msgType := uat.DownlinkLong
	if first>>3 == 0 {
		frameBytes = shortFrameBytes
		payloadBytes = shortPayloadBytes
		msgType = uat.DownlinkShort
	}

	if len(r.dphi)-pos < frameBytes*8*samplesPerBit {
		return nil, 0, false
	}

	payload := make([]byte, payloadBytes)
	for i := range payload {
		payload[i] = r.byteAt(pos + i*8*samplesPerBit)
	}

	return &uat.Message{Type: msgType, Payload: payload}, frameBytes * 8, true
}

func (r *FSKReceiver) byteAt(pos int) byte {
	var v byte
	for i := 0; i < 8; i++ {
		v <<= 1
		if r.bitAt(pos + i*samplesPerBit) {
			v |= 1
		}
	}
	return v
}

// stampFor estimates the capture time of a frame whose sync begins at the
// given buffer position, relative to the current block timestamp.
func (r *FSKReceiver) stampFor(pos int) uint64 {
	offsetSamples := pos - r.stampOffset
	offsetMillis := int64(offsetSamples) * 1000 / sample.Rate
	return uint64(int64(r.blockStamp) + offsetMillis)
}
