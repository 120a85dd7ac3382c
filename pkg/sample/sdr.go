package sample

import (
	"context"
	"fmt"
	"strconv"

	rtl "github.com/jpoirier/gortlsdr"
	"github.com/sirupsen/logrus"

	"github.com/zberry/dump978/pkg/track"
)

const (
	uatCenterFreq = 978000000

	// asyncBufNum/asyncBufLen size the librtlsdr transfer ring.
	asyncBufNum = 16
	asyncBufLen = 262144
)

// SDRSource reads live CU8 samples from an RTL-SDR dongle tuned to 978 MHz.
// The device may be selected by index or by serial number; an empty device
// string selects index 0.
type SDRSource struct {
	device string
	gain   int // tenths of dB; <= 0 selects automatic gain
	clock  track.Clock
	log    logrus.FieldLogger
}

// NewSDRSource creates an RTL-SDR source.
func NewSDRSource(device string, gain int, clock track.Clock, log logrus.FieldLogger) *SDRSource {
	return &SDRSource{device: device, gain: gain, clock: clockOrWall(clock), log: log}
}

// Format returns CU8, the only encoding the dongle produces.
func (s *SDRSource) Format() Format { return CU8 }

// Run opens and configures the dongle, then streams samples until the
// context is cancelled or the device fails.
func (s *SDRSource) Run(ctx context.Context, consume Consumer) error {
	index, err := s.resolveIndex()
	if err != nil {
		return err
	}

	dev, err := rtl.Open(index)
	if err != nil {
		return fmt.Errorf("opening RTL-SDR device %d: %w", index, err)
	}
	defer dev.Close()

	if err := dev.SetCenterFreq(uatCenterFreq); err != nil {
		return fmt.Errorf("setting center frequency: %w", err)
	}
	if err := dev.SetSampleRate(Rate); err != nil {
		return fmt.Errorf("setting sample rate: %w", err)
	}
	if s.gain > 0 {
		if err := dev.SetTunerGainMode(true); err != nil {
			return fmt.Errorf("enabling manual gain: %w", err)
		}
		if err := dev.SetTunerGain(s.gain); err != nil {
			return fmt.Errorf("setting tuner gain: %w", err)
		}
	} else {
		if err := dev.SetTunerGainMode(false); err != nil {
			return fmt.Errorf("enabling automatic gain: %w", err)
		}
	}
	if err := dev.ResetBuffer(); err != nil {
		return fmt.Errorf("resetting device buffer: %w", err)
	}

	if s.log != nil {
		s.log.Infof("RTL-SDR device %d (%s) tuned to %d Hz", index, rtl.GetDeviceName(index), uatCenterFreq)
	}

	// ReadAsync blocks until CancelAsync; a watcher goroutine ties device
	// cancellation to the context.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			dev.CancelAsync()
		case <-done:
		}
	}()

	err = dev.ReadAsync(func(buf []byte) {
		consume(Block{Timestamp: s.clock(), Data: buf})
	}, nil, asyncBufNum, asyncBufLen)
	if ctx.Err() != nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading from RTL-SDR: %w", err)
	}
	return nil
}

func (s *SDRSource) resolveIndex() (int, error) {
	if s.device == "" {
		return 0, nil
	}
	if index, err := strconv.Atoi(s.device); err == nil {
		return index, nil
	}
	index, err := rtl.GetIndexBySerial(s.device)
	if err != nil {
		return 0, fmt.Errorf("no RTL-SDR device with serial %q: %w", s.device, err)
	}
	return index, nil
}
