package sample

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/time/rate"

	"github.com/zberry/dump978/pkg/track"
)

// FileSource plays back recorded samples from a file. Block timestamps are
// synthesized from the sample count so downstream ages stay consistent
// regardless of playback speed. With Throttle set, playback is paced to
// realtime with a sample-rate token bucket.
type FileSource struct {
	path     string
	format   Format
	throttle bool
	clock    track.Clock
}

// NewFileSource creates a playback source for path.
func NewFileSource(path string, format Format, throttle bool, clock track.Clock) *FileSource {
	return &FileSource{path: path, format: format, throttle: throttle, clock: clockOrWall(clock)}
}

// Format returns the sample encoding.
func (s *FileSource) Format() Format { return s.format }

// Run plays the file through once.
func (s *FileSource) Run(ctx context.Context, consume Consumer) error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("opening sample file: %w", err)
	}
	defer f.Close()

	bytesPerSample := s.format.BytesPerSample()
	samplesPerBlock := blockSize / bytesPerSample

	var limiter *rate.Limiter
	if s.throttle {
		limiter = rate.NewLimiter(rate.Limit(Rate), samplesPerBlock)
	}

	start := s.clock()
	var samplesRead uint64

	buf := make([]byte, blockSize)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		n, err := io.ReadFull(f, buf)
		if n > 0 {
			samples := n / bytesPerSample
			if limiter != nil {
				if werr := limiter.WaitN(ctx, samples); werr != nil {
					return nil
				}
			}
			ts := start + samplesRead*1000/Rate
			samplesRead += uint64(samples)
			consume(Block{Timestamp: ts, Data: buf[:n]})
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading sample file: %w", err)
		}
	}
}
