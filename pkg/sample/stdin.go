package sample

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/zberry/dump978/pkg/track"
)

// StdinSource reads samples from an io.Reader, normally os.Stdin. Blocks are
// stamped with the wall clock at read completion.
type StdinSource struct {
	r      io.Reader
	format Format
	clock  track.Clock
}

// NewStdinSource creates a source reading from r.
func NewStdinSource(r io.Reader, format Format, clock track.Clock) *StdinSource {
	return &StdinSource{r: r, format: format, clock: clockOrWall(clock)}
}

// Format returns the sample encoding.
func (s *StdinSource) Format() Format { return s.format }

// Run reads blocks until EOF or cancellation.
func (s *StdinSource) Run(ctx context.Context, consume Consumer) error {
	buf := make([]byte, blockSize)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		n, err := s.r.Read(buf)
		if n > 0 {
			consume(Block{Timestamp: s.clock(), Data: buf[:n]})
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading samples: %w", err)
		}
	}
}
