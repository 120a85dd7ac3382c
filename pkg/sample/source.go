package sample

import (
	"context"

	"github.com/zberry/dump978/pkg/track"
)

// blockSize is the read size for stream sources, a multiple of every
// supported sample width.
const blockSize = 65536

// Block is one chunk of raw samples with its capture timestamp in
// milliseconds since the Unix epoch.
type Block struct {
	Timestamp uint64
	Data      []byte
}

// Consumer receives sample blocks. The data slice is reused between calls;
// consumers must finish with it before returning.
type Consumer func(Block)

// Source produces raw sample blocks until the context is cancelled, input is
// exhausted, or an unrecoverable error occurs. A nil return means orderly
// end of input; any error stops the event loop and drives shutdown.
type Source interface {
	Run(ctx context.Context, consume Consumer) error
	Format() Format
}

func clockOrWall(clock track.Clock) track.Clock {
	if clock == nil {
		return track.WallClock
	}
	return clock
}
