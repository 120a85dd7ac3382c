// Package output publishes received message batches to the outside world:
// stdout echo sinks, TCP listeners, and the per-connection raw/JSON line
// adapters.
package output

import (
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/zberry/dump978/pkg/dispatch"
	"github.com/zberry/dump978/pkg/uat"
)

// RawSink returns a dispatch consumer that writes the raw text form of every
// message in a batch, one per line, to w. The writer is serialized so the
// sink can share w with other sinks.
func RawSink(w io.Writer, log logrus.FieldLogger) dispatch.Consumer {
	var mu sync.Mutex
	return func(batch uat.Batch) {
		mu.Lock()
		defer mu.Unlock()
		if _, err := w.Write(encodeRaw(batch)); err != nil && log != nil {
			log.WithError(err).Warn("raw sink write failed")
		}
	}
}

// JSONSink returns a dispatch consumer that writes one JSON object per
// decodable downlink frame, one per line, to w. Other frame types are
// silently dropped.
func JSONSink(w io.Writer, log logrus.FieldLogger) dispatch.Consumer {
	var mu sync.Mutex
	return func(batch uat.Batch) {
		b := encodeJSON(batch, log)
		if len(b) == 0 {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if _, err := w.Write(b); err != nil && log != nil {
			log.WithError(err).Warn("json sink write failed")
		}
	}
}

func encodeRaw(batch uat.Batch) []byte {
	var out []byte
	for _, m := range batch {
		out = append(out, m.String()...)
		out = append(out, '\n')
	}
	return out
}

func encodeJSON(batch uat.Batch, log logrus.FieldLogger) []byte {
	var out []byte
	for _, m := range batch {
		if !m.Type.IsDownlink() {
			continue
		}
		decoded, err := uat.DecodeAdsb(m)
		if err != nil {
			if log != nil {
				log.WithError(err).Debug("skipping undecodable downlink frame")
			}
			continue
		}
		b, err := decoded.ToJSON()
		if err != nil {
			if log != nil {
				log.WithError(err).Warn("json encode failed")
			}
			continue
		}
		out = append(out, b...)
		out = append(out, '\n')
	}
	return out
}
