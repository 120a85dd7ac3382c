package output

import (
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zberry/dump978/pkg/dispatch"
	"github.com/zberry/dump978/pkg/uat"
)

const (
	// connQueueDepth bounds the per-connection output queue. A connection
	// that falls this many batches behind is dropped rather than allowed
	// to block the dispatch path.
	connQueueDepth = 64

	// writeTimeout bounds a single socket write.
	writeTimeout = 30 * time.Second
)

// ConnectionFactory wraps an accepted socket as a dispatch consumer. The
// returned connection owns its lifecycle: it registers itself on creation and
// deregisters and closes the socket on any write error or peer disconnect.
type ConnectionFactory func(conn net.Conn, d *dispatch.Dispatch, log logrus.FieldLogger)

// NewRawConnection serves the raw text feed on conn.
func NewRawConnection(conn net.Conn, d *dispatch.Dispatch, log logrus.FieldLogger) {
	newConnection(conn, d, log, "raw", func(batch uat.Batch) []byte {
		return encodeRaw(batch)
	})
}

// NewJSONConnection serves the decoded JSON feed on conn. Only downlink
// short/long frames are representable; others are dropped.
func NewJSONConnection(conn net.Conn, d *dispatch.Dispatch, log logrus.FieldLogger) {
	newConnection(conn, d, log, "json", func(batch uat.Batch) []byte {
		return encodeJSON(batch, log)
	})
}

// connection adapts one accepted socket into a dispatch consumer. Encoded
// batches go through a bounded queue drained by a writer goroutine, so the
// dispatch callback never blocks on the network.
type connection struct {
	conn   net.Conn
	d      *dispatch.Dispatch
	id     dispatch.ClientID
	out    chan []byte
	done   chan struct{}
	closer sync.Once
	reason string
	log    logrus.FieldLogger
}

func newConnection(conn net.Conn, d *dispatch.Dispatch, log logrus.FieldLogger, feed string, encode func(uat.Batch) []byte) {
	if log != nil {
		log = log.WithFields(logrus.Fields{"feed": feed, "peer": conn.RemoteAddr().String()})
		log.Info("connection accepted")
	}

	c := &connection{
		conn: conn,
		d:    d,
		out:  make(chan []byte, connQueueDepth),
		done: make(chan struct{}),
		log:  log,
	}

	c.id = d.AddClient(func(batch uat.Batch) {
		b := encode(batch)
		if len(b) == 0 {
			return
		}
		select {
		case <-c.done:
		case c.out <- b:
		default:
			// Queue full: the peer is not keeping up. Dropping the
			// connection here keeps the dispatch path non-blocking.
			c.shutdown("dropping slow consumer")
		}
	})

	go c.writeLoop()
	go c.readLoop()
	go c.reap()
}

func (c *connection) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case b := <-c.out:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if _, err := c.conn.Write(b); err != nil {
				c.shutdown("write failed: " + err.Error())
				return
			}
		}
	}
}

// readLoop exists only to notice a peer disconnect promptly; both feeds are
// write-only and any received bytes are discarded.
func (c *connection) readLoop() {
	buf := make([]byte, 4096)
	for {
		if _, err := c.conn.Read(buf); err != nil {
			c.shutdown("peer disconnected")
			return
		}
	}
}

// shutdown records the first close reason and signals the loops to stop.
// Releasing resources is left to reap: the dispatch callback may run before
// the accept goroutine has finished assigning the client id, so nothing
// invoked from the callback may touch it.
func (c *connection) shutdown(reason string) {
	c.closer.Do(func() {
		c.reason = reason
		close(c.done)
	})
}

// reap deregisters the consumer and closes the socket once the connection
// shuts down. It is started after registration completes, so the client id
// is stable by the time it runs.
func (c *connection) reap() {
	<-c.done
	c.d.RemoveClient(c.id)
	c.conn.Close()
	if c.log != nil {
		c.log.Info("connection closed: " + c.reason)
	}
}
