// Package dispatch provides the in-process fan-out hub between the receive
// pipeline and its consumers: stdout sinks, network connections, and the
// aircraft tracker.
package dispatch

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/zberry/dump978/pkg/uat"
)

// Consumer receives message batches. Batches are shared and immutable; a
// consumer must copy or enqueue whatever it needs before returning and must
// never block the caller.
type Consumer func(uat.Batch)

// ClientID identifies a registered consumer for later removal.
type ClientID uint64

type client struct {
	id ClientID
	fn Consumer
}

// Dispatch delivers each batch synchronously to every registered consumer,
// in registration order. Delivery is at-most-once and live-only: nothing is
// queued or replayed for consumers registered later.
type Dispatch struct {
	mu      sync.Mutex
	clients []client
	nextID  ClientID

	log logrus.FieldLogger
}

// New creates an empty hub.
func New(log logrus.FieldLogger) *Dispatch {
	return &Dispatch{log: log, nextID: 1}
}

// AddClient registers a consumer and returns its removal handle. The
// consumer sees every batch dispatched after registration.
func (d *Dispatch) AddClient(fn Consumer) ClientID {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.nextID
	d.nextID++
	d.clients = append(d.clients, client{id: id, fn: fn})
	return id
}

// RemoveClient deregisters a consumer. Safe to call from within a dispatch
// callback: the batch in progress is still delivered in full to every
// consumer that was registered when it began.
func (d *Dispatch) RemoveClient(id ClientID) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, c := range d.clients {
		if c.id == id {
			d.clients = append(d.clients[:i], d.clients[i+1:]...)
			return
		}
	}
}

// Len returns the number of registered consumers.
func (d *Dispatch) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.clients)
}

// Dispatch delivers the batch to all currently registered consumers. A
// panicking consumer is isolated: the failure is logged and delivery
// continues with the remaining consumers.
func (d *Dispatch) Dispatch(batch uat.Batch) {
	if len(batch) == 0 {
		return
	}

	d.mu.Lock()
	snapshot := make([]client, len(d.clients))
	copy(snapshot, d.clients)
	d.mu.Unlock()

	for _, c := range snapshot {
		d.deliver(c, batch)
	}
}

func (d *Dispatch) deliver(c client, batch uat.Batch) {
	defer func() {
		if r := recover(); r != nil {
			if d.log != nil {
				d.log.WithField("client", c.id).Errorf("dispatch consumer panicked: %v", r)
			}
		}
	}()
	c.fn(batch)
}
