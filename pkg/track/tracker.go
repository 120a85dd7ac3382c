package track

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zberry/dump978/pkg/uat"
)

// DefaultTimeout is how long a target is retained after its last message.
const DefaultTimeout = 300 * time.Second

// Tracker owns the live aircraft table. It consumes decoded message batches
// (as a dispatch client) and exposes a snapshot view plus a staleness purge.
//
// The table is guarded by a mutex: batches arrive on the receive path while
// the reporter reads snapshots on its own schedule. Aircraft() hands out
// copies, never references into the table.
type Tracker struct {
	mu       sync.RWMutex
	aircraft map[AddressKey]*AircraftState

	timeout uint64
	clock   Clock
	log     logrus.FieldLogger
}

// NewTracker creates a tracker with the given retention timeout. A zero
// timeout selects DefaultTimeout; a nil clock selects the wall clock.
func NewTracker(timeout time.Duration, clock Clock, log logrus.FieldLogger) *Tracker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if clock == nil {
		clock = WallClock
	}
	return &Tracker{
		aircraft: make(map[AddressKey]*AircraftState),
		timeout:  uint64(timeout / time.Millisecond),
		clock:    clock,
		log:      log,
	}
}

// WallClock is the default Clock.
func WallClock() uint64 {
	return uint64(time.Now().UnixMilli())
}

// Timeout returns the retention timeout.
func (t *Tracker) Timeout() time.Duration {
	return time.Duration(t.timeout) * time.Millisecond
}

// HandleMessages updates the table from a batch of received frames. It is
// intended to be registered as a dispatch client; uplink frames and frames
// that fail to decode are ignored.
func (t *Tracker) HandleMessages(batch uat.Batch) {
	for _, m := range batch {
		if !m.Type.IsDownlink() {
			continue
		}
		decoded, err := uat.DecodeAdsb(m)
		if err != nil {
			if t.log != nil {
				t.log.WithError(err).Debug("dropping undecodable downlink frame")
			}
			continue
		}
		t.update(decoded, m.Timestamp)
	}
}

func (t *Tracker) update(m *uat.AdsbMessage, now uint64) {
	key := AddressKey{Qualifier: m.Qualifier, Address: m.AddressValue()}

	t.mu.Lock()
	defer t.mu.Unlock()

	ac := t.aircraft[key]
	if ac == nil {
		ac = &AircraftState{Qualifier: key.Qualifier, Address: key.Address}
		t.aircraft[key] = ac
	}

	ac.Messages++
	if now > ac.LastMessageTime {
		ac.LastMessageTime = now
	}

	if m.Position != nil {
		ac.Position.Update(*m.Position, now)
		if m.NIC != nil {
			ac.NIC.Update(*m.NIC, now)
			ac.HorizContainment.Update(uat.ContainmentRadius(*m.NIC), now)
		}
	}
	if m.PressureAltitude != nil {
		ac.PressureAltitude.Update(*m.PressureAltitude, now)
	}
	if m.GeometricAltitude != nil {
		ac.GeometricAltitude.Update(*m.GeometricAltitude, now)
	}
	if ag, ok := m.AirGroundState(); ok {
		ac.AirGround.Update(ag, now)
	}
	if m.GroundSpeed != nil {
		ac.GroundSpeed.Update(*m.GroundSpeed, now)
	}
	if m.TrueTrack != nil {
		ac.TrueTrack.Update(*m.TrueTrack, now)
	}
	if m.MagHeading != nil {
		ac.MagHeading.Update(*m.MagHeading, now)
	}
	if m.TrueHeading != nil {
		ac.TrueHeading.Update(*m.TrueHeading, now)
	}
	if m.VerticalRateBaro != nil {
		ac.BaroVerticalRate.Update(*m.VerticalRateBaro, now)
	}
	if m.VerticalRateGeom != nil {
		ac.GeomVerticalRate.Update(*m.VerticalRateGeom, now)
	}
	if m.Callsign != nil {
		ac.Callsign.Update(*m.Callsign, now)
	}
	if m.Squawk != nil {
		ac.Squawk.Update(*m.Squawk, now)
	}
	if m.EmitterCategory != nil {
		ac.EmitterCategory.Update(*m.EmitterCategory, now)
	}
	if e, ok := m.EmergencyStatus(); ok {
		ac.Emergency.Update(e, now)
	}
	if m.UATVersion != nil {
		ac.MOPSVersion.Update(*m.UATVersion, now)
	}
	if m.SIL != nil {
		ac.SIL.Update(*m.SIL, now)
	}
	if supp, ok := m.SILSupplementValue(); ok {
		ac.SILSupplement.Update(supp, now)
	}
	if m.NACp != nil {
		ac.NACp.Update(*m.NACp, now)
	}
	if m.NACv != nil {
		ac.NACv.Update(*m.NACv, now)
	}
	if m.NICBaro != nil {
		ac.NICBaro.Update(*m.NICBaro, now)
	}
	if m.SelectedAltitudeMCP != nil {
		ac.SelectedAltitudeMCP.Update(*m.SelectedAltitudeMCP, now)
	}
	if m.SelectedAltitudeFMS != nil {
		ac.SelectedAltitudeFMS.Update(*m.SelectedAltitudeFMS, now)
	}
	if m.SelectedHeading != nil {
		ac.SelectedHeading.Update(*m.SelectedHeading, now)
	}
	if m.NavModes != nil {
		ac.NavModes.Update(*m.NavModes, now)
	}
	if m.BaroSetting != nil {
		ac.BaroSetting.Update(*m.BaroSetting, now)
	}
}

// Aircraft returns a snapshot copy of the live table.
func (t *Tracker) Aircraft() map[AddressKey]AircraftState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[AddressKey]AircraftState, len(t.aircraft))
	for key, ac := range t.aircraft {
		out[key] = *ac
	}
	return out
}

// Len returns the number of tracked targets.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.aircraft)
}

// PurgeOld removes targets whose last-message age exceeds the retention
// timeout. Idempotent when no updates arrive in between.
func (t *Tracker) PurgeOld() {
	now := t.clock()

	t.mu.Lock()
	defer t.mu.Unlock()

	for key, ac := range t.aircraft {
		if now >= ac.LastMessageTime && now-ac.LastMessageTime > t.timeout {
			delete(t.aircraft, key)
			if t.log != nil {
				t.log.WithFields(logrus.Fields{
					"address":  key.Address,
					"addrtype": key.Qualifier.String(),
				}).Debug("purged stale target")
			}
		}
	}
}
