// Package report derives a rate-limited, change-driven TSV feed of aircraft
// state from the tracker. Each sweep evaluates every tracked target against
// its last reported snapshot and emits one line per target with something new
// to say, under several interacting rate tiers.
package report

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zberry/dump978/pkg/track"
	"github.com/zberry/dump978/pkg/uat"
)

// TSVVersion is the report grammar version tag.
const TSVVersion = "4U"

// DefaultInterval is the default sweep interval.
const DefaultInterval = time.Second

const (
	slowResyncAge  = 300000
	altChangeFt    = 50
	vrateChangeFpm = 500
	angleChangeDeg = 2
	speedChangeKt  = 25
)

// reportedState is the per-target reporting baseline: the times of the last
// full and slow-field reports and a snapshot of the state at the moment of
// the last report, used only for delta comparison.
type reportedState struct {
	reportTime     uint64
	slowReportTime uint64
	state          track.AircraftState
}

// Config configures a Reporter.
type Config struct {
	Tracker *track.Tracker

	// Out receives report lines. Injectable so tests can capture output.
	Out io.Writer

	// Interval between report sweeps. Zero selects DefaultInterval.
	Interval time.Duration

	// Clock drives all reporting decisions. Nil selects the wall clock.
	Clock track.Clock

	Log logrus.FieldLogger
}

// Reporter runs the report and purge sweeps. It is not safe for concurrent
// use; Run owns all reporter state once started.
type Reporter struct {
	tracker  *track.Tracker
	out      io.Writer
	interval time.Duration
	clock    track.Clock
	log      logrus.FieldLogger

	reported map[track.AddressKey]*reportedState
}

// New creates a Reporter. The purge sweep cadence is a quarter of the
// tracker's retention timeout.
func New(cfg Config) *Reporter {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = track.WallClock
	}
	return &Reporter{
		tracker:  cfg.Tracker,
		out:      cfg.Out,
		interval: cfg.Interval,
		clock:    cfg.Clock,
		log:      cfg.Log,
		reported: make(map[track.AddressKey]*reportedState),
	}
}

// Run executes both periodic sweeps until the context is cancelled. Each
// sweep reschedules itself relative to its own completion, so cadence drifts
// under load rather than bunching up; cancellation prevents any further
// rescheduling.
func (r *Reporter) Run(ctx context.Context) {
	reportTimer := time.NewTimer(r.interval)
	defer reportTimer.Stop()

	purgeInterval := r.tracker.Timeout() / 4
	purgeTimer := time.NewTimer(purgeInterval)
	defer purgeTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-reportTimer.C:
			r.Sweep()
			reportTimer.Reset(r.interval)
		case <-purgeTimer.C:
			r.Purge()
			purgeTimer.Reset(purgeInterval)
		}
	}
}

// Sweep evaluates every tracked target once.
func (r *Reporter) Sweep() {
	now := r.clock()
	for key, ac := range r.tracker.Aircraft() {
		r.reportOne(key, ac, now)
	}
}

// Purge drops stale targets from the tracker and prunes reporting baselines
// whose target no longer exists.
func (r *Reporter) Purge() {
	r.tracker.PurgeOld()

	live := r.tracker.Aircraft()
	for key := range r.reported {
		if _, ok := live[key]; !ok {
			delete(r.reported, key)
		}
	}
}

func (r *Reporter) reportOne(key track.AddressKey, ac track.AircraftState, now uint64) {
	last := r.reported[key]
	if last == nil {
		last = &reportedState{}
		r.reported[key] = last
	}

	if ac.LastMessageTime <= last.reportTime {
		// nothing received since the last report
		return
	}

	// When both direct ADS-B and relayed TIS-B state exist for an address,
	// prefer the direct data. Resetting the report times here means a later
	// switch back to TIS-B produces a full report instead of a stale delta.
	if key.Qualifier == uat.TISBICAO {
		adsb := r.reported[track.AddressKey{Qualifier: uat.ADSBICAO, Address: key.Address}]
		if adsb != nil && adsb.reportTime > 0 {
			last.reportTime = 0
			last.slowReportTime = 0
			return
		}
	}

	changed := r.detectChange(&last.state, &ac)
	immediate := r.detectImmediate(&ac, last.reportTime)

	// Staleness-qualified values used only for rate tier selection.
	var altitude *int
	if !ac.PressureAltitude.Stale(now) {
		v := ac.PressureAltitude.Value()
		altitude = &v
	} else if !ac.GeometricAltitude.Stale(now) {
		v := ac.GeometricAltitude.Value()
		altitude = &v
	}
	var airGround *uat.AirGroundState
	if !ac.AirGround.Stale(now) {
		v := ac.AirGround.Value()
		airGround = &v
	}
	var groundSpeed *int
	if !ac.GroundSpeed.Stale(now) {
		v := ac.GroundSpeed.Value()
		groundSpeed = &v
	}

	var minAge uint64
	switch {
	case immediate:
		// a change we want to emit right away
		minAge = 0
	case airGround != nil && *airGround == uat.OnGround:
		minAge = 1000
	case altitude != nil && *altitude < 500 && (groundSpeed == nil || *groundSpeed < 200):
		// probably on the ground, increase the update rate
		minAge = 1000
	case groundSpeed != nil && *groundSpeed < 100 && (altitude == nil || *altitude < 1000):
		minAge = 1000
	case altitude == nil || *altitude < 10000:
		// below 10000 ft: up to every 5s when changing, 10s otherwise
		if changed {
			minAge = 5000
		} else {
			minAge = 10000
		}
	default:
		// above 10000 ft: up to every 10s when changing, 30s otherwise
		if changed {
			minAge = 10000
		} else {
			minAge = 30000
		}
	}

	forceSlow := now-last.slowReportTime > slowResyncAge

	if now-last.reportTime < minAge {
		// not this time
		return
	}

	line := r.buildLine(key, &ac, last, now, forceSlow)
	if line == "" {
		return
	}

	if _, err := io.WriteString(r.out, line+"\n"); err != nil && r.log != nil {
		r.log.WithError(err).Warn("report write failed")
	}

	if forceSlow {
		last.slowReportTime = now
	}
	last.reportTime = now
	last.state = ac
}

// detectChange compares the continuously varying fields against the last
// reported snapshot. Fields invalid in either snapshot do not participate.
func (r *Reporter) detectChange(last, cur *track.AircraftState) bool {
	if intDelta(last.PressureAltitude, cur.PressureAltitude, altChangeFt) {
		return true
	}
	// Gates on geometric-altitude validity but compares the pressure
	// altitudes, matching upstream faup978 output behavior exactly.
	if last.GeometricAltitude.Valid() && cur.GeometricAltitude.Valid() &&
		absInt(last.PressureAltitude.Value()-cur.PressureAltitude.Value()) >= altChangeFt {
		return true
	}
	if intDelta(last.BaroVerticalRate, cur.BaroVerticalRate, vrateChangeFpm) {
		return true
	}
	if intDelta(last.GeomVerticalRate, cur.GeomVerticalRate, vrateChangeFpm) {
		return true
	}
	if floatDelta(last.TrueTrack, cur.TrueTrack, angleChangeDeg) {
		return true
	}
	if floatDelta(last.TrueHeading, cur.TrueHeading, angleChangeDeg) {
		return true
	}
	if floatDelta(last.MagHeading, cur.MagHeading, angleChangeDeg) {
		return true
	}
	if intDelta(last.GroundSpeed, cur.GroundSpeed, speedChangeKt) {
		return true
	}
	return false
}

// detectImmediate reports whether any discrete, event-like field changed
// since the last report. These always force prompt reporting.
func (r *Reporter) detectImmediate(ac *track.AircraftState, reportTime uint64) bool {
	return ac.SelectedAltitudeMCP.Changed() > reportTime ||
		ac.SelectedAltitudeFMS.Changed() > reportTime ||
		ac.SelectedHeading.Changed() > reportTime ||
		ac.NavModes.Changed() > reportTime ||
		ac.BaroSetting.Changed() > reportTime ||
		ac.Callsign.Changed() > reportTime ||
		ac.Squawk.Changed() > reportTime ||
		ac.AirGround.Changed() > reportTime ||
		ac.Emergency.Changed() > reportTime
}

func intDelta(a, b track.AgedField[int], threshold int) bool {
	if !a.Valid() || !b.Valid() {
		return false
	}
	return absInt(a.Value()-b.Value()) >= threshold
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func floatDelta(a, b track.AgedField[float64], threshold float64) bool {
	if !a.Valid() || !b.Valid() {
		return false
	}
	return math.Abs(a.Value()-b.Value()) >= threshold
}

// buildLine assembles one TSV report line, or "" when no field qualifies.
func (r *Reporter) buildLine(key track.AddressKey, ac *track.AircraftState, last *reportedState, now uint64, forceSlow bool) string {
	source := key.Qualifier.SourceLetter()

	type kv struct{ k, v string }
	var fields []kv

	// Slow fields: emitted only when changed since the last report, or on
	// the periodic full resync.
	slow := func(k string, changed uint64, valid bool, value string) {
		if valid && (forceSlow || changed > last.reportTime) {
			fields = append(fields, kv{k, value})
		}
	}
	slowAged := func(k string, f interface {
		Valid() bool
		Changed() uint64
		UpdateAge(uint64) uint64
	}, value string) {
		if f.Valid() && (forceSlow || f.Changed() > last.reportTime) {
			fields = append(fields, kv{k, fmt.Sprintf("%s %d %s", value, f.UpdateAge(now)/1000, source)})
		}
	}
	aged := func(k string, f interface {
		Valid() bool
		Updated() uint64
		UpdateAge(uint64) uint64
	}, value string) {
		if f.Valid() && f.Updated() > last.reportTime {
			fields = append(fields, kv{k, fmt.Sprintf("%s %d %s", value, f.UpdateAge(now)/1000, source)})
		}
	}

	slow("uat_version", ac.MOPSVersion.Changed(), ac.MOPSVersion.Valid(),
		fmt.Sprintf("%d", ac.MOPSVersion.Value()))
	slow("category", ac.EmitterCategory.Changed(), ac.EmitterCategory.Valid(),
		formatCategory(ac.EmitterCategory.Value()))
	slowAged("nac_p", ac.NACp, fmt.Sprintf("%d", ac.NACp.Value()))
	slowAged("nac_v", ac.NACv, fmt.Sprintf("%d", ac.NACv.Value()))
	slowAged("sil", ac.SIL, fmt.Sprintf("%d", ac.SIL.Value()))
	slowAged("sil_type", ac.SILSupplement, ac.SILSupplement.Value().String())
	slowAged("nic_baro", ac.NICBaro, fmt.Sprintf("%d", ac.NICBaro.Value()))

	aged("airGround", ac.AirGround, formatAirGround(ac.AirGround.Value()))
	aged("squawk", ac.Squawk, "{"+ac.Squawk.Value()+"}")
	aged("ident", ac.Callsign, "{"+ac.Callsign.Value()+"}")
	aged("alt", ac.PressureAltitude, fmt.Sprintf("%d", ac.PressureAltitude.Value()))
	aged("position", ac.Position, formatPosition(ac))
	aged("alt_gnss", ac.GeometricAltitude, fmt.Sprintf("%d", ac.GeometricAltitude.Value()))
	aged("vrate", ac.BaroVerticalRate, fmt.Sprintf("%d", ac.BaroVerticalRate.Value()))
	aged("vrate_geom", ac.GeomVerticalRate, fmt.Sprintf("%d", ac.GeomVerticalRate.Value()))
	aged("speed", ac.GroundSpeed, fmt.Sprintf("%d", ac.GroundSpeed.Value()))
	aged("track", ac.TrueTrack, fmt.Sprintf("%.1f", ac.TrueTrack.Value()))
	aged("heading_magnetic", ac.MagHeading, fmt.Sprintf("%.1f", ac.MagHeading.Value()))
	aged("heading_true", ac.TrueHeading, fmt.Sprintf("%.1f", ac.TrueHeading.Value()))
	aged("nav_alt_mcp", ac.SelectedAltitudeMCP, fmt.Sprintf("%d", ac.SelectedAltitudeMCP.Value()))
	aged("nav_alt_fms", ac.SelectedAltitudeFMS, fmt.Sprintf("%d", ac.SelectedAltitudeFMS.Value()))
	aged("nav_heading", ac.SelectedHeading, fmt.Sprintf("%.0f", ac.SelectedHeading.Value()))
	aged("nav_modes", ac.NavModes, formatNavModes(ac.NavModes.Value()))
	aged("nav_qnh", ac.BaroSetting, fmt.Sprintf("%.1f", ac.BaroSetting.Value()))
	aged("emergency", ac.Emergency, ac.Emergency.Value().String())

	if len(fields) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "_v\t%s\tclock\t%d", TSVVersion, now/1000)

	if key.Qualifier.IsICAO() {
		fmt.Fprintf(&b, "\thexid\t%06X", key.Address)
	} else {
		fmt.Fprintf(&b, "\totherid\t%06X", key.Address)
	}

	if forceSlow || !key.Qualifier.IsICAO() {
		fmt.Fprintf(&b, "\taddrtype\t%s", key.Qualifier.String())
	}

	for _, f := range fields {
		fmt.Fprintf(&b, "\t%s\t%s", f.k, f.v)
	}
	return b.String()
}

// formatCategory re-encodes the UAT emitter category in the 1090ES-style
// hex byte expected downstream.
func formatCategory(category int) string {
	asHex := 0xA0 + (category & 7) + ((category & 0x18) << 1)
	return fmt.Sprintf("%02X", asHex)
}

// formatAirGround matches the upstream faup978 value map, which renders all
// known states as "A+".
func formatAirGround(s uat.AirGroundState) string {
	switch s {
	case uat.AirborneSubsonic, uat.AirborneSupersonic, uat.OnGround:
		return "A+"
	default:
		return "?"
	}
}

func formatPosition(ac *track.AircraftState) string {
	p := ac.Position.Value()
	nic := 0
	if ac.NIC.Valid() {
		nic = ac.NIC.Value()
	}
	rc := 0.0
	if ac.HorizContainment.Valid() {
		rc = ac.HorizContainment.Value()
	}
	return fmt.Sprintf("{%.5f %.5f %d %.0f}", p.Lat, p.Lon, nic, math.Ceil(rc))
}

func formatNavModes(m uat.NavModes) string {
	var parts []string
	if m.Autopilot {
		parts = append(parts, "autopilot")
	}
	if m.VNAV {
		parts = append(parts, "vnav")
	}
	if m.AltHold {
		parts = append(parts, "althold")
	}
	if m.Approach {
		parts = append(parts, "approach")
	}
	if m.LNAV {
		parts = append(parts, "lnav")
	}
	return "{" + strings.Join(parts, " ") + "}"
}
