package track

import (
	"testing"
	"time"

	"github.com/zberry/dump978/pkg/uat"
)

// testPayload is a state vector frame: address ABCDEF, position 45N 90W,
// NIC 8, pressure altitude 5000 ft, airborne at 100 kt due north, -640 fpm.
func testPayload() []byte {
	return []byte{
		0x00,
		0xab, 0xcd, 0xef,
		0x40, 0x00, 0x01,
		0x80, 0x00, 0x00,
		0x0f, 0x18,
		0x01, 0x94,
		0x00, 0xe0,
		0xb0, 0x00,
	}
}

func testMessage(ts uint64) uat.Message {
	return uat.Message{Type: uat.DownlinkShort, Payload: testPayload(), Timestamp: ts}
}

func TestTrackerHandleMessages(t *testing.T) {
	tr := NewTracker(0, func() uint64 { return 0 }, nil)

	tr.HandleMessages(uat.Batch{testMessage(1000), testMessage(2000)})

	if tr.Len() != 1 {
		t.Fatalf("Expected 1 target, got %d", tr.Len())
	}

	key := AddressKey{Qualifier: uat.ADSBICAO, Address: 0xabcdef}
	ac, ok := tr.Aircraft()[key]
	if !ok {
		t.Fatal("Expected target under its address key")
	}

	if ac.Messages != 2 {
		t.Errorf("Expected 2 messages, got %d", ac.Messages)
	}
	if ac.LastMessageTime != 2000 {
		t.Errorf("Expected last message time 2000, got %d", ac.LastMessageTime)
	}
	if !ac.Position.Valid() || ac.Position.Value().Lat != 45.0 {
		t.Errorf("Expected position 45N, got %+v", ac.Position.Value())
	}
	if !ac.NIC.Valid() || ac.NIC.Value() != 8 {
		t.Errorf("Expected NIC 8, got %d", ac.NIC.Value())
	}
	if !ac.HorizContainment.Valid() || ac.HorizContainment.Value() != 185.2 {
		t.Errorf("Expected containment radius 185.2, got %f", ac.HorizContainment.Value())
	}
	if !ac.PressureAltitude.Valid() || ac.PressureAltitude.Value() != 5000 {
		t.Errorf("Expected pressure altitude 5000, got %d", ac.PressureAltitude.Value())
	}
	if !ac.AirGround.Valid() || ac.AirGround.Value() != uat.AirborneSubsonic {
		t.Errorf("Expected airborne, got %v", ac.AirGround.Value())
	}
	if !ac.GroundSpeed.Valid() || ac.GroundSpeed.Value() != 100 {
		t.Errorf("Expected ground speed 100, got %d", ac.GroundSpeed.Value())
	}
	if !ac.BaroVerticalRate.Valid() || ac.BaroVerticalRate.Value() != -640 {
		t.Errorf("Expected baro rate -640, got %d", ac.BaroVerticalRate.Value())
	}

	// Same value twice: changed stays at the first stamp, updated moves.
	if ac.PressureAltitude.Changed() != 1000 {
		t.Errorf("Expected altitude changed stamp 1000, got %d", ac.PressureAltitude.Changed())
	}
	if ac.PressureAltitude.Updated() != 2000 {
		t.Errorf("Expected altitude updated stamp 2000, got %d", ac.PressureAltitude.Updated())
	}
}

// targetStatePayload extends testPayload to a payload type 3 frame carrying
// a mode status element (callsign N123AB, version 2, SIL 3) and a target
// state element (MCP altitude 5024 ft, QNH 1000.0 hPa, heading 90 degrees,
// autopilot and LNAV engaged).
func targetStatePayload() []byte {
	p := make([]byte, 34)
	copy(p, testPayload())
	p[0] = 0x18

	p[17], p[18] = 0x09, 0xd9
	p[19], p[20] = 0x0d, 0x02
	p[21], p[22] = 0x4a, 0x84
	p[23] = 0x0b
	p[25] = 0xa5
	p[26] = 0x02

	p[29], p[30], p[31], p[32], p[33] = 0x09, 0xe7, 0xdd, 0x01, 0x88
	return p
}

func TestTrackerTargetState(t *testing.T) {
	tr := NewTracker(0, func() uint64 { return 0 }, nil)

	tr.HandleMessages(uat.Batch{{Type: uat.DownlinkLong, Payload: targetStatePayload(), Timestamp: 1000}})

	key := AddressKey{Qualifier: uat.ADSBICAO, Address: 0xabcdef}
	ac, ok := tr.Aircraft()[key]
	if !ok {
		t.Fatal("Expected target under its address key")
	}

	if !ac.SelectedAltitudeMCP.Valid() || ac.SelectedAltitudeMCP.Value() != 5024 {
		t.Errorf("Expected MCP altitude 5024, got %d", ac.SelectedAltitudeMCP.Value())
	}
	if ac.SelectedAltitudeFMS.Valid() {
		t.Errorf("Expected no FMS altitude, got %d", ac.SelectedAltitudeFMS.Value())
	}
	if !ac.BaroSetting.Valid() || ac.BaroSetting.Value() != 1000.0 {
		t.Errorf("Expected baro setting 1000.0, got %f", ac.BaroSetting.Value())
	}
	if !ac.SelectedHeading.Valid() || ac.SelectedHeading.Value() != 90.0 {
		t.Errorf("Expected selected heading 90, got %f", ac.SelectedHeading.Value())
	}
	want := uat.NavModes{Autopilot: true, LNAV: true}
	if !ac.NavModes.Valid() || ac.NavModes.Value() != want {
		t.Errorf("Expected %+v, got %+v", want, ac.NavModes.Value())
	}
	if !ac.SILSupplement.Valid() || ac.SILSupplement.Value() != uat.SILPerHour {
		t.Errorf("Expected per-hour SIL supplement, got %v", ac.SILSupplement.Value())
	}
}

func TestTrackerSeparatesQualifiers(t *testing.T) {
	tr := NewTracker(0, func() uint64 { return 0 }, nil)

	adsb := testMessage(1000)
	tisb := testMessage(1000)
	tisb.Payload = append([]byte(nil), tisb.Payload...)
	tisb.Payload[0] = byte(uat.TISBICAO) // same address, TIS-B qualifier

	tr.HandleMessages(uat.Batch{adsb, tisb})

	if tr.Len() != 2 {
		t.Fatalf("Expected 2 targets for distinct qualifiers, got %d", tr.Len())
	}
}

func TestTrackerIgnoresUplinkAndJunk(t *testing.T) {
	tr := NewTracker(0, func() uint64 { return 0 }, nil)

	tr.HandleMessages(uat.Batch{
		{Type: uat.Uplink, Payload: make([]byte, 34), Timestamp: 1000},
		{Type: uat.DownlinkShort, Payload: []byte{0x01}, Timestamp: 1000},
	})

	if tr.Len() != 0 {
		t.Errorf("Expected no targets, got %d", tr.Len())
	}
}

func TestTrackerPurgeOld(t *testing.T) {
	now := uint64(1000)
	tr := NewTracker(0, func() uint64 { return now }, nil)

	tr.HandleMessages(uat.Batch{testMessage(1000)})

	timeout := uint64(DefaultTimeout / time.Millisecond)

	// Exactly at the timeout the target survives.
	now = 1000 + timeout
	tr.PurgeOld()
	if tr.Len() != 1 {
		t.Fatalf("Expected target retained at the timeout boundary, got %d targets", tr.Len())
	}

	// One millisecond past it is gone, and a second purge is a no-op.
	now = 1000 + timeout + 1
	tr.PurgeOld()
	if tr.Len() != 0 {
		t.Fatalf("Expected target purged past the timeout, got %d targets", tr.Len())
	}
	tr.PurgeOld()
	if tr.Len() != 0 {
		t.Errorf("Expected purge to be idempotent")
	}
}

func TestTrackerSnapshotIsACopy(t *testing.T) {
	tr := NewTracker(0, func() uint64 { return 0 }, nil)
	tr.HandleMessages(uat.Batch{testMessage(1000)})

	key := AddressKey{Qualifier: uat.ADSBICAO, Address: 0xabcdef}
	snap := tr.Aircraft()
	ac := snap[key]
	ac.GroundSpeed.Update(999, 5000)
	snap[key] = ac

	if got := tr.Aircraft()[key].GroundSpeed.Value(); got != 100 {
		t.Errorf("Expected snapshot mutation not to leak into the tracker, got speed %d", got)
	}
}
