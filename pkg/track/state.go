package track

import (
	"github.com/zberry/dump978/pkg/uat"
)

// AddressKey is the unique identity of a tracked target. Two keys with the
// same address but different qualifiers are distinct entities even when they
// describe the same physical aircraft (e.g. direct ADS-B vs TIS-B relay).
type AddressKey struct {
	Qualifier uat.AddressQualifier
	Address   uint32
}

// AircraftState is the canonical state of one tracked target. All fields are
// AgedFields; Messages and LastMessageTime cover the target as a whole.
type AircraftState struct {
	Qualifier uat.AddressQualifier
	Address   uint32

	Messages        uint64
	LastMessageTime uint64

	Position         AgedField[uat.Position]
	NIC              AgedField[int]
	HorizContainment AgedField[float64]

	PressureAltitude  AgedField[int]
	GeometricAltitude AgedField[int]
	BaroVerticalRate  AgedField[int]
	GeomVerticalRate  AgedField[int]

	GroundSpeed AgedField[int]
	TrueTrack   AgedField[float64]
	MagHeading  AgedField[float64]
	TrueHeading AgedField[float64]

	Squawk    AgedField[string]
	Callsign  AgedField[string]
	AirGround AgedField[uat.AirGroundState]
	Emergency AgedField[uat.EmergencyStatus]

	NavModes            AgedField[uat.NavModes]
	SelectedAltitudeMCP AgedField[int]
	SelectedAltitudeFMS AgedField[int]
	SelectedHeading     AgedField[float64]
	BaroSetting         AgedField[float64]

	NACp          AgedField[int]
	NACv          AgedField[int]
	SIL           AgedField[int]
	SILSupplement AgedField[uat.SILSupplement]
	NICBaro       AgedField[int]

	EmitterCategory AgedField[int]
	MOPSVersion     AgedField[int]
}
