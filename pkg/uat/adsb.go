package uat

import (
	"encoding/json"
	"fmt"
	"math"
)

// AirGroundState is the 2-bit air/ground state from the state vector.
type AirGroundState uint8

const (
	AirborneSubsonic AirGroundState = iota
	AirborneSupersonic
	OnGround
	AirGroundReserved
)

// String returns the JSON feed name for the state.
func (s AirGroundState) String() string {
	switch s {
	case AirborneSubsonic:
		return "airborne"
	case AirborneSupersonic:
		return "supersonic"
	case OnGround:
		return "ground"
	default:
		return "reserved"
	}
}

// EmergencyStatus is the 3-bit emergency/priority status from the mode
// status element.
type EmergencyStatus uint8

const (
	EmergencyNone EmergencyStatus = iota
	EmergencyGeneral
	EmergencyMedical
	EmergencyMinFuel
	EmergencyNordo
	EmergencyUnlawful
	EmergencyDowned
)

// String returns the feed name for the status, "unknown" for reserved values.
func (e EmergencyStatus) String() string {
	switch e {
	case EmergencyNone:
		return "none"
	case EmergencyGeneral:
		return "general"
	case EmergencyMedical:
		return "lifeguard"
	case EmergencyMinFuel:
		return "minfuel"
	case EmergencyNordo:
		return "nordo"
	case EmergencyUnlawful:
		return "unlawful"
	case EmergencyDowned:
		return "downed"
	default:
		return "unknown"
	}
}

// SILSupplement qualifies the SIL probability basis.
type SILSupplement uint8

const (
	SILPerHour SILSupplement = iota
	SILPerSample
)

// String returns the feed name for the supplement.
func (s SILSupplement) String() string {
	switch s {
	case SILPerHour:
		return "perhour"
	case SILPerSample:
		return "persample"
	default:
		return "unknown"
	}
}

// NavModes is the set of active autoflight mode indicators from the target
// state element.
type NavModes struct {
	Autopilot bool `json:"autopilot,omitempty"`
	VNAV      bool `json:"vnav,omitempty"`
	AltHold   bool `json:"althold,omitempty"`
	Approach  bool `json:"approach,omitempty"`
	LNAV      bool `json:"lnav,omitempty"`
}

// Position is a decoded WGS84 position in decimal degrees.
type Position struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// AltitudeType distinguishes barometric from geometric altitude sources.
type AltitudeType uint8

const (
	AltBaro AltitudeType = iota
	AltGeo
)

// base40Alphabet is the character set for the packed callsign field.
// Indexes 36-37 decode to space, 38-39 to '.'.
const base40Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ  .."

// AdsbMessage is the structured decode of a downlink frame, suitable for the
// newline-delimited JSON feed. Optional fields are pointers and omitted from
// the JSON encoding when the frame did not carry them.
type AdsbMessage struct {
	Address   string           `json:"address"`
	Qualifier AddressQualifier `json:"-"`
	AddrType  string           `json:"address_qualifier"`
	FrameType string           `json:"type"`
	Timestamp uint64           `json:"timestamp"`

	Position          *Position `json:"position,omitempty"`
	NIC               *int      `json:"nic,omitempty"`
	PressureAltitude  *int      `json:"pressure_altitude,omitempty"`
	GeometricAltitude *int      `json:"geometric_altitude,omitempty"`
	AirGround         *string   `json:"airground_state,omitempty"`
	GroundSpeed       *int      `json:"ground_speed,omitempty"`
	TrueTrack         *float64  `json:"true_track,omitempty"`
	MagHeading        *float64  `json:"heading_magnetic,omitempty"`
	TrueHeading       *float64  `json:"heading_true,omitempty"`
	VerticalRateBaro  *int      `json:"vertical_rate_barometric,omitempty"`
	VerticalRateGeom  *int      `json:"vertical_rate_geometric,omitempty"`

	Callsign        *string `json:"callsign,omitempty"`
	Squawk          *string `json:"squawk,omitempty"`
	EmitterCategory *int    `json:"emitter_category,omitempty"`
	Emergency       *string `json:"emergency,omitempty"`
	UATVersion      *int    `json:"uat_version,omitempty"`
	SIL             *int    `json:"sil,omitempty"`
	SILSupplement   *string `json:"sil_supplement,omitempty"`
	NACp            *int    `json:"nac_p,omitempty"`
	NACv            *int    `json:"nac_v,omitempty"`
	NICBaro         *int    `json:"nic_baro,omitempty"`
	IdentActive     *bool   `json:"ident_active,omitempty"`

	SelectedAltitudeMCP *int      `json:"selected_altitude_mcp,omitempty"`
	SelectedAltitudeFMS *int      `json:"selected_altitude_fms,omitempty"`
	SelectedHeading     *float64  `json:"selected_heading,omitempty"`
	NavModes            *NavModes `json:"nav_modes,omitempty"`
	BaroSetting         *float64  `json:"barometric_pressure_setting,omitempty"`

	Raw string `json:"raw"`

	// decoded but not part of the JSON surface
	airGroundState *AirGroundState
	emergency      *EmergencyStatus
	silSupplement  *SILSupplement
}

// AirGroundState returns the decoded air/ground state, if present.
func (a *AdsbMessage) AirGroundState() (AirGroundState, bool) {
	if a.airGroundState == nil {
		return AirGroundReserved, false
	}
	return *a.airGroundState, true
}

// EmergencyStatus returns the decoded emergency/priority status, if present.
func (a *AdsbMessage) EmergencyStatus() (EmergencyStatus, bool) {
	if a.emergency == nil {
		return EmergencyNone, false
	}
	return *a.emergency, true
}

// SILSupplementValue returns the decoded SIL probability basis, if present.
func (a *AdsbMessage) SILSupplementValue() (SILSupplement, bool) {
	if a.silSupplement == nil {
		return SILPerHour, false
	}
	return *a.silSupplement, true
}

// AddressValue returns the 24-bit numeric address.
func (a *AdsbMessage) AddressValue() uint32 {
	var v uint32
	fmt.Sscanf(a.Address, "%06X", &v)
	return v
}

// ToJSON encodes the message as a single JSON object without trailing
// newline.
func (a *AdsbMessage) ToJSON() ([]byte, error) {
	return json.Marshal(a)
}

// DecodeAdsb decodes the state vector, mode status, and auxiliary state
// vector elements of a downlink frame. Non-downlink frames are rejected.
func DecodeAdsb(m Message) (*AdsbMessage, error) {
	if !m.Type.IsDownlink() {
		return nil, fmt.Errorf("cannot decode %s frame as ADS-B", m.Type)
	}
	p := m.Payload
	if len(p) < 18 {
		return nil, fmt.Errorf("downlink payload too short: %d bytes", len(p))
	}

	payloadType := int(p[0] >> 3)
	qualifier := AddressQualifier(p[0] & 0x07)
	address := uint32(p[1])<<16 | uint32(p[2])<<8 | uint32(p[3])

	out := &AdsbMessage{
		Address:   fmt.Sprintf("%06X", address),
		Qualifier: qualifier,
		AddrType:  qualifier.String(),
		FrameType: m.Type.String(),
		Timestamp: m.Timestamp,
		Raw:       m.String(),
	}

	decodeStateVector(p, out)
	if payloadType == 1 || payloadType == 3 {
		decodeModeStatus(p, out)
	}
	if payloadType == 1 || payloadType == 2 || payloadType == 5 || payloadType == 6 {
		decodeAuxStateVector(p, out)
	}
	switch payloadType {
	case 3:
		decodeTargetState(p, 29, out)
	case 4, 6:
		decodeTargetState(p, 24, out)
	}

	return out, nil
}

func decodeStateVector(p []byte, out *AdsbMessage) {
	rawLat := uint32(p[4])<<15 | uint32(p[5])<<7 | uint32(p[6])>>1
	rawLon := uint32(p[6]&0x01)<<23 | uint32(p[7])<<15 | uint32(p[8])<<7 | uint32(p[9])>>1
	if rawLat != 0 || rawLon != 0 {
		lat := float64(rawLat) * 360.0 / 16777216.0
		if lat > 90 {
			lat -= 180
		}
		lon := float64(rawLon) * 360.0 / 16777216.0
		if lon > 180 {
			lon -= 360
		}
		out.Position = &Position{Lat: lat, Lon: lon}
		nic := int(p[11] & 0x0f)
		out.NIC = &nic
	}

	altType := AltitudeType(p[9] & 0x01)
	if rawAlt := int(p[10])<<4 | int(p[11])>>4; rawAlt != 0 {
		alt := (rawAlt-1)*25 - 1000
		if altType == AltGeo {
			out.GeometricAltitude = &alt
		} else {
			out.PressureAltitude = &alt
		}
	}

	ag := AirGroundState(p[12] >> 6 & 0x03)
	if ag != AirGroundReserved {
		out.airGroundState = &ag
		s := ag.String()
		out.AirGround = &s
	}

	switch ag {
	case AirborneSubsonic, AirborneSupersonic:
		decodeAirborneVelocity(p, ag == AirborneSupersonic, out)
	case OnGround:
		decodeGroundVelocity(p, out)
	}
}

// decodeAirborneVelocity extracts the N/S and E/W velocity components and the
// vertical rate. Components are 11 bits: a sign bit and a 10-bit magnitude
// where zero means "no data" and values are offset by one knot.
func decodeAirborneVelocity(p []byte, supersonic bool, out *AdsbMessage) {
	scale := 1
	if supersonic {
		scale = 4
	}

	var nsVel, ewVel int
	var nsValid, ewValid bool

	rawNS := int(p[12]&0x1f)<<6 | int(p[13])>>2
	if rawNS&0x3ff != 0 {
		nsVel = (rawNS&0x3ff - 1) * scale
		if rawNS&0x400 != 0 {
			nsVel = -nsVel
		}
		nsValid = true
	}
	rawEW := int(p[13]&0x03)<<9 | int(p[14])<<1 | int(p[15])>>7
	if rawEW&0x3ff != 0 {
		ewVel = (rawEW&0x3ff - 1) * scale
		if rawEW&0x400 != 0 {
			ewVel = -ewVel
		}
		ewValid = true
	}

	if nsValid && ewValid {
		speed := int(math.Round(math.Sqrt(float64(nsVel*nsVel + ewVel*ewVel))))
		out.GroundSpeed = &speed
		if nsVel != 0 || ewVel != 0 {
			track := math.Atan2(float64(ewVel), float64(nsVel)) * 180 / math.Pi
			if track < 0 {
				track += 360
			}
			out.TrueTrack = &track
		}
	}

	rawVV := int(p[15]&0x7f)<<4 | int(p[16])>>4
	if rawVV&0x1ff != 0 {
		rate := (rawVV&0x1ff - 1) * 64
		if rawVV&0x200 != 0 {
			rate = -rate
		}
		if rawVV&0x400 != 0 {
			out.VerticalRateBaro = &rate
		} else {
			out.VerticalRateGeom = &rate
		}
	}
}

// decodeGroundVelocity extracts ground speed and the track/heading angle. The
// angle field carries a 2-bit type selecting true track, magnetic heading, or
// true heading.
func decodeGroundVelocity(p []byte, out *AdsbMessage) {
	rawGS := int(p[12]&0x1f)<<6 | int(p[13])>>2
	if rawGS&0x3ff != 0 {
		speed := rawGS&0x3ff - 1
		out.GroundSpeed = &speed
	}

	rawAngle := int(p[13]&0x03)<<9 | int(p[14])<<1 | int(p[15])>>7
	angle := float64(rawAngle&0x1ff) * 360.0 / 512.0
	switch rawAngle >> 9 {
	case 1:
		out.TrueTrack = &angle
	case 2:
		out.MagHeading = &angle
	case 3:
		out.TrueHeading = &angle
	}
}

func decodeModeStatus(p []byte, out *AdsbMessage) {
	if len(p) < 27 {
		return
	}

	var cs [8]byte
	v := int(p[17])<<8 | int(p[18])
	category := (v / 1600) % 40
	out.EmitterCategory = &category
	cs[0] = base40Alphabet[(v/40)%40]
	cs[1] = base40Alphabet[v%40]
	v = int(p[19])<<8 | int(p[20])
	cs[2] = base40Alphabet[(v/1600)%40]
	cs[3] = base40Alphabet[(v/40)%40]
	cs[4] = base40Alphabet[v%40]
	v = int(p[21])<<8 | int(p[22])
	cs[5] = base40Alphabet[(v/1600)%40]
	cs[6] = base40Alphabet[(v/40)%40]
	cs[7] = base40Alphabet[v%40]

	ident := trimCallsign(cs[:])

	// CSID clear means the callsign field carries the flight plan id
	// (squawk) instead of a callsign.
	if ident != "" {
		if p[26]&0x02 != 0 {
			out.Callsign = &ident
		} else {
			out.Squawk = &ident
		}
	}

	emerg := EmergencyStatus(p[23] >> 5)
	out.emergency = &emerg
	emergName := emerg.String()
	out.Emergency = &emergName

	version := int(p[23] >> 2 & 0x07)
	out.UATVersion = &version
	sil := int(p[23] & 0x03)
	out.SIL = &sil
	nacP := int(p[25] >> 4)
	out.NACp = &nacP
	nacV := int(p[25] >> 1 & 0x07)
	out.NACv = &nacV
	nicBaro := int(p[25] & 0x01)
	out.NICBaro = &nicBaro

	identActive := p[26]&0x10 != 0
	out.IdentActive = &identActive

	supp := SILPerHour
	if p[26]&0x01 != 0 {
		supp = SILPerSample
	}
	out.silSupplement = &supp
	suppName := supp.String()
	out.SILSupplement = &suppName
}

func decodeAuxStateVector(p []byte, out *AdsbMessage) {
	if len(p) < 31 {
		return
	}
	rawAlt := int(p[29])<<4 | int(p[30])>>4
	if rawAlt == 0 {
		return
	}
	alt := (rawAlt-1)*25 - 1000

	// The auxiliary altitude is of the opposite type to the primary one.
	if p[9]&0x01 != 0 {
		if out.PressureAltitude == nil {
			out.PressureAltitude = &alt
		}
	} else {
		if out.GeometricAltitude == nil {
			out.GeometricAltitude = &alt
		}
	}
}

// decodeTargetState extracts the 5-byte target state element starting at
// byte s: selected altitude (MCP/FCU or FMS per the type bit), barometric
// pressure setting, selected heading, and the autoflight mode indicators.
func decodeTargetState(p []byte, s int, out *AdsbMessage) {
	if len(p) < s+5 {
		return
	}

	if rawAlt := int(p[s]&0x7f)<<4 | int(p[s+1])>>4; rawAlt != 0 {
		alt := (rawAlt - 1) * 32
		if p[s]&0x80 != 0 {
			out.SelectedAltitudeFMS = &alt
		} else {
			out.SelectedAltitudeMCP = &alt
		}
	}

	if rawBaro := int(p[s+1]&0x0f)<<5 | int(p[s+2])>>3; rawBaro != 0 {
		baro := 800 + float64(rawBaro-1)*0.8
		out.BaroSetting = &baro
	}

	if p[s+2]&0x04 != 0 {
		rawHeading := int(p[s+2]&0x03)<<7 | int(p[s+3])>>1
		heading := float64(rawHeading) * 180.0 / 256.0
		out.SelectedHeading = &heading
	}

	if p[s+3]&0x01 != 0 {
		out.NavModes = &NavModes{
			Autopilot: p[s+4]&0x80 != 0,
			VNAV:      p[s+4]&0x40 != 0,
			AltHold:   p[s+4]&0x20 != 0,
			Approach:  p[s+4]&0x10 != 0,
			LNAV:      p[s+4]&0x08 != 0,
		}
	}
}

func trimCallsign(cs []byte) string {
	end := len(cs)
	for end > 0 && cs[end-1] == ' ' {
		end--
	}
	start := 0
	for start < end && cs[start] == ' ' {
		start++
	}
	return string(cs[start:end])
}

// ContainmentRadius returns the horizontal containment radius bound in
// meters for a NIC value, or 0 when the NIC conveys no bound.
func ContainmentRadius(nic int) float64 {
	switch nic {
	case 1:
		return 37040
	case 2:
		return 14816
	case 3:
		return 7408
	case 4:
		return 3704
	case 5:
		return 1852
	case 6:
		return 1111.2
	case 7:
		return 370.4
	case 8:
		return 185.2
	case 9:
		return 75
	case 10:
		return 25
	case 11:
		return 7.5
	default:
		return 0
	}
}
