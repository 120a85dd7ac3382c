package uat

// AddressQualifier classifies the 24-bit address carried in a UAT downlink
// message. The numeric values match the 3-bit address qualifier field on the
// wire (DO-282B table 2-9).
type AddressQualifier uint8

const (
	// ADSBICAO is a direct ADS-B transmission using an ICAO 24-bit address.
	ADSBICAO AddressQualifier = iota

	// ADSBOther is a direct ADS-B transmission using a self-assigned
	// (non-ICAO) address.
	ADSBOther

	// TISBICAO is ground-relayed traffic keyed by an ICAO address.
	TISBICAO

	// TISBTrackfile is ground-relayed traffic keyed by a ground-assigned
	// track file number.
	TISBTrackfile

	// Vehicle is a surface vehicle.
	Vehicle

	// FixedBeacon is a fixed ground beacon.
	FixedBeacon

	// ADSROther is rebroadcast ADS-B using a non-ICAO address.
	ADSROther

	// QualifierReserved covers the reserved wire value 7.
	QualifierReserved
)

// String returns the lowercase feed name for the qualifier, "unknown" for
// values without a defined name.
func (q AddressQualifier) String() string {
	switch q {
	case ADSBICAO:
		return "adsb_icao"
	case ADSBOther:
		return "adsb_other"
	case TISBICAO:
		return "tisb_icao"
	case TISBTrackfile:
		return "tisb_trackfile"
	case Vehicle:
		return "vehicle"
	case FixedBeacon:
		return "fixed_beacon"
	case ADSROther:
		return "adsr_other"
	default:
		return "unknown"
	}
}

// SourceLetter returns the single-letter source tag used in report lines:
// "A" for the ADS-B family, "T" for the TIS-B family, "?" otherwise.
func (q AddressQualifier) SourceLetter() string {
	switch q {
	case ADSBICAO, ADSBOther, ADSROther:
		return "A"
	case TISBICAO, TISBTrackfile:
		return "T"
	default:
		return "?"
	}
}

// IsICAO reports whether the address is a true ICAO 24-bit identifier.
func (q AddressQualifier) IsICAO() bool {
	return q == ADSBICAO || q == TISBICAO
}
