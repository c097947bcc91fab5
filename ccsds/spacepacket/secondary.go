package spacepacket

import "github.com/groundstation/tmtc-broker/bitfield"

// TMSecondaryHeaderSize is the fixed C2A telemetry secondary header length.
const TMSecondaryHeaderSize = 20

// TCSecondaryHeaderSize is the fixed C2A telecommand secondary header length.
const TCSecondaryHeaderSize = 9

var (
	tmVersion       = mustIntegral(bitfield.KindU8, 0, 8)
	tmBoardTime     = mustIntegral(bitfield.KindU32, 8, 40)
	tmTelemetryID   = mustIntegral(bitfield.KindU8, 40, 48)
	tmGlobalTime    = mustFloating(bitfield.KindF64, 48, 112)
	tmOBSNTime      = mustIntegral(bitfield.KindU32, 112, 144)
	tmDestFlags     = mustIntegral(bitfield.KindU8, 144, 152)
	tmRecPartition  = mustIntegral(bitfield.KindU8, 152, 160)
)

func mustFloating(kind bitfield.FloatingKind, start, end int) bitfield.GenericFloatingField {
	f, err := bitfield.NewFloatingField(kind, bitfield.Range{Start: start, End: end})
	if err != nil {
		panic(err)
	}
	return f
}

// TMSecondaryHeader is a view over the 20-byte C2A telemetry secondary
// header that follows the Space Packet primary header in packet_data.
type TMSecondaryHeader struct {
	buf []byte
}

// ReadTMSecondaryHeader wraps buf[:20] as a TMSecondaryHeader.
func ReadTMSecondaryHeader(buf []byte) (TMSecondaryHeader, []byte, error) {
	if len(buf) < TMSecondaryHeaderSize {
		return TMSecondaryHeader{}, nil, ErrTooShort
	}
	return TMSecondaryHeader{buf: buf[:TMSecondaryHeaderSize]}, buf[TMSecondaryHeaderSize:], nil
}

// VersionNumber returns the secondary header's own version field.
func (h TMSecondaryHeader) VersionNumber() uint8 {
	v, _ := tmVersion.Read(h.buf)
	return uint8(v.Uint64())
}

// BoardTime returns the onboard computer time counter.
func (h TMSecondaryHeader) BoardTime() uint32 {
	v, _ := tmBoardTime.Read(h.buf)
	return uint32(v.Uint64())
}

// TelemetryID identifies the telemetry definition within its APID.
func (h TMSecondaryHeader) TelemetryID() uint8 {
	v, _ := tmTelemetryID.Read(h.buf)
	return uint8(v.Uint64())
}

// GlobalTime returns the ground-synchronized onboard clock, as an IEEE-754
// double (seconds since an epoch defined by the satellite configuration).
func (h TMSecondaryHeader) GlobalTime() float64 {
	v, _ := tmGlobalTime.Read(h.buf)
	return v.Float64()
}

// OnBoardSubnetworkTime returns the subnetwork-local time counter.
func (h TMSecondaryHeader) OnBoardSubnetworkTime() uint32 {
	v, _ := tmOBSNTime.Read(h.buf)
	return uint32(v.Uint64())
}

// DestinationFlags returns the bitmask used to fan a telemetry out to
// ground channels: a channel matches when its configured mask ANDs
// non-zero against this value.
func (h TMSecondaryHeader) DestinationFlags() uint8 {
	v, _ := tmDestFlags.Read(h.buf)
	return uint8(v.Uint64())
}

// DataRecorderPartition returns the onboard recorder partition identifier.
func (h TMSecondaryHeader) DataRecorderPartition() uint8 {
	v, _ := tmRecPartition.Read(h.buf)
	return uint8(v.Uint64())
}

var (
	tcVersion     = mustIntegral(bitfield.KindU8, 0, 8)
	tcCommandType = mustIntegral(bitfield.KindU8, 8, 16)
	tcCommandID   = mustIntegral(bitfield.KindU16, 16, 32)
	tcDestType    = mustIntegral(bitfield.KindU8, 32, 36)
	tcExecType    = mustIntegral(bitfield.KindU8, 36, 40)
	tcTimeInd     = mustIntegral(bitfield.KindU32, 40, 72)
)

// TCSecondaryHeaderWriter builds the 9-byte C2A telecommand secondary
// header into a caller-owned buffer.
type TCSecondaryHeaderWriter struct {
	buf []byte
}

// NewTCSecondaryHeaderWriter wraps buf[:9], zeroing it first, and sets the
// fixed version_number=1 default the onboard software expects.
func NewTCSecondaryHeaderWriter(buf []byte) (TCSecondaryHeaderWriter, error) {
	if len(buf) < TCSecondaryHeaderSize {
		return TCSecondaryHeaderWriter{}, ErrTooShort
	}
	header := buf[:TCSecondaryHeaderSize]
	for i := range header {
		header[i] = 0
	}
	w := TCSecondaryHeaderWriter{buf: header}
	tcVersion.Write(w.buf, bitfield.NewU8(1))
	return w, nil
}

// SetCommandID sets the 16-bit command identifier.
func (w TCSecondaryHeaderWriter) SetCommandID(v uint16) {
	tcCommandID.Write(w.buf, bitfield.NewU16(v))
}

// SetDestinationType sets the 4-bit destination type.
func (w TCSecondaryHeaderWriter) SetDestinationType(v uint8) {
	tcDestType.Write(w.buf, bitfield.NewU8(v&0xF))
}

// SetExecutionType sets the 4-bit execution type.
func (w TCSecondaryHeaderWriter) SetExecutionType(v uint8) {
	tcExecType.Write(w.buf, bitfield.NewU8(v&0xF))
}

// SetTimeIndicator sets the 32-bit execution time indicator.
func (w TCSecondaryHeaderWriter) SetTimeIndicator(v uint32) {
	tcTimeInd.Write(w.buf, bitfield.NewU32(v))
}

// Bytes returns the underlying 9-byte buffer.
func (w TCSecondaryHeaderWriter) Bytes() []byte { return w.buf }
