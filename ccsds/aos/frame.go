// Package aos implements the CCSDS AOS transfer frame primary header, the
// M_PDU payload framing used to carry Space Packets across a virtual
// channel, and the frame-count synchronizer that detects dropped frames.
package aos

import (
	"errors"
	"fmt"

	"github.com/groundstation/tmtc-broker/bitfield"
)

// PrimaryHeaderSize is the fixed 6-byte AOS transfer frame primary header.
const PrimaryHeaderSize = 6

// ErrTooShort is returned when a buffer is too small to hold a primary
// header.
var ErrTooShort = errors.New("aos: buffer shorter than primary header")

var (
	fVersion    = mustIntegral(bitfield.KindU8, 0, 2)
	fSCID       = mustIntegral(bitfield.KindU8, 2, 10)
	fVCID       = mustIntegral(bitfield.KindU8, 10, 16)
	fFrameCount = mustIntegral(bitfield.KindU32, 16, 40)
	fReplayFlag = mustIntegral(bitfield.KindU8, 40, 41)
)

func mustIntegral(kind bitfield.IntegralKind, start, end int) bitfield.GenericIntegralField {
	f, err := bitfield.NewIntegralField(kind, bitfield.Range{Start: start, End: end})
	if err != nil {
		panic(err)
	}
	return f
}

// FrameCount is the 24-bit, wrapping virtual-channel frame counter.
type FrameCount uint32

// MaxFrameCount is the largest representable value before the counter
// wraps back to zero.
const MaxFrameCount FrameCount = 0xFFFFFF

// Next returns the counter value following fc, wrapping modulo 2^24.
func (fc FrameCount) Next() FrameCount {
	return (fc + 1) & MaxFrameCount
}

// IsNextTo reports whether fc immediately follows other in sequence.
func (fc FrameCount) IsNextTo(other FrameCount) bool {
	return fc == other.Next()
}

// PrimaryHeader is a view over the 6-byte AOS transfer frame primary
// header.
type PrimaryHeader struct {
	buf []byte
}

// ReadPrimaryHeader wraps buf[:6] as a PrimaryHeader.
func ReadPrimaryHeader(buf []byte) (PrimaryHeader, error) {
	if len(buf) < PrimaryHeaderSize {
		return PrimaryHeader{}, ErrTooShort
	}
	return PrimaryHeader{buf: buf[:PrimaryHeaderSize]}, nil
}

// VersionNumber returns the 2-bit transfer frame version number.
func (h PrimaryHeader) VersionNumber() uint8 {
	v, _ := fVersion.Read(h.buf)
	return uint8(v.Uint64())
}

// SpacecraftID returns the 8-bit spacecraft identifier.
func (h PrimaryHeader) SpacecraftID() uint8 {
	v, _ := fSCID.Read(h.buf)
	return uint8(v.Uint64())
}

// VirtualChannelID returns the 6-bit virtual channel identifier.
func (h PrimaryHeader) VirtualChannelID() uint8 {
	v, _ := fVCID.Read(h.buf)
	return uint8(v.Uint64())
}

// FrameCount returns the 24-bit virtual-channel frame counter.
func (h PrimaryHeader) FrameCount() FrameCount {
	v, _ := fFrameCount.Read(h.buf)
	return FrameCount(v.Uint64())
}

// ReplayFlag reports whether this frame was replayed from onboard storage.
func (h PrimaryHeader) ReplayFlag() bool {
	v, _ := fReplayFlag.Read(h.buf)
	return v.Uint64() != 0
}

// Bytes returns the underlying 6-byte header buffer.
func (h PrimaryHeader) Bytes() []byte { return h.buf }

// PrimaryHeaderWriter builds a primary header into a caller-owned buffer.
type PrimaryHeaderWriter struct {
	buf []byte
}

// NewPrimaryHeaderWriter wraps buf[:6], zeroing it first.
func NewPrimaryHeaderWriter(buf []byte) (PrimaryHeaderWriter, error) {
	if len(buf) < PrimaryHeaderSize {
		return PrimaryHeaderWriter{}, ErrTooShort
	}
	header := buf[:PrimaryHeaderSize]
	for i := range header {
		header[i] = 0
	}
	return PrimaryHeaderWriter{buf: header}, nil
}

// SetVersionNumber sets the 2-bit version field.
func (w PrimaryHeaderWriter) SetVersionNumber(v uint8) {
	fVersion.Write(w.buf, bitfield.NewU8(v))
}

// SetSpacecraftID sets the 8-bit spacecraft identifier.
func (w PrimaryHeaderWriter) SetSpacecraftID(v uint8) {
	fSCID.Write(w.buf, bitfield.NewU8(v))
}

// SetVirtualChannelID sets the 6-bit virtual channel identifier.
func (w PrimaryHeaderWriter) SetVirtualChannelID(v uint8) {
	fVCID.Write(w.buf, bitfield.NewU8(v))
}

// SetFrameCount sets the 24-bit frame counter.
func (w PrimaryHeaderWriter) SetFrameCount(fc FrameCount) error {
	if fc > MaxFrameCount {
		return fmt.Errorf("aos: frame count %d exceeds 24-bit range", fc)
	}
	fFrameCount.Write(w.buf, bitfield.NewU32(uint32(fc)))
	return nil
}

// SetReplayFlag sets the replay flag.
func (w PrimaryHeaderWriter) SetReplayFlag(v bool) {
	b := uint8(0)
	if v {
		b = 1
	}
	fReplayFlag.Write(w.buf, bitfield.NewU8(b))
}

// AsHeader re-reads the written bytes as a PrimaryHeader view.
func (w PrimaryHeaderWriter) AsHeader() PrimaryHeader {
	return PrimaryHeader{buf: w.buf}
}

// TransferFrame is a zero-copy view over a full AOS transfer frame: primary
// header, data unit zone, and trailer. The trailer length is caller
// supplied since it depends on which optional fields (e.g. an Operational
// Control Field) the mission configuration enables.
type TransferFrame struct {
	PrimaryHeader PrimaryHeader
	DataUnitZone  []byte
	Trailer       []byte
}

// Parse splits buf into a TransferFrame given a fixed trailerLen.
func Parse(buf []byte, trailerLen int) (TransferFrame, error) {
	header, err := ReadPrimaryHeader(buf)
	if err != nil {
		return TransferFrame{}, err
	}
	rest := buf[PrimaryHeaderSize:]
	if len(rest) < trailerLen {
		return TransferFrame{}, fmt.Errorf("aos: frame shorter than declared trailer length %d", trailerLen)
	}
	split := len(rest) - trailerLen
	return TransferFrame{
		PrimaryHeader: header,
		DataUnitZone:  rest[:split],
		Trailer:       rest[split:],
	}, nil
}
