// Package tc implements the CCSDS TC transfer frame primary header (with
// its CRC-16/IBM-3740 Frame Error Control Field), the CLCW telemetry word
// used to drive COP-1, and the segment header used for command packet
// segmentation within a frame.
package tc

import (
	"errors"
	"fmt"

	"github.com/groundstation/tmtc-broker/bitfield"
	"github.com/groundstation/tmtc-broker/crc16"
)

// PrimaryHeaderSize is the fixed 5-byte TC transfer frame primary header.
const PrimaryHeaderSize = 5

// FECFSize is the 2-byte CRC-16/IBM-3740 trailer every TC transfer frame
// carries.
const FECFSize = 2

// MaxFrameSize is the largest TC transfer frame this mission profile
// allows, including the primary header and FECF.
const MaxFrameSize = 1024

// ErrTooShort is returned when a buffer cannot hold a primary header.
var ErrTooShort = errors.New("tc: buffer shorter than primary header")

var (
	fVersion      = mustIntegral(bitfield.KindU8, 0, 2)
	fBypassFlag   = mustIntegral(bitfield.KindU8, 2, 3)
	fCtrlCmdFlag  = mustIntegral(bitfield.KindU8, 3, 4)
	fSCID         = mustIntegral(bitfield.KindU16, 6, 16)
	fVCID         = mustIntegral(bitfield.KindU8, 16, 22)
	fFrameLength  = mustIntegral(bitfield.KindU16, 22, 32)
	fFrameSeqNum  = mustIntegral(bitfield.KindU8, 32, 40)
)

func mustIntegral(kind bitfield.IntegralKind, start, end int) bitfield.GenericIntegralField {
	f, err := bitfield.NewIntegralField(kind, bitfield.Range{Start: start, End: end})
	if err != nil {
		panic(err)
	}
	return f
}

// PrimaryHeader is a view over the 5-byte TC transfer frame primary
// header.
type PrimaryHeader struct {
	buf []byte
}

// ReadPrimaryHeader wraps buf[:5] as a PrimaryHeader.
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

// BypassFlag reports whether the frame bypasses FARM acceptance checks
// (a BD-type frame in COP-1 terms).
func (h PrimaryHeader) BypassFlag() bool {
	v, _ := fBypassFlag.Read(h.buf)
	return v.Uint64() != 0
}

// ControlCommandFlag reports whether this frame carries a COP-1
// directive (e.g. Set V(R), Unlock) rather than command data.
func (h PrimaryHeader) ControlCommandFlag() bool {
	v, _ := fCtrlCmdFlag.Read(h.buf)
	return v.Uint64() != 0
}

// SpacecraftID returns the 10-bit spacecraft identifier.
func (h PrimaryHeader) SpacecraftID() uint16 {
	v, _ := fSCID.Read(h.buf)
	return uint16(v.Uint64())
}

// VirtualChannelID returns the 6-bit virtual channel identifier.
func (h PrimaryHeader) VirtualChannelID() uint8 {
	v, _ := fVCID.Read(h.buf)
	return uint8(v.Uint64())
}

// FrameLengthRaw returns the raw wire value (N-1).
func (h PrimaryHeader) FrameLengthRaw() uint16 {
	v, _ := fFrameLength.Read(h.buf)
	return uint16(v.Uint64())
}

// FrameLengthInBytes returns the actual total frame length, including the
// primary header and FECF.
func (h PrimaryHeader) FrameLengthInBytes() int {
	return int(h.FrameLengthRaw()) + 1
}

// FrameSequenceNumber returns the 8-bit frame sequence number (this is
// the COP-1 V(S), not to be confused with the FOP-1 sequence number
// carried separately in ground software state).
func (h PrimaryHeader) FrameSequenceNumber() uint8 {
	v, _ := fFrameSeqNum.Read(h.buf)
	return uint8(v.Uint64())
}

// Bytes returns the underlying 5-byte header buffer.
func (h PrimaryHeader) Bytes() []byte { return h.buf }

// PrimaryHeaderWriter builds a primary header into a caller-owned buffer.
type PrimaryHeaderWriter struct {
	buf []byte
}

// NewPrimaryHeaderWriter wraps buf[:5], zeroing it first.
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

// SetBypassFlag sets the bypass flag.
func (w PrimaryHeaderWriter) SetBypassFlag(v bool) {
	fBypassFlag.Write(w.buf, bitfield.NewU8(boolToU8(v)))
}

// SetControlCommandFlag sets the control command flag.
func (w PrimaryHeaderWriter) SetControlCommandFlag(v bool) {
	fCtrlCmdFlag.Write(w.buf, bitfield.NewU8(boolToU8(v)))
}

// SetSpacecraftID sets the 10-bit spacecraft identifier.
func (w PrimaryHeaderWriter) SetSpacecraftID(v uint16) {
	fSCID.Write(w.buf, bitfield.NewU16(v))
}

// SetVirtualChannelID sets the 6-bit virtual channel identifier.
func (w PrimaryHeaderWriter) SetVirtualChannelID(v uint8) {
	fVCID.Write(w.buf, bitfield.NewU8(v))
}

// SetFrameLengthInBytes sets the wire length field from the actual total
// frame length N (primary header + data + FECF), storing N-1.
func (w PrimaryHeaderWriter) SetFrameLengthInBytes(n int) error {
	if n <= 0 {
		return fmt.Errorf("tc: frame_length_in_bytes must be > 0, got %d", n)
	}
	fFrameLength.Write(w.buf, bitfield.NewU16(uint16(n-1)))
	return nil
}

// SetFrameSequenceNumber sets the 8-bit frame sequence number.
func (w PrimaryHeaderWriter) SetFrameSequenceNumber(v uint8) {
	fFrameSeqNum.Write(w.buf, bitfield.NewU8(v))
}

// AsHeader re-reads the written bytes as a PrimaryHeader view.
func (w PrimaryHeaderWriter) AsHeader() PrimaryHeader {
	return PrimaryHeader{buf: w.buf}
}

func boolToU8(v bool) uint8 {
	if v {
		return 1
	}
	return 0
}

// FrameType distinguishes the three TC transfer frame types COP-1
// recognizes: AD frames carry sequence-controlled command data, BD frames
// carry unacknowledged ("bypass") data, and BC frames carry COP-1
// directives such as Set V(R) and Unlock.
type FrameType int

// Frame types.
const (
	TypeAD FrameType = iota
	TypeBD
	TypeBC
)

// BypassFlag reports the primary header bypass_flag value this frame
// type requires.
func (t FrameType) BypassFlag() bool {
	return t != TypeAD
}

// ControlCommandFlag reports the primary header control_command_flag
// value this frame type requires.
func (t FrameType) ControlCommandFlag() bool {
	return t == TypeBC
}

// Finish appends the CRC-16/IBM-3740 FECF to a complete frame body
// (primary header through data field) and returns the finished frame.
func Finish(dst []byte, frameBody []byte) []byte {
	return crc16.Append(dst, frameBody)
}

// VerifyFECF reports whether frame's trailing 2 bytes are the correct
// FECF for the rest of the frame. Per the zero-residual property of
// CRC-16/IBM-3740, this is equivalent to checking that the CRC of the
// whole frame (data plus FECF) is zero.
func VerifyFECF(frame []byte) bool {
	if len(frame) < FECFSize {
		return false
	}
	return crc16.Residual(frame) == 0
}
