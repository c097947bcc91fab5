// Package spacepacket implements the CCSDS Space Packet primary header and
// the C2A-style telemetry/telecommand secondary headers carried in its user
// data, plus the zero-copy parser that splits a byte slice into a packet and
// whatever trailer bytes follow it.
package spacepacket

import (
	"errors"
	"fmt"

	"github.com/groundstation/tmtc-broker/bitfield"
)

// PrimaryHeaderSize is the fixed 6-byte primary header length.
const PrimaryHeaderSize = 6

// IdleAPID is the reserved all-ones APID marking an idle packet.
const IdleAPID uint16 = 0x7FF

// PacketType distinguishes telemetry from telecommand packets.
type PacketType uint8

// Packet types.
const (
	Telemetry  PacketType = 0
	Telecommand PacketType = 1
)

// SequenceFlag is the packet fragmentation indicator.
type SequenceFlag uint8

// Sequence flags.
const (
	SeqContinuation SequenceFlag = 0b00
	SeqFirst        SequenceFlag = 0b01
	SeqLast         SequenceFlag = 0b10
	SeqUnsegmented  SequenceFlag = 0b11
)

var (
	// ErrTooShort is returned when a buffer cannot hold a primary header.
	ErrTooShort = errors.New("spacepacket: buffer shorter than primary header")
	// ErrIncomplete is returned when the buffer doesn't yet contain the
	// full packet data declared by the length field.
	ErrIncomplete = errors.New("spacepacket: not enough bytes for declared packet_data_length")
)

var (
	fVersion       = mustIntegral(bitfield.KindU8, 0, 3)
	fPacketType    = mustIntegral(bitfield.KindU8, 3, 4)
	fSecHdrFlag    = mustIntegral(bitfield.KindU8, 4, 5)
	fAPID          = mustIntegral(bitfield.KindU16, 5, 16)
	fSequenceFlag  = mustIntegral(bitfield.KindU8, 16, 18)
	fSequenceCount = mustIntegral(bitfield.KindU16, 18, 32)
	fPacketDataLen = mustIntegral(bitfield.KindU16, 32, 48)
)

func mustIntegral(kind bitfield.IntegralKind, start, end int) bitfield.GenericIntegralField {
	f, err := bitfield.NewIntegralField(kind, bitfield.Range{Start: start, End: end})
	if err != nil {
		panic(err)
	}
	return f
}

// PrimaryHeader is a view onto the 6-byte Space Packet primary header.
type PrimaryHeader struct {
	buf []byte
}

// ReadPrimaryHeader wraps buf[:6] as a PrimaryHeader view; buf must be at
// least 6 bytes.
func ReadPrimaryHeader(buf []byte) (PrimaryHeader, error) {
	if len(buf) < PrimaryHeaderSize {
		return PrimaryHeader{}, ErrTooShort
	}
	return PrimaryHeader{buf: buf[:PrimaryHeaderSize]}, nil
}

// VersionNumber returns the 3-bit version field.
func (h PrimaryHeader) VersionNumber() uint8 {
	v, _ := fVersion.Read(h.buf)
	return uint8(v.Uint64())
}

// PacketType returns the telemetry/telecommand flag.
func (h PrimaryHeader) PacketType() PacketType {
	v, _ := fPacketType.Read(h.buf)
	return PacketType(v.Uint64())
}

// SecondaryHeaderFlag reports whether a secondary header follows.
func (h PrimaryHeader) SecondaryHeaderFlag() bool {
	v, _ := fSecHdrFlag.Read(h.buf)
	return v.Uint64() != 0
}

// APID returns the 11-bit Application Process Identifier.
func (h PrimaryHeader) APID() uint16 {
	v, _ := fAPID.Read(h.buf)
	return uint16(v.Uint64())
}

// SequenceFlag returns the fragmentation flag.
func (h PrimaryHeader) SequenceFlag() SequenceFlag {
	v, _ := fSequenceFlag.Read(h.buf)
	return SequenceFlag(v.Uint64())
}

// SequenceCount returns the 14-bit sequence count.
func (h PrimaryHeader) SequenceCount() uint16 {
	v, _ := fSequenceCount.Read(h.buf)
	return uint16(v.Uint64())
}

// PacketDataLengthRaw returns the raw wire value (N-1).
func (h PrimaryHeader) PacketDataLengthRaw() uint16 {
	v, _ := fPacketDataLen.Read(h.buf)
	return uint16(v.Uint64())
}

// PacketDataLengthInBytes returns the actual byte length of packet_data.
func (h PrimaryHeader) PacketDataLengthInBytes() int {
	return int(h.PacketDataLengthRaw()) + 1
}

// IsIdlePacket reports whether APID is the reserved all-ones value.
func (h PrimaryHeader) IsIdlePacket() bool {
	return h.APID() == IdleAPID
}

// Bytes returns the underlying 6-byte header buffer.
func (h PrimaryHeader) Bytes() []byte { return h.buf }

// PrimaryHeaderWriter builds a primary header into a caller-owned buffer.
type PrimaryHeaderWriter struct {
	buf []byte
}

// NewPrimaryHeaderWriter wraps buf[:6] for writing; buf must be at least 6
// bytes and is zeroed first.
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

// SetVersionNumber sets the 3-bit version field.
func (w PrimaryHeaderWriter) SetVersionNumber(v uint8) {
	fVersion.Write(w.buf, bitfield.NewU8(v))
}

// SetPacketType sets the telemetry/telecommand flag.
func (w PrimaryHeaderWriter) SetPacketType(v PacketType) {
	fPacketType.Write(w.buf, bitfield.NewU8(uint8(v)))
}

// SetSecondaryHeaderFlag sets the secondary-header-present flag.
func (w PrimaryHeaderWriter) SetSecondaryHeaderFlag(v bool) {
	b := uint8(0)
	if v {
		b = 1
	}
	fSecHdrFlag.Write(w.buf, bitfield.NewU8(b))
}

// SetAPID sets the 11-bit APID.
func (w PrimaryHeaderWriter) SetAPID(v uint16) {
	fAPID.Write(w.buf, bitfield.NewU16(v))
}

// SetSequenceFlag sets the fragmentation flag.
func (w PrimaryHeaderWriter) SetSequenceFlag(v SequenceFlag) {
	fSequenceFlag.Write(w.buf, bitfield.NewU8(uint8(v)))
}

// SetSequenceCount sets the 14-bit sequence count.
func (w PrimaryHeaderWriter) SetSequenceCount(v uint16) {
	fSequenceCount.Write(w.buf, bitfield.NewU16(v))
}

// SetPacketDataLengthInBytes sets the wire length field from the actual
// byte length of packet_data (N), storing N-1.
func (w PrimaryHeaderWriter) SetPacketDataLengthInBytes(n int) error {
	if n <= 0 {
		return fmt.Errorf("spacepacket: packet_data_length_in_bytes must be > 0, got %d", n)
	}
	fPacketDataLen.Write(w.buf, bitfield.NewU16(uint16(n-1)))
	return nil
}

// AsHeader re-reads the written bytes as a PrimaryHeader view.
func (w PrimaryHeaderWriter) AsHeader() PrimaryHeader {
	return PrimaryHeader{buf: w.buf}
}

// Packet is a zero-copy view over a primary header plus its packet_data.
type Packet struct {
	PrimaryHeader PrimaryHeader
	PacketData    []byte
}

// Parse splits buf into a Packet (primary header + packet_data) and
// whatever trailer bytes follow, per the Space Packet parser rules in
// spec.md §4.2: if buf doesn't yet contain enough bytes for the declared
// packet_data_length, it returns ErrIncomplete rather than a partial
// packet.
func Parse(buf []byte) (pkt Packet, trailer []byte, err error) {
	header, err := ReadPrimaryHeader(buf)
	if err != nil {
		return Packet{}, nil, err
	}
	size := header.PacketDataLengthInBytes()
	rest := buf[PrimaryHeaderSize:]
	if len(rest) < size {
		return Packet{}, nil, ErrIncomplete
	}
	return Packet{PrimaryHeader: header, PacketData: rest[:size]}, rest[size:], nil
}

// PacketSize returns PrimaryHeaderSize + len(PacketData), the total wire
// size of the packet, provided PacketData's length matches the header's
// declared length (the invariant Parse always establishes).
func (p Packet) PacketSize() (int, bool) {
	if len(p.PacketData) != p.PrimaryHeader.PacketDataLengthInBytes() {
		return 0, false
	}
	return PrimaryHeaderSize + len(p.PacketData), true
}
