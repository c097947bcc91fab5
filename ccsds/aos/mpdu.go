package aos

import (
	"errors"
	"fmt"

	"github.com/groundstation/tmtc-broker/bitfield"
	"github.com/groundstation/tmtc-broker/ccsds/spacepacket"
)

// MPDUHeaderSize is the fixed 2-byte M_PDU header length.
const MPDUHeaderSize = 2

var fFirstHeaderPointer = mustIntegral(bitfield.KindU16, 5, 16)

// FirstHeaderPointerAllOnes and FirstHeaderPointerAllOnesMinusOne are the
// two reserved 11-bit sentinel values; any other value is a byte offset
// into the packet zone where the first Space Packet header starts.
const (
	FirstHeaderPointerAllOnes          uint16 = 0b11111111111
	FirstHeaderPointerAllOnesMinusOne  uint16 = 0b11111111110
)

// FirstHeaderPointerKind distinguishes the three meanings the 11-bit
// first_header_pointer field can carry.
type FirstHeaderPointerKind int

// Kinds of first_header_pointer.
const (
	PointerOffset FirstHeaderPointerKind = iota
	NoPacketStarts
	IdleData
)

// FirstHeaderPointer decodes the M_PDU header's first_header_pointer
// field: either a byte offset into the packet zone where a new Space
// Packet begins, or one of the two reserved sentinels.
type FirstHeaderPointer struct {
	Kind   FirstHeaderPointerKind
	Offset uint16 // valid only when Kind == PointerOffset
}

func parseFirstHeaderPointer(raw uint16) (FirstHeaderPointer, error) {
	if raw > FirstHeaderPointerAllOnes {
		return FirstHeaderPointer{}, fmt.Errorf("aos: first_header_pointer %d exceeds 11-bit range", raw)
	}
	switch raw {
	case FirstHeaderPointerAllOnes:
		return FirstHeaderPointer{Kind: NoPacketStarts}, nil
	case FirstHeaderPointerAllOnesMinusOne:
		return FirstHeaderPointer{Kind: IdleData}, nil
	default:
		return FirstHeaderPointer{Kind: PointerOffset, Offset: raw}, nil
	}
}

func (p FirstHeaderPointer) raw() uint16 {
	switch p.Kind {
	case NoPacketStarts:
		return FirstHeaderPointerAllOnes
	case IdleData:
		return FirstHeaderPointerAllOnesMinusOne
	default:
		return p.Offset
	}
}

// MPDUHeader is a view over the 2-byte M_PDU header that precedes a
// virtual channel's packet zone.
type MPDUHeader struct {
	buf []byte
}

// ReadMPDUHeader wraps buf[:2] as an MPDUHeader.
func ReadMPDUHeader(buf []byte) (MPDUHeader, []byte, error) {
	if len(buf) < MPDUHeaderSize {
		return MPDUHeader{}, nil, ErrTooShort
	}
	return MPDUHeader{buf: buf[:MPDUHeaderSize]}, buf[MPDUHeaderSize:], nil
}

// FirstHeaderPointer decodes the header's first_header_pointer field.
func (h MPDUHeader) FirstHeaderPointer() (FirstHeaderPointer, error) {
	v, _ := fFirstHeaderPointer.Read(h.buf)
	return parseFirstHeaderPointer(uint16(v.Uint64()))
}

// MPDUHeaderWriter builds an M_PDU header into a caller-owned buffer.
type MPDUHeaderWriter struct {
	buf []byte
}

// NewMPDUHeaderWriter wraps buf[:2], zeroing it first.
func NewMPDUHeaderWriter(buf []byte) (MPDUHeaderWriter, error) {
	if len(buf) < MPDUHeaderSize {
		return MPDUHeaderWriter{}, ErrTooShort
	}
	header := buf[:MPDUHeaderSize]
	for i := range header {
		header[i] = 0
	}
	return MPDUHeaderWriter{buf: header}, nil
}

// SetFirstHeaderPointer sets the 11-bit first_header_pointer field.
func (w MPDUHeaderWriter) SetFirstHeaderPointer(p FirstHeaderPointer) {
	fFirstHeaderPointer.Write(w.buf, bitfield.NewU16(p.raw()))
}

// Bytes returns the underlying 2-byte header buffer.
func (w MPDUHeaderWriter) Bytes() []byte { return w.buf }

// ErrPacketZoneTooSmall is returned when an M_PDU's packet zone is no
// longer than a Space Packet primary header (6 bytes or fewer).
var ErrPacketZoneTooSmall = errors.New("aos: M_PDU packet zone too small to be a Space Packet")

// Defragmenter reassembles Space Packets fragmented across one virtual
// channel's stream of M_PDUs. Each M_PDU is fed in frame order via Push;
// a complete packet becomes available through ReadPacket once enough
// bytes have accumulated.
type Defragmenter struct {
	buf []byte
}

// Push feeds one M_PDU's raw bytes (header plus packet zone) into the
// reassembly buffer. It reports whether bytes were appended: a push
// against an empty buffer that doesn't carry a new packet's start, or an
// IdleData marker mid-stream, is accepted but contributes nothing.
func (d *Defragmenter) Push(mpduBytes []byte) (bool, error) {
	header, packetZone, err := ReadMPDUHeader(mpduBytes)
	if err != nil {
		return false, err
	}
	if len(packetZone) <= spacepacket.PrimaryHeaderSize {
		return false, ErrPacketZoneTooSmall
	}
	fhp, err := header.FirstHeaderPointer()
	if err != nil {
		return false, err
	}
	if len(d.buf) == 0 {
		if fhp.Kind != PointerOffset {
			return false, nil
		}
		if int(fhp.Offset) > len(packetZone) {
			return false, fmt.Errorf("aos: invalid first_header_pointer %d for packet zone of length %d", fhp.Offset, len(packetZone))
		}
		d.buf = append(d.buf, packetZone[fhp.Offset:]...)
		return true, nil
	}
	switch fhp.Kind {
	case PointerOffset, NoPacketStarts:
		d.buf = append(d.buf, packetZone...)
		return true, nil
	default: // IdleData
		return false, nil
	}
}

// ReadPacket returns the bytes and parsed view of the currently buffered
// Space Packet, if a complete one is available.
func (d *Defragmenter) ReadPacket() (packetBytes []byte, pkt spacepacket.Packet, ok bool) {
	p, trailer, err := spacepacket.Parse(d.buf)
	if err != nil {
		return nil, spacepacket.Packet{}, false
	}
	return d.buf[:len(d.buf)-len(trailer)], p, true
}

// Advance drops the currently buffered packet's bytes, returning the
// number of bytes removed, so the next call to Push starts accumulating
// the following packet.
func (d *Defragmenter) Advance() int {
	_, pkt, ok := d.ReadPacket()
	if !ok {
		return 0
	}
	size, ok := pkt.PacketSize()
	if !ok {
		return 0
	}
	d.buf = d.buf[size:]
	return size
}

// Reset discards any partially accumulated packet, as done after a
// synchronizer reports a frame drop.
func (d *Defragmenter) Reset() {
	d.buf = d.buf[:0]
}
