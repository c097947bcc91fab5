package transport

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/groundstation/tmtc-broker/ccsds/tc"
)

// KbleLink is the TCP connection to the ground station's KBLE bridge:
// raw AOS transfer frames arrive length-prefixed on the read side, and
// TC transfer frames are written length-prefixed on the write side.
// Grounded on eventsocket.Server's use of net.Conn for line/frame I/O,
// adapted from a Unix-domain fan-out listener to a single outbound TCP
// client connection since the broker is the one dialing the ground
// station equipment here.
type KbleLink struct {
	conn   net.Conn
	reader *bufio.Reader

	txMu sync.Mutex
}

// DialKble connects to the KBLE bridge at addr ("host:port"). TCP_NODELAY
// is set directly on the raw file descriptor so a single-segment AD frame
// isn't held back by Nagle's algorithm waiting on the next one.
func DialKble(ctx context.Context, addr string) (*KbleLink, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dialing kble at %s: %w", addr, err)
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := setTCPNoDelay(tcpConn); err != nil {
			conn.Close()
			return nil, fmt.Errorf("transport: setting TCP_NODELAY on kble connection: %w", err)
		}
	}
	return &KbleLink{conn: conn, reader: bufio.NewReader(conn)}, nil
}

// setTCPNoDelay reaches past net.TCPConn.SetNoDelay to set the raw socket
// option directly, the way a radio-link bridge's file descriptor would be
// configured if handed to this package instead of dialed by it.
func setTCPNoDelay(conn *net.TCPConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	if err := raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	}); err != nil {
		return err
	}
	return sockErr
}

// Close closes the underlying connection.
func (k *KbleLink) Close() error {
	return k.conn.Close()
}

// Receive reads one length-prefixed AOS transfer frame buffer.
func (k *KbleLink) Receive(ctx context.Context) ([]byte, error) {
	if deadline, ok := ctx.Deadline(); ok {
		k.conn.SetReadDeadline(deadline)
	} else {
		k.conn.SetReadDeadline(time.Time{})
	}
	var length uint32
	if err := binary.Read(k.reader, binary.BigEndian, &length); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("transport: kble connection closed: %w", err)
		}
		return nil, fmt.Errorf("transport: reading frame length: %w", err)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(k.reader, buf); err != nil {
		return nil, fmt.Errorf("transport: reading frame body: %w", err)
	}
	return buf, nil
}

// Transmit writes one TC transfer frame: primary header, data field,
// and trailing FECF CRC, length-prefixed the same way Receive expects
// to read AOS frames, so a loopback KBLE bridge can exercise both
// directions over one connection.
func (k *KbleLink) Transmit(ctx context.Context, scid uint16, vcid uint8, frameType tc.FrameType, sequenceNumber uint8, dataField []byte) error {
	k.txMu.Lock()
	defer k.txMu.Unlock()

	frame, err := buildTCTransferFrame(scid, vcid, frameType, sequenceNumber, dataField)
	if err != nil {
		return fmt.Errorf("transport: building TC transfer frame: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		k.conn.SetWriteDeadline(deadline)
	} else {
		k.conn.SetWriteDeadline(time.Time{})
	}
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(frame)))
	if _, err := k.conn.Write(header); err != nil {
		return fmt.Errorf("transport: writing frame length: %w", err)
	}
	if _, err := k.conn.Write(frame); err != nil {
		return fmt.Errorf("transport: writing frame body: %w", err)
	}
	return nil
}

// buildTCTransferFrame assembles a complete TC transfer frame per
// spec.md §6's uplink contract: version=0, bypass_flag set for BD/BC
// frames, control_command_flag set for BC frames, the given
// SCID/VCID/FSN, the data field, and a trailing CRC-16/IBM-3740 FECF.
func buildTCTransferFrame(scid uint16, vcid uint8, frameType tc.FrameType, sequenceNumber uint8, dataField []byte) ([]byte, error) {
	bodyLen := tc.PrimaryHeaderSize + len(dataField)
	frameLen := bodyLen + tc.FECFSize
	if frameLen > tc.MaxFrameSize {
		return nil, fmt.Errorf("transport: frame of %d bytes exceeds MaxFrameSize %d", frameLen, tc.MaxFrameSize)
	}
	body := make([]byte, bodyLen)
	w, err := tc.NewPrimaryHeaderWriter(body)
	if err != nil {
		return nil, err
	}
	w.SetVersionNumber(0)
	w.SetBypassFlag(frameType.BypassFlag())
	w.SetControlCommandFlag(frameType.ControlCommandFlag())
	w.SetSpacecraftID(scid)
	w.SetVirtualChannelID(vcid)
	if err := w.SetFrameLengthInBytes(frameLen); err != nil {
		return nil, err
	}
	w.SetFrameSequenceNumber(sequenceNumber)
	copy(body[tc.PrimaryHeaderSize:], dataField)
	return tc.Finish(nil, body), nil
}

var (
	_ AOSReceiver   = (*KbleLink)(nil)
	_ TCTransmitter = (*KbleLink)(nil)
)
