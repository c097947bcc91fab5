package tc

import "github.com/groundstation/tmtc-broker/bitfield"

// CLCWSize is the fixed 4-byte Command Link Control Word.
const CLCWSize = 4

var (
	fControlWordType = mustIntegral(bitfield.KindU8, 0, 1)
	fCLCWVersion     = mustIntegral(bitfield.KindU8, 1, 3)
	fStatusField     = mustIntegral(bitfield.KindU8, 3, 6)
	fCopInEffect     = mustIntegral(bitfield.KindU8, 6, 8)
	fClcwVCID        = mustIntegral(bitfield.KindU8, 8, 14)
	fNoRFAvailable   = mustIntegral(bitfield.KindU8, 16, 17)
	fNoBitLock       = mustIntegral(bitfield.KindU8, 17, 18)
	fLockout         = mustIntegral(bitfield.KindU8, 18, 19)
	fWait            = mustIntegral(bitfield.KindU8, 19, 20)
	fRetransmit      = mustIntegral(bitfield.KindU8, 20, 21)
	fFarmBCounter    = mustIntegral(bitfield.KindU8, 21, 23)
	fReportValue     = mustIntegral(bitfield.KindU8, 24, 32)
)

// CLCW is a view over the 4-byte Command Link Control Word a spacecraft
// reports back in its telemetry stream to drive the ground FOP-1 state
// machine.
type CLCW struct {
	buf []byte
}

// ReadCLCW wraps buf[:4] as a CLCW.
func ReadCLCW(buf []byte) (CLCW, error) {
	if len(buf) < CLCWSize {
		return CLCW{}, ErrTooShort
	}
	return CLCW{buf: buf[:CLCWSize]}, nil
}

// ControlWordType distinguishes a CLCW (0) from reserved future Control
// Word types (1); FOP-1 only interprets type-0 words.
func (c CLCW) ControlWordType() uint8 {
	v, _ := fControlWordType.Read(c.buf)
	return uint8(v.Uint64())
}

// VersionNumber returns the 2-bit CLCW version number.
func (c CLCW) VersionNumber() uint8 {
	v, _ := fCLCWVersion.Read(c.buf)
	return uint8(v.Uint64())
}

// StatusField returns the 3-bit status field (mission specific).
func (c CLCW) StatusField() uint8 {
	v, _ := fStatusField.Read(c.buf)
	return uint8(v.Uint64())
}

// CopInEffect returns the 2-bit COP in effect identifier (1 selects
// COP-1).
func (c CLCW) CopInEffect() uint8 {
	v, _ := fCopInEffect.Read(c.buf)
	return uint8(v.Uint64())
}

// VirtualChannelID returns the 6-bit virtual channel this CLCW reports
// status for.
func (c CLCW) VirtualChannelID() uint8 {
	v, _ := fClcwVCID.Read(c.buf)
	return uint8(v.Uint64())
}

// NoRFAvailable reports a loss of RF signal at the receiving end.
func (c CLCW) NoRFAvailable() bool {
	v, _ := fNoRFAvailable.Read(c.buf)
	return v.Uint64() != 0
}

// NoBitLock reports a loss of bit lock at the receiving end.
func (c CLCW) NoBitLock() bool {
	v, _ := fNoBitLock.Read(c.buf)
	return v.Uint64() != 0
}

// Lockout reports whether FARM-1 is in the Lockout state and will not
// accept any frames until an Unlock directive clears it.
func (c CLCW) Lockout() bool {
	v, _ := fLockout.Read(c.buf)
	return v.Uint64() != 0
}

// Wait reports whether FARM-1 is holding frames pending a gap fill.
func (c CLCW) Wait() bool {
	v, _ := fWait.Read(c.buf)
	return v.Uint64() != 0
}

// Retransmit requests that FOP-1 retransmit its oldest unacknowledged
// frame.
func (c CLCW) Retransmit() bool {
	v, _ := fRetransmit.Read(c.buf)
	return v.Uint64() != 0
}

// FarmBCounter returns FARM-1's 2-bit type-B frame counter.
func (c CLCW) FarmBCounter() uint8 {
	v, _ := fFarmBCounter.Read(c.buf)
	return uint8(v.Uint64())
}

// ReportValue returns the 8-bit V(R), the next expected frame sequence
// number FARM-1 will accept — the value FOP-1 compares its own V(S) and
// sent-frame queue against on every CLCW.
func (c CLCW) ReportValue() uint8 {
	v, _ := fReportValue.Read(c.buf)
	return uint8(v.Uint64())
}

// Bytes returns the underlying 4-byte buffer.
func (c CLCW) Bytes() []byte { return c.buf }
