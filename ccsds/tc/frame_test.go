package tc_test

import (
	"bytes"
	"testing"

	"github.com/groundstation/tmtc-broker/ccsds/tc"
)

var case1 = []byte{0b01110010, 0b00011100, 0b10100110, 0b01100011, 0xDE}

func TestPrimaryHeaderReadKnownVector(t *testing.T) {
	h, err := tc.ReadPrimaryHeader(case1)
	if err != nil {
		t.Fatal(err)
	}
	if h.VersionNumber() != 1 {
		t.Errorf("VersionNumber: got %d want 1", h.VersionNumber())
	}
	if !h.BypassFlag() {
		t.Error("BypassFlag: got false want true")
	}
	if !h.ControlCommandFlag() {
		t.Error("ControlCommandFlag: got false want true")
	}
	if h.SpacecraftID() != 0b1000011100 {
		t.Errorf("SpacecraftID: got %b want %b", h.SpacecraftID(), 0b1000011100)
	}
	if h.VirtualChannelID() != 0b101001 {
		t.Errorf("VirtualChannelID: got %b want %b", h.VirtualChannelID(), 0b101001)
	}
	if h.FrameLengthRaw() != 0b1001100011 {
		t.Errorf("FrameLengthRaw: got %b want %b", h.FrameLengthRaw(), 0b1001100011)
	}
	if h.FrameSequenceNumber() != 0xDE {
		t.Errorf("FrameSequenceNumber: got %#x want 0xDE", h.FrameSequenceNumber())
	}
}

func TestPrimaryHeaderWriteKnownVector(t *testing.T) {
	buf := make([]byte, tc.PrimaryHeaderSize)
	w, err := tc.NewPrimaryHeaderWriter(buf)
	if err != nil {
		t.Fatal(err)
	}
	w.SetVersionNumber(1)
	w.SetBypassFlag(true)
	w.SetControlCommandFlag(true)
	w.SetSpacecraftID(0b1000011100)
	w.SetVirtualChannelID(0b101001)
	fFrameLength := uint16(0b1001100011)
	// FrameLengthRaw is stored directly via the setter expressed in bytes
	// (raw+1), so recover the raw bits through the byte-length form.
	if err := w.SetFrameLengthInBytes(int(fFrameLength) + 1); err != nil {
		t.Fatal(err)
	}
	w.SetFrameSequenceNumber(0xDE)
	if !bytes.Equal(buf, case1) {
		t.Errorf("got % 08b want % 08b", buf, case1)
	}
}

func TestFinishAndVerifyFECF(t *testing.T) {
	body := []byte{0x01, 0x02, 0x03, 0x04, 0x05}
	frame := tc.Finish(nil, body)
	if len(frame) != len(body)+tc.FECFSize {
		t.Fatalf("got length %d want %d", len(frame), len(body)+tc.FECFSize)
	}
	if !tc.VerifyFECF(frame) {
		t.Error("expected FECF to verify")
	}
	frame[0] ^= 0xFF
	if tc.VerifyFECF(frame) {
		t.Error("expected corrupted frame to fail FECF verification")
	}
}
