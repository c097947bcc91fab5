package crc16_test

import (
	"testing"

	"github.com/groundstation/tmtc-broker/crc16"
)

func TestCheckValue(t *testing.T) {
	// Standard CRC-16/CCITT-FALSE check value for ASCII "123456789".
	got := crc16.Checksum([]byte("123456789"))
	if got != 0x29B1 {
		t.Errorf("got 0x%04X want 0x29B1", got)
	}
}

func TestZeroResidual(t *testing.T) {
	bufs := [][]byte{
		{},
		{0x01, 0x02, 0x03},
		[]byte("a longer buffer used to exercise the table-driven CRC"),
	}
	for _, b := range bufs {
		withFECF := crc16.Append(nil, b)
		if got := crc16.Residual(withFECF); got != 0 {
			t.Errorf("residual for %v = 0x%04X, want 0x0000", b, got)
		}
	}
}
