package aos_test

import (
	"testing"

	"github.com/groundstation/tmtc-broker/ccsds/aos"
)

func TestDemuxerCreatesChannelsOnFirstUse(t *testing.T) {
	var d aos.Demuxer
	a := d.Demux(1)
	if a == nil {
		t.Fatal("expected a non-nil VirtualChannel")
	}
	b := d.Demux(1)
	if a != b {
		t.Error("expected the same VirtualChannel for a repeated VCID")
	}
	c := d.Demux(2)
	if c == a {
		t.Error("expected a distinct VirtualChannel for a different VCID")
	}
}
