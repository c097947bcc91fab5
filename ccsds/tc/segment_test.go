package tc_test

import (
	"testing"

	"github.com/groundstation/tmtc-broker/ccsds/tc"
)

func TestSegmentHeaderRoundTrip(t *testing.T) {
	buf := make([]byte, tc.SegmentHeaderSize)
	w, err := tc.NewSegmentHeaderWriter(buf)
	if err != nil {
		t.Fatal(err)
	}
	w.SetSequenceFlag(tc.NoSegmentation)
	w.SetMapID(17)

	h, rest, err := tc.ReadSegmentHeader(buf)
	if err != nil {
		t.Fatal(err)
	}
	if h.SequenceFlag() != tc.NoSegmentation {
		t.Errorf("SequenceFlag: got %v want NoSegmentation", h.SequenceFlag())
	}
	if h.MapID() != 17 {
		t.Errorf("MapID: got %d want 17", h.MapID())
	}
	if len(rest) != 0 {
		t.Errorf("expected no trailing bytes, got %d", len(rest))
	}
}
