package pipeline_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/xid"

	"github.com/groundstation/tmtc-broker/ccsds/tc"
	"github.com/groundstation/tmtc-broker/fop1"
	"github.com/groundstation/tmtc-broker/pipeline"
	"github.com/groundstation/tmtc-broker/tcotmiv"
)

func activatedFop(t *testing.T) *fop1.Fop {
	t.Helper()
	f := fop1.New()
	f.SetVR(0)
	buf := make([]byte, tc.CLCWSize)
	buf[3] = 0 // report_value = 0, matching SetVR(0)
	clcw, err := tc.ReadCLCW(buf)
	if err != nil {
		t.Fatal(err)
	}
	f.HandleCLCW(clcw)
	if f.NextFSN() == nil {
		t.Fatal("expected Fop to be Active after SetVR+matching CLCW")
	}
	return f
}

func TestAdCommandServiceSendsAndTransmitsKnownCommand(t *testing.T) {
	reg := fakeRegistry{"sat1.obc.reset": buildFatSchema(t)}
	var captured capturedTransmit
	transmitter := &fakeTransmitter{got: &captured}
	f := activatedFop(t)
	svc := pipeline.NewAdCommandService(0x123, 0, reg, f, transmitter)

	tco := tcotmiv.Tco{Name: "sat1.obc.reset", Params: []tcotmiv.Param{{Name: "mode", Value: tcotmiv.NewIntParam(1)}}}
	got, err := svc.Handle(context.Background(), tco)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || !got.Success {
		t.Fatalf("expected a successful AdResult, got %+v", got)
	}
	if captured.frameType != tc.TypeAD || captured.sequenceNumber != 0 {
		t.Errorf("unexpected transmit call: %+v", captured)
	}
	var zeroID xid.ID
	if got.FrameID == zeroID {
		t.Error("expected a non-zero frame ID")
	}
}

func TestAdCommandServiceReturnsNilForUnknownCommand(t *testing.T) {
	reg := fakeRegistry{}
	var captured capturedTransmit
	transmitter := &fakeTransmitter{got: &captured}
	svc := pipeline.NewAdCommandService(0x123, 0, reg, activatedFop(t), transmitter)

	got, err := svc.Handle(context.Background(), tcotmiv.Tco{Name: "sat1.obc.nosuch"})
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Error("expected a nil response for an unknown command")
	}
}

func TestAdCommandServiceReportsFailureWhenFopNotActive(t *testing.T) {
	reg := fakeRegistry{"sat1.obc.reset": buildFatSchema(t)}
	var captured capturedTransmit
	transmitter := &fakeTransmitter{got: &captured}
	svc := pipeline.NewAdCommandService(0x123, 0, reg, fop1.New(), transmitter)

	tco := tcotmiv.Tco{Name: "sat1.obc.reset", Params: []tcotmiv.Param{{Name: "mode", Value: tcotmiv.NewIntParam(1)}}}
	got, err := svc.Handle(context.Background(), tco)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Success {
		t.Fatalf("expected AdResult{Success: false}, got %+v", got)
	}
}

func TestAdCommandServiceRetransmitLoopReturnsWhenContextDone(t *testing.T) {
	reg := fakeRegistry{"sat1.obc.reset": buildFatSchema(t)}
	var captured capturedTransmit
	transmitter := &fakeTransmitter{got: &captured}
	f := activatedFop(t)
	svc := pipeline.NewAdCommandService(0x123, 0, reg, f, transmitter)

	tco := tcotmiv.Tco{Name: "sat1.obc.reset", Params: []tcotmiv.Param{{Name: "mode", Value: tcotmiv.NewIntParam(1)}}}
	if _, err := svc.Handle(context.Background(), tco); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	svc.RunRetransmitLoop(ctx, 10*time.Millisecond)

	// FOP-1's timeout (5s) hasn't elapsed within this short test window,
	// so the loop should have ticked without finding anything to
	// retransmit; this only exercises that the loop runs and returns
	// promptly once ctx is done rather than hanging.
	if ctx.Err() == nil {
		t.Fatal("expected context to be done after RunRetransmitLoop returns")
	}
}
