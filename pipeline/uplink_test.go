package pipeline_test

import (
	"context"
	"errors"
	"testing"

	"github.com/groundstation/tmtc-broker/bitfield"
	"github.com/groundstation/tmtc-broker/ccsds/spacepacket"
	"github.com/groundstation/tmtc-broker/ccsds/tc"
	"github.com/groundstation/tmtc-broker/pipeline"
	"github.com/groundstation/tmtc-broker/registry"
	"github.com/groundstation/tmtc-broker/tcotmiv"
)

type fakeRegistry map[string]registry.FatCommandSchema

func (r fakeRegistry) Lookup(name string) (registry.FatCommandSchema, bool) {
	fat, ok := r[name]
	return fat, ok
}

type capturedTransmit struct {
	scid           uint16
	vcid           uint8
	frameType      tc.FrameType
	sequenceNumber uint8
	dataField      []byte
}

type fakeTransmitter struct {
	got *capturedTransmit
	err error
}

func (t *fakeTransmitter) Transmit(_ context.Context, scid uint16, vcid uint8, frameType tc.FrameType, sequenceNumber uint8, dataField []byte) error {
	if t.err != nil {
		return t.err
	}
	cp := make([]byte, len(dataField))
	copy(cp, dataField)
	*t.got = capturedTransmit{scid: scid, vcid: vcid, frameType: frameType, sequenceNumber: sequenceNumber, dataField: cp}
	return nil
}

func kindU8() *bitfield.IntegralKind {
	k := bitfield.KindU8
	return &k
}

func buildFatSchema(t *testing.T) registry.FatCommandSchema {
	schema, err := registry.BuildCommandSchema(5, 200, 1, 6, false, "reset", []registry.CommandParameterDef{
		{Name: "mode", Numeric: &registry.NumericKindDef{Integral: kindU8()}},
	})
	if err != nil {
		t.Fatal(err)
	}
	return registry.FatCommandSchema{
		APID: 200, CommandID: 5, DestinationType: 1, ExecutionType: 6, HasTimeIndicator: false,
		Schema: schema,
	}
}

func TestUplinkServiceTransmitsKnownCommand(t *testing.T) {
	reg := fakeRegistry{"sat1.obc.reset": buildFatSchema(t)}
	var captured capturedTransmit
	transmitter := &fakeTransmitter{got: &captured}
	svc := pipeline.NewUplinkService(0x123, 0, reg, transmitter)

	tco := tcotmiv.Tco{Name: "sat1.obc.reset", Params: []tcotmiv.Param{{Name: "mode", Value: tcotmiv.NewIntParam(1)}}}
	got, err := svc.Handle(context.Background(), tco)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("expected a non-nil response for a known command")
	}
	if captured.scid != 0x123 || captured.frameType != tc.TypeBD || captured.sequenceNumber != 0 {
		t.Errorf("unexpected transmit call: %+v", captured)
	}

	segHeader, rest, err := tc.ReadSegmentHeader(captured.dataField)
	if err != nil {
		t.Fatal(err)
	}
	if segHeader.SequenceFlag() != tc.NoSegmentation {
		t.Errorf("sequence flag: got %v want NoSegmentation", segHeader.SequenceFlag())
	}
	ph, err := spacepacket.ReadPrimaryHeader(rest)
	if err != nil {
		t.Fatal(err)
	}
	if ph.APID() != 200 {
		t.Errorf("APID: got %d want 200", ph.APID())
	}
	if ph.PacketType() != spacepacket.Telecommand {
		t.Errorf("expected a telecommand packet type")
	}
	shBytes := rest[spacepacket.PrimaryHeaderSize : spacepacket.PrimaryHeaderSize+spacepacket.TCSecondaryHeaderSize]
	wantCommandID := []byte{0x00, 0x05} // command_id = 5
	if shBytes[2] != wantCommandID[0] || shBytes[3] != wantCommandID[1] {
		t.Errorf("command_id bytes: got %v want %v", shBytes[2:4], wantCommandID)
	}
	userData := rest[spacepacket.PrimaryHeaderSize+spacepacket.TCSecondaryHeaderSize:]
	if userData[0] != 1 {
		t.Errorf("mode param: got %d want 1", userData[0])
	}
}

func TestUplinkServiceReturnsNilForUnknownCommand(t *testing.T) {
	reg := fakeRegistry{}
	var captured capturedTransmit
	transmitter := &fakeTransmitter{got: &captured}
	svc := pipeline.NewUplinkService(0x123, 0, reg, transmitter)

	got, err := svc.Handle(context.Background(), tcotmiv.Tco{Name: "sat1.obc.nosuch"})
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Error("expected a nil response for an unknown command")
	}
}

func TestUplinkServicePropagatesTransmitError(t *testing.T) {
	reg := fakeRegistry{"sat1.obc.reset": buildFatSchema(t)}
	wantErr := errors.New("link down")
	var captured capturedTransmit
	transmitter := &fakeTransmitter{got: &captured, err: wantErr}
	svc := pipeline.NewUplinkService(0x123, 0, reg, transmitter)

	tco := tcotmiv.Tco{Name: "sat1.obc.reset", Params: []tcotmiv.Param{{Name: "mode", Value: tcotmiv.NewIntParam(1)}}}
	if _, err := svc.Handle(context.Background(), tco); !errors.Is(err, wantErr) {
		t.Errorf("got err %v want %v", err, wantErr)
	}
}
