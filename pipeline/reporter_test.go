package pipeline_test

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/groundstation/tmtc-broker/bitfield"
	"github.com/groundstation/tmtc-broker/ccsds/aos"
	"github.com/groundstation/tmtc-broker/ccsds/spacepacket"
	"github.com/groundstation/tmtc-broker/fop1"
	"github.com/groundstation/tmtc-broker/pipeline"
	"github.com/groundstation/tmtc-broker/registry"
	"github.com/groundstation/tmtc-broker/satconfig"
	"github.com/groundstation/tmtc-broker/tcotmiv"
)

// buildTMSecondaryHeader hand-builds the 20-byte C2A telemetry secondary
// header: every field in it is byte-aligned, so there is no need to
// route through a bit-field writer.
func buildTMSecondaryHeader(telemetryID, destFlags uint8) []byte {
	buf := make([]byte, spacepacket.TMSecondaryHeaderSize)
	buf[0] = 0 // version_number
	// buf[1:5] board_time left zero
	buf[5] = telemetryID
	// buf[6:14] global_time left zero
	// buf[14:18] onboard_subnetwork_time left zero
	buf[18] = destFlags
	buf[19] = 0 // data_recorder_partition
	return buf
}

func buildTMPacket(apid uint16, telemetryID, destFlags, value uint8) []byte {
	sh := buildTMSecondaryHeader(telemetryID, destFlags)
	userData := []byte{value}
	packetDataLen := len(sh) + len(userData)

	buf := make([]byte, spacepacket.PrimaryHeaderSize+packetDataLen)
	ph, err := spacepacket.NewPrimaryHeaderWriter(buf)
	if err != nil {
		panic(err)
	}
	ph.SetVersionNumber(0)
	ph.SetPacketType(spacepacket.Telemetry)
	ph.SetSecondaryHeaderFlag(true)
	ph.SetSequenceFlag(spacepacket.SeqUnsegmented)
	ph.SetAPID(apid)
	if err := ph.SetPacketDataLengthInBytes(packetDataLen); err != nil {
		panic(err)
	}
	copy(buf[spacepacket.PrimaryHeaderSize:], sh)
	copy(buf[spacepacket.PrimaryHeaderSize+len(sh):], userData)
	return buf
}

// buildAOSFrame wraps a single complete Space Packet, starting at the
// very beginning of the packet zone, into one AOS transfer frame with
// no trailer.
func buildAOSFrame(scid, vcid uint8, frameCount aos.FrameCount, packet []byte) []byte {
	mpduHeader := make([]byte, aos.MPDUHeaderSize)
	mw, err := aos.NewMPDUHeaderWriter(mpduHeader)
	if err != nil {
		panic(err)
	}
	mw.SetFirstHeaderPointer(aos.FirstHeaderPointer{Kind: aos.PointerOffset, Offset: 0})

	dataUnitZone := append(append([]byte{}, mw.Bytes()...), packet...)

	frame := make([]byte, aos.PrimaryHeaderSize+len(dataUnitZone))
	pw, err := aos.NewPrimaryHeaderWriter(frame)
	if err != nil {
		panic(err)
	}
	pw.SetVersionNumber(0)
	pw.SetSpacecraftID(scid)
	pw.SetVirtualChannelID(vcid)
	if err := pw.SetFrameCount(frameCount); err != nil {
		panic(err)
	}
	copy(frame[aos.PrimaryHeaderSize:], dataUnitZone)
	return frame
}

func buildIdleAOSFrame(scid, vcid uint8, frameCount aos.FrameCount) []byte {
	idle := make([]byte, spacepacket.PrimaryHeaderSize+1)
	ph, err := spacepacket.NewPrimaryHeaderWriter(idle)
	if err != nil {
		panic(err)
	}
	ph.SetAPID(spacepacket.IdleAPID)
	if err := ph.SetPacketDataLengthInBytes(1); err != nil {
		panic(err)
	}
	return buildAOSFrame(scid, vcid, frameCount, idle)
}

func buildTestRegistry(t *testing.T) *registry.TelemetryRegistry {
	kind := bitfield.KindU8
	def := registry.TelemetryDef{
		Component:   "obc",
		Telemetry:   "status",
		TelemetryID: 7,
		IntegralFields: []registry.IntegralFieldDef{
			{Name: "value", Kind: kind, Range: bitfield.Range{Start: 0, End: 8}},
		},
	}
	apids := map[string][]uint16{"obc": {100}}
	channels := satconfig.TelemetryChannelMap{
		"ch1": {DestinationFlagMask: 0x01},
		"ch2": {DestinationFlagMask: 0x02},
	}
	reg, err := registry.NewTelemetryRegistry([]registry.TelemetryDef{def}, apids, channels)
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

var errNoMoreFrames = errors.New("no more frames")

type frameSeqReceiver struct {
	frames [][]byte
	i      int
}

func (r *frameSeqReceiver) Receive(ctx context.Context) ([]byte, error) {
	if r.i >= len(r.frames) {
		return nil, errNoMoreFrames
	}
	f := r.frames[r.i]
	r.i++
	return f, nil
}

type capturingHandler struct {
	tmivs []*tcotmiv.Tmiv
}

func (h *capturingHandler) Handle(ctx context.Context, tmiv *tcotmiv.Tmiv) (struct{}, error) {
	h.tmivs = append(h.tmivs, tmiv)
	return struct{}{}, nil
}

func fieldValue(t *testing.T, tmiv *tcotmiv.Tmiv, name string) tcotmiv.FieldValue {
	t.Helper()
	for _, f := range tmiv.Fields {
		if f.Name == name {
			return f.Value
		}
	}
	t.Fatalf("tmiv %q: no field named %q", tmiv.Name, name)
	return tcotmiv.FieldValue{}
}

func TestTelemetryReporterDeliversSingleChannelTmiv(t *testing.T) {
	reg := buildTestRegistry(t)
	packet := buildTMPacket(100, 7, 0x01, 42)
	frame := buildAOSFrame(9, 1, 0, packet)
	receiver := &frameSeqReceiver{frames: [][]byte{frame}}
	reporter := pipeline.NewTelemetryReporter(9, 0, reg, receiver, nil)

	capture := &capturingHandler{}
	err := reporter.Run(context.Background(), capture)
	if !errors.Is(err, errNoMoreFrames) {
		t.Fatalf("unexpected Run error: %v", err)
	}

	if len(capture.tmivs) != 1 {
		t.Fatalf("got %d tmivs, want 1", len(capture.tmivs))
	}
	tmiv := capture.tmivs[0]
	if tmiv.Name != "ch1.obc.status" {
		t.Errorf("tmiv name: got %q want ch1.obc.status", tmiv.Name)
	}
	v := fieldValue(t, tmiv, "value")
	if v.Kind != tcotmiv.FieldInteger || v.Int != 42 {
		t.Errorf("value field: got %+v want Int=42", v)
	}
	raw := fieldValue(t, tmiv, "value@RAW")
	if raw.Kind != tcotmiv.FieldBytes || len(raw.Bytes) != 1 || raw.Bytes[0] != 42 {
		t.Errorf("value@RAW field: got %+v want [42]", raw)
	}
}

func TestTelemetryReporterFansOutToMultipleChannelsWithDistinctTimestamps(t *testing.T) {
	reg := buildTestRegistry(t)
	packet := buildTMPacket(100, 7, 0x03, 7) // matches both ch1 and ch2
	frame := buildAOSFrame(9, 1, 0, packet)
	receiver := &frameSeqReceiver{frames: [][]byte{frame}}
	reporter := pipeline.NewTelemetryReporter(9, 0, reg, receiver, nil)

	capture := &capturingHandler{}
	if err := reporter.Run(context.Background(), capture); !errors.Is(err, errNoMoreFrames) {
		t.Fatalf("unexpected Run error: %v", err)
	}

	if len(capture.tmivs) != 2 {
		t.Fatalf("got %d tmivs, want 2", len(capture.tmivs))
	}
	names := map[string]bool{capture.tmivs[0].Name: true, capture.tmivs[1].Name: true}
	if !names["ch1.obc.status"] || !names["ch2.obc.status"] {
		t.Errorf("unexpected tmiv names: %v", names)
	}
	if !capture.tmivs[1].PluginReceivedTime.After(capture.tmivs[0].PluginReceivedTime) {
		t.Error("tmivs fanned out from the same packet should carry strictly increasing PluginReceivedTimes")
	}
}

func TestTelemetryReporterNudgesTimestampBetweenPackets(t *testing.T) {
	reg := buildTestRegistry(t)
	frame1 := buildAOSFrame(9, 1, 0, buildTMPacket(100, 7, 0x01, 1))
	frame2 := buildAOSFrame(9, 1, 1, buildTMPacket(100, 7, 0x01, 2))
	receiver := &frameSeqReceiver{frames: [][]byte{frame1, frame2}}
	reporter := pipeline.NewTelemetryReporter(9, 0, reg, receiver, nil)

	capture := &capturingHandler{}
	if err := reporter.Run(context.Background(), capture); !errors.Is(err, errNoMoreFrames) {
		t.Fatalf("unexpected Run error: %v", err)
	}
	if len(capture.tmivs) != 2 {
		t.Fatalf("got %d tmivs, want 2", len(capture.tmivs))
	}
	if !capture.tmivs[1].PluginReceivedTime.After(capture.tmivs[0].PluginReceivedTime) {
		t.Error("expected the second packet's tmiv to carry a strictly later PluginReceivedTime")
	}
}

func TestTelemetryReporterSkipsFramesWithUnknownSCID(t *testing.T) {
	reg := buildTestRegistry(t)
	wrongSCID := buildAOSFrame(200, 1, 0, buildTMPacket(100, 7, 0x01, 1))
	receiver := &frameSeqReceiver{frames: [][]byte{wrongSCID}}
	reporter := pipeline.NewTelemetryReporter(9, 0, reg, receiver, nil)

	capture := &capturingHandler{}
	if err := reporter.Run(context.Background(), capture); !errors.Is(err, errNoMoreFrames) {
		t.Fatalf("unexpected Run error: %v", err)
	}
	if len(capture.tmivs) != 0 {
		t.Errorf("expected no tmivs for a frame with an unrecognized SCID, got %d", len(capture.tmivs))
	}
}

func TestTelemetryReporterSkipsIdlePackets(t *testing.T) {
	reg := buildTestRegistry(t)
	receiver := &frameSeqReceiver{frames: [][]byte{buildIdleAOSFrame(9, 1, 0)}}
	reporter := pipeline.NewTelemetryReporter(9, 0, reg, receiver, nil)

	capture := &capturingHandler{}
	if err := reporter.Run(context.Background(), capture); !errors.Is(err, errNoMoreFrames) {
		t.Fatalf("unexpected Run error: %v", err)
	}
	if len(capture.tmivs) != 0 {
		t.Errorf("expected no tmivs for an idle packet, got %d", len(capture.tmivs))
	}
}

func TestTelemetryReporterRecoversAfterFrameDrop(t *testing.T) {
	reg := buildTestRegistry(t)
	frame1 := buildAOSFrame(9, 1, 0, buildTMPacket(100, 7, 0x01, 1))
	// frame count jumps from 0 to 2: one frame was lost. The synchronizer
	// should report the gap and reset the defragmenter rather than
	// reassembling bytes across the loss, but a complete packet starting
	// fresh in the surviving frame should still decode.
	frame3 := buildAOSFrame(9, 1, 2, buildTMPacket(100, 7, 0x01, 9))
	receiver := &frameSeqReceiver{frames: [][]byte{frame1, frame3}}
	reporter := pipeline.NewTelemetryReporter(9, 0, reg, receiver, nil)

	capture := &capturingHandler{}
	if err := reporter.Run(context.Background(), capture); !errors.Is(err, errNoMoreFrames) {
		t.Fatalf("unexpected Run error: %v", err)
	}
	if len(capture.tmivs) != 2 {
		t.Fatalf("got %d tmivs, want 2", len(capture.tmivs))
	}
	if fieldValue(t, capture.tmivs[1], "value").Int != 9 {
		t.Errorf("expected the post-gap packet to decode cleanly, got %+v", capture.tmivs[1])
	}
}

func TestTelemetryReporterStopsOnContextCancellation(t *testing.T) {
	reg := buildTestRegistry(t)
	receiver := &frameSeqReceiver{frames: nil}
	reporter := pipeline.NewTelemetryReporter(9, 0, reg, receiver, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	capture := &capturingHandler{}
	if err := reporter.Run(ctx, capture); !errors.Is(err, context.Canceled) {
		t.Errorf("got err %v want context.Canceled", err)
	}
}

func buildAOSFrameWithCLCWTrailer(scid, vcid uint8, frameCount aos.FrameCount, packet []byte, clcw []byte) []byte {
	bare := buildAOSFrame(scid, vcid, frameCount, packet)
	return append(bare, clcw...)
}

func TestTelemetryReporterDeliversCLCWTrailerToFop(t *testing.T) {
	reg := buildTestRegistry(t)
	packet := buildTMPacket(100, 7, 0x01, 42)
	// control_word_type=0, cop_in_effect=0, vcid=1, report_value=5, no
	// lockout/wait/retransmit flags set.
	clcw := []byte{0x00, 0x04, 0x00, 0x05}
	frame := buildAOSFrameWithCLCWTrailer(9, 1, 0, packet, clcw)
	receiver := &frameSeqReceiver{frames: [][]byte{frame}}

	fop := fop1.New()
	fop.SetVR(5)
	reporter := pipeline.NewTelemetryReporter(9, 4, reg, receiver, fop)

	handler := &capturingHandler{}
	err := reporter.Run(context.Background(), handler)
	if !errors.Is(err, errNoMoreFrames) {
		t.Fatalf("unexpected error: %v", err)
	}

	status := fop.Status()
	if status.ReceivedCLCW == nil {
		t.Fatal("expected fop to have processed the CLCW trailer")
	}
	if status.ReceivedCLCW.NextExpectedFSN != 5 {
		t.Errorf("NextExpectedFSN: got %d want 5", status.ReceivedCLCW.NextExpectedFSN)
	}
	if status.Kind != fop1.StateActive {
		t.Errorf("state: got %v want Active", status.Kind)
	}
}

// sanity check that our hand-built secondary header layout matches the
// codec's own field positions.
func TestBuildTMSecondaryHeaderRoundTrips(t *testing.T) {
	sh := buildTMSecondaryHeader(7, 0x01)
	parsed, _, err := spacepacket.ReadTMSecondaryHeader(sh)
	if err != nil {
		t.Fatal(err)
	}
	if parsed.TelemetryID() != 7 {
		t.Errorf("telemetry id: got %d want 7", parsed.TelemetryID())
	}
	if parsed.DestinationFlags() != 0x01 {
		t.Errorf("destination flags: got %d want 1", parsed.DestinationFlags())
	}
	if binary.BigEndian.Uint32(sh[1:5]) != parsed.BoardTime() {
		t.Error("board_time byte layout mismatch")
	}
}
