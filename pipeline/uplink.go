package pipeline

import (
	"context"
	"fmt"

	"github.com/groundstation/tmtc-broker/ccsds/spacepacket"
	"github.com/groundstation/tmtc-broker/ccsds/tc"
	"github.com/groundstation/tmtc-broker/handler"
	"github.com/groundstation/tmtc-broker/metrics"
	"github.com/groundstation/tmtc-broker/registry"
	"github.com/groundstation/tmtc-broker/tcotmiv"
	"github.com/groundstation/tmtc-broker/transport"
)

// maxTCDataFieldSize bounds a single, unsegmented command packet's
// encoded size within a Type-BD frame's data field.
const maxTCDataFieldSize = 1017

// segmentMapID is the fixed Multiplexer Access Point identifier this
// ground segment always addresses, mirroring the onboard software's
// expectation in gaia-ccsds-c2a/src/ccsds_c2a/tc/segment.rs's
// use_default.
const segmentMapID = 0b10

// commandContext builds and transmits one TC segment for a sanitized
// Tco against its resolved schema. Grounded on
// tmtc-c2a/src/satellite.rs's CommandContext.
type commandContext struct {
	tcSCID    uint16
	vcid      uint8
	fatSchema registry.FatCommandSchema
	tco       tcotmiv.Tco
}

func (c commandContext) paramByName(name string) (tcotmiv.ParamValue, bool) {
	for _, p := range c.tco.Params {
		if p.Name == name {
			return p.Value, true
		}
	}
	return tcotmiv.ParamValue{}, false
}

// buildTCSegment writes a complete TC segment (segment header, Space
// Packet primary+secondary header, packed command parameters) into
// dataFieldBuf and returns the number of bytes written.
func (c commandContext) buildTCSegment(dataFieldBuf []byte) (int, error) {
	segWriter, err := tc.NewSegmentHeaderWriter(dataFieldBuf)
	if err != nil {
		return 0, err
	}
	segWriter.SetMapID(segmentMapID)
	segWriter.SetSequenceFlag(tc.NoSegmentation)

	spaceBuf := dataFieldBuf[tc.SegmentHeaderSize:]
	phWriter, err := spacepacket.NewPrimaryHeaderWriter(spaceBuf)
	if err != nil {
		return 0, err
	}
	phWriter.SetVersionNumber(0)
	phWriter.SetPacketType(spacepacket.Telecommand)
	phWriter.SetSecondaryHeaderFlag(true)
	phWriter.SetSequenceFlag(spacepacket.SeqUnsegmented)
	phWriter.SetAPID(c.fatSchema.APID)

	shBuf := spaceBuf[spacepacket.PrimaryHeaderSize:]
	shWriter, err := spacepacket.NewTCSecondaryHeaderWriter(shBuf)
	if err != nil {
		return 0, err
	}
	shWriter.SetCommandID(c.fatSchema.CommandID)
	shWriter.SetDestinationType(c.fatSchema.DestinationType)
	shWriter.SetExecutionType(c.fatSchema.ExecutionType)
	if c.fatSchema.HasTimeIndicator {
		ti, ok := c.paramByName("time_indicator")
		if !ok || ti.Kind != tcotmiv.ParamInteger {
			return 0, fmt.Errorf("pipeline: command %q declares a time indicator but none was supplied", c.tco.Name)
		}
		shWriter.SetTimeIndicator(uint32(ti.Int))
	} else {
		shWriter.SetTimeIndicator(0)
	}

	userData := shBuf[spacepacket.TCSecondaryHeaderSize:]
	userDataLen, err := tcotmiv.PackCommand(userData, c.fatSchema.Schema, c.tco)
	if err != nil {
		return 0, err
	}

	packetDataLen := spacepacket.TCSecondaryHeaderSize + userDataLen
	if err := phWriter.SetPacketDataLengthInBytes(packetDataLen); err != nil {
		return 0, err
	}
	spacePacketLen := spacepacket.PrimaryHeaderSize + packetDataLen
	return tc.SegmentHeaderSize + spacePacketLen, nil
}

// transmitTo encodes the command as a Type-BD (bypass, unsequenced)
// TC segment and sends it through transmitter.
func (c commandContext) transmitTo(ctx context.Context, transmitter transport.TCTransmitter) error {
	var dataField [maxTCDataFieldSize]byte
	n, err := c.buildTCSegment(dataField[:])
	if err != nil {
		return err
	}
	return transmitter.Transmit(ctx, c.tcSCID, c.vcid, tc.TypeBD, 0, dataField[:n])
}

// CommandRegistry resolves a dotted command name to its fat schema.
type CommandRegistry interface {
	Lookup(name string) (registry.FatCommandSchema, bool)
}

// UplinkService dispatches sanitized Tcos known to its command
// registry onto a TC transmitter, reporting false (no error) for
// names it doesn't own so it can be chained with handler.Choice
// against other subsystems. Grounded on tmtc-c2a/src/satellite.rs's
// Service.
type UplinkService struct {
	tcSCID      uint16
	vcid        uint8
	registry    CommandRegistry
	transmitter transport.TCTransmitter
}

// NewUplinkService builds an UplinkService transmitting on vcid of
// tcSCID.
func NewUplinkService(tcSCID uint16, vcid uint8, registry CommandRegistry, transmitter transport.TCTransmitter) *UplinkService {
	return &UplinkService{tcSCID: tcSCID, vcid: vcid, registry: registry, transmitter: transmitter}
}

// Handle implements handler.Handle, returning a non-nil *struct{} if
// tco.Name was recognized and transmitted.
func (s *UplinkService) Handle(ctx context.Context, tco tcotmiv.Tco) (*struct{}, error) {
	fatSchema, ok := s.registry.Lookup(tco.Name)
	if !ok {
		return nil, nil
	}
	cmdCtx := commandContext{tcSCID: s.tcSCID, vcid: s.vcid, fatSchema: fatSchema, tco: tco}
	if err := cmdCtx.transmitTo(ctx, s.transmitter); err != nil {
		return nil, err
	}
	metrics.CommandsSentCount.WithLabelValues("BD").Inc()
	var ok2 struct{}
	return &ok2, nil
}

var _ handler.Handle[tcotmiv.Tco, *struct{}] = (*UplinkService)(nil)
