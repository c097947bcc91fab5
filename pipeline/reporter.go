package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/groundstation/tmtc-broker/ccsds/aos"
	"github.com/groundstation/tmtc-broker/ccsds/spacepacket"
	"github.com/groundstation/tmtc-broker/ccsds/tc"
	"github.com/groundstation/tmtc-broker/fop1"
	"github.com/groundstation/tmtc-broker/handler"
	"github.com/groundstation/tmtc-broker/metrics"
	"github.com/groundstation/tmtc-broker/registry"
	"github.com/groundstation/tmtc-broker/tcotmiv"
	"github.com/groundstation/tmtc-broker/transport"
)

// TelemetryRegistry resolves an (APID, telemetry ID) pair to its fat
// schema and reports which ground channels a telemetry's destination
// flags match. Satisfied by *registry.TelemetryRegistry directly or by
// *registry.TelemetryRegistryRef, so a SIGHUP reload can swap the
// registry this reporter reads from without re-wiring it.
type TelemetryRegistry interface {
	Lookup(apid uint16, telemetryID uint8) (registry.FatTelemetrySchema, bool)
	FindChannels(destinationFlags uint8) []string
}

// tmivBuilder turns one Space Packet's bytes into the Tmivs it fans
// out to, one per matching ground channel. Grounded on
// tmtc-c2a/src/satellite.rs's TmivBuilder.
type tmivBuilder struct {
	tlmRegistry TelemetryRegistry
}

func (b *tmivBuilder) build(pluginReceivedTime time.Time, packetBytes []byte, pkt spacepacket.Packet) ([]*tcotmiv.Tmiv, error) {
	apid := pkt.PrimaryHeader.APID()
	sh, userData, err := spacepacket.ReadTMSecondaryHeader(pkt.PacketData)
	if err != nil {
		return nil, err
	}
	tlmID := sh.TelemetryID()
	telemetry, ok := b.tlmRegistry.Lookup(apid, tlmID)
	if !ok {
		return nil, errUnknownTelemetry(apid, tlmID)
	}
	channels := b.tlmRegistry.FindChannels(sh.DestinationFlags())

	fields, err := buildFields(telemetry.Schema, userData)
	if err != nil {
		return nil, err
	}

	tmivs := make([]*tcotmiv.Tmiv, len(channels))
	for i, channel := range channels {
		tmivs[i] = &tcotmiv.Tmiv{
			Name:               telemetry.TmivName(channel),
			Fields:             fields,
			PluginReceivedTime: pluginReceivedTime,
		}
	}
	return tmivs, nil
}

// TelemetryReporter pulls AOS transfer frames off a receiver, demuxes
// them by virtual channel, reassembles Space Packets, and delivers the
// Tmivs they decode to a telemetry handler. Grounded on
// tmtc-c2a/src/satellite.rs's TelemetryReporter.
type TelemetryReporter struct {
	aosSCID     uint8
	receiver    transport.AOSReceiver
	tmivBuilder tmivBuilder
	trailerLen  int
	fop         *fop1.Fop
}

// NewTelemetryReporter builds a TelemetryReporter for frames carrying
// aosSCID, read from receiver, with a fixed trailerLen (0 when the
// mission profile carries no Operational Control Field). When
// trailerLen is 4 (a CLCW-sized trailer), every frame's trailer is
// parsed and delivered to fop; fop may be nil for a mission profile
// without a COP-1 return link.
func NewTelemetryReporter(aosSCID uint8, trailerLen int, tlmRegistry TelemetryRegistry, receiver transport.AOSReceiver, fop *fop1.Fop) *TelemetryReporter {
	return &TelemetryReporter{
		aosSCID:     aosSCID,
		receiver:    receiver,
		tmivBuilder: tmivBuilder{tlmRegistry: tlmRegistry},
		trailerLen:  trailerLen,
		fop:         fop,
	}
}

// Run consumes frames from the receiver until ctx is canceled or
// receiving fails, delivering every decoded Tmiv to tlmHandler.
func (r *TelemetryReporter) Run(ctx context.Context, tlmHandler handler.Handle[*tcotmiv.Tmiv, struct{}]) error {
	var demuxer aos.Demuxer
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		frameBuf, err := r.receiver.Receive(ctx)
		if err != nil {
			return err
		}
		pluginReceivedTime := time.Now()
		decodeStart := time.Now()

		tf, err := aos.Parse(frameBuf, r.trailerLen)
		if err != nil {
			log.Printf("transfer frame is too short (%d bytes): %x", len(frameBuf), frameBuf)
			metrics.DroppedEventCount.WithLabelValues("frame_too_short").Inc()
			continue
		}
		if tf.PrimaryHeader.SpacecraftID() != r.aosSCID {
			log.Printf("unknown SCID: %d", tf.PrimaryHeader.SpacecraftID())
			metrics.DroppedEventCount.WithLabelValues("scid_mismatch").Inc()
			continue
		}
		if r.fop != nil && r.trailerLen == 4 {
			if clcw, err := tc.ReadCLCW(tf.Trailer); err != nil {
				log.Printf("failed to parse CLCW trailer: %v", err)
				metrics.DroppedEventCount.WithLabelValues("clcw_parse_failure").Inc()
			} else {
				r.fop.HandleCLCW(clcw)
			}
		}
		vcid := tf.PrimaryHeader.VirtualChannelID()
		vc := demuxer.Demux(vcid)
		frameCount := tf.PrimaryHeader.FrameCount()
		if expected, ok := vc.Synchronizer.Next(frameCount); !ok {
			log.Printf("vcid=%d: some transfer frames have been dropped: expected frame count %d but got %d", vcid, expected, frameCount)
			metrics.DroppedEventCount.WithLabelValues("frame_gap").Inc()
			vc.Defragmenter.Reset()
		}
		if _, err := vc.Defragmenter.Push(tf.DataUnitZone); err != nil {
			log.Printf("vcid=%d: malformed M_PDU: %v", vcid, err)
			metrics.DroppedEventCount.WithLabelValues("malformed_mpdu").Inc()
			vc.Synchronizer.Reset()
			vc.Defragmenter.Reset()
			continue
		}

		for {
			packetBytes, pkt, ok := vc.Defragmenter.ReadPacket()
			if !ok {
				break
			}
			if pkt.PrimaryHeader.IsIdlePacket() {
				vc.Defragmenter.Advance()
				continue
			}
			tmivs, err := r.tmivBuilder.build(pluginReceivedTime, packetBytes, pkt)
			if err != nil {
				log.Printf("vcid=%d: failed to build TMIV from space packet: %v", vcid, err)
				metrics.DroppedEventCount.WithLabelValues("schema_validation_failure").Inc()
				vc.Defragmenter.Reset()
				break
			}
			for _, tmiv := range tmivs {
				// nudge the clock per emitted Tmiv so fan-out Tmivs from
				// the same packet don't collide on PluginReceivedTime.
				tmiv.PluginReceivedTime = pluginReceivedTime
				pluginReceivedTime = pluginReceivedTime.Add(time.Nanosecond)
				if _, err := tlmHandler.Handle(ctx, tmiv); err != nil {
					log.Printf("failed to handle telemetry: %v", err)
				}
			}
			vc.Defragmenter.Advance()
		}
		metrics.FrameDecodeLatency.Observe(time.Since(decodeStart).Seconds())
	}
}

func errUnknownTelemetry(apid uint16, telemetryID uint8) error {
	return fmt.Errorf("pipeline: unknown telemetry_id %d from apid %d", telemetryID, apid)
}
