package pipeline

import (
	"context"
	"log"
	"time"

	"github.com/rs/xid"

	"github.com/groundstation/tmtc-broker/fop1"
	"github.com/groundstation/tmtc-broker/metrics"
	"github.com/groundstation/tmtc-broker/tcotmiv"
	"github.com/groundstation/tmtc-broker/transport"
)

// AdResult reports the outcome of a PostAdCommand call: whether FOP-1
// accepted the frame for reliable delivery, and, if so, the frame
// identity later FrameEvents reference.
type AdResult struct {
	Success bool
	FrameID xid.ID
}

// AdCommandService dispatches sanitized Tcos known to its command
// registry as reliable Type-AD commands through FOP-1, returning false
// (no error) for names it doesn't own. Grounded on
// tmtc-c2a/src/satellite.rs's Service, split from UplinkService because
// the AD path additionally needs a *fop1.Fop to queue onto.
type AdCommandService struct {
	tcSCID      uint16
	vcid        uint8
	registry    CommandRegistry
	fop         *fop1.Fop
	transmitter transport.TCTransmitter
}

// NewAdCommandService builds an AdCommandService queuing AD frames onto
// fop and transmitting them on vcid of tcSCID.
func NewAdCommandService(tcSCID uint16, vcid uint8, registry CommandRegistry, fop *fop1.Fop, transmitter transport.TCTransmitter) *AdCommandService {
	return &AdCommandService{tcSCID: tcSCID, vcid: vcid, registry: registry, fop: fop, transmitter: transmitter}
}

func (s *AdCommandService) transmitFrame(ctx context.Context, frame fop1.Frame) error {
	return s.transmitter.Transmit(ctx, s.tcSCID, s.vcid, frame.FrameType, frame.SequenceNumber, frame.DataField)
}

// Handle implements handler.Handle, returning a non-nil *AdResult if
// tco.Name was recognized. AdResult.Success is false (rather than an
// error) if FOP-1 is not currently Active and cannot accept new AD
// frames.
func (s *AdCommandService) Handle(ctx context.Context, tco tcotmiv.Tco) (*AdResult, error) {
	fatSchema, ok := s.registry.Lookup(tco.Name)
	if !ok {
		return nil, nil
	}
	cmdCtx := commandContext{tcSCID: s.tcSCID, vcid: s.vcid, fatSchema: fatSchema, tco: tco}
	var dataField [maxTCDataFieldSize]byte
	n, err := cmdCtx.buildTCSegment(dataField[:])
	if err != nil {
		return nil, err
	}
	frame, ok := s.fop.SendAD(append([]byte(nil), dataField[:n]...))
	if !ok {
		return &AdResult{Success: false}, nil
	}
	if err := s.transmitFrame(ctx, frame); err != nil {
		return nil, err
	}
	metrics.CommandsSentCount.WithLabelValues("AD").Inc()
	return &AdResult{Success: true, FrameID: frame.ID}, nil
}

// RunRetransmitLoop polls fop.Update on every tick of interval for as
// long as ctx is live, transmitting any frame FOP-1 hands back
// (a fresh retransmission, per COP-1 timeout handling). Transmit
// failures are logged and not reported to the caller; they do not
// stop the loop, matching spec.md's "fatal to
// the affected direction" wording being the supervisor's job, not
// this loop's.
func (s *AdCommandService) RunRetransmitLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	lastTick, err := transport.MonotonicNow()
	if err != nil {
		log.Printf("pipeline: reading monotonic clock: %v", err)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if now, err := transport.MonotonicNow(); err == nil {
				if drift := now - lastTick - interval; drift > interval {
					log.Printf("pipeline: retransmit ticker drifted %s past its %s interval", drift, interval)
				}
				lastTick = now
			}
			frame, ok := s.fop.Update()
			if !ok {
				continue
			}
			if err := s.transmitFrame(ctx, frame); err != nil {
				log.Printf("pipeline: AD retransmit of frame %s failed: %v", frame.ID, err)
			}
		}
	}
}
