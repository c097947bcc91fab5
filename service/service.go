// Package service exposes the broker's RPC surface (spec.md §6) as a
// plain Go interface over the wired pipeline, registries, and FOP-1
// state machine: no protobuf stubs or gRPC bindings are generated here,
// matching the Non-goals carried through SPEC_FULL.md — a future
// transport binding calls through this interface rather than the
// pipeline packages directly.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/xid"

	"github.com/groundstation/tmtc-broker/broadcast"
	"github.com/groundstation/tmtc-broker/fop1"
	"github.com/groundstation/tmtc-broker/handler"
	"github.com/groundstation/tmtc-broker/pipeline"
	"github.com/groundstation/tmtc-broker/registry"
	"github.com/groundstation/tmtc-broker/tcotmiv"
	"github.com/groundstation/tmtc-broker/telemetry"
	"github.com/groundstation/tmtc-broker/transport"
)

// ErrNotFound is returned by GetLastReceivedTelemetry when the named
// telemetry has never been received.
var ErrNotFound = errors.New("service: telemetry not yet received")

// ErrInvalidArgument is returned when a name or parameter doesn't match
// any registered schema.
var ErrInvalidArgument = errors.New("service: invalid argument")

// AdCommandResult is PostAdCommand's response: whether FOP-1 accepted
// the command for reliable delivery, and the frame identity to
// correlate against SubscribeFopFrameEvents.
type AdCommandResult struct {
	Success bool
	FrameID xid.ID
}

// FopStatus is GetFopStatus's response, matching spec.md §6's field
// list.
type FopStatus struct {
	ReceivedCLCW    bool
	Lockout         bool
	Wait            bool
	Retransmit      bool
	NextExpectedFSN uint8
	NextFSN         *uint8
	State           fop1.StateKind
	RetransmitCount int
}

// SatelliteSchema is GetSatelliteSchema's response: the reflection
// surface of both registries, for a client that wants to discover what
// it can command or subscribe to without a side channel.
type SatelliteSchema struct {
	TelemetryChannels   []string
	TelemetryComponents []registry.TelemetryComponentSchema
	CommandPrefixes     []string
	CommandComponents   []registry.CommandComponentSchema
}

// CommandRegistry is the reflection subset of registry.CommandRegistry
// GetSatelliteSchema needs. Satisfied by *registry.CommandRegistry
// directly or by *registry.CommandRegistryRef, so a reload can swap
// the registry a running Service reads from.
type CommandRegistry interface {
	Prefixes() []string
	Components() []registry.CommandComponentSchema
}

// TelemetryRegistry is the reflection subset of
// registry.TelemetryRegistry GetSatelliteSchema needs. Satisfied by
// *registry.TelemetryRegistry directly or by
// *registry.TelemetryRegistryRef.
type TelemetryRegistry interface {
	Channels() []string
	Components() []registry.TelemetryComponentSchema
}

// Service implements spec.md §6's RPC surface over a wired pipeline.
// Construct with New; the zero value is not usable.
type Service struct {
	tcSCID       uint16
	vcid         uint8
	uplink       handler.Handle[tcotmiv.Tco, *struct{}]
	adUplink     handler.Handle[tcotmiv.Tco, *pipeline.AdResult]
	fop          *fop1.Fop
	transmitter  transport.TCTransmitter
	tmivBus      *telemetry.Bus
	lastValues   *telemetry.LastTmivStore
	commandReg   CommandRegistry
	telemetryReg TelemetryRegistry
}

// New builds a Service. uplink and adUplink are typically the
// recorder/sanitize-wrapped handler.Builder output around
// pipeline.NewUplinkService and pipeline.NewAdCommandService,
// respectively. transmitter sends the BC frames PostSetVr and
// PostUnlock build directly, bypassing FOP-1's AD queue.
func New(
	tcSCID uint16,
	vcid uint8,
	uplink handler.Handle[tcotmiv.Tco, *struct{}],
	adUplink handler.Handle[tcotmiv.Tco, *pipeline.AdResult],
	fop *fop1.Fop,
	transmitter transport.TCTransmitter,
	tmivBus *telemetry.Bus,
	lastValues *telemetry.LastTmivStore,
	commandReg CommandRegistry,
	telemetryReg TelemetryRegistry,
) *Service {
	return &Service{
		tcSCID: tcSCID, vcid: vcid, uplink: uplink, adUplink: adUplink,
		fop: fop, transmitter: transmitter,
		tmivBus: tmivBus, lastValues: lastValues,
		commandReg: commandReg, telemetryReg: telemetryReg,
	}
}

// PostCommand sends tco as a best-effort Type-BD command. It returns
// ErrInvalidArgument if tco's name isn't registered.
func (s *Service) PostCommand(ctx context.Context, tco tcotmiv.Tco) error {
	got, err := s.uplink.Handle(ctx, tco)
	if err != nil {
		return err
	}
	if got == nil {
		return fmt.Errorf("%w: no such command %q", ErrInvalidArgument, tco.Name)
	}
	return nil
}

// PostAdCommand sends tco as a reliable Type-AD command through FOP-1.
func (s *Service) PostAdCommand(ctx context.Context, tco tcotmiv.Tco) (AdCommandResult, error) {
	got, err := s.adUplink.Handle(ctx, tco)
	if err != nil {
		return AdCommandResult{}, err
	}
	if got == nil {
		return AdCommandResult{}, fmt.Errorf("%w: no such command %q", ErrInvalidArgument, tco.Name)
	}
	return AdCommandResult{Success: got.Success, FrameID: got.FrameID}, nil
}

// PostSetVr forces FOP-1's V(R) to vr and transmits the BC frame
// carrying the directive.
func (s *Service) PostSetVr(ctx context.Context, vr uint8) error {
	frame := s.fop.SetVR(vr)
	return s.transmitter.Transmit(ctx, s.tcSCID, s.vcid, frame.FrameType, frame.SequenceNumber, frame.DataField)
}

// PostUnlock transmits the BC frame carrying the Unlock directive.
func (s *Service) PostUnlock(ctx context.Context) error {
	frame := s.fop.Unlock()
	return s.transmitter.Transmit(ctx, s.tcSCID, s.vcid, frame.FrameType, frame.SequenceNumber, frame.DataField)
}

// ClearAd cancels every outstanding AD frame without resetting FOP-1's
// sequence numbers.
func (s *Service) ClearAd() {
	s.fop.ClearAD()
}

// OpenTelemetryStream subscribes to every Tmiv published from this
// point forward. Call UnsubscribeTelemetryStream with the same
// channel when the caller disconnects.
func (s *Service) OpenTelemetryStream() <-chan broadcast.Message[*tcotmiv.Tmiv] {
	return s.tmivBus.Subscribe()
}

// UnsubscribeTelemetryStream detaches a channel returned by
// OpenTelemetryStream.
func (s *Service) UnsubscribeTelemetryStream(ch <-chan broadcast.Message[*tcotmiv.Tmiv]) {
	s.tmivBus.Unsubscribe(ch)
}

// GetLastReceivedTelemetry returns the most recently received Tmiv for
// name. It returns ErrInvalidArgument if name isn't a known telemetry,
// and ErrNotFound if it is known but none has arrived yet.
func (s *Service) GetLastReceivedTelemetry(name string) (*tcotmiv.Tmiv, error) {
	tmiv, err := s.lastValues.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if tmiv == nil {
		return nil, ErrNotFound
	}
	return tmiv, nil
}

// SubscribeFopFrameEvents returns a channel of FOP-1 frame lifecycle
// events.
func (s *Service) SubscribeFopFrameEvents() <-chan broadcast.Message[fop1.FrameEvent] {
	return s.fop.SubscribeFrameEvents()
}

// UnsubscribeFopFrameEvents detaches a channel returned by
// SubscribeFopFrameEvents.
func (s *Service) UnsubscribeFopFrameEvents(ch <-chan broadcast.Message[fop1.FrameEvent]) {
	s.fop.UnsubscribeFrameEvents(ch)
}

// GetFopStatus reports FOP-1's current state.
func (s *Service) GetFopStatus() FopStatus {
	st := s.fop.Status()
	status := FopStatus{
		State:           st.Kind,
		RetransmitCount: st.RetransmitCount,
		NextFSN:         st.NextFSN,
	}
	if st.ReceivedCLCW != nil {
		status.ReceivedCLCW = true
		status.Lockout = st.ReceivedCLCW.Lockout
		status.Wait = st.ReceivedCLCW.Wait
		status.Retransmit = st.ReceivedCLCW.Retransmit
		status.NextExpectedFSN = st.ReceivedCLCW.NextExpectedFSN
	}
	return status
}

// GetSatelliteSchema returns the full reflection surface of both
// registries.
func (s *Service) GetSatelliteSchema() SatelliteSchema {
	return SatelliteSchema{
		TelemetryChannels:   s.telemetryReg.Channels(),
		TelemetryComponents: s.telemetryReg.Components(),
		CommandPrefixes:     s.commandReg.Prefixes(),
		CommandComponents:   s.commandReg.Components(),
	}
}
