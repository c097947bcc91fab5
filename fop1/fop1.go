// Package fop1 implements the ground side of CCSDS COP-1: the FOP-1
// state machine that tracks outstanding AD frames, reacts to CLCW
// reports from FARM-1 on the spacecraft, and drives retransmission on
// timeout or an explicit Retransmit request.
package fop1

import (
	"sync"
	"time"

	"github.com/groundstation/tmtc-broker/broadcast"
	"github.com/groundstation/tmtc-broker/ccsds/tc"
	"github.com/groundstation/tmtc-broker/metrics"
	"github.com/rs/xid"
)

// timeout is how long FOP-1 waits for a CLCW acknowledgement of the
// oldest outstanding AD frame before entering the Retransmit state.
const timeout = 5 * time.Second

// frameEventBusCapacity matches the 16-slot event channel the Rust
// implementation subscribes against.
const frameEventBusCapacity = 16

func wrappingLE(a, b uint8) bool {
	return b-a < 128
}

func wrappingLT(a, b uint8) bool {
	return a != b && wrappingLE(a, b)
}

// FarmState is the ground's interpretation of the most recently received
// CLCW, cached so status queries don't need to re-parse the wire word.
type FarmState struct {
	NextExpectedFSN uint8
	Lockout         bool
	Wait            bool
	Retransmit      bool
}

func farmStateFromCLCW(c tc.CLCW) FarmState {
	return FarmState{
		NextExpectedFSN: c.ReportValue(),
		Lockout:         c.Lockout(),
		Wait:            c.Wait(),
		Retransmit:      c.Retransmit(),
	}
}

// Frame is a transfer frame FOP-1 has built and handed to the transport
// layer (or is about to), along with enough metadata for the rest of the
// pipeline to track its lifecycle. IDs are globally unique, sortable
// xids rather than a mutex-guarded counter, so frame identity survives
// across a future multi-process deployment without coordination.
type Frame struct {
	ID             xid.ID
	FrameType      tc.FrameType
	SequenceNumber uint8
	DataField      []byte
}

// EventKind classifies a FrameEvent.
type EventKind int

// Event kinds.
const (
	EventTransmit EventKind = iota
	EventAcknowledged
	EventRetransmit
	EventCancel
)

// FrameEvent reports a lifecycle transition for an AD frame previously
// returned from SendAD, identified by its FrameID. Frames returned from
// SetVR and Unlock produce no events.
type FrameEvent struct {
	Kind    EventKind
	FrameID xid.ID
}

type sentFrame struct {
	frame          *Frame
	sentAt         time.Time
	sequenceNumber uint8
}

func removeAcknowledgedFrames(queue []sentFrame, acknowledgedFSN uint8, onAcknowledge func(sentFrame)) ([]sentFrame, int) {
	ackCount := 0
	for len(queue) > 0 && wrappingLT(queue[0].sequenceNumber, acknowledgedFSN) {
		onAcknowledge(queue[0])
		queue = queue[1:]
		ackCount++
	}
	return queue, ackCount
}

type stateKind int

const (
	stateInitial stateKind = iota
	stateActive
	stateRetransmit
)

type activeState struct {
	nextFSN   uint8
	sentQueue []sentFrame
}

func (s *activeState) timedOut() bool {
	return len(s.sentQueue) > 0 && time.Since(s.sentQueue[0].sentAt) > timeout
}

type retransmitState struct {
	nextFSN            uint8
	retransmitCount    int
	retransmitSentQueue []sentFrame
	retransmitWaitQueue []sentFrame
}

func (s *retransmitState) redoRetransmit() {
	s.retransmitSentQueue = append(s.retransmitSentQueue, s.retransmitWaitQueue...)
	s.retransmitWaitQueue, s.retransmitSentQueue = s.retransmitSentQueue, nil
	s.retransmitCount++
}

func (s *retransmitState) acknowledge(acknowledgedFSN uint8, retransmit bool, onAcknowledge func(sentFrame)) bool {
	var ackCount int
	var n int
	s.retransmitWaitQueue, n = removeAcknowledgedFrames(s.retransmitWaitQueue, acknowledgedFSN, onAcknowledge)
	ackCount += n
	s.retransmitSentQueue, n = removeAcknowledgedFrames(s.retransmitSentQueue, acknowledgedFSN, onAcknowledge)
	ackCount += n
	if ackCount > 0 {
		s.retransmitCount = 0
	}
	if !retransmit {
		return len(s.retransmitWaitQueue) == 0 && len(s.retransmitSentQueue) == 0
	}
	if ackCount > 0 {
		s.redoRetransmit()
	}
	return false
}

func (s *retransmitState) update() *Frame {
	if len(s.retransmitSentQueue) > 0 && time.Since(s.retransmitSentQueue[0].sentAt) > timeout {
		s.redoRetransmit()
	}
	if len(s.retransmitWaitQueue) == 0 {
		return nil
	}
	next := s.retransmitWaitQueue[0]
	s.retransmitWaitQueue = s.retransmitWaitQueue[1:]
	next.sentAt = time.Now()
	s.retransmitSentQueue = append(s.retransmitSentQueue, next)
	return next.frame
}

// Fop is the FOP-1 state machine for a single virtual channel. The zero
// value is not usable; construct with New. All methods are safe for
// concurrent use.
type Fop struct {
	mu                   sync.Mutex
	kind                 stateKind
	initialExpectedNR    *uint8
	active               *activeState
	retransmit           *retransmitState
	lastReceivedFarmState *FarmState
	events               *broadcast.Bus[FrameEvent]
}

// New returns a Fop in the Initial state, with no prior FARM knowledge.
func New() *Fop {
	return &Fop{
		kind:   stateInitial,
		events: broadcast.New[FrameEvent](frameEventBusCapacity),
	}
}

// LastReceivedFarmState returns the FarmState derived from the most
// recently handled CLCW, or nil if none has been received yet.
func (f *Fop) LastReceivedFarmState() *FarmState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastReceivedFarmState
}

// NextFSN returns the frame sequence number FOP-1 will use for the next
// AD frame, or nil if it isn't yet known (the Initial state before any
// matching CLCW has arrived).
func (f *Fop) NextFSN() *uint8 {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch f.kind {
	case stateInitial:
		return f.initialExpectedNR
	case stateActive:
		v := f.active.nextFSN
		return &v
	case stateRetransmit:
		v := f.retransmit.nextFSN
		return &v
	}
	return nil
}

// SubscribeFrameEvents returns a channel of frame lifecycle events. Call
// broadcast.Bus.Unsubscribe (via UnsubscribeFrameEvents) when done.
func (f *Fop) SubscribeFrameEvents() <-chan broadcast.Message[FrameEvent] {
	return f.events.Subscribe()
}

// UnsubscribeFrameEvents removes a subscription returned by
// SubscribeFrameEvents.
func (f *Fop) UnsubscribeFrameEvents(ch <-chan broadcast.Message[FrameEvent]) {
	f.events.Unsubscribe(ch)
}

func (f *Fop) publish(kind EventKind, frameID xid.ID) {
	f.events.Publish(FrameEvent{Kind: kind, FrameID: frameID})
}

// queueDepth returns the number of AD frames currently outstanding.
// Callers must hold f.mu.
func (f *Fop) queueDepth() int {
	switch f.kind {
	case stateActive:
		return len(f.active.sentQueue)
	case stateRetransmit:
		return len(f.retransmit.retransmitSentQueue) + len(f.retransmit.retransmitWaitQueue)
	}
	return 0
}

// HandleCLCW feeds a freshly received CLCW into the state machine: it
// updates the cached FarmState, acknowledges frames FARM-1 has accepted,
// transitions between Active/Retransmit/Initial as COP-1 requires, and
// cancels any outstanding frames if FARM-1 reports Lockout.
func (f *Fop) HandleCLCW(c tc.CLCW) {
	f.mu.Lock()
	defer f.mu.Unlock()
	defer func() { metrics.FOP1QueueDepth.Set(float64(f.queueDepth())) }()

	farmState := farmStateFromCLCW(c)
	f.lastReceivedFarmState = &farmState

	onAcknowledge := func(sf sentFrame) {
		metrics.FOP1RoundTripLatency.Observe(time.Since(sf.sentAt).Seconds())
		f.publish(EventAcknowledged, sf.frame.ID)
	}

	switch f.kind {
	case stateInitial:
		if f.initialExpectedNR != nil && *f.initialExpectedNR == farmState.NextExpectedFSN && !farmState.Lockout {
			f.kind = stateActive
			f.active = &activeState{nextFSN: farmState.NextExpectedFSN}
		}
	case stateActive:
		f.active.sentQueue, _ = removeAcknowledgedFrames(f.active.sentQueue, farmState.NextExpectedFSN, onAcknowledge)
		if farmState.Retransmit {
			f.retransmit = &retransmitState{
				nextFSN:             f.active.nextFSN,
				retransmitCount:     1,
				retransmitWaitQueue: f.active.sentQueue,
			}
			f.kind = stateRetransmit
			f.active = nil
		}
	case stateRetransmit:
		completed := f.retransmit.acknowledge(farmState.NextExpectedFSN, farmState.Retransmit, onAcknowledge)
		if completed {
			f.kind = stateActive
			f.active = &activeState{nextFSN: f.retransmit.nextFSN}
			f.retransmit = nil
		}
	}

	if !farmState.Lockout {
		return
	}

	var canceled []sentFrame
	switch f.kind {
	case stateInitial:
		// nothing outstanding to cancel
	case stateActive:
		canceled = f.active.sentQueue
		nr := f.active.nextFSN
		f.kind = stateInitial
		f.initialExpectedNR = &nr
		f.active = nil
	case stateRetransmit:
		canceled = append(canceled, f.retransmit.retransmitSentQueue...)
		canceled = append(canceled, f.retransmit.retransmitWaitQueue...)
		nr := f.retransmit.nextFSN
		f.kind = stateInitial
		f.initialExpectedNR = &nr
		f.retransmit = nil
	}
	for _, sf := range canceled {
		f.publish(EventCancel, sf.frame.ID)
	}
}

// SetVR forces V(R) to vr, discarding any outstanding frames, and returns
// the BC frame that carries the Set V(R) directive to the spacecraft.
func (f *Fop) SetVR(vr uint8) Frame {
	f.mu.Lock()
	defer f.mu.Unlock()

	var canceled []sentFrame
	switch f.kind {
	case stateInitial:
		// forget the previous SetVR command
	case stateActive:
		canceled = f.active.sentQueue
		f.active = nil
	case stateRetransmit:
		canceled = append(canceled, f.retransmit.retransmitSentQueue...)
		canceled = append(canceled, f.retransmit.retransmitWaitQueue...)
		f.retransmit = nil
	}
	for _, sf := range canceled {
		f.publish(EventCancel, sf.frame.ID)
	}

	f.kind = stateInitial
	f.initialExpectedNR = &vr

	return Frame{
		ID:             xid.New(),
		FrameType:      tc.TypeBC,
		SequenceNumber: 0,
		DataField:      []byte{0x82, 0x00, vr},
	}
}

// Unlock returns the BC frame that carries the Unlock directive,
// clearing FARM-1's Lockout state once delivered.
func (f *Fop) Unlock() Frame {
	return Frame{
		ID:             xid.New(),
		FrameType:      tc.TypeBC,
		SequenceNumber: 0,
		DataField:      []byte{0x00},
	}
}

// StateKind classifies the macro state Status reports.
type StateKind int

// State kinds.
const (
	StateInitial StateKind = iota
	StateActive
	StateRetransmit
)

// Status is a point-in-time snapshot of FOP-1's state, for the
// GetFopStatus RPC: the macro state (and, if Retransmit, how many
// retransmit rounds have elapsed), the sequence number the next AD
// frame will use (nil if not yet known), and the most recently
// received FarmState (nil if no CLCW has arrived yet).
type Status struct {
	Kind            StateKind
	RetransmitCount int
	NextFSN         *uint8
	ReceivedCLCW    *FarmState
}

// Status returns a snapshot of FOP-1's current state.
func (f *Fop) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := Status{ReceivedCLCW: f.lastReceivedFarmState}
	switch f.kind {
	case stateInitial:
		st.Kind = StateInitial
		st.NextFSN = f.initialExpectedNR
	case stateActive:
		st.Kind = StateActive
		v := f.active.nextFSN
		st.NextFSN = &v
	case stateRetransmit:
		st.Kind = StateRetransmit
		st.RetransmitCount = f.retransmit.retransmitCount
		v := f.retransmit.nextFSN
		st.NextFSN = &v
	}
	return st
}

// ClearAD cancels every outstanding AD frame (sent or waiting
// retransmission) without altering the sequence numbers FOP-1 is
// tracking, unlike SetVR. It returns the number of frames canceled.
func (f *Fop) ClearAD() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	defer func() { metrics.FOP1QueueDepth.Set(float64(f.queueDepth())) }()

	var canceled []sentFrame
	switch f.kind {
	case stateInitial:
		// nothing outstanding to cancel
	case stateActive:
		canceled = f.active.sentQueue
		f.active.sentQueue = nil
	case stateRetransmit:
		canceled = append(canceled, f.retransmit.retransmitSentQueue...)
		canceled = append(canceled, f.retransmit.retransmitWaitQueue...)
		f.retransmit.retransmitSentQueue = nil
		f.retransmit.retransmitWaitQueue = nil
	}
	for _, sf := range canceled {
		f.publish(EventCancel, sf.frame.ID)
	}
	return len(canceled)
}

// SendAD queues dataField as a new AD frame if FOP-1 is Active, assigning
// it the next sequence number and frame ID. It returns false if FOP-1 is
// not in the Active state and cannot accept new frames right now.
func (f *Fop) SendAD(dataField []byte) (Frame, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.kind != stateActive {
		return Frame{}, false
	}
	fsn := f.active.nextFSN
	f.active.nextFSN++
	frame := &Frame{ID: xid.New(), FrameType: tc.TypeAD, SequenceNumber: fsn, DataField: dataField}
	f.active.sentQueue = append(f.active.sentQueue, sentFrame{frame: frame, sentAt: time.Now(), sequenceNumber: fsn})
	f.publish(EventTransmit, frame.ID)
	metrics.FOP1QueueDepth.Set(float64(f.queueDepth()))
	return *frame, true
}

// Update should be called periodically (e.g. once a second) so FOP-1 can
// notice a timed-out Active frame and start retransmitting, or send the
// next queued retransmission. It returns the frame to retransmit, if
// any.
func (f *Fop) Update() (Frame, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	defer func() { metrics.FOP1QueueDepth.Set(float64(f.queueDepth())) }()

	if f.kind == stateActive && f.active.timedOut() {
		f.retransmit = &retransmitState{
			nextFSN:             f.active.nextFSN,
			retransmitCount:     1,
			retransmitWaitQueue: f.active.sentQueue,
		}
		f.kind = stateRetransmit
		f.active = nil
	}

	if f.kind != stateRetransmit {
		return Frame{}, false
	}
	frame := f.retransmit.update()
	if frame == nil {
		return Frame{}, false
	}
	f.publish(EventRetransmit, frame.ID)
	return *frame, true
}
