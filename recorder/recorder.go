// Package recorder hooks TCOs and TMIVs through to a durable sink as
// they pass through the pipeline, tracking the bytes written for the
// tmtc_recorder_bytes_total metric. Grounded on gaia-tmtc/src/recorder.rs,
// adapted from a gRPC client call to a local io.Writer sink since this
// broker has no separate recorder service: the byte accounting itself
// reuses docker/docker/pkg/ioutils.WriteCounter, the way the teacher's
// corpus leans on well-worn helper packages for plumbing concerns.
package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/docker/docker/pkg/ioutils"

	"github.com/groundstation/tmtc-broker/handler"
	"github.com/groundstation/tmtc-broker/metrics"
	"github.com/groundstation/tmtc-broker/tcotmiv"
)

// record is the line-delimited JSON shape written to the sink for
// both TCOs and TMIVs.
type record struct {
	Kind string      `json:"kind"`
	Name string      `json:"name"`
	Body interface{} `json:"body"`
}

// Recorder serializes TCOs and TMIVs as newline-delimited JSON onto a
// sink, counting total bytes written.
type Recorder struct {
	mu        sync.Mutex
	counter   *ioutils.WriteCounter
	encoder   *json.Encoder
	lastBytes int64
}

// New wraps sink with byte counting and returns a Recorder writing to
// it.
func New(sink io.Writer) *Recorder {
	counter := ioutils.NewWriteCounter(sink)
	return &Recorder{counter: counter, encoder: json.NewEncoder(counter)}
}

// BytesWritten reports the total bytes written to the sink so far.
func (r *Recorder) BytesWritten() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counter.Count
}

func (r *Recorder) write(rec record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	err := r.encoder.Encode(rec)
	r.lastBytes = metrics.ObserveRecorderBytes(r.lastBytes, r.counter.Count)
	return err
}

// RecordHook appends every Tco or Tmiv passing through it to a
// Recorder, then forwards the value unchanged. When an
// onTmivRecordError callback is set, a failed telemetry record does
// not break the hook chain; without one, the error is returned like a
// TCO record error. gaia-tmtc's RecordHook logs
// and swallows recorder errors for TMIVs but propagates them for
// TCOs, since an un-recorded command is an audit gap worth failing
// loudly over, while a dropped telemetry sample is not.
type RecordHook struct {
	recorder          *Recorder
	onTmivRecordError func(error)
}

// NewRecordHook builds a RecordHook writing through recorder.
// onTmivRecordError, if non-nil, is invoked instead of propagating an
// error when recording a Tmiv fails.
func NewRecordHook(recorder *Recorder, onTmivRecordError func(error)) *RecordHook {
	return &RecordHook{recorder: recorder, onTmivRecordError: onTmivRecordError}
}

// HookTco implements handler.Hook for the command pipeline.
func (h *RecordHook) HookTco(_ context.Context, tco tcotmiv.Tco) (tcotmiv.Tco, error) {
	if err := h.recorder.write(record{Kind: "tco", Name: tco.Name, Body: tco}); err != nil {
		return tcotmiv.Tco{}, fmt.Errorf("recorder: failed to record TCO: %w", err)
	}
	return tco, nil
}

// HookTmiv implements handler.Hook for the telemetry pipeline.
func (h *RecordHook) HookTmiv(_ context.Context, tmiv *tcotmiv.Tmiv) (*tcotmiv.Tmiv, error) {
	if err := h.recorder.write(record{Kind: "tmiv", Name: tmiv.Name, Body: tmiv}); err != nil {
		if h.onTmivRecordError != nil {
			h.onTmivRecordError(fmt.Errorf("recorder: failed to record TMIV: %w", err))
			return tmiv, nil
		}
		return nil, fmt.Errorf("recorder: failed to record TMIV: %w", err)
	}
	return tmiv, nil
}

// tcoHook and tmivHook adapt the two differently-typed Hook methods to
// handler.Hook so RecordHook can be wired into either pipeline's
// Builder without the caller reaching into RecordHook's internals.
type tcoHook struct{ h *RecordHook }

func (t tcoHook) Hook(ctx context.Context, tco tcotmiv.Tco) (tcotmiv.Tco, error) {
	return t.h.HookTco(ctx, tco)
}

type tmivHook struct{ h *RecordHook }

func (t tmivHook) Hook(ctx context.Context, tmiv *tcotmiv.Tmiv) (*tcotmiv.Tmiv, error) {
	return t.h.HookTmiv(ctx, tmiv)
}

// TcoHook returns h as a handler.Hook over Tco.
func (h *RecordHook) TcoHook() handler.Hook[tcotmiv.Tco] { return tcoHook{h} }

// TmivHook returns h as a handler.Hook over *Tmiv.
func (h *RecordHook) TmivHook() handler.Hook[*tcotmiv.Tmiv] { return tmivHook{h} }
