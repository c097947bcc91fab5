// Package telemetry wires a Tmiv broadcast bus, a schema-validating
// sanitize hook, and a last-value store into the handler pipeline.
// Grounded on gaia-tmtc/src/telemetry.rs; the broadcast bus itself
// reuses broadcast.Bus, which is grounded on the teacher's
// eventsocket.Server fanout.
package telemetry

import (
	"context"
	"fmt"
	"sync"

	"github.com/groundstation/tmtc-broker/broadcast"
	"github.com/groundstation/tmtc-broker/handler"
	"github.com/groundstation/tmtc-broker/metrics"
	"github.com/groundstation/tmtc-broker/tcotmiv"
)

// Bus fans Tmivs out to every subscriber; publishing when there are no
// subscribers is a no-op, matching tokio::sync::broadcast's
// fire-and-forget send.
type Bus struct {
	inner *broadcast.Bus[*tcotmiv.Tmiv]
}

// NewBus constructs a Bus with the given per-subscriber channel
// capacity.
func NewBus(capacity int) *Bus {
	return &Bus{inner: broadcast.New[*tcotmiv.Tmiv](capacity)}
}

// Subscribe returns a channel receiving every Tmiv published after
// this call.
func (b *Bus) Subscribe() <-chan broadcast.Message[*tcotmiv.Tmiv] {
	return b.inner.Subscribe()
}

// Unsubscribe detaches a channel returned by Subscribe.
func (b *Bus) Unsubscribe(ch <-chan broadcast.Message[*tcotmiv.Tmiv]) {
	b.inner.Unsubscribe(ch)
}

// Handle implements handler.Handle, publishing tmiv to every
// subscriber.
func (b *Bus) Handle(_ context.Context, tmiv *tcotmiv.Tmiv) (struct{}, error) {
	b.inner.Publish(tmiv)
	metrics.TelemetryDeliveredCount.Inc()
	return struct{}{}, nil
}

var _ handler.Handle[*tcotmiv.Tmiv, struct{}] = (*Bus)(nil)

// SchemaSet resolves a Tmiv's name to a schema. tcotmiv has no
// telemetry-side equivalent of tcotmiv.CommandSchemaSet since
// registry.TelemetryRegistry already owns schema lookup and field
// conversion; SanitizeHook here checks only that the Tmiv's name is
// known, and does not inspect its fields.
type SchemaSet interface {
	// HasSchema reports whether tmivName names a known telemetry
	// channel/component/telemetry triple.
	HasSchema(tmivName string) bool
}

// SanitizeHook verifies a Tmiv's name is known before it reaches the
// rest of the pipeline.
type SanitizeHook struct {
	schemaSet SchemaSet
}

// NewSanitizeHook builds a SanitizeHook.
func NewSanitizeHook(schemaSet SchemaSet) *SanitizeHook {
	return &SanitizeHook{schemaSet: schemaSet}
}

// Hook implements handler.Hook.
func (h *SanitizeHook) Hook(_ context.Context, tmiv *tcotmiv.Tmiv) (*tcotmiv.Tmiv, error) {
	if !h.schemaSet.HasSchema(tmiv.Name) {
		return nil, fmt.Errorf("telemetry: TMIV validation error: no such telemetry definition: %s", tmiv.Name)
	}
	return tmiv, nil
}

var _ handler.Hook[*tcotmiv.Tmiv] = (*SanitizeHook)(nil)

// LastTmivStore holds the most recently received Tmiv for every
// telemetry name, guarded against reads of names unknown to
// checkName.
type LastTmivStore struct {
	checkName func(tmivName string) bool

	mu  sync.RWMutex
	set map[string]*tcotmiv.Tmiv
}

// NewLastTmivStore builds a LastTmivStore. checkName reports whether a
// telemetry name is defined; Get refuses lookups for unknown names.
func NewLastTmivStore(checkName func(tmivName string) bool) *LastTmivStore {
	return &LastTmivStore{checkName: checkName, set: make(map[string]*tcotmiv.Tmiv)}
}

// Set records tmiv as the latest value for its name.
func (s *LastTmivStore) Set(tmiv *tcotmiv.Tmiv) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set[tmiv.Name] = tmiv
	metrics.LastValueStoreSize.Set(float64(len(s.set)))
}

// Get returns the last Tmiv recorded for telemetryName, or nil if
// none has arrived yet. It errors if telemetryName is not a known
// telemetry definition.
func (s *LastTmivStore) Get(telemetryName string) (*tcotmiv.Tmiv, error) {
	if !s.checkName(telemetryName) {
		return nil, fmt.Errorf("telemetry: no such telemetry definition: %s", telemetryName)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.set[telemetryName], nil
}

// StoreLastTmivHook records every Tmiv that passes through it into a
// LastTmivStore, then forwards it unchanged.
type StoreLastTmivHook struct {
	store *LastTmivStore
}

// NewStoreLastTmivHook builds a StoreLastTmivHook.
func NewStoreLastTmivHook(store *LastTmivStore) *StoreLastTmivHook {
	return &StoreLastTmivHook{store: store}
}

// Hook implements handler.Hook.
func (h *StoreLastTmivHook) Hook(_ context.Context, tmiv *tcotmiv.Tmiv) (*tcotmiv.Tmiv, error) {
	h.store.Set(tmiv)
	return tmiv, nil
}

var _ handler.Hook[*tcotmiv.Tmiv] = (*StoreLastTmivHook)(nil)
