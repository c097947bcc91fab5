package registry

import "sync/atomic"

// CommandRegistryRef holds a *CommandRegistry behind an atomic pointer
// so ReloadCommandRegistry can swap in a freshly built registry while
// in-flight commands keep reading a consistent snapshot. Every
// consumer of a CommandRegistry (pipeline.UplinkService,
// pipeline.AdCommandService, tcotmiv.BuildCommandSchemaSet,
// service.Service) is handed a *CommandRegistryRef instead of a bare
// *CommandRegistry so a reload is visible without re-wiring them.
type CommandRegistryRef struct {
	ptr atomic.Pointer[CommandRegistry]
}

// NewCommandRegistryRef wraps an already-built CommandRegistry.
func NewCommandRegistryRef(r *CommandRegistry) *CommandRegistryRef {
	ref := &CommandRegistryRef{}
	ref.ptr.Store(r)
	return ref
}

// Load returns the currently active CommandRegistry snapshot.
func (ref *CommandRegistryRef) Load() *CommandRegistry { return ref.ptr.Load() }

// Store swaps in a freshly reloaded CommandRegistry.
func (ref *CommandRegistryRef) Store(r *CommandRegistry) { ref.ptr.Store(r) }

// Lookup delegates to the current snapshot.
func (ref *CommandRegistryRef) Lookup(name string) (FatCommandSchema, bool) {
	return ref.Load().Lookup(name)
}

// AllNames delegates to the current snapshot.
func (ref *CommandRegistryRef) AllNames() []string { return ref.Load().AllNames() }

// Prefixes delegates to the current snapshot.
func (ref *CommandRegistryRef) Prefixes() []string { return ref.Load().Prefixes() }

// Components delegates to the current snapshot.
func (ref *CommandRegistryRef) Components() []CommandComponentSchema {
	return ref.Load().Components()
}

// TelemetryRegistryRef is TelemetryRegistry's counterpart to
// CommandRegistryRef.
type TelemetryRegistryRef struct {
	ptr atomic.Pointer[TelemetryRegistry]
}

// NewTelemetryRegistryRef wraps an already-built TelemetryRegistry.
func NewTelemetryRegistryRef(r *TelemetryRegistry) *TelemetryRegistryRef {
	ref := &TelemetryRegistryRef{}
	ref.ptr.Store(r)
	return ref
}

// Load returns the currently active TelemetryRegistry snapshot.
func (ref *TelemetryRegistryRef) Load() *TelemetryRegistry { return ref.ptr.Load() }

// Store swaps in a freshly reloaded TelemetryRegistry.
func (ref *TelemetryRegistryRef) Store(r *TelemetryRegistry) { ref.ptr.Store(r) }

// Lookup delegates to the current snapshot.
func (ref *TelemetryRegistryRef) Lookup(apid uint16, telemetryID uint8) (FatTelemetrySchema, bool) {
	return ref.Load().Lookup(apid, telemetryID)
}

// FindChannels delegates to the current snapshot.
func (ref *TelemetryRegistryRef) FindChannels(destinationFlags uint8) []string {
	return ref.Load().FindChannels(destinationFlags)
}

// HasSchema delegates to the current snapshot.
func (ref *TelemetryRegistryRef) HasSchema(tmivName string) bool {
	return ref.Load().HasSchema(tmivName)
}

// AllTmivNames delegates to the current snapshot.
func (ref *TelemetryRegistryRef) AllTmivNames() []string { return ref.Load().AllTmivNames() }

// Channels delegates to the current snapshot.
func (ref *TelemetryRegistryRef) Channels() []string { return ref.Load().Channels() }

// Components delegates to the current snapshot.
func (ref *TelemetryRegistryRef) Components() []TelemetryComponentSchema {
	return ref.Load().Components()
}
