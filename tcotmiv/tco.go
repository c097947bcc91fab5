// Package tcotmiv defines the TCO (telecommand object) and TMIV
// (telemetry item view) value types exchanged between the service
// surface and the pipeline, plus the schema-driven sanitizer that
// validates and alphabetically normalizes them before they reach the
// wire codecs.
package tcotmiv

import (
	"fmt"
	"sort"
	"sync/atomic"
)

// ParamKind tags which alternative a ParamValue holds.
type ParamKind int

// Parameter value kinds.
const (
	ParamInteger ParamKind = iota
	ParamDouble
	ParamBytes
)

// ParamValue is a TCO parameter's value: exactly one of Int, Double, or
// Bytes is meaningful, selected by Kind.
type ParamValue struct {
	Kind   ParamKind
	Int    int64
	Double float64
	Bytes  []byte
}

// NewIntParam constructs an integer-valued ParamValue.
func NewIntParam(v int64) ParamValue { return ParamValue{Kind: ParamInteger, Int: v} }

// NewDoubleParam constructs a double-valued ParamValue.
func NewDoubleParam(v float64) ParamValue { return ParamValue{Kind: ParamDouble, Double: v} }

// NewBytesParam constructs a bytes-valued ParamValue.
func NewBytesParam(v []byte) ParamValue { return ParamValue{Kind: ParamBytes, Bytes: v} }

// Param is one named TCO parameter.
type Param struct {
	Name  string
	Value ParamValue
}

// Tco is a telecommand object: a dotted command name plus its
// parameters, in whatever order the caller supplied them.
type Tco struct {
	Name   string
	Params []Param
}

// Normalize returns a copy of tco with Params sorted alphabetically by
// name. Sanitize idempotence depends on this: sorting an already-sorted
// slice is a no-op.
func (t Tco) Normalize() Tco {
	params := make([]Param, len(t.Params))
	copy(params, t.Params)
	sort.Slice(params, func(i, j int) bool { return params[i].Name < params[j].Name })
	return Tco{Name: t.Name, Params: params}
}

// ParamSchema describes one expected parameter: its name and the
// ParamKind its value must match.
type ParamSchema struct {
	Name string
	Kind ParamKind
}

// CommandSchemaView is the subset of a command's schema the sanitizer
// needs: its parameter names and kinds, sorted by name. Build it from a
// registry.FatCommandSchema's Parameters (plus a trailer entry, if any).
type CommandSchemaView struct {
	Name   string
	Params []ParamSchema // must be sorted by Name
}

// Validate checks that normalizedTco (already Normalize()'d) matches
// this schema: same parameter count, same names in the same order, and
// matching value kinds.
func (s CommandSchemaView) Validate(normalizedTco Tco) error {
	if len(s.Params) != len(normalizedTco.Params) {
		return fmt.Errorf("tcotmiv: mismatched parameter count: expected %d, got %d", len(s.Params), len(normalizedTco.Params))
	}
	for i, expected := range s.Params {
		actual := normalizedTco.Params[i]
		if expected.Name != actual.Name {
			return fmt.Errorf("tcotmiv: mismatched parameter name at index %d: expected %q, got %q", i, expected.Name, actual.Name)
		}
		if expected.Kind != actual.Value.Kind {
			return fmt.Errorf("tcotmiv: parameter %q: type mismatch", actual.Name)
		}
	}
	return nil
}

// CommandSchemaSet resolves a Tco's dotted name to a CommandSchemaView
// and sanitizes TCOs against it.
type CommandSchemaSet struct {
	byName map[string]CommandSchemaView
}

// NewCommandSchemaSet builds a CommandSchemaSet from views whose Params
// are each sorted by name (NewCommandSchemaView guarantees this).
func NewCommandSchemaSet(views []CommandSchemaView) *CommandSchemaSet {
	byName := make(map[string]CommandSchemaView, len(views))
	for _, v := range views {
		byName[v.Name] = v
	}
	return &CommandSchemaSet{byName: byName}
}

// NewCommandSchemaView builds a CommandSchemaView from unordered params,
// sorting them by name.
func NewCommandSchemaView(name string, params []ParamSchema) CommandSchemaView {
	sorted := make([]ParamSchema, len(params))
	copy(sorted, params)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	return CommandSchemaView{Name: name, Params: sorted}
}

// Sanitize normalizes tco (sorting its parameters by name) and validates
// it against the schema registered under tco.Name. Calling Sanitize
// again on the result returns an equal Tco: sanitize(sanitize(x)) ==
// sanitize(x).
func (s *CommandSchemaSet) Sanitize(tco Tco) (Tco, error) {
	normalized := tco.Normalize()
	schema, ok := s.byName[normalized.Name]
	if !ok {
		return Tco{}, fmt.Errorf("tcotmiv: no matched schema for command %q", normalized.Name)
	}
	if err := schema.Validate(normalized); err != nil {
		return Tco{}, err
	}
	return normalized, nil
}

// CommandSchemaSetRef holds a *CommandSchemaSet behind an atomic
// pointer so command.SanitizeHook keeps validating against the
// command registry's current schemas across a SIGHUP reload, without
// the hook itself needing to know a reload happened.
type CommandSchemaSetRef struct {
	ptr atomic.Pointer[CommandSchemaSet]
}

// NewCommandSchemaSetRef wraps an already-built CommandSchemaSet.
func NewCommandSchemaSetRef(s *CommandSchemaSet) *CommandSchemaSetRef {
	ref := &CommandSchemaSetRef{}
	ref.ptr.Store(s)
	return ref
}

// Store swaps in a freshly built CommandSchemaSet.
func (ref *CommandSchemaSetRef) Store(s *CommandSchemaSet) { ref.ptr.Store(s) }

// Sanitize delegates to the current snapshot.
func (ref *CommandSchemaSetRef) Sanitize(tco Tco) (Tco, error) {
	return ref.ptr.Load().Sanitize(tco)
}
