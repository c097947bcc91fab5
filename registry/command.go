// Package registry builds the command and telemetry schema registries
// that map named commands and telemetry IDs to their on-wire layouts.
// Both registries are immutable once built and are shared read-only by
// every downstream subsystem; a reload builds new registries and swaps
// them in through CommandRegistryRef and TelemetryRegistryRef.
package registry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/groundstation/tmtc-broker/bitfield"
	"github.com/groundstation/tmtc-broker/satconfig"
)

// CommandParameterDef describes one positional command parameter before
// it has been assigned a bit offset: its name and numeric kind. A nil
// Numeric marks the trailer (raw-bytes) parameter, which is only valid
// as the last entry.
type CommandParameterDef struct {
	Name        string
	Description string
	Numeric     *NumericKindDef // nil => trailer parameter
}

// NumericKindDef names a parameter's on-wire numeric representation
// without yet committing to a bit offset.
type NumericKindDef struct {
	Integral *bitfield.IntegralKind
	Floating *bitfield.FloatingKind
}

func (d NumericKindDef) bitLen() int {
	if d.Integral != nil {
		return d.Integral.Bits()
	}
	return d.Floating.Bits()
}

// CommandParameterSchema is one positional parameter after schema
// construction has assigned it its bit range.
type CommandParameterSchema struct {
	Name        string
	Description string
	Field       bitfield.NumericField
}

// CommandSchema is the fully built, ordered layout for one command's
// user data: zero or more fixed-width numeric parameter slots, packed
// back-to-back from bit 0, followed by an optional trailer parameter
// that consumes however many raw bytes remain.
type CommandSchema struct {
	CommandID           uint16
	APID                uint16
	DestinationType     uint8
	ExecutionType        uint8
	HasTimeIndicator    bool
	Description         string
	Parameters          []CommandParameterSchema
	StaticSizeBytes     int
	HasTrailerParameter bool
	TrailerName         string
}

// BuildCommandSchema lays parameters out sequentially (each directly
// after the last) and computes the static byte size, enforcing that at
// most one trailer parameter is present and that it is last.
func BuildCommandSchema(commandID uint16, apid uint16, destinationType, executionType uint8, hasTimeIndicator bool, description string, params []CommandParameterDef) (CommandSchema, error) {
	var built []CommandParameterSchema
	offsetBits := 0
	hasTrailer := false
	trailerName := ""
	for i, p := range params {
		if p.Numeric == nil {
			if i != len(params)-1 {
				return CommandSchema{}, fmt.Errorf("registry: trailer parameter %q is valid only as the last parameter", p.Name)
			}
			hasTrailer = true
			trailerName = p.Name
			break
		}
		field, err := buildNumericField(*p.Numeric, offsetBits)
		if err != nil {
			return CommandSchema{}, err
		}
		built = append(built, CommandParameterSchema{Name: p.Name, Description: p.Description, Field: field})
		offsetBits += p.Numeric.bitLen()
	}
	staticSize := 0
	if offsetBits > 0 {
		staticSize = (offsetBits-1)/8 + 1
	}
	return CommandSchema{
		CommandID:           commandID,
		APID:                apid,
		DestinationType:     destinationType,
		ExecutionType:       executionType,
		HasTimeIndicator:    hasTimeIndicator,
		Description:         description,
		Parameters:          built,
		StaticSizeBytes:     staticSize,
		HasTrailerParameter: hasTrailer,
		TrailerName:         trailerName,
	}, nil
}

func buildNumericField(kind NumericKindDef, offsetBits int) (bitfield.NumericField, error) {
	end := offsetBits + kind.bitLen()
	r := bitfield.Range{Start: offsetBits, End: end}
	if kind.Integral != nil {
		f, err := bitfield.NewIntegralField(*kind.Integral, r)
		if err != nil {
			return bitfield.NumericField{}, err
		}
		return bitfield.NumericField{Kind: bitfield.NumericIntegral, Integral: f}, nil
	}
	f, err := bitfield.NewFloatingField(*kind.Floating, r)
	if err != nil {
		return bitfield.NumericField{}, err
	}
	return bitfield.NumericField{Kind: bitfield.NumericFloating, Floating: f}, nil
}

// tcoName is the parsed dotted form "prefix.component.command" a TCO is
// addressed by.
type tcoName struct {
	prefix, component, command string
}

func parseTCOName(s string) (tcoName, bool) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return tcoName{}, false
	}
	return tcoName{prefix: parts[0], component: parts[1], command: parts[2]}, true
}

type commandKey struct {
	component, command string
}

// CommandRegistry resolves a dotted TCO name to its FatCommandSchema: the
// routing metadata (from the prefix map) joined with the on-wire layout
// (from the schema map).
type CommandRegistry struct {
	prefixMap satconfig.CommandPrefixMap
	schemaMap map[commandKey]CommandSchema
	defs      []CommandDef
}

// FatCommandSchema is everything the uplink pipeline needs to build and
// transmit one command: its schema plus the routing metadata resolved
// from the command prefix configuration.
type FatCommandSchema struct {
	APID             uint16
	CommandID        uint16
	DestinationType  uint8
	ExecutionType    uint8
	HasTimeIndicator bool
	Schema           CommandSchema
}

// CommandDef is one fully specified command definition, as supplied by
// the schema source (e.g. parsed from a command database) prior to
// registry construction.
type CommandDef struct {
	Component   string
	Command     string
	CommandID   uint16
	Description string
	Parameters  []CommandParameterDef
}

// NewCommandRegistry builds a CommandRegistry from a set of command
// definitions, a component→APID map, and the prefix routing table.
func NewCommandRegistry(defs []CommandDef, apidMap map[string]uint16, prefixMap satconfig.CommandPrefixMap) (*CommandRegistry, error) {
	schemaMap := make(map[commandKey]CommandSchema, len(defs))
	for _, def := range defs {
		apid, ok := apidMap[def.Component]
		if !ok {
			return nil, fmt.Errorf("registry: APID is not defined for component %q", def.Component)
		}
		// destination_type/execution_type/has_time_indicator come from
		// the prefix map at lookup time, not at build time: a command's
		// routing can vary by which prefix addresses it. Schema storage
		// keeps them zero here; Lookup fills them in.
		schema, err := BuildCommandSchema(def.CommandID, apid, 0, 0, false, def.Description, def.Parameters)
		if err != nil {
			return nil, fmt.Errorf("registry: building schema for %s.%s: %w", def.Component, def.Command, err)
		}
		schemaMap[commandKey{component: def.Component, command: def.Command}] = schema
	}
	return &CommandRegistry{prefixMap: prefixMap, schemaMap: schemaMap, defs: defs}, nil
}

// Lookup resolves a dotted "prefix.component.command" TCO name to its
// FatCommandSchema.
func (r *CommandRegistry) Lookup(name string) (FatCommandSchema, bool) {
	parsed, ok := parseTCOName(name)
	if !ok {
		return FatCommandSchema{}, false
	}
	subsystems, ok := r.prefixMap[parsed.prefix]
	if !ok {
		return FatCommandSchema{}, false
	}
	subsystem, ok := subsystems[parsed.component]
	if !ok {
		return FatCommandSchema{}, false
	}
	schema, ok := r.schemaMap[commandKey{component: parsed.component, command: parsed.command}]
	if !ok {
		return FatCommandSchema{}, false
	}
	return FatCommandSchema{
		APID:             schema.APID,
		CommandID:        schema.CommandID,
		DestinationType:  subsystem.DestinationType,
		ExecutionType:    subsystem.ExecutionType,
		HasTimeIndicator: subsystem.HasTimeIndicator,
		Schema:           schema,
	}, true
}

// CommandParameterReflection describes one parameter for schema
// reflection, without committing to its bit layout.
type CommandParameterReflection struct {
	Name        string
	Description string
	IsTrailer   bool
}

// CommandReflection describes one command for schema reflection.
type CommandReflection struct {
	Name        string
	APID        uint16
	CommandID   uint16
	Description string
	Parameters  []CommandParameterReflection
}

// CommandComponentSchema groups a component's commands for the
// GetSatelliteSchema reflection RPC. Grounded on
// gaia/src/registry/cmd.rs's build_command_component_schema_map.
type CommandComponentSchema struct {
	Component string
	Commands  []CommandReflection
}

// AllNames returns every dotted "prefix.component.command" name this
// registry can resolve through Lookup: the cross product of the
// configured prefix routing table with the defined commands reachable
// under each prefix's components. Used to build a
// tcotmiv.CommandSchemaSet that validates against exactly the commands
// this registry knows how to transmit.
func (r *CommandRegistry) AllNames() []string {
	var names []string
	for prefix, components := range r.prefixMap {
		for component := range components {
			for _, def := range r.defs {
				if def.Component != component {
					continue
				}
				names = append(names, prefix+"."+component+"."+def.Command)
			}
		}
	}
	sort.Strings(names)
	return names
}

// Prefixes returns every configured command prefix name, sorted.
func (r *CommandRegistry) Prefixes() []string {
	names := make([]string, 0, len(r.prefixMap))
	for name := range r.prefixMap {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Components groups every registered command by component, sorted by
// component then command name, for the GetSatelliteSchema RPC.
func (r *CommandRegistry) Components() []CommandComponentSchema {
	byComponent := make(map[string][]CommandReflection)
	for _, def := range r.defs {
		schema := r.schemaMap[commandKey{component: def.Component, command: def.Command}]
		params := make([]CommandParameterReflection, len(def.Parameters))
		for i, p := range def.Parameters {
			params[i] = CommandParameterReflection{Name: p.Name, Description: p.Description, IsTrailer: p.Numeric == nil}
		}
		byComponent[def.Component] = append(byComponent[def.Component], CommandReflection{
			Name: def.Command, APID: schema.APID, CommandID: schema.CommandID,
			Description: schema.Description, Parameters: params,
		})
	}
	components := make([]CommandComponentSchema, 0, len(byComponent))
	for name, cmds := range byComponent {
		sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })
		components = append(components, CommandComponentSchema{Component: name, Commands: cmds})
	}
	sort.Slice(components, func(i, j int) bool { return components[i].Component < components[j].Component })
	return components
}
