package tcotmiv

import (
	"github.com/groundstation/tmtc-broker/bitfield"
	"github.com/groundstation/tmtc-broker/registry"
)

// commandRegistry is the subset of *registry.CommandRegistry this
// package needs to build a CommandSchemaSet: every addressable dotted
// name, and the FatCommandSchema each resolves to.
type commandRegistry interface {
	AllNames() []string
	Lookup(name string) (registry.FatCommandSchema, bool)
}

// BuildCommandSchemaSet builds a CommandSchemaSet covering every
// command reg.AllNames() reports, so command.SanitizeHook validates a
// Tco against exactly the commands the uplink pipeline can transmit.
func BuildCommandSchemaSet(reg commandRegistry) *CommandSchemaSet {
	names := reg.AllNames()
	views := make([]CommandSchemaView, 0, len(names))
	for _, name := range names {
		fat, ok := reg.Lookup(name)
		if !ok {
			continue
		}
		views = append(views, NewCommandSchemaView(name, paramSchemasOf(fat.Schema, fat.HasTimeIndicator)))
	}
	return NewCommandSchemaSet(views)
}

// paramSchemasOf converts a registry.CommandSchema's positional
// parameters into the unordered ParamSchema list NewCommandSchemaView
// sorts by name. When hasTimeIndicator is set, the view also requires a
// "time_indicator" integer parameter, matching the TCO the uplink
// pipeline requires for commands whose prefix declares one
// (pipeline's commandContext.buildTCSegment reads it via
// paramByName("time_indicator")).
func paramSchemasOf(schema registry.CommandSchema, hasTimeIndicator bool) []ParamSchema {
	params := make([]ParamSchema, 0, len(schema.Parameters)+2)
	for _, p := range schema.Parameters {
		params = append(params, ParamSchema{Name: p.Name, Kind: paramKindOf(p.Field)})
	}
	if hasTimeIndicator {
		params = append(params, ParamSchema{Name: "time_indicator", Kind: ParamInteger})
	}
	if schema.HasTrailerParameter {
		params = append(params, ParamSchema{Name: schema.TrailerName, Kind: ParamBytes})
	}
	return params
}

func paramKindOf(field bitfield.NumericField) ParamKind {
	if field.Kind == bitfield.NumericIntegral {
		return ParamInteger
	}
	return ParamDouble
}
