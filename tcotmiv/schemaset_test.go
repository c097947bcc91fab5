package tcotmiv_test

import (
	"testing"

	"github.com/groundstation/tmtc-broker/registry"
	"github.com/groundstation/tmtc-broker/satconfig"
	"github.com/groundstation/tmtc-broker/tcotmiv"
)

func TestBuildCommandSchemaSetFromRegistry(t *testing.T) {
	defs := []registry.CommandDef{
		{
			Component: "obc", Command: "reset", CommandID: 1,
			Parameters: []registry.CommandParameterDef{
				{Name: "mode", Numeric: &registry.NumericKindDef{Integral: kindU8()}},
			},
		},
	}
	apidMap := map[string]uint16{"obc": 200}
	prefixMap := satconfig.CommandPrefixMap{
		"sat1": {"obc": {HasTimeIndicator: false, DestinationType: 1, ExecutionType: 2}},
	}
	reg, err := registry.NewCommandRegistry(defs, apidMap, prefixMap)
	if err != nil {
		t.Fatal(err)
	}

	set := tcotmiv.BuildCommandSchemaSet(reg)

	sanitized, err := set.Sanitize(tcotmiv.Tco{
		Name:   "sat1.obc.reset",
		Params: []tcotmiv.Param{{Name: "mode", Value: tcotmiv.NewIntParam(1)}},
	})
	if err != nil {
		t.Fatalf("unexpected sanitize error: %v", err)
	}
	if sanitized.Name != "sat1.obc.reset" {
		t.Errorf("got name %q", sanitized.Name)
	}

	if _, err := set.Sanitize(tcotmiv.Tco{Name: "sat1.obc.nosuch"}); err == nil {
		t.Error("expected an error for an unregistered command")
	}

	if _, err := set.Sanitize(tcotmiv.Tco{
		Name:   "sat1.obc.reset",
		Params: []tcotmiv.Param{{Name: "mode", Value: tcotmiv.NewDoubleParam(1.5)}},
	}); err == nil {
		t.Error("expected a type mismatch error for a double where an integer is expected")
	}
}

func TestBuildCommandSchemaSetRequiresTimeIndicator(t *testing.T) {
	defs := []registry.CommandDef{
		{
			Component: "obc", Command: "reset", CommandID: 1,
			Parameters: []registry.CommandParameterDef{
				{Name: "mode", Numeric: &registry.NumericKindDef{Integral: kindU8()}},
			},
		},
	}
	apidMap := map[string]uint16{"obc": 200}
	prefixMap := satconfig.CommandPrefixMap{
		"sat1": {"obc": {HasTimeIndicator: true, DestinationType: 1, ExecutionType: 2}},
	}
	reg, err := registry.NewCommandRegistry(defs, apidMap, prefixMap)
	if err != nil {
		t.Fatal(err)
	}

	set := tcotmiv.BuildCommandSchemaSet(reg)

	if _, err := set.Sanitize(tcotmiv.Tco{
		Name:   "sat1.obc.reset",
		Params: []tcotmiv.Param{{Name: "mode", Value: tcotmiv.NewIntParam(1)}},
	}); err == nil {
		t.Error("expected an error when time_indicator is required but missing")
	}

	sanitized, err := set.Sanitize(tcotmiv.Tco{
		Name: "sat1.obc.reset",
		Params: []tcotmiv.Param{
			{Name: "mode", Value: tcotmiv.NewIntParam(1)},
			{Name: "time_indicator", Value: tcotmiv.NewIntParam(42)},
		},
	})
	if err != nil {
		t.Fatalf("unexpected sanitize error: %v", err)
	}
	if sanitized.Params[0].Name != "mode" || sanitized.Params[1].Name != "time_indicator" {
		t.Errorf("expected alphabetical order [mode, time_indicator], got %v", sanitized.Params)
	}
}
