// Package loader contains all logic for reading the telemetry/command
// database document: a JSON file enumerating every component and, per
// component, its commands and telemetries, in the shape
// registry.NewCommandRegistry and registry.NewTelemetryRegistry need.
package loader

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/groundstation/tmtc-broker/bitfield"
	"github.com/groundstation/tmtc-broker/registry"
)

type database struct {
	Components []component `json:"components"`
}

type component struct {
	Name        string      `json:"name"`
	Commands    []command   `json:"commands"`
	Telemetries []telemetry `json:"telemetries"`
}

type command struct {
	Name        string         `json:"name"`
	Code        uint16         `json:"code"`
	Description string         `json:"description"`
	Parameters  []commandParam `json:"parameters"`
}

type commandParam struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	// Type names one of the numeric kinds recognized by parseIntegralKind
	// / parseFloatingKind, or "trailer" for the raw-bytes tail parameter.
	Type string `json:"type"`
}

type telemetry struct {
	Name       string           `json:"name"`
	PacketID   uint8            `json:"packet_id"`
	Restricted bool             `json:"restricted"`
	Fields     []telemetryField `json:"fields"`
}

type telemetryField struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Type        string           `json:"type"`
	Start       int              `json:"start"`
	End         int              `json:"end"`
	Status      *statusConverter `json:"status,omitempty"`
	Polynomial  *[6]float64      `json:"polynomial,omitempty"`
}

type statusConverter struct {
	Map          map[string]string `json:"map"`
	DefaultLabel string            `json:"default_label"`
}

// Load reads and parses path as a telemetry/command database document,
// returning the command and telemetry definitions it declares in the
// shape registry.NewCommandRegistry and registry.NewTelemetryRegistry
// consume.
func Load(path string) ([]registry.CommandDef, []registry.TelemetryDef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("loader: reading %s: %w", path, err)
	}
	var db database
	if err := json.Unmarshal(data, &db); err != nil {
		return nil, nil, fmt.Errorf("loader: parsing %s: %w", path, err)
	}

	var cmdDefs []registry.CommandDef
	var tlmDefs []registry.TelemetryDef
	for _, c := range db.Components {
		for _, cmd := range c.Commands {
			params, err := buildCommandParams(cmd.Parameters)
			if err != nil {
				return nil, nil, fmt.Errorf("loader: command %s.%s: %w", c.Name, cmd.Name, err)
			}
			cmdDefs = append(cmdDefs, registry.CommandDef{
				Component: c.Name, Command: cmd.Name, CommandID: cmd.Code,
				Description: cmd.Description, Parameters: params,
			})
		}
		for _, tlm := range c.Telemetries {
			integralFields, floatingFields, err := buildTelemetryFields(tlm.Fields)
			if err != nil {
				return nil, nil, fmt.Errorf("loader: telemetry %s.%s: %w", c.Name, tlm.Name, err)
			}
			tlmDefs = append(tlmDefs, registry.TelemetryDef{
				Component: c.Name, Telemetry: tlm.Name, TelemetryID: tlm.PacketID,
				Restricted: tlm.Restricted, IntegralFields: integralFields, FloatingFields: floatingFields,
			})
		}
	}
	return cmdDefs, tlmDefs, nil
}

func buildCommandParams(params []commandParam) ([]registry.CommandParameterDef, error) {
	built := make([]registry.CommandParameterDef, len(params))
	for i, p := range params {
		if p.Type == "trailer" {
			built[i] = registry.CommandParameterDef{Name: p.Name, Description: p.Description}
			continue
		}
		kind, err := parseNumericKind(p.Type)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", p.Name, err)
		}
		built[i] = registry.CommandParameterDef{Name: p.Name, Description: p.Description, Numeric: &kind}
	}
	return built, nil
}

func buildTelemetryFields(fields []telemetryField) ([]registry.IntegralFieldDef, []registry.FloatingFieldDef, error) {
	var integral []registry.IntegralFieldDef
	var floating []registry.FloatingFieldDef
	for _, f := range fields {
		r := bitfield.Range{Start: f.Start, End: f.End}
		var poly *registry.PolynomialConverter
		if f.Polynomial != nil {
			poly = &registry.PolynomialConverter{A: *f.Polynomial}
		}
		if ik, ok := parseIntegralKind(f.Type); ok {
			var status *registry.StatusConverter
			if f.Status != nil {
				status = &registry.StatusConverter{Map: parseStatusMap(f.Status.Map), DefaultLabel: f.Status.DefaultLabel}
			}
			integral = append(integral, registry.IntegralFieldDef{
				Name: f.Name, Description: f.Description, Kind: ik, Range: r,
				Status: status, Polynomial: poly,
			})
			continue
		}
		if fk, ok := parseFloatingKind(f.Type); ok {
			floating = append(floating, registry.FloatingFieldDef{
				Name: f.Name, Description: f.Description, Kind: fk, Range: r, Polynomial: poly,
			})
			continue
		}
		return nil, nil, fmt.Errorf("field %q: unrecognized type %q", f.Name, f.Type)
	}
	return integral, floating, nil
}

func parseStatusMap(raw map[string]string) map[int64]string {
	m := make(map[int64]string, len(raw))
	for k, v := range raw {
		var n int64
		fmt.Sscanf(k, "%d", &n)
		m[n] = v
	}
	return m
}

func parseNumericKind(s string) (registry.NumericKindDef, error) {
	if ik, ok := parseIntegralKind(s); ok {
		return registry.NumericKindDef{Integral: &ik}, nil
	}
	if fk, ok := parseFloatingKind(s); ok {
		return registry.NumericKindDef{Floating: &fk}, nil
	}
	return registry.NumericKindDef{}, fmt.Errorf("unrecognized numeric type %q", s)
}

func parseIntegralKind(s string) (bitfield.IntegralKind, bool) {
	switch s {
	case "i8":
		return bitfield.KindI8, true
	case "i16":
		return bitfield.KindI16, true
	case "i32":
		return bitfield.KindI32, true
	case "i64":
		return bitfield.KindI64, true
	case "u8":
		return bitfield.KindU8, true
	case "u16":
		return bitfield.KindU16, true
	case "u32":
		return bitfield.KindU32, true
	case "u64":
		return bitfield.KindU64, true
	default:
		return 0, false
	}
}

func parseFloatingKind(s string) (bitfield.FloatingKind, bool) {
	switch s {
	case "f32":
		return bitfield.KindF32, true
	case "f64":
		return bitfield.KindF64, true
	default:
		return 0, false
	}
}
