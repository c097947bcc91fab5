package registry

import (
	"fmt"
	"sort"

	"github.com/groundstation/tmtc-broker/bitfield"
	"github.com/groundstation/tmtc-broker/satconfig"
)

// StatusConverter maps an integer telemetry value to an enum label,
// falling back to DefaultLabel for values not present in Map.
type StatusConverter struct {
	Map          map[int64]string
	DefaultLabel string
}

// Convert returns the label for value, or DefaultLabel if unmapped.
func (c StatusConverter) Convert(value int64) string {
	if label, ok := c.Map[value]; ok {
		return label
	}
	return c.DefaultLabel
}

// PolynomialConverter evaluates a degree-5 polynomial a0 + a1*x + ... +
// a5*x^5 to convert a raw telemetry value into engineering units.
type PolynomialConverter struct {
	A [6]float64
}

// Convert evaluates the polynomial at x.
func (c PolynomialConverter) Convert(x float64) float64 {
	var acc, pow float64 = 0, 1
	for _, a := range c.A {
		acc += a * pow
		pow *= x
	}
	return acc
}

// FieldDataType classifies a telemetry field's converted value for
// schema reflection purposes.
type FieldDataType int

// Field data types.
const (
	DataInteger FieldDataType = iota
	DataDouble
	DataEnum
)

// IntegralFieldDef describes one integral telemetry field before layout:
// its bit range and an optional converter. At most one of Status or
// Polynomial may be set.
type IntegralFieldDef struct {
	Name        string
	Description string
	Kind        bitfield.IntegralKind
	Range       bitfield.Range
	Status      *StatusConverter
	Polynomial  *PolynomialConverter
}

// FloatingFieldDef describes one floating-point telemetry field before
// layout: its bit range and an optional polynomial converter.
type FloatingFieldDef struct {
	Name        string
	Description string
	Kind        bitfield.FloatingKind
	Range       bitfield.Range
	Polynomial  *PolynomialConverter
}

// IntegralFieldSchema is a built integral telemetry field, ready to read
// from a packet's user data.
type IntegralFieldSchema struct {
	Order        int
	Name         string
	RawName      string
	Description  string
	DataType     FieldDataType
	Field        bitfield.GenericIntegralField
	Status       *StatusConverter
	Polynomial   *PolynomialConverter
}

// FloatingFieldSchema is a built floating-point telemetry field.
type FloatingFieldSchema struct {
	Order       int
	Name        string
	RawName     string
	Description string
	DataType    FieldDataType
	Field       bitfield.GenericFloatingField
	Polynomial  *PolynomialConverter
}

// TelemetrySchema is the full set of fields one telemetry definition
// carries, in declared order.
type TelemetrySchema struct {
	IntegralFields []IntegralFieldSchema
	FloatingFields []FloatingFieldSchema
}

// TelemetryDef is one fully specified telemetry definition, as supplied
// by the schema source prior to registry construction.
type TelemetryDef struct {
	Component      string
	Telemetry      string
	TelemetryID    uint8
	Restricted     bool
	IntegralFields []IntegralFieldDef
	FloatingFields []FloatingFieldDef
}

func buildTelemetrySchema(def TelemetryDef) (TelemetrySchema, error) {
	var schema TelemetrySchema
	order := 0
	for _, f := range def.IntegralFields {
		field, err := bitfield.NewIntegralField(f.Kind, f.Range)
		if err != nil {
			return TelemetrySchema{}, fmt.Errorf("registry: field %q: %w", f.Name, err)
		}
		dt := DataInteger
		if f.Status != nil {
			dt = DataEnum
		} else if f.Polynomial != nil {
			dt = DataDouble
		}
		schema.IntegralFields = append(schema.IntegralFields, IntegralFieldSchema{
			Order: order, Name: f.Name, RawName: f.Name + "@RAW", Description: f.Description,
			DataType: dt, Field: field, Status: f.Status, Polynomial: f.Polynomial,
		})
		order++
	}
	for _, f := range def.FloatingFields {
		field, err := bitfield.NewFloatingField(f.Kind, f.Range)
		if err != nil {
			return TelemetrySchema{}, fmt.Errorf("registry: field %q: %w", f.Name, err)
		}
		schema.FloatingFields = append(schema.FloatingFields, FloatingFieldSchema{
			Order: order, Name: f.Name, RawName: f.Name + "@RAW", Description: f.Description,
			DataType: DataDouble, Field: field, Polynomial: f.Polynomial,
		})
		order++
	}
	return schema, nil
}

// FatTelemetrySchema joins a built TelemetrySchema with the component and
// telemetry names it was defined under, so a TmivName can be formed for
// any ground channel it's delivered on.
type FatTelemetrySchema struct {
	Component string
	Telemetry string
	Schema    TelemetrySchema
}

// TmivName returns the dotted "channel.component.telemetry" name a TMIV
// delivered on channel carries.
func (f FatTelemetrySchema) TmivName(channel string) string {
	return fmt.Sprintf("%s.%s.%s", channel, f.Component, f.Telemetry)
}

type telemetryKey struct {
	apid uint16
	id   uint8
}

// TelemetryRegistry resolves an (APID, telemetry ID) pair to its
// FatTelemetrySchema, and resolves a destination-flags bitmask to the
// ground channels it should fan out to.
type TelemetryRegistry struct {
	channelMap satconfig.TelemetryChannelMap
	schemaMap  map[telemetryKey]FatTelemetrySchema
	defs       []TelemetryDef
}

// NewTelemetryRegistry builds a TelemetryRegistry from a set of telemetry
// definitions, a component→APID(s) map, and the channel fan-out table. A
// component may be reachable under more than one APID; the definition is
// registered under every one.
func NewTelemetryRegistry(defs []TelemetryDef, apidsByComponent map[string][]uint16, channelMap satconfig.TelemetryChannelMap) (*TelemetryRegistry, error) {
	schemaMap := make(map[telemetryKey]FatTelemetrySchema)
	for _, def := range defs {
		apids, ok := apidsByComponent[def.Component]
		if !ok || len(apids) == 0 {
			return nil, fmt.Errorf("registry: APID is not defined for component %q", def.Component)
		}
		schema, err := buildTelemetrySchema(def)
		if err != nil {
			return nil, err
		}
		fat := FatTelemetrySchema{Component: def.Component, Telemetry: def.Telemetry, Schema: schema}
		for _, apid := range apids {
			schemaMap[telemetryKey{apid: apid, id: def.TelemetryID}] = fat
		}
	}
	return &TelemetryRegistry{channelMap: channelMap, schemaMap: schemaMap, defs: defs}, nil
}

// Lookup resolves an (APID, telemetry ID) pair to its FatTelemetrySchema.
func (r *TelemetryRegistry) Lookup(apid uint16, telemetryID uint8) (FatTelemetrySchema, bool) {
	fat, ok := r.schemaMap[telemetryKey{apid: apid, id: telemetryID}]
	return fat, ok
}

// FindChannels returns the names of every ground channel whose
// destination_flag_mask ANDs non-zero against destinationFlags.
func (r *TelemetryRegistry) FindChannels(destinationFlags uint8) []string {
	var channels []string
	for name, ch := range r.channelMap {
		if ch.DestinationFlagMask&destinationFlags != 0 {
			channels = append(channels, name)
		}
	}
	return channels
}

// AllTmivNames returns every "channel.component.telemetry" name this
// registry could ever produce, across every registered channel and
// telemetry definition.
func (r *TelemetryRegistry) AllTmivNames() []string {
	var names []string
	for channel := range r.channelMap {
		for _, fat := range r.schemaMap {
			names = append(names, fat.TmivName(channel))
		}
	}
	return names
}

// HasSchema reports whether tmivName is one AllTmivNames could
// produce. Satisfies the telemetry.SchemaSet interface, letting a
// *TelemetryRegistry be passed directly to telemetry.NewSanitizeHook
// and telemetry.NewLastTmivStore.
func (r *TelemetryRegistry) HasSchema(tmivName string) bool {
	for channel := range r.channelMap {
		for _, fat := range r.schemaMap {
			if fat.TmivName(channel) == tmivName {
				return true
			}
		}
	}
	return false
}

// TelemetryFieldReflection describes one telemetry field for schema
// reflection, without its raw bit range.
type TelemetryFieldReflection struct {
	Name        string
	Description string
	DataType    FieldDataType
}

// TelemetryReflection describes one telemetry definition for schema
// reflection.
type TelemetryReflection struct {
	Name        string
	TelemetryID uint8
	Restricted  bool
	Fields      []TelemetryFieldReflection
}

// TelemetryComponentSchema groups a component's telemetries for the
// GetSatelliteSchema reflection RPC. Grounded on
// gaia/src/registry/tlm.rs's build_telemetry_component_schema_map.
type TelemetryComponentSchema struct {
	Component   string
	Telemetries []TelemetryReflection
}

// Channels returns every configured ground channel name, sorted.
func (r *TelemetryRegistry) Channels() []string {
	names := make([]string, 0, len(r.channelMap))
	for name := range r.channelMap {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Components groups every registered telemetry definition by
// component, sorted by component then telemetry name, for the
// GetSatelliteSchema RPC.
func (r *TelemetryRegistry) Components() []TelemetryComponentSchema {
	byComponent := make(map[string][]TelemetryReflection)
	for _, def := range r.defs {
		var fields []TelemetryFieldReflection
		for _, f := range def.IntegralFields {
			dt := DataInteger
			if f.Status != nil {
				dt = DataEnum
			} else if f.Polynomial != nil {
				dt = DataDouble
			}
			fields = append(fields, TelemetryFieldReflection{Name: f.Name, Description: f.Description, DataType: dt})
		}
		for _, f := range def.FloatingFields {
			fields = append(fields, TelemetryFieldReflection{Name: f.Name, Description: f.Description, DataType: DataDouble})
		}
		byComponent[def.Component] = append(byComponent[def.Component], TelemetryReflection{
			Name: def.Telemetry, TelemetryID: def.TelemetryID, Restricted: def.Restricted, Fields: fields,
		})
	}
	components := make([]TelemetryComponentSchema, 0, len(byComponent))
	for name, tlms := range byComponent {
		sort.Slice(tlms, func(i, j int) bool { return tlms[i].Name < tlms[j].Name })
		components = append(components, TelemetryComponentSchema{Component: name, Telemetries: tlms})
	}
	sort.Slice(components, func(i, j int) bool { return components[i].Component < components[j].Component })
	return components
}
