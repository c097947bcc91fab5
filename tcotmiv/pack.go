package tcotmiv

import (
	"fmt"

	"github.com/groundstation/tmtc-broker/bitfield"
	"github.com/groundstation/tmtc-broker/registry"
)

// PackCommand writes a sanitized Tco's parameters into bytes, following
// the physical layout registry.CommandSchema declares (not the
// alphabetical order Sanitize normalizes to): each sized parameter is
// looked up in the Tco by name and written to its bit-field slot, and a
// trailing Bytes parameter is copied verbatim after the static fields.
// It returns the total number of bytes written.
func PackCommand(bytes []byte, schema registry.CommandSchema, tco Tco) (int, error) {
	byName := make(map[string]ParamValue, len(tco.Params))
	for _, p := range tco.Params {
		byName[p.Name] = p.Value
	}

	for _, param := range schema.Parameters {
		value, ok := byName[param.Name]
		if !ok {
			return 0, fmt.Errorf("tcotmiv: missing parameter %q", param.Name)
		}
		if err := writeNumericParam(bytes, param.Field, value); err != nil {
			return 0, fmt.Errorf("tcotmiv: parameter %q: %w", param.Name, err)
		}
	}

	if !schema.HasTrailerParameter {
		return schema.StaticSizeBytes, nil
	}
	trailer, ok := byName[schema.TrailerName]
	if !ok {
		return 0, fmt.Errorf("tcotmiv: missing trailer parameter %q", schema.TrailerName)
	}
	if trailer.Kind != ParamBytes {
		return 0, fmt.Errorf("tcotmiv: trailer parameter %q must be bytes", schema.TrailerName)
	}
	end := schema.StaticSizeBytes + len(trailer.Bytes)
	if end > len(bytes) {
		return 0, fmt.Errorf("tcotmiv: trailer is too long for the buffer")
	}
	copy(bytes[schema.StaticSizeBytes:end], trailer.Bytes)
	return end, nil
}

func writeNumericParam(bytes []byte, field bitfield.NumericField, value ParamValue) error {
	switch value.Kind {
	case ParamInteger:
		if field.Kind != bitfield.NumericIntegral {
			return fmt.Errorf("expected a floating-point value")
		}
		return field.Integral.Write(bytes, bitfield.NewI64(value.Int))
	case ParamDouble:
		if field.Kind != bitfield.NumericFloating {
			return fmt.Errorf("expected an integer value")
		}
		if field.Floating.Kind == bitfield.KindF32 {
			return field.Floating.Write(bytes, bitfield.NewF32(float32(value.Double)))
		}
		return field.Floating.Write(bytes, bitfield.NewF64(value.Double))
	default:
		return fmt.Errorf("unexpected parameter kind for a sized field")
	}
}
