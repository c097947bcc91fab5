// Package pipeline wires the CCSDS codecs, COP-1 engine, and schema
// registries from the rest of this module into the two data paths a
// ground station runs: a downlink reporter turning AOS frames into
// TMIVs, and an uplink service turning TCOs into TC frames. Grounded
// on tmtc-c2a/src/satellite.rs and tmtc-c2a/src/tmiv.rs.
package pipeline

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/groundstation/tmtc-broker/bitfield"
	"github.com/groundstation/tmtc-broker/registry"
	"github.com/groundstation/tmtc-broker/tcotmiv"
)

// buildFields converts a telemetry definition's schema against raw
// space packet bytes into a flat list of Tmiv fields: every declared
// field contributes two entries, "<name>@RAW" holding the
// big-endian byte encoding actually on the wire and "<name>" holding
// the converted engineering value. Grounded on tmtc-c2a/src/tmiv.rs's
// FieldsBuilder.
func buildFields(schema registry.TelemetrySchema, bytes []byte) ([]tcotmiv.Field, error) {
	var fields []tcotmiv.Field
	for _, f := range schema.IntegralFields {
		raw, err := f.Field.Read(bytes)
		if err != nil {
			return nil, fmt.Errorf("pipeline: field %q: %w", f.Name, err)
		}
		fields = append(fields, tcotmiv.Field{
			Name:  f.RawName,
			Value: tcotmiv.FieldValue{Kind: tcotmiv.FieldBytes, Bytes: integralRawBytes(raw)},
		})
		fields = append(fields, tcotmiv.Field{Name: f.Name, Value: convertIntegral(f, raw)})
	}
	for _, f := range schema.FloatingFields {
		raw, err := f.Field.Read(bytes)
		if err != nil {
			return nil, fmt.Errorf("pipeline: field %q: %w", f.Name, err)
		}
		fields = append(fields, tcotmiv.Field{
			Name:  f.RawName,
			Value: tcotmiv.FieldValue{Kind: tcotmiv.FieldBytes, Bytes: floatingRawBytes(raw)},
		})
		fields = append(fields, tcotmiv.Field{Name: f.Name, Value: convertFloating(f, raw)})
	}
	return fields, nil
}

func integralRawBytes(v bitfield.IntegralValue) []byte {
	width := v.Kind().Bits() / 8
	buf := make([]byte, width)
	u := v.Uint64()
	switch width {
	case 1:
		buf[0] = byte(u)
	case 2:
		binary.BigEndian.PutUint16(buf, uint16(u))
	case 4:
		binary.BigEndian.PutUint32(buf, uint32(u))
	case 8:
		binary.BigEndian.PutUint64(buf, u)
	}
	return buf
}

func floatingRawBytes(v bitfield.FloatingValue) []byte {
	if v.Kind() == bitfield.KindF32 {
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, math.Float32bits(float32(v.Float64())))
		return buf
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, math.Float64bits(v.Float64()))
	return buf
}

func convertIntegral(f registry.IntegralFieldSchema, raw bitfield.IntegralValue) tcotmiv.FieldValue {
	switch {
	case f.Status != nil:
		return tcotmiv.FieldValue{Kind: tcotmiv.FieldEnum, Str: f.Status.Convert(raw.Int64())}
	case f.Polynomial != nil:
		return tcotmiv.FieldValue{Kind: tcotmiv.FieldDouble, Double: f.Polynomial.Convert(float64(raw.Int64()))}
	default:
		return tcotmiv.FieldValue{Kind: tcotmiv.FieldInteger, Int: raw.Int64()}
	}
}

func convertFloating(f registry.FloatingFieldSchema, raw bitfield.FloatingValue) tcotmiv.FieldValue {
	if f.Polynomial != nil {
		return tcotmiv.FieldValue{Kind: tcotmiv.FieldDouble, Double: f.Polynomial.Convert(raw.Float64())}
	}
	return tcotmiv.FieldValue{Kind: tcotmiv.FieldDouble, Double: raw.Float64()}
}
