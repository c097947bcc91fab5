package tcotmiv_test

import (
	"testing"

	"github.com/groundstation/tmtc-broker/bitfield"
	"github.com/groundstation/tmtc-broker/registry"
	"github.com/groundstation/tmtc-broker/tcotmiv"
)

func kindU8() *bitfield.IntegralKind {
	k := bitfield.KindU8
	return &k
}

func kindI16() *bitfield.IntegralKind {
	k := bitfield.KindI16
	return &k
}

func kindF32() *bitfield.FloatingKind {
	k := bitfield.KindF32
	return &k
}

func TestPackCommandWithFloatField(t *testing.T) {
	params := []registry.CommandParameterDef{
		{Name: "param1", Numeric: &registry.NumericKindDef{Integral: kindU8()}},
		{Name: "param2", Numeric: &registry.NumericKindDef{Integral: kindI16()}},
		{Name: "param3", Numeric: &registry.NumericKindDef{Floating: kindF32()}},
	}
	schema, err := registry.BuildCommandSchema(1, 100, 0, 0, false, "test command", params)
	if err != nil {
		t.Fatal(err)
	}

	tco := tcotmiv.Tco{
		Name: "sat1.obc.test",
		Params: []tcotmiv.Param{
			{Name: "param2", Value: tcotmiv.NewIntParam(-1)},
			{Name: "param3", Value: tcotmiv.NewDoubleParam(3.5)},
			{Name: "param1", Value: tcotmiv.NewIntParam(0x42)},
		},
	}

	buf := make([]byte, schema.StaticSizeBytes)
	n, err := tcotmiv.PackCommand(buf, schema, tco)
	if err != nil {
		t.Fatal(err)
	}
	if n != 7 {
		t.Fatalf("PackCommand: got %d bytes written, want 7", n)
	}
	want := []byte{0x42, 0xFF, 0xFF, 0x40, 0x60, 0x00, 0x00}
	for i, b := range want {
		if buf[i] != b {
			t.Errorf("byte %d: got %#x want %#x", i, buf[i], b)
		}
	}
}

func TestPackCommandWithTrailer(t *testing.T) {
	params := []registry.CommandParameterDef{
		{Name: "mode", Numeric: &registry.NumericKindDef{Integral: kindU8()}},
		{Name: "payload", Numeric: nil},
	}
	schema, err := registry.BuildCommandSchema(1, 100, 0, 0, false, "", params)
	if err != nil {
		t.Fatal(err)
	}

	tco := tcotmiv.Tco{
		Name: "sat1.obc.test",
		Params: []tcotmiv.Param{
			{Name: "mode", Value: tcotmiv.NewIntParam(7)},
			{Name: "payload", Value: tcotmiv.NewBytesParam([]byte{0xAB, 0xCD, 0xEF})},
		},
	}

	buf := make([]byte, schema.StaticSizeBytes+3)
	n, err := tcotmiv.PackCommand(buf, schema, tco)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{7, 0xAB, 0xCD, 0xEF}
	if n != len(want) {
		t.Fatalf("PackCommand: got %d bytes written, want %d", n, len(want))
	}
	for i, b := range want {
		if buf[i] != b {
			t.Errorf("byte %d: got %#x want %#x", i, buf[i], b)
		}
	}
}

func TestPackCommandMissingParameter(t *testing.T) {
	params := []registry.CommandParameterDef{
		{Name: "mode", Numeric: &registry.NumericKindDef{Integral: kindU8()}},
	}
	schema, err := registry.BuildCommandSchema(1, 100, 0, 0, false, "", params)
	if err != nil {
		t.Fatal(err)
	}

	tco := tcotmiv.Tco{Name: "sat1.obc.test"}
	buf := make([]byte, schema.StaticSizeBytes)
	if _, err := tcotmiv.PackCommand(buf, schema, tco); err == nil {
		t.Error("expected an error for a missing parameter")
	}
}
