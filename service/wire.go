// wire.go holds the RPC surface's wire-neutral DTOs: plain structs that
// shadow the in-process tcotmiv types with the field shapes a future
// protobuf transport binding would marshal, carrying the legacy
// proto.Message methods so they satisfy that contract today without a
// generated .pb.go file. Grounded on nl-proto/convert.go's ParsedMessage
// <-> protobuf conversion pattern, adapted from netlink diagnostics to
// TCOs/TMIVs.
package service

import (
	"fmt"
	"time"

	"github.com/golang/protobuf/proto"

	"github.com/groundstation/tmtc-broker/tcotmiv"
)

// ParamWire is one TCO parameter in wire form: exactly one of Int,
// Double, or Bytes is meaningful, selected by Kind.
type ParamWire struct {
	Name   string
	Kind   int32
	Int    int64
	Double float64
	Bytes  []byte
}

// Reset implements proto.Message.
func (m *ParamWire) Reset() { *m = ParamWire{} }

// String implements proto.Message.
func (m *ParamWire) String() string { return fmt.Sprintf("%+v", *m) }

// ProtoMessage implements proto.Message.
func (m *ParamWire) ProtoMessage() {}

// TcoWire is a Tco in wire form.
type TcoWire struct {
	Name   string
	Params []*ParamWire
}

// Reset implements proto.Message.
func (m *TcoWire) Reset() { *m = TcoWire{} }

// String implements proto.Message.
func (m *TcoWire) String() string { return fmt.Sprintf("%+v", *m) }

// ProtoMessage implements proto.Message.
func (m *TcoWire) ProtoMessage() {}

// TcoToWire converts an in-process Tco to its wire form.
func TcoToWire(tco tcotmiv.Tco) *TcoWire {
	params := make([]*ParamWire, len(tco.Params))
	for i, p := range tco.Params {
		params[i] = &ParamWire{
			Name: p.Name, Kind: int32(p.Value.Kind),
			Int: p.Value.Int, Double: p.Value.Double, Bytes: p.Value.Bytes,
		}
	}
	return &TcoWire{Name: tco.Name, Params: params}
}

// TcoFromWire converts a wire-form Tco back to its in-process shape.
func TcoFromWire(w *TcoWire) tcotmiv.Tco {
	params := make([]tcotmiv.Param, len(w.Params))
	for i, p := range w.Params {
		params[i] = tcotmiv.Param{
			Name: p.Name,
			Value: tcotmiv.ParamValue{
				Kind: tcotmiv.ParamKind(p.Kind), Int: p.Int, Double: p.Double, Bytes: p.Bytes,
			},
		}
	}
	return tcotmiv.Tco{Name: w.Name, Params: params}
}

// FieldWire is one converted telemetry field in wire form.
type FieldWire struct {
	Name   string
	Kind   int32
	Int    int64
	Double float64
	Str    string
	Bytes  []byte
}

// Reset implements proto.Message.
func (m *FieldWire) Reset() { *m = FieldWire{} }

// String implements proto.Message.
func (m *FieldWire) String() string { return fmt.Sprintf("%+v", *m) }

// ProtoMessage implements proto.Message.
func (m *FieldWire) ProtoMessage() {}

// TmivWire is a Tmiv in wire form, with PluginReceivedTime carried as a
// Unix nanosecond timestamp rather than a time.Time.
type TmivWire struct {
	Name               string
	Fields             []*FieldWire
	PluginReceivedTime int64
}

// Reset implements proto.Message.
func (m *TmivWire) Reset() { *m = TmivWire{} }

// String implements proto.Message.
func (m *TmivWire) String() string { return fmt.Sprintf("%+v", *m) }

// ProtoMessage implements proto.Message.
func (m *TmivWire) ProtoMessage() {}

// TmivToWire converts an in-process Tmiv to its wire form.
func TmivToWire(tmiv *tcotmiv.Tmiv) *TmivWire {
	fields := make([]*FieldWire, len(tmiv.Fields))
	for i, f := range tmiv.Fields {
		fields[i] = &FieldWire{
			Name: f.Name, Kind: int32(f.Value.Kind),
			Int: f.Value.Int, Double: f.Value.Double, Str: f.Value.Str, Bytes: f.Value.Bytes,
		}
	}
	return &TmivWire{Name: tmiv.Name, Fields: fields, PluginReceivedTime: tmiv.PluginReceivedTime.UnixNano()}
}

// TmivFromWire converts a wire-form Tmiv back to its in-process shape.
func TmivFromWire(w *TmivWire) *tcotmiv.Tmiv {
	fields := make([]tcotmiv.Field, len(w.Fields))
	for i, f := range w.Fields {
		fields[i] = tcotmiv.Field{
			Name: f.Name,
			Value: tcotmiv.FieldValue{
				Kind: tcotmiv.FieldKind(f.Kind), Int: f.Int, Double: f.Double, Str: f.Str, Bytes: f.Bytes,
			},
		}
	}
	return &tcotmiv.Tmiv{Name: w.Name, Fields: fields, PluginReceivedTime: time.Unix(0, w.PluginReceivedTime)}
}

var (
	_ proto.Message = (*TcoWire)(nil)
	_ proto.Message = (*TmivWire)(nil)
	_ proto.Message = (*ParamWire)(nil)
	_ proto.Message = (*FieldWire)(nil)
)
