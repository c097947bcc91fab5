// Package handler provides the generic request-handling and
// before-hook composition building blocks the telemetry and command
// pipelines are assembled from: a Handle processes a request into a
// response, a Hook transforms a request before it reaches a Handle,
// and a Builder stacks hooks and other layers around a base Handle.
//
// Grounded on gaia-tmtc/src/handler.rs. That original expresses the
// composition at the type level (a Layer's associated Handle type can
// differ per layer), which Go's generics cannot mirror directly. Here
// a Layer is a same-signature function transform instead, which covers
// every hook this broker actually wires: sanitizing a Tco or Tmiv in
// place before the next stage runs.
package handler

import "context"

// Handle processes a request into a response.
type Handle[Req, Resp any] interface {
	Handle(ctx context.Context, req Req) (Resp, error)
}

// HandleFunc adapts a plain function to Handle.
type HandleFunc[Req, Resp any] func(ctx context.Context, req Req) (Resp, error)

// Handle implements Handle.
func (f HandleFunc[Req, Resp]) Handle(ctx context.Context, req Req) (Resp, error) {
	return f(ctx, req)
}

// Hook transforms a request before it reaches the next Handle in the
// stack, failing the whole chain if it returns an error.
type Hook[Req any] interface {
	Hook(ctx context.Context, req Req) (Req, error)
}

// HookFunc adapts a plain function to Hook.
type HookFunc[Req any] func(ctx context.Context, req Req) (Req, error)

// Hook implements Hook.
func (f HookFunc[Req]) Hook(ctx context.Context, req Req) (Req, error) { return f(ctx, req) }

// BeforeHook runs hook over the request, then passes its output to
// inner.
type BeforeHook[Req, Resp any] struct {
	hook  Hook[Req]
	inner Handle[Req, Resp]
}

// NewBeforeHook builds a BeforeHook.
func NewBeforeHook[Req, Resp any](hook Hook[Req], inner Handle[Req, Resp]) *BeforeHook[Req, Resp] {
	return &BeforeHook[Req, Resp]{hook: hook, inner: inner}
}

// Handle implements Handle.
func (b *BeforeHook[Req, Resp]) Handle(ctx context.Context, req Req) (Resp, error) {
	next, err := b.hook.Hook(ctx, req)
	if err != nil {
		var zero Resp
		return zero, err
	}
	return b.inner.Handle(ctx, next)
}

// Choice tries first; if it returns a nil *S, it falls through to
// second. Used to chain command handlers from different subsystems
// that each answer "not mine" with a nil response rather than an
// error.
type Choice[Req, S any] struct {
	first, second Handle[Req, *S]
}

// NewChoice builds a Choice.
func NewChoice[Req, S any](first, second Handle[Req, *S]) *Choice[Req, S] {
	return &Choice[Req, S]{first: first, second: second}
}

// Handle implements Handle.
func (c *Choice[Req, S]) Handle(ctx context.Context, req Req) (*S, error) {
	ret, err := c.first.Handle(ctx, req)
	if err != nil {
		return nil, err
	}
	if ret != nil {
		return ret, nil
	}
	return c.second.Handle(ctx, req)
}

// Prepend wraps self so first is tried before it.
func Prepend[Req, S any](self Handle[Req, *S], first Handle[Req, *S]) *Choice[Req, S] {
	return NewChoice(first, self)
}

// Append wraps self so second is tried after it.
func Append[Req, S any](self Handle[Req, *S], second Handle[Req, *S]) *Choice[Req, S] {
	return NewChoice(self, second)
}

// Layer wraps a Handle with additional behavior, producing a new
// Handle of the same request/response shape.
type Layer[Req, Resp any] func(Handle[Req, Resp]) Handle[Req, Resp]

// Identity is the no-op Layer; it is the Builder's zero value.
func Identity[Req, Resp any](h Handle[Req, Resp]) Handle[Req, Resp] { return h }

// BeforeHookLayer builds a Layer that runs hook ahead of whatever it
// wraps.
func BeforeHookLayer[Req, Resp any](hook Hook[Req]) Layer[Req, Resp] {
	return func(inner Handle[Req, Resp]) Handle[Req, Resp] {
		return NewBeforeHook(hook, inner)
	}
}

// Builder accumulates Layers and applies them around a base Handle.
// Layers added earlier end up outermost: Builder.Layer(A).Layer(B).Build(h)
// produces A(B(h)), matching the nesting order of the Rust Stack type
// this is grounded on.
type Builder[Req, Resp any] struct {
	layers []Layer[Req, Resp]
}

// NewBuilder returns an empty Builder.
func NewBuilder[Req, Resp any]() *Builder[Req, Resp] {
	return &Builder[Req, Resp]{}
}

// Layer appends a layer to the stack.
func (b *Builder[Req, Resp]) Layer(layer Layer[Req, Resp]) *Builder[Req, Resp] {
	layers := make([]Layer[Req, Resp], len(b.layers)+1)
	copy(layers, b.layers)
	layers[len(b.layers)] = layer
	return &Builder[Req, Resp]{layers: layers}
}

// OptionLayer appends layer if non-nil, or Identity otherwise — the
// Go analogue of Either<Layer, Identity> for optional middleware.
func (b *Builder[Req, Resp]) OptionLayer(layer Layer[Req, Resp]) *Builder[Req, Resp] {
	if layer == nil {
		return b.Layer(Identity[Req, Resp])
	}
	return b.Layer(layer)
}

// BeforeHook appends a BeforeHookLayer wrapping hook.
func (b *Builder[Req, Resp]) BeforeHook(hook Hook[Req]) *Builder[Req, Resp] {
	return b.Layer(BeforeHookLayer[Req, Resp](hook))
}

// Build wraps handle with every accumulated layer and returns the
// resulting Handle.
func (b *Builder[Req, Resp]) Build(handle Handle[Req, Resp]) Handle[Req, Resp] {
	h := handle
	for i := len(b.layers) - 1; i >= 0; i-- {
		h = b.layers[i](h)
	}
	return h
}
