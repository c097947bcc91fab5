// Package command provides the uplink-side sanitize hook, validating
// a Tco against its registered command schema before it reaches the
// COP-1 packing stage. Grounded on gaia-tmtc/src/command.rs.
package command

import (
	"fmt"

	"context"

	"github.com/groundstation/tmtc-broker/handler"
	"github.com/groundstation/tmtc-broker/tcotmiv"
)

// SchemaSet sanitizes a Tco against its registered schema.
type SchemaSet interface {
	Sanitize(tco tcotmiv.Tco) (tcotmiv.Tco, error)
}

// SanitizeHook normalizes and validates a Tco against schemaSet
// before forwarding it.
type SanitizeHook struct {
	schemaSet SchemaSet
}

// NewSanitizeHook builds a SanitizeHook.
func NewSanitizeHook(schemaSet SchemaSet) *SanitizeHook {
	return &SanitizeHook{schemaSet: schemaSet}
}

// Hook implements handler.Hook.
func (h *SanitizeHook) Hook(_ context.Context, tco tcotmiv.Tco) (tcotmiv.Tco, error) {
	sanitized, err := h.schemaSet.Sanitize(tco)
	if err != nil {
		return tcotmiv.Tco{}, fmt.Errorf("command: TCO validation error: %w", err)
	}
	return sanitized, nil
}

var _ handler.Hook[tcotmiv.Tco] = (*SanitizeHook)(nil)
