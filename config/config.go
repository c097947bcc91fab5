// Package config loads the satellite configuration document named by
// spec.md §6: spacecraft identifiers, APID assignments, telemetry fan-out
// channels, and the command prefix routing table. The document shape is
// defined by satconfig.Config; this package only adds the file-loading
// convenience the teacher's cmd/*/main.go callers expect.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/groundstation/tmtc-broker/satconfig"
)

// Config is the satellite configuration document. It is satconfig.Config
// verbatim: the two packages exist separately because satconfig defines the
// shape the registry package consumes, while config owns reading it off disk.
type Config = satconfig.Config

// Load reads and parses path as a Config document.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// TelemetryApidsByComponent inverts Config.TlmApidMap (apid -> component)
// into the component -> []apid shape registry.NewTelemetryRegistry expects,
// since one component may be reachable under more than one APID.
func TelemetryApidsByComponent(cfg Config) map[string][]uint16 {
	byComponent := make(map[string][]uint16, len(cfg.TlmApidMap))
	for apid, component := range cfg.TlmApidMap {
		byComponent[component] = append(byComponent[component], apid)
	}
	return byComponent
}
