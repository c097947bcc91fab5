package registry

import (
	"log"

	"github.com/go-test/deep"

	"github.com/groundstation/tmtc-broker/satconfig"
)

// ReloadCommandRegistry rebuilds a CommandRegistry from a freshly loaded
// command database and satellite configuration, logging every command
// schema that was added, removed, or changed since old. old may be nil
// for the initial load, in which case no diff is logged. Grounded on
// gaia's registry/cmd.rs reload path, which diffs the rebuilt schema map
// against the previous one before swapping it in.
func ReloadCommandRegistry(old *CommandRegistry, defs []CommandDef, apidMap map[string]uint16, prefixMap satconfig.CommandPrefixMap) (*CommandRegistry, error) {
	next, err := NewCommandRegistry(defs, apidMap, prefixMap)
	if err != nil {
		return nil, err
	}
	if old == nil {
		return next, nil
	}
	for key, schema := range next.schemaMap {
		prev, existed := old.schemaMap[key]
		if !existed {
			log.Printf("registry: command %s.%s added on reload", key.component, key.command)
			continue
		}
		if diff := deep.Equal(prev, schema); len(diff) > 0 {
			log.Printf("registry: command %s.%s changed on reload: %v", key.component, key.command, diff)
		}
	}
	for key := range old.schemaMap {
		if _, stillExists := next.schemaMap[key]; !stillExists {
			log.Printf("registry: command %s.%s removed on reload", key.component, key.command)
		}
	}
	return next, nil
}

// ReloadTelemetryRegistry rebuilds a TelemetryRegistry the same way
// ReloadCommandRegistry does, diffing on the (APID, telemetry ID) key
// space.
func ReloadTelemetryRegistry(old *TelemetryRegistry, defs []TelemetryDef, apidsByComponent map[string][]uint16, channelMap satconfig.TelemetryChannelMap) (*TelemetryRegistry, error) {
	next, err := NewTelemetryRegistry(defs, apidsByComponent, channelMap)
	if err != nil {
		return nil, err
	}
	if old == nil {
		return next, nil
	}
	for key, schema := range next.schemaMap {
		prev, existed := old.schemaMap[key]
		if !existed {
			log.Printf("registry: telemetry apid=%d id=%d (%s.%s) added on reload", key.apid, key.id, schema.Component, schema.Telemetry)
			continue
		}
		if diff := deep.Equal(prev, schema); len(diff) > 0 {
			log.Printf("registry: telemetry apid=%d id=%d (%s.%s) changed on reload: %v", key.apid, key.id, schema.Component, schema.Telemetry, diff)
		}
	}
	for key, schema := range old.schemaMap {
		if _, stillExists := next.schemaMap[key]; !stillExists {
			log.Printf("registry: telemetry apid=%d id=%d (%s.%s) removed on reload", key.apid, key.id, schema.Component, schema.Telemetry)
		}
	}
	return next, nil
}
