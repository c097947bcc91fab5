// Package satconfig defines the ground-station-to-satellite mapping
// configuration: spacecraft identifiers, the APID assignments for
// telemetry and commands, telemetry fan-out channels, and the command
// prefix routing table. Config is loaded as plain JSON, matching the
// shape expected by registry.NewCommandRegistry and
// registry.NewTelemetryRegistry.
package satconfig

// Config is the top-level satellite configuration document.
type Config struct {
	AOSSCID       uint8               `json:"aos_scid"`
	TCSCID        uint16              `json:"tc_scid"`
	TlmApidMap    map[uint16]string   `json:"tlm_apid_map"`
	CmdApidMap    map[string]uint16   `json:"cmd_apid_map"`
	TlmChannelMap TelemetryChannelMap `json:"tlm_channel_map"`
	CmdPrefixMap  CommandPrefixMap    `json:"cmd_prefix_map"`
}

// TelemetryChannelMap maps a ground channel name to its fan-out rule.
type TelemetryChannelMap map[string]TelemetryChannel

// TelemetryChannel describes one telemetry fan-out destination: a
// telemetry is routed to this channel when its secondary header's
// destination_flags ANDs non-zero against DestinationFlagMask.
type TelemetryChannel struct {
	DestinationFlagMask uint8 `json:"destination_flag_mask"`
}

// CommandPrefixMap maps a command prefix (the first segment of a dotted
// TCO name) to the per-component routing metadata reachable under it.
type CommandPrefixMap map[string]map[string]CommandSubsystem

// CommandSubsystem carries the per-component routing metadata a command
// prefix entry resolves to.
type CommandSubsystem struct {
	HasTimeIndicator bool  `json:"has_time_indicator"`
	DestinationType  uint8 `json:"destination_type"`
	ExecutionType    uint8 `json:"execution_type"`
}
