package config_test

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/groundstation/tmtc-broker/config"
)

const testConfig = `{
  "aos_scid": 12,
  "tc_scid": 34,
  "tlm_apid_map": {"100": "obc", "101": "obc", "200": "eps"},
  "cmd_apid_map": {"obc": 10, "eps": 20},
  "tlm_channel_map": {
    "realtime": {"destination_flag_mask": 1},
    "playback": {"destination_flag_mask": 2}
  },
  "cmd_prefix_map": {
    "gs": {
      "obc": {"has_time_indicator": true, "destination_type": 1, "execution_type": 2}
    }
  }
}`

func TestLoadParsesConfigDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "satconfig.json")
	if err := os.WriteFile(path, []byte(testConfig), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.AOSSCID != 12 || cfg.TCSCID != 34 {
		t.Errorf("unexpected spacecraft IDs: %+v", cfg)
	}
	if cfg.CmdApidMap["obc"] != 10 {
		t.Errorf("unexpected cmd_apid_map: %+v", cfg.CmdApidMap)
	}
	if cfg.TlmChannelMap["realtime"].DestinationFlagMask != 1 {
		t.Errorf("unexpected tlm_channel_map: %+v", cfg.TlmChannelMap)
	}
	subsystem := cfg.CmdPrefixMap["gs"]["obc"]
	if !subsystem.HasTimeIndicator || subsystem.DestinationType != 1 || subsystem.ExecutionType != 2 {
		t.Errorf("unexpected cmd_prefix_map entry: %+v", subsystem)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestLoadMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := config.Load(path); err == nil {
		t.Error("expected an error for malformed JSON")
	}
}

func TestTelemetryApidsByComponentInvertsMap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "satconfig.json")
	if err := os.WriteFile(path, []byte(testConfig), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}

	byComponent := config.TelemetryApidsByComponent(cfg)
	obcApids := byComponent["obc"]
	sort.Slice(obcApids, func(i, j int) bool { return obcApids[i] < obcApids[j] })
	if len(obcApids) != 2 || obcApids[0] != 100 || obcApids[1] != 101 {
		t.Errorf("unexpected obc APIDs: %v", obcApids)
	}
	if len(byComponent["eps"]) != 1 || byComponent["eps"][0] != 200 {
		t.Errorf("unexpected eps APIDs: %v", byComponent["eps"])
	}
}
