package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/mascril/internal/instrument"
	"github.com/banshee-data/mascril/internal/measure/alarm"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadRunConfig_YAML(t *testing.T) {
	path := writeFile(t, "run.yaml", `
script: dc2gates
comment: chipA
data_dir: /data/chipA
database: runs.db
listen: localhost:8090
abort_on: [call_for_help]
bookkeeping: true
params:
  Vdss: [0.01]
  Vg1s: {start: -1, stop: 1, step: 0.5, round_trip: true}
  commongate: true
  Rg1: 100e6
instruments:
  Vg1:
    resource: TCPIP0::192.168.0.2::5025::SOCKET
    preset: bilt
    channel: I2
  Vds:
    resource: ASRL/dev/ttyUSB0::INSTR
    preset: k2400
    serial: {baud_rate: 19200}
  Vdsm:
    resource: sim
`)
	cfg, err := LoadRunConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "dc2gates", cfg.Script)
	assert.Equal(t, "chipA", cfg.Comment)
	assert.Equal(t, "/data/chipA", cfg.DataDir)
	assert.Equal(t, "runs.db", cfg.Database)
	assert.True(t, cfg.Bookkeeping)
	assert.Equal(t, []any{0.01}, cfg.Params["Vdss"])
	assert.Equal(t, map[string]any{"start": -1, "stop": 1, "step": 0.5, "round_trip": true}, cfg.Params["Vg1s"])
	assert.Equal(t, true, cfg.Params["commongate"])
	assert.Equal(t, 100e6, cfg.Params["Rg1"])
	assert.Equal(t, instrument.Config{Resource: "TCPIP0::192.168.0.2::5025::SOCKET", Preset: "bilt", Channel: "I2"}, cfg.Instruments["Vg1"])
	assert.Equal(t, 19200, cfg.Instruments["Vds"].Serial.BaudRate)

	sev, err := cfg.AbortSeverities()
	require.NoError(t, err)
	assert.Equal(t, []alarm.Severity{alarm.CallForHelp}, sev)
}

func TestLoadRunConfig_JSON(t *testing.T) {
	path := writeFile(t, "run.json", `{
		"script": "vna1gate",
		"params": {"Vgs": "-1:1:0.5", "Rg": 1e8},
		"instruments": {"Vg": {"resource": "TCPIP0::bilt::5025::SOCKET", "preset": "bilt", "channel": "I1", "safe": 0.1}}
	}`)
	cfg, err := LoadRunConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "vna1gate", cfg.Script)
	assert.Equal(t, "-1:1:0.5", cfg.Params["Vgs"])
	assert.Equal(t, json.Number("1e8"), cfg.Params["Rg"])
	require.NotNil(t, cfg.Instruments["Vg"].Safe)
	assert.Equal(t, 0.1, *cfg.Instruments["Vg"].Safe)
}

func TestLoadRunConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		want    string
	}{
		{name: "extension", file: "run.toml", content: `script = "x"`, want: "extension"},
		{name: "bad json", file: "run.json", content: `{"script":`, want: "failed to parse config JSON"},
		{name: "unknown json field", file: "run.json", content: `{"script":"x","scirpt":"y"}`, want: "unknown field"},
		{name: "unknown yaml field", file: "run.yml", content: "script: x\ndatadir: /tmp\n", want: "failed to parse config YAML"},
		{name: "missing script", file: "run.yaml", content: "comment: x\n", want: "script is required"},
		{name: "empty file", file: "run.yaml", content: "", want: "script is required"},
		{name: "bad resource", file: "run.yaml", content: "script: x\ninstruments:\n  Vg: {resource: \"GPIB0::1::INSTR\", preset: bilt}\n", want: "instrument Vg"},
		{name: "bad preset", file: "run.yaml", content: "script: x\ninstruments:\n  Vg: {resource: \"h:1\", preset: hp}\n", want: "unknown instrument preset"},
		{name: "bad severity", file: "run.yaml", content: "script: x\nabort_on: [panic]\n", want: "abort_on"},
		{name: "show value abort", file: "run.yaml", content: "script: x\nabort_on: [show_value]\n", want: "cannot stop a run"},
		{name: "bad listen", file: "run.yaml", content: "script: x\nlisten: nope\n", want: "invalid listen address"},
		{name: "comment path", file: "run.yaml", content: "script: x\ncomment: a/b\n", want: "path separators"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadRunConfig(writeFile(t, tt.file, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadRunConfig_TooLarge(t *testing.T) {
	big := "script: x\ncomment: " + strings.Repeat("a", maxFileSize) + "\n"
	_, err := LoadRunConfig(writeFile(t, "run.yaml", big))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestLoadRunConfig_Missing(t *testing.T) {
	_, err := LoadRunConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to stat")
}

func TestDataFile(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 30, 5, 0, time.UTC)
	cfg := &RunConfig{DataDir: "/data", Comment: "chipA"}
	assert.Equal(t, "/data/2026-03-01_09h30m05s_chipA.txt", cfg.DataFile(at))
	cfg = &RunConfig{}
	assert.Equal(t, "2026-03-01_09h30m05s_.txt", cfg.DataFile(at))
}
