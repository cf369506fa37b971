package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tcpflow.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfigFile(t, `
capture:
  file: /tmp/session.pcap
  bpf: "tcp port 80"
  snap_len: 1600
reassembly:
  closed_connection_delay_sec: 10
  max_num_to_clean: 50
  keep_conn_info: true
output:
  dir: /tmp/streams
  report: /tmp/report.yml
log:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/session.pcap", cfg.Capture.File)
	assert.Equal(t, "tcp port 80", cfg.Capture.BPF)
	assert.Equal(t, 1600, cfg.Capture.SnapLen)
	assert.Equal(t, 10, cfg.Reassembly.ClosedConnectionDelaySec)
	assert.Equal(t, 50, cfg.Reassembly.MaxNumToClean)
	assert.True(t, cfg.Reassembly.KeepConnInfo)
	assert.Equal(t, "/tmp/streams", cfg.Output.Dir)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
capture:
  interface: eth0
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 65535, cfg.Capture.SnapLen)
	assert.Equal(t, "tcp", cfg.Capture.BPF)
	assert.Equal(t, ".", cfg.Output.Dir)
	assert.Equal(t, "report.yml", cfg.Output.Report)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "tcp", cfg.Capture.BPF)
	assert.Equal(t, 65535, cfg.Capture.SnapLen)
	assert.Equal(t, "report.yml", cfg.Output.Report)
}
