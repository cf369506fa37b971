// Package config handles tool configuration loading using viper.
package config

import (
	"firestige.xyz/tcpflow/internal/log"
)

// Config is the top-level configuration of the tcpflow tool.
type Config struct {
	Capture    CaptureConfig    `mapstructure:"capture"`
	Reassembly ReassemblyConfig `mapstructure:"reassembly"`
	Output     OutputConfig     `mapstructure:"output"`
	Log        log.Config       `mapstructure:"log"`
}

// CaptureConfig selects the packet source. Exactly one of File or
// Interface should be set; command-line flags override both.
type CaptureConfig struct {
	File        string `mapstructure:"file"`
	Interface   string `mapstructure:"interface"`
	BPF         string `mapstructure:"bpf"`
	SnapLen     int    `mapstructure:"snap_len"`
	Promiscuous bool   `mapstructure:"promiscuous"`
}

// ReassemblyConfig exposes the engine's cleanup knobs.
type ReassemblyConfig struct {
	ClosedConnectionDelaySec int  `mapstructure:"closed_connection_delay_sec"`
	MaxNumToClean            int  `mapstructure:"max_num_to_clean"`
	KeepConnInfo             bool `mapstructure:"keep_conn_info"`
}

// OutputConfig controls where reassembled streams and the run report land.
type OutputConfig struct {
	Dir    string `mapstructure:"dir"`
	Report string `mapstructure:"report"`
}
