// Package config loads swimshell's TOML configuration, grounded in
// internal/daemon's DefaultConfig/parseStorageSize pattern: a plain
// struct decoded by BurntSushi/toml, with a conservative default and
// duration strings parsed with a safe fallback.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the top-level on-disk configuration for a swimd node.
type Config struct {
	BindAddress          string   `toml:"bind_address"`
	BindPort             uint16   `toml:"bind_port"`
	InitialContactPoints []string `toml:"initial_contact_points"`

	Protocol Protocol `toml:"protocol"`
}

// Protocol holds the engine's tunable parameters as duration strings
// on disk, parsed into time.Duration at load time.
type Protocol struct {
	ProtocolPeriod          string `toml:"protocol_period"`
	PingTimeout             string `toml:"ping_timeout"`
	SuspicionTTL            string `toml:"suspicion_ttl"`
	SuspicionFloor          string `toml:"suspicion_floor"`
	IndirectFanout          int    `toml:"indirect_fanout"`
	Lambda                  int    `toml:"lambda"`
	ExtensionUnreachability bool   `toml:"extension_unreachability"`
}

// Default returns conservative defaults: the same protocol timings,
// fanout and lambda as swim.DefaultConfig, but with
// ExtensionUnreachability enabled, which swim.DefaultConfig leaves off.
func Default() *Config {
	return &Config{
		BindAddress:          "127.0.0.1",
		BindPort:             7946,
		InitialContactPoints: nil,
		Protocol: Protocol{
			ProtocolPeriod:          "1s",
			PingTimeout:             "500ms",
			SuspicionTTL:            "5s",
			SuspicionFloor:          "1s",
			IndirectFanout:          3,
			Lambda:                  3,
			ExtensionUnreachability: true,
		},
	}
}

// Load reads and decodes a TOML config file at path, falling back to
// Default() for any field the file leaves zero-valued in its Protocol
// section's duration strings.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	return cfg, nil
}

// ParseDuration parses s as a Go duration string, falling back to
// fallback when s is empty or malformed — the same "empty string
// means use the default" rule daemon.parseStorageSize applies to
// storage sizes.
func ParseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// ProtocolDurations resolves p's duration strings against the
// defaults, used when building a swim.Config from a loaded file.
func (p Protocol) ProtocolDurations() (protocolPeriod, pingTimeout, suspicionTTL, suspicionFloor time.Duration) {
	def := Default().Protocol
	protocolPeriod = ParseDuration(p.ProtocolPeriod, ParseDuration(def.ProtocolPeriod, time.Second))
	pingTimeout = ParseDuration(p.PingTimeout, ParseDuration(def.PingTimeout, 500*time.Millisecond))
	suspicionTTL = ParseDuration(p.SuspicionTTL, ParseDuration(def.SuspicionTTL, 5*time.Second))
	suspicionFloor = ParseDuration(p.SuspicionFloor, ParseDuration(def.SuspicionFloor, time.Second))
	return
}
