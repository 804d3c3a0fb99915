package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/pomelogate/internal/gateway"
)

// pomelod config.toml key mapping to gateway runtime settings.
type fileConfig struct {
	Addr              string   `toml:"addr"`
	AdminAddr         string   `toml:"admin_addr"`
	ServerID          string   `toml:"server_id"`
	HeartbeatInterval string   `toml:"heartbeat_interval"`
	HeartbeatTimeout  string   `toml:"heartbeat_timeout"`
	ReadTimeout       string   `toml:"read_timeout"`
	WriteTimeout      string   `toml:"write_timeout"`
	ReadBufferSize    int      `toml:"read_buffer_size"`
	MaxPacketSize     int      `toml:"max_packet_size"`
	CorsOrigins       []string `toml:"cors_origins"`
	AdminToken        string   `toml:"admin_token"`
}

// loadServiceConfig overlays the keys present in path onto the defaults.
func loadServiceConfig(path string) (gateway.ServiceConfig, error) {
	cfg := gateway.DefaultServiceConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return gateway.ServiceConfig{}, fmt.Errorf("load pomelod config: %w", err)
	}

	if meta.IsDefined("addr") {
		cfg.ListenAddr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("admin_addr") {
		cfg.AdminListenAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("server_id") {
		cfg.ServerID = strings.TrimSpace(raw.ServerID)
	}
	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"heartbeat_interval", raw.HeartbeatInterval, &cfg.Session.HeartbeatInterval},
		{"heartbeat_timeout", raw.HeartbeatTimeout, &cfg.Session.HeartbeatTimeout},
		{"read_timeout", raw.ReadTimeout, &cfg.ReadTimeout},
		{"write_timeout", raw.WriteTimeout, &cfg.WriteTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return gateway.ServiceConfig{}, fmt.Errorf("load pomelod config: %s: %w", d.key, err)
		}
		*d.dst = v
	}
	if meta.IsDefined("read_buffer_size") {
		cfg.Session.ReadBufferSize = raw.ReadBufferSize
	}
	if meta.IsDefined("max_packet_size") {
		cfg.Session.MaxPacketSize = raw.MaxPacketSize
	}
	if meta.IsDefined("cors_origins") {
		cfg.CORSOrigins = raw.CorsOrigins
	}

	if meta.IsDefined("admin_token") {
		cfg.AdminToken = strings.TrimSpace(raw.AdminToken)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return gateway.ServiceConfig{}, fmt.Errorf("load pomelod config: unknown key %q", undecoded[0].String())
	}
	if cfg.Session.HeartbeatTimeout <= cfg.Session.HeartbeatInterval {
		return gateway.ServiceConfig{}, fmt.Errorf(
			"load pomelod config: heartbeat_timeout (%s) must exceed heartbeat_interval (%s)",
			cfg.Session.HeartbeatTimeout,
			cfg.Session.HeartbeatInterval,
		)
	}
	return cfg, nil
}
