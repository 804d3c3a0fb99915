package config

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// maxBodyLen mirrors the 3-byte packet length field.
const maxBodyLen = 1<<24 - 1

// ServerConfig is the pomelod config.toml schema.
type ServerConfig struct {
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

// BotConfig is the pomelobot config.toml schema.
type BotConfig struct {
	Addr               string `toml:"addr"`
	Count              int    `toml:"count"`
	Interval           string `toml:"interval"`
	Route              string `toml:"route"`
	MaxConnectAttempts int    `toml:"max_connect_attempts"`
}

func LoadServerConfig(path string) (ServerConfig, error) {
	var cfg ServerConfig
	if err := loadToml(path, &cfg); err != nil {
		return ServerConfig{}, err
	}
	if cfg.Addr == "" {
		cfg.Addr = ":3010"
	}
	if cfg.ServerID == "" {
		cfg.ServerID = "connector-server-1"
	}
	if err := ValidateServerConfig(cfg); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

func LoadBotConfig(path string) (BotConfig, error) {
	var cfg BotConfig
	if err := loadToml(path, &cfg); err != nil {
		return BotConfig{}, err
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:3010"
	}
	if cfg.Count == 0 {
		cfg.Count = 1
	}
	if cfg.Interval == "" {
		cfg.Interval = "1s"
	}
	if cfg.Route == "" {
		cfg.Route = "connector.entryHandler.hello"
	}
	if err := ValidateBotConfig(cfg); err != nil {
		return BotConfig{}, err
	}
	return cfg, nil
}

// loadToml decodes strictly; unknown keys are errors.
func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateServerConfig(cfg ServerConfig) error {
	if err := validateAddr("addr", cfg.Addr); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.AdminAddr) != "" {
		if err := validateAddr("admin_addr", cfg.AdminAddr); err != nil {
			return err
		}
	}
	if strings.TrimSpace(cfg.ServerID) == "" {
		return fmt.Errorf("server config missing server_id")
	}
	interval, err := optionalDuration("heartbeat_interval", cfg.HeartbeatInterval)
	if err != nil {
		return err
	}
	timeout, err := optionalDuration("heartbeat_timeout", cfg.HeartbeatTimeout)
	if err != nil {
		return err
	}
	if interval > 0 && interval < time.Second {
		return fmt.Errorf("heartbeat_interval must be at least 1s, got %s", interval)
	}
	if interval > 0 && timeout > 0 && timeout <= interval {
		return fmt.Errorf("heartbeat_timeout (%s) must exceed heartbeat_interval (%s)", timeout, interval)
	}
	if _, err := optionalDuration("read_timeout", cfg.ReadTimeout); err != nil {
		return err
	}
	if _, err := optionalDuration("write_timeout", cfg.WriteTimeout); err != nil {
		return err
	}
	if cfg.ReadBufferSize < 0 {
		return fmt.Errorf("read_buffer_size must not be negative")
	}
	if cfg.MaxPacketSize < 0 || cfg.MaxPacketSize > maxBodyLen {
		return fmt.Errorf("max_packet_size must be within 0..%d", maxBodyLen)
	}
	return nil
}

func ValidateBotConfig(cfg BotConfig) error {
	if err := validateAddr("addr", cfg.Addr); err != nil {
		return err
	}
	if cfg.Count < 1 {
		return fmt.Errorf("bot config count must be positive")
	}
	interval, err := optionalDuration("interval", cfg.Interval)
	if err != nil {
		return err
	}
	if interval <= 0 {
		return fmt.Errorf("bot config interval must be positive")
	}
	if strings.TrimSpace(cfg.Route) == "" {
		return fmt.Errorf("bot config missing route")
	}
	if len(cfg.Route) > 255 {
		return fmt.Errorf("bot config route longer than 255 bytes")
	}
	if cfg.MaxConnectAttempts < 0 {
		return fmt.Errorf("max_connect_attempts must not be negative")
	}
	return nil
}

func validateAddr(key, addr string) error {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return fmt.Errorf("config missing %s", key)
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, addr, err)
	}
	return nil
}

// ParseDuration accepts Go duration strings; empty means unset.
func ParseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return time.ParseDuration(raw)
}

func optionalDuration(key, raw string) (time.Duration, error) {
	d, err := ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}
	return d, nil
}
