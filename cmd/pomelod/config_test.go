package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/pomelogate/internal/config"
	"github.com/danmuck/pomelogate/internal/gateway"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadServiceConfigDefaultsAndOverrides(t *testing.T) {
	path := writeConfig(t, `
addr = "127.0.0.1:4010"
server_id = "connector-server-2"
heartbeat_interval = "5s"
heartbeat_timeout = "15s"
max_packet_size = 4096
cors_origins = ["http://example.test"]
admin_token = " s3cret "
`)
	cfg, err := loadServiceConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:4010" || cfg.ServerID != "connector-server-2" {
		t.Fatalf("unexpected addr/id: %q %q", cfg.ListenAddr, cfg.ServerID)
	}
	if cfg.Session.HeartbeatInterval != 5*time.Second || cfg.Session.HeartbeatTimeout != 15*time.Second {
		t.Fatalf("unexpected heartbeat: %v/%v", cfg.Session.HeartbeatInterval, cfg.Session.HeartbeatTimeout)
	}
	if cfg.Session.MaxPacketSize != 4096 {
		t.Fatalf("unexpected max packet size: %d", cfg.Session.MaxPacketSize)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "http://example.test" {
		t.Fatalf("unexpected cors origins: %v", cfg.CORSOrigins)
	}

	if cfg.AdminToken != "s3cret" {
		t.Fatalf("unexpected admin token: %q", cfg.AdminToken)
	}

	def := gateway.DefaultServiceConfig()
	if cfg.AdminListenAddr != def.AdminListenAddr || cfg.ReadTimeout != def.ReadTimeout {
		t.Fatalf("undefined keys must keep defaults: admin=%q read=%v", cfg.AdminListenAddr, cfg.ReadTimeout)
	}
	if cfg.Session.ReadBufferSize != def.Session.ReadBufferSize {
		t.Fatalf("read buffer default lost: %d", cfg.Session.ReadBufferSize)
	}
}

func TestLoadServiceConfigEmptyAdminDisables(t *testing.T) {
	cfg, err := loadServiceConfig(writeConfig(t, `admin_addr = ""`))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.AdminListenAddr != "" {
		t.Fatalf("admin listener should be disabled, got %q", cfg.AdminListenAddr)
	}
}

func TestLoadServiceConfigErrors(t *testing.T) {
	cases := map[string]string{
		"bad duration": `heartbeat_interval = "soon"`,
		"unknown key":  `heartbeat = 10`,
		"timeout":      "heartbeat_interval = \"10s\"\nheartbeat_timeout = \"5s\"\n",
	}
	for name, content := range cases {
		if _, err := loadServiceConfig(writeConfig(t, content)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := loadServiceConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil ||
		!strings.Contains(err.Error(), "load pomelod config") {
		t.Fatalf("expected missing file error, got %v", err)
	}
}

func TestServerTemplateLoads(t *testing.T) {
	tmpl, err := config.Template("server")
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	cfg, err := loadServiceConfig(writeConfig(t, tmpl))
	if err != nil {
		t.Fatalf("load template: %v", err)
	}
	if cfg.ListenAddr != ":3010" || cfg.Session.HeartbeatInterval != 10*time.Second {
		t.Fatalf("unexpected template config: %+v", cfg)
	}
}
