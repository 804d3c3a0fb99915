package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "server", "pomelod":
		return serverTemplate, nil
	case "bot", "pomelobot":
		return botTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const serverTemplate = `addr = ":3010"
admin_addr = "127.0.0.1:3011"
server_id = "connector-server-1"
heartbeat_interval = "10s"
heartbeat_timeout = "20s"
read_timeout = "60s"
write_timeout = "10s"
read_buffer_size = 65536
max_packet_size = 16777215
cors_origins = ["http://localhost:3000"]
admin_token = ""
`

const botTemplate = `addr = "127.0.0.1:3010"
count = 1
interval = "1s"
route = "connector.entryHandler.hello"
max_connect_attempts = 10
`
