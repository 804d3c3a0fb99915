package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/danmuck/pomelogate/internal/connector"
	"github.com/danmuck/pomelogate/internal/gateway"
	"github.com/danmuck/pomelogate/internal/observability"
	"github.com/danmuck/pomelogate/internal/route"
)

func main() {
	configPath := flag.String("config", "", "path to pomelod config.toml")
	flag.Parse()

	logger := observability.InitLogger("pomelod")
	observability.RegisterMetrics()

	cfg := gateway.DefaultServiceConfig()
	if *configPath != "" {
		loaded, err := loadServiceConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "pomelod: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	routes := route.NewRegistry()
	if err := connector.Register(routes); err != nil {
		fmt.Fprintf(os.Stderr, "pomelod: %v\n", err)
		os.Exit(1)
	}
	logger.Info().
		Str("server_id", cfg.ServerID).
		Strs("routes", routes.Routes()).
		Dur("heartbeat_interval", cfg.Session.HeartbeatInterval).
		Dur("heartbeat_timeout", cfg.Session.HeartbeatTimeout).
		Msg("pomelod starting")

	svc := gateway.NewServiceWithConfig(cfg, routes)
	if err := svc.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "pomelod: %v\n", err)
		os.Exit(1)
	}
}
