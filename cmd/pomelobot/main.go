package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/danmuck/pomelogate/internal/client"
	"github.com/danmuck/pomelogate/internal/config"
	"github.com/danmuck/pomelogate/internal/observability"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type stats struct {
	total   atomic.Int64
	success atomic.Int64
	failed  atomic.Int64
}

func main() {
	configPath := flag.String("config", "", "path to pomelobot config.toml")
	count := flag.Int("count", 0, "robot count (overrides config and COUNT)")
	addr := flag.String("addr", "", "server address (overrides config and SERVER_HOST/SERVER_PORT)")
	flag.Parse()

	logger := observability.InitLogger("pomelobot")

	cfg := config.BotConfig{
		Addr:               "127.0.0.1:3010",
		Count:              1,
		Interval:           "1s",
		Route:              "connector.entryHandler.hello",
		MaxConnectAttempts: 10,
	}
	if *configPath != "" {
		loaded, err := config.LoadBotConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "pomelobot: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	applyEnv(&cfg)
	if *count > 0 {
		cfg.Count = *count
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if err := config.ValidateBotConfig(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "pomelobot: %v\n", err)
		os.Exit(1)
	}
	interval, _ := config.ParseDuration(cfg.Interval)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info().Int("count", cfg.Count).Str("addr", cfg.Addr).Msg("starting robots")
	var st stats
	var wg sync.WaitGroup
	for i := 1; i <= cfg.Count; i++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			runRobot(ctx, logger, cfg, interval, index, &st)
		}(i)
	}
	wg.Wait()

	logger.Info().
		Int64("total", st.total.Load()).
		Int64("success", st.success.Load()).
		Int64("failed", st.failed.Load()).
		Msg("robot stats")
}

// applyEnv honours COUNT, SERVER_HOST and SERVER_PORT.
func applyEnv(cfg *config.BotConfig) {
	if v, err := strconv.Atoi(os.Getenv("COUNT")); err == nil && v > 0 {
		cfg.Count = v
	}
	host, port, err := net.SplitHostPort(cfg.Addr)
	if err != nil {
		return
	}
	if v := os.Getenv("SERVER_HOST"); v != "" {
		host = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		port = v
	}
	cfg.Addr = net.JoinHostPort(host, port)
}

func runRobot(ctx context.Context, logger zerolog.Logger, cfg config.BotConfig, interval time.Duration, index int, st *stats) {
	userID := uuid.NewString()
	log := logger.With().Int("robot", index).Str("user_id", userID).Logger()

	ccfg := client.DefaultConfig()
	ccfg.Address = cfg.Addr
	ccfg.ClientType = "pomelobot"
	ccfg.MaxConnectAttempts = cfg.MaxConnectAttempts
	ccfg.User = map[string]any{"uid": userID}
	cli, err := client.New(ccfg)
	if err != nil {
		log.Error().Err(err).Msg("robot config")
		return
	}
	cli.OnPush(func(route string, body map[string]any) {
		log.Info().Str("route", route).Interface("body", body).Msg("push")
	})
	if err := cli.Connect(ctx); err != nil {
		log.Error().Err(err).Msg("robot failed to connect")
		return
	}
	defer cli.Close()
	log.Info().Msg("robot connected")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for seq := 1; ; seq++ {
		select {
		case <-ctx.Done():
			return
		case <-cli.Done():
			log.Warn().Err(cli.Err()).Msg("robot disconnected")
			return
		case <-ticker.C:
		}
		msg := map[string]any{"data": fmt.Sprintf("world%d", seq)}
		st.total.Add(1)
		res, err := cli.Request(ctx, cfg.Route, msg)
		if err != nil {
			st.failed.Add(1)
			log.Warn().Err(err).Msg("request failed")
			continue
		}
		st.success.Add(1)
		log.Debug().Interface("sent", msg).Interface("received", res).Msg("request ok")
	}
}
