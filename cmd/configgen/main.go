package main

import (
	"flag"
	"fmt"

	"github.com/danmuck/pomelogate/internal/config"
	"github.com/danmuck/pomelogate/internal/observability"
)

func main() {
	kind := flag.String("kind", "server", "config kind: server|bot")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "", "config path for validation (defaults to per-kind cmd path)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	logger := observability.InitLogger("configgen")

	path, err := defaultPath(*kind)
	if err != nil {
		logger.Fatal().Err(err).Msg("configgen")
	}
	if *validate {
		if *input != "" {
			path = *input
		}
		if err := validateFile(*kind, path); err != nil {
			logger.Fatal().Err(err).Str("path", path).Msg("config invalid")
		}
		logger.Info().Str("kind", *kind).Str("path", path).Msg("config validated")
		return
	}

	if *output != "" {
		path = *output
	}
	if err := config.WriteTemplate(path, *kind, *force); err != nil {
		logger.Fatal().Err(err).Str("path", path).Msg("template write failed")
	}
	logger.Info().Str("kind", *kind).Str("path", path).Msg("config template written")
}

func validateFile(kind, path string) error {
	switch kind {
	case "server", "pomelod":
		_, err := config.LoadServerConfig(path)
		return err
	case "bot", "pomelobot":
		_, err := config.LoadBotConfig(path)
		return err
	}
	return fmt.Errorf("unknown kind: %s", kind)
}

func defaultPath(kind string) (string, error) {
	switch kind {
	case "server", "pomelod":
		return "cmd/pomelod/config.toml", nil
	case "bot", "pomelobot":
		return "cmd/pomelobot/config.toml", nil
	}
	return "", fmt.Errorf("unknown kind: %s", kind)
}
