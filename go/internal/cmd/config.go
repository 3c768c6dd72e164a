package main

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mcdev12/taprounds/go/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// loadConfig reads .env (if present), then CONFIG_FILE (if set), then the environment.
func loadConfig() (config.Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}
	return config.Load(os.Getenv("CONFIG_FILE"))
}

func setupLogger(cfg config.Config) {
	if cfg.IsDevelopment() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
