/*
Copyright © 2026 Duonode <duonode@posteo.net>
*/

package main

import (
	"os"

	"github.com/rs/zerolog"
)

const logDate string = `2006-01-02T15:04:05.000-07:00`

func (c *Config) initLogger() {
	level := zerolog.WarnLevel
	if c.verbose {
		level = zerolog.InfoLevel
	}

	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: logDate,
	}

	c.logger = zerolog.New(output).With().Timestamp().Logger().Level(level)
}

func logf(cfg *Config, format string, args ...any) {
	cfg.logger.Info().Msgf(format, args...)
}

func errf(cfg *Config, format string, args ...any) {
	cfg.logger.Error().Msgf(format, args...)
}
