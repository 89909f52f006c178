package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// WithEnv reads every tagged ServerConfig field from the environment.
// Variables that are unset fall back to their env-default tag.
func WithEnv() Option {
	return func(c *ServerConfig) error {
		if err := cleanenv.ReadEnv(c); err != nil {
			return fmt.Errorf("failed to read environment: %w", err)
		}
		return nil
	}
}

// WithDotEnv loads KEY=value pairs from files into the process environment
// without overriding variables that are already set. Missing files are
// skipped; with no arguments ".env" is tried.
func WithDotEnv(files ...string) Option {
	return func(c *ServerConfig) error {
		if len(files) == 0 {
			files = []string{".env"}
		}
		for _, file := range files {
			if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to load %s: %w", file, err)
			}
		}
		return nil
	}
}

// Usage returns a description of every environment variable ServerConfig reads
func Usage() string {
	var cfg ServerConfig
	usage, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return ""
	}
	return usage
}
