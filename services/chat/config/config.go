// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the chat service configuration from environment
// variables, with an optional .env file for local development.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the deploy-time configuration for the chat service.
type Config struct {
	// Port the HTTP server listens on.
	Port string `env:"PORT" envDefault:"8000"`

	// DataDir is the directory for the embedded database.
	DataDir string `env:"DATA_DIR" envDefault:"./data"`

	// SecretKey signs access tokens. Required.
	SecretKey string `env:"SECRET_KEY"`

	// AccessTokenTTL is the lifetime of issued access tokens.
	AccessTokenTTL time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"30m"`

	// CORSOrigins lists the browser origins allowed to call the API,
	// comma separated. Defaults cover the local frontend dev servers.
	CORSOrigins []string `env:"CORS_ORIGINS" envDefault:"http://localhost:5173,http://localhost:3000"`

	// OpenAIAPIKey enables the openai provider when set.
	OpenAIAPIKey string `env:"OPENAI_API_KEY"`

	// OpenAIModel is the default model for openai requests.
	OpenAIModel string `env:"OPENAI_MODEL" envDefault:"gpt-3.5-turbo"`

	// OllamaBaseURL is the Ollama server root.
	OllamaBaseURL string `env:"OLLAMA_BASE_URL" envDefault:"http://localhost:11434"`

	// OllamaModel is the default model for ollama requests.
	OllamaModel string `env:"OLLAMA_MODEL" envDefault:"llama2"`

	// OllamaTimeout bounds a whole Ollama streaming request.
	OllamaTimeout time.Duration `env:"OLLAMA_TIMEOUT" envDefault:"5m"`

	// DefaultProvider routes requests that name no provider.
	DefaultProvider string `env:"DEFAULT_AI_PROVIDER" envDefault:"openai"`

	// OTLPEndpoint is the OTLP gRPC collector address. Tracing is
	// disabled when empty.
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Load reads configuration from the environment. A .env file in the
// working directory is loaded first if present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err == nil {
		slog.Info("Loaded configuration from .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.SecretKey == "" {
		return errors.New("SECRET_KEY must be set")
	}
	switch c.DefaultProvider {
	case "openai", "ollama":
	default:
		return fmt.Errorf("DEFAULT_AI_PROVIDER must be openai or ollama, got %q", c.DefaultProvider)
	}
	if c.OpenAIAPIKey == "" {
		slog.Warn("OPENAI_API_KEY is not set; openai requests will fail at stream time")
	}
	return nil
}
