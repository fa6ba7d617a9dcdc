// Copyright (C) 2025 harvest contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads harvestd's top-level YAML configuration:
// server, session manager, orchestrator, LLM provider, and cache
// storage settings.
//
// A plain struct with yaml tags, a Load function that unmarshals then
// applies defaults and validates, and gopkg.in/yaml.v3 as the decoder.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oscaromsn/harvest/internal/llmclient"
	"github.com/oscaromsn/harvest/internal/session"
)

// Config is harvestd's full process configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Session  SessionConfig  `yaml:"session"`
	Resolver ResolverConfig `yaml:"resolver"`
	LLM      LLMConfig      `yaml:"llm"`
	Cache    CacheConfig    `yaml:"cache"`
}

// ServerConfig configures the Resource Surface's HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// SessionConfig configures the Session Manager.
type SessionConfig struct {
	MaxConcurrentSessions int           `yaml:"max_concurrent_sessions"`
	IdleTimeout           time.Duration `yaml:"idle_timeout"`
	IdleSweepInterval     time.Duration `yaml:"idle_sweep_interval"`
}

// ResolverConfig configures the Workflow Orchestrator's bounded loop.
type ResolverConfig struct {
	IterationCap int           `yaml:"iteration_cap"`
	StepTimeout  time.Duration `yaml:"step_timeout"`
}

// LLMConfig configures the optional LLM Collaborator.
type LLMConfig struct {
	Provider string `yaml:"provider"` // "", "anthropic", or "openai"
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
}

// CacheConfig configures the Completed-Session Cache's storage root.
type CacheConfig struct {
	Dir string `yaml:"dir"`
}

// Default returns the built-in defaults every field falls back to when
// the loaded YAML (or environment) leaves it unset.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8088",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Session: SessionConfig{
			MaxConcurrentSessions: 16,
			IdleTimeout:           30 * time.Minute,
			IdleSweepInterval:     time.Minute,
		},
		Resolver: ResolverConfig{
			IterationCap: 20,
			StepTimeout:  10 * time.Second,
		},
		Cache: CacheConfig{Dir: "./harvest-data"},
	}
}

// Load reads and validates a YAML config file at path, applying
// Default()'s values for anything left zero. An empty path returns
// Default() with only the environment API-key overrides applied,
// tolerating an absent override file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return applyEnvOverrides(cfg), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	cfg = applyDefaults(cfg)
	cfg = applyEnvOverrides(cfg)

	if err := validate(cfg); err != nil {
		return Config{}, fmt.Errorf("config: validating %s: %w", path, err)
	}
	return cfg, nil
}

// applyEnvOverrides lets API keys come from the environment rather
// than sitting in a checked-in YAML file.
func applyEnvOverrides(cfg Config) Config {
	if cfg.LLM.APIKey == "" {
		if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
			cfg.LLM.APIKey = v
			if cfg.LLM.Provider == "" {
				cfg.LLM.Provider = "anthropic"
			}
		} else if v := os.Getenv("OPENAI_API_KEY"); v != "" {
			cfg.LLM.APIKey = v
			if cfg.LLM.Provider == "" {
				cfg.LLM.Provider = "openai"
			}
		}
	}
	return cfg
}

func applyDefaults(cfg Config) Config {
	d := Default()
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = d.Server.Addr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = d.Server.ReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = d.Server.WriteTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = d.Server.ShutdownTimeout
	}
	if cfg.Session.MaxConcurrentSessions == 0 {
		cfg.Session.MaxConcurrentSessions = d.Session.MaxConcurrentSessions
	}
	if cfg.Session.IdleTimeout == 0 {
		cfg.Session.IdleTimeout = d.Session.IdleTimeout
	}
	if cfg.Session.IdleSweepInterval == 0 {
		cfg.Session.IdleSweepInterval = d.Session.IdleSweepInterval
	}
	if cfg.Resolver.IterationCap == 0 {
		cfg.Resolver.IterationCap = d.Resolver.IterationCap
	}
	if cfg.Resolver.StepTimeout == 0 {
		cfg.Resolver.StepTimeout = d.Resolver.StepTimeout
	}
	if cfg.Cache.Dir == "" {
		cfg.Cache.Dir = d.Cache.Dir
	}
	return cfg
}

func validate(cfg Config) error {
	if cfg.Session.MaxConcurrentSessions <= 0 {
		return fmt.Errorf("session.max_concurrent_sessions must be positive, got %d", cfg.Session.MaxConcurrentSessions)
	}
	if cfg.Resolver.IterationCap <= 0 {
		return fmt.Errorf("resolver.iteration_cap must be positive, got %d", cfg.Resolver.IterationCap)
	}
	if cfg.LLM.Provider != "" && cfg.LLM.Provider != "anthropic" && cfg.LLM.Provider != "openai" {
		return fmt.Errorf("llm.provider must be \"\", \"anthropic\", or \"openai\", got %q", cfg.LLM.Provider)
	}
	return nil
}

// SessionOptions adapts the loaded config into session.Options.
func (c Config) SessionOptions() session.Options {
	return session.Options{
		MaxConcurrentSessions: c.Session.MaxConcurrentSessions,
		IdleTimeout:           c.Session.IdleTimeout,
		IdleSweepInterval:     c.Session.IdleSweepInterval,
	}
}

// LLMClientConfig adapts the loaded config into llmclient.Config.
func (c Config) LLMClientConfig() llmclient.Config {
	return llmclient.Config{
		Provider: c.LLM.Provider,
		APIKey:   c.LLM.APIKey,
		Model:    c.LLM.Model,
	}
}
