// Package config loads server configuration from an optional YAML file with
// environment-variable overrides. Environment always wins, so a container
// deployment can run without any file at all.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Auth    AuthConfig    `yaml:"auth"`
	Solver  SolverConfig  `yaml:"solver"`
	Limits  LimitsConfig  `yaml:"limits"`
	Backend BackendConfig `yaml:"backend"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type AuthConfig struct {
	Mode      string `yaml:"mode"` // dev|hmac|jwks
	HMACKey   string `yaml:"hmacKey"`
	JWKSURL   string `yaml:"jwksUrl"`
	Issuer    string `yaml:"issuer"`
	Audience  string `yaml:"audience"`
	CacheSecs int    `yaml:"cacheSecs"`
}

type SolverConfig struct {
	Iterations      int     `yaml:"iterations"`
	DestroyFraction float64 `yaml:"destroyFraction"`
	TimeBudgetMs    int     `yaml:"timeBudgetMs"`
}

type LimitsConfig struct {
	SolvePerMinute int `yaml:"solvePerMinute"`
	SolveBurst     int `yaml:"solveBurst"`
}

type BackendConfig struct {
	DatabaseURL string `yaml:"databaseUrl"`
	RedisURL    string `yaml:"redisUrl"`
}

// Default returns the configuration used when no file and no env are present.
func Default() Config {
	return Config{
		Server: ServerConfig{Port: 8080},
		Auth:   AuthConfig{Mode: "dev"},
		Solver: SolverConfig{Iterations: 100, DestroyFraction: 0.1},
		Limits: LimitsConfig{SolvePerMinute: 60, SolveBurst: 10},
	}
}

// Load reads the file at path when it exists, then applies env overrides.
// A missing file is not an error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Server.Port = n
		}
	}
	if v := os.Getenv("AUTH_MODE"); v != "" {
		c.Auth.Mode = v
	}
	if v := os.Getenv("AUTH_HMAC_KEY"); v != "" {
		c.Auth.HMACKey = v
	}
	if v := os.Getenv("AUTH_JWKS_URL"); v != "" {
		c.Auth.JWKSURL = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Backend.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Backend.RedisURL = v
	}
	if v := os.Getenv("SOLVER_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Solver.Iterations = n
		}
	}
	if v := os.Getenv("SOLVE_RATE_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Limits.SolvePerMinute = n
		}
	}
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	switch c.Auth.Mode {
	case "dev", "hmac", "jwks":
	default:
		return fmt.Errorf("unknown auth mode %q", c.Auth.Mode)
	}
	if c.Solver.Iterations <= 0 {
		return fmt.Errorf("solver iterations must be positive")
	}
	if c.Solver.DestroyFraction <= 0 || c.Solver.DestroyFraction >= 1 {
		return fmt.Errorf("destroyFraction must be in (0,1)")
	}
	if c.Limits.SolvePerMinute <= 0 {
		return fmt.Errorf("solvePerMinute must be positive")
	}
	return nil
}
