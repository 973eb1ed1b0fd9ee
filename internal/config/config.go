// Package config loads service and solver settings. Values come from an
// optional YAML file named by WAVEPICK_CONFIG, then environment variables
// override individual fields.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"wavepick/internal/opt"
	"wavepick/internal/wave"
)

type Server struct {
	Port        string  `yaml:"port"`
	DatabaseURL string  `yaml:"databaseURL"`
	Migrate     bool    `yaml:"migrate"`
	RedisURL    string  `yaml:"redisURL"`
	RateRPS     float64 `yaml:"rateRPS"`
	RateBurst   int     `yaml:"rateBurst"`
	// MaxConcurrentSolves caps solves running at once; extra waves stay queued.
	MaxConcurrentSolves int           `yaml:"maxConcurrentSolves"`
	WaitTimeout         time.Duration `yaml:"waitTimeout"`
	MaxBodyBytes        int64         `yaml:"maxBodyBytes"`
	// InstanceLimits bounds submitted instances; it may only tighten
	// wave.DefaultLimits.
	InstanceLimits wave.Limits `yaml:"instanceLimits"`
}

type Auth struct {
	Mode        string `yaml:"mode"` // dev or hmac
	HMACSecret  string `yaml:"hmacSecret"`
	TenantClaim string `yaml:"tenantClaim"`
	RoleClaim   string `yaml:"roleClaim"`
}

type Oracle struct {
	Default string `yaml:"default"` // bnb or cbc
	CBCPath string `yaml:"cbcPath"`
	WorkDir string `yaml:"workDir"`
}

type Webhooks struct {
	MaxAttempts int           `yaml:"maxAttempts"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Config struct {
	Server   Server     `yaml:"server"`
	Auth     Auth       `yaml:"auth"`
	Oracle   Oracle     `yaml:"oracle"`
	Webhooks Webhooks   `yaml:"webhooks"`
	Log      Log        `yaml:"log"`
	Solver   opt.Config `yaml:"solver"`
}

func Default() Config {
	return Config{
		Server: Server{
			Port:                "8080",
			Migrate:             true,
			RateRPS:             2,
			RateBurst:           5,
			MaxConcurrentSolves: 2,
			WaitTimeout:         11 * time.Minute,
			MaxBodyBytes:        64 << 20,
			InstanceLimits:      wave.DefaultLimits,
		},
		Auth:     Auth{Mode: "dev", TenantClaim: "tenant", RoleClaim: "role"},
		Oracle:   Oracle{Default: "bnb", CBCPath: "cbc"},
		Webhooks: Webhooks{MaxAttempts: 10, Timeout: 5 * time.Second, Interval: time.Second},
		Log:      Log{Level: "info", Format: "text"},
		Solver:   opt.DefaultConfig(),
	}
}

// Load reads the file at path (skipped when empty) over the defaults, then
// applies environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromEnv loads the file named by WAVEPICK_CONFIG, if any.
func FromEnv() (Config, error) {
	return Load(os.Getenv("WAVEPICK_CONFIG"))
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	var errs []string
	num := func(key string, set func(string) error) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			if err := set(strings.TrimSpace(v)); err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
			}
		}
	}
	str("PORT", &c.Server.Port)
	str("DATABASE_URL", &c.Server.DatabaseURL)
	str("REDIS_URL", &c.Server.RedisURL)
	num("DB_MIGRATE", func(v string) (err error) { c.Server.Migrate, err = strconv.ParseBool(v); return })
	num("RATE_RPS", func(v string) (err error) { c.Server.RateRPS, err = strconv.ParseFloat(v, 64); return })
	num("RATE_BURST", func(v string) (err error) { c.Server.RateBurst, err = strconv.Atoi(v); return })
	num("MAX_CONCURRENT_SOLVES", func(v string) (err error) { c.Server.MaxConcurrentSolves, err = strconv.Atoi(v); return })

	str("AUTH_MODE", &c.Auth.Mode)
	str("AUTH_HMAC_SECRET", &c.Auth.HMACSecret)
	str("AUTH_TENANT_CLAIM", &c.Auth.TenantClaim)
	str("AUTH_ROLE_CLAIM", &c.Auth.RoleClaim)

	str("ORACLE", &c.Oracle.Default)
	str("CBC_PATH", &c.Oracle.CBCPath)
	str("ORACLE_WORKDIR", &c.Oracle.WorkDir)

	num("WEBHOOK_MAX_ATTEMPTS", func(v string) (err error) { c.Webhooks.MaxAttempts, err = strconv.Atoi(v); return })

	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	str("SOLVER_STRATEGY", &c.Solver.Strategy)
	num("SOLVER_VARIANT", func(v string) error { c.Solver.Variant = opt.Variant(v); return nil })
	num("SOLVER_TIME_LIMIT", func(v string) (err error) { c.Solver.TimeLimit, err = parseSeconds(v); return })
	num("SOLVER_GAP", func(v string) (err error) { c.Solver.Gap, err = strconv.ParseFloat(v, 64); return })
	num("SOLVER_THREADS", func(v string) (err error) { c.Solver.Threads, err = strconv.Atoi(v); return })

	if len(errs) > 0 {
		return fmt.Errorf("config env: %s", strings.Join(errs, "; "))
	}
	return nil
}

// parseSeconds accepts a Go duration ("90s") or a plain number of seconds.
func parseSeconds(v string) (time.Duration, error) {
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("want duration or seconds, got %q", v)
	}
	return time.Duration(f * float64(time.Second)), nil
}

func (c Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	if c.Server.RateRPS <= 0 || c.Server.RateBurst <= 0 {
		return fmt.Errorf("server.rateRPS and server.rateBurst must be > 0")
	}
	if c.Server.MaxConcurrentSolves <= 0 {
		return fmt.Errorf("server.maxConcurrentSolves must be > 0")
	}
	if err := c.Server.InstanceLimits.Validate(); err != nil {
		return fmt.Errorf("server.instanceLimits: %w", err)
	}
	switch c.Auth.Mode {
	case "dev":
	case "hmac":
		if c.Auth.HMACSecret == "" {
			return fmt.Errorf("auth.hmacSecret is required in hmac mode")
		}
	default:
		return fmt.Errorf("unknown auth mode %q", c.Auth.Mode)
	}
	switch c.Oracle.Default {
	case "bnb", "cbc":
	default:
		return fmt.Errorf("unknown oracle %q", c.Oracle.Default)
	}
	if c.Webhooks.MaxAttempts <= 0 {
		return fmt.Errorf("webhooks.maxAttempts must be > 0")
	}
	if err := c.Solver.Validate(); err != nil {
		return fmt.Errorf("solver: %w", err)
	}
	return nil
}
