package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | prod
		Env string `yaml:"app_env"`
	} `yaml:"app"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	API struct {
		BaseURL string `yaml:"base_url"`
		// Timeout fijo por request (string estilo "30s").
		Timeout string `yaml:"timeout"`
	} `yaml:"api"`

	Retry struct {
		MaxRetries int    `yaml:"max_retries"`
		BaseDelay  string `yaml:"base_delay"`
		MaxDelay   string `yaml:"max_delay"`
		MaxJitter  string `yaml:"max_jitter"`
	} `yaml:"retry"`

	// Opcionales: apagados por default.
	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`

	Breaker struct {
		Enabled          bool   `yaml:"enabled"`
		FailureThreshold uint32 `yaml:"failure_threshold"`
		OpenTimeout      string `yaml:"open_timeout"`
	} `yaml:"breaker"`

	Cache struct {
		// Duración de validez de las entradas de las vistas.
		Duration string `yaml:"duration"`
	} `yaml:"cache"`

	Session struct {
		Store string `yaml:"store"` // memory | file | redis
		Path  string `yaml:"path"`  // file store
		// Si está seteada (base64 32 bytes) el file store cifra el token.
		EncryptionKey string `yaml:"encryption_key"`
		Redis         struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"session"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"metrics"`
}

const (
	DefaultBaseURL = "https://api-partnerportal.usapayments.com/api/v1"
	DefaultTimeout = 30 * time.Second
)

// Default devuelve una config con los defaults aplicados, sin archivo.
func Default() *Config {
	var c Config
	c.applyDefaults()
	return &c
}

// Load lee el YAML (si path no es vacío), aplica defaults, overrides por env y valida.
// Un path inexistente no es error: la CLI funciona sólo con env/flags.
func Load(path string) (*Config, error) {
	var c Config
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &c); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
			// sin archivo => sólo env + defaults
		default:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	c.applyEnvOverrides()
	c.applyDefaults()

	// ruta relativa del session file => relativa al YAML
	if p := strings.TrimSpace(c.Session.Path); p != "" && path != "" && !filepath.IsAbs(p) {
		c.Session.Path = filepath.Clean(filepath.Join(filepath.Dir(path), p))
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Log.Level == "" {
		c.Log.Level = "warn"
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultBaseURL
	}
	if c.API.Timeout == "" {
		c.API.Timeout = DefaultTimeout.String()
	}
	if c.Retry.MaxRetries == 0 {
		c.Retry.MaxRetries = 3
	}
	if c.Retry.BaseDelay == "" {
		c.Retry.BaseDelay = "1s"
	}
	if c.Retry.MaxDelay == "" {
		c.Retry.MaxDelay = "10s"
	}
	if c.Retry.MaxJitter == "" {
		c.Retry.MaxJitter = "1s"
	}
	if c.Breaker.FailureThreshold == 0 {
		c.Breaker.FailureThreshold = 5
	}
	if c.Breaker.OpenTimeout == "" {
		c.Breaker.OpenTimeout = "30s"
	}
	if c.Cache.Duration == "" {
		c.Cache.Duration = "5m"
	}
	if c.Session.Store == "" {
		c.Session.Store = "file"
	}
	if c.Session.Store == "file" && c.Session.Path == "" {
		c.Session.Path = defaultSessionPath()
	}
	if c.Session.Redis.Prefix == "" {
		c.Session.Redis.Prefix = "portal:session:"
	}
}

func defaultSessionPath() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return filepath.Join(dir, "partnerportal", "session.json")
	}
	return filepath.Join(".", ".partnerportal-session.json")
}

// Validate chequea URLs, duraciones y valores enumerados.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: api.base_url inválida: %q", c.API.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("config: api.base_url debe ser http o https")
	}
	for name, v := range map[string]string{
		"api.timeout":          c.API.Timeout,
		"retry.base_delay":     c.Retry.BaseDelay,
		"retry.max_delay":      c.Retry.MaxDelay,
		"retry.max_jitter":     c.Retry.MaxJitter,
		"breaker.open_timeout": c.Breaker.OpenTimeout,
		"cache.duration":       c.Cache.Duration,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("config: %s: %w", name, err)
		}
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("config: retry.max_retries no puede ser negativo")
	}
	if c.RateLimit.RPS < 0 {
		return fmt.Errorf("config: rate_limit.rps no puede ser negativo")
	}
	switch c.Session.Store {
	case "memory", "file":
	case "redis":
		if strings.TrimSpace(c.Session.Redis.Addr) == "" {
			return fmt.Errorf("config: session.redis.addr requerido con store=redis")
		}
	default:
		return fmt.Errorf("config: session.store desconocido: %q (memory|file|redis)", c.Session.Store)
	}
	return nil
}

// Helpers de duración: Validate ya garantizó que parsean.

func (c *Config) Timeout() time.Duration { return mustDur(c.API.Timeout) }
func (c *Config) BaseDelay() time.Duration { return mustDur(c.Retry.BaseDelay) }
func (c *Config) MaxDelay() time.Duration { return mustDur(c.Retry.MaxDelay) }
func (c *Config) MaxJitter() time.Duration { return mustDur(c.Retry.MaxJitter) }
func (c *Config) BreakerTimeout() time.Duration { return mustDur(c.Breaker.OpenTimeout) }
func (c *Config) CacheDuration() time.Duration { return mustDur(c.Cache.Duration) }

func mustDur(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvFloat(key string) (float64, bool) {
	if s, ok := getEnvStr(key); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}

// applyEnvOverrides: pisa el YAML con variables de entorno.
func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = v
	}

	// API
	if v, ok := getEnvStr("PORTAL_API_URL"); ok {
		c.API.BaseURL = strings.TrimRight(v, "/")
	}
	if v, ok := getEnvStr("PORTAL_TIMEOUT"); ok {
		c.API.Timeout = v
	}

	// RETRY
	if v, ok := getEnvInt("PORTAL_MAX_RETRIES"); ok {
		c.Retry.MaxRetries = v
	}
	if v, ok := getEnvStr("PORTAL_RETRY_BASE_DELAY"); ok {
		c.Retry.BaseDelay = v
	}
	if v, ok := getEnvStr("PORTAL_RETRY_MAX_DELAY"); ok {
		c.Retry.MaxDelay = v
	}
	if v, ok := getEnvStr("PORTAL_RETRY_MAX_JITTER"); ok {
		c.Retry.MaxJitter = v
	}

	// RATE / BREAKER
	if v, ok := getEnvFloat("PORTAL_RATE_LIMIT_RPS"); ok {
		c.RateLimit.RPS = v
	}
	if v, ok := getEnvInt("PORTAL_RATE_LIMIT_BURST"); ok {
		c.RateLimit.Burst = v
	}
	if v, ok := getEnvBool("PORTAL_BREAKER_ENABLED"); ok {
		c.Breaker.Enabled = v
	}

	// CACHE
	if v, ok := getEnvStr("PORTAL_CACHE_DURATION"); ok {
		c.Cache.Duration = v
	}

	// SESSION
	if v, ok := getEnvStr("PORTAL_SESSION_STORE"); ok {
		c.Session.Store = strings.ToLower(v)
	}
	if v, ok := getEnvStr("PORTAL_SESSION_PATH"); ok {
		c.Session.Path = v
	}
	if v, ok := getEnvStr("PORTAL_SESSION_KEY"); ok {
		c.Session.EncryptionKey = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Session.Redis.Addr = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Session.Redis.Password = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Session.Redis.DB = v
	}
	if v, ok := getEnvStr("REDIS_PREFIX"); ok {
		c.Session.Redis.Prefix = v
	}

	if v, ok := getEnvBool("PORTAL_METRICS"); ok {
		c.Metrics.Enabled = v
	}
}
