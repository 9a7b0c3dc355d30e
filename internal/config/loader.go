package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DISPATCHD_"

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and are replaced by WithDefaults.
type Config struct {
	Addr string `json:"addr" yaml:"addr" toml:"addr"`

	// Backend pool and port range.
	Host           string `json:"host" yaml:"host" toml:"host"`
	BasePort       int    `json:"base_port" yaml:"base_port" toml:"base_port"`
	PoolSize       int    `json:"pool_size" yaml:"pool_size" toml:"pool_size"`
	MaxPorts       int    `json:"max_ports" yaml:"max_ports" toml:"max_ports"`
	MaxRetries     int    `json:"max_retries" yaml:"max_retries" toml:"max_retries"`
	CallTimeoutSec int    `json:"call_timeout_sec" yaml:"call_timeout_sec" toml:"call_timeout_sec"`

	RetryIntervalMS int `json:"retry_interval_ms" yaml:"retry_interval_ms" toml:"retry_interval_ms"`
	GracePeriodMS   int `json:"grace_period_ms" yaml:"grace_period_ms" toml:"grace_period_ms"`
	RetryDelayMS    int `json:"retry_delay_ms" yaml:"retry_delay_ms" toml:"retry_delay_ms"`
	DialTimeoutMS   int `json:"dial_timeout_ms" yaml:"dial_timeout_ms" toml:"dial_timeout_ms"`

	// Generation.
	Model             string   `json:"model" yaml:"model" toml:"model"`
	RaceFastModel     string   `json:"race_fast_model" yaml:"race_fast_model" toml:"race_fast_model"`
	RaceStandardModel string   `json:"race_standard_model" yaml:"race_standard_model" toml:"race_standard_model"`
	// Temperature and TopP stay nil when unset so 0 (greedy) is expressible.
	Temperature       *float64 `json:"temperature" yaml:"temperature" toml:"temperature"`
	TopP              *float64 `json:"top_p" yaml:"top_p" toml:"top_p"`
	NumPredict        int      `json:"num_predict" yaml:"num_predict" toml:"num_predict"`

	// Backend processes launched by the port resolver.
	BackendBin  string   `json:"backend_bin" yaml:"backend_bin" toml:"backend_bin"`
	BackendArgs []string `json:"backend_args" yaml:"backend_args" toml:"backend_args"`
	Spawn       bool     `json:"spawn" yaml:"spawn" toml:"spawn"`

	// HTTP surface.
	MaxBodyBytes int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	CORSEnabled  bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSOrigins  []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
	RateLimitRPS float64  `json:"rate_limit_rps" yaml:"rate_limit_rps" toml:"rate_limit_rps"`
	RateBurst    int      `json:"rate_burst" yaml:"rate_burst" toml:"rate_burst"`

	LogLevel  string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat string `json:"log_format" yaml:"log_format" toml:"log_format"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

// WithDefaults returns a copy of c with unset fields filled in.
func (c Config) WithDefaults() Config {
	setStr := func(p *string, v string) {
		if strings.TrimSpace(*p) == "" {
			*p = v
		}
	}
	setInt := func(p *int, v int) {
		if *p <= 0 {
			*p = v
		}
	}
	setStr(&c.Addr, ":8080")
	setStr(&c.Host, "127.0.0.1")
	setInt(&c.BasePort, 11434)
	setInt(&c.PoolSize, 3)
	setInt(&c.MaxPorts, 5)
	setInt(&c.MaxRetries, 3)
	setInt(&c.CallTimeoutSec, 60)
	setInt(&c.RetryIntervalMS, 500)
	setInt(&c.GracePeriodMS, 2000)
	setInt(&c.RetryDelayMS, 1000)
	setInt(&c.DialTimeoutMS, 1000)
	setStr(&c.Model, "llama3.2:3b")
	setStr(&c.BackendBin, "ollama")
	if len(c.BackendArgs) == 0 {
		c.BackendArgs = []string{"serve"}
	}
	if c.Temperature == nil {
		v := 0.7
		c.Temperature = &v
	}
	if c.TopP == nil {
		v := 0.9
		c.TopP = &v
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 1 << 20
	}
	if c.RateLimitRPS > 0 && c.RateBurst <= 0 {
		c.RateBurst = int(c.RateLimitRPS) + 1
	}
	setStr(&c.LogLevel, "info")
	setStr(&c.LogFormat, "console")
	return c
}

// ApplyEnv overlays DISPATCHD_* environment variables onto c. Unparseable
// values are reported, naming the variable.
func (c *Config) ApplyEnv() error {
	var errs []string
	str := func(key string, p *string) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*p = strings.TrimSpace(v)
		}
	}
	num := func(key string, p *int) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, EnvPrefix+key)
				return
			}
			*p = n
		}
	}
	flt := func(key string, p *float64) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, EnvPrefix+key)
				return
			}
			*p = f
		}
	}
	optFlt := func(key string, p **float64) {
		var f float64
		if _, ok := os.LookupEnv(EnvPrefix + key); !ok {
			return
		}
		before := len(errs)
		flt(key, &f)
		if len(errs) == before {
			*p = &f
		}
	}
	boolean := func(key string, p *bool) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, EnvPrefix+key)
				return
			}
			*p = b
		}
	}
	list := func(key string, p *[]string) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*p = SplitCSV(v)
		}
	}

	str("ADDR", &c.Addr)
	str("HOST", &c.Host)
	num("BASE_PORT", &c.BasePort)
	num("POOL_SIZE", &c.PoolSize)
	num("MAX_PORTS", &c.MaxPorts)
	num("MAX_RETRIES", &c.MaxRetries)
	num("CALL_TIMEOUT_SEC", &c.CallTimeoutSec)
	num("RETRY_INTERVAL_MS", &c.RetryIntervalMS)
	num("GRACE_PERIOD_MS", &c.GracePeriodMS)
	num("RETRY_DELAY_MS", &c.RetryDelayMS)
	num("DIAL_TIMEOUT_MS", &c.DialTimeoutMS)
	str("MODEL", &c.Model)
	str("RACE_FAST_MODEL", &c.RaceFastModel)
	str("RACE_STANDARD_MODEL", &c.RaceStandardModel)
	optFlt("TEMPERATURE", &c.Temperature)
	optFlt("TOP_P", &c.TopP)
	num("NUM_PREDICT", &c.NumPredict)
	str("BACKEND_BIN", &c.BackendBin)
	list("BACKEND_ARGS", &c.BackendArgs)
	boolean("SPAWN", &c.Spawn)
	boolean("CORS_ENABLED", &c.CORSEnabled)
	list("CORS_ORIGINS", &c.CORSOrigins)
	flt("RATE_LIMIT_RPS", &c.RateLimitRPS)
	num("RATE_BURST", &c.RateBurst)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment values: %s", strings.Join(errs, ", "))
	}
	return nil
}

// Validate rejects configurations the core cannot run with.
func (c Config) Validate() error {
	if c.BasePort <= 0 || c.BasePort > 65535 {
		return fmt.Errorf("base_port %d out of range", c.BasePort)
	}
	if last := c.BasePort + c.MaxPorts - 1; last > 65535 {
		return fmt.Errorf("port range [%d,%d] exceeds 65535", c.BasePort, last)
	}
	if c.Temperature != nil && *c.Temperature < 0 {
		return fmt.Errorf("temperature %v must be >= 0", *c.Temperature)
	}
	if c.TopP != nil && (*c.TopP < 0 || *c.TopP > 1) {
		return fmt.Errorf("top_p %v outside [0,1]", *c.TopP)
	}
	if c.PoolSize > c.MaxPorts {
		return fmt.Errorf("pool_size %d exceeds max_ports %d", c.PoolSize, c.MaxPorts)
	}
	return nil
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// RetryInterval is the pooled-dispatch acquire retry pause.
func (c Config) RetryInterval() time.Duration { return ms(c.RetryIntervalMS) }

// GracePeriod is how long a launched backend gets before its port is re-checked.
func (c Config) GracePeriod() time.Duration { return ms(c.GracePeriodMS) }

// RetryDelay is the fixed pause between port resolution attempts.
func (c Config) RetryDelay() time.Duration { return ms(c.RetryDelayMS) }

// DialTimeout bounds one TCP availability check.
func (c Config) DialTimeout() time.Duration { return ms(c.DialTimeoutMS) }

// CallTimeout bounds one backend generate call.
func (c Config) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutSec) * time.Second
}

// SplitCSV splits a comma-separated list, trimming blanks and dropping empty items.
func SplitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
