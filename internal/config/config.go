// Package config holds the codeexec service's configuration: a YAML file,
// overridden by environment variables, overridden by hardcoded defaults for
// anything still zero-valued.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"sync"

	"gopkg.in/yaml.v2"
)

// =============================================================================
// codeexec - Configuration with Environment Overrides
// =============================================================================

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Sandbox  SandboxConfig  `yaml:"sandbox"`
	Reaper   ReaperConfig   `yaml:"reaper"`
	TestBank TestBankConfig `yaml:"test_bank"`
	Redis    RedisConfig    `yaml:"redis"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port            string `yaml:"port"`
	IP              string `yaml:"ip"`
	ReadTimeoutSec  int    `yaml:"read_timeout_sec"`
	WriteTimeoutSec int    `yaml:"write_timeout_sec"`
	IdleTimeoutSec  int    `yaml:"idle_timeout_sec"`
	ShutdownTimeout int    `yaml:"shutdown_timeout_sec"`
	MaxBodyBytes    int64  `yaml:"max_body_bytes"`
}

// SandboxConfig controls the privilege-dropped process runner (component B).
type SandboxConfig struct {
	ScratchRoot              string `yaml:"scratch_root"`                // fast (tmpfs) dir for request code files
	UnprivilegedUID          int    `yaml:"unprivileged_uid"`            // uid the child process runs as
	UnprivilegedGID          int    `yaml:"unprivileged_gid"`            // gid the child process runs as
	MultiplEDir              string `yaml:"multipl_e_dir"`               // dir containing eval_<lang>.py evaluators
	CoverageReportTimeoutSec int    `yaml:"coverage_report_timeout_sec"` // fixed bound on `coverage report`
}

// ReaperConfig controls the background deadline/eviction sweeper (component C).
type ReaperConfig struct {
	SweepIntervalSec     int `yaml:"sweep_interval_sec"`
	TestBankFreshnessSec int `yaml:"test_bank_freshness_sec"`
}

// TestBankConfig controls the lazy-loaded test fixture cache (component D).
type TestBankConfig struct {
	KeyPrefix string `yaml:"key_prefix"` // Redis key prefix, e.g. "testbank:"
}

// RedisConfig is the remote dataset provider backing the test-bank cache.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// =============================================================================
// Singleton Pattern with Environment Overrides
// =============================================================================

var (
	instance *Config
	once     sync.Once
)

// Get returns the process-wide singleton config instance. Call this exactly
// once, in main, and thread the returned *Config explicitly into every
// component constructor — no other package should call Get() directly.
func Get() *Config {
	once.Do(func() {
		cfg, err := LoadConfig(getEnv("CODEEXEC_CONFIG_PATH", "config.yaml"))
		if err != nil {
			slog.Warn("config: failed to load config file, using defaults", "error", err)
		}
		if cfg == nil {
			cfg = &Config{}
		}
		cfg.applyEnvOverrides()
		cfg.applyDefaults()
		instance = cfg
	})
	return instance
}

// LoadConfig loads config from a YAML file.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides on top of the
// YAML-loaded config.
func (c *Config) applyEnvOverrides() {
	c.Server.Port = getEnv("CODEEXEC_PORT", c.Server.Port)
	c.Server.IP = getEnv("CODEEXEC_IP", c.Server.IP)
	if v := getEnvInt("CODEEXEC_READ_TIMEOUT_SEC", 0); v > 0 {
		c.Server.ReadTimeoutSec = v
	}
	if v := getEnvInt("CODEEXEC_WRITE_TIMEOUT_SEC", 0); v > 0 {
		c.Server.WriteTimeoutSec = v
	}
	if v := getEnvInt("CODEEXEC_IDLE_TIMEOUT_SEC", 0); v > 0 {
		c.Server.IdleTimeoutSec = v
	}
	if v := getEnvInt("CODEEXEC_SHUTDOWN_TIMEOUT_SEC", 0); v > 0 {
		c.Server.ShutdownTimeout = v
	}

	c.Sandbox.ScratchRoot = getEnv("CODEEXEC_SCRATCH_ROOT", c.Sandbox.ScratchRoot)
	if v := getEnvInt("CODEEXEC_UID", 0); v > 0 {
		c.Sandbox.UnprivilegedUID = v
	}
	if v := getEnvInt("CODEEXEC_GID", 0); v > 0 {
		c.Sandbox.UnprivilegedGID = v
	}
	c.Sandbox.MultiplEDir = getEnv("CODEEXEC_MULTIPL_E_DIR", c.Sandbox.MultiplEDir)
	if v := getEnvInt("CODEEXEC_COVERAGE_REPORT_TIMEOUT_SEC", 0); v > 0 {
		c.Sandbox.CoverageReportTimeoutSec = v
	}

	if v := getEnvInt("CODEEXEC_REAPER_SWEEP_INTERVAL_SEC", 0); v > 0 {
		c.Reaper.SweepIntervalSec = v
	}
	if v := getEnvInt("CODEEXEC_TESTBANK_FRESHNESS_SEC", 0); v > 0 {
		c.Reaper.TestBankFreshnessSec = v
	}

	c.TestBank.KeyPrefix = getEnv("CODEEXEC_TESTBANK_PREFIX", c.TestBank.KeyPrefix)

	c.Redis.Enabled = getEnvBool("CODEEXEC_REDIS_ENABLED", c.Redis.Enabled)
	c.Redis.Addr = getEnv("CODEEXEC_REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("CODEEXEC_REDIS_PASSWORD", c.Redis.Password)
	if v := getEnvInt("CODEEXEC_REDIS_DB", -1); v >= 0 {
		c.Redis.DB = v
	}
}

// applyDefaults sets sensible defaults for zero-valued config fields.
func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8000"
	}
	if c.Server.IP == "" {
		c.Server.IP = "0.0.0.0"
	}
	if c.Server.ReadTimeoutSec == 0 {
		c.Server.ReadTimeoutSec = 15
	}
	if c.Server.WriteTimeoutSec == 0 {
		c.Server.WriteTimeoutSec = 120 // long-running user code
	}
	if c.Server.IdleTimeoutSec == 0 {
		c.Server.IdleTimeoutSec = 60
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = 1 << 30 // effectively unlimited
	}

	if c.Sandbox.ScratchRoot == "" {
		c.Sandbox.ScratchRoot = "/dev/shm/codeexec"
	}
	if c.Sandbox.UnprivilegedUID == 0 {
		c.Sandbox.UnprivilegedUID = 1000
	}
	if c.Sandbox.UnprivilegedGID == 0 {
		c.Sandbox.UnprivilegedGID = 1000
	}
	if c.Sandbox.MultiplEDir == "" {
		c.Sandbox.MultiplEDir = "./MultiPL-E/evaluation/src"
	}
	if c.Sandbox.CoverageReportTimeoutSec == 0 {
		c.Sandbox.CoverageReportTimeoutSec = 10
	}

	if c.Reaper.SweepIntervalSec == 0 {
		c.Reaper.SweepIntervalSec = 10
	}
	if c.Reaper.TestBankFreshnessSec == 0 {
		c.Reaper.TestBankFreshnessSec = 3600
	}

	if c.TestBank.KeyPrefix == "" {
		c.TestBank.KeyPrefix = "testbank:"
	}

	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
}

// =============================================================================
// Helper Functions
// =============================================================================

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// =============================================================================
// Convenience Methods
// =============================================================================

func (c *Config) GetPort() string {
	if c.Server.Port == "" {
		return "8000"
	}
	return c.Server.Port
}
