// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string

	// Container runtime settings.
	Image        string
	Network      string
	DataDir      string // host directory holding per-user workspace dirs
	ProjectsRoot string // in-container root for container-native projects

	// Upstream AI provider env forwarded into containers. Empty values are
	// not forwarded.
	AnthropicBaseURL   string
	AnthropicAuthToken string
	AnthropicModel     string

	// SDKEntrypoint is the Node module inside the container that runs agent
	// queries from a base64 payload.
	SDKEntrypoint string

	Timeout TimeoutConfig
	Retry   RetryConfig
	Tiers   map[string]TierLimits
}

// TimeoutConfig groups all configurable deadlines.
type TimeoutConfig struct {
	Query          time.Duration // hard wall-clock limit per agent query
	Ready          time.Duration // container readiness deadline
	ReadyPoll      time.Duration // inspect interval while waiting for ready
	PTYIdle        time.Duration // PTY session lifetime after client disconnect
	ContainerIdle  time.Duration // container lifetime without activity
	ReapInterval   time.Duration // idle reaper sweep interval
	FileWrite      time.Duration // optimistic file write settle time
	ReconcileEntry time.Duration // per-record budget during boot reconciliation
	DestroyCleanup time.Duration
	HealthCheck    time.Duration
}

// RetryConfig groups database retry tuning.
type RetryConfig struct {
	DatabaseMaxRetries     int
	DatabaseRetryBaseDelay time.Duration
}

// TierLimits caps a container's resources.
type TierLimits struct {
	MemoryBytes int64
	CPUQuota    int64
	CPUPeriod   int64
}

// defaultTiers returns the built-in resource tier table. Each tier is
// overridable via TIER_<NAME>_MEMORY_MB / TIER_<NAME>_CPU_QUOTA /
// TIER_<NAME>_CPU_PERIOD.
func defaultTiers() map[string]TierLimits {
	return map[string]TierLimits{
		"free":       {MemoryBytes: 512 * 1024 * 1024, CPUQuota: 50000, CPUPeriod: 100000},
		"pro":        {MemoryBytes: 2048 * 1024 * 1024, CPUQuota: 150000, CPUPeriod: 100000},
		"enterprise": {MemoryBytes: 4096 * 1024 * 1024, CPUQuota: 400000, CPUPeriod: 100000},
	}
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/agentdock.db"),

		Image:        getEnv("AGENT_IMAGE", "agentdock/runtime:latest"),
		Network:      getEnv("AGENT_NETWORK", "agentdock"),
		DataDir:      getEnv("DATA_DIR", "./data/users"),
		ProjectsRoot: getEnv("PROJECTS_ROOT", "/home/node/.claude/projects"),

		AnthropicBaseURL:   getEnv("ANTHROPIC_BASE_URL", ""),
		AnthropicAuthToken: getEnv("ANTHROPIC_AUTH_TOKEN", ""),
		AnthropicModel:     getEnv("ANTHROPIC_MODEL", ""),

		SDKEntrypoint: getEnv("SDK_ENTRYPOINT", "/app/sdk/run.mjs"),

		Timeout: TimeoutConfig{
			Query:          getEnvDuration("QUERY_TIMEOUT", 5*time.Minute),
			Ready:          getEnvDuration("READY_TIMEOUT", 60*time.Second),
			ReadyPoll:      getEnvDuration("READY_POLL_INTERVAL", 500*time.Millisecond),
			PTYIdle:        getEnvDuration("PTY_IDLE_TIMEOUT", 30*time.Minute),
			ContainerIdle:  getEnvDuration("CONTAINER_IDLE_TIMEOUT", 2*time.Hour),
			ReapInterval:   getEnvDuration("REAP_INTERVAL", 30*time.Minute),
			FileWrite:      getEnvDuration("FILE_WRITE_TIMEOUT", 3*time.Second),
			ReconcileEntry: getEnvDuration("RECONCILE_ENTRY_TIMEOUT", 2*time.Second),
			DestroyCleanup: getEnvDuration("DESTROY_CLEANUP_TIMEOUT", 30*time.Second),
			HealthCheck:    getEnvDuration("HEALTH_CHECK_TIMEOUT", 5*time.Second),
		},
		Retry: RetryConfig{
			DatabaseMaxRetries:     getEnvInt("DB_MAX_RETRIES", 3),
			DatabaseRetryBaseDelay: getEnvDuration("DB_RETRY_BASE_DELAY", 50*time.Millisecond),
		},
		Tiers: loadTiers(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func loadTiers() map[string]TierLimits {
	tiers := defaultTiers()
	for name, limits := range tiers {
		prefix := "TIER_" + strings.ToUpper(name)
		if mb := getEnvInt64(prefix+"_MEMORY_MB", 0); mb > 0 {
			limits.MemoryBytes = mb * 1024 * 1024
		}
		if q := getEnvInt64(prefix+"_CPU_QUOTA", 0); q > 0 {
			limits.CPUQuota = q
		}
		if p := getEnvInt64(prefix+"_CPU_PERIOD", 0); p > 0 {
			limits.CPUPeriod = p
		}
		tiers[name] = limits
	}
	return tiers
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.Image == "" {
		return fmt.Errorf("AGENT_IMAGE cannot be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("DATA_DIR cannot be empty")
	}
	if !strings.HasPrefix(c.ProjectsRoot, "/") {
		return fmt.Errorf("PROJECTS_ROOT must be an absolute in-container path")
	}
	if _, ok := c.Tiers["free"]; !ok {
		return fmt.Errorf("tier table must define the free tier")
	}
	return nil
}

// TierFor returns the limits for a tier name, falling back to free for
// unknown tiers.
func (c *Config) TierFor(tier string) (string, TierLimits) {
	if limits, ok := c.Tiers[tier]; ok {
		return tier, limits
	}
	return "free", c.Tiers["free"]
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvInt64(key string, fallback int64) int64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
