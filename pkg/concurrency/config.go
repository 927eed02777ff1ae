package concurrency

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// ExecutorMode defines how collection executors schedule their units
type ExecutorMode string

const (
	ExecutorModeConcurrent ExecutorMode = "concurrent"
	ExecutorModeSequential ExecutorMode = "sequential"
)

// ConfigSource indicates where the configuration came from
type ConfigSource string

const (
	ConfigSourceEnvVar     ConfigSource = "environment_variable"
	ConfigSourceAutoDetect ConfigSource = "auto_detect"
	ConfigSourceDefault    ConfigSource = "default"
)

// Config holds engine-wide concurrency configuration parameters
type Config struct {
	MaxConcurrent   int
	BatchSize       int
	StreamChunkSize int
	ExecutorMode    ExecutorMode
	Source          ConfigSource
	IsKubernetes    bool
	EffectiveCPUs   int
}

// Defaults applied when neither environment variables nor auto-detection
// provide a value.
const (
	DefaultBatchSize       = 100
	DefaultStreamChunkSize = 20
)

// LoadConfig loads concurrency configuration with priority: env vars > auto-detection > defaults
func LoadConfig() *Config {
	config := &Config{}

	// Detect if running in Kubernetes
	config.IsKubernetes = isKubernetes()

	// Get effective CPUs (respects cgroup limits)
	config.EffectiveCPUs = runtime.GOMAXPROCS(0)

	// Load MaxConcurrent with priority
	if maxConcurrent := getEnvInt("DAEDALUS_MAX_CONCURRENT", 0); maxConcurrent > 0 {
		config.MaxConcurrent = maxConcurrent
		config.Source = ConfigSourceEnvVar
	} else if multiplier := getEnvInt("DAEDALUS_CONCURRENCY_MULTIPLIER", 0); multiplier > 0 {
		config.MaxConcurrent = config.EffectiveCPUs * multiplier
		config.Source = ConfigSourceEnvVar
	} else {
		// Auto-detect based on environment
		config.MaxConcurrent = getDefaultMaxConcurrent(config.IsKubernetes, config.EffectiveCPUs)
		config.Source = ConfigSourceAutoDetect
	}

	// Ensure minimum value
	if config.MaxConcurrent < 1 {
		config.MaxConcurrent = 1
	}

	// Load BatchSize
	if batchSize := getEnvInt("DAEDALUS_BATCH_SIZE", 0); batchSize > 0 {
		config.BatchSize = batchSize
	} else {
		config.BatchSize = DefaultBatchSize
	}

	// Load StreamChunkSize, kept smaller than BatchSize for tighter backpressure
	if chunkSize := getEnvInt("DAEDALUS_STREAM_CHUNK_SIZE", 0); chunkSize > 0 {
		config.StreamChunkSize = chunkSize
	} else {
		config.StreamChunkSize = DefaultStreamChunkSize
	}
	if config.StreamChunkSize > config.BatchSize {
		config.StreamChunkSize = config.BatchSize
	}

	// Load ExecutorMode
	if mode := getEnv("DAEDALUS_EXECUTOR_MODE", ""); mode != "" {
		config.ExecutorMode = ExecutorMode(strings.ToLower(mode))
	} else {
		config.ExecutorMode = ExecutorModeConcurrent
	}

	// Validate ExecutorMode
	if config.ExecutorMode != ExecutorModeConcurrent && config.ExecutorMode != ExecutorModeSequential {
		config.ExecutorMode = ExecutorModeConcurrent
	}

	return config
}

// isKubernetes detects if the application is running in Kubernetes
func isKubernetes() bool {
	// Kubernetes sets this environment variable in all containers
	return os.Getenv("KUBERNETES_SERVICE_HOST") != ""
}

// getDefaultMaxConcurrent returns sensible defaults based on environment
func getDefaultMaxConcurrent(isK8s bool, cpus int) int {
	if isK8s {
		// Conservative for Kubernetes to prevent resource exhaustion
		return cpus * 2
	}
	// More aggressive for bare metal
	return cpus * 4
}

// getEnvInt retrieves an integer from environment variable with default fallback
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnv retrieves a string from environment variable with default fallback
func getEnv(key string, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// String returns a formatted string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{MaxConcurrent: %d, BatchSize: %d, StreamChunkSize: %d, ExecutorMode: %s, IsK8s: %t, CPUs: %d, Source: %s}",
		c.MaxConcurrent,
		c.BatchSize,
		c.StreamChunkSize,
		c.ExecutorMode,
		c.IsKubernetes,
		c.EffectiveCPUs,
		c.Source,
	)
}

// GetOptimalConcurrency calculates optimal concurrency for a given multiplier
func GetOptimalConcurrency(multiplier int) int {
	cpus := runtime.GOMAXPROCS(0)
	if multiplier <= 0 {
		multiplier = 2
	}
	return cpus * multiplier
}
