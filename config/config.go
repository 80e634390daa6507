package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/basedgoydev/greed-farm/database"
	"github.com/holiman/uint256"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable, e.g. GREED_DATABASE_URL
const EnvPrefix = "GREED"

// ConfigFileEnv names the variable holding the optional YAML file path
const ConfigFileEnv = "GREED_CONFIG_FILE"

// Storage backends
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	DatabaseURL    string `yaml:"databaseUrl"    envconfig:"DATABASE_URL"`
	DatabaseName   string `yaml:"databaseName"   envconfig:"DATABASE_NAME"`
	StorageBackend string `yaml:"storageBackend" envconfig:"STORAGE_BACKEND"`

	// Logging
	LogLevel  string `yaml:"logLevel"  envconfig:"LOG_LEVEL"`
	LogFormat string `yaml:"logFormat" envconfig:"LOG_FORMAT"` // text or json

	// Outputs. An empty metrics address or server list disables the output.
	MetricsAddr string   `yaml:"metricsAddr" envconfig:"METRICS_ADDR"`
	NATSServers []string `yaml:"natsServers" envconfig:"NATS_SERVERS"`

	// Cron specs for the recurring jobs
	TickSchedule      string `yaml:"tickSchedule"      envconfig:"TICK_SCHEDULE"`
	ReconcileSchedule string `yaml:"reconcileSchedule" envconfig:"RECONCILE_SCHEDULE"`
	CleanupSchedule   string `yaml:"cleanupSchedule"   envconfig:"CLEANUP_SCHEDULE"`

	// Epoch state machine
	EpochDuration     time.Duration `yaml:"epochDuration"     envconfig:"EPOCH_DURATION"` // countdown after quorum
	StakeWarmup       time.Duration `yaml:"stakeWarmup"       envconfig:"STAKE_WARMUP"`
	SharedPoolPercent uint64        `yaml:"sharedPoolPercent" envconfig:"SHARED_POOL_PERCENT"`
	MinDistributable  string        `yaml:"minDistributable"  envconfig:"MIN_DISTRIBUTABLE"`
	TotalSupply       string        `yaml:"totalSupply"       envconfig:"TOTAL_SUPPLY"`
	QuorumSchedule    QuorumSteps   `yaml:"quorumSchedule"    envconfig:"QUORUM_SCHEDULE"`
	PoolPolicy        string        `yaml:"poolPolicy"        envconfig:"POOL_POLICY"`

	// Wagering
	CommitmentTTL         time.Duration `yaml:"commitmentTtl"         envconfig:"COMMITMENT_TTL"`
	MinClientSeedLength   int           `yaml:"minClientSeedLength"   envconfig:"MIN_CLIENT_SEED_LENGTH"`
	VerificationCacheSize int           `yaml:"verificationCacheSize" envconfig:"VERIFICATION_CACHE_SIZE"`

	// External chain adapter
	ChainTimeout time.Duration `yaml:"chainTimeout" envconfig:"CHAIN_TIMEOUT"`

	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" envconfig:"SHUTDOWN_TIMEOUT"`

	// Environment
	Environment string `yaml:"environment" envconfig:"ENVIRONMENT"` // "development", "production" or "test"
}

// QuorumStep sets the quorum percentage of total supply from FromEpoch onwards
type QuorumStep struct {
	FromEpoch int64  `yaml:"fromEpoch"`
	Percent   uint64 `yaml:"percent"`
}

// QuorumSteps decodes "fromEpoch:percent" pairs separated by commas from the
// environment, e.g. "1:7,11:10,21:15,51:20"
type QuorumSteps []QuorumStep

// Decode implements envconfig.Decoder
func (q *QuorumSteps) Decode(value string) error {
	var steps QuorumSteps
	for _, pair := range strings.Split(value, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		epochStr, pctStr, ok := strings.Cut(pair, ":")
		if !ok {
			return fmt.Errorf("invalid quorum step %q, want fromEpoch:percent", pair)
		}
		epoch, err := strconv.ParseInt(strings.TrimSpace(epochStr), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid quorum step epoch %q: %w", epochStr, err)
		}
		pct, err := strconv.ParseUint(strings.TrimSpace(pctStr), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid quorum step percent %q: %w", pctStr, err)
		}
		steps = append(steps, QuorumStep{FromEpoch: epoch, Percent: pct})
	}
	*q = steps
	return nil
}

var (
	instance *Config
	once     sync.Once
	mu       sync.Mutex // Protects instance for test setup
)

// Get returns the global configuration instance
func Get() *Config {
	mu.Lock()
	defer mu.Unlock()

	// If instance is already set (e.g., by tests), return it
	if instance != nil {
		return instance
	}

	once.Do(func() {
		var err error
		instance, err = Load(os.Getenv(ConfigFileEnv))
		if err != nil {
			// In test environment, use a default test config instead of panicking
			if os.Getenv("GO_TEST") == "1" || os.Getenv(EnvPrefix+"_ENVIRONMENT") == "test" {
				instance = NewTestConfig()
			} else {
				panic(fmt.Sprintf("failed to load config: %v", err))
			}
		}
	})
	return instance
}

// GetDatabaseURL constructs the full database URL by combining base URL and database name
func (c *Config) GetDatabaseURL() string {
	return database.ConstructDatabaseURL(c.DatabaseURL, c.DatabaseName)
}

// Defaults returns the built-in configuration
func Defaults() *Config {
	return &Config{
		StorageBackend:        StoragePostgres,
		LogLevel:              "info",
		LogFormat:             "text",
		MetricsAddr:           ":9102",
		TickSchedule:          "@every 10s",
		ReconcileSchedule:     "@every 1m",
		CleanupSchedule:       "@every 10m",
		EpochDuration:         15 * time.Minute,
		StakeWarmup:           24 * time.Hour,
		SharedPoolPercent:     90,
		MinDistributable:      "0",
		TotalSupply:           "1000000000000000",
		QuorumSchedule:        DefaultQuorumSchedule(),
		PoolPolicy:            "cumulative",
		CommitmentTTL:         5 * time.Minute,
		MinClientSeedLength:   16,
		VerificationCacheSize: 1024,
		ChainTimeout:          10 * time.Second,
		ShutdownTimeout:       30 * time.Second,
		Environment:           "development",
	}
}

// DefaultQuorumSchedule ramps the quorum from 7% to 20% of supply
func DefaultQuorumSchedule() QuorumSteps {
	return QuorumSteps{
		{FromEpoch: 1, Percent: 7},
		{FromEpoch: 11, Percent: 10},
		{FromEpoch: 21, Percent: 15},
		{FromEpoch: 51, Percent: 20},
	}
}

// Load applies the YAML file at configFile, if any, and then the environment
// over the defaults
func Load(configFile string) (*Config, error) {
	config := Defaults()

	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, config); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, config); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the configuration for values no component can run with
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case StoragePostgres:
		if c.DatabaseURL == "" && c.Environment != "test" {
			return fmt.Errorf("%s_DATABASE_URL is required", EnvPrefix)
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}

	switch c.PoolPolicy {
	case "cumulative", "reset":
	default:
		return fmt.Errorf("unknown pool policy %q", c.PoolPolicy)
	}

	if c.SharedPoolPercent > 100 {
		return fmt.Errorf("shared pool percent must be at most 100, got %d", c.SharedPoolPercent)
	}
	if c.EpochDuration <= 0 {
		return fmt.Errorf("epoch duration must be positive")
	}
	if c.StakeWarmup < 0 {
		return fmt.Errorf("stake warmup must not be negative")
	}
	if c.CommitmentTTL <= 0 {
		return fmt.Errorf("commitment TTL must be positive")
	}
	if c.MinClientSeedLength < 1 {
		return fmt.Errorf("minimum client seed length must be at least 1")
	}
	if len(c.QuorumSchedule) == 0 {
		return fmt.Errorf("quorum schedule needs at least one step")
	}

	supply, err := c.TotalSupplyAmount()
	if err != nil {
		return err
	}
	if supply.IsZero() {
		return fmt.Errorf("total supply must be positive")
	}
	if _, err := c.MinDistributableAmount(); err != nil {
		return err
	}
	return nil
}

// TotalSupplyAmount parses TotalSupply
func (c *Config) TotalSupplyAmount() (*uint256.Int, error) {
	return parseAmount("total supply", c.TotalSupply)
}

// MinDistributableAmount parses MinDistributable
func (c *Config) MinDistributableAmount() (*uint256.Int, error) {
	return parseAmount("minimum distributable", c.MinDistributable)
}

func parseAmount(name, value string) (*uint256.Int, error) {
	if value == "" {
		return new(uint256.Int), nil
	}
	amount, err := uint256.FromDecimal(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	return amount, nil
}

// SetTestConfig overrides the global config instance for testing
// This should only be called from test files
func SetTestConfig(testConfig *Config) {
	mu.Lock()
	defer mu.Unlock()
	instance = testConfig
}

// ResetConfig resets the global config instance and sync.Once for testing
// This should only be called from test files
func ResetConfig() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
	once = sync.Once{}
}

// NewTestConfig creates a minimal config suitable for unit tests
func NewTestConfig() *Config {
	config := Defaults()
	config.Environment = "test"
	config.StorageBackend = StorageMemory
	config.MetricsAddr = ""
	config.TotalSupply = "100000"
	return config
}
