// Package config loads the YAML-tagged configuration for Kulupu's mining
// and cluster components: the sections an operator edits most often and
// that benefit from a default-then-override load, distinct from the
// TOML-loaded node runtime configuration in this same package.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// MiningConfig holds a local miner's configuration.
type MiningConfig struct {
	Threads          int           `yaml:"threads"`
	Rounds           int           `yaml:"rounds"`
	HugePages        bool          `yaml:"huge_pages"`
	HashrateInterval time.Duration `yaml:"hashrate_interval"`
	Keystore         string        `yaml:"keystore"`
}

// ClusterConfig holds cluster identification shared by a coordinator and
// its workers.
type ClusterConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// GRPCConfig holds the coordinator's gRPC listener configuration.
type GRPCConfig struct {
	Listen     string `yaml:"listen"`
	MaxWorkers int    `yaml:"max_workers"`
}

// RedisConfig holds the cluster's shared-state Redis connection.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// DashboardConfig holds the websocket dashboard's listener configuration.
type DashboardConfig struct {
	Listen        string        `yaml:"listen"`
	StatsInterval time.Duration `yaml:"stats_interval"`
}

// RPCWorkConfig holds the external work_getCompute/work_submitSeal
// endpoint's configuration.
type RPCWorkConfig struct {
	Listen    string  `yaml:"listen"`
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
	JWTSecret string  `yaml:"jwt_secret"`
}

// WorkersConfig holds worker health-tracking configuration.
type WorkersConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	Timeout           time.Duration `yaml:"timeout"`
}

// LedgerConfig holds the Postgres audit-ledger connection.
type LedgerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	MaxConns int32  `yaml:"max_conns"`
}

// LoggingConfig holds structured logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// MetricsConfig holds Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Path    string `yaml:"path"`
}

// CoordinatorConfig is the YAML configuration for a cluster coordinator
// process: the gRPC/dashboard/rpcwork surfaces it exposes, the workers it
// tracks, and where it records rewards.
type CoordinatorConfig struct {
	Cluster   ClusterConfig   `yaml:"cluster"`
	GRPC      GRPCConfig      `yaml:"grpc"`
	Redis     RedisConfig     `yaml:"redis"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	RPCWork   RPCWorkConfig   `yaml:"rpcwork"`
	Workers   WorkersConfig   `yaml:"workers"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// WorkerIdentConfig identifies a worker to its coordinator.
type WorkerIdentConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// ConnectorConfig holds a worker's connection to its coordinator.
type ConnectorConfig struct {
	Address              string        `yaml:"address"`
	ReconnectDelay       time.Duration `yaml:"reconnect_delay"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
}

// WorkerNodeConfig is the YAML configuration for a remote mining worker
// process: its identity, the coordinator it reports to, and its own
// mining/logging configuration.
type WorkerNodeConfig struct {
	Worker      WorkerIdentConfig `yaml:"worker"`
	Coordinator ConnectorConfig   `yaml:"coordinator"`
	Mining      MiningConfig      `yaml:"mining"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// LoadCoordinatorConfig reads and parses a coordinator YAML config file,
// starting from DefaultCoordinatorConfig and overlaying whatever the file
// sets.
func LoadCoordinatorConfig(path string) (*CoordinatorConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading coordinator config: %w", err)
	}

	cfg := DefaultCoordinatorConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing coordinator config: %w", err)
	}
	return cfg, nil
}

// DefaultCoordinatorConfig returns the configuration a coordinator starts
// from absent an override file.
func DefaultCoordinatorConfig() *CoordinatorConfig {
	return &CoordinatorConfig{
		Cluster: ClusterConfig{ID: "default-cluster", Name: "Kulupu Cluster"},
		GRPC:    GRPCConfig{Listen: ":50051", MaxWorkers: 100},
		Redis:   RedisConfig{Addr: "127.0.0.1:6379"},
		Dashboard: DashboardConfig{
			Listen:        ":8080",
			StatsInterval: 2 * time.Second,
		},
		RPCWork: RPCWorkConfig{
			Listen:    "127.0.0.1:9934",
			RateLimit: 50,
			RateBurst: 100,
		},
		Workers: WorkersConfig{
			HeartbeatInterval: 30 * time.Second,
			Timeout:           90 * time.Second,
		},
		Ledger: LedgerConfig{
			Host:     "127.0.0.1",
			Port:     5432,
			Database: "kulupu_ledger",
			MaxConns: 10,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{Enabled: true, Listen: ":9615", Path: "/metrics"},
	}
}

// LoadWorkerConfig reads and parses a worker YAML config file, starting
// from DefaultWorkerConfig and overlaying whatever the file sets.
func LoadWorkerConfig(path string) (*WorkerNodeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading worker config: %w", err)
	}

	cfg := DefaultWorkerConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing worker config: %w", err)
	}
	return cfg, nil
}

// DefaultWorkerConfig returns the configuration a remote mining worker
// starts from absent an override file.
func DefaultWorkerConfig() *WorkerNodeConfig {
	return &WorkerNodeConfig{
		Worker: WorkerIdentConfig{Name: "kulupu-worker"},
		Coordinator: ConnectorConfig{
			Address:        "localhost:50051",
			ReconnectDelay: 5 * time.Second,
		},
		Mining: MiningConfig{
			Threads:          0,
			Rounds:           1000,
			HugePages:        true,
			HashrateInterval: 10 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Validate checks a coordinator config for the fields that must be set
// before the process can usefully start.
func (c *CoordinatorConfig) Validate() error {
	if c.Cluster.ID == "" {
		return fmt.Errorf("config: cluster.id is required")
	}
	if c.GRPC.Listen == "" {
		return fmt.Errorf("config: grpc.listen is required")
	}
	if c.Ledger.Database == "" {
		return fmt.Errorf("config: ledger.database is required")
	}
	return nil
}

// Validate checks a worker config for the fields that must be set before
// the process can usefully start.
func (c *WorkerNodeConfig) Validate() error {
	if c.Coordinator.Address == "" {
		return fmt.Errorf("config: coordinator.address is required")
	}
	if c.Mining.Threads < 0 {
		return fmt.Errorf("config: mining.threads must be >= 0")
	}
	return nil
}
