// Package config loads the operator configuration for the ledger-migrate command.
//
// Configuration is a YAML document. Unknown fields are rejected so that typos fail
// loudly instead of silently falling back to defaults:
//
//	ledger:
//	  engine: rpc
//	  endpoint: https://api.devnet.solana.com
//	  program: 6yFaN2...
//	signer:
//	  keypair: ~/.config/solana/id.json
//	store:
//	  driver: postgres
//	  dsn: postgres://migrator@localhost/migrator?sslmode=disable
//	campaign:
//	  concurrency: 8
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/getpup/ledger-migrator/logging"
	"github.com/getpup/ledger-migrator/store/sqlstore"
)

// Ledger engines.
const (
	EngineMemory = "memory"
	EngineRPC    = "rpc"
)

// DriverMemory keeps the campaign log in process.
const DriverMemory = "memory"

// ErrInvalidConfig indicates a configuration value is missing or out of range.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete operator configuration.
type Config struct {
	Ledger   LedgerConfig   `yaml:"ledger"`
	Signer   SignerConfig   `yaml:"signer"`
	Store    StoreConfig    `yaml:"store"`
	Campaign CampaignConfig `yaml:"campaign"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// LedgerConfig selects and configures the ledger adapter.
type LedgerConfig struct {
	// Engine is "rpc" for a JSON-RPC node or "memory" for a simulated ledger.
	Engine string `yaml:"engine"`

	// Endpoint is the node's JSON-RPC URL. Required for the rpc engine.
	Endpoint string `yaml:"endpoint"`

	// Program is the base58 identity of the program that owns the records.
	Program string `yaml:"program"`

	Commitment   string        `yaml:"commitment"`
	PollInterval time.Duration `yaml:"pollInterval"`
	Timeout      time.Duration `yaml:"timeout"`

	// Fixtures seeds the memory engine with records from a YAML file.
	Fixtures string `yaml:"fixtures"`

	// RetainSources makes the memory engine leave relocated sources in place.
	RetainSources bool `yaml:"retainSources"`
}

// SignerConfig locates the signing keypair.
type SignerConfig struct {
	// Keypair is the path of a keypair file (a JSON array of 64 bytes).
	// Empty generates an ephemeral keypair, which only the memory engine accepts.
	Keypair string `yaml:"keypair"`
}

// StoreConfig selects where campaign logs are persisted.
type StoreConfig struct {
	// Driver is memory, postgres, mysql or sqlite3.
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`

	CampaignsTable string `yaml:"campaignsTable"`
	OutcomesTable  string `yaml:"outcomesTable"`

	// Migrate creates the tables on startup.
	Migrate bool `yaml:"migrate"`
}

// CampaignConfig tunes campaign execution.
type CampaignConfig struct {
	Concurrency       int           `yaml:"concurrency"`
	PageSize          int           `yaml:"pageSize"`
	MaxAttempts       int           `yaml:"maxAttempts"`
	AttemptTimeout    time.Duration `yaml:"attemptTimeout"`
	RetryDelay        time.Duration `yaml:"retryDelay"`
	ListAttempts      int           `yaml:"listAttempts"`
	ListBackoff       time.Duration `yaml:"listBackoff"`
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address of the /metrics server. Empty disables it.
	Addr string `yaml:"addr"`

	// Program labels every metric.
	Program string `yaml:"program"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Ledger: LedgerConfig{
			Engine:       EngineMemory,
			Commitment:   "confirmed",
			PollInterval: 500 * time.Millisecond,
			Timeout:      30 * time.Second,
		},
		Store: StoreConfig{
			Driver:         DriverMemory,
			CampaignsTable: sqlstore.DefaultTableConfig().CampaignsTable,
			OutcomesTable:  sqlstore.DefaultTableConfig().OutcomesTable,
		},
		Campaign: CampaignConfig{
			Concurrency:       5,
			PageSize:          100,
			MaxAttempts:       3,
			AttemptTimeout:    90 * time.Second,
			ListAttempts:      3,
			ListBackoff:       time.Second,
			HeartbeatInterval: 5 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: logging.FormatText,
		},
		Metrics: MetricsConfig{
			Program: "ledger-migrator",
		},
	}
}

// Load reads the YAML file at path over the defaults and validates the result.
// Relative fixture and keypair paths are resolved against the file's directory.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return Config{}, err
	}

	base := filepath.Dir(path)
	cfg.Ledger.Fixtures = resolve(base, cfg.Ledger.Fixtures)
	cfg.Signer.Keypair = resolve(base, cfg.Signer.Keypair)
	return cfg, nil
}

// Parse decodes a YAML document over the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Ledger.Engine {
	case EngineMemory:
	case EngineRPC:
		if c.Ledger.Endpoint == "" {
			return fmt.Errorf("%w: ledger.endpoint is required for the rpc engine", ErrInvalidConfig)
		}
		if c.Ledger.Program == "" {
			return fmt.Errorf("%w: ledger.program is required for the rpc engine", ErrInvalidConfig)
		}
		if c.Signer.Keypair == "" {
			return fmt.Errorf("%w: signer.keypair is required for the rpc engine", ErrInvalidConfig)
		}
		if c.Ledger.Fixtures != "" {
			return fmt.Errorf("%w: ledger.fixtures only applies to the memory engine", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown ledger.engine %q", ErrInvalidConfig, c.Ledger.Engine)
	}

	switch c.Ledger.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		return fmt.Errorf("%w: unknown ledger.commitment %q", ErrInvalidConfig, c.Ledger.Commitment)
	}

	if c.Store.Driver != DriverMemory {
		if _, err := sqlstore.ParseDialect(c.Store.Driver); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		if c.Store.DSN == "" {
			return fmt.Errorf("%w: store.dsn is required for the %s driver", ErrInvalidConfig, c.Store.Driver)
		}
	}

	if c.Campaign.Concurrency < 1 {
		return fmt.Errorf("%w: campaign.concurrency must be at least 1", ErrInvalidConfig)
	}
	if c.Campaign.PageSize < 1 {
		return fmt.Errorf("%w: campaign.pageSize must be at least 1", ErrInvalidConfig)
	}
	if c.Campaign.MaxAttempts < 1 {
		return fmt.Errorf("%w: campaign.maxAttempts must be at least 1", ErrInvalidConfig)
	}
	if c.Campaign.ListAttempts < 1 {
		return fmt.Errorf("%w: campaign.listAttempts must be at least 1", ErrInvalidConfig)
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	switch c.Log.Format {
	case logging.FormatText, logging.FormatJSON:
	default:
		return fmt.Errorf("%w: unknown log.format %q", ErrInvalidConfig, c.Log.Format)
	}
	return nil
}

func resolve(base, path string) string {
	if path == "" {
		return ""
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}
