package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig    `mapstructure:"server"`
	Database DatabaseConfig  `mapstructure:"database"`
	Storage  StorageConfig   `mapstructure:"storage"`
	Engine   EngineConfig    `mapstructure:"engine"`
	Fleet    FleetConfig     `mapstructure:"fleet"`
	Printers []PrinterConfig `mapstructure:"printers"`
}

type ServerConfig struct {
	HTTPPort        int           `mapstructure:"http_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	Debug           bool          `mapstructure:"debug"`
	RateLimit       float64       `mapstructure:"rate_limit"`
	RateBurst       int           `mapstructure:"rate_burst"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
}

type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
}

// StorageConfig selects the snapshot backend. Backend is one of file,
// postgres, gorm-postgres, sqlite or memory.
type StorageConfig struct {
	Backend    string        `mapstructure:"backend"`
	Fallback   string        `mapstructure:"fallback"`
	Directory  string        `mapstructure:"directory"`
	SQLitePath string        `mapstructure:"sqlite_path"`
	MemoryTTL  time.Duration `mapstructure:"memory_ttl"`
}

type EngineConfig struct {
	Mode                   string        `mapstructure:"mode"`
	TickInterval           time.Duration `mapstructure:"tick_interval"`
	WarmupDelay            time.Duration `mapstructure:"warmup_delay"`
	FaultInjection         bool          `mapstructure:"fault_injection"`
	FaultProbability       float64       `mapstructure:"fault_probability"`
	ConsumptionProbability float64       `mapstructure:"consumption_probability"`
	LowResourceThreshold   float64       `mapstructure:"low_resource_threshold"`
	PagesPerMinute         int           `mapstructure:"pages_per_minute"`
	ConsumableCapacity     int           `mapstructure:"consumable_capacity"`
	InitialConsumables     int           `mapstructure:"initial_consumables"`
	ConsumableKind         string        `mapstructure:"consumable_kind"`
	RandomSeed             uint64        `mapstructure:"random_seed"`
}

type FleetConfig struct {
	DirectoryFile       string  `mapstructure:"directory_file"`
	MinResourceLevel    float64 `mapstructure:"min_resource_level"`
	RequireConfirmation bool    `mapstructure:"require_confirmation"`
}

type PrinterConfig struct {
	ID        string `mapstructure:"id"`
	Name      string `mapstructure:"name"`
	ColdStart bool   `mapstructure:"cold_start"`
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix("OPC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	// defaults always decode
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.rate_limit", 20.0)
	v.SetDefault("server.rate_burst", 40)
	v.SetDefault("server.cache_ttl", "30s")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "openprintercore")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.max_connections", 10)

	v.SetDefault("storage.backend", "file")
	v.SetDefault("storage.fallback", "file")
	v.SetDefault("storage.directory", "./data")
	v.SetDefault("storage.sqlite_path", "./data/printers.db")
	v.SetDefault("storage.memory_ttl", "0s")

	v.SetDefault("engine.mode", "background")
	v.SetDefault("engine.tick_interval", "1s")
	v.SetDefault("engine.warmup_delay", "2s")
	v.SetDefault("engine.fault_injection", false)
	v.SetDefault("engine.fault_probability", 0.005)
	v.SetDefault("engine.consumption_probability", 0.3)
	v.SetDefault("engine.low_resource_threshold", 15.0)
	v.SetDefault("engine.pages_per_minute", 20)
	v.SetDefault("engine.consumable_capacity", 250)
	v.SetDefault("engine.initial_consumables", 250)
	v.SetDefault("engine.consumable_kind", "a4")

	v.SetDefault("fleet.min_resource_level", 5.0)
	v.SetDefault("fleet.require_confirmation", true)

	v.SetDefault("printers", []map[string]any{
		{"id": "printer-1", "name": "Office Printer", "cold_start": false},
	})
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if len(c.Printers) == 0 {
		return fmt.Errorf("invalid config: at least one printer is required")
	}
	seen := make(map[string]bool, len(c.Printers))
	for _, p := range c.Printers {
		if p.ID == "" {
			return fmt.Errorf("invalid config: printer id is required")
		}
		if seen[p.ID] {
			return fmt.Errorf("invalid config: duplicate printer id %q", p.ID)
		}
		seen[p.ID] = true
	}
	if c.Engine.ConsumableCapacity <= 0 {
		return fmt.Errorf("invalid config: engine.consumable_capacity must be positive")
	}
	if c.Engine.InitialConsumables < 0 || c.Engine.InitialConsumables > c.Engine.ConsumableCapacity {
		return fmt.Errorf("invalid config: engine.initial_consumables must be within [0,%d]", c.Engine.ConsumableCapacity)
	}
	for _, p := range []float64{c.Engine.FaultProbability, c.Engine.ConsumptionProbability} {
		if p < 0 || p > 1 {
			return fmt.Errorf("invalid config: probabilities must be within [0,1]")
		}
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}
