package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// FileName is the configuration file looked up in the config directory
const FileName = "owltrackers.cfg.json"

// MemoryConfig holds in-memory scene backend settings
type MemoryConfig struct {
	OutputDir      string  `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool    `json:"compressOutput" mapstructure:"compressOutput"`
	GridDPI        float64 `json:"gridDpi" mapstructure:"gridDpi"`
	Role           string  `json:"role" mapstructure:"role"`
	// PluginID is copied from plugin.id; the export reads tracker metadata with it
	PluginID string `json:"-" mapstructure:"-"`
}

// SQLiteConfig holds settings for the in-memory SQLite scene backend
type SQLiteConfig struct {
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
	DumpPath     string        `json:"dumpPath" mapstructure:"dumpPath"`
}

// StorageConfig selects and configures the scene backend
type StorageConfig struct {
	Type   string       `json:"type" mapstructure:"type"`
	Memory MemoryConfig `json:"memory" mapstructure:"memory"`
	SQLite SQLiteConfig `json:"sqlite" mapstructure:"sqlite"`
}

// HostConfig points the websocket backend at a remote scene host
type HostConfig struct {
	URL    string `json:"url" mapstructure:"url"`
	APIKey string `json:"apiKey" mapstructure:"apiKey"`
}

// OTelConfig configures the OpenTelemetry log pipeline
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// RefreshConfig tunes the sync worker
type RefreshConfig struct {
	BatchSize  int    `json:"batchSize" mapstructure:"batchSize"`
	BufferSize int    `json:"bufferSize" mapstructure:"bufferSize"`
	PluginID   string `json:"pluginId" mapstructure:"pluginId"`
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

// SetDefaults registers every default value. Load calls it; tests and the
// CLI call it directly when running without a config file.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./owltrackers-logs")

	viper.SetDefault("plugin.id", "com.owl-trackers")

	viper.SetDefault("refresh.batchSize", 100)
	viper.SetDefault("refresh.bufferSize", 1000)

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./scenes")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.memory.gridDpi", 150)
	viper.SetDefault("storage.memory.role", "GM")
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.sqlite.dumpPath", "")

	viper.SetDefault("host.url", "http://localhost:5000")
	viper.SetDefault("host.apiKey", "")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "owltrackers")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "owltrackers")
	viper.SetDefault("influx.bucket", "refresh")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "owltrackers")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetStorageConfig returns the scene backend configuration.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
			GridDPI:        viper.GetFloat64("storage.memory.gridDpi"),
			Role:           viper.GetString("storage.memory.role"),
			PluginID:       viper.GetString("plugin.id"),
		},
		SQLite: SQLiteConfig{
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
			DumpPath:     viper.GetString("storage.sqlite.dumpPath"),
		},
	}
}

// GetHostConfig returns the remote scene host configuration.
func GetHostConfig() HostConfig {
	return HostConfig{
		URL:    viper.GetString("host.url"),
		APIKey: viper.GetString("host.apiKey"),
	}
}

// GetOTelConfig returns the OpenTelemetry configuration.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetRefreshConfig returns the sync worker configuration. A batch size
// below 1 falls back to 100.
func GetRefreshConfig() RefreshConfig {
	cfg := RefreshConfig{
		BatchSize:  viper.GetInt("refresh.batchSize"),
		BufferSize: viper.GetInt("refresh.bufferSize"),
		PluginID:   viper.GetString("plugin.id"),
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 100
	}
	return cfg
}
