// Package config provides configuration management for the mergetree
// insert-path writer, handling environment variables, YAML files, and
// runtime settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level process configuration.
type Config struct {
	Writer        WriterConfig        `json:"writer" yaml:"writer"`
	Catalog       CatalogConfig       `json:"catalog" yaml:"catalog"`
	StoragePolicy StoragePolicyConfig `json:"storage_policy" yaml:"storage_policy"`
	Redis         RedisConfig         `json:"redis" yaml:"redis"`
	VectorIndex   VectorIndexConfig   `json:"vector_index" yaml:"vector_index"`
	Janitor       JanitorConfig       `json:"janitor" yaml:"janitor"`
	AdminAPI      AdminAPIConfig      `json:"admin_api" yaml:"admin_api"`
	Logging       LoggingConfig       `json:"logging" yaml:"logging"`
}

// WriterConfig mirrors the MergeTree engine settings that bear on the
// insert path.
type WriterConfig struct {
	OptimizeOnInsert                      bool    `json:"optimize_on_insert" yaml:"optimize_on_insert"`
	FsyncAfterInsert                      bool    `json:"fsync_after_insert" yaml:"fsync_after_insert"`
	FsyncPartDirectory                    bool    `json:"fsync_part_directory" yaml:"fsync_part_directory"`
	RatioOfDefaultsForSparseSerialization float64 `json:"ratio_of_defaults_for_sparse_serialization" yaml:"ratio_of_defaults_for_sparse_serialization"`
	AssignPartUUIDs                       bool    `json:"assign_part_uuids" yaml:"assign_part_uuids"`
	MaxParts                              int     `json:"max_parts" yaml:"max_parts"`
	MinRowsForWidePart                    int     `json:"min_rows_for_wide_part" yaml:"min_rows_for_wide_part"`
	MinBytesForWidePart                   int64   `json:"min_bytes_for_wide_part" yaml:"min_bytes_for_wide_part"`
	InMemoryPartRowsThreshold             int     `json:"in_memory_part_rows_threshold" yaml:"in_memory_part_rows_threshold"`
	TempPartBaseDir                       string  `json:"temp_part_base_dir" yaml:"temp_part_base_dir"`
}

// CatalogConfig selects and configures the table-schema and part-metadata
// store.
type CatalogConfig struct {
	Driver         string         `json:"driver" yaml:"driver"` // "sqlite" or "postgres"
	SqliteConfig   SqliteConfig   `json:"sqlite" yaml:"sqlite"`
	PostgresConfig PostgresConfig `json:"postgres" yaml:"postgres"`
	SchemaPath     string         `json:"schema_path" yaml:"schema_path"`
	QueryTimeout   time.Duration  `json:"query_timeout" yaml:"query_timeout"`
}

// SqliteConfig configures the embedded catalog/janitor backing store.
type SqliteConfig struct {
	Path string `json:"path" yaml:"path"`
}

// PostgresConfig configures the optional shared-catalog backing store.
type PostgresConfig struct {
	Host            string        `json:"host" yaml:"host"`
	Port            int           `json:"port" yaml:"port"`
	Name            string        `json:"name" yaml:"name"`
	User            string        `json:"user" yaml:"user"`
	Password        string        `json:"-" yaml:"-"`
	SSLMode         string        `json:"ssl_mode" yaml:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

// StoragePolicyConfig names the volumes the Space Reserver chooses from.
type StoragePolicyConfig struct {
	PolicyPath        string        `json:"policy_path" yaml:"policy_path"`
	MoveFactor        float64       `json:"move_factor" yaml:"move_factor"`
	FreeSpaceCacheTTL time.Duration `json:"free_space_cache_ttl" yaml:"free_space_cache_ttl"`
}

// RedisConfig configures the cross-process mirror used by the counter and
// storage-policy free-space cache.
type RedisConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"-" yaml:"-"`
	DB       int    `json:"db" yaml:"db"`
}

// VectorIndexConfig configures the optional Qdrant sink for projection
// embedding columns.
type VectorIndexConfig struct {
	Enabled        bool   `json:"enabled" yaml:"enabled"`
	Host           string `json:"host" yaml:"host"`
	Port           int    `json:"port" yaml:"port"`
	APIKey         string `json:"-" yaml:"-"`
	UseTLS         bool   `json:"use_tls" yaml:"use_tls"`
	Collection     string `json:"collection" yaml:"collection"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// JanitorConfig configures the stale temporary-directory sweeper.
type JanitorConfig struct {
	SweepInterval  time.Duration `json:"sweep_interval" yaml:"sweep_interval"`
	StaleThreshold time.Duration `json:"stale_threshold" yaml:"stale_threshold"`
}

// AdminAPIConfig configures the HTTP surface exposing health, metrics, and
// the synchronous insert endpoint.
type AdminAPIConfig struct {
	Port         int `json:"port" yaml:"port"`
	ReadTimeout  int `json:"read_timeout_seconds" yaml:"read_timeout_seconds"`
	WriteTimeout int `json:"write_timeout_seconds" yaml:"write_timeout_seconds"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Writer: WriterConfig{
			OptimizeOnInsert:                       false,
			FsyncAfterInsert:                       false,
			FsyncPartDirectory:                     true,
			RatioOfDefaultsForSparseSerialization:  0.9375,
			AssignPartUUIDs:                        false,
			MaxParts:                               100,
			MinRowsForWidePart:                     0,
			MinBytesForWidePart:                    0,
			InMemoryPartRowsThreshold:              0,
			TempPartBaseDir:                        "./data/tmp",
		},
		Catalog: CatalogConfig{
			Driver:       "sqlite",
			SqliteConfig: SqliteConfig{Path: "./data/catalog.db"},
			PostgresConfig: PostgresConfig{
				Host:            "localhost",
				Port:            5432,
				Name:            "mergetree_catalog",
				User:            "postgres",
				SSLMode:         "disable",
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: time.Hour,
			},
			SchemaPath:   "./schema/tables.yaml",
			QueryTimeout: 10 * time.Second,
		},
		StoragePolicy: StoragePolicyConfig{
			PolicyPath:        "./schema/storage_policy.yaml",
			MoveFactor:        0.1,
			FreeSpaceCacheTTL: 5 * time.Second,
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			DB:      0,
		},
		VectorIndex: VectorIndexConfig{
			Enabled:        false,
			Host:           "localhost",
			Port:           6334,
			Collection:     "mergetree_projections",
			TimeoutSeconds: 10,
		},
		Janitor: JanitorConfig{
			SweepInterval:  time.Minute,
			StaleThreshold: 10 * time.Minute,
		},
		AdminAPI: AdminAPIConfig{
			Port:         8090,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig loads configuration from defaults, an optional YAML file,
// and environment variables, in that order of increasing precedence.
func LoadConfig(yamlPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := DefaultConfig()

	if yamlPath != "" {
		if err := loadFromYAML(config, yamlPath); err != nil {
			return nil, fmt.Errorf("error loading config file %s: %w", yamlPath, err)
		}
	}

	loadFromEnv(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func loadFromYAML(config *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, config)
}

func loadFromEnv(config *Config) {
	loadWriterConfig(config)
	loadCatalogConfig(config)
	loadRedisConfig(config)
	loadVectorIndexConfig(config)
	loadAdminAPIConfig(config)
}

func loadWriterConfig(config *Config) {
	if v := os.Getenv("MERGETREE_MAX_PARTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Writer.MaxParts = n
		}
	}
	if v := os.Getenv("MERGETREE_OPTIMIZE_ON_INSERT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.Writer.OptimizeOnInsert = b
		}
	}
	if v := os.Getenv("MERGETREE_FSYNC_AFTER_INSERT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.Writer.FsyncAfterInsert = b
		}
	}
	if v := os.Getenv("MERGETREE_ASSIGN_PART_UUIDS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.Writer.AssignPartUUIDs = b
		}
	}
	if v := os.Getenv("MERGETREE_TEMP_PART_BASE_DIR"); v != "" {
		config.Writer.TempPartBaseDir = v
	}
}

func loadCatalogConfig(config *Config) {
	if v := os.Getenv("MERGETREE_CATALOG_DRIVER"); v != "" {
		config.Catalog.Driver = v
	}
	if v := os.Getenv("MERGETREE_SQLITE_PATH"); v != "" {
		config.Catalog.SqliteConfig.Path = v
	}
	if v := os.Getenv("MERGETREE_PG_HOST"); v != "" {
		config.Catalog.PostgresConfig.Host = v
	}
	if v := os.Getenv("MERGETREE_PG_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Catalog.PostgresConfig.Port = n
		}
	}
	if v := os.Getenv("MERGETREE_PG_PASSWORD"); v != "" {
		config.Catalog.PostgresConfig.Password = v
	}
}

func loadRedisConfig(config *Config) {
	if v := os.Getenv("MERGETREE_REDIS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.Redis.Enabled = b
		}
	}
	if v := os.Getenv("MERGETREE_REDIS_ADDR"); v != "" {
		config.Redis.Addr = v
	}
	if v := os.Getenv("MERGETREE_REDIS_PASSWORD"); v != "" {
		config.Redis.Password = v
	}
}

func loadVectorIndexConfig(config *Config) {
	if v := os.Getenv("MERGETREE_VECTOR_INDEX_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.VectorIndex.Enabled = b
		}
	}
	if v := os.Getenv("MERGETREE_VECTOR_INDEX_HOST"); v != "" {
		config.VectorIndex.Host = v
	}
	if v := os.Getenv("MERGETREE_VECTOR_INDEX_API_KEY"); v != "" {
		config.VectorIndex.APIKey = v
	}
}

func loadAdminAPIConfig(config *Config) {
	if v := os.Getenv("MERGETREE_ADMIN_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.AdminAPI.Port = n
		}
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if err := c.validateWriterConfig(); err != nil {
		return err
	}
	if err := c.validateCatalogConfig(); err != nil {
		return err
	}
	if err := c.validateAdminAPIConfig(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateWriterConfig() error {
	if c.Writer.MaxParts < 1 {
		return fmt.Errorf("invalid writer.max_parts: %d", c.Writer.MaxParts)
	}
	if c.Writer.RatioOfDefaultsForSparseSerialization < 0 || c.Writer.RatioOfDefaultsForSparseSerialization > 1 {
		return fmt.Errorf("invalid writer.ratio_of_defaults_for_sparse_serialization: %f", c.Writer.RatioOfDefaultsForSparseSerialization)
	}
	if c.Writer.TempPartBaseDir == "" {
		return errors.New("writer.temp_part_base_dir cannot be empty")
	}
	return nil
}

func (c *Config) validateCatalogConfig() error {
	switch c.Catalog.Driver {
	case "sqlite":
		if c.Catalog.SqliteConfig.Path == "" {
			return errors.New("catalog.sqlite.path cannot be empty when driver is sqlite")
		}
	case "postgres":
		if c.Catalog.PostgresConfig.Host == "" {
			return errors.New("catalog.postgres.host cannot be empty when driver is postgres")
		}
		if c.Catalog.PostgresConfig.Port < 1 || c.Catalog.PostgresConfig.Port > 65535 {
			return fmt.Errorf("invalid catalog.postgres.port: %d", c.Catalog.PostgresConfig.Port)
		}
	default:
		return fmt.Errorf("unknown catalog.driver: %q", c.Catalog.Driver)
	}
	return nil
}

func (c *Config) validateAdminAPIConfig() error {
	if c.AdminAPI.Port < 1 || c.AdminAPI.Port > 65535 {
		return fmt.Errorf("invalid admin_api.port: %d", c.AdminAPI.Port)
	}
	return nil
}

// DSN builds the lib/pq connection string from the configured
// fields.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Name, c.User, c.Password, c.SSLMode)
}
