package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the fedsearch configuration.
type Config struct {
	HTTP          HTTPConfig          `yaml:"http"`
	Auth          AuthConfig          `yaml:"auth"`
	Logging       LoggingConfig       `yaml:"logging"`
	Database      DatabaseConfig      `yaml:"database"`
	Engine        EngineConfig        `yaml:"engine"`
	Source        SourceConfig        `yaml:"source"`
	Queue         QueueConfig         `yaml:"queue"`
	Tenancy       TenancyConfig       `yaml:"tenancy"`
	Cache         CacheConfig         `yaml:"cache"`
	Federation    FederationConfig    `yaml:"federation"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Transform     TransformConfig     `yaml:"transform"`
	Mappings      []MappingConfig     `yaml:"mappings"`
	IndexSettings IndexSettingsConfig `yaml:"index_settings"`
	Telemetry     TelemetryConfig     `yaml:"telemetry"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings. Empty APIKeys disables auth.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds key-value store connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// Engine drivers.
const (
	DriverRedis     = "redis"
	DriverTypesense = "typesense"
	DriverBleve     = "bleve"
)

// EngineConfig selects and configures the search engine adapter.
type EngineConfig struct {
	Driver    string          `yaml:"driver"` // redis (default), typesense, bleve
	Typesense TypesenseConfig `yaml:"typesense"`
	Bleve     BleveConfig     `yaml:"bleve"`
	Timeouts  TimeoutsConfig  `yaml:"timeouts"`
}

// TypesenseConfig holds Typesense connection settings.
type TypesenseConfig struct {
	URL              string        `yaml:"url"`
	APIKey           string        `yaml:"api_key"`
	ConnTimeout      time.Duration `yaml:"conn_timeout"`
	WriteConcurrency int           `yaml:"write_concurrency"`
}

// BleveConfig holds embedded index settings. An empty Path keeps indexes in memory.
type BleveConfig struct {
	Path string `yaml:"path"`
}

// TimeoutsConfig bounds every engine call.
type TimeoutsConfig struct {
	Default time.Duration `yaml:"default"`
	Search  time.Duration `yaml:"search"`
	Write   time.Duration `yaml:"write"`
	Admin   time.Duration `yaml:"admin"`
}

// SourceConfig holds the record source connection.
type SourceConfig struct {
	DSN string `yaml:"dsn"`
}

// Queue drivers.
const (
	QueueNATS   = "nats"
	QueueMemory = "memory"
)

// QueueConfig holds job queue settings.
type QueueConfig struct {
	Driver            string        `yaml:"driver"` // nats (default), memory
	URL               string        `yaml:"url"`
	Stream            string        `yaml:"stream"`
	Subject           string        `yaml:"subject"`
	DeadLetterSubject string        `yaml:"dead_letter_subject"`
	Group             string        `yaml:"group"`
	Workers           int           `yaml:"workers"`
	Buffer            int           `yaml:"buffer"`
	AckWait           time.Duration `yaml:"ack_wait"`
	Retry             RetryConfig   `yaml:"retry"`
}

// RetryConfig holds the job retry policy.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Delay       time.Duration `yaml:"delay"`
	Exponential bool          `yaml:"exponential"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// TenancyConfig holds multi-tenancy settings.
type TenancyConfig struct {
	Enabled       bool     `yaml:"enabled"`
	RequireTenant bool     `yaml:"require_tenant"`
	DefaultTenant string   `yaml:"default_tenant"`
	Tenants       []string `yaml:"tenants"`
	StampTenant   *bool    `yaml:"stamp_tenant"`
}

// CacheConfig holds query result cache settings.
type CacheConfig struct {
	Enabled   *bool         `yaml:"enabled"`
	TTL       time.Duration `yaml:"ttl"`
	LocalSize int           `yaml:"local_size"`
}

// FederatedIndex is one base index in the federated query set.
// A missing weight defaults to 1. Weights <= 0 are kept and floored when scoring.
type FederatedIndex struct {
	Name   string   `yaml:"name"`
	Weight *float64 `yaml:"weight"`
	Filter string   `yaml:"filter"`
}

// WeightValue returns the configured weight, or 1 when unset.
func (fi FederatedIndex) WeightValue() float64 {
	if fi.Weight == nil {
		return 1
	}
	return *fi.Weight
}

// FederationConfig holds federated query settings.
type FederationConfig struct {
	Indexes         []FederatedIndex `yaml:"indexes"`
	DefaultLimit    int              `yaml:"default_limit"`
	MaxLimit        int              `yaml:"max_limit"`
	PerIndexTimeout time.Duration    `yaml:"per_index_timeout"`
	Concurrency     int              `yaml:"concurrency"`
	TimestampField  string           `yaml:"timestamp_field"`
}

// PipelineConfig holds indexing pipeline settings.
type PipelineConfig struct {
	ChunkSize         int           `yaml:"chunk_size"`
	BatchSize         int           `yaml:"batch_size"`
	JobSize           int           `yaml:"job_size"`
	ReconcileAttempts int           `yaml:"reconcile_attempts"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	LockTTL           time.Duration `yaml:"lock_ttl"`
}

// TransformConfig holds document transformer settings.
type TransformConfig struct {
	InjectMetadata    *bool  `yaml:"inject_metadata"`
	StripNulls        bool   `yaml:"strip_nulls"`
	StripEmptyStrings bool   `yaml:"strip_empty_strings"`
	BaseURL           string `yaml:"base_url"`
	MaxRelationItems  int    `yaml:"max_relation_items"`
}

// RuleConfig names a transformation rule.
type RuleConfig struct {
	Name   string            `yaml:"rule"`
	Source string            `yaml:"source"`
	Args   map[string]string `yaml:"args"`
}

// ComputedConfig binds a field to a rule.
type ComputedConfig struct {
	Field      string `yaml:"field"`
	RuleConfig `yaml:",inline"`
}

// RelationConfig describes a flattened relation.
type RelationConfig struct {
	Field    string   `yaml:"field"`
	Label    []string `yaml:"label"`
	MaxItems int      `yaml:"max_items"`
}

// MappingSourceConfig locates the rows behind a mapping.
type MappingSourceConfig struct {
	Table string `yaml:"table"`
	Key   string `yaml:"key"`
}

// MappingConfig declares one source type to index binding.
type MappingConfig struct {
	SourceType      string              `yaml:"source_type"`
	IndexName       string              `yaml:"index_name"`
	PrimaryKey      string              `yaml:"primary_key"`
	Fields          []string            `yaml:"fields"`
	Computed        []ComputedConfig    `yaml:"computed"`
	Transformations []ComputedConfig    `yaml:"transformations"`
	Relations       []RelationConfig    `yaml:"relations"`
	Searchable      []string            `yaml:"searchable"`
	Filterable      []string            `yaml:"filterable"`
	Sortable        []string            `yaml:"sortable"`
	Source          MappingSourceConfig `yaml:"source"`
	URLPattern      string              `yaml:"url_pattern"`
}

// IndexSettingsConfig holds engine settings shared by every index.
type IndexSettingsConfig struct {
	Synonyms  map[string][]string `yaml:"synonyms"`
	StopWords []string            `yaml:"stop_words"`
}

// TelemetryConfig holds tracing settings. An empty endpoint disables export.
type TelemetryConfig struct {
	Endpoint    string `yaml:"otlp_endpoint"`
	ServiceName string `yaml:"service_name"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse decodes, defaults and validates YAML configuration.
func Parse(data []byte) (Config, error) {
	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// BoolOr dereferences b, falling back to def when unset.
func BoolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// ApplyDefaults fills empty fields with default values.
//
//nolint:gocyclo // flat list of defaults
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}

	if c.Engine.Driver == "" {
		c.Engine.Driver = DriverRedis
	}
	if c.Engine.Timeouts.Default <= 0 {
		c.Engine.Timeouts.Default = 5 * time.Second
	}

	if c.Queue.Driver == "" {
		c.Queue.Driver = QueueNATS
	}
	if c.Queue.Workers <= 0 {
		c.Queue.Workers = 4
	}
	if c.Queue.Retry.MaxAttempts <= 0 {
		c.Queue.Retry.MaxAttempts = 3
	}
	if c.Queue.Retry.Delay <= 0 {
		c.Queue.Retry.Delay = 5 * time.Second
	}

	if c.Cache.TTL <= 0 {
		c.Cache.TTL = 5 * time.Minute
	}
	if c.Cache.LocalSize < 0 {
		c.Cache.LocalSize = 0
	}

	if c.Federation.DefaultLimit <= 0 {
		c.Federation.DefaultLimit = 10
	}
	if c.Federation.MaxLimit <= 0 {
		c.Federation.MaxLimit = 50
	}
	if c.Federation.PerIndexTimeout <= 0 {
		c.Federation.PerIndexTimeout = 2 * time.Second
	}
	if c.Federation.Concurrency <= 0 {
		c.Federation.Concurrency = 8
	}
	if c.Federation.TimestampField == "" {
		c.Federation.TimestampField = "updated_at"
	}
	for i := range c.Federation.Indexes {
		if c.Federation.Indexes[i].Weight == nil {
			w := 1.0
			c.Federation.Indexes[i].Weight = &w
		}
	}

	if c.Pipeline.ChunkSize <= 0 {
		c.Pipeline.ChunkSize = 100
	}
	if c.Pipeline.BatchSize <= 0 {
		c.Pipeline.BatchSize = 1000
	}
	if c.Pipeline.JobSize <= 0 {
		c.Pipeline.JobSize = 500
	}
	if c.Pipeline.ReconcileAttempts <= 0 {
		c.Pipeline.ReconcileAttempts = 30
	}
	if c.Pipeline.ReconcileInterval <= 0 {
		c.Pipeline.ReconcileInterval = 500 * time.Millisecond
	}
	if c.Pipeline.LockTTL <= 0 {
		c.Pipeline.LockTTL = 30 * time.Second
	}

	if c.Transform.MaxRelationItems <= 0 {
		c.Transform.MaxRelationItems = 10
	}

	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "fedsearch"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}

	switch c.Engine.Driver {
	case DriverRedis:
		if len(c.Database.Addrs) == 0 {
			return fmt.Errorf("database.addrs is required for engine.driver %q", DriverRedis)
		}
	case DriverTypesense:
		if c.Engine.Typesense.URL == "" {
			return fmt.Errorf("engine.typesense.url is required")
		}
		if len(c.Database.Addrs) == 0 {
			return fmt.Errorf("database.addrs is required for engine.driver %q (settings hash)", DriverTypesense)
		}
	case DriverBleve:
	default:
		return fmt.Errorf("engine.driver must be one of redis, typesense, bleve, got %q", c.Engine.Driver)
	}

	switch c.Queue.Driver {
	case QueueNATS:
		if c.Queue.URL == "" {
			return fmt.Errorf("queue.url is required for queue.driver %q", QueueNATS)
		}
	case QueueMemory:
	default:
		return fmt.Errorf("queue.driver must be nats or memory, got %q", c.Queue.Driver)
	}

	if c.Federation.DefaultLimit > c.Federation.MaxLimit {
		return fmt.Errorf("federation.default_limit %d exceeds max_limit %d",
			c.Federation.DefaultLimit, c.Federation.MaxLimit)
	}

	indexes := make(map[string]struct{}, len(c.Mappings))
	sources := make(map[string]struct{}, len(c.Mappings))
	for i, m := range c.Mappings {
		if m.SourceType == "" {
			return fmt.Errorf("mappings[%d].source_type is required", i)
		}
		if _, dup := sources[m.SourceType]; dup {
			return fmt.Errorf("mappings[%d]: duplicate source_type %q", i, m.SourceType)
		}
		sources[m.SourceType] = struct{}{}
		if m.IndexName == "" {
			return fmt.Errorf("mappings[%d].index_name is required", i)
		}
		indexes[m.IndexName] = struct{}{}
	}

	seen := make(map[string]struct{}, len(c.Federation.Indexes))
	for i, fi := range c.Federation.Indexes {
		if fi.Name == "" {
			return fmt.Errorf("federation.indexes[%d].name is required", i)
		}
		if _, dup := seen[fi.Name]; dup {
			return fmt.Errorf("federation.indexes[%d]: duplicate index %q", i, fi.Name)
		}
		seen[fi.Name] = struct{}{}
		if _, ok := indexes[fi.Name]; !ok && len(c.Mappings) > 0 {
			return fmt.Errorf("federation.indexes[%d]: index %q has no mapping", i, fi.Name)
		}
	}

	if c.Tenancy.DefaultTenant != "" && len(c.Tenancy.Tenants) > 0 &&
		!slices.Contains(c.Tenancy.Tenants, c.Tenancy.DefaultTenant) {
		return fmt.Errorf("tenancy.default_tenant %q is not in tenancy.tenants", c.Tenancy.DefaultTenant)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
