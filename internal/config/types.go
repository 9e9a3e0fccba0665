package config

import (
	"maps"
	"time"

	"tablegraph/internal/executor"
	"tablegraph/internal/naming"
	"tablegraph/internal/schemafilter"
	"tablegraph/internal/store"
)

// Config is the fully resolved server configuration.
type Config struct {
	Database      DatabaseConfig      `mapstructure:"database"`
	Server        ServerConfig        `mapstructure:"server"`
	GraphQL       GraphQLConfig       `mapstructure:"graphql"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	SchemaFilters schemafilter.Config `mapstructure:"schema_filters"`
}

// Database drivers.
const (
	DriverMySQL  = "mysql"
	DriverMemory = "memory"
)

// GraphQLConfig shapes the generated schema and bounds each request.
type GraphQLConfig struct {
	AutoCamelCase     bool              `mapstructure:"auto_camelcase"`
	SingularOverrides map[string]string `mapstructure:"singular_overrides"`
	// TimeLimitMS bounds a request's wall time in milliseconds; 0 disables it.
	TimeLimitMS int `mapstructure:"time_limit_ms"`
	// NumQueriesLimit bounds backend fetches per request; 0 disables it.
	NumQueriesLimit int `mapstructure:"num_queries_limit"`
	DefaultPageSize int `mapstructure:"default_page_size"`
	MaxPageSize     int `mapstructure:"max_page_size"`

	// Tables maps database -> table -> per-table options.
	Tables map[string]map[string]store.Override `mapstructure:"tables"`
}

type PoolConfig struct {
	MaxOpen     int           `mapstructure:"max_open"`
	MaxIdle     int           `mapstructure:"max_idle"`
	MaxLifetime time.Duration `mapstructure:"max_lifetime"`
}

// DatabaseTLSConfig secures the MySQL connection. Mode is one of off,
// skip-verify, verify-ca (chain only) or verify-full (chain and hostname).
type DatabaseTLSConfig struct {
	Mode string `mapstructure:"mode"`
	// CAFile must be set for verify-ca and verify-full.
	CAFile   string `mapstructure:"ca_file"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
	// ServerName defaults to the database host.
	ServerName string `mapstructure:"server_name"`
}

// DatabaseConfig selects the table backend and, for mysql, how to reach it.
type DatabaseConfig struct {
	// Driver is "mysql" (MySQL or TiDB over the wire) or "memory" (fixture file).
	Driver string `mapstructure:"driver"`
	// FixtureFile is the YAML fixture loaded by the memory driver.
	FixtureFile string `mapstructure:"fixture_file"`
	// Databases are the schemas exposed at /graphql, in order. The first
	// one is the default database.
	Databases []string `mapstructure:"databases"`

	// ConnectionString is a go-sql-driver/mysql DSN such as
	// user:pass@tcp(host:4000)/?parseTime=true. It takes precedence over the
	// fields below. ConnectionStringFile reads it from disk instead.
	ConnectionString     string `mapstructure:"dsn"`
	ConnectionStringFile string `mapstructure:"dsn_file"`

	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	PasswordFile   string `mapstructure:"password_file"`
	PasswordPrompt bool   `mapstructure:"password_prompt"`

	TLS  DatabaseTLSConfig `mapstructure:"tls"`
	Pool PoolConfig        `mapstructure:"pool"`

	// Startup keeps pinging the server every ConnectionRetryInterval until
	// ConnectionTimeout has passed. A zero timeout pings once.
	ConnectionTimeout       time.Duration `mapstructure:"connection_timeout"`
	ConnectionRetryInterval time.Duration `mapstructure:"connection_retry_interval"`
}

// AdminConfig controls administrative endpoint exposure.
type AdminConfig struct {
	SchemaReloadEnabled bool `mapstructure:"schema_reload_enabled"`
}

// SchemaWatchConfig controls background schema change detection.
type SchemaWatchConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MinInterval time.Duration `mapstructure:"min_interval"`
	MaxInterval time.Duration `mapstructure:"max_interval"`
}

// ServerTLSConfig enables HTTPS on the listener.
type ServerTLSConfig struct {
	Mode     string `mapstructure:"mode"` // off, file, selfsigned
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
	// SelfSignedDir holds the generated pair in selfsigned mode.
	SelfSignedDir   string   `mapstructure:"selfsigned_dir"`
	SelfSignedHosts []string `mapstructure:"selfsigned_hosts"`
}

// ServerConfig configures the HTTP listener and its middleware.
type ServerConfig struct {
	Port                 int               `mapstructure:"port"`
	GraphiQLEnabled      bool              `mapstructure:"graphiql_enabled"`
	Admin                AdminConfig       `mapstructure:"admin"`
	SchemaWatch          SchemaWatchConfig `mapstructure:"schema_watch"`
	TLS                  ServerTLSConfig   `mapstructure:"tls"`
	CORSEnabled          bool              `mapstructure:"cors_enabled"`
	CORSAllowedOrigins   []string          `mapstructure:"cors_allowed_origins"`
	CORSAllowedMethods   []string          `mapstructure:"cors_allowed_methods"`
	CORSAllowedHeaders   []string          `mapstructure:"cors_allowed_headers"`
	CORSExposeHeaders    []string          `mapstructure:"cors_expose_headers"`
	CORSAllowCredentials bool              `mapstructure:"cors_allow_credentials"`
	CORSMaxAge           int               `mapstructure:"cors_max_age"`
	RateLimitEnabled     bool              `mapstructure:"rate_limit_enabled"`
	RateLimitRPS         float64           `mapstructure:"rate_limit_rps"`
	RateLimitBurst       int               `mapstructure:"rate_limit_burst"`
	ReadTimeout          time.Duration     `mapstructure:"read_timeout"`
	WriteTimeout         time.Duration     `mapstructure:"write_timeout"`
	IdleTimeout          time.Duration     `mapstructure:"idle_timeout"`
	ShutdownTimeout      time.Duration     `mapstructure:"shutdown_timeout"`
	HealthCheckTimeout   time.Duration     `mapstructure:"health_check_timeout"`
}

// ExecutorConfig converts the schema and limit settings into the executor's
// per-request configuration.
func (c *Config) ExecutorConfig() executor.Config {
	singular := make(map[string]string, len(c.GraphQL.SingularOverrides))
	for k, v := range c.GraphQL.SingularOverrides {
		singular[k] = v
	}
	return executor.Config{
		Naming: naming.Config{
			AutoCamelCase:     c.GraphQL.AutoCamelCase,
			SingularOverrides: singular,
		},
		Filters:         c.SchemaFilters,
		Tables:          c.GraphQL.Tables,
		DefaultPageSize: c.GraphQL.DefaultPageSize,
		MaxPageSize:     c.GraphQL.MaxPageSize,
		TimeLimit:       time.Duration(c.GraphQL.TimeLimitMS) * time.Millisecond,
		MaxFetches:      c.GraphQL.NumQueriesLimit,
	}
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	// ExportsEnabled also ships records over OTLP.
	ExportsEnabled bool `mapstructure:"exports_enabled"`
}

// ObservabilityConfig covers logs, metrics and traces. The otlp block is
// shared; traces, logs and metrics may override parts of it per signal.
type ObservabilityConfig struct {
	ServiceName         string        `mapstructure:"service_name"`
	ServiceVersion      string        `mapstructure:"service_version"`
	Environment         string        `mapstructure:"environment"`
	MetricsEnabled      bool          `mapstructure:"metrics_enabled"`
	TracingEnabled      bool          `mapstructure:"tracing_enabled"`
	TraceSampleRatio    float64       `mapstructure:"trace_sample_ratio"`
	SQLCommenterEnabled bool          `mapstructure:"sqlcommenter_enabled"`
	Logging             LoggingConfig `mapstructure:"logging"`

	OTLP    OTLPConfig  `mapstructure:"otlp"`
	Traces  *OTLPConfig `mapstructure:"traces,omitempty"`
	Logs    *OTLPConfig `mapstructure:"logs,omitempty"`
	Metrics *OTLPConfig `mapstructure:"metrics,omitempty"`
}

// OTLPConfig configures one OTLP exporter.
type OTLPConfig struct {
	Endpoint          string            `mapstructure:"endpoint"`
	Protocol          string            `mapstructure:"protocol"` // grpc or http/protobuf
	Insecure          bool              `mapstructure:"insecure"`
	TLSCertFile       string            `mapstructure:"tls_cert_file"`
	TLSClientCertFile string            `mapstructure:"tls_client_cert_file"`
	TLSClientKeyFile  string            `mapstructure:"tls_client_key_file"`
	Headers           map[string]string `mapstructure:"headers"`
	Timeout           time.Duration     `mapstructure:"timeout"`
	Compression       string            `mapstructure:"compression"`
	RetryEnabled      bool              `mapstructure:"retry_enabled"`
	RetryMaxAttempts  int               `mapstructure:"retry_max_attempts"`
}

// TracesOTLP is the exporter config for traces: the shared otlp block with
// any observability.traces settings laid over it.
func (c *ObservabilityConfig) TracesOTLP() OTLPConfig { return c.OTLP.overlay(c.Traces) }

// LogsOTLP is the exporter config for logs.
func (c *ObservabilityConfig) LogsOTLP() OTLPConfig { return c.OTLP.overlay(c.Logs) }

// MetricsOTLP is the exporter config for metrics.
func (c *ObservabilityConfig) MetricsOTLP() OTLPConfig { return c.OTLP.overlay(c.Metrics) }

// overlay returns o with the set fields of sig applied. Insecure always comes
// from sig since false cannot be told apart from unset. Headers are merged key
// by key.
func (o OTLPConfig) overlay(sig *OTLPConfig) OTLPConfig {
	if sig == nil {
		return o
	}
	out := o
	out.Endpoint = orDefault(sig.Endpoint, o.Endpoint)
	out.Protocol = orDefault(sig.Protocol, o.Protocol)
	out.Insecure = sig.Insecure
	out.TLSCertFile = orDefault(sig.TLSCertFile, o.TLSCertFile)
	out.TLSClientCertFile = orDefault(sig.TLSClientCertFile, o.TLSClientCertFile)
	out.TLSClientKeyFile = orDefault(sig.TLSClientKeyFile, o.TLSClientKeyFile)
	out.Timeout = orDefault(sig.Timeout, o.Timeout)
	out.Compression = orDefault(sig.Compression, o.Compression)
	if sig.Headers != nil {
		out.Headers = maps.Clone(o.Headers)
		if out.Headers == nil {
			out.Headers = make(map[string]string, len(sig.Headers))
		}
		maps.Copy(out.Headers, sig.Headers)
	}
	if sig.RetryMaxAttempts != 0 {
		out.RetryEnabled = sig.RetryEnabled
		out.RetryMaxAttempts = sig.RetryMaxAttempts
	}
	return out
}

func orDefault[T comparable](v, fallback T) T {
	var zero T
	if v == zero {
		return fallback
	}
	return v
}
