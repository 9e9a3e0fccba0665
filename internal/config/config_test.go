package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablegraph/internal/store"
)

func TestDatabaseConfig_DSN(t *testing.T) {
	tests := []struct {
		name     string
		config   DatabaseConfig
		user     string
		passwd   string
		addr     string
		dbName   string
		tlsParam string
	}{
		{
			name:   "discrete fields",
			config: DatabaseConfig{Host: "localhost", Port: 4000, User: "root", Password: "password"},
			user:   "root",
			passwd: "password",
			addr:   "localhost:4000",
		},
		{
			name:   "special characters in password",
			config: DatabaseConfig{Host: "db.example.com", Port: 3306, User: "admin", Password: "p@ss:w0rd!"},
			user:   "admin",
			passwd: "p@ss:w0rd!",
			addr:   "db.example.com:3306",
		},
		{
			name:   "connection string keeps its database",
			config: DatabaseConfig{ConnectionString: "app:secret@tcp(tidb:4000)/app"},
			user:   "app",
			passwd: "secret",
			addr:   "tidb:4000",
			dbName: "app",
		},
		{
			name:     "tls mode applied",
			config:   DatabaseConfig{Host: "localhost", Port: 4000, User: "root", TLS: DatabaseTLSConfig{Mode: "skip-verify"}},
			user:     "root",
			addr:     "localhost:4000",
			tlsParam: "skip-verify",
		},
		{
			name:     "explicit tls parameter wins",
			config:   DatabaseConfig{ConnectionString: "root@tcp(localhost:4000)/?tls=true", TLS: DatabaseTLSConfig{Mode: "off"}},
			user:     "root",
			addr:     "localhost:4000",
			tlsParam: "true",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dsn, err := tt.config.DSN()
			require.NoError(t, err)

			parsed, err := mysql.ParseDSN(dsn)
			require.NoError(t, err)
			assert.Equal(t, tt.user, parsed.User)
			assert.Equal(t, tt.passwd, parsed.Passwd)
			assert.Equal(t, tt.addr, parsed.Addr)
			assert.Equal(t, tt.dbName, parsed.DBName)
			assert.True(t, parsed.ParseTime)
			assert.Equal(t, tt.tlsParam, parsed.TLSConfig)
		})
	}
}

func TestDatabaseConfig_DSNInvalid(t *testing.T) {
	cfg := DatabaseConfig{ConnectionString: "not a dsn"}
	_, err := cfg.DSN()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.dsn")
}

func TestDatabaseConfig_EffectiveDatabases(t *testing.T) {
	t.Run("configured list", func(t *testing.T) {
		cfg := DatabaseConfig{Databases: []string{" app ", "", "analytics"}, ConnectionString: "root@tcp(h:4000)/other"}
		dbs, err := cfg.EffectiveDatabases()
		require.NoError(t, err)
		assert.Equal(t, []string{"app", "analytics"}, dbs)
	})

	t.Run("falls back to DSN database", func(t *testing.T) {
		cfg := DatabaseConfig{ConnectionString: "root@tcp(h:4000)/other"}
		dbs, err := cfg.EffectiveDatabases()
		require.NoError(t, err)
		assert.Equal(t, []string{"other"}, dbs)
	})

	t.Run("nothing configured", func(t *testing.T) {
		cfg := DatabaseConfig{Host: "h", Port: 4000}
		_, err := cfg.EffectiveDatabases()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.databases")
	})
}

func loadWithArgs(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	DefineFlags(fs)
	// Keep an ambient .env out of the test.
	all := append([]string{"--env_file=" + filepath.Join(t.TempDir(), "missing.env")}, args...)
	require.NoError(t, fs.Parse(all))
	return LoadFlags(fs)
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := loadWithArgs(t)
	require.NoError(t, err)

	assert.Equal(t, DriverMySQL, cfg.Database.Driver)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 4000, cfg.Database.Port)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10, cfg.GraphQL.DefaultPageSize)
	assert.Equal(t, 1000, cfg.GraphQL.MaxPageSize)
	assert.Equal(t, 0, cfg.GraphQL.TimeLimitMS)
	assert.Equal(t, 30*time.Second, cfg.Server.SchemaWatch.MinInterval)
	assert.Equal(t, "tablegraph", cfg.Observability.ServiceName)
	assert.Equal(t, []string{"GET", "POST", "OPTIONS"}, cfg.Server.CORSAllowedMethods)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := writeFile(t, "tablegraph.yaml", `
database:
  driver: memory
  fixture_file: fixtures.yaml
  databases: [app, analytics]
graphql:
  auto_camelcase: true
  time_limit_ms: 1500
  num_queries_limit: 20
  tables:
    app:
      repos:
        json_columns: [tags]
        fts_table: repos_fts
        fts_pk: id
server:
  schema_watch:
    enabled: true
    min_interval: 10s
`)

	cfg, err := loadWithArgs(t, "--config", path)
	require.NoError(t, err)

	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.Equal(t, []string{"app", "analytics"}, cfg.Database.Databases)
	assert.True(t, cfg.GraphQL.AutoCamelCase)
	assert.Equal(t, 1500, cfg.GraphQL.TimeLimitMS)
	assert.Equal(t, 20, cfg.GraphQL.NumQueriesLimit)
	assert.Equal(t, store.Override{JSONColumns: []string{"tags"}, FTSTable: "repos_fts", FTSKey: "id"}, cfg.GraphQL.Tables["app"]["repos"])
	assert.True(t, cfg.Server.SchemaWatch.Enabled)
	assert.Equal(t, 10*time.Second, cfg.Server.SchemaWatch.MinInterval)
	assert.Equal(t, 5*time.Minute, cfg.Server.SchemaWatch.MaxInterval)
}

func TestLoad_Precedence(t *testing.T) {
	path := writeFile(t, "tablegraph.yaml", "server:\n  port: 7000\ngraphql:\n  max_page_size: 50\n")
	t.Setenv("TGQL_SERVER_PORT", "9999")
	t.Setenv("TGQL_GRAPHQL_MAX_PAGE_SIZE", "70")
	t.Setenv("TGQL_DATABASE_DATABASES", "app, analytics")

	cfg, err := loadWithArgs(t, "--config", path, "--graphql.max_page_size=90")
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port, "env overrides file")
	assert.Equal(t, 90, cfg.GraphQL.MaxPageSize, "flag overrides env")
	assert.Equal(t, []string{"app", "analytics"}, cfg.Database.Databases)
}

func TestLoad_DotEnv(t *testing.T) {
	envPath := writeFile(t, "test.env", "TGQL_SERVER_PORT=8181\nTGQL_GRAPHQL_NUM_QUERIES_LIMIT=7\n")
	t.Setenv("TGQL_GRAPHQL_NUM_QUERIES_LIMIT", "3")
	t.Cleanup(func() {
		_ = os.Unsetenv("TGQL_SERVER_PORT")
	})

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	DefineFlags(fs)
	require.NoError(t, fs.Parse([]string{"--env_file", envPath}))
	cfg, err := LoadFlags(fs)
	require.NoError(t, err)

	assert.Equal(t, 8181, cfg.Server.Port)
	assert.Equal(t, 3, cfg.GraphQL.NumQueriesLimit, "real environment wins over .env")
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, "tablegraph.yaml", "server:\n  tls_mode: auto\n")

	_, err := loadWithArgs(t, "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tls_mode")
}

func TestLoad_MissingConfigFile(t *testing.T) {
	_, err := loadWithArgs(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_PasswordFile(t *testing.T) {
	secret := writeFile(t, "password", "  s3cret\n")

	cfg, err := loadWithArgs(t, "--database.password_file", secret)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Database.Password)
}

func TestConfig_ExecutorConfig(t *testing.T) {
	cfg := &Config{
		GraphQL: GraphQLConfig{
			AutoCamelCase:     true,
			SingularOverrides: map[string]string{"people": "person"},
			TimeLimitMS:       250,
			NumQueriesLimit:   4,
			DefaultPageSize:   5,
			MaxPageSize:       50,
			Tables: map[string]map[string]store.Override{
				"app": {"repos": {JSONColumns: []string{"tags"}}},
			},
		},
	}
	cfg.SchemaFilters.DenyTables = []string{"secret_*"}

	ec := cfg.ExecutorConfig()
	assert.True(t, ec.Naming.AutoCamelCase)
	assert.Equal(t, "person", ec.Naming.SingularOverrides["people"])
	assert.Equal(t, 250*time.Millisecond, ec.TimeLimit)
	assert.Equal(t, 4, ec.MaxFetches)
	assert.Equal(t, 5, ec.DefaultPageSize)
	assert.Equal(t, 50, ec.MaxPageSize)
	assert.Equal(t, []string{"secret_*"}, ec.Filters.DenyTables)
	assert.Equal(t, []string{"tags"}, ec.Tables["app"]["repos"].JSONColumns)

	ec.Naming.SingularOverrides["data"] = "datum"
	assert.NotContains(t, cfg.GraphQL.SingularOverrides, "data")
}

func TestConfig_Validate(t *testing.T) {
	validConfig := func() *Config {
		return &Config{
			Database: DatabaseConfig{
				Driver:    DriverMySQL,
				Databases: []string{"app"},
				Host:      "localhost",
				Port:      4000,
				User:      "root",
				TLS: DatabaseTLSConfig{
					Mode: "off",
				},
				Pool: PoolConfig{
					MaxOpen: 25,
					MaxIdle: 5,
				},
			},
			Server: ServerConfig{
				Port: 8080,
			},
			GraphQL: GraphQLConfig{
				DefaultPageSize: 10,
				MaxPageSize:     1000,
			},
			Observability: ObservabilityConfig{
				Logging: LoggingConfig{
					Level:  "info",
					Format: "json",
				},
				OTLP: OTLPConfig{
					Protocol:    "grpc",
					Compression: "gzip",
				},
			},
		}
	}

	t.Run("valid config passes validation", func(t *testing.T) {
		result := validConfig().Validate()
		assert.False(t, result.HasErrors())
		assert.Empty(t, result.Errors)
		assert.Empty(t, result.Warnings)
	})

	t.Run("invalid driver", func(t *testing.T) {
		cfg := validConfig()
		cfg.Database.Driver = "sqlite"
		result := cfg.Validate()
		assert.True(t, result.HasErrors())
		assert.Contains(t, result.Error(), "database.driver")
	})

	t.Run("memory driver needs fixture", func(t *testing.T) {
		cfg := validConfig()
		cfg.Database.Driver = DriverMemory
		cfg.Database.Port = 0
		result := cfg.Validate()
		require.Len(t, result.Errors, 1)
		assert.Equal(t, "database.fixture_file", result.Errors[0].Field)

		cfg.Database.FixtureFile = "fixtures.yaml"
		assert.False(t, cfg.Validate().HasErrors())
	})

	t.Run("no databases", func(t *testing.T) {
		cfg := validConfig()
		cfg.Database.Databases = nil
		result := cfg.Validate()
		assert.True(t, result.HasErrors())
		assert.Contains(t, result.Error(), "database.databases")
	})

	t.Run("duplicate database", func(t *testing.T) {
		cfg := validConfig()
		cfg.Database.Databases = []string{"app", "app"}
		result := cfg.Validate()
		assert.True(t, result.HasErrors())
		assert.Contains(t, result.Error(), "listed more than once")
	})

	t.Run("invalid database port", func(t *testing.T) {
		for _, port := range []int{0, 70000} {
			cfg := validConfig()
			cfg.Database.Port = port
			result := cfg.Validate()
			assert.True(t, result.HasErrors())
			assert.Contains(t, result.Error(), "database.port")
		}
	})

	t.Run("invalid server port", func(t *testing.T) {
		cfg := validConfig()
		cfg.Server.Port = -1
		result := cfg.Validate()
		assert.True(t, result.HasErrors())
		assert.Contains(t, result.Error(), "server.port")
	})

	t.Run("invalid TLS mode", func(t *testing.T) {
		cfg := validConfig()
		cfg.Database.TLS.Mode = "invalid"
		result := cfg.Validate()
		assert.True(t, result.HasErrors())
		assert.Contains(t, result.Error(), "database.tls.mode")
	})

	t.Run("valid TLS modes", func(t *testing.T) {
		for _, mode := range []string{"", "off", "skip-verify", "verify-ca", "verify-full"} {
			cfg := validConfig()
			if mode == "verify-ca" || mode == "verify-full" {
				cfg.Database.TLS.CAFile = "/path/to/ca.pem"
			}
			cfg.Database.TLS.Mode = mode
			result := cfg.Validate()
			assert.False(t, result.HasErrors(), "TLS mode %q should be valid", mode)
		}
	})

	t.Run("client cert without key", func(t *testing.T) {
		cfg := validConfig()
		cfg.Database.TLS.CertFile = "/path/to/cert.pem"
		result := cfg.Validate()
		assert.True(t, result.HasErrors())
		assert.Contains(t, result.Error(), "database.tls.cert_file")
	})

	t.Run("page sizes", func(t *testing.T) {
		cfg := validConfig()
		cfg.GraphQL.DefaultPageSize = 2000
		result := cfg.Validate()
		assert.True(t, result.HasErrors())
		assert.Contains(t, result.Error(), "exceeds max_page_size")

		cfg = validConfig()
		cfg.GraphQL.MaxPageSize = 0
		assert.Contains(t, cfg.Validate().Error(), "graphql.max_page_size")
	})

	t.Run("negative limits", func(t *testing.T) {
		cfg := validConfig()
		cfg.GraphQL.TimeLimitMS = -1
		cfg.GraphQL.NumQueriesLimit = -1
		result := cfg.Validate()
		assert.Len(t, result.Errors, 2)
	})

	t.Run("fts_pk without fts_table", func(t *testing.T) {
		cfg := validConfig()
		cfg.GraphQL.Tables = map[string]map[string]store.Override{
			"app": {"repos": {FTSKey: "id"}},
		}
		result := cfg.Validate()
		assert.True(t, result.HasErrors())
		assert.Contains(t, result.Error(), "graphql.tables.app.repos.fts_pk")
	})

	t.Run("schema watch intervals", func(t *testing.T) {
		cfg := validConfig()
		cfg.Server.SchemaWatch = SchemaWatchConfig{Enabled: true, MinInterval: time.Minute, MaxInterval: time.Second}
		result := cfg.Validate()
		assert.True(t, result.HasErrors())
		assert.Contains(t, result.Error(), "server.schema_watch.max_interval")
	})

	t.Run("invalid schema filter glob", func(t *testing.T) {
		cfg := validConfig()
		cfg.SchemaFilters.DenyTables = []string{"[abc"}
		cfg.SchemaFilters.AllowColumns = map[string][]string{"repos": {""}}
		result := cfg.Validate()
		assert.Len(t, result.Errors, 2)
	})

	t.Run("CORS wildcard with credentials", func(t *testing.T) {
		cfg := validConfig()
		cfg.Server.CORSEnabled = true
		cfg.Server.CORSAllowedOrigins = []string{"*"}
		cfg.Server.CORSAllowCredentials = true
		result := cfg.Validate()
		assert.True(t, result.HasErrors())
		assert.Len(t, result.Warnings, 1)
	})

	t.Run("rate limit needs rps and burst", func(t *testing.T) {
		cfg := validConfig()
		cfg.Server.RateLimitEnabled = true
		result := cfg.Validate()
		require.Len(t, result.Errors, 2)
		assert.Equal(t, "server.rate_limit_rps", result.Errors[0].Field)
		assert.Equal(t, "server.rate_limit_burst", result.Errors[1].Field)
	})

	t.Run("server tls modes", func(t *testing.T) {
		cfg := validConfig()
		cfg.Server.TLS.Mode = "file"
		result := cfg.Validate()
		require.Len(t, result.Errors, 1)
		assert.Equal(t, "server.tls", result.Errors[0].Field)

		cfg.Server.TLS = ServerTLSConfig{Mode: "selfsigned"}
		assert.False(t, cfg.Validate().HasErrors())

		cfg.Server.TLS.Mode = "acme"
		assert.Contains(t, cfg.Validate().Error(), "server.tls.mode")
	})

	t.Run("admin reload warns", func(t *testing.T) {
		cfg := validConfig()
		cfg.Server.Admin.SchemaReloadEnabled = true
		result := cfg.Validate()
		assert.False(t, result.HasErrors())
		require.Len(t, result.Warnings, 1)
		assert.Equal(t, "server.admin.schema_reload_enabled", result.Warnings[0].Field)
	})

	t.Run("invalid log level", func(t *testing.T) {
		cfg := validConfig()
		cfg.Observability.Logging.Level = "invalid"
		result := cfg.Validate()
		assert.True(t, result.HasErrors())
		assert.Contains(t, result.Error(), "observability.logging.level")
	})

	t.Run("invalid OTLP http/protobuf endpoint", func(t *testing.T) {
		cfg := validConfig()
		cfg.Observability.OTLP.Protocol = "http/protobuf"
		cfg.Observability.OTLP.Endpoint = "localhost"
		result := cfg.Validate()
		assert.True(t, result.HasErrors())
		assert.Contains(t, result.Error(), "observability.otlp.endpoint")
	})

	t.Run("signal override merges", func(t *testing.T) {
		cfg := validConfig()
		cfg.Observability.OTLP.Endpoint = "collector:4317"
		cfg.Observability.Traces = &OTLPConfig{Protocol: "http/protobuf", Endpoint: "http://traces:4318"}
		assert.False(t, cfg.Validate().HasErrors())

		traces := cfg.Observability.TracesOTLP()
		assert.Equal(t, "http://traces:4318", traces.Endpoint)
		assert.Equal(t, "gzip", traces.Compression)
		assert.Equal(t, "collector:4317", cfg.Observability.LogsOTLP().Endpoint)
	})
}
