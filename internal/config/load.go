package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

// EnvPrefix prefixes every environment variable, e.g. TGQL_DATABASE_PORT.
const EnvPrefix = "TGQL"

// Load reads the configuration for the process command line. Later sources
// win: defaults, the config file, the environment (after .env), flags, and
// finally secrets read from files or the terminal.
func Load() (*Config, error) {
	fs := pflag.CommandLine
	if fs.Lookup("config") == nil {
		DefineFlags(fs)
	}
	if !fs.Parsed() {
		if err := fs.Parse(os.Args[1:]); err != nil {
			return nil, err
		}
	}
	return LoadFlags(fs)
}

// LoadFlags loads configuration using an already parsed flag set that was
// prepared with DefineFlags.
func LoadFlags(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// .env never overrides variables that are already set.
	envFile, _ := fs.GetString("env_file")
	if err := loadDotEnv(envFile); err != nil {
		return nil, err
	}

	cfgPath, _ := fs.GetString("config")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.SetConfigName("tablegraph")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/tablegraph/")
		v.AddConfigPath("$HOME/.tablegraph")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		if cfgPath != "" {
			return nil, fmt.Errorf("failed to read config file %q: %w", cfgPath, err)
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// database.pool.max_open is read from TGQL_DATABASE_POOL_MAX_OPEN.
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	bindChangedFlagsToViper(v, fs)

	if v.GetString("database.dsn") == "" && v.GetString("database.dsn_file") != "" {
		dsn, err := readSecretFile(v.GetString("database.dsn_file"))
		if err != nil {
			return nil, fmt.Errorf("failed to read database DSN file: %w", err)
		}
		v.Set("database.dsn", dsn)
	}
	if v.GetString("database.password") == "" && v.GetString("database.password_file") != "" {
		pwd, err := readSecretFile(v.GetString("database.password_file"))
		if err != nil {
			return nil, fmt.Errorf("failed to read database password file: %w", err)
		}
		v.Set("database.password", pwd)
	}
	if v.GetString("database.password") == "" && v.GetBool("database.password_prompt") {
		pwd, err := promptPassword()
		if err != nil {
			return nil, fmt.Errorf("failed to read password: %w", err)
		}
		v.Set("database.password", pwd)
	}

	// Unknown keys are an error.
	var cfg Config
	if err := v.UnmarshalExact(
		&cfg,
		viper.DecodeHook(
			mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				stringToStringSliceHookFunc(","),
			),
		),
	); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// loadDotEnv exports the variables of path that are not already set. A
// missing file is not an error.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load env file %q: %w", path, err)
	}
	return nil
}

// bindChangedFlagsToViper sets every flag the user passed so it wins over
// the environment and the file. Untouched flags are left out entirely.
func bindChangedFlagsToViper(v *viper.Viper, fs *pflag.FlagSet) {
	fs.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "config", "env_file", "version", "print-sdl":
			return
		}
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			v.Set(f.Name, sv.GetSlice())
			return
		}
		v.Set(f.Name, f.Value.String())
	})
}

// option is one configuration key. def is the viper default and also fixes
// the flag type; flags are registered with zero values so only flags the user
// actually passed reach viper. Keys without a usage get no flag, and flagOnly
// keys get no default so an unset signal block stays nil.
type option struct {
	key      string
	def      any
	usage    string
	flagOnly bool
}

var options = []option{
	{key: "database.driver", def: DriverMySQL, usage: "Table backend (mysql, memory)"},
	{key: "database.fixture_file", def: "", usage: "YAML fixture file for the memory driver"},
	{key: "database.databases", def: []string{}, usage: "Databases to expose; the first is the default (comma-separated or repeated)"},
	{key: "database.dsn", def: "", usage: "Complete MySQL DSN (user:pass@tcp(host:port)/)"},
	{key: "database.dsn_file", def: "", usage: "File holding the DSN (@- reads stdin)"},
	{key: "database.host", def: "localhost", usage: "Database host"},
	{key: "database.port", def: 4000, usage: "Database port"},
	{key: "database.user", def: "root", usage: "Database user"},
	{key: "database.password", def: "", usage: "Database password"},
	{key: "database.password_file", def: "", usage: "File holding the password (@- reads stdin)"},
	{key: "database.password_prompt", def: false, usage: "Read the password from the terminal"},
	{key: "database.tls.mode", def: "", usage: "TLS mode (off, skip-verify, verify-ca, verify-full)"},
	{key: "database.tls.ca_file", def: "", usage: "CA bundle used to verify the server"},
	{key: "database.tls.cert_file", def: "", usage: "Client certificate"},
	{key: "database.tls.key_file", def: "", usage: "Client private key"},
	{key: "database.tls.server_name", def: "", usage: "Expected server name, defaults to the host"},
	{key: "database.pool.max_open", def: 25, usage: "Maximum open connections"},
	{key: "database.pool.max_idle", def: 5, usage: "Maximum idle connections"},
	{key: "database.pool.max_lifetime", def: 5 * time.Minute, usage: "Maximum connection lifetime"},
	{key: "database.connection_timeout", def: 60 * time.Second, usage: "How long startup waits for the database (0 tries once)"},
	{key: "database.connection_retry_interval", def: 2 * time.Second, usage: "First delay between startup connection attempts"},

	{key: "graphql.auto_camelcase", def: false, usage: "Expose snake_case names as camelCase"},
	{key: "graphql.singular_overrides", def: map[string]string{}},
	{key: "graphql.time_limit_ms", def: 0, usage: "Per-request time budget in milliseconds (0 = unlimited)"},
	{key: "graphql.num_queries_limit", def: 0, usage: "Per-request backend fetch budget (0 = unlimited)"},
	{key: "graphql.default_page_size", def: 10, usage: "Page size when first is omitted"},
	{key: "graphql.max_page_size", def: 1000, usage: "Largest accepted first argument"},
	{key: "graphql.tables", def: map[string]any{}},

	{key: "server.port", def: 8080, usage: "HTTP listen port"},
	{key: "server.graphiql_enabled", def: false, usage: "Serve GraphiQL to browsers on /graphql"},
	{key: "server.admin.schema_reload_enabled", def: false, usage: "Serve POST /admin/reload-schema"},
	{key: "server.schema_watch.enabled", def: false, usage: "Recompile schemas when table structure changes"},
	{key: "server.schema_watch.min_interval", def: 30 * time.Second, usage: "Shortest delay between structure checks"},
	{key: "server.schema_watch.max_interval", def: 5 * time.Minute, usage: "Longest delay between structure checks"},
	{key: "server.tls.mode", def: "off", usage: "HTTPS certificate source (off, file, selfsigned)"},
	{key: "server.tls.cert_file", def: "", usage: "Server certificate for file mode"},
	{key: "server.tls.key_file", def: "", usage: "Server private key for file mode"},
	{key: "server.tls.selfsigned_dir", def: ".tablegraph/certs", usage: "Directory for the generated self-signed pair"},
	{key: "server.tls.selfsigned_hosts", def: []string{"localhost", "127.0.0.1", "::1"}, usage: "Hosts named by the self-signed certificate"},
	{key: "server.cors_enabled", def: false, usage: "Answer CORS requests"},
	{key: "server.cors_allowed_origins", def: []string{}, usage: "Allowed origins"},
	{key: "server.cors_allowed_methods", def: []string{"GET", "POST", "OPTIONS"}, usage: "Allowed methods"},
	{key: "server.cors_allowed_headers", def: []string{"Content-Type", "Accept"}, usage: "Allowed request headers"},
	{key: "server.cors_expose_headers", def: []string{}, usage: "Response headers visible to scripts"},
	{key: "server.cors_allow_credentials", def: false, usage: "Allow credentialed CORS requests"},
	{key: "server.cors_max_age", def: 86400, usage: "Preflight cache lifetime in seconds"},
	{key: "server.rate_limit_enabled", def: false, usage: "Enable the global request rate limit"},
	{key: "server.rate_limit_rps", def: 50.0, usage: "Sustained requests per second"},
	{key: "server.rate_limit_burst", def: 100, usage: "Requests allowed in a burst"},
	{key: "server.read_timeout", def: 15 * time.Second, usage: "HTTP read timeout"},
	{key: "server.write_timeout", def: 15 * time.Second, usage: "HTTP write timeout"},
	{key: "server.idle_timeout", def: 60 * time.Second, usage: "HTTP keep-alive idle timeout"},
	{key: "server.shutdown_timeout", def: 30 * time.Second, usage: "Grace period for in-flight requests on shutdown"},
	{key: "server.health_check_timeout", def: 2 * time.Second, usage: "Deadline for the /health database ping"},

	{key: "schema_filters.allow_tables", def: []string{}, usage: "Table glob patterns to expose"},
	{key: "schema_filters.deny_tables", def: []string{}, usage: "Table glob patterns to hide"},
	{key: "schema_filters.skip_views", def: false, usage: "Hide views"},
	{key: "schema_filters.allow_columns", def: map[string][]string{}},
	{key: "schema_filters.deny_columns", def: map[string][]string{}},

	{key: "observability.service_name", def: "tablegraph", usage: "service.name resource attribute"},
	{key: "observability.service_version", def: "", usage: "service.version resource attribute"},
	{key: "observability.environment", def: "development", usage: "deployment.environment resource attribute"},
	{key: "observability.metrics_enabled", def: true, usage: "Serve Prometheus metrics on /metrics"},
	{key: "observability.tracing_enabled", def: false, usage: "Export traces over OTLP"},
	{key: "observability.trace_sample_ratio", def: 1.0, usage: "Trace sampling ratio from 0.0 to 1.0"},
	{key: "observability.sqlcommenter_enabled", def: true, usage: "Append trace context comments to SQL"},
	{key: "observability.logging.level", def: "info", usage: "Log level (debug, info, warn, error)"},
	{key: "observability.logging.format", def: "json", usage: "Log format (json, text)"},
	{key: "observability.logging.exports_enabled", def: false, usage: "Also export logs over OTLP"},
	{key: "observability.otlp.endpoint", def: "localhost:4317", usage: "OTLP endpoint shared by all signals"},
	{key: "observability.otlp.protocol", def: "grpc", usage: "OTLP protocol (grpc, http/protobuf)"},
	{key: "observability.otlp.insecure", def: false, usage: "Export without TLS"},
	{key: "observability.otlp.tls_cert_file", def: "", usage: "CA used to verify the collector"},
	{key: "observability.otlp.tls_client_cert_file", def: "", usage: "Client certificate for the collector"},
	{key: "observability.otlp.tls_client_key_file", def: "", usage: "Client key for the collector"},
	{key: "observability.otlp.timeout", def: 10 * time.Second, usage: "Export timeout"},
	{key: "observability.otlp.compression", def: "gzip", usage: "OTLP compression (none, gzip)"},
	{key: "observability.otlp.retry_enabled", def: true, usage: "Retry transient export failures"},
	{key: "observability.otlp.retry_max_attempts", def: 3, usage: "Export attempts before giving up"},

	{key: "observability.traces.endpoint", def: "", usage: "OTLP endpoint for traces", flagOnly: true},
	{key: "observability.traces.protocol", def: "", usage: "OTLP protocol for traces", flagOnly: true},
	{key: "observability.traces.insecure", def: false, usage: "Export traces without TLS", flagOnly: true},
	{key: "observability.traces.timeout", def: time.Duration(0), usage: "Trace export timeout", flagOnly: true},
	{key: "observability.logs.endpoint", def: "", usage: "OTLP endpoint for logs", flagOnly: true},
	{key: "observability.logs.protocol", def: "", usage: "OTLP protocol for logs", flagOnly: true},
	{key: "observability.logs.insecure", def: false, usage: "Export logs without TLS", flagOnly: true},
	{key: "observability.logs.timeout", def: time.Duration(0), usage: "Log export timeout", flagOnly: true},
	{key: "observability.metrics.endpoint", def: "", usage: "OTLP endpoint for metrics", flagOnly: true},
	{key: "observability.metrics.insecure", def: false, usage: "Export metrics without TLS", flagOnly: true},
	{key: "observability.metrics.timeout", def: time.Duration(0), usage: "Metric export timeout", flagOnly: true},
}

// DefineFlags registers a flag for every option on fs, plus --config and
// --env_file.
func DefineFlags(fs *pflag.FlagSet) {
	for _, o := range options {
		if o.usage == "" {
			continue
		}
		switch o.def.(type) {
		case string:
			fs.String(o.key, "", o.usage)
		case int:
			fs.Int(o.key, 0, o.usage)
		case bool:
			fs.Bool(o.key, false, o.usage)
		case float64:
			fs.Float64(o.key, 0, o.usage)
		case time.Duration:
			fs.Duration(o.key, 0, o.usage)
		case []string:
			fs.StringSlice(o.key, nil, o.usage)
		default:
			panic(fmt.Sprintf("config: no flag type for option %s (%T)", o.key, o.def))
		}
	}
	fs.StringP("config", "c", "", "Config file path")
	fs.String("env_file", ".env", "Dotenv file loaded before reading the environment")
}

func setDefaults(v *viper.Viper) {
	for _, o := range options {
		if !o.flagOnly {
			v.SetDefault(o.key, o.def)
		}
	}
}

// promptPassword prompts the user for a password without echoing to terminal.
func promptPassword() (string, error) {
	fmt.Print("Enter database password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(bytePassword), nil
}

// readSecretFile reads a trimmed secret from path, or from stdin for "@-".
func readSecretFile(path string) (string, error) {
	var data []byte
	var err error

	if path == "@-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func stringToStringSliceHookFunc(sep string) mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf([]string{}) {
			return data, nil
		}

		raw := strings.TrimSpace(data.(string))
		if raw == "" {
			return []string{}, nil
		}

		parts := strings.Split(raw, sep)
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	}
}
