package config

import (
	"fmt"
	"net"
	"net/url"
	"path"
	"slices"
	"strings"

	"tablegraph/internal/schemafilter"
)

// ValidationError is a fatal problem with one configuration field.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning is a setting that works but is probably not what an
// operator wants in production.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult collects everything Validate found.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors reports whether any fatal problem was found.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error joins all errors with "; ", or returns "" when there are none.
func (r *ValidationResult) Error() string {
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func (r *ValidationResult) fail(field, hint, format string, args ...any) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Hint: hint})
}

func (r *ValidationResult) warn(field, hint, msg string) {
	r.Warnings = append(r.Warnings, ValidationWarning{Field: field, Message: msg, Hint: hint})
}

// oneOf fails field unless value is in allowed. The empty string is accepted
// when allowed lists it; the hint only names the non-empty choices.
func (r *ValidationResult) oneOf(field, what, value string, allowed ...string) {
	if slices.Contains(allowed, value) {
		return
	}
	choices := slices.DeleteFunc(slices.Clone(allowed), func(s string) bool { return s == "" })
	r.fail(field, "valid values are: "+strings.Join(choices, ", "), "invalid %s %q", what, value)
}

func (r *ValidationResult) notNegative(field string, value int64) {
	if value < 0 {
		r.fail(field, "", "%s cannot be negative", field[strings.LastIndex(field, ".")+1:])
	}
}

func (r *ValidationResult) port(field string, value int) {
	if value < 1 || value > 65535 {
		r.fail(field, "", "port %d is out of valid range (1-65535)", value)
	}
}

// glob fails field when pattern is blank or malformed and reports whether it
// was usable. Patterns are matched lower-cased, the same way schemafilter
// applies them.
func (r *ValidationResult) glob(field, what, pattern string) bool {
	if strings.TrimSpace(pattern) == "" {
		r.fail(field, "", "%s cannot be empty", what)
		return false
	}
	if _, err := path.Match(strings.ToLower(pattern), "probe"); err != nil {
		r.fail(field, "", "invalid %s %q: %v", what, pattern, err)
		return false
	}
	return true
}

// Validate checks the whole configuration. Errors stop startup; warnings are
// only logged.
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}

	c.Database.validate(result)
	c.Server.validate(result)
	c.GraphQL.validate(result)
	c.Observability.validate(result)
	validateSchemaFilters(result, c.SchemaFilters)

	return result
}

func validateSchemaFilters(result *ValidationResult, filters schemafilter.Config) {
	lists := []struct {
		field    string
		patterns []string
	}{
		{"schema_filters.allow_tables", filters.AllowTables},
		{"schema_filters.deny_tables", filters.DenyTables},
	}
	for _, l := range lists {
		for _, p := range l.patterns {
			result.glob(l.field, "glob pattern", p)
		}
	}

	maps := []struct {
		field   string
		byTable map[string][]string
	}{
		{"schema_filters.allow_columns", filters.AllowColumns},
		{"schema_filters.deny_columns", filters.DenyColumns},
	}
	for _, m := range maps {
		for table, columns := range m.byTable {
			if !result.glob(m.field, "table pattern", table) {
				continue
			}
			for _, col := range columns {
				result.glob(m.field, fmt.Sprintf("column pattern for table pattern %q", table), col)
			}
		}
	}
}

func (d *DatabaseConfig) validate(result *ValidationResult) {
	switch d.Driver {
	case DriverMySQL:
		d.validateMySQL(result)
	case DriverMemory:
		if strings.TrimSpace(d.FixtureFile) == "" {
			result.fail("database.fixture_file", "point database.fixture_file at a YAML fixture",
				"fixture_file is required for the memory driver")
		}
	default:
		result.oneOf("database.driver", "driver", d.Driver, DriverMySQL, DriverMemory)
	}

	seen := make(map[string]bool, len(d.Databases))
	for _, name := range d.Databases {
		name = strings.TrimSpace(name)
		switch {
		case name == "":
			result.fail("database.databases", "", "database name cannot be empty")
		case seen[name]:
			result.fail("database.databases", "", "database %q is listed more than once", name)
		}
		seen[name] = true
	}
}

func (d *DatabaseConfig) validateMySQL(result *ValidationResult) {
	if d.ConnectionString == "" {
		result.port("database.port", d.Port)
	}
	d.TLS.validate(result)

	result.notNegative("database.pool.max_open", int64(d.Pool.MaxOpen))
	result.notNegative("database.pool.max_idle", int64(d.Pool.MaxIdle))
	if d.Pool.MaxOpen > 0 && d.Pool.MaxIdle > d.Pool.MaxOpen {
		result.warn("database.pool.max_idle", "idle connections will be limited to max_open",
			"max_idle is greater than max_open")
	}

	result.notNegative("database.connection_timeout", int64(d.ConnectionTimeout))
	result.notNegative("database.connection_retry_interval", int64(d.ConnectionRetryInterval))
	if d.ConnectionTimeout > 0 {
		switch {
		case d.ConnectionRetryInterval == 0:
			result.fail("database.connection_retry_interval",
				"set a retry interval such as 2s, or set connection_timeout to 0 to disable retries",
				"connection_retry_interval must be greater than 0 when connection_timeout is set")
		case d.ConnectionRetryInterval > d.ConnectionTimeout:
			result.warn("database.connection_retry_interval", "only one connection attempt will be made",
				"connection_retry_interval is greater than connection_timeout")
		}
	}

	if _, err := d.EffectiveDatabases(); err != nil {
		field := "database.databases"
		if strings.HasPrefix(err.Error(), "database.dsn") {
			field = "database.dsn"
		}
		result.fail(field, "list the schemas to expose in database.databases", "%s", err.Error())
	}
}

func (t *DatabaseTLSConfig) validate(result *ValidationResult) {
	result.oneOf("database.tls.mode", "TLS mode", t.Mode, "", "off", "skip-verify", "verify-ca", "verify-full")

	switch t.Mode {
	case "verify-ca", "verify-full":
		if t.CAFile == "" {
			result.fail("database.tls.ca_file", "set ca_file to specify the CA certificate",
				"CA file is required for %s mode", t.Mode)
		}
	case "skip-verify":
		result.warn("database.tls.mode", "use verify-ca or verify-full in production",
			"skip-verify mode does not verify server certificates")
	}

	if (t.CertFile == "") != (t.KeyFile == "") {
		result.fail("database.tls.cert_file", "provide both cert_file and key_file, or neither",
			"client certificates need both cert_file and key_file")
	}
}

func (s *ServerConfig) validate(result *ValidationResult) {
	result.port("server.port", s.Port)

	result.oneOf("server.tls.mode", "TLS mode", s.TLS.Mode, "", "off", "file", "selfsigned")
	if s.TLS.Mode == "file" && (s.TLS.CertFile == "" || s.TLS.KeyFile == "") {
		result.fail("server.tls", "", "cert_file and key_file are required when tls.mode is file")
	}

	if w := s.SchemaWatch; w.Enabled {
		if w.MinInterval <= 0 {
			result.fail("server.schema_watch.min_interval", "",
				"min_interval must be greater than 0 when schema watching is enabled")
		}
		if w.MaxInterval < w.MinInterval {
			result.fail("server.schema_watch.max_interval", "", "max_interval cannot be less than min_interval")
		}
	}

	if s.CORSEnabled {
		s.validateCORS(result)
	}

	if s.RateLimitEnabled {
		if s.RateLimitRPS <= 0 {
			result.fail("server.rate_limit_rps", "", "rate_limit_rps must be greater than 0 when rate limiting is enabled")
		}
		if s.RateLimitBurst < 1 {
			result.fail("server.rate_limit_burst", "", "rate_limit_burst must be at least 1 when rate limiting is enabled")
		}
	}

	if s.Admin.SchemaReloadEnabled {
		result.warn("server.admin.schema_reload_enabled", "expose the admin endpoint only on trusted networks",
			"/admin/reload-schema is served without authentication")
	}
}

func (s *ServerConfig) validateCORS(result *ValidationResult) {
	const field = "server.cors_allowed_origins"
	if len(s.CORSAllowedOrigins) == 0 {
		result.fail(field, "set cors_allowed_origins or disable CORS", "CORS enabled but no allowed origins configured")
		return
	}
	wildcard := slices.ContainsFunc(s.CORSAllowedOrigins, func(o string) bool {
		return strings.TrimSpace(o) == "*"
	})
	if !wildcard {
		return
	}
	if s.CORSAllowCredentials {
		result.fail(field, "list explicit origins when credentials are allowed",
			"wildcard origin (*) cannot be used with credentials")
	}
	result.warn(field, "list explicit origins in production", "CORS wildcard origin enabled")
}

func (g *GraphQLConfig) validate(result *ValidationResult) {
	if g.DefaultPageSize < 1 {
		result.fail("graphql.default_page_size", "", "default_page_size must be at least 1")
	}
	if g.MaxPageSize < 1 {
		result.fail("graphql.max_page_size", "", "max_page_size must be at least 1")
	} else if g.DefaultPageSize > g.MaxPageSize {
		result.fail("graphql.default_page_size", "",
			"default_page_size %d exceeds max_page_size %d", g.DefaultPageSize, g.MaxPageSize)
	}
	result.notNegative("graphql.time_limit_ms", int64(g.TimeLimitMS))
	result.notNegative("graphql.num_queries_limit", int64(g.NumQueriesLimit))

	for plural, singular := range g.SingularOverrides {
		if strings.TrimSpace(plural) == "" || strings.TrimSpace(singular) == "" {
			result.fail("graphql.singular_overrides", "", "override %q -> %q cannot have an empty side", plural, singular)
		}
	}

	for database, tables := range g.Tables {
		for table, override := range tables {
			prefix := "graphql.tables." + database + "." + table
			if override.FTSKey != "" && override.FTSTable == "" {
				result.fail(prefix+".fts_pk", "", "fts_pk requires fts_table")
			}
			if slices.ContainsFunc(override.JSONColumns, func(c string) bool { return strings.TrimSpace(c) == "" }) {
				result.fail(prefix+".json_columns", "", "column name cannot be empty")
			}
		}
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	result.oneOf("observability.logging.level", "log level", o.Logging.Level, "debug", "info", "warn", "error")
	result.oneOf("observability.logging.format", "log format", o.Logging.Format, "json", "text")

	o.OTLP.validate("observability.otlp", result)
	signals := map[string]*OTLPConfig{
		"observability.traces":  o.Traces,
		"observability.logs":    o.Logs,
		"observability.metrics": o.Metrics,
	}
	for prefix, signal := range signals {
		if signal != nil {
			signal.validate(prefix, result)
		}
	}
}

func (o *OTLPConfig) validate(prefix string, result *ValidationResult) {
	result.oneOf(prefix+".protocol", "OTLP protocol", o.Protocol, "", "grpc", "http/protobuf")
	if o.Protocol == "http/protobuf" && !validOTLPEndpoint(o.Endpoint) {
		result.fail(prefix+".endpoint", "use host:port or a full URL",
			"invalid OTLP endpoint %q for http/protobuf", o.Endpoint)
	}
	result.oneOf(prefix+".compression", "OTLP compression", o.Compression, "", "none", "gzip")
	result.notNegative(prefix+".retry_max_attempts", int64(o.RetryMaxAttempts))
}

// validOTLPEndpoint accepts host:port or an absolute URL with a host.
func validOTLPEndpoint(endpoint string) bool {
	if strings.Contains(endpoint, "://") {
		u, err := url.Parse(endpoint)
		return err == nil && u.Host != ""
	}
	_, _, err := net.SplitHostPort(endpoint)
	return endpoint != "" && err == nil
}
