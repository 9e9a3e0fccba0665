// Package tlscert supplies server certificates for HTTPS, either from files
// on disk or from a generated self-signed pair.
package tlscert

import (
	"crypto/tls"
	"fmt"
	"log/slog"
)

// Mode selects where certificates come from.
type Mode string

const (
	ModeOff        Mode = "off"
	ModeFile       Mode = "file"
	ModeSelfSigned Mode = "selfsigned"
)

// MinVersion is the lowest TLS version the server negotiates.
const MinVersion = tls.VersionTLS13

// Config holds certificate settings.
type Config struct {
	Mode Mode

	CertFile string
	KeyFile  string

	// Dir holds the generated pair in self-signed mode.
	Dir   string
	Hosts []string
}

// Enabled reports whether HTTPS is configured.
func (c Config) Enabled() bool {
	return c.Mode != "" && c.Mode != ModeOff
}

// Source produces the server TLS configuration.
type Source interface {
	TLSConfig() *tls.Config
	Describe() string
}

// New builds the source for cfg.Mode. It returns nil, nil when TLS is off.
func New(cfg Config, logger *slog.Logger) (Source, error) {
	switch cfg.Mode {
	case "", ModeOff:
		return nil, nil
	case ModeFile:
		return newFileSource(cfg.CertFile, cfg.KeyFile, logger)
	case ModeSelfSigned:
		return newSelfSigned(cfg.Dir, cfg.Hosts, logger)
	default:
		return nil, fmt.Errorf("unknown TLS mode %q (valid: off, file, selfsigned)", cfg.Mode)
	}
}
