package tlscert

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// fileSource serves a key pair from disk and reloads it when either file's
// modification time changes, so certificates can rotate without a restart.
type fileSource struct {
	certFile, keyFile string
	logger            *slog.Logger

	mu      sync.Mutex
	cert    *tls.Certificate
	certMod time.Time
	keyMod  time.Time
}

func newFileSource(certFile, keyFile string, logger *slog.Logger) (*fileSource, error) {
	if certFile == "" || keyFile == "" {
		return nil, fmt.Errorf("cert_file and key_file are required in file mode")
	}
	info, err := os.Stat(keyFile)
	if err != nil {
		return nil, fmt.Errorf("key file: %w", err)
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		return nil, fmt.Errorf("key file %s is readable by group or others (mode %o)", keyFile, perm)
	}

	s := &fileSource{certFile: certFile, keyFile: keyFile, logger: logger}
	if _, err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *fileSource) TLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: MinVersion,
		GetCertificate: func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
			return s.load()
		},
	}
}

func (s *fileSource) Describe() string {
	return "file " + s.certFile
}

// load returns the cached pair, rereading it when the files changed. A failed
// reload keeps serving the previous pair.
func (s *fileSource) load() (*tls.Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	certMod, err1 := modTime(s.certFile)
	keyMod, err2 := modTime(s.keyFile)
	if s.cert != nil && (err1 != nil || err2 != nil || (certMod.Equal(s.certMod) && keyMod.Equal(s.keyMod))) {
		return s.cert, nil
	}

	pair, err := tls.LoadX509KeyPair(s.certFile, s.keyFile)
	if err != nil {
		if s.cert != nil {
			s.logger.Warn("certificate reload failed, keeping previous",
				slog.String("cert_file", s.certFile),
				slog.String("error", err.Error()))
			return s.cert, nil
		}
		return nil, fmt.Errorf("load key pair: %w", err)
	}
	if s.cert != nil {
		s.logger.Info("certificate reloaded", slog.String("cert_file", s.certFile))
	}
	s.cert, s.certMod, s.keyMod = &pair, certMod, keyMod
	return s.cert, nil
}

func modTime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}
