package tlscert

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"slices"
	"time"
)

const (
	selfSignedLifetime = 90 * 24 * time.Hour
	// renewBefore regenerates pairs that would expire soon.
	renewBefore = 7 * 24 * time.Hour
)

var defaultHosts = []string{"localhost", "127.0.0.1", "::1"}

type selfSigned struct {
	path string
	cert tls.Certificate
}

// newSelfSigned reuses the pair in dir when it is current and covers hosts,
// and generates a new one otherwise.
func newSelfSigned(dir string, hosts []string, logger *slog.Logger) (*selfSigned, error) {
	if dir == "" {
		return nil, fmt.Errorf("a certificate directory is required in selfsigned mode")
	}
	if len(hosts) == 0 {
		hosts = defaultHosts
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create certificate directory: %w", err)
	}
	certPath := filepath.Join(dir, "tablegraph.crt")
	keyPath := filepath.Join(dir, "tablegraph.key")

	pair, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil || !usable(pair, hosts, time.Now()) {
		logger.Warn("generating self-signed certificate for development use",
			slog.String("cert_path", certPath),
			slog.Any("hosts", hosts))
		if err := writeSelfSigned(certPath, keyPath, hosts, time.Now()); err != nil {
			return nil, err
		}
		if pair, err = tls.LoadX509KeyPair(certPath, keyPath); err != nil {
			return nil, fmt.Errorf("load generated key pair: %w", err)
		}
	} else {
		logger.Info("using existing self-signed certificate", slog.String("cert_path", certPath))
	}
	return &selfSigned{path: certPath, cert: pair}, nil
}

func (s *selfSigned) TLSConfig() *tls.Config {
	return &tls.Config{MinVersion: MinVersion, Certificates: []tls.Certificate{s.cert}}
}

func (s *selfSigned) Describe() string {
	return "self-signed " + s.path
}

// usable reports whether pair is valid past the renewal window and names
// every host.
func usable(pair tls.Certificate, hosts []string, now time.Time) bool {
	if len(pair.Certificate) == 0 {
		return false
	}
	leaf, err := x509.ParseCertificate(pair.Certificate[0])
	if err != nil {
		return false
	}
	if now.Before(leaf.NotBefore) || now.Add(renewBefore).After(leaf.NotAfter) {
		return false
	}
	for _, host := range hosts {
		if ip := net.ParseIP(host); ip != nil {
			if !slices.ContainsFunc(leaf.IPAddresses, ip.Equal) {
				return false
			}
		} else if !slices.Contains(leaf.DNSNames, host) {
			return false
		}
	}
	return true
}

func writeSelfSigned(certPath, keyPath string, hosts []string, now time.Time) error {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 127))
	if err != nil {
		return fmt.Errorf("generate serial: %w", err)
	}

	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{Organization: []string{"tablegraph development"}, CommonName: hosts[0]},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(selfSignedLifetime),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	for _, host := range hosts {
		if ip := net.ParseIP(host); ip != nil {
			tmpl.IPAddresses = append(tmpl.IPAddresses, ip)
		} else {
			tmpl.DNSNames = append(tmpl.DNSNames, host)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return fmt.Errorf("create certificate: %w", err)
	}
	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return fmt.Errorf("encode key: %w", err)
	}

	if err := os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o644); err != nil {
		return fmt.Errorf("write certificate: %w", err)
	}
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER}), 0o600); err != nil {
		return fmt.Errorf("write key: %w", err)
	}
	return nil
}
