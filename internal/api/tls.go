package api

import (
	"crypto/tls"
	"fmt"
	"os"
)

// TLSConfig holds TLS certificate paths loaded from environment variables.
type TLSConfig struct {
	CertFile string
	KeyFile  string
}

// TLSFromEnv reads ADVENTURE_TLS_CERT and ADVENTURE_TLS_KEY. It returns nil
// unless both are set.
func TLSFromEnv() *TLSConfig {
	certFile := os.Getenv("ADVENTURE_TLS_CERT")
	keyFile := os.Getenv("ADVENTURE_TLS_KEY")
	if certFile == "" || keyFile == "" {
		return nil
	}
	return &TLSConfig{CertFile: certFile, KeyFile: keyFile}
}

// Load reads the key pair. A nil config loads nothing.
func (c *TLSConfig) Load() (*tls.Config, error) {
	if c == nil {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS certificate: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
