package tlsroots

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

var (
	// ErrNoCertsFound is returned when a CA file holds no certificate.
	ErrNoCertsFound = errors.New("tlsroots: no certificates found in PEM file")

	// ErrMissingKeyPair is returned when only one of cert and key is set.
	ErrMissingKeyPair = errors.New("tlsroots: certificate and key must both be set")
)

// ServerTLSConfig builds the server side configuration of a TLS bind.
// With clientCAFile set, clients must present a certificate signed by one
// of its CAs.
func ServerTLSConfig(certFile, keyFile, clientCAFile string) (*tls.Config, error) {
	if certFile == "" || keyFile == "" {
		return nil, ErrMissingKeyPair
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("tlsroots: load key pair %s: %w", certFile, err)
	}

	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	if clientCAFile != "" {
		pool, err := LoadCertPool(clientCAFile)
		if err != nil {
			return nil, err
		}
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return cfg, nil
}

// LoadCertPool reads every certificate of a PEM file into a new pool.
func LoadCertPool(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tlsroots: read CA file %s: %w", path, err)
	}
	pool := x509.NewCertPool()
	n, err := appendPEM(pool, data)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrNoCertsFound
	}
	return pool, nil
}

func appendPEM(pool *x509.CertPool, data []byte) (int, error) {
	var added int
	for len(data) > 0 {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return added, fmt.Errorf("tlsroots: parse certificate: %w", err)
		}
		pool.AddCert(cert)
		added++
	}
	return added, nil
}
