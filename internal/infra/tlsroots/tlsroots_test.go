package tlsroots

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeTestPair writes a self-signed pair and returns its serial number.
func writeTestPair(t *testing.T, certFile, keyFile string) *big.Int {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		t.Fatal(err)
	}
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "corral.test"},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		DNSNames:              []string{"localhost", "corral.test"},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("CreateCertificate() error = %v", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600); err != nil {
		t.Fatal(err)
	}
	return serial
}

func testPaths(t *testing.T) (string, string) {
	dir := t.TempDir()
	return filepath.Join(dir, "server.crt"), filepath.Join(dir, "server.key")
}

func TestServerTLSConfig(t *testing.T) {
	certFile, keyFile := testPaths(t)
	writeTestPair(t, certFile, keyFile)

	cfg, err := ServerTLSConfig(certFile, keyFile, "")
	if err != nil {
		t.Fatalf("ServerTLSConfig() error = %v", err)
	}
	if len(cfg.Certificates) != 1 || cfg.MinVersion != tls.VersionTLS12 {
		t.Errorf("config = %+v", cfg)
	}
	if cfg.ClientAuth != tls.NoClientCert {
		t.Errorf("ClientAuth = %v without a CA file", cfg.ClientAuth)
	}

	mtls, err := ServerTLSConfig(certFile, keyFile, certFile)
	if err != nil {
		t.Fatalf("ServerTLSConfig(mTLS) error = %v", err)
	}
	if mtls.ClientCAs == nil || mtls.ClientAuth != tls.RequireAndVerifyClientCert {
		t.Errorf("mTLS not configured: %+v", mtls)
	}
}

func TestServerTLSConfig_Errors(t *testing.T) {
	certFile, keyFile := testPaths(t)
	writeTestPair(t, certFile, keyFile)
	otherCert, otherKey := testPaths(t)
	writeTestPair(t, otherCert, otherKey)

	tests := []struct {
		name              string
		cert, key, caFile string
		wantErr           error
	}{
		{name: "missing key", cert: certFile, wantErr: ErrMissingKeyPair},
		{name: "mismatched pair", cert: certFile, key: otherKey},
		{name: "unreadable cert", cert: certFile + ".gone", key: keyFile},
		{name: "CA without certs", cert: certFile, key: keyFile, caFile: keyFile, wantErr: ErrNoCertsFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ServerTLSConfig(tt.cert, tt.key, tt.caFile)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestWatcher_ReloadOnChange(t *testing.T) {
	certFile, keyFile := testPaths(t)
	first := writeTestPair(t, certFile, keyFile)

	w, err := NewWatcher(certFile, keyFile,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithDebounce(50*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	cfg := &tls.Config{Certificates: []tls.Certificate{{}}}
	w.Apply(cfg)
	if cfg.Certificates != nil || cfg.GetCertificate == nil {
		t.Fatal("Apply did not install GetCertificate")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run() error = %v", err)
		}
	}()
	time.Sleep(100 * time.Millisecond)

	second := writeTestPair(t, certFile, keyFile)
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		cert, _ := cfg.GetCertificate(&tls.ClientHelloInfo{})
		leaf, err := x509.ParseCertificate(cert.Certificate[0])
		if err == nil && leaf.SerialNumber.Cmp(second) == 0 {
			return
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatalf("certificate not reloaded: still serving serial %v", first)
}

func TestNewWatcher_InvalidFiles(t *testing.T) {
	certFile, keyFile := testPaths(t)
	if _, err := NewWatcher(certFile, keyFile); err == nil {
		t.Fatal("NewWatcher() accepted missing files")
	}
}
