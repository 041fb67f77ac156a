package config

import (
	"path/filepath"
	"slices"
)

// Sanitize returns a copy of the config with private key locations masked.
// The original is not modified.
func Sanitize(cfg *ServerConfig) *ServerConfig {
	sanitized := *cfg
	sanitized.Server.Binds = slices.Clone(cfg.Server.Binds)
	for i := range sanitized.Server.Binds {
		b := &sanitized.Server.Binds[i]
		if b.TLSKeyFile != "" {
			b.TLSKeyFile = maskPath(b.TLSKeyFile)
		}
	}
	return &sanitized
}

// maskPath keeps only the file name.
func maskPath(p string) string {
	return filepath.Join("****", filepath.Base(p))
}
