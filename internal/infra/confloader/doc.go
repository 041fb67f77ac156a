// Package confloader layers configuration sources with koanf.
//
// Priority, highest first:
//
//  1. Command-line flags (LoadMap)
//  2. Environment variables (CORRAL_ prefix)
//  3. The YAML configuration file
//  4. Defaults already present in the target struct
//
// Environment keys separate sections with a double underscore so that key
// names may keep their own underscores:
//
//	CORRAL_SERVER__SHUTDOWN_TIMEOUT=10s  ->  server.shutdown_timeout
//
// Watcher reports changes to the configuration file; the server uses it to
// apply the log level without a restart.
package confloader
