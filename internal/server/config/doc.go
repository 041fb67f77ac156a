// Package config provides the corral-server configuration.
//
//   - spec.go: ServerConfig struct definition
//   - default.go: default values
//   - verify.go: validation before the server starts
//   - sanitize.go: a copy safe to log
//   - engine.go: conversion into engine.Config and bind specs
//
// Configuration is loaded via internal/infra/confloader from a YAML file,
// CORRAL_ environment variables and command-line flags.
package config
