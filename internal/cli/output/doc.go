// Package output renders corral-cli results.
//
//   - formatter.go: Formatter interface and factory
//   - table.go: aligned tables for structs and slices of structs
//   - json.go, yaml.go: machine-readable output
//   - spinner.go: animation while a command waits on the server
package output
