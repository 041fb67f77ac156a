// Package benchmark provides throughput benchmarks for the corral engine.
//
// Run benchmarks with:
//
//	go test -bench=. -benchmem ./internal/tests/benchmark/...
//
// Run one worker count only:
//
//	go test -bench='BenchmarkKeepAlive/workers=4' -benchtime=10s ./internal/tests/benchmark/...
//
// Compare results:
//
//	benchstat old.txt new.txt
package benchmark
