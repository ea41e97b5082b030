package benchmarkorchestrator

import (
	"context"

	"github.com/Octogonapus/DBBenchmark/report"
)

// What to benchmark. Fixed for the lifetime of an orchestrator.
type BenchmarkConfig struct {
	Backend      string
	NodeCount    int
	WorkloadPath string
	Iterations   int
	KeepAlive    bool // leave the containers running after TearDown
}

// Runs a benchmark against a database cluster it provisions itself.
type BenchmarkOrchestrator interface {
	// Provision the cluster and wait for it to become ready.
	SetUp(ctx context.Context) error

	// Run the load phase and every run iteration, then save the report.
	RunBenchmark(ctx context.Context) (*report.BenchmarkReport, error)

	// Tear down the environment. Safe to call after a failed SetUp.
	TearDown(ctx context.Context) error
}
