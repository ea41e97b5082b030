package benchmark

import (
	"context"

	"github.com/Octogonapus/DBBenchmark/report"
)

// Invokes the external benchmark tool for one phase and returns its captured
// standard output.
type RunExecutor interface {
	// A non-nil error means the output may be partial or empty (see
	// ErrExecutionTimeout and ErrExecutionFailure). The output is parsed anyway.
	Execute(ctx context.Context, phase report.Phase, iteration int) (string, error)
}

// Adapts a plain function to RunExecutor.
type RunExecutorFunc func(ctx context.Context, phase report.Phase, iteration int) (string, error)

func (f RunExecutorFunc) Execute(ctx context.Context, phase report.Phase, iteration int) (string, error) {
	return f(ctx, phase, iteration)
}

// Everything a single benchmark run needs. Passed by value; nothing about a
// run lives in package state.
type RunConfig struct {
	WorkloadPath string
	BackendName  string
	ClusterSize  int
	Iterations   int
}

func (cfg RunConfig) Validate() error {
	if cfg.BackendName == "" {
		return &ValidationError{Field: "backend", Reason: "must not be empty"}
	}
	if cfg.ClusterSize < 1 {
		return &ValidationError{Field: "node count", Reason: "must be a positive integer"}
	}
	if cfg.Iterations < 1 {
		return &ValidationError{Field: "iteration count", Reason: "must be a positive integer"}
	}
	return nil
}
