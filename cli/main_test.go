package main

import (
	"testing"

	benchmarkorchestrator "github.com/Octogonapus/DBBenchmark/benchmark_orchestrator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyPositionalArgs(t *testing.T) {
	bench := &benchmarkorchestrator.BenchmarkConfig{Iterations: 1}
	require.NoError(t, applyPositionalArgs(bench, []string{"cassandra", "3", "workloads/workloada", "5", "--keep-alive"}))
	assert.Equal(t, &benchmarkorchestrator.BenchmarkConfig{
		Backend:      "cassandra",
		NodeCount:    3,
		WorkloadPath: "workloads/workloada",
		Iterations:   5,
		KeepAlive:    true,
	}, bench)
}

func TestApplyPositionalArgsKeepsFlags(t *testing.T) {
	bench := &benchmarkorchestrator.BenchmarkConfig{Backend: "redis", NodeCount: 1, Iterations: 2}
	require.NoError(t, applyPositionalArgs(bench, nil))
	assert.Equal(t, "redis", bench.Backend)

	require.NoError(t, applyPositionalArgs(bench, []string{"mongodb", "2", "w"}))
	assert.Equal(t, 2, bench.Iterations)
}

func TestApplyPositionalArgsErrors(t *testing.T) {
	for _, args := range [][]string{
		{"redis"},
		{"redis", "three", "w"},
		{"redis", "3", "w", "many"},
		{"redis", "3", "w", "1", "extra"},
	} {
		assert.Error(t, applyPositionalArgs(&benchmarkorchestrator.BenchmarkConfig{}, args), args)
	}
}
