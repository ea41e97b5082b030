package benchmark

import (
	"context"
	"log/slog"

	"github.com/Octogonapus/DBBenchmark/report"
	"github.com/Octogonapus/DBBenchmark/stats"
)

// RunBenchmark executes the load phase once and then cfg.Iterations run
// phases, strictly one after another, and returns a report with aggregated
// run statistics. Executor failures degrade the affected record but never stop
// the run; only invalid input is fatal, and it is rejected before any phase.
func RunBenchmark(ctx context.Context, cfg RunConfig, executor RunExecutor) (*report.BenchmarkReport, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	if executor == nil {
		return nil, &ValidationError{Field: "executor", Reason: "must not be nil"}
	}
	workload, err := LoadWorkload(cfg.WorkloadPath)
	if err != nil {
		return nil, err
	}

	rep := &report.BenchmarkReport{
		WorkloadName: workload.Name,
		BackendName:  cfg.BackendName,
		ClusterSize:  cfg.ClusterSize,
		Phases:       []*report.PhaseRecord{},
	}

	slog.Info("starting load phase", slog.String("workload", workload.Name))
	rep.Phases = append(rep.Phases, runPhase(ctx, executor, report.Load, 0))
	slog.Info("finished load phase", slog.String("workload", workload.Name))

	for i := range cfg.Iterations {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		slog.Info("starting run iteration", slog.Int("iteration", i+1), slog.Int("of", cfg.Iterations))
		rep.Phases = append(rep.Phases, runPhase(ctx, executor, report.Run, i))
	}

	rep.AggregatedStats = stats.NewAggregator().Aggregate(rep.RunRecords())
	slog.Info("finished all iterations", slog.String("workload", workload.Name), slog.Int("iterations", cfg.Iterations))
	return rep, nil
}

func runPhase(ctx context.Context, executor RunExecutor, phase report.Phase, iteration int) *report.PhaseRecord {
	out, err := executor.Execute(ctx, phase, iteration)
	rec := ParseOutput(out, phase, iteration)
	if err != nil {
		slog.Warn("benchmark phase degraded", slog.String("phase", string(phase)), slog.Int("iteration", iteration), slog.String("error", err.Error()))
		rec.Error = err.Error()
	}
	return rec
}
