// Package ycsb runs the Yahoo! Cloud Serving Benchmark tool on a target.
package ycsb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Octogonapus/DBBenchmark/benchmark"
	"github.com/Octogonapus/DBBenchmark/report"
	"github.com/Octogonapus/DBBenchmark/target"
)

const DefaultTimeout = 600 * time.Second

// Lines echoed to the log as the tool's output is collected.
var echoedPrefixes = []string{"[READ]", "[UPDATE]", "[INSERT]", "[OVERALL]"}

type Input struct {
	Target       target.Target
	Command      string // path to the ycsb launcher, "ycsb" by default
	Binding      string // database binding, e.g. "redis" or "cassandra-cql"
	WorkloadPath string // path of the prepared workload on the target
	Timeout      time.Duration
}

type Executor struct {
	input *Input
}

func NewExecutor(input *Input) (*Executor, error) {
	if input.Target == nil {
		return nil, fmt.Errorf("ycsb executor needs a target")
	}
	if input.Binding == "" {
		return nil, fmt.Errorf("ycsb executor needs a binding")
	}
	if input.WorkloadPath == "" {
		return nil, fmt.Errorf("ycsb executor needs a workload path")
	}
	in := *input
	if in.Command == "" {
		in.Command = "ycsb"
	}
	if in.Timeout <= 0 {
		in.Timeout = DefaultTimeout
	}
	return &Executor{input: &in}, nil
}

func (e *Executor) CommandLine(phase report.Phase) string {
	return fmt.Sprintf("%s %s %s -s -P %s", e.input.Command, phase.Command(), e.input.Binding, e.input.WorkloadPath)
}

func (e *Executor) Execute(ctx context.Context, phase report.Phase, iteration int) (string, error) {
	cmd := e.CommandLine(phase)
	slog.Info("running ycsb", slog.String("phase", string(phase)), slog.Int("iteration", iteration), slog.String("command", cmd))

	runCtx, cancel := context.WithTimeout(ctx, e.input.Timeout)
	defer cancel()

	start := time.Now()
	buf, err := e.input.Target.RunCommand(runCtx, cmd)
	out := string(buf)
	echo(out)

	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			slog.Error("ycsb timed out and was killed", slog.String("phase", string(phase)), slog.Duration("timeout", e.input.Timeout))
			return out, fmt.Errorf("%s after %s: %w", phase, e.input.Timeout, benchmark.ErrExecutionTimeout)
		}
		return out, fmt.Errorf("%s: %w: %w", phase, benchmark.ErrExecutionFailure, err)
	}
	slog.Debug("ycsb finished", slog.String("phase", string(phase)), slog.Duration("elapsed", time.Since(start)))
	return out, nil
}

func echo(out string) {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		for _, prefix := range echoedPrefixes {
			if strings.HasPrefix(line, prefix) {
				slog.Info(line)
				break
			}
		}
	}
}
