package benchmarkorchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"slices"

	"github.com/Octogonapus/DBBenchmark/backend"
	"github.com/Octogonapus/DBBenchmark/benchmark"
	"github.com/Octogonapus/DBBenchmark/benchmark/ycsb"
	"github.com/Octogonapus/DBBenchmark/cluster"
	"github.com/Octogonapus/DBBenchmark/config"
	"github.com/Octogonapus/DBBenchmark/readiness"
	"github.com/Octogonapus/DBBenchmark/report"
	"github.com/Octogonapus/DBBenchmark/target"
	"github.com/Octogonapus/DBBenchmark/util"
	"github.com/hashicorp/go-version"
	"github.com/schollz/progressbar/v3"
)

// The parts of cluster.Manager the orchestrator drives.
type ClusterManager interface {
	Write(compose *cluster.ComposeFile) (string, error)
	Up(ctx context.Context) error
	Down(ctx context.Context) error
	CheckComposeVersion(ctx context.Context) (*version.Version, error)
	RemoveLeftovers(ctx context.Context, names ...string) error
	Exec(ctx context.Context, container string, cmd ...string) (string, error)
	Close() error
}

type DockerBenchmarkOrchestratorInput struct {
	Config    *config.Config
	Benchmark *BenchmarkConfig
	Target    target.Target
	Publisher report.Publisher // optional

	// Overrides for tests; built from Config when nil.
	Cluster ClusterManager
	Backend backend.Backend
}

type dockerBenchmarkOrchestrator struct {
	input        *DockerBenchmarkOrchestratorInput
	workload     *benchmark.Workload
	cluster      ClusterManager
	backend      backend.Backend
	workDir      string
	workloadPath string // prepared workload on the target
	composed     bool
}

func NewDockerBenchmarkOrchestrator(input *DockerBenchmarkOrchestratorInput) (*dockerBenchmarkOrchestrator, error) {
	if input.Config == nil || input.Benchmark == nil || input.Target == nil {
		return nil, fmt.Errorf("orchestrator needs a config, a benchmark and a target")
	}
	return &dockerBenchmarkOrchestrator{
		input:   input,
		workDir: path.Join(input.Config.Docker.WorkDir, input.Benchmark.Backend),
	}, nil
}

func (o *dockerBenchmarkOrchestrator) runConfig() benchmark.RunConfig {
	return benchmark.RunConfig{
		WorkloadPath: o.input.Benchmark.WorkloadPath,
		BackendName:  o.input.Benchmark.Backend,
		ClusterSize:  o.input.Benchmark.NodeCount,
		Iterations:   o.input.Benchmark.Iterations,
	}
}

func (o *dockerBenchmarkOrchestrator) validate() error {
	err := o.runConfig().Validate()
	if err != nil {
		return err
	}
	if o.input.Backend == nil && !slices.Contains(backend.Names(), o.input.Benchmark.Backend) {
		return &benchmark.ValidationError{
			Field:  "database",
			Reason: fmt.Sprintf("%s is not supported (must be one of: %s)", o.input.Benchmark.Backend, backend.ExplainBackends()),
		}
	}
	o.workload, err = benchmark.LoadWorkload(o.input.Benchmark.WorkloadPath)
	return err
}

func (o *dockerBenchmarkOrchestrator) SetUp(ctx context.Context) error {
	err := o.validate()
	if err != nil {
		return err
	}
	b := o.input.Benchmark

	o.cluster = o.input.Cluster
	if o.cluster == nil {
		m, err := cluster.NewManager(&cluster.ManagerInput{
			Target:        o.input.Target,
			DockerCommand: o.input.Config.Docker.Command,
			Dir:           o.workDir,
			Project:       fmt.Sprintf("dbbenchmark-%s", b.Backend),
		})
		if err != nil {
			return err
		}
		o.cluster = m
	}

	o.backend = o.input.Backend
	if o.backend == nil {
		o.backend, err = backend.NewBackend(b.Backend, o.backendOptions(), o.cluster)
		if err != nil {
			return err
		}
	}

	_, err = o.cluster.CheckComposeVersion(ctx)
	if err != nil {
		return err
	}

	topology, err := o.backend.Topology(b.NodeCount)
	if err != nil {
		return fmt.Errorf("failed to build %s topology: %w", b.Backend, err)
	}
	_, err = o.cluster.Write(topology)
	if err != nil {
		return err
	}
	o.composed = true

	// Containers from an earlier run would collide on names and ports.
	_ = o.cluster.Down(ctx)
	err = o.cluster.RemoveLeftovers(ctx, topology.ServiceNames()...)
	if err != nil {
		slog.Warn("could not remove leftover containers", slog.String("error", err.Error()))
	}

	slog.Info("setting up containers", slog.String("database", b.Backend), slog.Int("nodes", b.NodeCount))
	err = o.cluster.Up(ctx)
	if err != nil {
		return err
	}

	err = o.backend.Initialize(ctx, b.NodeCount)
	if err != nil {
		slog.Warn("could not initialize cluster", slog.String("database", b.Backend), slog.String("error", err.Error()))
	}

	if o.waitUntilReady(ctx).Status == readiness.Cancelled {
		return ctx.Err()
	}

	err = o.backend.PrepareLoad(ctx)
	if err != nil {
		slog.Warn("could not prepare database for load", slog.String("database", b.Backend), slog.String("error", err.Error()))
	}

	if o.input.Publisher != nil {
		err = o.input.Publisher.SetUp(ctx)
		if err != nil {
			return fmt.Errorf("failed to set up results publisher: %w", err)
		}
	}

	slog.Info("docker setup complete", slog.String("database", b.Backend))
	return nil
}

// On an ssh target the databases listen on the remote host unless the config
// names another.
func (o *dockerBenchmarkOrchestrator) backendOptions() map[string]any {
	cfg := o.input.Config
	options := map[string]any{}
	for k, v := range cfg.BackendOptions(o.input.Benchmark.Backend) {
		options[k] = v
	}
	if _, ok := options["host"]; !ok && cfg.Target.Kind == "ssh" {
		options["host"] = cfg.Target.Host
	}
	return options
}

// A cluster that never becomes ready is benchmarked anyway.
func (o *dockerBenchmarkOrchestrator) waitUntilReady(ctx context.Context) readiness.Outcome {
	b := o.input.Benchmark
	policy := o.backend.ReadinessPolicy()
	spinner := progressbar.Default(-1, fmt.Sprintf("Waiting for %s cluster to be ready:", b.Backend))
	outcome := readiness.PollUntilReadyWithObserver(ctx, o.backend.Probe(b.NodeCount), policy.Interval, policy.MaxWait,
		func(attempt int, ready bool) {
			spinner.Describe(fmt.Sprintf("Waiting for %s cluster to be ready (attempt %d):", b.Backend, attempt))
			_ = spinner.Add(1)
		})
	_ = spinner.Finish()

	switch outcome.Status {
	case readiness.Ready:
		slog.Info("cluster ready", slog.String("database", b.Backend), slog.Duration("elapsed", outcome.Elapsed))
	case readiness.Cancelled:
		slog.Warn("stopped waiting for cluster", slog.String("database", b.Backend), slog.Duration("elapsed", outcome.Elapsed))
	default:
		slog.Warn("cluster did not become ready within timeout, continuing anyway",
			slog.String("database", b.Backend),
			slog.Duration("maxWait", policy.MaxWait),
		)
	}
	return outcome
}

// Writes the workload with the backend's connection settings to the target.
func (o *dockerBenchmarkOrchestrator) prepareWorkload() (string, error) {
	prepared, err := o.workload.WithProperties(o.backend.ConnectionProperties())
	if err != nil {
		return "", err
	}
	buf := &bytes.Buffer{}
	err = prepared.Encode(buf)
	if err != nil {
		return "", err
	}
	remote := path.Join(o.workDir, "workloads", fmt.Sprintf("%s-%s", o.workload.Name, util.Randstring(8)))
	err = o.input.Target.CopyFileTo(buf, remote)
	if err != nil {
		return "", fmt.Errorf("failed to copy workload to target: %w", err)
	}
	slog.Debug("prepared workload", slog.String("path", remote))
	return remote, nil
}

func (o *dockerBenchmarkOrchestrator) RunBenchmark(ctx context.Context) (*report.BenchmarkReport, error) {
	if o.backend == nil || o.workload == nil {
		return nil, fmt.Errorf("SetUp must succeed before RunBenchmark")
	}

	var err error
	o.workloadPath, err = o.prepareWorkload()
	if err != nil {
		return nil, err
	}

	executor, err := ycsb.NewExecutor(&ycsb.Input{
		Target:       o.input.Target,
		Command:      o.input.Config.YCSB.Command,
		Binding:      o.backend.Binding(),
		WorkloadPath: o.workloadPath,
		Timeout:      o.input.Config.YCSB.Timeout,
	})
	if err != nil {
		return nil, err
	}

	p := progressbar.Default(int64(o.input.Benchmark.Iterations), "Running iterations:")
	rep, err := benchmark.RunBenchmark(ctx, o.runConfig(), benchmark.RunExecutorFunc(
		func(ctx context.Context, phase report.Phase, iteration int) (string, error) {
			out, err := executor.Execute(ctx, phase, iteration)
			if phase == report.Run {
				_ = p.Add(1)
			}
			return out, err
		}))
	_ = p.Finish()
	if err != nil {
		return rep, err
	}

	saved, err := report.Save(o.input.Config.ResultsDir, rep)
	if err != nil {
		return rep, err
	}
	slog.Info("done running all iterations", slog.String("results", saved))

	if o.input.Publisher != nil {
		url, err := o.input.Publisher.Publish(ctx, rep)
		if err != nil {
			slog.Error("failed to publish results", slog.String("error", err.Error()))
		} else {
			slog.Info("published results", slog.String("url", url))
		}
	}
	return rep, nil
}

func (o *dockerBenchmarkOrchestrator) TearDown(ctx context.Context) error {
	var errs []error

	if o.workloadPath != "" {
		_, err := o.input.Target.RunCommand(ctx, fmt.Sprintf("rm -f %s", o.workloadPath))
		if err != nil {
			slog.Debug("could not remove prepared workload", slog.String("path", o.workloadPath), slog.String("error", err.Error()))
		}
	}

	if o.backend != nil {
		err := o.backend.Close()
		if err != nil {
			errs = append(errs, err)
		}
	}

	if o.cluster != nil {
		if o.input.Benchmark.KeepAlive {
			slog.Info("containers will remain running (keep-alive)")
		} else if o.composed {
			err := o.cluster.Down(ctx)
			if err != nil {
				errs = append(errs, err)
			}
		}
		err := o.cluster.Close()
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
