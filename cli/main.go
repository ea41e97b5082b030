package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/Octogonapus/DBBenchmark/backend"
	"github.com/Octogonapus/DBBenchmark/benchmark"
	benchmarkorchestrator "github.com/Octogonapus/DBBenchmark/benchmark_orchestrator"
	"github.com/Octogonapus/DBBenchmark/config"
	"github.com/Octogonapus/DBBenchmark/report"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] [<db> <node_count> <workload_file> [iterations]]\n\n", os.Args[0])
	fmt.Fprintf(flag.CommandLine.Output(), "Read/write ratios are defined in the workload file itself.\n\n")
	flag.PrintDefaults()
}

func main() {
	db := flag.String("db", "", fmt.Sprintf("The database to benchmark. Must be one of: %s.", backend.ExplainBackends()))
	nodes := flag.Int("nodes", 0, "The number of database nodes (a positive integer).")
	workload := flag.String("workload", "", "Path to a YCSB workload file.")
	iterations := flag.Int("iterations", 1, "The number of run iterations.")
	keepAlive := flag.Bool("keep-alive", false, "Keep containers running after exit.")
	configPath := flag.String("config", "", "Path to a YAML config file. Defaults are used when empty.")
	resultsBucket := flag.String("results-bucket", "", "Also upload results to this S3 bucket. Overrides the config file.")
	logLevel := flag.String("log-level", "info", "One of: debug, info, warn, error.")
	flag.Usage = usage
	flag.Parse()

	var level slog.Level
	err := level.UnmarshalText([]byte(*logLevel))
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %q\n", *logLevel)
		os.Exit(2)
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	bench := &benchmarkorchestrator.BenchmarkConfig{
		Backend:      *db,
		NodeCount:    *nodes,
		WorkloadPath: *workload,
		Iterations:   *iterations,
		KeepAlive:    *keepAlive,
	}
	err = applyPositionalArgs(bench, flag.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}

	os.Exit(run(bench, *configPath, *resultsBucket))
}

// Accepts "<db> <node_count> <workload_file> [iterations] [--keep-alive]".
func applyPositionalArgs(bench *benchmarkorchestrator.BenchmarkConfig, args []string) error {
	rest := []string{}
	for _, a := range args {
		if a == "--keep-alive" {
			bench.KeepAlive = true
			continue
		}
		rest = append(rest, a)
	}
	if len(rest) == 0 {
		return nil
	}
	if len(rest) < 3 || len(rest) > 4 {
		return fmt.Errorf("expected <db> <node_count> <workload_file> [iterations], got %q", strings.Join(rest, " "))
	}
	nodes, err := strconv.Atoi(rest[1])
	if err != nil {
		return fmt.Errorf("node_count must be an integer: %w", err)
	}
	bench.Backend = rest[0]
	bench.NodeCount = nodes
	bench.WorkloadPath = rest[2]
	if len(rest) == 4 {
		bench.Iterations, err = strconv.Atoi(rest[3])
		if err != nil {
			return fmt.Errorf("iterations must be an integer: %w", err)
		}
	}
	return nil
}

func run(bench *benchmarkorchestrator.BenchmarkConfig, configPath, resultsBucket string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		return 1
	}
	if resultsBucket != "" {
		cfg.ResultsBucket = resultsBucket
	}

	tgt, err := cfg.NewTarget()
	if err != nil {
		slog.Error("failed to create target", slog.String("error", err.Error()))
		return 1
	}

	var publisher report.Publisher
	if cfg.ResultsBucket != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			slog.Error("failed to load AWS config", slog.String("error", err.Error()))
			return 1
		}
		publisher = report.NewS3Publisher(&report.S3PublisherInput{
			AwsConfig: awsCfg,
			Bucket:    cfg.ResultsBucket,
			Prefix:    cfg.ResultsPrefix,
		})
	}

	orch, err := benchmarkorchestrator.NewDockerBenchmarkOrchestrator(&benchmarkorchestrator.DockerBenchmarkOrchestratorInput{
		Config:    cfg,
		Benchmark: bench,
		Target:    tgt,
		Publisher: publisher,
	})
	if err != nil {
		slog.Error("failed to create orchestrator", slog.String("error", err.Error()))
		return 1
	}
	// teardown runs even after an interrupt, so it gets its own context
	defer func() {
		err := orch.TearDown(context.Background())
		if err != nil {
			slog.Warn("teardown incomplete", slog.String("error", err.Error()))
		}
	}()

	err = orch.SetUp(ctx)
	if err != nil {
		var verr *benchmark.ValidationError
		if errors.As(err, &verr) {
			slog.Error("invalid arguments", slog.String("error", err.Error()))
			return 2
		}
		slog.Error("setup failed", slog.String("error", err.Error()))
		return 1
	}

	_, err = orch.RunBenchmark(ctx)
	if err != nil {
		slog.Error("benchmark failed", slog.String("error", err.Error()))
		return 1
	}
	return 0
}
