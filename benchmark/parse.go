package benchmark

import (
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/Octogonapus/DBBenchmark/report"
)

const (
	overallRuntimePrefix    = "[OVERALL], RunTime(ms),"
	overallThroughputPrefix = "[OVERALL], Throughput(ops/sec),"
)

// Matches "[TAG], Metric,". Only tags naming a report.OperationType are kept.
var operationLine = regexp.MustCompile(`^\[([^\]]+)\], ([^,]+),`)

type setter func(m *report.OperationMetrics, line string) error

var operationSetters = map[string]setter{
	"Operations":                setCount(func(m *report.OperationMetrics, v int64) { m.Count = &v }),
	"AverageLatency(us)":        setFloat(func(m *report.OperationMetrics, v float64) { m.AvgLatencyUs = &v }),
	"MinLatency(us)":            setFloat(func(m *report.OperationMetrics, v float64) { m.MinLatencyUs = &v }),
	"MaxLatency(us)":            setFloat(func(m *report.OperationMetrics, v float64) { m.MaxLatencyUs = &v }),
	"95thPercentileLatency(us)": setFloat(func(m *report.OperationMetrics, v float64) { m.P95LatencyUs = &v }),
	"99thPercentileLatency(us)": setFloat(func(m *report.OperationMetrics, v float64) { m.P99LatencyUs = &v }),
	"Return=OK":                 setCount(func(m *report.OperationMetrics, v int64) { m.ReturnOK = &v }),
}

// ParseOutput converts raw benchmark tool output into a phase record. Each line
// is classified on its own; unrecognized lines are skipped and lines with a
// malformed value are logged and skipped, so this never fails.
func ParseOutput(raw string, phase report.Phase, iteration int) *report.PhaseRecord {
	rec := report.NewPhaseRecord(phase, iteration)
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		err := parseLine(rec, line)
		if err != nil {
			slog.Debug("skipping malformed benchmark output line", slog.String("line", line), slog.String("error", err.Error()))
		}
	}
	return rec
}

func parseLine(rec *report.PhaseRecord, line string) error {
	switch {
	case strings.HasPrefix(line, overallRuntimePrefix):
		v, err := parseFloatField(line)
		if err != nil {
			return err
		}
		rec.Overall.RuntimeMs = &v
		return nil
	case strings.HasPrefix(line, overallThroughputPrefix):
		v, err := parseFloatField(line)
		if err != nil {
			return err
		}
		rec.Overall.ThroughputOpsSec = &v
		return nil
	}

	match := operationLine.FindStringSubmatch(line)
	if match == nil {
		return nil
	}
	op, err := report.ParseOperationType(match[1])
	if err != nil {
		return nil
	}
	metric := match[2]
	set, ok := operationSetters[metric]
	if !ok || (metric == "Return=OK" && op == report.Cleanup) {
		return nil
	}

	// A malformed line must not leave an empty operation entry behind.
	m, ok := rec.Operations[op]
	if !ok {
		m = &report.OperationMetrics{}
	}
	err = set(m, line)
	if err != nil {
		return err
	}
	rec.Operations[op] = m
	return nil
}

func setFloat(assign func(*report.OperationMetrics, float64)) setter {
	return func(m *report.OperationMetrics, line string) error {
		v, err := parseFloatField(line)
		if err != nil {
			return err
		}
		assign(m, v)
		return nil
	}
}

func setCount(assign func(*report.OperationMetrics, int64)) setter {
	return func(m *report.OperationMetrics, line string) error {
		v, err := parseCountField(line)
		if err != nil {
			return err
		}
		assign(m, v)
		return nil
	}
}

// The value is the 3rd comma-delimited token.
func valueField(line string) (string, error) {
	parts := strings.Split(line, ",")
	if len(parts) < 3 {
		return "", fmt.Errorf("missing value field")
	}
	return strings.TrimSpace(parts[2]), nil
}

func parseFloatField(line string) (float64, error) {
	s, err := valueField(line)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, fmt.Errorf("value out of range: %s", s)
	}
	return v, nil
}

func parseCountField(line string) (int64, error) {
	s, err := valueField(line)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, fmt.Errorf("value out of range: %s", s)
	}
	return v, nil
}
