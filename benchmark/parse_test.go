package benchmark

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/Octogonapus/DBBenchmark/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const runOutput = `[OVERALL], RunTime(ms), 10110
[OVERALL], Throughput(ops/sec), 98.91196834817013
[TOTAL_GCS_PS_Scavenge], Count, 1
[TOTAL_GC_TIME_PS_Scavenge], Time(ms), 5
[READ], Operations, 497
[READ], AverageLatency(us), 245.3
[READ], MinLatency(us), 102
[READ], MaxLatency(us), 9871
[READ], 95thPercentileLatency(us), 401
[READ], 99thPercentileLatency(us), 712
[READ], Return=OK, 497
[CLEANUP], Operations, 1
[CLEANUP], AverageLatency(us), 2204.0
[CLEANUP], MinLatency(us), 2204
[CLEANUP], MaxLatency(us), 2205
[CLEANUP], 95thPercentileLatency(us), 2205
[CLEANUP], 99thPercentileLatency(us), 2205
[UPDATE], Operations, 503
[UPDATE], AverageLatency(us), 310.75
[UPDATE], MinLatency(us), 150
[UPDATE], MaxLatency(us), 12001
[UPDATE], 95thPercentileLatency(us), 520
[UPDATE], 99thPercentileLatency(us), 880
[UPDATE], Return=OK, 503`

func TestParseOverallThroughput(t *testing.T) {
	rec := ParseOutput("[OVERALL], Throughput(ops/sec), 1234.56", report.Run, 0)
	require.NotNil(t, rec.Overall.ThroughputOpsSec)
	assert.Equal(t, 1234.56, *rec.Overall.ThroughputOpsSec)
	assert.Nil(t, rec.Overall.RuntimeMs)
	assert.Empty(t, rec.Operations)
}

func TestParseReadAverageLatency(t *testing.T) {
	rec := ParseOutput("[READ], AverageLatency(us), 245.3", report.Run, 0)
	require.Contains(t, rec.Operations, report.Read)
	read := rec.Operations[report.Read]
	require.NotNil(t, read.AvgLatencyUs)
	assert.Equal(t, 245.3, *read.AvgLatencyUs)
	assert.Nil(t, read.Count)
	assert.Nil(t, read.ReturnOK)
}

func TestParseFullRunOutput(t *testing.T) {
	rec := ParseOutput(runOutput, report.Run, 4)
	assert.Equal(t, report.Run, rec.Phase)
	assert.Equal(t, 4, rec.Iteration)
	assert.Equal(t, 10110.0, *rec.Overall.RuntimeMs)
	assert.InDelta(t, 98.91196834817013, *rec.Overall.ThroughputOpsSec, 1e-12)
	require.Len(t, rec.Operations, 3)

	read := rec.Operations[report.Read]
	assert.Equal(t, int64(497), *read.Count)
	assert.Equal(t, 102.0, *read.MinLatencyUs)
	assert.Equal(t, 9871.0, *read.MaxLatencyUs)
	assert.Equal(t, 401.0, *read.P95LatencyUs)
	assert.Equal(t, 712.0, *read.P99LatencyUs)
	assert.Equal(t, int64(497), *read.ReturnOK)

	cleanup := rec.Operations[report.Cleanup]
	assert.Equal(t, int64(1), *cleanup.Count)
	assert.Equal(t, 2204.0, *cleanup.AvgLatencyUs)
	assert.Nil(t, cleanup.ReturnOK)

	update := rec.Operations[report.Update]
	assert.Equal(t, 310.75, *update.AvgLatencyUs)
	assert.Equal(t, int64(503), *update.ReturnOK)
}

func TestParseEmptyOutput(t *testing.T) {
	for _, raw := range []string{"", "\n\n", "   "} {
		rec := ParseOutput(raw, report.Load, 0)
		assert.Equal(t, report.Load, rec.Phase)
		assert.Nil(t, rec.Overall.RuntimeMs)
		assert.Nil(t, rec.Overall.ThroughputOpsSec)
		assert.NotNil(t, rec.Operations)
		assert.Empty(t, rec.Operations)
	}
}

func TestParseIsOrderIndependent(t *testing.T) {
	want := ParseOutput(runOutput, report.Run, 0)
	lines := strings.Split(runOutput, "\n")
	rnd := rand.New(rand.NewSource(1))
	for range 20 {
		rnd.Shuffle(len(lines), func(i, j int) { lines[i], lines[j] = lines[j], lines[i] })
		assert.Equal(t, want, ParseOutput(strings.Join(lines, "\n"), report.Run, 0))
	}
}

func TestParseIgnoresUnrecognizedLines(t *testing.T) {
	want := ParseOutput(runOutput, report.Run, 0)
	for _, extra := range []string{
		"Loading workload...",
		"[SCAN], Operations, 12",
		"[read], AverageLatency(us), 1.0",
		"[READ], Retries, 3",
		"[OVERALL], GC Time(ms), 12",
		"2024-01-01 00:00:10:123 10 sec: 1000 operations; 100 current ops/sec;",
		"[READ], Return=ERROR, 4",
		"[CLEANUP], Return=OK, 1",
	} {
		assert.Equal(t, want, ParseOutput(runOutput+"\n"+extra, report.Run, 0), extra)
	}
}

func TestParseSkipsMalformedValues(t *testing.T) {
	rec := ParseOutput(strings.Join([]string{
		"[OVERALL], RunTime(ms), fast",
		"[OVERALL], Throughput(ops/sec),",
		"[INSERT], Operations, 10.5",
		"[INSERT], AverageLatency(us), -3",
		"[DELETE], MaxLatency(us), NaN",
		"[DELETE], MinLatency(us), +Inf",
		"[UPDATE], Return=OK, -1",
		"[READ], Operations, 7",
	}, "\n"), report.Run, 0)

	assert.Nil(t, rec.Overall.RuntimeMs)
	assert.Nil(t, rec.Overall.ThroughputOpsSec)
	// malformed lines leave no trace, not even an empty operation entry
	assert.Equal(t, []report.OperationType{report.Read}, keys(rec.Operations))
	assert.Equal(t, int64(7), *rec.Operations[report.Read].Count)
}

func TestParseKeepsObservedZeros(t *testing.T) {
	rec := ParseOutput("[OVERALL], Throughput(ops/sec), 0\n[INSERT], Operations, 0", report.Load, 0)
	assert.Equal(t, 0.0, *rec.Overall.ThroughputOpsSec)
	assert.Equal(t, int64(0), *rec.Operations[report.Insert].Count)
}

func TestParseTrimsSurroundingWhitespace(t *testing.T) {
	rec := ParseOutput("   [READ], AverageLatency(us),   17.25  \r\n", report.Run, 0)
	assert.Equal(t, 17.25, *rec.Operations[report.Read].AvgLatencyUs)
}

func keys(m map[report.OperationType]*report.OperationMetrics) []report.OperationType {
	out := []report.OperationType{}
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestParseAcceptsEveryOperationType(t *testing.T) {
	for _, op := range report.OperationTypes {
		rec := ParseOutput("["+string(op)+"], Operations, 3", report.Run, 0)
		require.Contains(t, rec.Operations, op)
		assert.Equal(t, int64(3), *rec.Operations[op].Count)
	}
	rec := ParseOutput("[SCAN], Operations, 3\n[READ-MODIFY-WRITE], Operations, 3", report.Run, 0)
	assert.Empty(t, rec.Operations)
}
