package stats

import (
	"math"
	"testing"

	"github.com/Octogonapus/DBBenchmark/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runRecord(iteration int, throughput *float64, latencies map[report.OperationType]float64) *report.PhaseRecord {
	r := report.NewPhaseRecord(report.Run, iteration)
	r.Overall.ThroughputOpsSec = throughput
	for op, l := range latencies {
		r.Operations[op] = &report.OperationMetrics{AvgLatencyUs: &l}
	}
	return r
}

func f(v float64) *float64 { return &v }

func TestStudentsTQuantile(t *testing.T) {
	assert.InDelta(t, 12.706204736, StudentsTQuantile(0.975, 1), 1e-6)
	assert.InDelta(t, 4.302652730, StudentsTQuantile(0.975, 2), 1e-6)
	assert.InDelta(t, 2.262157163, StudentsTQuantile(0.975, 9), 1e-6)
}

func TestSummarizeSingleValue(t *testing.T) {
	for _, v := range []float64{0, 1, 245.3, 1e9} {
		s := Summarize([]float64{v}, StudentsTQuantile)
		assert.Equal(t, v, s.Mean)
		assert.Equal(t, 0.0, s.SD)
		assert.Equal(t, [2]float64{v, v}, s.CI95)
	}
}

func TestSummarizeConstantSample(t *testing.T) {
	s := Summarize([]float64{7.5, 7.5, 7.5, 7.5}, StudentsTQuantile)
	assert.Equal(t, 7.5, s.Mean)
	assert.Equal(t, 0.0, s.SD)
	assert.Equal(t, [2]float64{7.5, 7.5}, s.CI95)
}

func TestSummarizeThreeIterations(t *testing.T) {
	s := Summarize([]float64{100, 105, 110}, StudentsTQuantile)
	assert.Equal(t, 105.0, s.Mean)
	assert.InDelta(t, 5.0, s.SD, 1e-12)

	half := StudentsTQuantile(0.975, 2) * s.SD / math.Sqrt(3)
	assert.InDelta(t, 105-half, s.CI95[0], 1e-9)
	assert.InDelta(t, 105+half, s.CI95[1], 1e-9)
	assert.InDelta(t, 12.4207, half, 1e-3)
}

func TestSummarizeUsesInjectedQuantile(t *testing.T) {
	calls := 0
	q := func(p, df float64) float64 {
		calls++
		assert.Equal(t, 0.975, p)
		assert.Equal(t, 1.0, df)
		return 2
	}
	s := Summarize([]float64{1, 3}, q)
	assert.Equal(t, 1, calls)
	// sd = sqrt(2), half = 2 * sqrt(2) / sqrt(2)
	assert.InDelta(t, 0.0, s.CI95[0], 1e-12)
	assert.InDelta(t, 4.0, s.CI95[1], 1e-12)
}

func TestSummarizeIsReproducible(t *testing.T) {
	values := []float64{0.1, 0.2, 0.3, 1e-9, 12345.678}
	assert.Equal(t, Summarize(values, StudentsTQuantile), Summarize(values, StudentsTQuantile))
}

func TestAggregateEmpty(t *testing.T) {
	out := NewAggregator().Aggregate(nil)
	require.NotNil(t, out)
	assert.Nil(t, out.ThroughputOpsSec)
	assert.Nil(t, out.AvgLatencyUs)
}

func TestAggregateThroughput(t *testing.T) {
	out := NewAggregator().Aggregate([]*report.PhaseRecord{
		runRecord(0, f(100), nil),
		runRecord(1, f(105), nil),
		runRecord(2, f(110), nil),
	})
	require.NotNil(t, out.ThroughputOpsSec)
	assert.Equal(t, 105.0, out.ThroughputOpsSec.Mean)
	assert.InDelta(t, 5.0, out.ThroughputOpsSec.SD, 1e-12)
	assert.Nil(t, out.AvgLatencyUs)
}

func TestAggregateSkipsRecordsWithoutThroughput(t *testing.T) {
	out := NewAggregator().Aggregate([]*report.PhaseRecord{
		runRecord(0, f(100), nil),
		runRecord(1, nil, nil),
	})
	require.NotNil(t, out.ThroughputOpsSec)
	assert.Equal(t, 100.0, out.ThroughputOpsSec.Mean)
	assert.Equal(t, [2]float64{100, 100}, out.ThroughputOpsSec.CI95)

	out = NewAggregator().Aggregate([]*report.PhaseRecord{runRecord(0, nil, nil)})
	assert.Nil(t, out.ThroughputOpsSec)
}

func TestAggregateLatencyUsesUnionOfOperationTypes(t *testing.T) {
	out := NewAggregator().Aggregate([]*report.PhaseRecord{
		runRecord(0, f(1), map[report.OperationType]float64{report.Read: 200}),
		runRecord(1, f(1), map[report.OperationType]float64{report.Read: 300, report.Update: 50}),
		runRecord(2, f(1), map[report.OperationType]float64{report.Read: 250}),
	})
	require.Len(t, out.AvgLatencyUs, 2)

	read := out.AvgLatencyUs[report.Read]
	assert.Equal(t, 250.0, read.Mean)
	assert.InDelta(t, 50.0, read.SD, 1e-12)

	update := out.AvgLatencyUs[report.Update]
	assert.Equal(t, 50.0, update.Mean)
	assert.Equal(t, 0.0, update.SD)
	assert.Equal(t, [2]float64{50, 50}, update.CI95)
}

func TestAggregateIgnoresOperationsWithoutAverageLatency(t *testing.T) {
	r := report.NewPhaseRecord(report.Run, 0)
	count := int64(10)
	r.Operations[report.Cleanup] = &report.OperationMetrics{Count: &count}

	out := NewAggregator().Aggregate([]*report.PhaseRecord{r})
	assert.NotContains(t, out.AvgLatencyUs, report.Cleanup)
}
