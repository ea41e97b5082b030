// Package stats summarizes repeated benchmark iterations into mean, sample
// standard deviation and a 95% confidence interval.
package stats

import (
	"math"
	"slices"

	"github.com/Octogonapus/DBBenchmark/report"
	"gonum.org/v1/gonum/stat/distuv"
)

// Returns the p-quantile of a distribution with df degrees of freedom.
type QuantileFunc func(p, df float64) float64

func StudentsTQuantile(p, df float64) float64 {
	return distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}.Quantile(p)
}

// Summarize computes the statistics of a non-empty sample. Values are summed in
// the order given so the result is reproducible for the same input.
func Summarize(values []float64, quantile QuantileFunc) report.AggregateStat {
	n := len(values)
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(n)
	if n < 2 {
		return report.AggregateStat{Mean: mean, SD: 0, CI95: [2]float64{mean, mean}}
	}

	sq := 0.0
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	sd := math.Sqrt(sq / float64(n-1))
	halfWidth := quantile(0.975, float64(n-1)) * sd / math.Sqrt(float64(n))
	return report.AggregateStat{
		Mean: mean,
		SD:   sd,
		CI95: [2]float64{mean - halfWidth, mean + halfWidth},
	}
}

type Aggregator struct {
	Quantile QuantileFunc
}

func NewAggregator() *Aggregator {
	return &Aggregator{Quantile: StudentsTQuantile}
}

// Aggregate combines run records. Each metric only uses the records that
// reported it, so sample sizes may differ between operation types.
func (a *Aggregator) Aggregate(records []*report.PhaseRecord) *report.AggregatedStats {
	out := &report.AggregatedStats{}
	if len(records) == 0 {
		return out
	}

	throughput := []float64{}
	for _, r := range records {
		if r.Overall.ThroughputOpsSec != nil {
			throughput = append(throughput, *r.Overall.ThroughputOpsSec)
		}
	}
	if len(throughput) > 0 {
		s := Summarize(throughput, a.Quantile)
		out.ThroughputOpsSec = &s
	}

	for _, op := range operationTypes(records) {
		latencies := []float64{}
		for _, r := range records {
			m, ok := r.Operations[op]
			if ok && m.AvgLatencyUs != nil {
				latencies = append(latencies, *m.AvgLatencyUs)
			}
		}
		if len(latencies) == 0 {
			continue
		}
		if out.AvgLatencyUs == nil {
			out.AvgLatencyUs = map[report.OperationType]report.AggregateStat{}
		}
		out.AvgLatencyUs[op] = Summarize(latencies, a.Quantile)
	}
	return out
}

// The union of operation types seen in any record, sorted for stable iteration.
func operationTypes(records []*report.PhaseRecord) []report.OperationType {
	seen := []report.OperationType{}
	for _, r := range records {
		for op := range r.Operations {
			if !slices.Contains(seen, op) {
				seen = append(seen, op)
			}
		}
	}
	slices.Sort(seen)
	return seen
}
