package report

import "fmt"

type Phase string

const (
	Load Phase = "load"
	Run  Phase = "run"
)

// Returns the benchmark tool sub-command which executes this phase.
func (p Phase) Command() string {
	return string(p)
}

type OperationType string

const (
	Read    OperationType = "READ"
	Insert  OperationType = "INSERT"
	Update  OperationType = "UPDATE"
	Delete  OperationType = "DELETE"
	Cleanup OperationType = "CLEANUP"
)

// The fixed set of operation types reported by the benchmark tool.
var OperationTypes = []OperationType{Read, Insert, Update, Delete, Cleanup}

// Matching is case-exact: "read" is not an operation type.
func ParseOperationType(s string) (OperationType, error) {
	for _, op := range OperationTypes {
		if string(op) == s {
			return op, nil
		}
	}
	return "", fmt.Errorf("unknown operation type: %s", s)
}

// A nil field was not observed in the tool output. It is unknown, not zero.
type OverallMetrics struct {
	RuntimeMs        *float64 `json:"runtime_ms,omitempty"`
	ThroughputOpsSec *float64 `json:"throughput_ops_sec,omitempty"`
}

type OperationMetrics struct {
	Count        *int64   `json:"count,omitempty"`
	AvgLatencyUs *float64 `json:"avg_latency_us,omitempty"`
	MinLatencyUs *float64 `json:"min_latency_us,omitempty"`
	MaxLatencyUs *float64 `json:"max_latency_us,omitempty"`
	P95LatencyUs *float64 `json:"p95_latency_us,omitempty"`
	P99LatencyUs *float64 `json:"p99_latency_us,omitempty"`
	ReturnOK     *int64   `json:"return_ok,omitempty"`
}

// One execution of either the load phase or one run iteration.
type PhaseRecord struct {
	Phase      Phase                               `json:"phase"`
	Iteration  int                                 `json:"iteration"`
	Overall    OverallMetrics                      `json:"overall"`
	Operations map[OperationType]*OperationMetrics `json:"operations"`
	Error      string                              `json:"error,omitempty"` // non-empty iff the execution was degraded
}

func NewPhaseRecord(phase Phase, iteration int) *PhaseRecord {
	return &PhaseRecord{
		Phase:      phase,
		Iteration:  iteration,
		Operations: map[OperationType]*OperationMetrics{},
	}
}

type AggregateStat struct {
	Mean float64    `json:"mean"`
	SD   float64    `json:"sd"`
	CI95 [2]float64 `json:"ci95"` // (low, high)
}

type AggregatedStats struct {
	ThroughputOpsSec *AggregateStat                  `json:"throughput_ops_sec,omitempty"`
	AvgLatencyUs     map[OperationType]AggregateStat `json:"avg_latency_us,omitempty"`
}

type BenchmarkReport struct {
	WorkloadName    string           `json:"workload"`
	BackendName     string           `json:"database"`
	ClusterSize     int              `json:"node_count"`
	Phases          []*PhaseRecord   `json:"phases"`
	AggregatedStats *AggregatedStats `json:"aggregated_stats,omitempty"` // nil iff there are no run records
}

func (r *BenchmarkReport) RunRecords() []*PhaseRecord {
	out := []*PhaseRecord{}
	for _, p := range r.Phases {
		if p.Phase == Run {
			out = append(out, p)
		}
	}
	return out
}
