// Package backend holds the per-database strategies: how a database's cluster
// is laid out, how to tell when it is ready and how to prepare it for a load.
package backend

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Octogonapus/DBBenchmark/cluster"
	"github.com/Octogonapus/DBBenchmark/readiness"
	"github.com/Octogonapus/DBBenchmark/util"
	"github.com/mitchellh/mapstructure"
)

type Backend interface {
	// The name used on the command line and in reports.
	Name() string

	// The YCSB database binding.
	Binding() string

	// Workload properties that point the benchmark tool at the cluster.
	ConnectionProperties() map[string]string

	// The compose topology for a cluster of nodeCount nodes.
	Topology(nodeCount int) (*cluster.ComposeFile, error)

	// One-time cluster setup after the containers start (e.g. forming a replica set).
	Initialize(ctx context.Context, nodeCount int) error

	// Reports whether a cluster of nodeCount nodes is ready for the benchmark.
	Probe(nodeCount int) readiness.Probe

	// How often to probe and how long to wait in total.
	ReadinessPolicy() Policy

	// Resets or creates whatever the load phase writes into.
	PrepareLoad(ctx context.Context) error

	Close() error
}

type Policy struct {
	Interval time.Duration
	MaxWait  time.Duration
}

// Runs a command inside one of the cluster's containers.
type Execer interface {
	Exec(ctx context.Context, container string, cmd ...string) (string, error)
}

// Options shared by every backend. Backend-specific options embed this.
type Options struct {
	Image         string        `mapstructure:"image"`
	Host          string        `mapstructure:"host"`
	ReadyInterval time.Duration `mapstructure:"ready_interval"`
	ReadyTimeout  time.Duration `mapstructure:"ready_timeout"`
}

func (o Options) policy(def Policy) Policy {
	if o.ReadyInterval > 0 {
		def.Interval = o.ReadyInterval
	}
	if o.ReadyTimeout > 0 {
		def.MaxWait = o.ReadyTimeout
	}
	return def
}

type BackendFactory func(options map[string]any, execer Execer) (Backend, error)

var allBackends map[string]BackendFactory

func RegisterBackend(name string, factory BackendFactory) {
	if allBackends == nil {
		allBackends = map[string]BackendFactory{}
	}
	allBackends[name] = factory
}

// Creates the named backend. options come from the config file's backend
// section and may be nil.
func NewBackend(name string, options map[string]any, execer Execer) (Backend, error) {
	factory, ok := allBackends[name]
	if !ok {
		return nil, fmt.Errorf("unknown database: %s (must be one of: %s)", name, ExplainBackends())
	}
	return factory(options, execer)
}

func Names() []string {
	names := make([]string, 0, len(allBackends))
	for name := range allBackends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func ExplainBackends() string {
	return util.ExplainNames(Names())
}

func decodeOptions(options map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	err = decoder.Decode(options)
	if err != nil {
		return fmt.Errorf("invalid backend options: %w", err)
	}
	return nil
}
