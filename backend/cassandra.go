package backend

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Octogonapus/DBBenchmark/cluster"
	"github.com/Octogonapus/DBBenchmark/readiness"
	"github.com/gocql/gocql"
)

const (
	cassandraSeedContainer = "cassandra-1"
	cassandraNetwork       = "cassandra-net"
	cassandraClusterName   = "ycsb-cluster"
)

var cassandraSchema = []string{
	`CREATE KEYSPACE IF NOT EXISTS ycsb WITH REPLICATION = {'class': 'SimpleStrategy', 'replication_factor': 1}`,
	`CREATE TABLE IF NOT EXISTS ycsb.usertable (y_id varchar PRIMARY KEY, field0 varchar, field1 varchar, field2 varchar, field3 varchar, field4 varchar, field5 varchar, field6 varchar, field7 varchar, field8 varchar, field9 varchar)`,
}

func init() {
	RegisterBackend("cassandra", func(options map[string]any, execer Execer) (Backend, error) {
		return NewCassandraBackend(options, execer)
	})
}

type CassandraOptions struct {
	Options `mapstructure:",squash"`
	Port    int    `mapstructure:"port"`
	MaxHeap string `mapstructure:"max_heap"`
	NewHeap string `mapstructure:"new_heap"`
	// Attempts at creating the schema; the CQL port opens after nodetool reports UN.
	SchemaAttempts int           `mapstructure:"schema_attempts"`
	SchemaBackoff  time.Duration `mapstructure:"schema_backoff"`
}

type cassandraBackend struct {
	opts   CassandraOptions
	execer Execer
}

func NewCassandraBackend(options map[string]any, execer Execer) (*cassandraBackend, error) {
	if execer == nil {
		return nil, fmt.Errorf("cassandra needs a way to run nodetool in the cluster")
	}
	opts := CassandraOptions{
		Options:        Options{Image: "cassandra:latest", Host: "localhost"},
		Port:           9042,
		MaxHeap:        "256M",
		NewHeap:        "50M",
		SchemaAttempts: 5,
		SchemaBackoff:  5 * time.Second,
	}
	err := decodeOptions(options, &opts)
	if err != nil {
		return nil, err
	}
	return &cassandraBackend{opts: opts, execer: execer}, nil
}

func (b *cassandraBackend) Name() string    { return "cassandra" }
func (b *cassandraBackend) Binding() string { return "cassandra-cql" }

func (b *cassandraBackend) ConnectionProperties() map[string]string {
	return map[string]string{
		"hosts": b.opts.Host,
		"port":  strconv.Itoa(b.opts.Port),
	}
}

// Every node is a seed. Nodes after the first wait for the first to gossip.
func (b *cassandraBackend) Topology(nodeCount int) (*cluster.ComposeFile, error) {
	seeds := make([]string, 0, nodeCount)
	for i := 1; i <= nodeCount; i++ {
		seeds = append(seeds, fmt.Sprintf("cassandra-%d", i))
	}

	c := cluster.NewComposeFile(cassandraNetwork)
	for i := 1; i <= nodeCount; i++ {
		name := fmt.Sprintf("cassandra-%d", i)
		svc := &cluster.Service{
			Image:         b.opts.Image,
			ContainerName: name,
			Hostname:      name,
			Ports:         []string{fmt.Sprintf("%d:9042", b.opts.Port+i-1)},
			Environment: map[string]string{
				"CASSANDRA_SEEDS":          strings.Join(seeds, ","),
				"CASSANDRA_CLUSTER_NAME":   cassandraClusterName,
				"CASSANDRA_DC":             "dc1",
				"CASSANDRA_RACK":           "rack1",
				"CASSANDRA_LISTEN_ADDRESS": name,
				"MAX_HEAP_SIZE":            b.opts.MaxHeap,
				"HEAP_NEWSIZE":             b.opts.NewHeap,
			},
			Healthcheck: &cluster.Healthcheck{
				Test:     []string{"CMD-SHELL", "[ $$(nodetool statusgossip) = running ]"},
				Interval: "10s",
				Timeout:  "10s",
				Retries:  10,
			},
			Networks: []string{cassandraNetwork},
		}
		if i > 1 {
			svc.DependsOn = map[string]cluster.DependsOn{cassandraSeedContainer: {Condition: "service_healthy"}}
		}
		err := c.AddService(name, svc)
		if err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (b *cassandraBackend) Initialize(ctx context.Context, nodeCount int) error {
	return nil
}

// Ready once nodetool on the first node lists at least nodeCount nodes as Up/Normal.
func (b *cassandraBackend) Probe(nodeCount int) readiness.Probe {
	return func(ctx context.Context) (bool, error) {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		out, err := b.execer.Exec(ctx, cassandraSeedContainer, "nodetool", "status")
		if err != nil {
			return false, err
		}
		return countUpNodes(out) >= nodeCount, nil
	}
}

// Counts the "UN" (Up/Normal) rows of nodetool status output.
func countUpNodes(status string) int {
	n := 0
	for _, line := range strings.Split(status, "\n") {
		fields := strings.Fields(line)
		if len(fields) > 0 && fields[0] == "UN" {
			n++
		}
	}
	return n
}

func (b *cassandraBackend) ReadinessPolicy() Policy {
	return b.opts.policy(Policy{Interval: 5 * time.Second, MaxWait: 180 * time.Second})
}

// Creates the ycsb keyspace and usertable.
func (b *cassandraBackend) PrepareLoad(ctx context.Context) error {
	c := gocql.NewCluster(b.opts.Host)
	c.Port = b.opts.Port
	c.ProtoVersion = 4
	c.Consistency = gocql.One
	c.Timeout = 10 * time.Second
	c.ConnectTimeout = 10 * time.Second

	var session *gocql.Session
	var err error
	for i := 0; i < max(b.opts.SchemaAttempts, 1); i++ {
		session, err = c.CreateSession()
		if err == nil {
			break
		}
		slog.Debug("waiting for cassandra to accept CQL connections", slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.opts.SchemaBackoff):
		}
	}
	if err != nil {
		return fmt.Errorf("failed to connect to cassandra: %w", err)
	}
	defer session.Close()

	slog.Info("creating cassandra keyspace and table")
	for _, stmt := range cassandraSchema {
		err = session.Query(stmt).WithContext(ctx).Exec()
		if err != nil {
			return fmt.Errorf("failed to create cassandra schema: %w", err)
		}
	}
	return nil
}

func (b *cassandraBackend) Close() error {
	return nil
}
