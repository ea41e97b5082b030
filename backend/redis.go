package backend

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Octogonapus/DBBenchmark/cluster"
	"github.com/Octogonapus/DBBenchmark/readiness"
	"github.com/go-redis/redis"
)

const (
	redisMaster  = "redis-master"
	redisNetwork = "redis-net"
)

func init() {
	RegisterBackend("redis", func(options map[string]any, execer Execer) (Backend, error) {
		return NewRedisBackend(options)
	})
}

type RedisOptions struct {
	Options `mapstructure:",squash"`
	Port    int `mapstructure:"port"`
}

type redisBackend struct {
	opts   RedisOptions
	client *redis.Client
}

func NewRedisBackend(options map[string]any) (*redisBackend, error) {
	opts := RedisOptions{
		Options: Options{Image: "redis:latest", Host: "localhost"},
		Port:    6379,
	}
	err := decodeOptions(options, &opts)
	if err != nil {
		return nil, err
	}
	return &redisBackend{
		opts: opts,
		client: redis.NewClient(&redis.Options{
			Addr:        fmt.Sprintf("%s:%d", opts.Host, opts.Port),
			DialTimeout: 5 * time.Second,
			ReadTimeout: 5 * time.Second,
		}),
	}, nil
}

func (b *redisBackend) Name() string    { return "redis" }
func (b *redisBackend) Binding() string { return "redis" }

func (b *redisBackend) ConnectionProperties() map[string]string {
	return map[string]string{
		"redis.host": b.opts.Host,
		"redis.port": strconv.Itoa(b.opts.Port),
	}
}

// A master plus nodeCount-1 replicas following it.
func (b *redisBackend) Topology(nodeCount int) (*cluster.ComposeFile, error) {
	c := cluster.NewComposeFile(redisNetwork)
	err := c.AddService(redisMaster, &cluster.Service{
		Image:         b.opts.Image,
		ContainerName: redisMaster,
		Ports:         []string{fmt.Sprintf("%d:6379", b.opts.Port)},
		Command:       []string{"redis-server", "--appendonly", "yes"},
		Networks:      []string{redisNetwork},
	})
	if err != nil {
		return nil, err
	}
	for i := 1; i < nodeCount; i++ {
		name := fmt.Sprintf("redis-replica-%d", i)
		err = c.AddService(name, &cluster.Service{
			Image:         b.opts.Image,
			ContainerName: name,
			Command:       []string{"redis-server", "--appendonly", "yes", "--slaveof", redisMaster, "6379"},
			Networks:      []string{redisNetwork},
			DependsOn:     map[string]cluster.DependsOn{redisMaster: {Condition: "service_started"}},
		})
		if err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (b *redisBackend) Initialize(ctx context.Context, nodeCount int) error {
	return nil
}

// Ready once the master answers and every replica is attached.
func (b *redisBackend) Probe(nodeCount int) readiness.Probe {
	return func(ctx context.Context) (bool, error) {
		info, err := b.client.WithContext(ctx).Info("replication").Result()
		if err != nil {
			return false, err
		}
		n, err := connectedReplicas(info)
		if err != nil {
			return false, err
		}
		return n >= nodeCount-1, nil
	}
}

func (b *redisBackend) ReadinessPolicy() Policy {
	return b.opts.policy(Policy{Interval: 2 * time.Second, MaxWait: 60 * time.Second})
}

func (b *redisBackend) PrepareLoad(ctx context.Context) error {
	return nil
}

func (b *redisBackend) Close() error {
	return b.client.Close()
}

// Reads connected_slaves out of an INFO replication reply.
func connectedReplicas(info string) (int, error) {
	scanner := bufio.NewScanner(strings.NewReader(info))
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), ":")
		if ok && key == "connected_slaves" {
			return strconv.Atoi(value)
		}
	}
	return 0, fmt.Errorf("connected_slaves missing from INFO replication")
}
