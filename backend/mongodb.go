package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Octogonapus/DBBenchmark/cluster"
	"github.com/Octogonapus/DBBenchmark/readiness"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	mongoReplicaSet = "rs0"
	mongoNetwork    = "mongo-net"
	mongoDatabase   = "ycsb"
)

func init() {
	RegisterBackend("mongodb", func(options map[string]any, execer Execer) (Backend, error) {
		return NewMongoDBBackend(options)
	})
}

type MongoDBOptions struct {
	Options `mapstructure:",squash"`
	Port    int `mapstructure:"port"`
	// Attempts at replSetInitiate while mongod is still starting.
	InitiateAttempts int           `mapstructure:"initiate_attempts"`
	InitiateBackoff  time.Duration `mapstructure:"initiate_backoff"`
}

type mongoDBBackend struct {
	opts   MongoDBOptions
	client *mongo.Client
}

func NewMongoDBBackend(opts map[string]any) (*mongoDBBackend, error) {
	o := MongoDBOptions{
		Options:          Options{Image: "mongo:latest", Host: "localhost"},
		Port:             27017,
		InitiateAttempts: 5,
		InitiateBackoff:  3 * time.Second,
	}
	err := decodeOptions(opts, &o)
	if err != nil {
		return nil, err
	}
	return &mongoDBBackend{opts: o}, nil
}

func (b *mongoDBBackend) Name() string    { return "mongodb" }
func (b *mongoDBBackend) Binding() string { return "mongodb" }

func (b *mongoDBBackend) url() string {
	return fmt.Sprintf("mongodb://%s:%d", b.opts.Host, b.opts.Port)
}

func (b *mongoDBBackend) ConnectionProperties() map[string]string {
	return map[string]string{"mongodb.url": b.url()}
}

// Published host port of the i-th member (1-based): base for the first,
// 27018 and 27019 for the next two, then 27125 upward.
func mongoHostPort(base, i int) int {
	if i == 1 {
		return base
	}
	port := 27016 + i
	if port > 27019 {
		port = 27121 + i
	}
	return port
}

func (b *mongoDBBackend) Topology(nodeCount int) (*cluster.ComposeFile, error) {
	c := cluster.NewComposeFile(mongoNetwork)
	for i := 1; i <= nodeCount; i++ {
		name := fmt.Sprintf("mongo%d", i)
		err := c.AddService(name, &cluster.Service{
			Image:         b.opts.Image,
			ContainerName: name,
			Hostname:      name,
			Ports:         []string{fmt.Sprintf("%d:27017", mongoHostPort(b.opts.Port, i))},
			Command:       []string{"mongod", "--replSet", mongoReplicaSet, "--port", "27017", "--bind_ip_all"},
			Networks:      []string{mongoNetwork},
		})
		if err != nil {
			return nil, err
		}
	}
	return c, nil
}

func replicaSetConfig(nodeCount int) bson.D {
	members := bson.A{}
	for i := 0; i < nodeCount; i++ {
		priority := 1
		if i == 0 {
			priority = 10
		}
		members = append(members, bson.D{
			{Key: "_id", Value: i},
			{Key: "host", Value: fmt.Sprintf("mongo%d:27017", i+1)},
			{Key: "priority", Value: priority},
		})
	}
	return bson.D{
		{Key: "_id", Value: mongoReplicaSet},
		{Key: "members", Value: members},
	}
}

func (b *mongoDBBackend) connect(ctx context.Context) (*mongo.Client, error) {
	if b.client != nil {
		return b.client, nil
	}
	// Talk to the first member directly; the other members' hostnames only
	// resolve inside the compose network.
	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(b.url()).
		SetDirect(true).
		SetConnectTimeout(5*time.Second).
		SetServerSelectionTimeout(5*time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	b.client = client
	return client, nil
}

// Forms the replica set with the first member preferred as primary.
func (b *mongoDBBackend) Initialize(ctx context.Context, nodeCount int) error {
	client, err := b.connect(ctx)
	if err != nil {
		return err
	}

	slog.Info("initializing mongodb replica set", slog.Int("members", nodeCount))
	cmd := bson.D{{Key: "replSetInitiate", Value: replicaSetConfig(nodeCount)}}
	for i := 0; i < max(b.opts.InitiateAttempts, 1); i++ {
		err = client.Database("admin").RunCommand(ctx, cmd).Err()
		if err == nil || alreadyInitialized(err) {
			return nil
		}
		slog.Debug("waiting to initiate replica set", slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.opts.InitiateBackoff):
		}
	}
	return fmt.Errorf("failed to initiate replica set: %w", err)
}

func alreadyInitialized(err error) bool {
	var cmdErr mongo.CommandError
	return errors.As(err, &cmdErr) && (cmdErr.Name == "AlreadyInitialized" || cmdErr.Code == 23)
}

type replSetStatus struct {
	Members []struct {
		Name     string `bson:"name"`
		StateStr string `bson:"stateStr"`
	} `bson:"members"`
}

// Ready once any member is PRIMARY or SECONDARY.
func (b *mongoDBBackend) Probe(nodeCount int) readiness.Probe {
	return func(ctx context.Context) (bool, error) {
		client, err := b.connect(ctx)
		if err != nil {
			return false, err
		}
		status := replSetStatus{}
		err = client.Database("admin").RunCommand(ctx, bson.D{{Key: "replSetGetStatus", Value: 1}}).Decode(&status)
		if err != nil {
			return false, err
		}
		states := []string{}
		for _, m := range status.Members {
			states = append(states, m.StateStr)
		}
		return anyMemberServing(states), nil
	}
}

func anyMemberServing(states []string) bool {
	for _, s := range states {
		if s == "PRIMARY" || s == "SECONDARY" {
			return true
		}
	}
	return false
}

func (b *mongoDBBackend) ReadinessPolicy() Policy {
	return b.opts.policy(Policy{Interval: 10 * time.Second, MaxWait: 120 * time.Second})
}

// Drops the benchmark database so every load starts empty.
func (b *mongoDBBackend) PrepareLoad(ctx context.Context) error {
	client, err := b.connect(ctx)
	if err != nil {
		return err
	}
	err = client.Database(mongoDatabase).Drop(ctx)
	if err != nil {
		return fmt.Errorf("failed to drop mongodb database %s: %w", mongoDatabase, err)
	}
	slog.Debug("dropped mongodb database", slog.String("name", mongoDatabase))
	return nil
}

func (b *mongoDBBackend) Close() error {
	if b.client == nil {
		return nil
	}
	return b.client.Disconnect(context.Background())
}
