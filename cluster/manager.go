// Package cluster provisions and tears down a database cluster with docker compose.
package cluster

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"path"
	"strings"
	"time"

	"github.com/Octogonapus/DBBenchmark/target"
	"github.com/Octogonapus/DBBenchmark/util"
	"github.com/alitto/pond"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/hashicorp/go-version"
	"github.com/schollz/progressbar/v3"
)

const (
	ComposeFileName = "docker-compose-run.yml"
	projectLabel    = "com.docker.compose.project"
	downTimeout     = 30 * time.Second
)

var minComposeVersion = version.Must(version.NewVersion("2.0.0"))

// The subset of the docker engine API the manager needs.
type DockerAPI interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]types.Container, error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerExecCreate(ctx context.Context, container string, config types.ExecConfig) (types.IDResponse, error)
	ContainerExecAttach(ctx context.Context, execID string, config types.ExecStartCheck) (types.HijackedResponse, error)
	ContainerExecInspect(ctx context.Context, execID string) (types.ContainerExecInspect, error)
	Close() error
}

// Implemented by targets whose docker daemon is not the local one.
type DockerDialer interface {
	DialDocker(ctx context.Context, network, addr string) (net.Conn, error)
}

type ManagerInput struct {
	Target        target.Target
	DockerCommand string // "docker" by default; e.g. "sudo docker" on hosts without a docker group
	Dir           string // directory on the target holding the compose file
	Project       string // compose project name
	Docker        DockerAPI
	// Concurrency of leftover container removal.
	RemoveConcurrency int
}

type Manager struct {
	input       *ManagerInput
	docker      DockerAPI
	composePath string
}

func NewManager(input *ManagerInput) (*Manager, error) {
	if input.Target == nil {
		return nil, fmt.Errorf("cluster manager needs a target")
	}
	if input.Project == "" {
		return nil, fmt.Errorf("cluster manager needs a project name")
	}
	in := *input
	if in.DockerCommand == "" {
		in.DockerCommand = "docker"
	}
	if in.RemoveConcurrency <= 0 {
		in.RemoveConcurrency = 8
	}

	docker := in.Docker
	if docker == nil {
		c, err := client.NewClientWithOpts(dockerClientOpts(in.Target)...)
		if err != nil {
			return nil, fmt.Errorf("can't get Docker client: %w", err)
		}
		docker = c
	}

	return &Manager{
		input:       &in,
		docker:      docker,
		composePath: path.Join(in.Dir, ComposeFileName),
	}, nil
}

// The engine API must reach the same daemon that compose runs against.
func dockerClientOpts(t target.Target) []client.Opt {
	if d, ok := t.(DockerDialer); ok {
		return []client.Opt{
			client.WithHost("http://docker.example.com"),
			client.WithDialContext(d.DialDocker),
			client.WithAPIVersionNegotiation(),
		}
	}
	return []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
}

// Writes the compose file to the target and returns its path there.
func (m *Manager) Write(compose *ComposeFile) (string, error) {
	buf, err := compose.Marshal()
	if err != nil {
		return "", fmt.Errorf("failed to render compose file: %w", err)
	}
	err = m.input.Target.CopyFileTo(bytes.NewReader(buf), m.composePath)
	if err != nil {
		return "", fmt.Errorf("failed to write compose file: %w", err)
	}
	slog.Debug("wrote compose file", slog.String("path", m.composePath), slog.Int("services", len(compose.Services)))
	return m.composePath, nil
}

func (m *Manager) compose(args ...string) string {
	return fmt.Sprintf("%s compose -p %s -f %s %s", m.input.DockerCommand, m.input.Project, m.composePath, strings.Join(args, " "))
}

func (m *Manager) Up(ctx context.Context) error {
	slog.Info("starting containers", slog.String("project", m.input.Project))
	_, err := m.input.Target.RunCommand(ctx, m.compose("up", "-d"))
	if err != nil {
		return fmt.Errorf("docker compose up failed: %w", err)
	}
	return nil
}

// Stops and removes the project's containers. Failures are logged and returned
// but callers usually treat them as warnings.
func (m *Manager) Down(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, downTimeout)
	defer cancel()

	slog.Info("cleaning up containers", slog.String("project", m.input.Project))
	_, err := m.input.Target.RunCommand(ctx, m.compose("down", "--remove-orphans"))
	if err != nil {
		slog.Warn("could not clean up all containers", slog.String("error", err.Error()))
		return fmt.Errorf("docker compose down failed: %w", err)
	}
	slog.Info("containers cleaned up", slog.String("project", m.input.Project))
	return nil
}

func (m *Manager) CheckComposeVersion(ctx context.Context) (*version.Version, error) {
	out, err := m.input.Target.RunCommand(ctx, fmt.Sprintf("%s compose version --short", m.input.DockerCommand))
	if err != nil {
		return nil, fmt.Errorf("docker compose is not available: %w", err)
	}
	v, err := version.NewVersion(util.LastNonEmptyLine(out))
	if err != nil {
		return nil, fmt.Errorf("failed to parse docker compose version: %w", err)
	}
	if v.LessThan(minComposeVersion) {
		return v, fmt.Errorf("docker compose %s is too old, need at least %s", v, minComposeVersion)
	}
	slog.Debug("docker compose version", slog.String("version", v.String()))
	return v, nil
}

// Force-removes containers left over by an earlier run: everything labelled
// with the project name plus any container with one of the given names.
func (m *Manager) RemoveLeftovers(ctx context.Context, names ...string) error {
	leftovers := map[string]string{}
	list := func(args filters.Args) error {
		containers, err := m.docker.ContainerList(ctx, container.ListOptions{All: true, Filters: args})
		if err != nil {
			return fmt.Errorf("getting containers list: %w", err)
		}
		for _, c := range containers {
			leftovers[c.ID] = containerName(c)
		}
		return nil
	}

	err := list(filters.NewArgs(filters.Arg("label", fmt.Sprintf("%s=%s", projectLabel, m.input.Project))))
	if err != nil {
		return err
	}
	if len(names) > 0 {
		args := filters.NewArgs()
		for _, name := range names {
			args.Add("name", fmt.Sprintf("^/%s$", name))
		}
		err = list(args)
		if err != nil {
			return err
		}
	}
	if len(leftovers) == 0 {
		slog.Debug("no leftover containers", slog.String("project", m.input.Project))
		return nil
	}

	errChan := make(chan error, len(leftovers))
	pool := pond.New(m.input.RemoveConcurrency, 0, pond.MinWorkers(m.input.RemoveConcurrency))
	p := progressbar.Default(int64(len(leftovers)), "Removing leftover containers:")
	for id, name := range leftovers {
		pool.Submit(func() {
			defer p.Add(1)
			err := m.docker.ContainerRemove(ctx, id, container.RemoveOptions{Force: true, RemoveVolumes: true})
			if err != nil {
				slog.Error("failed to remove container", slog.String("name", name), slog.String("error", err.Error()))
				errChan <- fmt.Errorf("removing container '%s': %w", name, err)
				return
			}
			slog.Debug("removed container", slog.String("name", name))
		})
	}
	pool.StopAndWait()
	p.Finish()

	select {
	case err := <-errChan:
		return fmt.Errorf("some leftover containers could not be removed: %w", err)
	default:
		return nil
	}
}

// Runs cmd inside the named container and returns its standard output.
func (m *Manager) Exec(ctx context.Context, containerName string, cmd ...string) (string, error) {
	if len(cmd) == 0 {
		return "", fmt.Errorf("empty command")
	}
	created, err := m.docker.ContainerExecCreate(ctx, containerName, types.ExecConfig{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create exec in %s: %w", containerName, err)
	}

	attach, err := m.docker.ContainerExecAttach(ctx, created.ID, types.ExecStartCheck{})
	if err != nil {
		return "", fmt.Errorf("failed to attach to exec in %s: %w", containerName, err)
	}
	defer attach.Close()
	// the hijacked connection ignores ctx, so close it when ctx is done
	stop := context.AfterFunc(ctx, attach.Close)
	defer stop()

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	_, err = stdcopy.StdCopy(stdout, stderr, attach.Reader)
	if err != nil {
		if ctx.Err() != nil {
			return stdout.String(), fmt.Errorf("%s in %s: %w", cmd[0], containerName, ctx.Err())
		}
		return stdout.String(), fmt.Errorf("failed to read output of %s in %s: %w", cmd[0], containerName, err)
	}

	inspect, err := m.docker.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return stdout.String(), fmt.Errorf("failed to inspect exec in %s: %w", containerName, err)
	}
	if inspect.ExitCode != 0 {
		return stdout.String(), fmt.Errorf("%s in %s exited with %d: %s", cmd[0], containerName, inspect.ExitCode, util.LastNonEmptyLine(stderr.Bytes()))
	}
	return stdout.String(), nil
}

func (m *Manager) Close() error {
	return m.docker.Close()
}

func containerName(c types.Container) string {
	if len(c.Names) > 0 {
		return strings.TrimPrefix(c.Names[0], "/")
	}
	return c.ID
}
