// Package config loads the benchmark's YAML configuration file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Octogonapus/DBBenchmark/target"
	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

type Config struct {
	ResultsDir    string                    `yaml:"results_dir"`
	ResultsBucket string                    `yaml:"results_bucket"`
	ResultsPrefix string                    `yaml:"results_prefix"`
	YCSB          YCSBConfig                `yaml:"ycsb"`
	Docker        DockerConfig              `yaml:"docker"`
	Target        TargetConfig              `yaml:"target"`
	Backends      map[string]map[string]any `yaml:"backends"`
}

type YCSBConfig struct {
	Command string        `yaml:"command"`
	Timeout time.Duration `yaml:"timeout"`
}

type DockerConfig struct {
	Command string `yaml:"command"`
	// Where compose files and prepared workloads are written on the target.
	WorkDir string `yaml:"work_dir"`
}

type TargetConfig struct {
	Kind    string `yaml:"kind"` // "local" or "ssh"
	Host    string `yaml:"host"`
	User    string `yaml:"user"`
	Port    int    `yaml:"port"`
	KeyPath string `yaml:"key_path"`
}

func Default() *Config {
	return &Config{
		ResultsDir: "results",
		YCSB: YCSBConfig{
			Command: "~/ycsb-0.17.0/bin/ycsb.sh",
			Timeout: 600 * time.Second,
		},
		Docker: DockerConfig{
			Command: "docker",
			WorkDir: "~/.dbbenchmark",
		},
		Target: TargetConfig{
			Kind: "local",
			User: "root",
			Port: 22,
		},
		Backends: map[string]map[string]any{},
	}
}

// Load reads the file at path over the defaults. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		path, err := homedir.Expand(path)
		if err != nil {
			return nil, err
		}
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		err = yaml.Unmarshal(buf, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	err := cfg.expandPaths()
	if err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// Local paths are expanded here. On an ssh target the ycsb command and work
// dir live on the remote host: the command is left for the remote shell and the
// work dir is made relative to the remote home.
func (c *Config) expandPaths() error {
	paths := []*string{&c.ResultsDir, &c.Target.KeyPath}
	if c.Target.Kind == "ssh" {
		c.Docker.WorkDir = remoteHomeRelative(c.Docker.WorkDir)
	} else {
		paths = append(paths, &c.YCSB.Command, &c.Docker.WorkDir)
	}
	for _, p := range paths {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand %s: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Commands and sftp both start in the remote home directory.
func remoteHomeRelative(p string) string {
	if p == "~" {
		return "."
	}
	return strings.TrimPrefix(p, "~/")
}

func (c *Config) Validate() error {
	if c.ResultsDir == "" {
		return fmt.Errorf("results_dir must not be empty")
	}
	if c.YCSB.Command == "" {
		return fmt.Errorf("ycsb.command must not be empty")
	}
	if c.YCSB.Timeout <= 0 {
		return fmt.Errorf("ycsb.timeout must be positive")
	}
	switch c.Target.Kind {
	case "local":
	case "ssh":
		if c.Target.Host == "" || c.Target.KeyPath == "" {
			return fmt.Errorf("an ssh target needs host and key_path")
		}
	default:
		return fmt.Errorf("unknown target kind: %s", c.Target.Kind)
	}
	return nil
}

// Options for the named backend from the backends section, or nil.
func (c *Config) BackendOptions(name string) map[string]any {
	return c.Backends[name]
}

func (c *Config) NewTarget() (target.Target, error) {
	if c.Target.Kind == "ssh" {
		return target.NewSSHTargetFromKeyFile(c.Target.User, c.Target.Host, c.Target.Port, c.Target.KeyPath)
	}
	return &target.LocalTarget{}, nil
}
