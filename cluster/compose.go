package cluster

import (
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"
)

// A docker compose file describing one database topology.
type ComposeFile struct {
	Services map[string]*Service `yaml:"services"`
	Networks map[string]*Network `yaml:"networks,omitempty"`
}

type Service struct {
	Image         string               `yaml:"image"`
	ContainerName string               `yaml:"container_name,omitempty"`
	Hostname      string               `yaml:"hostname,omitempty"`
	Command       []string             `yaml:"command,omitempty"`
	Ports         []string             `yaml:"ports,omitempty"`
	Environment   map[string]string    `yaml:"environment,omitempty"`
	Healthcheck   *Healthcheck         `yaml:"healthcheck,omitempty"`
	Networks      []string             `yaml:"networks,omitempty"`
	DependsOn     map[string]DependsOn `yaml:"depends_on,omitempty"`
}

type Healthcheck struct {
	Test     []string `yaml:"test"`
	Interval string   `yaml:"interval,omitempty"`
	Timeout  string   `yaml:"timeout,omitempty"`
	Retries  int      `yaml:"retries,omitempty"`
}

type DependsOn struct {
	Condition string `yaml:"condition"`
}

type Network struct {
	Driver string `yaml:"driver"`
}

// Returns an empty compose file with a single bridge network.
func NewComposeFile(network string) *ComposeFile {
	return &ComposeFile{
		Services: map[string]*Service{},
		Networks: map[string]*Network{network: {Driver: "bridge"}},
	}
}

func (c *ComposeFile) AddService(name string, svc *Service) error {
	if _, ok := c.Services[name]; ok {
		return fmt.Errorf("duplicate compose service: %s", name)
	}
	c.Services[name] = svc
	return nil
}

// Sorted service names.
func (c *ComposeFile) ServiceNames() []string {
	names := make([]string, 0, len(c.Services))
	for name := range c.Services {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (c *ComposeFile) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

func ParseComposeFile(buf []byte) (*ComposeFile, error) {
	c := &ComposeFile{}
	err := yaml.Unmarshal(buf, c)
	if err != nil {
		return nil, fmt.Errorf("failed to parse compose file: %w", err)
	}
	return c, nil
}
