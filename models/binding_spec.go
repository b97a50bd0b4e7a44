package models

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// PortBinding publishes a container port on the host.
type PortBinding struct {
	HostIP        string `yaml:"host_ip,omitempty" json:"host_ip,omitempty"`
	HostPort      int    `yaml:"host_port" json:"host_port"`
	ContainerPort int    `yaml:"container_port" json:"container_port"`
	Protocol      string `yaml:"protocol,omitempty" json:"protocol,omitempty"` // tcp (default) | udp
}

// ParsePortBinding accepts "host:container", "ip:host:container",
// "[v6]:host:container" and an optional "/proto" suffix. Range checks are
// left to validation.
func ParsePortBinding(s string) (PortBinding, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return PortBinding{}, fmt.Errorf("empty port binding")
	}

	b := PortBinding{}
	if spec, proto, ok := strings.Cut(raw, "/"); ok {
		raw = spec
		b.Protocol = strings.ToLower(strings.TrimSpace(proto))
	}

	// [v6addr]:host:container
	if strings.HasPrefix(raw, "[") {
		end := strings.Index(raw, "]")
		if end < 0 || !strings.HasPrefix(raw[end+1:], ":") {
			return PortBinding{}, fmt.Errorf("port binding %q has an unterminated host ip", s)
		}
		b.HostIP = raw[1:end]
		raw = raw[end+2:]
	}

	parts := strings.Split(raw, ":")
	switch {
	case len(parts) == 2:
	case len(parts) == 3 && b.HostIP == "":
		b.HostIP = parts[0]
		parts = parts[1:]
	default:
		return PortBinding{}, fmt.Errorf("port binding %q must be host:container", s)
	}

	hostPort, err := strconv.Atoi(parts[0])
	if err != nil {
		return PortBinding{}, fmt.Errorf("port binding %q has invalid host port: %w", s, err)
	}
	containerPort, err := strconv.Atoi(parts[1])
	if err != nil {
		return PortBinding{}, fmt.Errorf("port binding %q has invalid container port: %w", s, err)
	}

	b.HostPort = hostPort
	b.ContainerPort = containerPort
	return b, nil
}

func (b PortBinding) Proto() string {
	if b.Protocol == "" {
		return "tcp"
	}
	return b.Protocol
}

func (b PortBinding) String() string {
	s := fmt.Sprintf("%d:%d", b.HostPort, b.ContainerPort)
	if b.HostIP != "" {
		host := b.HostIP
		if strings.Contains(host, ":") {
			host = "[" + host + "]"
		}
		s = host + ":" + s
	}
	if b.Proto() != "tcp" {
		s += "/" + b.Proto()
	}
	return s
}

// UnmarshalYAML takes either the short string form or a mapping.
func (b *PortBinding) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		parsed, err := ParsePortBinding(value.Value)
		if err != nil {
			return err
		}
		*b = parsed
		return nil
	}

	type plain PortBinding
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*b = PortBinding(p)
	return nil
}

func (b PortBinding) MarshalYAML() (interface{}, error) {
	return b.String(), nil
}
