package topology

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ezenkico/indi-stack/models"
	"github.com/ezenkico/indi-stack/services/recipe"
	"gopkg.in/yaml.v3"
)

type composeFile struct {
	Name     string                    `yaml:"name,omitempty"`
	Services map[string]composeService `yaml:"services"`
}

type composeService struct {
	Build         *composeBuild     `yaml:"build,omitempty"`
	Image         string            `yaml:"image,omitempty"`
	ContainerName string            `yaml:"container_name,omitempty"`
	Platform      string            `yaml:"platform,omitempty"`
	Command       []string          `yaml:"command,omitempty"`
	Ports         []string          `yaml:"ports,omitempty"`
	Volumes       []string          `yaml:"volumes,omitempty"`
	Environment   map[string]string `yaml:"environment,omitempty"`
	DependsOn     []string          `yaml:"depends_on,omitempty"`
}

type composeBuild struct {
	Context    string `yaml:"context"`
	Dockerfile string `yaml:"dockerfile,omitempty"`
}

// DockerfilePath is where render writes a service's Dockerfile, relative to
// the output directory.
func DockerfilePath(service string) string {
	return "Dockerfile." + service
}

// RenderCompose renders t as a compose document whose builds point at the
// Dockerfiles written by WriteFiles.
func RenderCompose(t models.Topology) ([]byte, error) {
	out := composeFile{
		Name:     t.Name,
		Services: make(map[string]composeService, len(t.Services)),
	}

	for name, svc := range t.Services {
		cs := composeService{
			Image:         svc.Image,
			ContainerName: svc.ContainerName,
			Platform:      svc.Platform,
			Command:       svc.Command,
			Environment:   svc.Environment,
		}

		if svc.Build != nil {
			ctx := svc.Build.Context
			if ctx == "" {
				ctx = "."
			}
			dockerfile, err := filepath.Rel(ctx, DockerfilePath(name))
			if err != nil {
				return nil, fmt.Errorf("service %q dockerfile path: %w", name, err)
			}
			cs.Build = &composeBuild{Context: ctx, Dockerfile: filepath.ToSlash(dockerfile)}
		}

		for _, p := range svc.Ports {
			cs.Ports = append(cs.Ports, p.String())
		}
		for _, v := range svc.Volumes {
			cs.Volumes = append(cs.Volumes, v.String())
		}
		if len(svc.DependsOn) > 0 {
			cs.DependsOn = append([]string(nil), svc.DependsOn...)
			sort.Strings(cs.DependsOn)
		}

		out.Services[name] = cs
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return nil, fmt.Errorf("encode compose: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFiles writes docker-compose.yml and one Dockerfile per built service
// into dir and returns the written paths.
func WriteFiles(t models.Topology, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir %q: %w", dir, err)
	}

	written := []string{}

	names := make([]string, 0, len(t.Services))
	for name := range t.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		svc := t.Services[name]
		if svc.Build == nil {
			continue
		}
		dockerfile, err := recipe.RenderDockerfile(*svc.Build)
		if err != nil {
			return written, fmt.Errorf("service %q: %w", name, err)
		}
		p := filepath.Join(dir, DockerfilePath(name))
		if err := os.WriteFile(p, []byte(dockerfile), 0o644); err != nil {
			return written, fmt.Errorf("write %q: %w", p, err)
		}
		written = append(written, p)
	}

	compose, err := RenderCompose(t)
	if err != nil {
		return written, err
	}
	p := filepath.Join(dir, "docker-compose.yml")
	if err := os.WriteFile(p, compose, 0o644); err != nil {
		return written, fmt.Errorf("write %q: %w", p, err)
	}
	written = append(written, p)

	return written, nil
}
