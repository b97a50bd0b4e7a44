package topology

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/ezenkico/indi-stack/models"
	"github.com/ezenkico/indi-stack/services"
	"gopkg.in/yaml.v3"
)

const (
	DefaultReadinessTimeout  = 30 * time.Second
	DefaultReadinessInterval = 100 * time.Millisecond
)

var envRef = regexp.MustCompile(`\$\$|\$\{([^}]*)\}`)

// ExpandEnv replaces ${VAR} and ${VAR:-default} references. Bare $VAR is
// left alone so shell variables in commands survive; $$ is a literal $.
func ExpandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		if ref == "$$" {
			return "$"
		}
		name, def, hasDefault := strings.Cut(ref[2:len(ref)-1], ":-")
		if v, ok := os.LookupEnv(name); ok && v != "" {
			return v
		}
		if hasDefault {
			return def
		}
		return ""
	})
}

func Load(path string) (models.Topology, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return models.Topology{}, fmt.Errorf("read topology file %q: %w", path, err)
	}

	t, err := Parse(b)
	if err != nil {
		return models.Topology{}, fmt.Errorf("topology file %q: %w", path, err)
	}
	return t, nil
}

// Parse decodes a YAML topology and applies defaults. Unknown keys are
// rejected so typos do not silently drop settings.
func Parse(b []byte) (models.Topology, error) {
	dec := yaml.NewDecoder(bytes.NewReader([]byte(ExpandEnv(string(b)))))
	dec.KnownFields(true)

	var t models.Topology
	if err := dec.Decode(&t); err != nil {
		if errors.Is(err, io.EOF) {
			return models.Topology{}, errors.New("topology is empty")
		}
		return models.Topology{}, fmt.Errorf("parse topology yaml: %w", err)
	}

	ApplyDefaults(&t)
	return t, nil
}

// ApplyDefaults fills names, image tags, container names, platforms and
// readiness timings. It is idempotent.
func ApplyDefaults(t *models.Topology) {
	for name, svc := range t.Services {
		svc.Name = name

		if svc.Platform == "" {
			svc.Platform = t.Platform
		}
		if svc.Build != nil {
			build := *svc.Build
			if build.Platform == "" {
				build.Platform = svc.Platform
			}
			svc.Build = &build

			if svc.Image == "" {
				svc.Image = services.DockerImageTag(t.Name, name)
			}
		}
		if svc.ContainerName == "" {
			svc.ContainerName = services.DockerContainerName(t.Name, svc)
		}
		if svc.Readiness != nil {
			rd := *svc.Readiness
			if rd.Timeout <= 0 {
				rd.Timeout = DefaultReadinessTimeout
			}
			if rd.Interval <= 0 {
				rd.Interval = DefaultReadinessInterval
			}
			svc.Readiness = &rd
		}

		t.Services[name] = svc
	}
}

func Marshal(t models.Topology) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(t); err != nil {
		return nil, fmt.Errorf("encode topology: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
