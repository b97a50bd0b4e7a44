package models

import "time"

type ServiceDescriptor struct {
	// Filled from the key in topology.services
	Name string `yaml:"-" json:"name"`

	// Build recipe; nil means the image is pulled/used as-is
	Build *BuildRecipe `yaml:"build,omitempty" json:"build,omitempty"`

	// Image tag produced by the build, or the image to run
	Image string `yaml:"image,omitempty" json:"image,omitempty"`

	ContainerName string `yaml:"container_name,omitempty" json:"container_name,omitempty"`

	// e.g. linux/amd64
	Platform string `yaml:"platform,omitempty" json:"platform,omitempty"`

	// Overrides the image default command
	Command []string `yaml:"command,omitempty" json:"command,omitempty"`

	// Published ports, in declared order
	Ports []PortBinding `yaml:"ports,omitempty" json:"ports,omitempty"`

	// Host path mounts, in declared order
	Volumes []VolumeMount `yaml:"volumes,omitempty" json:"volumes,omitempty"`

	// Dependency graph (keys reference other services)
	DependsOn []string `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`

	Environment map[string]string `yaml:"environment,omitempty" json:"environment,omitempty"`

	// Readiness gate dependents wait on before they are started
	Readiness *ReadinessSpec `yaml:"readiness,omitempty" json:"readiness,omitempty"`
}

// ReadinessSpec describes the TCP check used to decide that a service is
// accepting connections, not merely started.
type ReadinessSpec struct {
	// Container port to probe; resolved to the published host port
	Port int `yaml:"port" json:"port"`

	// Overall wait window
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// Initial backoff interval
	Interval time.Duration `yaml:"interval,omitempty" json:"interval,omitempty"`
}
