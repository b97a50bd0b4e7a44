package models

// Topology is the set of services started together under one project name.
type Topology struct {
	Name     string                       `yaml:"name" json:"name"`
	Platform string                       `yaml:"platform,omitempty" json:"platform,omitempty"`
	Services map[string]ServiceDescriptor `yaml:"services" json:"services"`
}
