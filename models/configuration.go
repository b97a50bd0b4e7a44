package models

import "github.com/google/uuid"

type Action string

const (
	ActionValidate Action = "validate"
	ActionBuild    Action = "build"
	ActionUp       Action = "up"
	ActionDown     Action = "down"
	ActionStatus   Action = "status"
)

type Configuration struct {
	Run           uuid.UUID `json:"run"`                      // UUID, generated when empty
	Action        Action    `json:"action"`                   // e.g. "up"
	Topology      string    `json:"topology,omitempty"`       // topology file; empty means the built-in one
	Spec          *Topology `json:"spec,omitempty"`           // inline topology, wins over Topology
	ProjectDir    string    `json:"project_dir,omitempty"`    // base for relative build contexts and mounts
	SkipReadiness bool      `json:"skip_readiness,omitempty"` // ordering-only startup
	ProbeHost     string    `json:"probe_host,omitempty"`     // host published ports are probed on
	Services      *[]string `json:"services,omitempty"`       // restrict build/up to these and their dependencies
}
