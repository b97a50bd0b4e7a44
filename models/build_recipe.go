package models

type BuildStepKind string

const (
	BuildStepRepository   BuildStepKind = "repository"   // register an OS package repository
	BuildStepPackages     BuildStepKind = "packages"     // install OS packages
	BuildStepDependencies BuildStepKind = "dependencies" // dependency manager install from manifests
	BuildStepCopy         BuildStepKind = "copy"
	BuildStepRun          BuildStepKind = "run"
)

// BuildRecipe is an image build expressed as ordered steps. Steps are
// rendered, and therefore executed, strictly in declared order.
type BuildRecipe struct {
	// Build context directory, relative to the project directory
	Context string `yaml:"context,omitempty" json:"context,omitempty"`

	// Base image reference
	Base string `yaml:"base" json:"base"`

	// Build platform, falls back to the service/topology platform
	Platform string `yaml:"platform,omitempty" json:"platform,omitempty"`

	// Ordered K=V pairs
	Env []string `yaml:"env,omitempty" json:"env,omitempty"`

	WorkDir string      `yaml:"workdir,omitempty" json:"workdir,omitempty"`
	Steps   []BuildStep `yaml:"steps,omitempty" json:"steps,omitempty"`
	Expose  []int       `yaml:"expose,omitempty" json:"expose,omitempty"`

	// Default command
	Cmd []string `yaml:"cmd,omitempty" json:"cmd,omitempty"`
}

type BuildStep struct {
	Kind BuildStepKind `yaml:"kind" json:"kind"`

	// repository
	Repository string `yaml:"repository,omitempty" json:"repository,omitempty"`

	// packages
	Packages []string `yaml:"packages,omitempty" json:"packages,omitempty"`

	// dependencies: pip | poetry
	Manager   string   `yaml:"manager,omitempty" json:"manager,omitempty"`
	Manifests []string `yaml:"manifests,omitempty" json:"manifests,omitempty"`

	// copy
	Source      string `yaml:"source,omitempty" json:"source,omitempty"`
	Destination string `yaml:"destination,omitempty" json:"destination,omitempty"`

	// run
	Command string `yaml:"command,omitempty" json:"command,omitempty"`
}
