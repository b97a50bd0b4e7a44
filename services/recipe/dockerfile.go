package recipe

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ezenkico/indi-stack/models"
)

const (
	ManagerPoetry = "poetry"
	ManagerPip    = "pip"
)

// DefaultManifests lists the files each dependency manager installs from.
func DefaultManifests(manager string) []string {
	switch manager {
	case ManagerPoetry:
		return []string{"pyproject.toml", "poetry.lock"}
	case ManagerPip:
		return []string{"requirements.txt"}
	default:
		return nil
	}
}

// Validate reports the first step that cannot be rendered.
func Validate(r models.BuildRecipe) error {
	_, err := RenderDockerfile(r)
	return err
}

// NeedsContext reports whether any step reads files from the build context.
func NeedsContext(r models.BuildRecipe) bool {
	for _, step := range r.Steps {
		if step.Kind == models.BuildStepCopy || step.Kind == models.BuildStepDependencies {
			return true
		}
	}
	return false
}

// RenderDockerfile renders one instruction group per step, in declared order.
func RenderDockerfile(r models.BuildRecipe) (string, error) {
	base := strings.TrimSpace(r.Base)
	if base == "" {
		return "", fmt.Errorf("build recipe has no base image")
	}

	var b strings.Builder

	if r.Platform != "" {
		fmt.Fprintf(&b, "FROM --platform=%s %s\n", r.Platform, base)
	} else {
		fmt.Fprintf(&b, "FROM %s\n", base)
	}

	for _, kv := range r.Env {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return "", fmt.Errorf("build env %q must be KEY=VALUE", kv)
		}
		fmt.Fprintf(&b, "ENV %s=%s\n", k, quoteEnv(v))
	}

	if r.WorkDir != "" {
		fmt.Fprintf(&b, "WORKDIR %s\n", r.WorkDir)
	}

	for i, step := range r.Steps {
		lines, err := renderStep(step)
		if err != nil {
			return "", fmt.Errorf("step %d (%s): %w", i+1, step.Kind, err)
		}
		for _, line := range lines {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}

	for _, port := range r.Expose {
		if port <= 0 || port > 65535 {
			return "", fmt.Errorf("expose port %d is out of range", port)
		}
		fmt.Fprintf(&b, "EXPOSE %d\n", port)
	}

	if len(r.Cmd) > 0 {
		cmd, err := json.Marshal(r.Cmd)
		if err != nil {
			return "", fmt.Errorf("marshal cmd: %w", err)
		}
		fmt.Fprintf(&b, "CMD %s\n", cmd)
	}

	return b.String(), nil
}

func renderStep(step models.BuildStep) ([]string, error) {
	switch step.Kind {
	case models.BuildStepRepository:
		repo := strings.TrimSpace(step.Repository)
		if repo == "" {
			return nil, fmt.Errorf("repository is empty")
		}
		return []string{fmt.Sprintf("RUN apt-add-repository -y %s", repo)}, nil

	case models.BuildStepPackages:
		if len(step.Packages) == 0 {
			return nil, fmt.Errorf("no packages listed")
		}
		return []string{fmt.Sprintf(
			"RUN apt-get update && apt-get install -y --no-install-recommends %s && rm -rf /var/lib/apt/lists/*",
			strings.Join(step.Packages, " "),
		)}, nil

	case models.BuildStepDependencies:
		manifests := step.Manifests
		if len(manifests) == 0 {
			manifests = DefaultManifests(step.Manager)
		}

		var install string
		switch step.Manager {
		case ManagerPoetry:
			install = "RUN poetry install --no-interaction --no-ansi --no-root"
		case ManagerPip:
			install = fmt.Sprintf("RUN pip install --no-cache-dir -r %s", manifests[0])
		default:
			return nil, fmt.Errorf("unknown dependency manager %q", step.Manager)
		}
		return []string{
			fmt.Sprintf("COPY %s ./", strings.Join(manifests, " ")),
			install,
		}, nil

	case models.BuildStepCopy:
		if step.Source == "" || step.Destination == "" {
			return nil, fmt.Errorf("copy needs source and destination")
		}
		return []string{fmt.Sprintf("COPY %s %s", step.Source, step.Destination)}, nil

	case models.BuildStepRun:
		if strings.TrimSpace(step.Command) == "" {
			return nil, fmt.Errorf("run command is empty")
		}
		return []string{"RUN " + step.Command}, nil

	default:
		return nil, fmt.Errorf("unknown step kind %q", step.Kind)
	}
}

func quoteEnv(v string) string {
	if v == "" || strings.ContainsAny(v, " \t\"'") {
		return fmt.Sprintf("%q", v)
	}
	return v
}
