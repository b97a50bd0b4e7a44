package docker

import (
	"fmt"
	"sort"

	"github.com/ezenkico/indi-stack/models"
	"github.com/ezenkico/indi-stack/services"
	"github.com/ezenkico/indi-stack/services/recipe"
)

// CheckTopology runs the static topology checks plus recipe rendering, so a
// malformed recipe fails before anything is built or started.
func (p *DockerPlatform) CheckTopology(topo models.Topology) error {
	return CheckTopology(topo)
}

func CheckTopology(topo models.Topology) error {
	if err := services.CheckTopology(topo); err != nil {
		return fmt.Errorf("invalid topology %q: %w", topo.Name, err)
	}

	for _, name := range serviceNames(topo) {
		svc := topo.Services[name]
		if svc.Build == nil {
			continue
		}
		if err := recipe.Validate(*svc.Build); err != nil {
			return fmt.Errorf("invalid topology %q: service %q: %w", topo.Name, name, err)
		}
	}

	return nil
}

func serviceNames(topo models.Topology) []string {
	names := make([]string, 0, len(topo.Services))
	for name := range topo.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
