package docker

import (
	"context"
	"fmt"

	"github.com/containerd/errdefs"
	"github.com/ezenkico/indi-stack/services"

	"github.com/moby/moby/client"
)

func projectFilter(project string) client.Filters {
	return make(client.Filters).
		Add("label", services.LabelProject+"="+project)
}

func (p *DockerPlatform) TearDownServices(ctx context.Context, project string) error {
	containers, err := p.client.ContainerList(ctx, client.ContainerListOptions{
		All:     true,
		Filters: projectFilter(project),
	})
	if err != nil {
		return fmt.Errorf("list project containers (project=%s): %w", project, err)
	}

	for _, c := range containers.Items {
		// Stop (best-effort) then remove
		_, _ = p.client.ContainerStop(ctx, c.ID, client.ContainerStopOptions{})
		_, err = p.client.ContainerRemove(ctx, c.ID, client.ContainerRemoveOptions{
			Force:         true,
			RemoveVolumes: false,
		})
		if err != nil && !errdefs.IsNotFound(err) {
			return fmt.Errorf("remove container %q: %w", c.ID, err)
		}
		p.logger.Info("Removed container", "service", c.Labels[services.LabelService], "id", shortID(c.ID))
	}

	return nil
}

func (p *DockerPlatform) TearDownNetworks(ctx context.Context, project string) error {
	nets, err := p.client.NetworkList(ctx, client.NetworkListOptions{
		Filters: projectFilter(project),
	})
	if err != nil {
		return fmt.Errorf("list project networks (project=%s): %w", project, err)
	}

	for _, n := range nets.Items {
		if n.Name == "" || n.ID == "" {
			continue
		}

		// Prefer removing by ID to avoid name collisions.
		if _, err := p.client.NetworkRemove(ctx, n.ID, client.NetworkRemoveOptions{}); err != nil {
			// Idempotent: if it vanished, ignore.
			if errdefs.IsNotFound(err) {
				continue
			}
			return fmt.Errorf("remove network %q (%s): %w", n.Name, n.ID, err)
		}
	}

	return nil
}

// Down removes every container and network labelled with the project.
func (p *DockerPlatform) Down(ctx context.Context, project string) error {
	if err := p.TearDownServices(ctx, project); err != nil {
		return err
	}
	if err := p.TearDownNetworks(ctx, project); err != nil {
		return err
	}

	p.logger.Info("Topology down", "project", project)
	return nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
