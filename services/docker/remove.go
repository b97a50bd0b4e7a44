package docker

import (
	"context"
	"fmt"

	"github.com/containerd/errdefs"
	"github.com/ezenkico/indi-stack/models"
	"github.com/ezenkico/indi-stack/services"

	"github.com/moby/moby/client"
)

// removeContainer stops and removes a container by name or ID. A missing
// container is not an error.
func (p *DockerPlatform) removeContainer(ctx context.Context, nameOrID string) error {
	if _, err := p.client.ContainerInspect(ctx, nameOrID, client.ContainerInspectOptions{}); err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("inspect container %q: %w", nameOrID, err)
	}

	// Stop (best-effort) then remove
	_, _ = p.client.ContainerStop(ctx, nameOrID, client.ContainerStopOptions{})
	_, err := p.client.ContainerRemove(ctx, nameOrID, client.ContainerRemoveOptions{
		Force:         true,
		RemoveVolumes: false,
	})
	if err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("remove container %q: %w", nameOrID, err)
	}
	return nil
}

// RemoveServices stops and removes the named services' containers.
func (p *DockerPlatform) RemoveServices(ctx context.Context, topo models.Topology, names []string) error {
	for _, name := range names {
		svc, ok := topo.Services[name]
		if !ok {
			return fmt.Errorf("service %q does not exist", name)
		}

		containerName := services.DockerContainerName(topo.Name, svc)
		if err := p.removeContainer(ctx, containerName); err != nil {
			return err
		}
		p.logger.Info("Removed service", "service", name, "container", containerName)
	}

	return nil
}
