package docker

import (
	"context"
	"fmt"

	"github.com/docker/docker/pkg/stdcopy"
	"github.com/ezenkico/indi-stack/models"
	"github.com/ezenkico/indi-stack/services"

	"github.com/moby/moby/client"
)

// Logs streams a service's container output, split into stdout and stderr.
func (p *DockerPlatform) Logs(ctx context.Context, topo models.Topology, service string, follow bool) error {
	svc, ok := topo.Services[service]
	if !ok {
		return fmt.Errorf("service %q does not exist", service)
	}
	containerName := services.DockerContainerName(topo.Name, svc)

	rc, err := p.client.ContainerLogs(ctx, containerName, client.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     follow,
		Timestamps: false,
		Since:      "0",
	})
	if err != nil {
		return fmt.Errorf("logs container %q: %w", containerName, err)
	}
	defer rc.Close()

	if _, err := stdcopy.StdCopy(p.out, p.errOut, rc); err != nil && ctx.Err() == nil {
		return fmt.Errorf("stream logs for %q: %w", containerName, err)
	}
	return nil
}
