package docker

import (
	"context"
	"fmt"

	"github.com/ezenkico/indi-stack/models"
	"github.com/ezenkico/indi-stack/services"
	"github.com/ezenkico/indi-stack/services/readiness"
	"github.com/google/uuid"

	"github.com/moby/moby/client"
)

type UpOptions struct {
	ProjectDir string

	// Start dependents as soon as dependencies are started, without probing
	SkipReadiness bool

	// Host published ports are probed on; defaults to 127.0.0.1
	ProbeHost string
}

func (p *DockerPlatform) EnsureNetwork(ctx context.Context, project string, run uuid.UUID) (string, error) {
	netName := services.DockerNetworkName(project)

	if _, err := p.client.NetworkInspect(ctx, netName, client.NetworkInspectOptions{}); err == nil {
		return netName, nil
	}

	_, err := p.client.NetworkCreate(ctx, netName, client.NetworkCreateOptions{
		Labels: map[string]string{
			services.LabelProject: project,
			services.LabelRun:     run.String(),
		},
	})
	if err != nil {
		// Race-safe: re-inspect
		if _, ie := p.client.NetworkInspect(ctx, netName, client.NetworkInspectOptions{}); ie != nil {
			return "", fmt.Errorf("create network %q: %w", netName, err)
		}
	}

	return netName, nil
}

// SetupService replaces any existing container of the service with a fresh
// one and starts it. A start failure (e.g. the host port is taken) is fatal.
func (p *DockerPlatform) SetupService(
	ctx context.Context,
	project string,
	run uuid.UUID,
	netName string,
	projectDir string,
	svc models.ServiceDescriptor,
) error {
	spec, err := BuildContainerSpec(project, run, netName, projectDir, svc)
	if err != nil {
		return err
	}

	if err := p.removeContainer(ctx, spec.Name); err != nil {
		return err
	}

	created, err := p.client.ContainerCreate(ctx, client.ContainerCreateOptions{
		Config:           spec.Config,
		HostConfig:       spec.HostConfig,
		NetworkingConfig: spec.Networking,
		Name:             spec.Name,
		Image:            svc.Image,
	})
	if err != nil {
		return fmt.Errorf("create container %q: %w", spec.Name, err)
	}

	if _, err := p.client.ContainerStart(ctx, created.ID, client.ContainerStartOptions{}); err != nil {
		return fmt.Errorf("start container %q: %w", spec.Name, err)
	}

	p.logger.Info("Started service",
		"service", svc.Name,
		"container", spec.Name,
		"image", svc.Image)
	return nil
}

// Up starts every service in dependency order. Unless readiness is skipped,
// a service is only started once each dependency that declares a readiness
// check accepts connections on its published port.
func (p *DockerPlatform) Up(ctx context.Context, run uuid.UUID, topo models.Topology, opts UpOptions) error {
	order, err := services.StartOrder(topo.Services)
	if err != nil {
		return err
	}

	netName, err := p.EnsureNetwork(ctx, topo.Name, run)
	if err != nil {
		return err
	}

	ready := make(map[string]struct{})

	for _, name := range order {
		svc := topo.Services[name]

		if !opts.SkipReadiness {
			for _, dep := range svc.DependsOn {
				if _, ok := ready[dep]; ok {
					continue
				}
				if err := p.WaitReady(ctx, topo.Services[dep], opts.ProbeHost); err != nil {
					return fmt.Errorf("service %q: dependency %q: %w", name, dep, err)
				}
				ready[dep] = struct{}{}
			}
		}

		if err := p.SetupService(ctx, topo.Name, run, netName, opts.ProjectDir, svc); err != nil {
			return err
		}
	}

	p.logger.Info("Topology up", "project", topo.Name, "run", run.String(), "services", order)
	return nil
}

// WaitReady probes the service's readiness port. Services without a
// readiness check count as ready once started.
func (p *DockerPlatform) WaitReady(ctx context.Context, svc models.ServiceDescriptor, probeHost string) error {
	if svc.Readiness == nil {
		return nil
	}

	host, port, err := ReadinessEndpoint(svc, probeHost)
	if err != nil {
		return err
	}

	_, err = p.prober.Probe(ctx, readiness.TCPEndpoint(host, port), readiness.Policy{
		Timeout:         svc.Readiness.Timeout,
		InitialInterval: svc.Readiness.Interval,
	})
	return err
}
