package docker

import (
	"context"
	"fmt"
	"time"

	"github.com/ezenkico/indi-stack/models"
	"github.com/ezenkico/indi-stack/services"
	"github.com/ezenkico/indi-stack/services/readiness"

	"github.com/moby/moby/client"
)

type RaceOptions struct {
	Cycles int

	// How long each cycle waits for the port after the container started
	Window time.Duration

	ProbeHost string
}

type RaceReport struct {
	Service string
	Cycles  int

	// First attempt right after "container started" was refused or hung up on
	FirstAttemptNotReady int

	// Port accepted a connection within the window
	ReadyWithinWindow int

	MaxTimeToReady time.Duration
}

func (r RaceReport) String() string {
	return fmt.Sprintf("%s: %d cycles, first attempt not ready %d, ready within window %d, slowest %s",
		r.Service, r.Cycles, r.FirstAttemptNotReady, r.ReadyWithinWindow, r.MaxTimeToReady.Round(time.Millisecond))
}

// RaceCheck restarts a running service's container repeatedly and dials its
// readiness port the moment the start call returns. Refusals show that a
// started container is not necessarily accepting connections yet.
func (p *DockerPlatform) RaceCheck(ctx context.Context, topo models.Topology, service string, opts RaceOptions) (RaceReport, error) {
	svc, ok := topo.Services[service]
	if !ok {
		return RaceReport{}, fmt.Errorf("service %q does not exist", service)
	}
	host, port, err := ReadinessEndpoint(svc, opts.ProbeHost)
	if err != nil {
		return RaceReport{}, err
	}
	if opts.Cycles <= 0 {
		opts.Cycles = 1
	}
	if opts.Window <= 0 {
		opts.Window = 5 * time.Second
	}

	ep := readiness.TCPEndpoint(host, port)
	containerName := services.DockerContainerName(topo.Name, svc)
	report := RaceReport{Service: service}

	for i := 0; i < opts.Cycles; i++ {
		if _, err := p.client.ContainerStop(ctx, containerName, client.ContainerStopOptions{}); err != nil {
			return report, fmt.Errorf("stop container %q: %w", containerName, err)
		}
		if _, err := p.client.ContainerStart(ctx, containerName, client.ContainerStartOptions{}); err != nil {
			return report, fmt.Errorf("start container %q: %w", containerName, err)
		}
		started := time.Now()

		first := p.prober.Once(ctx, ep, 500*time.Millisecond)
		if !first.Ready {
			report.FirstAttemptNotReady++
		}

		ready := first.Ready
		if remaining := opts.Window - time.Since(started); !ready && remaining > 0 {
			_, err := p.prober.Probe(ctx, ep, readiness.Policy{
				Timeout:         remaining,
				InitialInterval: 50 * time.Millisecond,
				MaxInterval:     500 * time.Millisecond,
			})
			ready = err == nil
		}
		if ready {
			report.ReadyWithinWindow++
			report.MaxTimeToReady = max(report.MaxTimeToReady, time.Since(started))
		}
		report.Cycles++

		p.logger.Debug("Race cycle",
			"service", service,
			"cycle", i+1,
			"first_refused", first.Refused,
			"first_closed", first.Closed,
			"ready", ready)
	}

	return report, nil
}
