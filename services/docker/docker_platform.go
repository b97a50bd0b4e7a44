package docker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ezenkico/indi-stack/models"
	"github.com/ezenkico/indi-stack/services"
	"github.com/ezenkico/indi-stack/services/readiness"
	"github.com/google/uuid"

	"github.com/moby/moby/client"
)

// DockerPlatform implements interfaces.Platform for plain Docker (Engine API).
type DockerPlatform struct {
	client engine
	logger *slog.Logger
	prober *readiness.Prober

	// Build output and status tables
	out io.Writer
	// Container stderr when streaming logs
	errOut io.Writer
}

// NewDockerPlatform initializes the Docker platform using environment variables
// (e.g. DOCKER_HOST) and API version negotiation.
func NewDockerPlatform(logger *slog.Logger, prober *readiness.Prober) (*DockerPlatform, error) {
	c, err := client.New(
		client.FromEnv,
	)
	if err != nil {
		return nil, err
	}

	return newPlatform(c, logger, prober), nil
}

func newPlatform(c engine, logger *slog.Logger, prober *readiness.Prober) *DockerPlatform {
	if logger == nil {
		logger = slog.Default()
	}
	if prober == nil {
		prober = readiness.NewProber(logger, nil)
	}

	return &DockerPlatform{
		client: c,
		logger: logger,
		prober: prober,
		out:    os.Stdout,
		errOut: os.Stderr,
	}
}

// SetOutput redirects build output, status tables and container logs.
func (p *DockerPlatform) SetOutput(out, errOut io.Writer) {
	p.out = out
	p.errOut = errOut
}

func (p *DockerPlatform) Close() error {
	return p.client.Close()
}

// Run executes the requested action for the configuration's topology.
func (p *DockerPlatform) Run(ctx context.Context, config models.Configuration) error {
	if config.Spec == nil {
		return fmt.Errorf("configuration has no topology")
	}
	topo := *config.Spec

	if config.Run == uuid.Nil {
		config.Run = uuid.New()
	}

	projectDir, err := filepath.Abs(config.ProjectDir)
	if err != nil {
		return fmt.Errorf("resolve project dir: %w", err)
	}

	switch config.Action {
	case models.ActionDown:
		if config.Services != nil && len(*config.Services) > 0 {
			return p.RemoveServices(ctx, topo, *config.Services)
		}
		return p.Down(ctx, topo.Name)
	case models.ActionStatus:
		return p.PrintStatus(ctx, topo.Name)
	}

	if err := p.CheckTopology(topo); err != nil {
		return err
	}

	if config.Services != nil && len(*config.Services) > 0 {
		subset, err := services.Closure(topo.Services, *config.Services)
		if err != nil {
			return err
		}
		topo.Services = subset
	}

	switch config.Action {
	case models.ActionValidate:
		p.logger.Info("Topology is valid", "project", topo.Name, "services", len(topo.Services))
		return nil
	case models.ActionBuild:
		return p.Build(ctx, topo, projectDir)
	case models.ActionUp:
		if err := p.BuildMissing(ctx, topo, projectDir); err != nil {
			return err
		}
		return p.Up(ctx, config.Run, topo, UpOptions{
			ProjectDir:    projectDir,
			SkipReadiness: config.SkipReadiness,
			ProbeHost:     config.ProbeHost,
		})
	default:
		return fmt.Errorf("%q is not a valid action", config.Action)
	}
}
