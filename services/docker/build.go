package docker

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/ezenkico/indi-stack/models"
	"github.com/ezenkico/indi-stack/services"
	"github.com/ezenkico/indi-stack/services/recipe"

	"github.com/moby/moby/client"
)

// resolvePath makes p absolute against the project directory.
func resolvePath(projectDir, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(projectDir, p)
}

// buildContextDir returns the directory to send as build context, or "" when
// the recipe reads nothing from it.
func buildContextDir(projectDir string, r models.BuildRecipe) string {
	if r.Context == "" && !recipe.NeedsContext(r) {
		return ""
	}
	ctxDir := r.Context
	if ctxDir == "" {
		ctxDir = "."
	}
	return resolvePath(projectDir, ctxDir)
}

// BuildService renders the service's recipe, sends it with its context to
// the daemon and streams the build output. Any failing step fails the build.
func (p *DockerPlatform) BuildService(ctx context.Context, project, projectDir string, svc models.ServiceDescriptor) error {
	if svc.Build == nil {
		return nil
	}

	dockerfile, err := recipe.RenderDockerfile(*svc.Build)
	if err != nil {
		return fmt.Errorf("render recipe for %q: %w", svc.Name, err)
	}

	buildCtx, err := recipe.BuildContext(buildContextDir(projectDir, *svc.Build), dockerfile)
	if err != nil {
		return fmt.Errorf("build context for %q: %w", svc.Name, err)
	}
	defer buildCtx.Close()

	p.logger.Info("Building image", "service", svc.Name, "image", svc.Image, "platform", svc.Build.Platform)

	res, err := p.client.ImageBuild(ctx, buildCtx, client.ImageBuildOptions{
		Tags:        []string{svc.Image},
		Dockerfile:  recipe.DockerfileName,
		Remove:      true,
		ForceRemove: true,
		Labels: map[string]string{
			services.LabelProject: project,
			services.LabelService: svc.Name,
		},
	})
	if err != nil {
		return fmt.Errorf("build image %q: %w", svc.Image, err)
	}
	defer res.Body.Close()

	// The daemon reports step failures inside the stream, not as an HTTP error.
	if err := jsonmessage.DisplayJSONMessagesStream(res.Body, p.out, 0, false, nil); err != nil {
		return fmt.Errorf("build image %q for service %q: %w", svc.Image, svc.Name, err)
	}

	p.logger.Info("Built image", "service", svc.Name, "image", svc.Image)
	return nil
}

// Build builds every service with a recipe, dependencies first.
func (p *DockerPlatform) Build(ctx context.Context, topo models.Topology, projectDir string) error {
	order, err := services.StartOrder(topo.Services)
	if err != nil {
		return err
	}

	for _, name := range order {
		if err := p.BuildService(ctx, topo.Name, projectDir, topo.Services[name]); err != nil {
			return err
		}
	}
	return nil
}

// BuildMissing builds only the recipes whose image tag is not present yet.
func (p *DockerPlatform) BuildMissing(ctx context.Context, topo models.Topology, projectDir string) error {
	order, err := services.StartOrder(topo.Services)
	if err != nil {
		return err
	}

	for _, name := range order {
		svc := topo.Services[name]
		if svc.Build == nil {
			continue
		}

		_, err := p.client.ImageInspect(ctx, svc.Image)
		if err == nil {
			continue
		}
		if !errdefs.IsNotFound(err) {
			return fmt.Errorf("inspect image %q: %w", svc.Image, err)
		}

		if err := p.BuildService(ctx, topo.Name, projectDir, svc); err != nil {
			return err
		}
	}
	return nil
}
