package docker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/containerd/errdefs"
	"github.com/ezenkico/indi-stack/services/readiness"
	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/network"
	"github.com/moby/moby/client"
)

// fakeEngine records Engine API calls in order. Containers and networks it
// does not know about are reported as not found.
type fakeEngine struct {
	mu    sync.Mutex
	calls []string

	images     map[string]bool
	buildErrs  map[string]string
	containers map[string]map[string]string // name -> labels
	networks   map[string]map[string]string

	onStart  func(name string)
	onCreate func(name string)
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		images:     map[string]bool{},
		buildErrs:  map[string]string{},
		containers: map[string]map[string]string{},
		networks:   map[string]map[string]string{},
	}
}

func (f *fakeEngine) record(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeEngine) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeEngine) ImageBuild(_ context.Context, buildContext io.Reader, options client.ImageBuildOptions) (client.ImageBuildResult, error) {
	_, _ = io.Copy(io.Discard, buildContext)
	tag := options.Tags[0]
	f.record("build %s", tag)

	stream := `{"stream":"Step 1/3 : FROM base\n"}` + "\n"
	if msg, ok := f.buildErrs[tag]; ok {
		stream += fmt.Sprintf(`{"errorDetail":{"message":%q},"error":%q}`, msg, msg) + "\n"
	} else {
		stream += `{"stream":"Successfully tagged ` + tag + `\n"}` + "\n"
		f.mu.Lock()
		f.images[tag] = true
		f.mu.Unlock()
	}
	return client.ImageBuildResult{Body: io.NopCloser(strings.NewReader(stream))}, nil
}

func (f *fakeEngine) ImageInspect(_ context.Context, imageID string, _ ...client.ImageInspectOption) (client.ImageInspectResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.images[imageID] {
		return client.ImageInspectResult{}, errdefs.ErrNotFound
	}
	return client.ImageInspectResult{}, nil
}

func (f *fakeEngine) ContainerCreate(_ context.Context, options client.ContainerCreateOptions) (client.ContainerCreateResult, error) {
	f.record("create %s", options.Name)
	if f.onCreate != nil {
		f.onCreate(options.Name)
	}
	f.mu.Lock()
	f.containers[options.Name] = options.Config.Labels
	f.mu.Unlock()
	return client.ContainerCreateResult{ID: options.Name}, nil
}

func (f *fakeEngine) ContainerStart(_ context.Context, containerID string, _ client.ContainerStartOptions) (client.ContainerStartResult, error) {
	f.record("start %s", containerID)
	if f.onStart != nil {
		f.onStart(containerID)
	}
	return client.ContainerStartResult{}, nil
}

func (f *fakeEngine) ContainerStop(_ context.Context, containerID string, _ client.ContainerStopOptions) (client.ContainerStopResult, error) {
	f.record("stop %s", containerID)
	return client.ContainerStopResult{}, nil
}

func (f *fakeEngine) ContainerRemove(_ context.Context, containerID string, _ client.ContainerRemoveOptions) (client.ContainerRemoveResult, error) {
	f.record("remove %s", containerID)
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.containers[containerID]; !ok {
		return client.ContainerRemoveResult{}, errdefs.ErrNotFound
	}
	delete(f.containers, containerID)
	return client.ContainerRemoveResult{}, nil
}

func (f *fakeEngine) ContainerInspect(_ context.Context, containerID string, _ client.ContainerInspectOptions) (client.ContainerInspectResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.containers[containerID]; !ok {
		return client.ContainerInspectResult{}, errdefs.ErrNotFound
	}
	return client.ContainerInspectResult{}, nil
}

func (f *fakeEngine) ContainerList(_ context.Context, _ client.ContainerListOptions) (client.ContainerListResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res := client.ContainerListResult{}
	for name, labels := range f.containers {
		res.Items = append(res.Items, container.Summary{ID: name, Names: []string{"/" + name}, Labels: labels})
	}
	return res, nil
}

func (f *fakeEngine) ContainerLogs(_ context.Context, containerID string, _ client.ContainerLogsOptions) (client.ContainerLogsResult, error) {
	f.record("logs %s", containerID)
	return io.NopCloser(strings.NewReader("")), nil
}

func (f *fakeEngine) NetworkCreate(_ context.Context, name string, options client.NetworkCreateOptions) (client.NetworkCreateResult, error) {
	f.record("network create %s", name)
	f.mu.Lock()
	f.networks[name] = options.Labels
	f.mu.Unlock()
	return client.NetworkCreateResult{ID: name}, nil
}

func (f *fakeEngine) NetworkInspect(_ context.Context, networkID string, _ client.NetworkInspectOptions) (client.NetworkInspectResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.networks[networkID]; !ok {
		return client.NetworkInspectResult{}, errdefs.ErrNotFound
	}
	return client.NetworkInspectResult{}, nil
}

func (f *fakeEngine) NetworkList(_ context.Context, _ client.NetworkListOptions) (client.NetworkListResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res := client.NetworkListResult{}
	for name := range f.networks {
		res.Items = append(res.Items, network.Summary{Network: network.Network{Name: name, ID: name}})
	}
	return res, nil
}

func (f *fakeEngine) NetworkRemove(_ context.Context, networkID string, _ client.NetworkRemoveOptions) (client.NetworkRemoveResult, error) {
	f.record("network remove %s", networkID)
	f.mu.Lock()
	delete(f.networks, networkID)
	f.mu.Unlock()
	return client.NetworkRemoveResult{}, nil
}

func (f *fakeEngine) Close() error { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testPlatform(f *fakeEngine) *DockerPlatform {
	logger := discardLogger()
	p := newPlatform(f, logger, readiness.NewProber(logger, nil))
	p.SetOutput(io.Discard, io.Discard)
	return p
}
