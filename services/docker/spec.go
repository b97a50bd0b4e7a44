package docker

import (
	"fmt"
	"net/netip"
	"sort"
	"strconv"

	"github.com/ezenkico/indi-stack/models"
	"github.com/ezenkico/indi-stack/services"
	"github.com/google/uuid"

	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/mount"
	"github.com/moby/moby/api/types/network"
)

// ContainerSpec is everything ContainerCreate needs for one service.
type ContainerSpec struct {
	Name       string
	Config     *container.Config
	HostConfig *container.HostConfig
	Networking *network.NetworkingConfig
}

// BuildContainerSpec maps a service descriptor onto Engine API container,
// host and networking configs. Relative host paths resolve against projectDir.
func BuildContainerSpec(project string, run uuid.UUID, netName, projectDir string, svc models.ServiceDescriptor) (ContainerSpec, error) {
	containerName := services.DockerContainerName(project, svc)

	// Env
	keys := make([]string, 0, len(svc.Environment))
	for k := range svc.Environment {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, fmt.Sprintf("%s=%s", k, svc.Environment[k]))
	}

	// Bind mounts, in declared order
	mounts := make([]mount.Mount, 0, len(svc.Volumes))
	for _, vm := range svc.Volumes {
		mounts = append(mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   resolvePath(projectDir, vm.HostPath),
			Target:   vm.MountPath,
			ReadOnly: vm.ReadOnly,
		})
	}

	// Port bindings
	exposed := network.PortSet{}
	portMap := network.PortMap{}
	for _, b := range svc.Ports {
		port, ok := network.PortFrom(uint16(b.ContainerPort), network.IPProtocol(b.Proto()))
		if !ok {
			return ContainerSpec{}, fmt.Errorf("service %q has invalid port binding %q", svc.Name, b.String())
		}
		exposed[port] = struct{}{}

		hostIP := b.HostIP
		if hostIP == "" {
			hostIP = "0.0.0.0"
		}
		addr, err := netip.ParseAddr(hostIP)
		if err != nil {
			return ContainerSpec{}, fmt.Errorf("service %q has invalid host_ip %q: %w", svc.Name, hostIP, err)
		}

		portMap[port] = append(portMap[port], network.PortBinding{
			HostIP:   addr,
			HostPort: strconv.Itoa(b.HostPort),
		})
	}

	labels := map[string]string{
		services.LabelProject: project,
		services.LabelRun:     run.String(),
		services.LabelService: svc.Name,
	}

	cCfg := &container.Config{
		Image:        svc.Image,
		Env:          env,
		Labels:       labels,
		ExposedPorts: exposed,
	}
	if len(svc.Command) > 0 {
		cCfg.Cmd = svc.Command
	}

	hCfg := &container.HostConfig{
		Mounts:       mounts,
		PortBindings: portMap,
		RestartPolicy: container.RestartPolicy{
			Name: container.RestartPolicyDisabled,
		},
	}

	nCfg := &network.NetworkingConfig{
		EndpointsConfig: map[string]*network.EndpointSettings{
			netName: {Aliases: []string{svc.Name}},
		},
	}

	return ContainerSpec{
		Name:       containerName,
		Config:     cCfg,
		HostConfig: hCfg,
		Networking: nCfg,
	}, nil
}

// ReadinessEndpoint resolves the host-side address of a service's readiness
// port. Unset and wildcard host IPs are probed on probeHost.
func ReadinessEndpoint(svc models.ServiceDescriptor, probeHost string) (string, int, error) {
	if svc.Readiness == nil {
		return "", 0, fmt.Errorf("service %q has no readiness check", svc.Name)
	}
	if probeHost == "" {
		probeHost = "127.0.0.1"
	}

	for _, b := range svc.Ports {
		if b.ContainerPort != svc.Readiness.Port || b.Proto() != "tcp" {
			continue
		}
		host := b.HostIP
		if host == "" || host == "0.0.0.0" || host == "::" {
			host = probeHost
		}
		return host, b.HostPort, nil
	}

	return "", 0, fmt.Errorf("service %q readiness port %d is not published", svc.Name, svc.Readiness.Port)
}
