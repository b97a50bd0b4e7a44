package services

import (
	"errors"
	"fmt"
	"net/netip"
	"path"
	"sort"
	"strings"

	"github.com/ezenkico/indi-stack/models"
)

const (
	LabelProject = "indi-stack.project"
	LabelRun     = "indi-stack.run"
	LabelService = "indi-stack.service"
)

func safeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "-")
	return s
}

func DockerContainerName(project string, service models.ServiceDescriptor) string {
	if name := strings.TrimSpace(service.ContainerName); name != "" {
		return name
	}
	return fmt.Sprintf("%s-%s", safeName(project), safeName(service.Name))
}

func DockerNetworkName(project string) string {
	return fmt.Sprintf("%s-default", safeName(project))
}

func DockerImageTag(project, serviceKey string) string {
	return fmt.Sprintf("%s-%s:latest", safeName(project), safeName(serviceKey))
}

func sortedKeys(services map[string]models.ServiceDescriptor) []string {
	keys := make([]string, 0, len(services))
	for k := range services {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func CheckDependsOnServicesExist(services map[string]models.ServiceDescriptor) error {
	// Stable iteration (nicer error messages)
	for _, svcKey := range sortedKeys(services) {
		for _, depKey := range services[svcKey].DependsOn {
			if _, ok := services[depKey]; !ok {
				return fmt.Errorf("service %q depends_on %q, but %q does not exist", svcKey, depKey, depKey)
			}
		}
	}

	return nil
}

func CheckCircularDependencies(services map[string]models.ServiceDescriptor) error {
	const (
		unvisited = 0
		visiting  = 1
		visited   = 2
	)

	state := make(map[string]uint8, len(services))
	parent := make(map[string]string, len(services))

	var dfs func(string) error
	dfs = func(node string) error {
		switch state[node] {
		case visiting:
			return fmt.Errorf("circular dependency detected: %s", reconstructCycle(parent, node))
		case visited:
			return nil
		}

		state[node] = visiting

		for _, dep := range services[node].DependsOn {
			// Existence is checked elsewhere.
			if _, ok := services[dep]; !ok {
				continue
			}
			if _, ok := parent[dep]; !ok {
				parent[dep] = node
			}
			if err := dfs(dep); err != nil {
				return err
			}
		}

		state[node] = visited
		return nil
	}

	for _, node := range sortedKeys(services) {
		if state[node] == unvisited {
			if err := dfs(node); err != nil {
				return err
			}
		}
	}

	return nil
}

func reconstructCycle(parent map[string]string, start string) string {
	seen := map[string]bool{start: true}
	cycle := []string{start}

	cur := start
	for {
		p, ok := parent[cur]
		if !ok {
			break
		}
		cycle = append(cycle, p)
		if seen[p] {
			break
		}
		seen[p] = true
		cur = p
	}

	for i, j := 0, len(cycle)-1; i < j; i, j = i+1, j-1 {
		cycle[i], cycle[j] = cycle[j], cycle[i]
	}
	if len(cycle) > 0 && cycle[len(cycle)-1] != cycle[0] {
		cycle = append(cycle, cycle[0])
	}

	quoted := make([]string, len(cycle))
	for i, s := range cycle {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return strings.Join(quoted, " -> ")
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}

// CheckPortBindings requires every binding to be a pair of ports in
// 1..65535 on a literal host IP, and refuses to publish the same host port
// twice.
func CheckPortBindings(services map[string]models.ServiceDescriptor) error {
	published := make(map[string]string)

	for _, svcKey := range sortedKeys(services) {
		for _, b := range services[svcKey].Ports {
			if !validPort(b.HostPort) {
				return fmt.Errorf("service %q has invalid host port %d in %q", svcKey, b.HostPort, b.String())
			}
			if !validPort(b.ContainerPort) {
				return fmt.Errorf("service %q has invalid container port %d in %q", svcKey, b.ContainerPort, b.String())
			}
			switch b.Proto() {
			case "tcp", "udp", "sctp":
			default:
				return fmt.Errorf("service %q has unsupported protocol %q", svcKey, b.Protocol)
			}
			if b.HostIP != "" {
				if _, err := netip.ParseAddr(b.HostIP); err != nil {
					return fmt.Errorf("service %q has invalid host_ip %q: %w", svcKey, b.HostIP, err)
				}
			}

			key := fmt.Sprintf("%s:%d/%s", b.HostIP, b.HostPort, b.Proto())
			if owner, ok := published[key]; ok {
				return fmt.Errorf("service %q publishes host port %d already published by %q", svcKey, b.HostPort, owner)
			}
			published[key] = svcKey
		}
	}

	return nil
}

func CheckServiceVolumeMounts(services map[string]models.ServiceDescriptor) error {
	for _, svcKey := range sortedKeys(services) {
		// Ensure no duplicate mount paths inside a service
		seenMountPath := map[string]struct{}{}

		for _, m := range services[svcKey].Volumes {
			if strings.TrimSpace(m.HostPath) == "" {
				return fmt.Errorf("service %q has a volume with empty host path", svcKey)
			}

			mountPath := strings.TrimSpace(m.MountPath)
			if mountPath == "" {
				return fmt.Errorf("service %q has a volume with empty mount_path", svcKey)
			}
			if !strings.HasPrefix(mountPath, "/") {
				return fmt.Errorf("service %q volume mount_path %q must be absolute", svcKey, mountPath)
			}
			mountPath = path.Clean(mountPath)
			if _, ok := seenMountPath[mountPath]; ok {
				return fmt.Errorf("service %q has duplicate volume mount_path %q", svcKey, mountPath)
			}
			seenMountPath[mountPath] = struct{}{}
		}
	}

	return nil
}

func CheckServiceImages(services map[string]models.ServiceDescriptor) error {
	for _, svcKey := range sortedKeys(services) {
		svc := services[svcKey]
		if svc.Build == nil && strings.TrimSpace(svc.Image) == "" {
			return fmt.Errorf("service %q needs either an image or a build recipe", svcKey)
		}
		if svc.Build != nil && strings.TrimSpace(svc.Build.Base) == "" {
			return fmt.Errorf("service %q build recipe has no base image", svcKey)
		}
		if svc.Readiness != nil && !validPort(svc.Readiness.Port) {
			return fmt.Errorf("service %q readiness port %d is invalid", svcKey, svc.Readiness.Port)
		}
	}

	return nil
}

// CheckTopology runs every static check and reports all failures at once.
// The cycle check only runs when every dependency resolves.
func CheckTopology(t models.Topology) error {
	if strings.TrimSpace(t.Name) == "" {
		return errors.New("topology name is required")
	}
	if len(t.Services) == 0 {
		return errors.New("topology defines no services")
	}

	var errs []error
	if err := CheckDependsOnServicesExist(t.Services); err != nil {
		errs = append(errs, err)
	} else if err := CheckCircularDependencies(t.Services); err != nil {
		errs = append(errs, err)
	}
	if err := CheckPortBindings(t.Services); err != nil {
		errs = append(errs, err)
	}
	if err := CheckServiceVolumeMounts(t.Services); err != nil {
		errs = append(errs, err)
	}
	if err := CheckServiceImages(t.Services); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// StartOrder returns service names with every dependency ahead of its
// dependents. Services that become startable together are ordered by name.
func StartOrder(services map[string]models.ServiceDescriptor) ([]string, error) {
	remaining := make(map[string]int, len(services))
	dependents := make(map[string][]string, len(services))
	for _, name := range sortedKeys(services) {
		deps := uniqueStrings(services[name].DependsOn)
		remaining[name] = len(deps)
		for _, dep := range deps {
			if _, ok := services[dep]; !ok {
				return nil, fmt.Errorf("service %q depends_on %q, but %q does not exist", name, dep, dep)
			}
			dependents[dep] = append(dependents[dep], name)
		}
	}

	ready := []string{}
	for name, n := range remaining {
		if n == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(services))
	for len(ready) > 0 {
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)

		for _, d := range dependents[next] {
			remaining[d]--
			if remaining[d] == 0 {
				ready = append(ready, d)
				sort.Strings(ready)
			}
		}
	}

	if len(order) != len(services) {
		if err := CheckCircularDependencies(services); err != nil {
			return nil, err
		}
		return nil, errors.New("dependency graph could not be ordered")
	}

	return order, nil
}

// Closure returns the named services plus everything they depend on.
func Closure(services map[string]models.ServiceDescriptor, names []string) (map[string]models.ServiceDescriptor, error) {
	out := make(map[string]models.ServiceDescriptor)

	var visit func(string) error
	visit = func(name string) error {
		if _, ok := out[name]; ok {
			return nil
		}
		svc, ok := services[name]
		if !ok {
			return fmt.Errorf("service %q does not exist", name)
		}
		out[name] = svc
		for _, dep := range svc.DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		return nil
	}

	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
