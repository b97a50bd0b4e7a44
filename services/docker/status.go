package docker

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/ezenkico/indi-stack/models"
	"github.com/ezenkico/indi-stack/services"

	"github.com/moby/moby/client"
)

func (p *DockerPlatform) Status(ctx context.Context, project string) ([]models.ServiceStatus, error) {
	containers, err := p.client.ContainerList(ctx, client.ContainerListOptions{
		All:     true,
		Filters: projectFilter(project),
	})
	if err != nil {
		return nil, fmt.Errorf("list project containers (project=%s): %w", project, err)
	}

	out := make([]models.ServiceStatus, 0, len(containers.Items))
	for _, c := range containers.Items {
		name := ""
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}

		ports := []string{}
		for _, pt := range c.Ports {
			if pt.PublicPort == 0 {
				continue
			}
			ports = append(ports, fmt.Sprintf("%v:%d->%d/%s", pt.IP, pt.PublicPort, pt.PrivatePort, pt.Type))
		}
		sort.Strings(ports)

		out = append(out, models.ServiceStatus{
			Service:   c.Labels[services.LabelService],
			Container: name,
			Image:     c.Image,
			State:     string(c.State),
			Status:    c.Status,
			Run:       c.Labels[services.LabelRun],
			Ports:     ports,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Service < out[j].Service })
	return out, nil
}

func (p *DockerPlatform) PrintStatus(ctx context.Context, project string) error {
	statuses, err := p.Status(ctx, project)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(p.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SERVICE\tCONTAINER\tSTATE\tSTATUS\tPORTS")
	for _, s := range statuses {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.Service, s.Container, s.State, s.Status, strings.Join(s.Ports, ", "))
	}
	return w.Flush()
}
