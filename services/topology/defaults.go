package topology

import (
	"github.com/ezenkico/indi-stack/models"
	"github.com/ezenkico/indi-stack/services/recipe"
)

const (
	DefaultProject  = "indi-sandbox"
	DefaultPlatform = "linux/amd64"

	ServerService = "indi"
	ClientService = "api"

	ServerPort = 7624
	ClientPort = 8888
)

// Default returns the INDI sandbox: a device server running two simulator
// drivers and a client that mounts the project directory and depends on it.
func Default() models.Topology {
	t := models.Topology{
		Name:     DefaultProject,
		Platform: DefaultPlatform,
		Services: map[string]models.ServiceDescriptor{
			ServerService: {
				ContainerName: "indi",
				Build: &models.BuildRecipe{
					Base: "ubuntu:22.04",
					Env:  []string{"DEBIAN_FRONTEND=noninteractive"},
					Steps: []models.BuildStep{
						{Kind: models.BuildStepPackages, Packages: []string{"software-properties-common"}},
						{Kind: models.BuildStepRepository, Repository: "ppa:mutlaqja/ppa"},
						{Kind: models.BuildStepPackages, Packages: []string{"indi-full"}},
					},
					Expose: []int{ServerPort},
					Cmd:    []string{"indiserver", "indi_simulator_telescope", "indi_simulator_ccd"},
				},
				Ports: []models.PortBinding{
					{HostPort: ServerPort, ContainerPort: ServerPort},
				},
				Readiness: &models.ReadinessSpec{Port: ServerPort},
			},
			ClientService: {
				ContainerName: "api",
				Build: &models.BuildRecipe{
					Context: ".",
					Base:    "python:3.11-slim",
					Env: []string{
						"PYTHONDONTWRITEBYTECODE=1",
						"PYTHONUNBUFFERED=1",
						"POETRY_VIRTUALENVS_CREATE=false",
					},
					WorkDir: "/app",
					Steps: []models.BuildStep{
						{Kind: models.BuildStepPackages, Packages: []string{
							"build-essential", "swig", "libindi-dev", "libnova-dev", "libcfitsio-dev", "zlib1g-dev",
						}},
						{Kind: models.BuildStepRun, Command: "pip install --no-cache-dir poetry"},
						{Kind: models.BuildStepDependencies, Manager: recipe.ManagerPoetry},
					},
					Expose: []int{ClientPort},
					Cmd:    []string{"python", "main.py"},
				},
				Ports: []models.PortBinding{
					{HostPort: ClientPort, ContainerPort: ClientPort},
				},
				Volumes: []models.VolumeMount{
					{HostPath: ".", MountPath: "/app"},
				},
				DependsOn: []string{ServerService},
			},
		},
	}

	ApplyDefaults(&t)
	return t
}
