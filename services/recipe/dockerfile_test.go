package recipe

import (
	"strings"
	"testing"

	"github.com/ezenkico/indi-stack/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serverRecipe() models.BuildRecipe {
	return models.BuildRecipe{
		Base:     "ubuntu:22.04",
		Platform: "linux/amd64",
		Env:      []string{"DEBIAN_FRONTEND=noninteractive"},
		Steps: []models.BuildStep{
			{Kind: models.BuildStepPackages, Packages: []string{"software-properties-common"}},
			{Kind: models.BuildStepRepository, Repository: "ppa:mutlaqja/ppa"},
			{Kind: models.BuildStepPackages, Packages: []string{"indi-full"}},
		},
		Expose: []int{7624},
		Cmd:    []string{"indiserver", "indi_simulator_telescope", "indi_simulator_ccd"},
	}
}

func TestRenderDockerfile_PreservesStepOrder(t *testing.T) {
	out, err := RenderDockerfile(serverRecipe())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 7)
	assert.Equal(t, "FROM --platform=linux/amd64 ubuntu:22.04", lines[0])
	assert.Equal(t, "ENV DEBIAN_FRONTEND=noninteractive", lines[1])
	assert.Contains(t, lines[2], "software-properties-common")
	assert.Equal(t, "RUN apt-add-repository -y ppa:mutlaqja/ppa", lines[3])
	assert.Contains(t, lines[4], "install -y --no-install-recommends indi-full")
	assert.Equal(t, "EXPOSE 7624", lines[5])
	assert.Equal(t, `CMD ["indiserver","indi_simulator_telescope","indi_simulator_ccd"]`, lines[6])
}

func TestRenderDockerfile_Dependencies(t *testing.T) {
	r := models.BuildRecipe{
		Base:    "python:3.11-slim",
		Env:     []string{"PYTHONUNBUFFERED=1", "GREETING=hello world"},
		WorkDir: "/app",
		Steps: []models.BuildStep{
			{Kind: models.BuildStepRun, Command: "pip install --no-cache-dir poetry"},
			{Kind: models.BuildStepDependencies, Manager: ManagerPoetry},
		},
		Cmd: []string{"python", "main.py"},
	}

	out, err := RenderDockerfile(r)
	require.NoError(t, err)
	assert.Contains(t, out, "FROM python:3.11-slim\n")
	assert.Contains(t, out, `ENV GREETING="hello world"`)
	assert.Contains(t, out, "WORKDIR /app\n")
	assert.Contains(t, out, "COPY pyproject.toml poetry.lock ./\nRUN poetry install")
	assert.Less(t, strings.Index(out, "pip install --no-cache-dir poetry"), strings.Index(out, "poetry install"))
	assert.True(t, NeedsContext(r))
	assert.False(t, NeedsContext(serverRecipe()))
}

func TestRenderDockerfile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*models.BuildRecipe)
		wantErr string
	}{
		{"no base", func(r *models.BuildRecipe) { r.Base = "" }, "no base image"},
		{"bad env", func(r *models.BuildRecipe) { r.Env = []string{"NOPE"} }, "KEY=VALUE"},
		{"empty packages", func(r *models.BuildRecipe) {
			r.Steps = append(r.Steps, models.BuildStep{Kind: models.BuildStepPackages})
		}, "step 4 (packages): no packages listed"},
		{"unknown kind", func(r *models.BuildRecipe) {
			r.Steps = []models.BuildStep{{Kind: "download"}}
		}, `unknown step kind "download"`},
		{"unknown manager", func(r *models.BuildRecipe) {
			r.Steps = []models.BuildStep{{Kind: models.BuildStepDependencies, Manager: "conda"}}
		}, "unknown dependency manager"},
		{"bad expose", func(r *models.BuildRecipe) { r.Expose = []int{0} }, "out of range"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := serverRecipe()
			tt.mutate(&r)
			err := Validate(r)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
