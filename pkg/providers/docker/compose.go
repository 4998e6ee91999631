package docker

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/devstroop/console-mcp/pkg/core"
)

// Labels docker compose puts on the containers it creates.
const (
	labelProject = "com.docker.compose.project"
	labelService = "com.docker.compose.service"
)

// composeService is a service declared in a compose file, resolved to the
// container it runs as.
type composeService struct {
	Project   string
	Service   string
	Container string
	Image     string
	// Driver is the service's logging driver, empty for the daemon default.
	Driver string
	File   string
}

// loadCompose reads the services of a compose file in name order. The
// project comes from the file's name field, then project, then the file's
// directory, the same precedence docker compose uses.
func loadCompose(path, project string) ([]composeService, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read compose file: %w", err)
	}
	var doc struct {
		Name     string `yaml:"name"`
		Services map[string]struct {
			Image         string `yaml:"image"`
			ContainerName string `yaml:"container_name"`
			Logging       struct {
				Driver string `yaml:"driver"`
			} `yaml:"logging"`
		} `yaml:"services"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse compose file %s: %w", path, err)
	}

	switch {
	case doc.Name != "":
		project = doc.Name
	case project == "":
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, err
		}
		project = filepath.Base(filepath.Dir(abs))
	}
	project = strings.ToLower(project)

	names := make([]string, 0, len(doc.Services))
	for name := range doc.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	services := make([]composeService, 0, len(names))
	for _, name := range names {
		svc := doc.Services[name]
		container := svc.ContainerName
		if container == "" {
			container = project + "-" + name + "-1"
		}
		services = append(services, composeService{
			Project:   project,
			Service:   name,
			Container: container,
			Image:     svc.Image,
			Driver:    svc.Logging.Driver,
			File:      path,
		})
	}
	return services, nil
}

// readable reports whether docker logs can return the service's output.
func (c composeService) readable() bool {
	return c.Driver != "none"
}

func (c composeService) label() string {
	return "container " + c.Container + " (compose " + c.Project + "/" + c.Service + ")"
}

// source describes a service whose container does not exist yet.
func (c composeService) source(provider string) core.Source {
	state := core.StateShutdown
	if !c.readable() {
		state = core.StateUnavailable
	}
	details := map[string]string{
		"project": c.Project,
		"service": c.Service,
		"compose": c.File,
	}
	if c.Image != "" {
		details["image"] = c.Image
	}
	if c.Driver != "" {
		details["logging"] = c.Driver
	}
	return core.Source{
		ID:      core.SourceID(core.KindContainer, provider, c.Container),
		Kind:    core.KindContainer,
		Name:    c.Container,
		State:   state,
		Details: details,
	}
}

// composeLabels extracts the compose project and service from the Labels
// column of docker ps, a comma-separated list of key=value pairs.
func composeLabels(raw string) (project, service string) {
	for _, kv := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		switch k {
		case labelProject:
			project = v
		case labelService:
			service = v
		}
	}
	return project, service
}
