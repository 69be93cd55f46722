package docker

import (
	"context"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
)

// shortIDLen is the length of the truncated container identifier.
const shortIDLen = 12

// Container is the listing view of one container.
type Container struct {
	ID     string
	Name   string
	Image  string
	State  string
	Status string
}

// ListContainers returns every container known to the Engine, running or not.
func (c *Client) ListContainers(ctx context.Context) ([]Container, error) {
	containers, err := c.cli.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, err
	}

	result := make([]Container, 0, len(containers))
	for _, cont := range containers {
		result = append(result, fromSummary(cont))
	}
	return result, nil
}

func fromSummary(cont types.Container) Container {
	var name string
	if len(cont.Names) > 0 {
		name = strings.TrimPrefix(cont.Names[0], "/")
	}
	return Container{
		ID:     ShortID(cont.ID),
		Name:   name,
		Image:  cont.Image,
		State:  cont.State,
		Status: cont.Status,
	}
}

// ShortID truncates a container ID to its 12-character display form.
func ShortID(id string) string {
	if len(id) > shortIDLen {
		return id[:shortIDLen]
	}
	return id
}
