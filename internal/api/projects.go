package api

import (
	"context"
	"fmt"

	"github.com/majorcontext/hublink/internal/transport"
)

// Project is a developer project on the platform.
type Project struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	PortalID        int64  `json:"portalId"`
	CreatedAt       int64  `json:"createdAt"`
	UpdatedAt       int64  `json:"updatedAt"`
	DeployedBuildID int64  `json:"deployedBuildId,omitempty"`
}

type projectList struct {
	Results []Project `json:"results"`
}

// FetchProjects lists the account's projects.
func FetchProjects(ctx context.Context, c *transport.Client, accountID int64) ([]Project, error) {
	var out projectList
	if err := c.Get(ctx, accountID, ProjectsPath, &out); err != nil {
		return nil, fmt.Errorf("fetching projects: %w", err)
	}
	return out.Results, nil
}

// FetchProject returns the project called name.
func FetchProject(ctx context.Context, c *transport.Client, accountID int64, name string) (*Project, error) {
	var out Project
	if err := c.Get(ctx, accountID, join(ProjectsPath, name), &out); err != nil {
		return nil, fmt.Errorf("fetching project %s: %w", name, err)
	}
	return &out, nil
}

// CreateProject creates an empty project.
func CreateProject(ctx context.Context, c *transport.Client, accountID int64, name string) (*Project, error) {
	var out Project
	body := map[string]string{"name": name}
	if err := c.Post(ctx, accountID, ProjectsPath, body, &out); err != nil {
		return nil, fmt.Errorf("creating project %s: %w", name, err)
	}
	return &out, nil
}

// DeleteProject deletes the project called name.
func DeleteProject(ctx context.Context, c *transport.Client, accountID int64, name string) error {
	if err := c.Delete(ctx, accountID, join(ProjectsPath, name)); err != nil {
		return fmt.Errorf("deleting project %s: %w", name, err)
	}
	return nil
}
