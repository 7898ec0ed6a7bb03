package comet

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/animus-labs/comet-for-mlflow/internal/domain"
)

type AccountDetails struct {
	UserName             string `json:"userName"`
	DefaultWorkspaceName string `json:"defaultWorkspaceName"`
}

func (c *Client) AccountDetails(ctx context.Context) (AccountDetails, error) {
	var out AccountDetails
	if err := c.getJSON(ctx, restPrefix+"account-details", nil, &out); err != nil {
		return AccountDetails{}, fmt.Errorf("account details: %w", err)
	}
	return out, nil
}

type projectJSON struct {
	ProjectID     string `json:"projectId"`
	ProjectName   string `json:"projectName"`
	WorkspaceName string `json:"workspaceName"`
}

// toDomain treats an empty answer as a missing project; the service answers
// some lookups of unknown projects with 200 and no body.
func (p *projectJSON) toDomain(workspace string) (domain.Project, error) {
	if p == nil || strings.TrimSpace(p.ProjectID) == "" {
		return domain.Project{}, ErrNotFound
	}
	if p.WorkspaceName != "" {
		workspace = p.WorkspaceName
	}
	return domain.Project{ID: p.ProjectID, Name: p.ProjectName, Workspace: workspace}, nil
}

func (c *Client) GetProject(ctx context.Context, workspace, name string) (domain.Project, error) {
	var out *projectJSON
	query := url.Values{"workspaceName": {workspace}, "projectName": {name}}
	if err := c.getJSON(ctx, restPrefix+"project", query, &out); err != nil {
		return domain.Project{}, fmt.Errorf("get project %s/%s: %w", workspace, name, err)
	}
	project, err := out.toDomain(workspace)
	if err != nil {
		return domain.Project{}, fmt.Errorf("get project %s/%s: %w", workspace, name, err)
	}
	return project, nil
}

func (c *Client) GetProjectByID(ctx context.Context, projectID string) (domain.Project, error) {
	if strings.TrimSpace(projectID) == "" {
		return domain.Project{}, errors.New("project id is required")
	}
	var out *projectJSON
	if err := c.getJSON(ctx, restPrefix+"project", url.Values{"projectId": {projectID}}, &out); err != nil {
		return domain.Project{}, fmt.Errorf("get project %s: %w", projectID, err)
	}
	project, err := out.toDomain("")
	if err != nil {
		return domain.Project{}, fmt.Errorf("get project %s: %w", projectID, err)
	}
	return project, nil
}

// CreateProject creates a private project.
func (c *Client) CreateProject(ctx context.Context, workspace, name string) (domain.Project, error) {
	in := map[string]any{
		"workspaceName":      workspace,
		"projectName":        name,
		"projectDescription": "",
		"isPublic":           false,
	}
	var out *projectJSON
	if err := c.postJSON(ctx, restPrefix+"write/project/create", in, &out); err != nil {
		return domain.Project{}, fmt.Errorf("create project %s/%s: %w", workspace, name, err)
	}
	if out == nil || out.ProjectID == "" {
		return domain.Project{}, fmt.Errorf("create project %s/%s: no project id in answer", workspace, name)
	}
	if out.ProjectName == "" {
		out.ProjectName = name
	}
	return out.toDomain(workspace)
}

func (c *Client) SetProjectNotes(ctx context.Context, workspace, name, notes string) error {
	in := map[string]any{
		"workspaceName": workspace,
		"projectName":   name,
		"notes":         notes,
	}
	if err := c.postJSON(ctx, restPrefix+"write/project/notes", in, nil); err != nil {
		return fmt.Errorf("set notes of %s/%s: %w", workspace, name, err)
	}
	return nil
}
