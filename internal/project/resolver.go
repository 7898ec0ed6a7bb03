package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/animus-labs/comet-for-mlflow/internal/comet"
	"github.com/animus-labs/comet-for-mlflow/internal/domain"
)

// Projects is the part of the destination API the resolver needs.
type Projects interface {
	GetProject(ctx context.Context, workspace, name string) (domain.Project, error)
	GetProjectByID(ctx context.Context, projectID string) (domain.Project, error)
	CreateProject(ctx context.Context, workspace, name string) (domain.Project, error)
}

// ExperimentTagger persists the mapping tag on the source experiment.
type ExperimentTagger interface {
	SetExperimentTag(ctx context.Context, experimentID, key, value string) error
}

type Resolver struct {
	projects  Projects
	tagger    ExperimentTagger
	workspace string
	storeID   string
	logger    *slog.Logger
}

func NewResolver(projects Projects, tagger ExperimentTagger, workspace, storeID string, logger *slog.Logger) (*Resolver, error) {
	if projects == nil {
		return nil, errors.New("projects client is required")
	}
	if tagger == nil {
		return nil, errors.New("experiment tagger is required")
	}
	if strings.TrimSpace(workspace) == "" {
		return nil, errors.New("workspace is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		projects:  projects,
		tagger:    tagger,
		workspace: strings.TrimSpace(workspace),
		storeID:   storeID,
		logger:    logger,
	}, nil
}

// Resolve returns the project of exp, reusing the one recorded in the
// mapping tag when it still exists and otherwise finding or creating the
// project with the derived name. The mapping is written back to the store
// and to exp.Tags.
func (r *Resolver) Resolve(ctx context.Context, exp *domain.Experiment) (domain.Project, error) {
	if r == nil || r.projects == nil {
		return domain.Project{}, fmt.Errorf("project resolver not initialized")
	}
	if exp == nil {
		return domain.Project{}, errors.New("experiment is required")
	}
	tag := MappingTag(r.workspace)
	if projectID, ok := exp.Tags[tag]; ok && strings.TrimSpace(projectID) != "" {
		p, err := r.projects.GetProjectByID(ctx, projectID)
		switch {
		case err == nil:
			if p.Name == "" {
				p.Name = Name(exp.DisplayName(), r.storeID)
			}
			if p.Workspace == "" {
				p.Workspace = r.workspace
			}
			return p, nil
		case errors.Is(err, comet.ErrNotFound):
			r.logger.Warn("mapped project is gone, recreating", "experiment_id", exp.ID, "project_id", projectID)
		default:
			return domain.Project{}, err
		}
	}
	return r.createAndSave(ctx, exp, tag)
}

func (r *Resolver) createAndSave(ctx context.Context, exp *domain.Experiment, tag string) (domain.Project, error) {
	name := Name(exp.DisplayName(), r.storeID)
	p, err := r.projects.GetProject(ctx, r.workspace, name)
	if errors.Is(err, comet.ErrNotFound) {
		r.logger.Info("creating project", "workspace", r.workspace, "project", name)
		p, err = r.projects.CreateProject(ctx, r.workspace, name)
	}
	if err != nil {
		return domain.Project{}, err
	}
	if p.Name == "" {
		p.Name = name
	}
	if p.Workspace == "" {
		p.Workspace = r.workspace
	}
	if err := r.tagger.SetExperimentTag(ctx, exp.ID, tag, p.ID); err != nil {
		return domain.Project{}, fmt.Errorf("save project mapping: %w", err)
	}
	if exp.Tags == nil {
		exp.Tags = domain.Tags{}
	}
	exp.Tags[tag] = p.ID
	return p, nil
}
