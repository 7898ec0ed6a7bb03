package domain

import (
	"errors"
	"strings"
)

// Experiment is a named grouping of runs in the source tracking system.
// The ID is stable; the name may be changed in the source system.
type Experiment struct {
	ID               string
	Name             string
	ArtifactLocation string
	LifecycleStage   LifecycleStage
	Tags             Tags
}

// DisplayName is the name, or the ID for unnamed experiments.
func (e Experiment) DisplayName() string {
	if strings.TrimSpace(e.Name) != "" {
		return e.Name
	}
	return e.ID
}

func (e Experiment) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return errors.New("experiment id is required")
	}
	return nil
}
