package domain

import (
	"errors"
	"strings"
)

// Project is a destination project inside a workspace.
type Project struct {
	ID        string
	Name      string
	Workspace string
}

func (p Project) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return errors.New("project id is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("project name is required")
	}
	return nil
}
