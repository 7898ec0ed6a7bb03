package filestore

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/animus-labs/comet-for-mlflow/internal/domain"
)

const metaFile = "meta.yaml"

type experimentMeta struct {
	ExperimentID     string `yaml:"experiment_id"`
	Name             string `yaml:"name"`
	ArtifactLocation string `yaml:"artifact_location"`
	LifecycleStage   string `yaml:"lifecycle_stage"`
}

type runMeta struct {
	RunID          string `yaml:"run_id"`
	RunUUID        string `yaml:"run_uuid"`
	RunName        string `yaml:"run_name"`
	ExperimentID   string `yaml:"experiment_id"`
	UserID         string `yaml:"user_id"`
	Status         string `yaml:"status"`
	StartTime      *int64 `yaml:"start_time"`
	EndTime        *int64 `yaml:"end_time"`
	ArtifactURI    string `yaml:"artifact_uri"`
	LifecycleStage string `yaml:"lifecycle_stage"`
}

type modelVersionMeta struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Source  string `yaml:"source"`
	RunID   string `yaml:"run_id"`
}

func readMeta(path string, out any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (m experimentMeta) toDomain() domain.Experiment {
	return domain.Experiment{
		ID:               strings.TrimSpace(m.ExperimentID),
		Name:             m.Name,
		ArtifactLocation: strings.TrimSpace(m.ArtifactLocation),
		LifecycleStage:   lifecycle(m.LifecycleStage),
		Tags:             domain.Tags{},
	}
}

func (m runMeta) toDomain() domain.RunInfo {
	id := strings.TrimSpace(m.RunID)
	if id == "" {
		id = strings.TrimSpace(m.RunUUID)
	}
	info := domain.RunInfo{
		RunID:          id,
		ExperimentID:   strings.TrimSpace(m.ExperimentID),
		RunName:        m.RunName,
		UserID:         m.UserID,
		Status:         runStatus(m.Status),
		ArtifactURI:    strings.TrimSpace(m.ArtifactURI),
		LifecycleStage: lifecycle(m.LifecycleStage),
	}
	if m.StartTime != nil {
		info.StartTime = *m.StartTime
	}
	if m.EndTime != nil {
		info.EndTime = domain.Int64(*m.EndTime)
	}
	return info
}

func lifecycle(stage string) domain.LifecycleStage {
	if strings.EqualFold(strings.TrimSpace(stage), string(domain.LifecycleDeleted)) {
		return domain.LifecycleDeleted
	}
	return domain.LifecycleActive
}

// Older file stores persist the status as the numeric protobuf enum value.
var runStatusNames = map[int]string{
	1: "RUNNING",
	2: "SCHEDULED",
	3: "FINISHED",
	4: "FAILED",
	5: "KILLED",
}

func runStatus(raw string) string {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.Atoi(raw); err == nil {
		if name, ok := runStatusNames[n]; ok {
			return name
		}
	}
	return strings.ToUpper(raw)
}
