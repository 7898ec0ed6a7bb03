package domain

import (
	"errors"
	"strings"
)

// RunInfo is the immutable summary of a run as listed by the tracking store.
// Times are epoch milliseconds; EndTime is nil while the run is unfinished.
type RunInfo struct {
	RunID          string
	ExperimentID   string
	RunName        string
	UserID         string
	Status         string
	StartTime      int64
	EndTime        *int64
	ArtifactURI    string
	LifecycleStage LifecycleStage
}

// Finished reports whether the run recorded an end time.
func (i RunInfo) Finished() bool {
	return i.EndTime != nil && *i.EndTime != 0
}

// Run is a run with its tags, parameters and latest metric values.
type Run struct {
	Info    RunInfo
	Tags    Tags
	Params  Tags
	Metrics []Metric
}

func (r Run) Validate() error {
	if strings.TrimSpace(r.Info.RunID) == "" {
		return errors.New("run id is required")
	}
	if strings.TrimSpace(r.Info.ExperimentID) == "" {
		return errors.New("experiment id is required")
	}
	return nil
}

// Metric is one recorded metric point. Timestamp is epoch milliseconds.
type Metric struct {
	Key       string
	Value     float64
	Timestamp int64
	Step      int64
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 {
	return &v
}
