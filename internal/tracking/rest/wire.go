package rest

import (
	"bytes"
	"fmt"
	"math"
	"strconv"

	"github.com/animus-labs/comet-for-mlflow/internal/domain"
)

// int64 and double fields arrive as numbers or, from older servers, as
// strings; non-finite doubles always arrive as strings.
type flexInt int64

func (v *flexInt) UnmarshalJSON(raw []byte) error {
	raw = bytes.Trim(raw, `"`)
	if len(raw) == 0 || string(raw) == "null" {
		*v = 0
		return nil
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return fmt.Errorf("int64 field: %w", err)
	}
	*v = flexInt(n)
	return nil
}

type flexFloat float64

func (v *flexFloat) UnmarshalJSON(raw []byte) error {
	s := string(bytes.Trim(raw, `"`))
	switch s {
	case "NaN":
		*v = flexFloat(math.NaN())
	case "Infinity":
		*v = flexFloat(math.Inf(1))
	case "-Infinity":
		*v = flexFloat(math.Inf(-1))
	default:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("double field: %w", err)
		}
		*v = flexFloat(f)
	}
	return nil
}

type keyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func toTags(items []keyValue) domain.Tags {
	out := make(domain.Tags, len(items))
	for _, item := range items {
		out[item.Key] = item.Value
	}
	return out
}

type experimentJSON struct {
	ExperimentID     string     `json:"experiment_id"`
	Name             string     `json:"name"`
	ArtifactLocation string     `json:"artifact_location"`
	LifecycleStage   string     `json:"lifecycle_stage"`
	Tags             []keyValue `json:"tags"`
}

func (e experimentJSON) toDomain() domain.Experiment {
	return domain.Experiment{
		ID:               e.ExperimentID,
		Name:             e.Name,
		ArtifactLocation: e.ArtifactLocation,
		LifecycleStage:   lifecycle(e.LifecycleStage),
		Tags:             toTags(e.Tags),
	}
}

type runInfoJSON struct {
	RunID          string   `json:"run_id"`
	RunUUID        string   `json:"run_uuid"`
	ExperimentID   string   `json:"experiment_id"`
	RunName        string   `json:"run_name"`
	UserID         string   `json:"user_id"`
	Status         string   `json:"status"`
	StartTime      flexInt  `json:"start_time"`
	EndTime        *flexInt `json:"end_time"`
	ArtifactURI    string   `json:"artifact_uri"`
	LifecycleStage string   `json:"lifecycle_stage"`
}

func (r runInfoJSON) toDomain() domain.RunInfo {
	info := domain.RunInfo{
		RunID:          r.RunID,
		ExperimentID:   r.ExperimentID,
		RunName:        r.RunName,
		UserID:         r.UserID,
		Status:         r.Status,
		StartTime:      int64(r.StartTime),
		ArtifactURI:    r.ArtifactURI,
		LifecycleStage: lifecycle(r.LifecycleStage),
	}
	if info.RunID == "" {
		info.RunID = r.RunUUID
	}
	if r.EndTime != nil {
		info.EndTime = domain.Int64(int64(*r.EndTime))
	}
	return info
}

type metricJSON struct {
	Key       string    `json:"key"`
	Value     flexFloat `json:"value"`
	Timestamp flexInt   `json:"timestamp"`
	Step      flexInt   `json:"step"`
}

func (m metricJSON) toDomain() domain.Metric {
	return domain.Metric{Key: m.Key, Value: float64(m.Value), Timestamp: int64(m.Timestamp), Step: int64(m.Step)}
}

type runJSON struct {
	Info runInfoJSON `json:"info"`
	Data struct {
		Metrics []metricJSON `json:"metrics"`
		Params  []keyValue   `json:"params"`
		Tags    []keyValue   `json:"tags"`
	} `json:"data"`
}

func (r runJSON) toDomain() domain.Run {
	run := domain.Run{
		Info:   r.Info.toDomain(),
		Tags:   toTags(r.Data.Tags),
		Params: toTags(r.Data.Params),
	}
	for _, m := range r.Data.Metrics {
		run.Metrics = append(run.Metrics, m.toDomain())
	}
	return run
}

type modelVersionJSON struct {
	Name    string  `json:"name"`
	Version flexInt `json:"version"`
	Source  string  `json:"source"`
	RunID   string  `json:"run_id"`
}

func (m modelVersionJSON) toDomain() domain.ModelVersion {
	return domain.ModelVersion{
		Name:    m.Name,
		Version: strconv.FormatInt(int64(m.Version), 10),
		Source:  m.Source,
		RunID:   m.RunID,
	}
}

func lifecycle(stage string) domain.LifecycleStage {
	if stage == string(domain.LifecycleDeleted) {
		return domain.LifecycleDeleted
	}
	return domain.LifecycleActive
}
