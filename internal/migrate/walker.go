package migrate

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/animus-labs/comet-for-mlflow/internal/domain"
	"github.com/animus-labs/comet-for-mlflow/internal/offline"
	"github.com/animus-labs/comet-for-mlflow/internal/tracking"
)

const (
	tagSourceName   = "mlflow.source.name"
	tagUser         = "mlflow.user"
	tagGitCommit    = "mlflow.source.git.commit"
	tagGitRepoURL   = "mlflow.source.git.repoURL"
	tagRunName      = "mlflow.runName"
	tagParentRunID  = "mlflow.parentRunId"
	tagNoteContent  = "mlflow.note.content"
	uploadedFromKey = "Uploaded from"
	uploadedFromVal = "MLFlow"
)

func (t *Translator) prepareExperiment(ctx context.Context, exp domain.Experiment) ([]PreparedRun, error) {
	infos, err := t.store.ListRunInfos(ctx, exp.ID, tracking.ViewAll)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	var prepared []PreparedRun
	for i, info := range infos {
		logger := t.logger.With("run_id", info.RunID)
		logger.Info(fmt.Sprintf("preparing run %d/%d", i+1, len(infos)))

		var archive string
		err := protect(func() error {
			run, err := t.store.GetRun(ctx, info.RunID)
			if err != nil {
				return fmt.Errorf("get run: %w", err)
			}
			archive, err = t.prepareRun(ctx, run, exp.Name)
			return err
		})
		switch {
		case errors.Is(err, ErrRunIncomplete):
			logger.Warn("skipping run, no end time")
			continue
		case err != nil:
			logger.Error("preparing run failed", "error", err)
			t.report(ctx, err)
			continue
		}
		t.summary.Runs++
		if st, err := os.Stat(archive); err == nil {
			t.summary.ArchiveBytes += st.Size()
		}
		prepared = append(prepared, PreparedRun{Info: info, Archive: archive})
	}
	return prepared, nil
}

// runCounts holds the records written for one run. They reach the summary
// only once the run's archive exists.
type runCounts struct {
	tags      int
	params    int
	metrics   int
	artifacts int
}

// prepareRun writes the archive of one run and returns its path. On failure
// the scratch directory is kept for inspection.
func (t *Translator) prepareRun(ctx context.Context, run domain.Run, experimentName string) (string, error) {
	if !run.Info.Finished() {
		return "", ErrRunIncomplete
	}
	sourceName, ok := run.Tags[tagSourceName]
	if !ok {
		return "", fmt.Errorf("%w: missing tag %s", ErrMalformedRun, tagSourceName)
	}
	user, ok := run.Tags[tagUser]
	if !ok {
		return "", fmt.Errorf("%w: missing tag %s", ErrMalformedRun, tagUser)
	}

	b, err := offline.NewBuilder(t.opts.OutputDir)
	if err != nil {
		return "", err
	}
	// Runs on every exit, panics included. After Finish it does nothing.
	defer func() {
		if err := b.Release(); err != nil {
			t.logger.Debug("release message log", "run_id", run.Info.RunID, "error", err)
		}
	}()
	fail := func(err error) (string, error) {
		t.logger.Debug("keeping scratch dir", "run_id", run.Info.RunID, "dir", b.Dir())
		return "", err
	}
	start := run.Info.StartTime
	var counts runCounts

	for _, msg := range []offline.Object{
		offline.FileNameMessage(sourceName, start),
		offline.UserMessage(user, start),
		offline.GitMetaMessage(run.Tags[tagGitCommit], run.Tags[tagGitRepoURL], start),
	} {
		if err := b.Write(msg); err != nil {
			return fail(err)
		}
	}

	for _, tag := range runTags(run, experimentName, t.opts.ServerURL) {
		if err := b.Write(offline.LogOtherMessage(tag.Key, tag.Value, start)); err != nil {
			return fail(err)
		}
		counts.tags++
	}
	if err := b.Write(offline.LogOtherMessage(uploadedFromKey, uploadedFromVal, start)); err != nil {
		return fail(err)
	}

	for _, key := range run.Params.SortedKeys() {
		if err := b.Write(offline.ParamMessage(key, run.Params[key], start)); err != nil {
			return fail(err)
		}
		counts.params++
	}

	if err := t.writeMetrics(ctx, b, run, &counts); err != nil {
		return fail(err)
	}
	if err := t.writeArtifacts(ctx, b, run.Info, &counts); err != nil {
		return fail(err)
	}

	messages := b.MessageCount()
	archive, err := b.Finish(run.Info.RunID)
	if err != nil {
		return fail(err)
	}
	t.summary.add(counts)
	t.logger.Debug("archive written", "run_id", run.Info.RunID, "messages", messages, "path", archive)
	return archive, nil
}

func (t *Translator) writeMetrics(ctx context.Context, b *offline.Builder, run domain.Run, counts *runCounts) error {
	for _, latest := range run.Metrics {
		history, err := t.store.GetMetricHistory(ctx, run.Info.RunID, latest.Key)
		if err != nil {
			return fmt.Errorf("metric history %s: %w", latest.Key, err)
		}
		useSteps := uniqueSteps(history)
		if !useSteps {
			t.logger.Warn("non-unique steps, importing metric with wall time instead", "run_id", run.Info.RunID, "metric", latest.Key)
		}
		for _, point := range history {
			var step *int64
			if useSteps {
				step = domain.Int64(point.Step)
			}
			if err := b.Write(offline.MetricMessage(point.Key, point.Value, step, point.Timestamp)); err != nil {
				return err
			}
			counts.metrics++
		}
	}
	return nil
}

// uniqueSteps reports whether no step repeats within a history. A single
// repeat drops the steps of the whole history.
func uniqueSteps(history []domain.Metric) bool {
	seen := make(map[int64]struct{}, len(history))
	for _, m := range history {
		if _, dup := seen[m.Step]; dup {
			return false
		}
		seen[m.Step] = struct{}{}
	}
	return true
}

func (t *Translator) writeArtifacts(ctx context.Context, b *offline.Builder, info domain.RunInfo, counts *runCounts) error {
	repo, err := t.artifacts.Resolve(ctx, info.ArtifactURI)
	if err != nil {
		return fmt.Errorf("artifact repository: %w", err)
	}
	prefixes, err := t.modelPrefixes(ctx, info)
	if err != nil {
		return err
	}
	return walkArtifacts(ctx, repo, func(file domain.FileInfo) error {
		rc, err := repo.OpenArtifact(ctx, file.Path)
		if err != nil {
			return fmt.Errorf("open artifact %s: %w", file.Path, err)
		}
		defer rc.Close()
		counts.artifacts++

		if model, ok := matchModel(prefixes, file.Path); ok {
			return b.AddModelElement(rc, file.Path, model, info.StartTime)
		}
		return b.AddAsset(rc, file.Path, info.StartTime)
	})
}

func (t *Translator) modelPrefixes(ctx context.Context, info domain.RunInfo) ([]modelPrefix, error) {
	if t.registry == nil {
		return nil, nil
	}
	versions, err := t.registry.SearchModelVersions(ctx, info.RunID)
	if err != nil {
		return nil, fmt.Errorf("search model versions: %w", err)
	}
	return modelPrefixes(versions, info), nil
}

// tag is one ordered key/value pair.
type tag struct {
	Key   string
	Value string
}

// runTags lists the source tags in key order followed by the synthetic
// ones. A synthetic key already present keeps its position and takes the
// synthetic value.
func runTags(run domain.Run, experimentName, serverURL string) []tag {
	keys := run.Tags.SortedKeys()
	out := make([]tag, 0, len(keys)+4)
	index := make(map[string]int, len(keys)+4)
	set := func(key, value string) {
		if i, ok := index[key]; ok {
			out[i].Value = value
			return
		}
		index[key] = len(out)
		out = append(out, tag{Key: key, Value: value})
	}
	for _, key := range keys {
		set(key, run.Tags[key])
	}
	if name := run.Tags[tagRunName]; name != "" {
		set("Name", name)
	}
	set("mlflow.runId", run.Info.RunID)
	if parent := run.Tags[tagParentRunID]; parent != "" {
		set("mlflow.parentRunUrl", parentRunURL(serverURL, parent))
	}
	set("mlflow.experimentName", experimentName)
	return out
}
