package migrate

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/animus-labs/comet-for-mlflow/internal/domain"
)

func openFDs(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		t.Skipf("fd listing unavailable: %v", err)
	}
	return len(entries)
}

func failingRuns(f *fixture, n int) {
	for i := 0; i < n; i++ {
		run := baseRun(fmt.Sprintf("run-%02d", i))
		run.Info.ArtifactURI = fmt.Sprintf("s3://bucket/0/%s/artifacts", run.Info.RunID)
		run.Tags["team"] = "vision"
		run.Params["lr"] = "0.1"
		run.Metrics = []domain.Metric{{Key: "loss"}}
		f.store.addRun(run, map[string][]domain.Metric{"loss": points("loss", 0, 1)})
		f.resolver.panic[run.Info.ArtifactURI] = true
	}
}

func TestPrepareClosesMessageLogOfFailedRuns(t *testing.T) {
	scratchRoot := t.TempDir()
	t.Setenv("TMPDIR", scratchRoot)
	f := newFixture(t)
	failingRuns(f, 20)
	tr := f.translator(t)

	before := openFDs(t)
	if _, err := tr.Prepare(context.Background()); err != nil {
		t.Fatalf("Prepare() err=%v", err)
	}
	// A little slack for descriptors the runtime opens lazily.
	if after := openFDs(t); after-before > 2 {
		t.Fatalf("open fds grew from %d to %d after 20 failed runs", before, after)
	}

	entries, err := os.ReadDir(scratchRoot)
	if err != nil {
		t.Fatalf("ReadDir() err=%v", err)
	}
	kept := 0
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), "comet-for-mlflow-") {
			kept++
		}
	}
	if kept != 20 {
		t.Fatalf("kept scratch dirs=%d, want 20", kept)
	}
}

func TestPrepareCountsOnlyArchivedRuns(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())
	f := newFixture(t)
	failingRuns(f, 2)

	ok := baseRun("run-ok")
	ok.Info.ArtifactURI = "s3://bucket/0/run-ok/artifacts"
	ok.Params["epochs"] = "3"
	ok.Metrics = []domain.Metric{{Key: "acc"}}
	f.store.addRun(ok, map[string][]domain.Metric{"acc": points("acc", 0, 1, 2)})

	tr := f.translator(t)
	if _, err := tr.Prepare(context.Background()); err != nil {
		t.Fatalf("Prepare() err=%v", err)
	}
	s := tr.Summary()
	if s.Runs != 1 || s.Params != 1 || s.Metrics != 3 {
		t.Fatalf("summary=%+v, want one run with one param and three metric points", s)
	}
	// Source tags of the archived run plus the synthetic runId and
	// experimentName tags.
	if s.Tags != len(ok.Tags)+2 {
		t.Fatalf("tags=%d, want %d", s.Tags, len(ok.Tags)+2)
	}
}
