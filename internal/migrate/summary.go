package migrate

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gosuri/uitable"
)

// Summary counts what a translation prepared.
type Summary struct {
	Experiments  int
	Runs         int
	Tags         int
	Params       int
	Metrics      int
	Artifacts    int
	ArchiveBytes int64
}

func (s *Summary) add(c runCounts) {
	s.Tags += c.tags
	s.Params += c.params
	s.Metrics += c.metrics
	s.Artifacts += c.artifacts
}

// Table renders the counters with the source and destination names of each
// record kind.
func (s Summary) Table() string {
	table := uitable.New()
	table.MaxColWidth = 40
	table.AddRow("MLFlow name:", "Comet.ml name:", "Prepared count:")
	table.AddRow("Experiments", "Projects", s.Experiments)
	table.AddRow("Runs", "Experiments", s.Runs)
	table.AddRow("Tags", "Others", s.Tags)
	table.AddRow("Parameters", "Parameters", s.Params)
	table.AddRow("Metrics", "Metrics", s.Metrics)
	table.AddRow("Artifacts", "Assets", s.Artifacts)
	return table.String()
}

// ArchiveSize is the total archive size in human units.
func (s Summary) ArchiveSize() string {
	if s.ArchiveBytes < 0 {
		return humanize.Bytes(0)
	}
	return humanize.Bytes(uint64(s.ArchiveBytes))
}

func (s Summary) String() string {
	var b strings.Builder
	b.WriteString(s.Table())
	fmt.Fprintf(&b, "\n\n%d archive(s), %s\n", s.Runs, s.ArchiveSize())
	return b.String()
}
