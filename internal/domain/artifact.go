package domain

// FileInfo is an artifact listing entry. Path is relative to the run's
// artifact root and uses forward slashes.
type FileInfo struct {
	Path  string
	IsDir bool
	Size  int64
}

// ModelVersion is a registered model version linked to a run through the
// artifact URI it was registered from.
type ModelVersion struct {
	Name    string
	Version string
	Source  string
	RunID   string
}
