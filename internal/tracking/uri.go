package tracking

import (
	"path"
	"strings"
)

// RelativeArtifactPath expresses target relative to the artifact root base.
// Both may be URIs (s3://, file://, mlflow-artifacts:) or plain paths, and
// target may use the runs:/<run-id>/<path> form. ok is false when target is
// not strictly below base.
func RelativeArtifactPath(target, base, runID string) (string, bool) {
	if rest, found := strings.CutPrefix(target, "runs:/"); found {
		id, rel, _ := strings.Cut(strings.TrimLeft(rest, "/"), "/")
		if id != runID {
			return "", false
		}
		rel = strings.Trim(path.Clean("/"+rel), "/")
		return rel, rel != ""
	}

	target = normalizeURI(target)
	base = normalizeURI(base)
	if target == "" || base == "" || target == base {
		return "", false
	}
	rel, found := strings.CutPrefix(target, base+"/")
	if !found {
		return "", false
	}
	rel = strings.Trim(rel, "/")
	return rel, rel != ""
}

func normalizeURI(u string) string {
	u = strings.TrimSpace(u)
	if rest, found := strings.CutPrefix(u, "file://"); found {
		u = rest
	}
	scheme, rest, hasScheme := strings.Cut(u, "://")
	if !hasScheme {
		if u == "" {
			return ""
		}
		return path.Clean(u)
	}
	cleaned := path.Clean("/" + rest)
	return scheme + ":/" + cleaned
}
