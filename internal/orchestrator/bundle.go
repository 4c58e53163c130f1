package orchestrator

import (
	"sort"

	"github.com/jordigilh/rtx/internal/advisory"
	"github.com/jordigilh/rtx/internal/dependency"
	"github.com/jordigilh/rtx/internal/metadata"
)

// ResultBundle is the merged, per-dependency view the Orchestrator builds
// up from every Advisory and Metadata provider before handing it to the
// Signal Deriver. A dependency is "ready" once every configured provider
// has either produced a result or been recorded as unavailable.
type ResultBundle struct {
	Dependency  dependency.Dependency
	Advisories  []advisory.Advisory
	Metadata    metadata.ReleaseMetadata
	Unavailable map[string]bool // source name -> unavailable for this dep
}

func newResultBundle(dep dependency.Dependency) *ResultBundle {
	return &ResultBundle{
		Dependency:  dep,
		Metadata:    metadata.Unknown(),
		Unavailable: make(map[string]bool),
	}
}

// unavailableSources returns the alphabetically sorted set of source names
// that could not serve this dependency, for the report's per-dependency
// unavailable_sources field.
func (b *ResultBundle) unavailableSources() []string {
	if len(b.Unavailable) == 0 {
		return nil
	}
	out := make([]string, 0, len(b.Unavailable))
	for name, bad := range b.Unavailable {
		if bad {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
