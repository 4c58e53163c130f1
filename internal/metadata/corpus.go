package metadata

import (
	"context"
	"encoding/json"
	"os"
	"sort"

	"github.com/go-faster/errors"
	"github.com/jordigilh/rtx/internal/dependency"
)

// StaticCorpus is a PopularNameCorpus loaded once from a JSON file at
// startup: a map of ecosystem name to its popular-name list, sorted by
// popularity descending so TopK can simply slice the front. This keeps the
// corpus data-driven - an operator refreshes the file from their
// registry's own download stats on whatever cadence they like, rather than
// rtx shipping a hardcoded, quickly stale list.
type StaticCorpus struct {
	byEcosystem map[dependency.Ecosystem][]PopularName
}

// corpusFile is the on-disk shape: {"npm": [{"name": "...", "popularity": 123}], ...}.
type corpusFile map[string][]PopularName

// NewStaticCorpus reads and parses path into a StaticCorpus.
func NewStaticCorpus(path string) (*StaticCorpus, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "metadata: read typosquat corpus")
	}
	var cf corpusFile
	if err := json.Unmarshal(raw, &cf); err != nil {
		return nil, errors.Wrap(err, "metadata: parse typosquat corpus")
	}

	c := &StaticCorpus{byEcosystem: make(map[dependency.Ecosystem][]PopularName, len(cf))}
	for eco, names := range cf {
		sorted := append([]PopularName(nil), names...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Popularity > sorted[j].Popularity })
		c.byEcosystem[dependency.Ecosystem(eco)] = sorted
	}
	return c, nil
}

// TopK implements PopularNameCorpus.
func (c *StaticCorpus) TopK(ctx context.Context, eco dependency.Ecosystem, k int) ([]PopularName, error) {
	names := c.byEcosystem[eco]
	if k >= 0 && k < len(names) {
		return names[:k], nil
	}
	return names, nil
}
