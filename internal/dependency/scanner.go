package dependency

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/go-faster/errors"
)

// Registry tracks a set of Scanners and runs them together. The CLI's
// list-managers command does not consult it; it lists KnownEcosystems.
type Registry struct {
	scanners []Scanner
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds s to the registry.
func (r *Registry) Register(s Scanner) {
	r.scanners = append(r.scanners, s)
}

// Scanners returns every registered Scanner.
func (r *Registry) Scanners() []Scanner {
	return r.scanners
}

// ScanAll runs every registered scanner against projectRoot, feeding
// results and failures into a Builder. A scanner whose ManifestNames are
// absent from projectRoot is still invoked; scanners are responsible for
// reporting "nothing found" as an empty slice, not an error.
func (r *Registry) ScanAll(projectRoot string) *Builder {
	b := NewBuilder()
	for _, s := range r.scanners {
		deps, err := s.Scan(projectRoot)
		if err != nil {
			b.AddScanError(s.Ecosystem(), err)
			continue
		}
		b.Add(deps...)
	}
	return b
}

// manifestRecord is the JSON shape a pre-run scanner emits for file-based
// ingestion, used when the scanner ran out of process (spec.md's scanners
// are an external collaborator; rtx only consumes their output).
type manifestRecord struct {
	Ecosystem    Ecosystem `json:"ecosystem"`
	Name         string    `json:"name"`
	Version      string    `json:"version"`
	ManifestPath string    `json:"manifest_path"`
	Direct       bool      `json:"direct"`
}

// LoadDependencyFile reads a JSON array of scanner-emitted dependency
// records from path, the format `rtx scan --input` expects when manifest
// parsing has already happened out of process.
func LoadDependencyFile(path string) ([]Dependency, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "dependency: read input file")
	}
	var records []manifestRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, errors.Wrap(err, "dependency: parse input file")
	}

	out := make([]Dependency, 0, len(records))
	for _, rec := range records {
		out = append(out, Dependency{
			Ecosystem:    rec.Ecosystem,
			Name:         NormalizeName(rec.Ecosystem, rec.Name),
			Version:      rec.Version,
			ManifestPath: rec.ManifestPath,
			Direct:       rec.Direct,
		})
	}
	return out, nil
}

// DiscoverManifests walks root looking for filenames any registered
// Scanner recognizes and returns their paths - it does not parse them.
func (r *Registry) DiscoverManifests(root string) ([]string, error) {
	known := make(map[string]bool)
	for _, s := range r.scanners {
		for _, name := range s.ManifestNames() {
			known[name] = true
		}
	}

	var found []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "node_modules" || d.Name() == ".git" || d.Name() == "vendor" {
				return filepath.SkipDir
			}
			return nil
		}
		if known[d.Name()] {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "dependency: discover manifests")
	}
	return found, nil
}
