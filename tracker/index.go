package tracker

import (
	"encoding/json"

	"github.com/samber/lo"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"golang.org/x/xerrors"
)

// VersionSource ties one version of a binary package to the source package
// it was built from. On the wire it is the two element array
// ["version", "source"], the shape the source map cache files use.
type VersionSource struct {
	Version string
	Source  string
}

func (vs VersionSource) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{vs.Version, vs.Source})
}

func (vs *VersionSource) UnmarshalJSON(data []byte) error {
	var pair [2]string
	if err := json.Unmarshal(data, &pair); err != nil {
		return xerrors.Errorf("version/source pair: %w", err)
	}
	vs.Version = pair[0]
	vs.Source = pair[1]
	return nil
}

// SourceMap maps the binary package names of one architecture to the
// (version, source) pairs a release has carried for them. A binary package
// may change source packages across versions, so the value is a list.
type SourceMap map[string][]VersionSource

// Index answers binary package lookups, one source map per architecture.
type Index struct {
	byArch map[string]SourceMap
}

func NewIndex() *Index {
	return &Index{
		byArch: map[string]SourceMap{},
	}
}

// Add registers the source map of an architecture, replacing any previous
// one.
func (x *Index) Add(arch string, sm SourceMap) {
	x.byArch[arch] = sm
}

// IsKnown reports whether the binary package exists on the architecture.
func (x *Index) IsKnown(arch, name string) bool {
	_, ok := x.byArch[arch][name]
	return ok
}

// SourcesFor returns the distinct source packages a binary package was built
// from, in first seen order.
func (x *Index) SourcesFor(arch, name string) []string {
	sources := lo.Map(x.byArch[arch][name], func(vs VersionSource, _ int) string {
		return vs.Source
	})
	return lo.Uniq(sources)
}

// SourceMap returns the map registered for an architecture, or nil.
func (x *Index) SourceMap(arch string) SourceMap {
	return x.byArch[arch]
}

// Architectures lists the architectures the index covers, sorted.
func (x *Index) Architectures() []string {
	archs := maps.Keys(x.byArch)
	slices.Sort(archs)
	return archs
}
