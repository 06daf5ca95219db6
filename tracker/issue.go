// Package tracker models the security issue data this tool audits against:
// the per source issue catalog and the binary package index of a release.
package tracker

import (
	"golang.org/x/xerrors"

	"github.com/aquasecurity/deb-audit/debver"
)

// Issue is one security issue affecting a source package within a release,
// as tracked by the Debian security team. The JSON field names follow the
// security tracker's column names; they are also the cache file format.
type Issue struct {
	Source       string  `json:"source"`
	ID           string  `json:"issue"`
	Description  string  `json:"description"`
	Scope        string  `json:"scope"`
	Bug          int     `json:"bug"`
	FixedVersion string  `json:"fixed_version"`
	Status       string  `json:"status"`
	Nodsa        *string `json:"nodsa"`
}

// PresentIn reports whether the issue affects the given installed version.
// An issue without a fixed version affects every version.
func (i Issue) PresentIn(installed string) (bool, error) {
	if i.FixedVersion == "" {
		return true, nil
	}
	result, err := debver.Compare(installed, i.FixedVersion)
	if err != nil {
		return false, xerrors.Errorf("%s in %s: %w", i.ID, i.Source, err)
	}
	return result == debver.Less, nil
}

// Ignored reports whether the security team marked the issue as not
// warranting an advisory. The annotation text carries no machine meaning.
func (i Issue) Ignored() bool {
	return i.Nodsa != nil && *i.Nodsa != ""
}
