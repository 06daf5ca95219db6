package audit

import (
	"fmt"
	"io"

	"github.com/samber/lo"

	"github.com/aquasecurity/deb-audit/deb"
)

// Result is the outcome for one scanned package. Known is false when the
// release index has no entry for the package on its architecture; the
// summary is empty in that case.
type Result struct {
	Package deb.Package `json:"package"`
	Known   bool        `json:"known"`
	Summary Summary     `json:"summary"`
}

// Report collects the results of one run in input order.
type Report struct {
	Release string   `json:"release"`
	Results []Result `json:"results"`
}

// TotalPresent counts the present issues across all packages.
func (r *Report) TotalPresent() int {
	return lo.SumBy(r.Results, func(res Result) int {
		return len(res.Summary.Present)
	})
}

// TotalUnknown counts the packages missing from the release index.
func (r *Report) TotalUnknown() int {
	return lo.CountBy(r.Results, func(res Result) bool {
		return !res.Known
	})
}

// Passed reports the audit verdict. Unknown packages fail the audit unless
// allowUnknown is set; present issues always fail it.
func (r *Report) Passed(allowUnknown bool) bool {
	if r.TotalPresent() > 0 {
		return false
	}
	if !allowUnknown && r.TotalUnknown() > 0 {
		return false
	}
	return true
}

// Render writes the findings as text, one line per package. Unknown packages
// always show up; clean known packages only with showAll.
func (r *Report) Render(w io.Writer, showAll bool) {
	for _, res := range r.Results {
		switch {
		case !res.Known:
			fmt.Fprintf(w, "Unknown in release %q: %s\n", r.Release, res.Package)
		case showAll || len(res.Summary.Present) > 0:
			fmt.Fprintf(w, "%s: %d present, %d ignored, %d fixed\n", res.Package,
				len(res.Summary.Present), len(res.Summary.Ignored), len(res.Summary.Fixed))
		}
	}
}
