package tracker

import (
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Catalog holds every known issue of one release, grouped by source package.
// It is read only once built.
type Catalog struct {
	issues map[string][]Issue
}

func NewCatalog(issues []Issue) *Catalog {
	c := &Catalog{
		issues: map[string][]Issue{},
	}
	for _, issue := range issues {
		c.Add(issue)
	}
	return c
}

// Add appends an issue under its source package, keeping insertion order.
func (c *Catalog) Add(issue Issue) {
	c.issues[issue.Source] = append(c.issues[issue.Source], issue)
}

// IssuesFor returns the issues known for a source package. Sources without
// issues yield an empty result.
func (c *Catalog) IssuesFor(source string) []Issue {
	return c.issues[source]
}

// Sources lists every source package in the catalog, sorted.
func (c *Catalog) Sources() []string {
	sources := maps.Keys(c.issues)
	slices.Sort(sources)
	return sources
}

// Len returns the number of issues in the catalog.
func (c *Catalog) Len() int {
	var n int
	for _, issues := range c.issues {
		n += len(issues)
	}
	return n
}
