package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCatalog(t *testing.T) {
	issues := []Issue{
		{Source: "openssl", ID: "CVE-2021-0001"},
		{Source: "libxml2", ID: "CVE-2016-9318", FixedVersion: "2.9.4+dfsg1-2"},
		{Source: "openssl", ID: "CVE-2021-0002"},
	}
	catalog := NewCatalog(issues)

	assert.Equal(t, 3, catalog.Len())
	assert.Equal(t, []string{"libxml2", "openssl"}, catalog.Sources())

	// Insertion order is kept per source.
	got := catalog.IssuesFor("openssl")
	assert.Equal(t, []Issue{
		{Source: "openssl", ID: "CVE-2021-0001"},
		{Source: "openssl", ID: "CVE-2021-0002"},
	}, got)

	assert.Empty(t, catalog.IssuesFor("no-such-source"))

	catalog.Add(Issue{Source: "zlib", ID: "CVE-2022-0003"})
	assert.Equal(t, 4, catalog.Len())
	assert.Equal(t, []string{"libxml2", "openssl", "zlib"}, catalog.Sources())
}
