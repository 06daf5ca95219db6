package tracker

import (
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aquasecurity/deb-audit/debver"
)

func TestIssue_PresentIn(t *testing.T) {
	testCases := []struct {
		name      string
		issue     Issue
		installed string
		expected  bool
	}{
		{
			name: "installed older than the fix",
			issue: Issue{
				Source:       "libxml2",
				ID:           "CVE-2016-9318",
				FixedVersion: "2.9.4+dfsg1-2",
			},
			installed: "2.9.4+dfsg1-1",
			expected:  true,
		},
		{
			name: "installed newer than the fix",
			issue: Issue{
				Source:       "libxml2",
				ID:           "CVE-2016-9318",
				FixedVersion: "2.9.4+dfsg1-2",
			},
			installed: "2.9.4+dfsg1-8",
			expected:  false,
		},
		{
			name: "installed equals the fix",
			issue: Issue{
				Source:       "libxml2",
				ID:           "CVE-2016-9318",
				FixedVersion: "2.9.4+dfsg1-2",
			},
			installed: "2.9.4+dfsg1-2",
			expected:  false,
		},
		{
			name: "no fixed version affects everything",
			issue: Issue{
				Source: "openssl",
				ID:     "CVE-2020-0001",
			},
			installed: "999:999-999",
			expected:  true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.issue.PresentIn(tc.installed)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestIssue_PresentIn_MalformedVersion(t *testing.T) {
	issue := Issue{
		Source:       "libxml2",
		ID:           "CVE-2016-9318",
		FixedVersion: "2.9.4+dfsg1-2",
	}
	_, err := issue.PresentIn("not a version")
	assert.ErrorIs(t, err, debver.ErrMalformedVersion)

	issue.FixedVersion = "<unfixed>"
	_, err = issue.PresentIn("1.0-1")
	assert.ErrorIs(t, err, debver.ErrMalformedVersion)
}

func TestIssue_Ignored(t *testing.T) {
	assert.False(t, Issue{}.Ignored())
	assert.False(t, Issue{Nodsa: lo.ToPtr("")}.Ignored())
	assert.True(t, Issue{Nodsa: lo.ToPtr("Minor issue")}.Ignored())

	// The decision never depends on versions.
	issue := Issue{FixedVersion: "2.0-1", Nodsa: lo.ToPtr("Minor issue")}
	assert.True(t, issue.Ignored())
}
