// Package debver orders Debian package versions the way dpkg does, including
// epochs, tilde sorting and the revision part.
package debver

import (
	version "github.com/knqyf263/go-deb-version"
	"golang.org/x/xerrors"
)

// Results of Compare.
const (
	Less    = -1
	Equal   = 0
	Greater = 1
)

// ErrMalformedVersion is returned when a version string does not follow the
// Debian version syntax.
var ErrMalformedVersion = xerrors.New("malformed debian version")

// Compare orders two Debian version strings. It returns Less when a is older
// than b, Equal when they order the same and Greater when a is newer than b.
func Compare(a, b string) (int, error) {
	va, err := version.NewVersion(a)
	if err != nil {
		return 0, xerrors.Errorf("%q: %v: %w", a, err, ErrMalformedVersion)
	}
	vb, err := version.NewVersion(b)
	if err != nil {
		return 0, xerrors.Errorf("%q: %v: %w", b, err, ErrMalformedVersion)
	}

	switch {
	case va.LessThan(vb):
		return Less, nil
	case vb.LessThan(va):
		return Greater, nil
	}
	return Equal, nil
}
