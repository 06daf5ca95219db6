// Package deb reads the control metadata out of Debian binary package
// archives. A .deb file is an ar archive whose control.tar member carries
// the package's control stanza.
package deb

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net/textproto"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/blakesmith/ar"
	"github.com/cheggaaa/pb/v3"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
	"golang.org/x/xerrors"

	"github.com/aquasecurity/deb-audit/utils"
)

// ErrInvalidArtifact is returned when an input is not a well formed Debian
// binary package.
var ErrInvalidArtifact = xerrors.New("invalid debian package")

// Package identifies one scanned artifact.
type Package struct {
	Name         string `json:"name"`
	Version      string `json:"version"`
	Architecture string `json:"architecture"`
}

func (p Package) String() string {
	return p.Name + " " + p.Architecture + " " + p.Version
}

type Scanner struct {
	progress bool
}

type option func(*Scanner)

// WithProgress shows a progress bar on stderr while scanning.
func WithProgress(progress bool) option {
	return func(s *Scanner) {
		s.progress = progress
	}
}

func NewScanner(opts ...option) Scanner {
	var s Scanner
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Scan reads the control metadata of every given artifact. Arguments may be
// local paths or URLs; URLs are downloaded to a temp file first. The first
// invalid artifact aborts the scan.
func (s Scanner) Scan(ctx context.Context, args []string) ([]Package, error) {
	var bar *pb.ProgressBar
	if s.progress {
		// Findings own stdout; the bar goes to stderr with the logs.
		bar = pb.New(len(args)).SetWriter(os.Stderr).Start()
	}

	pkgs := make([]Package, 0, len(args))
	for _, arg := range args {
		pkg, err := s.scan(ctx, arg)
		if err != nil {
			return nil, err
		}
		pkgs = append(pkgs, pkg)
		if bar != nil {
			bar.Increment()
		}
	}
	if bar != nil {
		bar.Finish()
	}
	return pkgs, nil
}

func (s Scanner) scan(ctx context.Context, arg string) (Package, error) {
	filePath := arg
	if isRemote(arg) {
		tmpFile, err := utils.DownloadToTempFile(ctx, arg)
		if err != nil {
			return Package{}, xerrors.Errorf("failed to download %s: %v: %w", arg, err, ErrInvalidArtifact)
		}
		defer os.Remove(tmpFile)
		filePath = tmpFile
	}

	f, err := os.Open(filePath)
	if err != nil {
		return Package{}, xerrors.Errorf("unable to open %s: %v: %w", arg, err, ErrInvalidArtifact)
	}
	defer f.Close()

	pkg, err := readControl(f)
	if err != nil {
		return Package{}, xerrors.Errorf("%s: %w", arg, err)
	}
	return pkg, nil
}

func isRemote(arg string) bool {
	u, err := url.Parse(arg)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// readControl walks the ar archive until the control tarball and extracts
// the package identity from it.
func readControl(r io.Reader) (Package, error) {
	reader := ar.NewReader(r)
	for {
		hdr, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return Package{}, xerrors.Errorf("no control archive member: %w", ErrInvalidArtifact)
		} else if err != nil {
			return Package{}, xerrors.Errorf("ar read error: %v: %w", err, ErrInvalidArtifact)
		}

		// dpkg writes plain member names; GNU ar may append a slash.
		name := strings.TrimSuffix(strings.TrimSpace(hdr.Name), "/")
		if !strings.HasPrefix(name, "control.tar") {
			continue
		}

		decompressed, err := decompress(name, reader)
		if err != nil {
			return Package{}, err
		}
		if closer, ok := decompressed.(io.Closer); ok {
			defer closer.Close()
		}
		return parseControlTar(decompressed)
	}
}

func decompress(name string, r io.Reader) (io.Reader, error) {
	switch path.Ext(name) {
	case ".tar":
		return r, nil
	case ".gz":
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, xerrors.Errorf("gzip error: %v: %w", err, ErrInvalidArtifact)
		}
		return gz, nil
	case ".xz":
		xzr, err := xz.NewReader(r)
		if err != nil {
			return nil, xerrors.Errorf("xz error: %v: %w", err, ErrInvalidArtifact)
		}
		return xzr, nil
	case ".zst":
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, xerrors.Errorf("zstd error: %v: %w", err, ErrInvalidArtifact)
		}
		return zr.IOReadCloser(), nil
	}
	return nil, xerrors.Errorf("unsupported control archive %q: %w", name, ErrInvalidArtifact)
}

func parseControlTar(r io.Reader) (Package, error) {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return Package{}, xerrors.Errorf("control archive read error: %v: %w", err, ErrInvalidArtifact)
		}

		if path.Clean(hdr.Name) != "control" {
			continue
		}
		return parseControl(tr)
	}
	return Package{}, xerrors.Errorf("control file not found: %w", ErrInvalidArtifact)
}

// parseControl reads the first stanza of a control file, the same RFC822
// like format dpkg uses in Packages indexes.
func parseControl(r io.Reader) (Package, error) {
	buf := new(bytes.Buffer)
	s := bufio.NewScanner(r)
	for s.Scan() {
		line := s.Text()
		if line == "" {
			break
		}
		buf.WriteString(line + "\n")
	}
	if err := s.Err(); err != nil {
		return Package{}, xerrors.Errorf("control read error: %v: %w", err, ErrInvalidArtifact)
	}
	buf.WriteString("\n")

	tp := textproto.NewReader(bufio.NewReader(buf))
	header, err := tp.ReadMIMEHeader()
	if err != nil {
		return Package{}, xerrors.Errorf("malformed control stanza: %v: %w", err, ErrInvalidArtifact)
	}

	pkg := Package{
		Name:         header.Get("Package"),
		Version:      header.Get("Version"),
		Architecture: header.Get("Architecture"),
	}
	if pkg.Name == "" || pkg.Version == "" || pkg.Architecture == "" {
		return Package{}, xerrors.Errorf("control stanza misses a required field: %w", ErrInvalidArtifact)
	}
	return pkg, nil
}
