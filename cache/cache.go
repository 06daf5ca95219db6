// Package cache persists release scoped snapshots of the data the auditor
// checks against, so UDD is only queried when the local copy is incomplete.
//
// A snapshot lives in one flat directory:
//
//	<dir>/<release>-issues.json             one issue per line
//	<dir>/<release>-<arch>.source-map.json  {"pkg": [["version","source"], ...]}
package cache

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/xerrors"

	"github.com/aquasecurity/deb-audit/tracker"
	"github.com/aquasecurity/deb-audit/utils"
)

// ErrCorrupted is returned when a snapshot file exists but cannot be parsed.
// A corrupted snapshot aborts the run instead of being fetched over.
var ErrCorrupted = xerrors.New("corrupted cache")

// Fetcher supplies the datasets a snapshot is built from.
type Fetcher interface {
	Issues(ctx context.Context, release string) ([]tracker.Issue, error)
	SourceMap(ctx context.Context, release, arch string) (tracker.SourceMap, error)
}

// Store manages the snapshot of one release for a fixed set of
// architectures.
type Store struct {
	dir     string
	release string
	archs   []string

	appFs  afero.Fs
	logger *zap.Logger

	catalog *tracker.Catalog
	index   *tracker.Index
}

type option func(*Store)

func WithAppFs(appFs afero.Fs) option {
	return func(s *Store) {
		s.appFs = appFs
	}
}

func WithLogger(logger *zap.Logger) option {
	return func(s *Store) {
		s.logger = logger
	}
}

func NewStore(dir, release string, archs []string, opts ...option) *Store {
	s := &Store{
		dir:     dir,
		release: release,
		archs:   archs,
		appFs:   afero.NewOsFs(),
		logger:  zap.NewNop(),
		index:   tracker.NewIndex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Catalog returns the loaded issue catalog, nil before Load/LoadMissing.
func (s *Store) Catalog() *tracker.Catalog {
	return s.catalog
}

// Index returns the loaded package index. Architectures whose files were
// never loaded are absent from it.
func (s *Store) Index() *tracker.Index {
	return s.index
}

// IsComplete reports whether every snapshot file exists on disk.
func (s *Store) IsComplete() bool {
	for _, filePath := range s.files() {
		if ok, err := afero.Exists(s.appFs, filePath); err != nil || !ok {
			return false
		}
	}
	return true
}

// LastUpdated returns the age of the snapshot, taken as the modification
// time of its oldest file. The second return is false when the snapshot is
// incomplete.
func (s *Store) LastUpdated() (time.Time, bool) {
	var oldest time.Time
	for _, filePath := range s.files() {
		info, err := s.appFs.Stat(filePath)
		if err != nil {
			return time.Time{}, false
		}
		if oldest.IsZero() || info.ModTime().Before(oldest) {
			oldest = info.ModTime()
		}
	}
	return oldest, !oldest.IsZero()
}

// Load reads every snapshot file that exists. Missing files are left for
// LoadMissing; files that exist but do not parse fail with ErrCorrupted.
func (s *Store) Load() error {
	ok, err := afero.Exists(s.appFs, s.issuesFile())
	if err != nil {
		return xerrors.Errorf("unable to stat %s: %w", s.issuesFile(), err)
	}
	if ok {
		catalog, err := s.readIssues()
		if err != nil {
			return err
		}
		s.catalog = catalog
	}

	for _, arch := range s.archs {
		filePath := s.sourceMapFile(arch)
		ok, err := afero.Exists(s.appFs, filePath)
		if err != nil {
			return xerrors.Errorf("unable to stat %s: %w", filePath, err)
		}
		if !ok {
			continue
		}
		sm, err := s.readSourceMap(filePath)
		if err != nil {
			return err
		}
		s.index.Add(arch, sm)
	}
	return nil
}

// LoadMissing fetches whatever Load left absent. It stages the results and
// commits them only when every fetch succeeded, so a failure leaves the
// store untouched. Nothing is written to disk; that is Dump's job.
func (s *Store) LoadMissing(ctx context.Context, fetcher Fetcher) error {
	var catalog *tracker.Catalog
	if s.catalog == nil {
		s.logger.Info("loading issues from UDD", zap.String("release", s.release))
		issues, err := fetcher.Issues(ctx, s.release)
		if err != nil {
			return xerrors.Errorf("failed to fetch issues for %s: %w", s.release, err)
		}
		catalog = tracker.NewCatalog(issues)
	}

	staged := map[string]tracker.SourceMap{}
	for _, arch := range s.archs {
		if s.index.SourceMap(arch) != nil {
			continue
		}
		s.logger.Info("loading source map from UDD",
			zap.String("release", s.release), zap.String("arch", arch))
		sm, err := fetcher.SourceMap(ctx, s.release, arch)
		if err != nil {
			return xerrors.Errorf("failed to fetch source map for %s/%s: %w", s.release, arch, err)
		}
		staged[arch] = sm
	}

	if catalog != nil {
		s.catalog = catalog
	}
	for arch, sm := range staged {
		s.index.Add(arch, sm)
	}
	return nil
}

// Dump writes the in-memory snapshot to disk. Each file is written to a temp
// file and renamed into place, so a crash or failure never leaves a partial
// file behind.
func (s *Store) Dump() error {
	fs := utils.NewFs(s.appFs)

	if s.catalog != nil {
		b, err := encodeIssues(s.catalog)
		if err != nil {
			return xerrors.Errorf("failed to encode issues: %w", err)
		}
		if err := fs.WriteAtomic(s.issuesFile(), b); err != nil {
			return xerrors.Errorf("failed to dump issues: %w", err)
		}
	}

	for _, arch := range s.index.Architectures() {
		b, err := json.Marshal(s.index.SourceMap(arch))
		if err != nil {
			return xerrors.Errorf("failed to encode source map for %s: %w", arch, err)
		}
		if err := fs.WriteAtomic(s.sourceMapFile(arch), b); err != nil {
			return xerrors.Errorf("failed to dump source map for %s: %w", arch, err)
		}
	}
	return nil
}

// Clean removes every snapshot file of the release, including architectures
// this store was not configured with.
func (s *Store) Clean() error {
	matches, err := afero.Glob(s.appFs, filepath.Join(s.dir, s.release+"-*.json"))
	if err != nil {
		return xerrors.Errorf("failed to list snapshot files: %w", err)
	}
	for _, filePath := range matches {
		if err := s.appFs.Remove(filePath); err != nil {
			return xerrors.Errorf("failed to remove %s: %w", filePath, err)
		}
		s.logger.Info("removed", zap.String("file", filePath))
	}
	return nil
}

func (s *Store) readIssues() (*tracker.Catalog, error) {
	f, err := s.appFs.Open(s.issuesFile())
	if err != nil {
		return nil, xerrors.Errorf("unable to open %s: %w", s.issuesFile(), err)
	}
	defer f.Close()

	catalog := tracker.NewCatalog(nil)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for line := 1; scanner.Scan(); line++ {
		var issue tracker.Issue
		if err := json.Unmarshal(scanner.Bytes(), &issue); err != nil {
			return nil, xerrors.Errorf("%s line %d: %v: %w",
				filepath.Base(s.issuesFile()), line, err, ErrCorrupted)
		}
		catalog.Add(issue)
	}
	if err := scanner.Err(); err != nil {
		return nil, xerrors.Errorf("failed to read %s: %w", s.issuesFile(), err)
	}
	return catalog, nil
}

func (s *Store) readSourceMap(filePath string) (tracker.SourceMap, error) {
	b, err := afero.ReadFile(s.appFs, filePath)
	if err != nil {
		return nil, xerrors.Errorf("unable to read %s: %w", filePath, err)
	}

	var sm tracker.SourceMap
	if err := json.Unmarshal(b, &sm); err != nil {
		return nil, xerrors.Errorf("%s: %v: %w", filepath.Base(filePath), err, ErrCorrupted)
	}
	return sm, nil
}

// encodeIssues renders the catalog as line delimited JSON with sources in
// sorted order, which keeps repeated dumps byte identical.
func encodeIssues(catalog *tracker.Catalog) ([]byte, error) {
	buf := new(bytes.Buffer)
	for _, source := range catalog.Sources() {
		for _, issue := range catalog.IssuesFor(source) {
			b, err := json.Marshal(issue)
			if err != nil {
				return nil, err
			}
			buf.Write(b)
			buf.WriteByte('\n')
		}
	}
	return buf.Bytes(), nil
}

func (s *Store) files() []string {
	files := []string{s.issuesFile()}
	for _, arch := range s.archs {
		files = append(files, s.sourceMapFile(arch))
	}
	return files
}

func (s *Store) issuesFile() string {
	return filepath.Join(s.dir, fmt.Sprintf("%s-issues.json", s.release))
}

func (s *Store) sourceMapFile(arch string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s-%s.source-map.json", s.release, arch))
}
