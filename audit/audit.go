// Package audit drives an audit end to end: scan the artifacts, resolve the
// release snapshot, classify every attributed issue and build the report.
package audit

import (
	"context"

	"github.com/samber/lo"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/xerrors"

	"github.com/aquasecurity/deb-audit/cache"
	"github.com/aquasecurity/deb-audit/deb"
	"github.com/aquasecurity/deb-audit/tracker"
	"github.com/aquasecurity/deb-audit/udd"
)

// Scanner yields the package identity of each artifact argument.
type Scanner interface {
	Scan(ctx context.Context, args []string) ([]deb.Package, error)
}

type Auditor struct {
	cacheDir string
	release  string

	scanner Scanner
	fetcher cache.Fetcher
	appFs   afero.Fs
	logger  *zap.Logger
}

type option func(*Auditor)

func WithScanner(scanner Scanner) option {
	return func(a *Auditor) {
		a.scanner = scanner
	}
}

func WithFetcher(fetcher cache.Fetcher) option {
	return func(a *Auditor) {
		a.fetcher = fetcher
	}
}

func WithAppFs(appFs afero.Fs) option {
	return func(a *Auditor) {
		a.appFs = appFs
	}
}

func WithLogger(logger *zap.Logger) option {
	return func(a *Auditor) {
		a.logger = logger
	}
}

func NewAuditor(cacheDir, release string, opts ...option) Auditor {
	a := Auditor{
		cacheDir: cacheDir,
		release:  release,
		scanner:  deb.NewScanner(),
		fetcher:  udd.NewClient(),
		appFs:    afero.NewOsFs(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&a)
	}
	return a
}

// Run audits the given artifacts against the configured release. The remote
// source is only contacted when the local snapshot is incomplete. Packages
// missing from the release index are reported, not treated as errors.
func (a Auditor) Run(ctx context.Context, files []string) (*Report, error) {
	packages, err := a.scanner.Scan(ctx, files)
	if err != nil {
		return nil, xerrors.Errorf("failed to scan artifacts: %w", err)
	}

	archs := lo.Uniq(lo.Map(packages, func(pkg deb.Package, _ int) string {
		return pkg.Architecture
	}))

	store := cache.NewStore(a.cacheDir, a.release, archs,
		cache.WithAppFs(a.appFs), cache.WithLogger(a.logger))
	if err := store.Load(); err != nil {
		return nil, xerrors.Errorf("failed to load cache: %w", err)
	}

	if store.IsComplete() {
		if updated, ok := store.LastUpdated(); ok {
			a.logger.Info("using cached data",
				zap.String("release", a.release), zap.Time("last_update", updated))
		}
	} else {
		a.logger.Info("cache incomplete, loading data from UDD", zap.String("release", a.release))
		if err := store.LoadMissing(ctx, a.fetcher); err != nil {
			return nil, xerrors.Errorf("failed to load missing cache data: %w", err)
		}
		// The audit works off memory; persisting the snapshot is best effort.
		if err := store.Dump(); err != nil {
			a.logger.Warn("failed to persist cache", zap.Error(err))
		}
	}

	report := &Report{Release: a.release}
	for _, pkg := range packages {
		if !store.Index().IsKnown(pkg.Architecture, pkg.Name) {
			report.Results = append(report.Results, Result{Package: pkg})
			continue
		}

		var issues []tracker.Issue
		for _, source := range store.Index().SourcesFor(pkg.Architecture, pkg.Name) {
			issues = append(issues, store.Catalog().IssuesFor(source)...)
		}
		summary, err := Summarize(issues, pkg.Version)
		if err != nil {
			return nil, xerrors.Errorf("failed to audit %s: %w", pkg.Name, err)
		}
		report.Results = append(report.Results, Result{
			Package: pkg,
			Known:   true,
			Summary: summary,
		})
	}
	return report, nil
}

// Summary partitions the issues attributed to one package by what they mean
// for the installed version. The three buckets are disjoint and exhaustive.
type Summary struct {
	Fixed   []tracker.Issue `json:"fixed"`
	Present []tracker.Issue `json:"present"`
	Ignored []tracker.Issue `json:"ignored"`
}

// Summarize classifies every issue relative to the installed version. An
// issue the release has fixed counts as fixed even when it carries an ignore
// annotation; ignoring only matters while an issue is unfixed.
func Summarize(issues []tracker.Issue, installed string) (Summary, error) {
	var s Summary
	for _, issue := range issues {
		present, err := issue.PresentIn(installed)
		if err != nil {
			return Summary{}, err
		}
		switch {
		case !present:
			s.Fixed = append(s.Fixed, issue)
		case issue.Ignored():
			s.Ignored = append(s.Ignored, issue)
		default:
			s.Present = append(s.Present, issue)
		}
	}
	return s, nil
}
