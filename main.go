package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/xerrors"

	"github.com/aquasecurity/deb-audit/audit"
	"github.com/aquasecurity/deb-audit/cache"
	"github.com/aquasecurity/deb-audit/config"
	"github.com/aquasecurity/deb-audit/deb"
	"github.com/aquasecurity/deb-audit/udd"
	"github.com/aquasecurity/deb-audit/utils"
)

const (
	formatText = "text"
	formatJSON = "json"
)

// errFindings makes the process exit non-zero after the findings have
// already been written to stdout.
var errFindings = xerrors.New("issues or unknown packages found")

type globalOptions struct {
	configPath string
	cacheDir   string
	release    string
	verbose    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errFindings) {
			fmt.Fprintf(os.Stderr, "deb-audit: %s\n", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	var (
		showAll      bool
		allowUnknown bool
		format       string
	)

	cmd := &cobra.Command{
		Use:   "deb-audit [flags] FILE...",
		Short: "Audit Debian packages for known vulnerabilities",
		Long: `deb-audit checks .deb files against the security tracker data in the
Ultimate Debian Database and reports the issues that still apply to the
installed versions. Tracker data is cached on disk, so only the first
run for a release needs the database.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if format != formatText && format != formatJSON {
				return xerrors.Errorf("unsupported format %q", format)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := utils.NewLogger(opts.verbose)
			defer logger.Sync()

			conf, err := resolveConfig(opts)
			if err != nil {
				return err
			}

			client := udd.NewClient(udd.WithDSN(conf.UDD.DSN), udd.WithLogger(logger))
			defer client.Close()

			auditor := audit.NewAuditor(conf.CacheDir, conf.Release,
				audit.WithScanner(deb.NewScanner(deb.WithProgress(opts.verbose))),
				audit.WithFetcher(client),
				audit.WithLogger(logger),
			)

			report, err := auditor.Run(cmd.Context(), args)
			if err != nil {
				return err
			}

			if format == formatJSON {
				if err = json.NewEncoder(os.Stdout).Encode(report); err != nil {
					return xerrors.Errorf("unable to encode the report: %w", err)
				}
			} else {
				report.Render(os.Stdout, showAll)
			}

			switch {
			case report.TotalPresent() > 0:
				logger.Info("found not-ignored issues", zap.Int("count", report.TotalPresent()))
			case report.TotalUnknown() > 0:
				logger.Info("found unknown issues", zap.Int("count", report.TotalUnknown()))
			default:
				logger.Info("no non-ignored issues found")
			}

			if !report.Passed(allowUnknown) {
				return errFindings
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "configuration file (default \"$XDG_CONFIG_HOME/deb-audit/config.yaml\")")
	cmd.PersistentFlags().StringVar(&opts.cacheDir, "cache-dir", "", "directory for cached tracker data")
	cmd.PersistentFlags().StringVarP(&opts.release, "release", "r", "", fmt.Sprintf("Debian release (default %q)", config.DefaultRelease))
	cmd.PersistentFlags().BoolVar(&opts.verbose, "verbose", false, "log progress to stderr")
	cmd.Flags().BoolVarP(&showAll, "show-all", "a", false, "also list packages without applicable issues")
	cmd.Flags().BoolVar(&allowUnknown, "allow-unknown", false, "do not fail when a package is unknown to the release")
	cmd.Flags().StringVar(&format, "format", formatText, "output format (text or json)")

	cmd.AddCommand(newCacheCmd(opts))

	return cmd
}

func newCacheCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage cached tracker data",
	}
	cmd.AddCommand(newCacheStatusCmd(opts), newCacheCleanCmd(opts), newCacheRefreshCmd(opts))
	return cmd
}

func newCacheStatusCmd(opts *globalOptions) *cobra.Command {
	var archs []string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether the cache covers the release",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := resolveConfig(opts)
			if err != nil {
				return err
			}

			store := cache.NewStore(conf.CacheDir, conf.Release, archs)
			if !store.IsComplete() {
				fmt.Printf("%s: incomplete\n", conf.Release)
				return nil
			}
			if lastUpdate, ok := store.LastUpdated(); ok {
				fmt.Printf("%s: complete (last update %s)\n", conf.Release, lastUpdate.Format(time.RFC3339))
			} else {
				fmt.Printf("%s: complete\n", conf.Release)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&archs, "arch", nil, "architectures the cache must cover")
	cmd.MarkFlagRequired("arch")

	return cmd
}

func newCacheCleanCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove cached tracker data for the release",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := utils.NewLogger(opts.verbose)
			defer logger.Sync()

			conf, err := resolveConfig(opts)
			if err != nil {
				return err
			}

			store := cache.NewStore(conf.CacheDir, conf.Release, nil, cache.WithLogger(logger))
			return store.Clean()
		},
	}
}

func newCacheRefreshCmd(opts *globalOptions) *cobra.Command {
	var archs []string

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Fetch fresh tracker data from UDD",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := utils.NewLogger(opts.verbose)
			defer logger.Sync()

			conf, err := resolveConfig(opts)
			if err != nil {
				return err
			}

			client := udd.NewClient(udd.WithDSN(conf.UDD.DSN), udd.WithLogger(logger))
			defer client.Close()

			// A fresh store considers everything missing, so this
			// fetches the release from scratch.
			store := cache.NewStore(conf.CacheDir, conf.Release, archs, cache.WithLogger(logger))
			if err := store.LoadMissing(cmd.Context(), client); err != nil {
				return err
			}
			return store.Dump()
		},
	}
	cmd.Flags().StringSliceVar(&archs, "arch", nil, "architectures to fetch source maps for")
	cmd.MarkFlagRequired("arch")

	return cmd
}

func resolveConfig(opts *globalOptions) (config.Config, error) {
	conf, err := config.Load(afero.NewOsFs(), opts.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if opts.cacheDir != "" {
		conf.CacheDir = opts.cacheDir
	}
	if opts.release != "" {
		conf.Release = opts.release
	}
	return conf, nil
}
