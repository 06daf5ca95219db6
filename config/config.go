// Package config resolves the tool configuration from a YAML file, the
// environment and built-in defaults.
package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v2"

	"github.com/aquasecurity/deb-audit/udd"
	"github.com/aquasecurity/deb-audit/utils"
)

// DefaultRelease is audited when neither the configuration nor the command
// line names one.
const DefaultRelease = "buster"

const (
	envConfig   = "DEB_AUDIT_CONFIG"
	envCacheDir = "DEB_AUDIT_CACHE_DIR"
	envRelease  = "DEB_AUDIT_RELEASE"
	envDSN      = "DEB_AUDIT_UDD_DSN"
)

type Config struct {
	CacheDir string `yaml:"cache_dir"`
	Release  string `yaml:"release"`
	UDD      UDD    `yaml:"udd"`
}

type UDD struct {
	DSN string `yaml:"dsn"`
}

// DefaultPath returns the well-known configuration file location, or an
// empty string when the user configuration directory cannot be determined.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "deb-audit", "config.yaml")
}

// Load reads the configuration file and fills the gaps with environment
// variables and built-in defaults. A missing file is only an error when the
// path was requested explicitly, through the argument or the environment.
// Command line flags beat everything Load returns; that happens at the
// command layer.
func Load(appFs afero.Fs, path string) (Config, error) {
	conf := Config{
		CacheDir: utils.CacheDir(),
		Release:  DefaultRelease,
		UDD:      UDD{DSN: udd.DefaultDSN},
	}

	explicit := path != ""
	if path == "" {
		if env := os.Getenv(envConfig); env != "" {
			path, explicit = env, true
		} else {
			path = DefaultPath()
		}
	}

	if path != "" {
		data, err := afero.ReadFile(appFs, path)
		switch {
		case err == nil:
			if err = yaml.Unmarshal(data, &conf); err != nil {
				return Config{}, xerrors.Errorf("unable to parse %s: %w", path, err)
			}
		case os.IsNotExist(err) && !explicit:
		default:
			return Config{}, xerrors.Errorf("unable to read %s: %w", path, err)
		}
	}

	conf.CacheDir = utils.LookupEnv(envCacheDir, conf.CacheDir)
	conf.Release = utils.LookupEnv(envRelease, conf.Release)
	conf.UDD.DSN = utils.LookupEnv(envDSN, conf.UDD.DSN)

	return conf, nil
}
