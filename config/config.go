// Package config reads the Cytomine profiles file, which holds the host and
// keys used when they are not given on the command line.
//
//	profiles:
//	  default:
//	    host: https://research.cytomine.be
//	    public_key: ...
//	    private_key: ...
//	  local:
//	    host: localhost-core
//	    protocol: http
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/cytomine/cytomine-go-client/cytomine"
	"gopkg.in/yaml.v3"
)

const (
	EnvVar         = "CYTOMINE_CONFIG"
	DefaultProfile = "default"
)

var ErrUnknownProfile = errors.New("unknown profile")

type Profile struct {
	Host         string `yaml:"host"`
	PublicKey    string `yaml:"public_key"`
	PrivateKey   string `yaml:"private_key"`
	Protocol     string `yaml:"protocol,omitempty"`
	DownloadPath string `yaml:"download_path,omitempty"`
}

type File struct {
	Profiles map[string]Profile `yaml:"profiles"`
}

// Path returns $CYTOMINE_CONFIG, or config.yaml in the cytomine directory of
// the user config dir.
func Path() (string, error) {
	if custom := os.Getenv(EnvVar); custom != "" {
		return expandHomeDir(custom), nil
	}

	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "cytomine", "config.yaml"), nil
		}
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		homeDir, homeErr := os.UserHomeDir()
		if homeErr != nil {
			return "", fmt.Errorf("failed to determine home directory: %w", homeErr)
		}
		return filepath.Join(homeDir, ".cytomine", "config.yaml"), nil
	}
	return filepath.Join(configDir, "cytomine", "config.yaml"), nil
}

// Load reads the profiles file at path. A missing file is an empty one.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &File{Profiles: map[string]Profile{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file (%s): %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if f.Profiles == nil {
		f.Profiles = map[string]Profile{}
	}
	for name, p := range f.Profiles {
		p.DownloadPath = expandHomeDir(p.DownloadPath)
		f.Profiles[name] = p
	}
	return &f, nil
}

// Profile returns the named profile. The default profile may be absent.
func (f *File) Profile(name string) (Profile, error) {
	if name == "" {
		name = DefaultProfile
	}
	p, ok := f.Profiles[name]
	if !ok && name != DefaultProfile {
		return Profile{}, fmt.Errorf("%w %q, known profiles: %s", ErrUnknownProfile, name, strings.Join(f.names(), ", "))
	}
	return p, nil
}

func (f *File) names() []string {
	names := make([]string, 0, len(f.Profiles))
	for name := range f.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Save writes the profile under name, keeping the other profiles.
func Save(path string, name string, p Profile) error {
	f, err := Load(path)
	if err != nil {
		return err
	}
	f.Profiles[name] = p

	data, err := yaml.Marshal(f)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Fill sets the connection settings left empty in cfg.
func (p Profile) Fill(cfg *cytomine.Config) {
	if cfg.Host == "" {
		cfg.Host = p.Host
	}
	if cfg.PublicKey == "" {
		cfg.PublicKey = p.PublicKey
	}
	if cfg.PrivateKey == "" {
		cfg.PrivateKey = p.PrivateKey
	}
	if cfg.Protocol == "" {
		cfg.Protocol = p.Protocol
	}
}

func expandHomeDir(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
