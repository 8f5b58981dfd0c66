// Package config loads the conversion parameter file: TOML primary
// format via BurntSushi/toml, with a legacy YAML fallback via
// gopkg.in/yaml.v2 for config files carried over from older installs
// (pre-0.2). Format is sniffed, not chosen by file extension, since
// operators commonly keep the historical ".cfg" name regardless of
// the syntax they actually wrote it in.
package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	yaml "gopkg.in/yaml.v2"

	"github.com/svn2git/svn2git/internal/svnerr"
)

// Params is the full conversion configuration surface.
type Params struct {
	Source      string `toml:"src" yaml:"src"`
	Destination string `toml:"dest" yaml:"dest"`

	Branches []string `toml:"branches" yaml:"branches"`
	Tags     []string `toml:"tags" yaml:"tags"`

	RenameBranches map[string]string `toml:"rename-branches" yaml:"rename-branches"`
	RenameTags     map[string]string `toml:"rename-tags" yaml:"rename-tags"`

	KeepDeletedBranches bool `toml:"keep-deleted-branches" yaml:"keep-deleted-branches"`
	KeepDeletedTags     bool `toml:"keep-deleted-tags" yaml:"keep-deleted-tags"`

	PartialBranches []string `toml:"partial-branches" yaml:"partial-branches"`
	PartialTags     []string `toml:"partial-tags" yaml:"partial-tags"`

	Head           string `toml:"head" yaml:"head"`
	UnbranchedName string `toml:"unbranched-name" yaml:"unbranched-name"`

	EnableMerges      bool     `toml:"enable-merges" yaml:"enable-merges"`
	GenerateGitignore bool     `toml:"generate-gitignore" yaml:"generate-gitignore"`
	DeleteFiles       []string `toml:"delete-files" yaml:"delete-files"`
	UserMapFile       string   `toml:"user-map-file" yaml:"user-map-file"`
	MergeOptional     []string `toml:"merge-optional" yaml:"merge-optional"`

	// AuthorsProg and RevisionMapFile round out the ambient CLI; they
	// are operational knobs, not conversion features the distillation's
	// Non-goals exclude.
	AuthorsProg     string `toml:"authors-prog" yaml:"authors-prog"`
	RevisionMapFile string `toml:"revision-map-file" yaml:"revision-map-file"`

	ObjCacheSizeBytes int64  `toml:"obj-cache-size" yaml:"obj-cache-size"`
	StderrLogLevel    string `toml:"stderr-log-level" yaml:"stderr-log-level"`
	FileLogLevel      string `toml:"file-log-level" yaml:"file-log-level"`
	LogFile           string `toml:"log-file" yaml:"log-file"`
	NoProgress        bool   `toml:"no-progress" yaml:"no-progress"`
	GitRepack         bool   `toml:"git-repack" yaml:"git-repack"`
}

// Default returns a Params populated with the conventional SVN layout
// and conservative defaults, matching what a bare `svn2git` invocation
// with no config file does.
func Default() Params {
	return Params{
		Branches:            []string{"trunk", "branches/*"},
		Tags:                []string{"tags/*"},
		KeepDeletedBranches: true,
		KeepDeletedTags:     true,
		EnableMerges:        true,
		GenerateGitignore:   true,
		StderrLogLevel:      "info",
		ObjCacheSizeBytes:   384 << 20,
	}
}

// Load reads params from path, sniffing TOML vs. YAML by trying TOML
// first and falling back to YAML only on a parse error -- a config
// file that happens to parse as both is vanishingly unlikely given how
// differently the two syntaxes treat bracketed headers.
func Load(path string) (Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Params{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	p := Default()
	if _, tomlErr := toml.Decode(string(data), &p); tomlErr == nil {
		return p, nil
	}

	p = Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if yamlErr := dec.Decode(&p); yamlErr != nil {
		return Params{}, svnerr.New(svnerr.ClassConfig, 0, path, "neither valid TOML nor YAML: %v", yamlErr)
	}
	return p, nil
}
