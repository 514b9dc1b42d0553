// Package config implements Dits' layered configuration: defaults,
// overridden by a global config file, overridden by a per-repository one.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Chunking holds content-defined chunker size parameters.
type Chunking struct {
	MinSize    uint32 `yaml:"min_size,omitempty"`
	TargetSize uint32 `yaml:"target_size,omitempty"`
	MaxSize    uint32 `yaml:"max_size,omitempty"`
}

// Cache holds multi-tier chunk cache sizing and prefetch behavior.
type Cache struct {
	L1MaxBytes      int64  `yaml:"l1_max_bytes,omitempty"`
	L2MaxBytes      int64  `yaml:"l2_max_bytes,omitempty"`
	L2Path          string `yaml:"l2_path,omitempty"`
	PrefetchEnabled *bool  `yaml:"prefetch_enabled,omitempty"`
	PrefetchCount   int    `yaml:"prefetch_count,omitempty"`
}

// Author holds default commit identity, overridden by DITS_AUTHOR_*/
// GIT_AUTHOR_* environment variables at commit time.
type Author struct {
	Name  string `yaml:"name,omitempty"`
	Email string `yaml:"email,omitempty"`
}

// Config is the fully merged configuration consulted by the repository
// façade.
type Config struct {
	Chunking Chunking `yaml:"chunking"`
	Cache    Cache    `yaml:"cache"`
	Author   Author   `yaml:"author"`
}

// Default returns the built-in baseline configuration. Chunking is left
// zeroed: absent values mean "use the per-category chunker presets", and
// only explicitly configured sizes override them.
func Default() Config {
	enabled := true
	return Config{
		Cache: Cache{
			L1MaxBytes:      256 * 1024 * 1024,
			L2MaxBytes:      4 * 1024 * 1024 * 1024,
			PrefetchEnabled: &enabled,
			PrefetchCount:   4,
		},
	}
}

// GlobalPath returns the path to the user's global config file,
// $HOME/.ditsconfig.yaml.
func GlobalPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".ditsconfig.yaml")
}

// Load builds a Config by merging, in increasing priority: built-in
// defaults, the global config file (if present), and the per-repository
// config file at <ditsDir>/config.yaml (if present). Either file being
// absent is not an error.
func Load(ditsDir string) (Config, error) {
	cfg := Default()

	if err := mergeFile(&cfg, GlobalPath()); err != nil {
		return cfg, err
	}
	if err := mergeFile(&cfg, filepath.Join(ditsDir, "config.yaml")); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func mergeFile(cfg *Config, path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var overlay Config
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	applyOverlay(cfg, overlay)
	return nil
}

// applyOverlay merges non-zero fields from overlay into cfg. Cache's
// PrefetchEnabled is a pointer so an explicit "prefetch_enabled: false" in
// the file can be distinguished from the key being absent.
func applyOverlay(cfg *Config, overlay Config) {
	if overlay.Chunking.MinSize != 0 {
		cfg.Chunking.MinSize = overlay.Chunking.MinSize
	}
	if overlay.Chunking.TargetSize != 0 {
		cfg.Chunking.TargetSize = overlay.Chunking.TargetSize
	}
	if overlay.Chunking.MaxSize != 0 {
		cfg.Chunking.MaxSize = overlay.Chunking.MaxSize
	}
	if overlay.Cache.L1MaxBytes != 0 {
		cfg.Cache.L1MaxBytes = overlay.Cache.L1MaxBytes
	}
	if overlay.Cache.L2MaxBytes != 0 {
		cfg.Cache.L2MaxBytes = overlay.Cache.L2MaxBytes
	}
	if overlay.Cache.L2Path != "" {
		cfg.Cache.L2Path = overlay.Cache.L2Path
	}
	if overlay.Cache.PrefetchEnabled != nil {
		cfg.Cache.PrefetchEnabled = overlay.Cache.PrefetchEnabled
	}
	if overlay.Cache.PrefetchCount != 0 {
		cfg.Cache.PrefetchCount = overlay.Cache.PrefetchCount
	}
	if overlay.Author.Name != "" {
		cfg.Author.Name = overlay.Author.Name
	}
	if overlay.Author.Email != "" {
		cfg.Author.Email = overlay.Author.Email
	}
}

// Save writes cfg to <ditsDir>/config.yaml.
func Save(ditsDir string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	path := filepath.Join(ditsDir, "config.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
