package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/brettbedarf/kvfs/internal/util"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Config contains runtime configuration values for the VFS and its FUSE
// frontend.
type Config struct {
	MountOptions
	LogLvl util.LogLevel

	AttrTimeout  float64 // Attribute cache timeout in seconds (Default 1.0)
	EntryTimeout float64 // Directory entry cache timeout in seconds (Default 1.0)

	FileMode uint32 // Mode for files created without one (Default 0644)
	DirMode  uint32 // Mode for directories created without one (Default 0755)

	RamFSSize string        // Capacity of ramfs mounts without a Size (Default unlimited)
	Mounts    []MountConfig // Mount table; the first entry is "/"
}

// ConfigOverride uses pointer fields to distinguish between unset and zero values
// when loading partial configuration. See [Config] for field descriptions.
// Mounts replaces the whole table when non-nil.
type ConfigOverride struct {
	LogLvl       *int          `yaml:"log_lvl,omitempty" json:"log_lvl,omitempty"` // CLI verbosity 1..5
	Debug        *bool         `yaml:"debug,omitempty" json:"debug,omitempty"`
	FsName       *string       `yaml:"fs_name,omitempty" json:"fs_name,omitempty"`
	Name         *string       `yaml:"name,omitempty" json:"name,omitempty"`
	AttrTimeout  *float64      `yaml:"attr_timeout,omitempty" json:"attr_timeout,omitempty"`
	EntryTimeout *float64      `yaml:"entry_timeout,omitempty" json:"entry_timeout,omitempty"`
	FileMode     *uint32       `yaml:"file_mode,omitempty" json:"file_mode,omitempty"`
	DirMode      *uint32       `yaml:"dir_mode,omitempty" json:"dir_mode,omitempty"`
	RamFSSize    *string       `yaml:"ramfs_size,omitempty" json:"ramfs_size,omitempty"`
	Mounts       []MountConfig `yaml:"mounts,omitempty" json:"mounts,omitempty"`
}

// NewConfig creates a Config from defaults with override applied on top.
// A nil override yields the defaults.
func NewConfig(override *ConfigOverride) *Config {
	cfg := &Config{
		MountOptions: MountOptions{
			FsName: DefaultFsName,
			Name:   DefaultName,
		},
		LogLvl:       DefaultLogLvl,
		AttrTimeout:  DefaultAttrTimeout,
		EntryTimeout: DefaultEntryTimeout,
		FileMode:     DefaultFileMode,
		DirMode:      DefaultDirMode,
		RamFSSize:    DefaultRamFSSize,
		Mounts:       DefaultMounts(),
	}
	if override != nil {
		cfg.Merge(override)
	}
	return cfg
}

// Merge applies non-nil values from override onto this Config.
// This allows partial configuration updates while preserving existing values.
func (c *Config) Merge(override *ConfigOverride) {
	if override.LogLvl != nil {
		c.LogLvl = util.LevelFromVerbosity(*override.LogLvl)
	}
	if override.Debug != nil {
		c.Debug = *override.Debug
	}
	if override.FsName != nil {
		c.FsName = *override.FsName
	}
	if override.Name != nil {
		c.Name = *override.Name
	}
	if override.AttrTimeout != nil {
		c.AttrTimeout = *override.AttrTimeout
	}
	if override.EntryTimeout != nil {
		c.EntryTimeout = *override.EntryTimeout
	}
	if override.FileMode != nil {
		c.FileMode = *override.FileMode
	}
	if override.DirMode != nil {
		c.DirMode = *override.DirMode
	}
	if override.RamFSSize != nil {
		c.RamFSSize = *override.RamFSSize
	}
	if override.Mounts != nil {
		c.Mounts = slices.Clone(override.Mounts)
	}
}

// Validate checks the mount table and sizes.
func (c *Config) Validate() error {
	if _, err := parseSize(c.RamFSSize); err != nil {
		return fmt.Errorf("ramfs_size: %w", err)
	}
	return ValidateMounts(c.Mounts)
}

// LoadConfigOverrideFile loads configuration overrides from a file without merging.
// Supports YAML (.yaml, .yml), JSON (.json) and JSON with comments (.jsonc).
func LoadConfigOverrideFile(path string) (*ConfigOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var override ConfigOverride
	if err := Unmarshal(path, data, &override); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
	}
	return &override, nil
}

// Unmarshal decodes data into v by the format path's extension names.
func Unmarshal(path string, data []byte, v any) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, v)
	case ".json":
		return json.Unmarshal(data, v)
	case ".jsonc":
		return json.Unmarshal(jsonc.ToJSON(data), v)
	default:
		return fmt.Errorf("unknown config file extension: %s", path)
	}
}

// NewConfigFromFile creates a new Config by merging file overrides with defaults.
// This is a convenience function that combines NewConfig, LoadConfigOverrideFile, and Merge.
func NewConfigFromFile(path string) (*Config, error) {
	override, err := LoadConfigOverrideFile(path)
	if err != nil {
		return nil, err
	}
	return NewConfig(override), nil
}
