// Package manifest handles heapsnap.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/chazu/heapsnap/heap"
	"github.com/chazu/heapsnap/snapshot"
)

// FileName is the name of the configuration file.
const FileName = "heapsnap.toml"

// Config represents a heapsnap.toml project configuration.
type Config struct {
	Project  Project        `toml:"project"`
	Snapshot SnapshotConfig `toml:"snapshot"`
	Store    StoreConfig    `toml:"store"`
	Server   ServerConfig   `toml:"server"`
	Log      LogConfig      `toml:"log"`

	// Dir is the directory containing the heapsnap.toml file (set at load
	// time). It is the working directory for a default configuration.
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name string `toml:"name"`
}

// SnapshotConfig tunes serialization and deserialization.
type SnapshotConfig struct {
	ScriptName     string `toml:"script-name"`
	MaxItemCount   int    `toml:"max-item-count"`
	MaxProperties  int    `toml:"max-properties"`
	MaxHeapObjects int    `toml:"max-heap-objects"` // 0 means unlimited
}

// StoreConfig configures the snapshot store.
type StoreConfig struct {
	Path  string `toml:"path"`
	Codec string `toml:"codec"`
}

// ServerConfig configures heapsnap serve.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Default returns the configuration used when no heapsnap.toml exists.
func Default() *Config {
	c := &Config{}
	if wd, err := os.Getwd(); err == nil {
		c.Dir = wd
	}
	c.applyDefaults()
	return c
}

// Load parses a heapsnap.toml file from the given directory.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var c Config
	md, err := toml.Decode(string(data), &c)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown key %s", path, undecoded[0])
	}

	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	c.applyDefaults()
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &c, nil
}

// FindAndLoad walks up from startDir to find a heapsnap.toml file,
// then loads and returns it. Returns nil if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

func (c *Config) applyDefaults() {
	if c.Project.Name == "" && c.Dir != "" {
		c.Project.Name = filepath.Base(c.Dir)
	}
	if c.Snapshot.ScriptName == "" {
		c.Snapshot.ScriptName = "snapshot.js"
	}
	if c.Snapshot.MaxItemCount == 0 {
		c.Snapshot.MaxItemCount = snapshot.MaxItemCount
	}
	if c.Snapshot.MaxProperties == 0 {
		c.Snapshot.MaxProperties = snapshot.MaxProperties
	}
	if c.Store.Path == "" {
		c.Store.Path = filepath.Join(".heapsnap", "store.db")
	}
	if !filepath.IsAbs(c.Store.Path) && c.Dir != "" {
		c.Store.Path = filepath.Join(c.Dir, c.Store.Path)
	}
	if c.Store.Codec == "" {
		c.Store.Codec = "zstd"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":7755"
	}
	if c.Log.File != "" && !filepath.IsAbs(c.Log.File) && c.Dir != "" {
		c.Log.File = filepath.Join(c.Dir, c.Log.File)
	}
}

func (c *Config) validate() error {
	s := c.Snapshot
	switch {
	case s.MaxItemCount < 0 || s.MaxItemCount > snapshot.MaxItemCount:
		return fmt.Errorf("snapshot.max-item-count must be between 1 and %d", snapshot.MaxItemCount)
	case s.MaxProperties < 0:
		return fmt.Errorf("snapshot.max-properties must be positive")
	case s.MaxHeapObjects < 0:
		return fmt.Errorf("snapshot.max-heap-objects must not be negative")
	}
	switch c.Store.Codec {
	case "zstd", "lz4", "none":
	default:
		return fmt.Errorf("store.codec %q is not one of zstd, lz4, none", c.Store.Codec)
	}
	return nil
}

// Options converts the snapshot section to serializer and deserializer
// options.
func (c *Config) Options() []snapshot.Option {
	return []snapshot.Option{
		snapshot.WithMaxItemCount(c.Snapshot.MaxItemCount),
		snapshot.WithMaxProperties(c.Snapshot.MaxProperties),
		snapshot.WithScriptName(c.Snapshot.ScriptName),
	}
}

// RealmOptions returns the options for realms that snapshots are loaded
// into.
func (c *Config) RealmOptions() []heap.Option {
	opts := []heap.Option{heap.WithMaxFastProperties(c.Snapshot.MaxProperties)}
	if c.Snapshot.MaxHeapObjects > 0 {
		opts = append(opts, heap.WithMaxObjects(c.Snapshot.MaxHeapObjects))
	}
	return opts
}

// NewRealm creates a realm configured by c.
func (c *Config) NewRealm() *heap.Realm {
	return heap.NewRealm(c.RealmOptions()...)
}
