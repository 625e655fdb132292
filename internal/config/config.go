package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/searchsync/internal/monitor"
)

// File names looked up in the working directory, in order.
var fileNames = []string{"searchsync.yaml", "searchsync.yml"}

// Config represents the complete searchsync configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Monitoring MonitoringConfig `yaml:"monitoring" json:"monitoring"`
	Storage    StorageConfig    `yaml:"storage" json:"storage"`
	Worker     WorkerConfig     `yaml:"worker" json:"worker"`
	EventQueue EventQueueConfig `yaml:"event_queue" json:"event_queue"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
	Sites      []SiteConfig     `yaml:"sites" json:"sites"`

	// path is the file the configuration was loaded from, empty for defaults.
	path string
}

// MonitoringConfig selects how change events are handled.
type MonitoringConfig struct {
	// Type is one of immediate, delayed or disabled.
	Type string `yaml:"type" json:"type"`
}

// StorageConfig locates the databases. Relative paths resolve against DataDir.
type StorageConfig struct {
	DataDir   string `yaml:"data_dir" json:"data_dir"`
	QueueDB   string `yaml:"queue_db" json:"queue_db"`
	EventDB   string `yaml:"event_db" json:"event_db"`
	ContentDB string `yaml:"content_db" json:"content_db"`
	// IndexPath is the bleve index directory. Empty keeps the index in memory.
	IndexPath string `yaml:"index_path" json:"index_path"`
}

// WorkerConfig configures the index queue worker.
type WorkerConfig struct {
	Limit              int     `yaml:"limit" json:"limit"`
	IndexTimeout       string  `yaml:"index_timeout" json:"index_timeout"`
	Interval           string  `yaml:"interval" json:"interval"`
	GarbageProbability float64 `yaml:"garbage_probability" json:"garbage_probability"`
	Concurrency        int     `yaml:"concurrency" json:"concurrency"`
	LockDir            string  `yaml:"lock_dir" json:"lock_dir"`
}

// EventQueueConfig configures the deferred event drain.
type EventQueueConfig struct {
	Limit int `yaml:"limit" json:"limit"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	FilePath  string `yaml:"file_path" json:"file_path"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
	Stderr    bool   `yaml:"stderr" json:"stderr"`
}

// SiteConfig describes one root site.
type SiteConfig struct {
	RootPageID     int                   `yaml:"root_page_id" json:"root_page_id"`
	Domain         string                `yaml:"domain" json:"domain"`
	Scheme         string                `yaml:"scheme" json:"scheme"`
	Configurations []IndexingConfigEntry `yaml:"configurations" json:"configurations"`
}

// IndexingConfigEntry maps a content table to document building rules.
type IndexingConfigEntry struct {
	Name    string `yaml:"name" json:"name"`
	Table   string `yaml:"table" json:"table"`
	Indexer string `yaml:"indexer" json:"indexer"`
	// Fields maps document field names to record columns.
	Fields map[string]string `yaml:"fields" json:"fields"`
	// Doktypes restricts page configurations to these page types.
	Doktypes []int `yaml:"doktypes" json:"doktypes"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Monitoring: MonitoringConfig{
			Type: monitor.Immediate.String(),
		},
		Storage: StorageConfig{
			DataDir:   defaultDataDir(),
			QueueDB:   "queue.db",
			EventDB:   "events.db",
			ContentDB: "content.db",
			IndexPath: "index.bleve",
		},
		Worker: WorkerConfig{
			Limit:              50,
			IndexTimeout:       "30s",
			Interval:           "1m",
			GarbageProbability: 0.01,
			Concurrency:        2,
		},
		EventQueue: EventQueueConfig{
			Limit: 100,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// defaultDataDir returns ~/.searchsync/data.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".searchsync", "data")
	}
	return filepath.Join(home, ".searchsync", "data")
}

// Load loads configuration from the specified directory.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. searchsync.yaml (or .yml) in dir
//  3. Environment variables (SEARCHSYNC_*)
func Load(dir string) (*Config, error) {
	for _, name := range fileNames {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return LoadFile(p)
		}
	}
	return finish(NewConfig())
}

// LoadFile loads configuration from an explicit file path.
func LoadFile(path string) (*Config, error) {
	cfg := NewConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, err
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadYAML decodes a file over the current values. Keys absent from the
// file keep their defaults.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.path = path
	return nil
}

// Path returns the file the configuration was loaded from.
func (c *Config) Path() string { return c.path }

// applyEnvOverrides applies SEARCHSYNC_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SEARCHSYNC_MONITORING_TYPE"); v != "" {
		c.Monitoring.Type = v
	}
	if v := os.Getenv("SEARCHSYNC_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("SEARCHSYNC_INDEX_PATH"); v != "" {
		c.Storage.IndexPath = v
	}
	if v := os.Getenv("SEARCHSYNC_WORKER_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Worker.Limit = n
		}
	}
	if v := os.Getenv("SEARCHSYNC_WORKER_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Worker.Concurrency = n
		}
	}
	if v := os.Getenv("SEARCHSYNC_GARBAGE_PROBABILITY"); v != "" {
		if p, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && p >= 0 && p <= 1 {
			c.Worker.GarbageProbability = p
		}
	}
	if v := os.Getenv("SEARCHSYNC_EVENT_QUEUE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.EventQueue.Limit = n
		}
	}
	if v := os.Getenv("SEARCHSYNC_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if _, err := monitor.ParseType(c.Monitoring.Type); err != nil {
		return fmt.Errorf("monitoring.type: %w", err)
	}

	if c.Worker.Limit <= 0 {
		return fmt.Errorf("worker.limit must be positive, got %d", c.Worker.Limit)
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker.concurrency must be positive, got %d", c.Worker.Concurrency)
	}
	if c.Worker.GarbageProbability < 0 || c.Worker.GarbageProbability > 1 {
		return fmt.Errorf("worker.garbage_probability must be between 0 and 1, got %f", c.Worker.GarbageProbability)
	}
	if _, err := parseDuration("worker.index_timeout", c.Worker.IndexTimeout); err != nil {
		return err
	}
	if _, err := parseDuration("worker.interval", c.Worker.Interval); err != nil {
		return err
	}
	if c.EventQueue.Limit <= 0 {
		return fmt.Errorf("event_queue.limit must be positive, got %d", c.EventQueue.Limit)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	roots := make(map[int]bool, len(c.Sites))
	for i, s := range c.Sites {
		if s.RootPageID <= 0 {
			return fmt.Errorf("sites[%d].root_page_id must be positive, got %d", i, s.RootPageID)
		}
		if roots[s.RootPageID] {
			return fmt.Errorf("sites[%d]: duplicate root_page_id %d", i, s.RootPageID)
		}
		roots[s.RootPageID] = true
		if s.Domain == "" {
			return fmt.Errorf("sites[%d].domain is required", i)
		}

		names := make(map[string]bool, len(s.Configurations))
		for j, ic := range s.Configurations {
			if ic.Name == "" {
				return fmt.Errorf("sites[%d].configurations[%d].name is required", i, j)
			}
			if names[ic.Name] {
				return fmt.Errorf("sites[%d]: duplicate configuration %q", i, ic.Name)
			}
			names[ic.Name] = true
			if ic.Table == "" {
				return fmt.Errorf("sites[%d].configurations[%d].table is required", i, j)
			}
		}
	}
	return nil
}

func parseDuration(field, v string) (time.Duration, error) {
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", field, v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", field, v)
	}
	return d, nil
}

// MonitoringType returns the parsed monitoring type. Validate guarantees it parses.
func (c *Config) MonitoringType() monitor.Type {
	t, _ := monitor.ParseType(c.Monitoring.Type)
	return t
}

// IndexTimeout returns the per-item indexing timeout.
func (c *Config) IndexTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Worker.IndexTimeout)
	return d
}

// Interval returns the daemon tick interval.
func (c *Config) Interval() time.Duration {
	d, _ := time.ParseDuration(c.Worker.Interval)
	return d
}

// resolve joins p onto the data dir unless it is absolute or empty.
func (c *Config) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Storage.DataDir, p)
}

// QueueDBPath returns the index queue database path.
func (c *Config) QueueDBPath() string { return c.resolve(c.Storage.QueueDB) }

// EventDBPath returns the event queue database path.
func (c *Config) EventDBPath() string { return c.resolve(c.Storage.EventDB) }

// ContentDBPath returns the content snapshot database path.
func (c *Config) ContentDBPath() string { return c.resolve(c.Storage.ContentDB) }

// IndexPath returns the search index path, empty for an in-memory index.
func (c *Config) IndexPath() string { return c.resolve(c.Storage.IndexPath) }

// LockDir returns the directory holding per-site worker locks.
func (c *Config) LockDir() string {
	if c.Worker.LockDir != "" {
		return c.resolve(c.Worker.LockDir)
	}
	return filepath.Join(c.Storage.DataDir, "locks")
}

// IndexerNames returns every indexer name referenced by a site configuration.
func (c *Config) IndexerNames() []string {
	var names []string
	for _, s := range c.Sites {
		for _, ic := range s.Configurations {
			if ic.Indexer != "" {
				names = append(names, ic.Indexer)
			}
		}
	}
	return names
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
