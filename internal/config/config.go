// Package config handles configuration loading and defaults.
package config

import (
	"fmt"
	"hash/fnv"
	"os"
	"strings"

	"homeworkcore/pkg/domain"

	"github.com/BurntSushi/toml"
)

// Default values.
const (
	DefaultStorageDriver = "sqlite"
	DefaultSQLitePath    = "homeworkcore.db"
	DefaultBlobDriver    = "fs"
	DefaultBlobRoot      = "./blobdata"
	DefaultLogLevel      = "info"
)

// accentPalette mirrors the card colors used by the checklist UI. A kid
// without an explicit accent gets a stable palette pick from a name hash.
var accentPalette = []string{
	"#7c3aed",
	"#0ea5e9",
	"#f59e0b",
	"#10b981",
	"#ef4444",
	"#ec4899",
}

// Kid describes a child on the roster.
type Kid struct {
	Name   string `toml:"name"`
	Accent string `toml:"accent"`
}

// TemplateEntry is one (subject, book) line of a template override.
type TemplateEntry struct {
	Subject string `toml:"subject"`
	Book    string `toml:"book"`
}

// Template overrides the built-in default template for one kid.
type Template struct {
	Kid   string          `toml:"kid"`
	Tasks []TemplateEntry `toml:"tasks"`
}

// Storage selects the document store backend.
type Storage struct {
	Driver      string `toml:"driver"`
	SQLitePath  string `toml:"sqlite_path"`
	PostgresDSN string `toml:"postgres_dsn"`
}

// Blob selects the archive artifact backend.
type Blob struct {
	Driver    string `toml:"driver"`
	FSRoot    string `toml:"fs_root"`
	S3Bucket  string `toml:"s3_bucket"`
	S3Region  string `toml:"s3_region"`
	S3URL     string `toml:"s3_endpoint"`
	PathStyle bool   `toml:"s3_path_style"`
}

// Config holds the full configuration for homeworkcore tools.
type Config struct {
	Kids      []Kid      `toml:"kids"`
	Templates []Template `toml:"templates"`
	Storage   Storage    `toml:"storage"`
	Blob      Blob       `toml:"blob"`

	LogLevel string `toml:"log_level"`
}

// Load reads the TOML config at path, applying defaults and environment
// overrides. An empty path loads defaults plus environment only; a missing
// explicit path is an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	setDefaults(cfg)

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	loadFromEnv(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// KidNames returns the roster names in file order.
func (c *Config) KidNames() []string {
	names := make([]string, 0, len(c.Kids))
	for _, kid := range c.Kids {
		names = append(names, kid.Name)
	}
	return names
}

// AccentFor returns the configured accent color for a kid, or a stable
// palette pick derived from the name when none is set.
func (c *Config) AccentFor(name string) string {
	for _, kid := range c.Kids {
		if strings.EqualFold(kid.Name, name) && kid.Accent != "" {
			return kid.Accent
		}
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToLower(strings.TrimSpace(name))))
	return accentPalette[int(h.Sum32())%len(accentPalette)]
}

// TemplateOverrides returns the configured per-kid template overrides keyed by
// kid name.
func (c *Config) TemplateOverrides() map[string]domain.Template {
	if len(c.Templates) == 0 {
		return nil
	}
	out := make(map[string]domain.Template, len(c.Templates))
	for _, tpl := range c.Templates {
		tasks := make([]domain.TemplateTask, 0, len(tpl.Tasks))
		for _, entry := range tpl.Tasks {
			tasks = append(tasks, domain.TemplateTask{Subject: entry.Subject, Book: entry.Book})
		}
		out[tpl.Kid] = domain.Template{KidName: tpl.Kid, Tasks: tasks}
	}
	return out
}

func setDefaults(cfg *Config) {
	cfg.Storage.Driver = DefaultStorageDriver
	cfg.Storage.SQLitePath = DefaultSQLitePath
	cfg.Blob.Driver = DefaultBlobDriver
	cfg.Blob.FSRoot = DefaultBlobRoot
	cfg.LogLevel = DefaultLogLevel
}

// loadFromEnv overrides config from environment variables. The variable
// names match the ones the storage and blob factories read directly, so a
// config file stays optional.
func loadFromEnv(cfg *Config) {
	if v := os.Getenv("HOMEWORKCORE_STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv("HOMEWORKCORE_SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("HOMEWORKCORE_POSTGRES_DSN"); v != "" {
		cfg.Storage.PostgresDSN = v
	}
	if v := os.Getenv("HOMEWORKCORE_BLOB_DRIVER"); v != "" {
		cfg.Blob.Driver = v
	}
	if v := os.Getenv("HOMEWORKCORE_BLOB_FS_ROOT"); v != "" {
		cfg.Blob.FSRoot = v
	}
	if v := os.Getenv("HOMEWORKCORE_BLOB_S3_BUCKET"); v != "" {
		cfg.Blob.S3Bucket = v
	}
	if v := os.Getenv("HOMEWORKCORE_BLOB_S3_REGION"); v != "" {
		cfg.Blob.S3Region = v
	}
	if v := os.Getenv("HOMEWORKCORE_BLOB_S3_ENDPOINT"); v != "" {
		cfg.Blob.S3URL = v
	}
	if v := os.Getenv("HOMEWORKCORE_BLOB_S3_PATH_STYLE"); v != "" {
		cfg.Blob.PathStyle = boolFromString(v)
	}
	if v := os.Getenv("HOMEWORKCORE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

func validate(cfg *Config) error {
	switch cfg.Storage.Driver {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
	switch cfg.Blob.Driver {
	case "fs", "s3", "memory":
	default:
		return fmt.Errorf("unknown blob driver %q", cfg.Blob.Driver)
	}
	seen := make(map[string]struct{}, len(cfg.Kids))
	for _, kid := range cfg.Kids {
		name := strings.TrimSpace(kid.Name)
		if name == "" {
			return fmt.Errorf("kid with empty name in roster")
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("duplicate kid %q in roster", name)
		}
		seen[key] = struct{}{}
	}
	for _, tpl := range cfg.Templates {
		if strings.TrimSpace(tpl.Kid) == "" {
			return fmt.Errorf("template override with empty kid name")
		}
		for _, entry := range tpl.Tasks {
			if strings.TrimSpace(entry.Subject) == "" || strings.TrimSpace(entry.Book) == "" {
				return fmt.Errorf("template override for %q has an entry with empty subject or book", tpl.Kid)
			}
		}
	}
	return nil
}

// boolFromString parses a boolean from a string.
func boolFromString(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "1" || s == "true" || s == "yes" || s == "on"
}
