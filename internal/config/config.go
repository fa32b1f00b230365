package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration for a processing run.
type Paths struct {
	// ProcessingDir is the root under which the ready/done/marc/...
	// subdirectories live.
	ProcessingDir string `toml:"processing_dir"`
	// InboxDir is where packaged submissions arrive before sweep.
	InboxDir string `toml:"inbox_dir"`
	// MappingsFile is the TOML mapping tables document.
	MappingsFile string `toml:"mappings_file"`
}

// Institution identifies the depositing institution in generated
// artifacts.
type Institution struct {
	Name  string `toml:"name"`
	Place string `toml:"place"`
}

// DOI contains identifier minting configuration.
type DOI struct {
	Prefix string `toml:"prefix"`
}

// Crossref contains the depositor identity block for the batch
// registration document.
type Crossref struct {
	DepositorName  string `toml:"depositor_name"`
	DepositorEmail string `toml:"depositor_email"`
	Registrant     string `toml:"registrant"`
}

// Catalog contains configuration for the post-import URL resolver.
type Catalog struct {
	BaseURL     string `toml:"base_url"`
	Token       string `toml:"token"`
	MaxAttempts int    `toml:"max_attempts"`
}

// Import contains repository import settings carried into the
// manifest.
type Import struct {
	CollectionID string `toml:"collection_id"`
	// SkipPackages lists package names excluded from processing before
	// any DOI allocation.
	SkipPackages []string `toml:"skip_packages"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for the depositor.
type Config struct {
	Paths       Paths       `toml:"paths"`
	Institution Institution `toml:"institution"`
	DOI         DOI         `toml:"doi"`
	Crossref    Crossref    `toml:"crossref"`
	Catalog     Catalog     `toml:"catalog"`
	Import      Import      `toml:"import"`
	Logging     Logging     `toml:"logging"`
}

// Subdirectories of the processing directory. Packages move between
// these as they advance through the run.
const (
	ReadySubdir       = "ready"
	DoneSubdir        = "done"
	MARCSubdir        = "marc"
	CrossrefSubdir    = "crossref"
	CSVReportSubdir   = "csv_report"
	FilesSubdir       = "files"
	NotCompleteSubdir = "not_complete"
	PostbackSubdir    = "postback_tmp"
	LogSubdir         = "log"
)

// DefaultConfigPath returns the absolute path to the default
// configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/etddepositor/config.toml")
}

// Load locates, parses, and validates a configuration file. The
// returned config has all path fields expanded and normalized. The
// bool reports whether a file existed at the resolved path.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("etddepositor.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// ReadyDir returns the directory holding packages awaiting processing.
func (c *Config) ReadyDir() string { return c.subdir(ReadySubdir) }

// DoneDir returns the directory completed packages are moved to.
func (c *Config) DoneDir() string { return c.subdir(DoneSubdir) }

// MARCDir returns the directory MARC records are written to.
func (c *Config) MARCDir() string { return c.subdir(MARCSubdir) }

// CrossrefDir returns the directory the Crossref batch is written to.
func (c *Config) CrossrefDir() string { return c.subdir(CrossrefSubdir) }

// CSVReportDir returns the directory the run report is written to.
func (c *Config) CSVReportDir() string { return c.subdir(CSVReportSubdir) }

// FilesDir returns the staging area for renamed package files.
func (c *Config) FilesDir() string { return c.subdir(FilesSubdir) }

// NotCompleteDir returns the directory failed packages are moved to.
func (c *Config) NotCompleteDir() string { return c.subdir(NotCompleteSubdir) }

// PostbackDir returns the directory postback files are written to.
func (c *Config) PostbackDir() string { return c.subdir(PostbackSubdir) }

// LogDir returns the directory run logs and the queue database live in.
func (c *Config) LogDir() string { return c.subdir(LogSubdir) }

func (c *Config) subdir(name string) string {
	return filepath.Join(c.Paths.ProcessingDir, name)
}

// EnsureDirectories creates the processing subdirectories required for
// a run.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{
		c.ReadyDir(), c.DoneDir(), c.MARCDir(), c.CrossrefDir(),
		c.CSVReportDir(), c.FilesDir(), c.NotCompleteDir(),
		c.PostbackDir(), c.LogDir(),
	} {
		if err := os.MkdirAll(dir, 0o775); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other
// packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified
// location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
