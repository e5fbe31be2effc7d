package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alnah/go-latex2img/internal/extract"
	"github.com/alnah/go-latex2img/internal/fileutil"
	"github.com/alnah/go-latex2img/internal/rewrite"
	"github.com/alnah/go-latex2img/internal/yamlutil"
)

// Sentinel errors for config operations.
var (
	ErrConfigNotFound  = errors.New("config file not found")
	ErrEmptyConfigName = errors.New("config name cannot be empty")
	ErrConfigParse     = errors.New("failed to parse config")
	ErrInvalidValue    = errors.New("invalid config value")
)

// Bounds for numeric and string settings.
const (
	MinDPI           = 50
	MaxDPI           = 2400
	DefaultDPI       = 300
	MinNameLength    = 8
	MaxNameLength    = 128
	DefaultMaxName   = 40
	MaxWorkers       = 16
	MaxPreambleBytes = 16 << 10
	MaxAltTextLength = 100
	MaxPrefixLength  = 32
	DefaultTimeout   = 30 * time.Second
	MaxTimeout       = 10 * time.Minute
)

// Default names used when the config leaves them empty.
const (
	DefaultAssetsDir = "assets"
	DefaultPrefix    = "latex_"
	DefaultAltText   = "LaTeX Image"
	DefaultCompiler  = "latex"
	DefaultConverter = "dvipng"
)

// DefaultExtensions are the document extensions scanned when none are configured.
var DefaultExtensions = []string{".md", ".markdown"}

// appName is the directory searched under the user config dir.
const appName = "latex2img"

// Config holds all configuration for a render run.
type Config struct {
	Input    InputConfig   `yaml:"input"`
	Assets   AssetsConfig  `yaml:"assets"`
	Grammars []string      `yaml:"grammars"` // display, escaped-bracket, bracket
	Render   RenderConfig  `yaml:"render"`
	Rewrite  RewriteConfig `yaml:"rewrite"`
	Workers  int           `yaml:"workers"` // 0 = auto
}

// InputConfig defines document discovery options.
type InputConfig struct {
	Root       string   `yaml:"root"`       // Default input path (empty = must specify)
	Extensions []string `yaml:"extensions"` // Document extensions (default: .md, .markdown)
}

// AssetsConfig defines where and how images are named.
type AssetsConfig struct {
	Dir           string `yaml:"dir"`           // Relative to the input root (default: assets)
	Prefix        string `yaml:"prefix"`        // Filename prefix (default: latex_)
	MaxNameLength int    `yaml:"maxNameLength"` // Sanitized content length in names
}

// RenderConfig defines the external TeX toolchain.
type RenderConfig struct {
	Compiler  string `yaml:"compiler"`  // Stage 1 binary (default: latex)
	Converter string `yaml:"converter"` // Stage 2 binary (default: dvipng)
	DPI       int    `yaml:"dpi"`       // Raster resolution
	Timeout   string `yaml:"timeout"`   // Per-invocation limit, e.g. "30s"
	Preamble  string `yaml:"preamble"`  // Extra \usepackage lines etc.
	Force     bool   `yaml:"force"`     // Re-render even if the image exists
}

// RewriteConfig defines how documents are rewritten.
type RewriteConfig struct {
	AltText     string `yaml:"altText"`     // Image alt text
	Provenance  bool   `yaml:"provenance"`  // Append fenced LaTeX source after the image
	Policy      string `yaml:"policy"`      // "all" or "first"
	HTMLPreview bool   `yaml:"htmlPreview"` // Write <doc>.html next to each rewritten doc
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Input: InputConfig{
			Extensions: append([]string(nil), DefaultExtensions...),
		},
		Assets: AssetsConfig{
			Dir:           DefaultAssetsDir,
			Prefix:        DefaultPrefix,
			MaxNameLength: DefaultMaxName,
		},
		Grammars: extract.DefaultSet().Names(),
		Render: RenderConfig{
			Compiler:  DefaultCompiler,
			Converter: DefaultConverter,
			DPI:       DefaultDPI,
			Timeout:   DefaultTimeout.String(),
		},
		Rewrite: RewriteConfig{
			AltText:    DefaultAltText,
			Provenance: true,
			Policy:     string(rewrite.PolicyAll),
		},
	}
}

// Validate checks ranges and enumerations.
// Called automatically by LoadConfig, but available for callers that build
// or mutate a Config (the CLI merges flags and env vars after loading).
func (c *Config) Validate() error {
	for _, ext := range c.Input.Extensions {
		if err := fileutil.ValidateExtension(ext); err != nil {
			return fmt.Errorf("%w: input.extensions: %q: %v", ErrInvalidValue, ext, err)
		}
	}

	if c.Assets.Dir == "" {
		return fmt.Errorf("%w: assets.dir: must not be empty", ErrInvalidValue)
	}
	if cleaned := filepath.ToSlash(filepath.Clean(c.Assets.Dir)); filepath.IsAbs(c.Assets.Dir) || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return fmt.Errorf("%w: assets.dir: %q must be relative to the input root", ErrInvalidValue, c.Assets.Dir)
	}
	if len(c.Assets.Prefix) > MaxPrefixLength {
		return fmt.Errorf("%w: assets.prefix: %d chars, max %d", ErrInvalidValue, len(c.Assets.Prefix), MaxPrefixLength)
	}
	if strings.ContainsAny(c.Assets.Prefix, "/\\\x00") {
		return fmt.Errorf("%w: assets.prefix: %q contains a path separator", ErrInvalidValue, c.Assets.Prefix)
	}
	if c.Assets.MaxNameLength < MinNameLength || c.Assets.MaxNameLength > MaxNameLength {
		return fmt.Errorf("%w: assets.maxNameLength: must be between %d and %d, got %d",
			ErrInvalidValue, MinNameLength, MaxNameLength, c.Assets.MaxNameLength)
	}

	if _, err := extract.ParseGrammars(c.Grammars); err != nil {
		return fmt.Errorf("%w: grammars: %v", ErrInvalidValue, err)
	}

	if c.Render.Compiler == "" || c.Render.Converter == "" {
		return fmt.Errorf("%w: render.compiler and render.converter are required", ErrInvalidValue)
	}
	if c.Render.DPI < MinDPI || c.Render.DPI > MaxDPI {
		return fmt.Errorf("%w: render.dpi: must be between %d and %d, got %d", ErrInvalidValue, MinDPI, MaxDPI, c.Render.DPI)
	}
	if _, err := c.RenderTimeout(); err != nil {
		return err
	}
	if len(c.Render.Preamble) > MaxPreambleBytes {
		return fmt.Errorf("%w: render.preamble: %d bytes, max %d", ErrInvalidValue, len(c.Render.Preamble), MaxPreambleBytes)
	}

	if len(c.Rewrite.AltText) > MaxAltTextLength {
		return fmt.Errorf("%w: rewrite.altText: %d chars, max %d", ErrInvalidValue, len(c.Rewrite.AltText), MaxAltTextLength)
	}
	if strings.ContainsAny(c.Rewrite.AltText, "[]\n") {
		return fmt.Errorf("%w: rewrite.altText: %q must not contain brackets or newlines", ErrInvalidValue, c.Rewrite.AltText)
	}
	if _, err := rewrite.ParsePolicy(c.Rewrite.Policy); err != nil {
		return fmt.Errorf("%w: rewrite.policy: %v", ErrInvalidValue, err)
	}

	if c.Workers < 0 || c.Workers > MaxWorkers {
		return fmt.Errorf("%w: workers: must be between 0 and %d, got %d", ErrInvalidValue, MaxWorkers, c.Workers)
	}
	return nil
}

// RenderTimeout parses Render.Timeout. An empty value yields DefaultTimeout.
func (c *Config) RenderTimeout() (time.Duration, error) {
	if c.Render.Timeout == "" {
		return DefaultTimeout, nil
	}
	d, err := time.ParseDuration(c.Render.Timeout)
	if err != nil {
		return 0, fmt.Errorf("%w: render.timeout: %v", ErrInvalidValue, err)
	}
	if d <= 0 || d > MaxTimeout {
		return 0, fmt.Errorf("%w: render.timeout: must be between 0 and %v, got %v", ErrInvalidValue, MaxTimeout, d)
	}
	return d, nil
}

// LoadConfig loads configuration from a file path or config name.
// If nameOrPath contains a path separator, it's treated as a file path.
// Otherwise, it's treated as a config name and searched in standard locations.
// Keys absent from the file keep their DefaultConfig values.
// Returns error if the file is not found (no silent fallback).
func LoadConfig(nameOrPath string) (*Config, error) {
	if nameOrPath == "" {
		return nil, ErrEmptyConfigName
	}

	var configPath string
	var err error

	if fileutil.IsFilePath(nameOrPath) {
		configPath = nameOrPath
	} else {
		configPath, err = resolveConfigPath(nameOrPath)
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- config path is user-provided
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, configPath)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yamlutil.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigParse, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Dump renders the configuration as YAML.
func (c *Config) Dump() ([]byte, error) {
	return yamlutil.Marshal(c)
}

// resolveConfigPath searches for a config file by name in standard locations.
// Tries extensions in order: .yaml, .yml
// Tries locations in order: current directory, <user config dir>/latex2img/
func resolveConfigPath(name string) (string, error) {
	extensions := []string{".yaml", ".yml"}
	triedPaths := make([]string, 0, len(extensions)*2) // 2 locations

	for _, ext := range extensions {
		localPath := name + ext
		if fileutil.FileExists(localPath) {
			return localPath, nil
		}
		triedPaths = append(triedPaths, localPath)
	}

	userConfigDir, err := os.UserConfigDir()
	if err == nil {
		for _, ext := range extensions {
			userPath := filepath.Join(userConfigDir, appName, name+ext)
			if fileutil.FileExists(userPath) {
				return userPath, nil
			}
			triedPaths = append(triedPaths, userPath)
		}
	}

	return "", fmt.Errorf("%w: tried %s", ErrConfigNotFound, strings.Join(triedPaths, ", "))
}
