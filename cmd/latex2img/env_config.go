package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/alnah/go-latex2img/internal/config"
)

// envPrefix marks the variables this program reads.
const envPrefix = "LATEX2IMG_"

// envConfig holds configuration from environment variables.
// Provides CI/CD-friendly overrides without requiring YAML files.
// Numbers stay strings until applyEnvConfig so a bad value is reported, not dropped.
type envConfig struct {
	// Tier 1 - Essential
	ConfigPath string // LATEX2IMG_CONFIG: config file name or path
	InputDir   string // LATEX2IMG_INPUT_DIR: default input path
	AssetsDir  string // LATEX2IMG_ASSETS_DIR: image directory
	Timeout    string // LATEX2IMG_TIMEOUT: per-formula timeout

	// Tier 2 - Toolchain
	Compiler  string // LATEX2IMG_COMPILER: latex binary
	Converter string // LATEX2IMG_CONVERTER: dvipng binary
	DPI       string // LATEX2IMG_DPI: image resolution

	// Tier 3 - Extended
	Grammars   string // LATEX2IMG_GRAMMARS: comma-separated grammar names
	Extensions string // LATEX2IMG_EXTENSIONS: comma-separated extensions
	Policy     string // LATEX2IMG_POLICY: all, first
	Workers    string // LATEX2IMG_WORKERS: parallel workers
	LogFile    string // LATEX2IMG_LOG_FILE: debug log file
	Container  string // LATEX2IMG_CONTAINER: "1" forces container detection
}

// knownEnvVars lists valid LATEX2IMG_* environment variables.
// Used to detect typos and warn users about unknown variables.
var knownEnvVars = map[string]bool{
	// Tier 1 - Essential
	"LATEX2IMG_CONFIG":     true,
	"LATEX2IMG_INPUT_DIR":  true,
	"LATEX2IMG_ASSETS_DIR": true,
	"LATEX2IMG_TIMEOUT":    true,
	// Tier 2 - Toolchain
	"LATEX2IMG_COMPILER":  true,
	"LATEX2IMG_CONVERTER": true,
	"LATEX2IMG_DPI":       true,
	// Tier 3 - Extended
	"LATEX2IMG_GRAMMARS":   true,
	"LATEX2IMG_EXTENSIONS": true,
	"LATEX2IMG_POLICY":     true,
	"LATEX2IMG_WORKERS":    true,
	"LATEX2IMG_LOG_FILE":   true,
	"LATEX2IMG_CONTAINER":  true,
}

// loadEnvConfig reads configuration through getenv, usually os.Getenv.
func loadEnvConfig(getenv func(string) string) *envConfig {
	return &envConfig{
		ConfigPath: getenv("LATEX2IMG_CONFIG"),
		InputDir:   getenv("LATEX2IMG_INPUT_DIR"),
		AssetsDir:  getenv("LATEX2IMG_ASSETS_DIR"),
		Timeout:    getenv("LATEX2IMG_TIMEOUT"),
		Compiler:   getenv("LATEX2IMG_COMPILER"),
		Converter:  getenv("LATEX2IMG_CONVERTER"),
		DPI:        getenv("LATEX2IMG_DPI"),
		Grammars:   getenv("LATEX2IMG_GRAMMARS"),
		Extensions: getenv("LATEX2IMG_EXTENSIONS"),
		Policy:     getenv("LATEX2IMG_POLICY"),
		Workers:    getenv("LATEX2IMG_WORKERS"),
		LogFile:    getenv("LATEX2IMG_LOG_FILE"),
		Container:  getenv("LATEX2IMG_CONTAINER"),
	}
}

// warnUnknownEnvVars logs warnings for unrecognized LATEX2IMG_* variables.
// Helps catch typos like LATEX2IMG_DPIS instead of LATEX2IMG_DPI.
func warnUnknownEnvVars(w io.Writer, environ []string) {
	for _, env := range environ {
		if strings.HasPrefix(env, envPrefix) {
			name := strings.SplitN(env, "=", 2)[0]
			if !knownEnvVars[name] {
				fmt.Fprintf(w, "warning: unknown environment variable %s (typo?)\n", name)
			}
		}
	}
}

// applyEnvConfig overrides config values with set environment variables.
// This ensures: CLI flags > env vars > config file > defaults
// (CLI flags are applied later via mergeFlags)
func applyEnvConfig(env *envConfig, cfg *config.Config) error {
	// Tier 1
	if env.InputDir != "" {
		cfg.Input.Root = env.InputDir
	}
	if env.AssetsDir != "" {
		cfg.Assets.Dir = env.AssetsDir
	}
	if env.Timeout != "" {
		cfg.Render.Timeout = env.Timeout
	}

	// Tier 2
	if env.Compiler != "" {
		cfg.Render.Compiler = env.Compiler
	}
	if env.Converter != "" {
		cfg.Render.Converter = env.Converter
	}
	if env.DPI != "" {
		dpi, err := strconv.Atoi(env.DPI)
		if err != nil {
			return fmt.Errorf("%w: LATEX2IMG_DPI=%q is not a number", config.ErrInvalidValue, env.DPI)
		}
		cfg.Render.DPI = dpi
	}

	// Tier 3
	if env.Grammars != "" {
		cfg.Grammars = splitList(env.Grammars)
	}
	if env.Extensions != "" {
		cfg.Input.Extensions = splitList(env.Extensions)
	}
	if env.Policy != "" {
		cfg.Rewrite.Policy = env.Policy
	}
	if env.Workers != "" {
		w, err := strconv.Atoi(env.Workers)
		if err != nil {
			return fmt.Errorf("%w: LATEX2IMG_WORKERS=%q is not a number", config.ErrInvalidValue, env.Workers)
		}
		cfg.Workers = w
	}

	return nil
}

// splitList splits a comma-separated value, dropping empty items.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
