package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	flag "github.com/spf13/pflag"

	"github.com/alnah/go-latex2img/internal/config"
	"github.com/alnah/go-latex2img/internal/fileutil"
)

// resolveConfig loads the config named by the flag, or by LATEX2IMG_CONFIG,
// and applies environment overrides. Without a name it starts from base.
func resolveConfig(flagName string, envCfg *envConfig, base *config.Config) (*config.Config, error) {
	name := flagName
	if name == "" {
		name = envCfg.ConfigPath
	}

	var cfg *config.Config
	if name != "" {
		loaded, err := config.LoadConfig(name)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	} else {
		if base == nil {
			base = config.DefaultConfig()
		}
		c := *base
		cfg = &c
	}

	if err := applyEnvConfig(envCfg, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// configSearchPaths lists the user-level files a config name resolves to.
func configSearchPaths(name string) []string {
	if name == "" || fileutil.IsFilePath(name) {
		return nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return nil
	}
	return []string{filepath.Join(dir, "latex2img", name+".yaml")}
}

// runConfigCmd prints the effective configuration as YAML.
func runConfigCmd(args []string, env *Environment) int {
	flags, err := parseConfigFlags(args, env.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ExitSuccess
		}
		fmt.Fprintf(env.Stderr, "error: %v\n", err)
		return ExitUsage
	}

	envCfg := loadEnvConfig(os.Getenv)
	cfg, err := resolveConfig(flags.common.config, envCfg, env.Config)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(env.Stderr, "error: %v%s\n", err, hintFor(err, flags.common.config, nil))
		return exitCodeFor(err)
	}

	data, err := cfg.Dump()
	if err != nil {
		fmt.Fprintf(env.Stderr, "error: %v\n", err)
		return ExitGeneral
	}
	_, _ = env.Stdout.Write(data)
	return ExitSuccess
}
