package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/alnah/go-latex2img/internal/config"
	"github.com/alnah/go-latex2img/internal/hints"
	"github.com/alnah/go-latex2img/internal/render"
)

// kpsewhichTool locates TeX package files.
const kpsewhichTool = "kpsewhich"

// requiredTeXFiles are the class and packages every formula document loads,
// with the TeX Live package that ships each.
var requiredTeXFiles = []struct {
	file string
	pkg  string
}{
	{"standalone.cls", "standalone"},
	{"amsmath.sty", "amsmath"},
	{"amssymb.sty", "amsfonts"},
}

// doctorTimeout bounds the whole doctor run.
const doctorTimeout = 30 * time.Second

// doctorResult holds all diagnostic information.
type doctorResult struct {
	Status   string              `json:"status"` // "ready", "warnings", "errors"
	Tools    []render.ToolStatus `json:"tools"`
	Packages []packageInfo       `json:"packages,omitempty"`
	Env      envInfo             `json:"environment"`
	System   systemInfo          `json:"system"`
	Warnings []string            `json:"warnings,omitempty"`
	Errors   []string            `json:"errors,omitempty"`
}

// packageInfo holds the location of one TeX class or package.
type packageInfo struct {
	Name  string `json:"name"`
	Path  string `json:"path,omitempty"`
	Found bool   `json:"found"`
}

// envInfo holds environment detection results.
type envInfo struct {
	OS            string `json:"os"`
	Arch          string `json:"arch"`
	Container     bool   `json:"container"`
	ContainerHint string `json:"container_hint,omitempty"`
	CI            bool   `json:"ci"`
	GOMAXPROCS    int    `json:"gomaxprocs"`
}

// systemInfo holds system check results.
type systemInfo struct {
	TempDir      string `json:"temp_dir"`
	TempWritable bool   `json:"temp_writable"`
}

// runDoctorCmd executes the doctor command and returns an exit code.
// Exit codes: 0 = OK (including warnings), 1 = errors found, 2 = bad flags or config.
func runDoctorCmd(args []string, env *Environment) int {
	flags, err := parseDoctorFlags(args, env.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ExitSuccess
		}
		fmt.Fprintf(env.Stderr, "error: %v\n", err)
		return ExitUsage
	}

	envCfg := loadEnvConfig(os.Getenv)
	cfg, err := resolveConfig(flags.config, envCfg, env.Config)
	if err != nil {
		fmt.Fprintf(env.Stderr, "error: %v%s\n", err, hintFor(err, flags.config, nil))
		return exitCodeFor(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), doctorTimeout)
	defer cancel()

	result := runDoctor(ctx, cfg, env.runner(), envCfg, os.Getenv)

	if flags.json {
		enc := json.NewEncoder(env.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(result)
	} else {
		printDoctorResult(env.Stdout, result)
	}

	if result.Status == "errors" {
		return ExitGeneral
	}
	return ExitSuccess
}

// runDoctor performs all diagnostic checks.
func runDoctor(ctx context.Context, cfg *config.Config, runner render.CommandRunner, envCfg *envConfig, getenv func(string) string) *doctorResult {
	result := &doctorResult{
		Status: "ready",
		Env: envInfo{
			OS:         runtime.GOOS,
			Arch:       runtime.GOARCH,
			GOMAXPROCS: runtime.GOMAXPROCS(0),
		},
	}

	checkTools(ctx, result, cfg, runner)
	checkPackages(ctx, result, runner)
	checkEnvironment(result, envCfg, getenv)
	checkSystem(result)

	// Determine final status
	if len(result.Errors) > 0 {
		result.Status = "errors"
	} else if len(result.Warnings) > 0 {
		result.Status = "warnings"
	}

	return result
}

// checkTools locates the compiler and converter and reads their versions.
func checkTools(ctx context.Context, result *doctorResult, cfg *config.Config, runner render.CommandRunner) {
	tex := render.NewTeX(
		render.WithRunner(runner),
		render.WithCompiler(cfg.Render.Compiler),
		render.WithConverter(cfg.Render.Converter),
	)

	result.Tools = tex.Check(ctx)
	for _, s := range result.Tools {
		if s.OK() {
			continue
		}
		if errors.Is(s.Err, render.ErrToolNotFound) {
			result.Errors = append(result.Errors,
				fmt.Sprintf("%s (%s) not found on PATH%s", s.Name, s.Role, hints.ForToolNotFound(s.Name)))
			continue
		}
		result.Errors = append(result.Errors, s.Error)
	}
}

// checkPackages asks kpsewhich for the TeX files the formula template needs.
// A TeX installation without kpsewhich only earns a warning.
func checkPackages(ctx context.Context, result *doctorResult, runner render.CommandRunner) {
	path, err := runner.LookPath(kpsewhichTool)
	if err != nil {
		result.Warnings = append(result.Warnings,
			"kpsewhich not found; cannot verify standalone, amsmath and amsfonts are installed")
		return
	}

	for _, req := range requiredTeXFiles {
		info := packageInfo{Name: req.file}
		stdout, _, err := runner.Run(ctx, "", path, req.file)
		if p := strings.TrimSpace(stdout); err == nil && p != "" {
			info.Path = p
			info.Found = true
		} else {
			result.Errors = append(result.Errors,
				fmt.Sprintf("TeX file %s not installed (tlmgr install %s)", req.file, req.pkg))
		}
		result.Packages = append(result.Packages, info)
	}
}

// checkEnvironment detects container and CI environments.
func checkEnvironment(result *doctorResult, envCfg *envConfig, getenv func(string) string) {
	// Detect container (multi-signal approach)
	result.Env.Container, result.Env.ContainerHint = isContainer(envCfg, getenv)

	// Detect CI environments
	ciVars := []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "CIRCLECI"}
	for _, v := range ciVars {
		if getenv(v) != "" {
			result.Env.CI = true
			break
		}
	}
}

// isContainer detects if running in a container environment.
// Returns (isContainer, hint) where hint indicates which signal was detected.
func isContainer(envCfg *envConfig, getenv func(string) string) (bool, string) {
	// Explicit override (highest priority)
	if envCfg.Container == "1" {
		return true, "LATEX2IMG_CONTAINER=1"
	}
	// Docker
	if hints.IsInContainer() {
		return true, "/.dockerenv"
	}
	// Podman / systemd-nspawn / general container indicator
	if v := getenv("container"); v != "" {
		return true, "container=" + v
	}
	// Kubernetes
	if getenv("KUBERNETES_SERVICE_HOST") != "" {
		return true, "KUBERNETES_SERVICE_HOST"
	}
	return false, ""
}

// checkSystem verifies the scratch space every render needs.
func checkSystem(result *doctorResult) {
	tmpDir := os.TempDir()
	result.System.TempDir = tmpDir

	f, err := os.CreateTemp(tmpDir, "latex2img-doctor-*")
	if err != nil {
		result.Errors = append(result.Errors,
			fmt.Sprintf("Temp directory not writable: %s", tmpDir))
		return
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	result.System.TempWritable = true
}

// printDoctorResult outputs human-readable diagnostic results.
func printDoctorResult(w io.Writer, r *doctorResult) {
	fmt.Fprintln(w, "latex2img doctor")
	fmt.Fprintln(w)

	// Toolchain section
	fmt.Fprintln(w, "TeX toolchain")
	for _, s := range r.Tools {
		if !s.OK() {
			fmt.Fprintf(w, "  [ERROR] %s (%s): %s\n", s.Name, s.Role, s.Error)
			continue
		}
		fmt.Fprintf(w, "  [OK] %s (%s) at %s\n", s.Name, s.Role, s.Path)
		if s.Version != "" {
			fmt.Fprintf(w, "  [OK] Version: %s\n", s.Version)
		}
	}
	for _, p := range r.Packages {
		if p.Found {
			fmt.Fprintf(w, "  [OK] %s\n", p.Name)
		} else {
			fmt.Fprintf(w, "  [ERROR] %s: not installed\n", p.Name)
		}
	}
	fmt.Fprintln(w)

	// Environment section
	fmt.Fprintln(w, "Environment")
	fmt.Fprintf(w, "  [OK] Platform: %s/%s\n", r.Env.OS, r.Env.Arch)
	fmt.Fprintf(w, "  [OK] GOMAXPROCS: %d\n", r.Env.GOMAXPROCS)
	if r.Env.Container {
		fmt.Fprintf(w, "  [OK] Container: detected (%s)\n", r.Env.ContainerHint)
	}
	if r.Env.CI {
		fmt.Fprintln(w, "  [OK] CI: detected")
	}
	fmt.Fprintln(w)

	// System section
	fmt.Fprintln(w, "System")
	if r.System.TempWritable {
		fmt.Fprintln(w, "  [OK] Temp directory: writable")
	} else {
		fmt.Fprintln(w, "  [ERROR] Temp directory: not writable")
	}
	fmt.Fprintln(w)

	// Warnings
	if len(r.Warnings) > 0 {
		fmt.Fprintln(w, "Warnings:")
		for _, warn := range r.Warnings {
			fmt.Fprintf(w, "  [WARN] %s\n", warn)
		}
		fmt.Fprintln(w)
	}

	// Errors
	if len(r.Errors) > 0 {
		fmt.Fprintln(w, "Errors:")
		for _, err := range r.Errors {
			fmt.Fprintf(w, "  [ERROR] %s\n", err)
		}
		fmt.Fprintln(w)
	}

	// Final status
	switch r.Status {
	case "ready":
		fmt.Fprintln(w, "Status: Ready to render")
	case "warnings":
		fmt.Fprintln(w, "Status: Ready with warnings")
	case "errors":
		fmt.Fprintln(w, "Status: Not ready (see errors above)")
	}
}
