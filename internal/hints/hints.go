// Package hints provides actionable error hints for common failure scenarios.
// Hints are formatted consistently as "\n  hint: <text>" for appending to error messages.
package hints

import (
	"runtime"
	"strings"

	"github.com/alnah/go-latex2img/internal/fileutil"
)

// IsInContainer detects if running inside a Docker container or similar.
// Checks for /.dockerenv file which Docker creates automatically.
var IsInContainer = func() bool {
	return fileutil.FileExists("/.dockerenv")
}

// GOOS is the target OS used to pick install instructions.
var GOOS = runtime.GOOS

// ForToolNotFound returns install hints for a missing TeX tool.
func ForToolNotFound(tool string) string {
	var hints []string

	switch {
	case IsInContainer():
		hints = append(hints, "add texlive-latex-base and dvipng to the image")
	case GOOS == "darwin":
		hints = append(hints, "brew install --cask basictex, then tlmgr install dvipng standalone")
	case GOOS == "windows":
		hints = append(hints, "install MiKTeX and make sure its bin directory is on PATH")
	default:
		hints = append(hints, "install texlive-latex-base and dvipng with your package manager")
	}

	if tool != "" {
		hints = append(hints, "or point render."+toolKey(tool)+" at another binary")
	}
	hints = append(hints, "run 'latex2img doctor' to verify")

	return formatHints(hints)
}

// toolKey names the config field for a tool.
func toolKey(tool string) string {
	if strings.Contains(tool, "png") {
		return "converter"
	}
	return "compiler"
}

// ForTimeout returns a hint about increasing the render timeout.
func ForTimeout() string {
	return format("for heavy formulas or a cold TeX cache, use --timeout")
}

// ForCompile returns a hint for formulas TeX rejected.
func ForCompile() string {
	return format("check the formula; packages it needs go in render.preamble")
}

// ForConfigNotFound returns hints for config file not found errors.
// Suggests --config flag and creating a config in ~/.config/latex2img/.
func ForConfigNotFound(searchedPaths []string) string {
	hint := "use --config /path/to/file.yaml"

	for _, p := range searchedPaths {
		if strings.Contains(slashed(p), "/latex2img/") {
			hint += " or create " + p
			break
		}
	}

	return format(hint)
}

// ForAssetsDirectory returns hints for image directory creation errors.
func ForAssetsDirectory() string {
	return format("check the input directory is writable or set --assets")
}

func slashed(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

// format creates a single hint string with consistent formatting.
func format(hint string) string {
	if hint == "" {
		return ""
	}
	return "\n  hint: " + hint
}

// formatHints joins multiple hints with consistent formatting.
func formatHints(hints []string) string {
	if len(hints) == 0 {
		return ""
	}
	return format(strings.Join(hints, "; "))
}
