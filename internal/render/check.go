package render

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// checkTimeout bounds each version probe.
const checkTimeout = 10 * time.Second

// ToolStatus describes one external command as seen by Check.
type ToolStatus struct {
	Role    string `json:"role"` // "compiler" or "converter"
	Name    string `json:"name"`
	Path    string `json:"path,omitempty"`
	Version string `json:"version,omitempty"`
	Err     error  `json:"-"`
	Error   string `json:"error,omitempty"`
}

// OK reports whether the tool was found and answered a version probe.
func (s ToolStatus) OK() bool {
	return s.Err == nil
}

// Check locates both tools and reads their version banners.
// It never fails as a whole; each status carries its own error.
func (t *TeX) Check(ctx context.Context) []ToolStatus {
	return []ToolStatus{
		t.probe(ctx, "compiler", t.Compiler),
		t.probe(ctx, "converter", t.Converter),
	}
}

func (t *TeX) probe(ctx context.Context, role, name string) ToolStatus {
	status := ToolStatus{Role: role, Name: name}

	path, err := t.Runner.LookPath(name)
	if err != nil {
		status.Err = fmt.Errorf("%w: %s", ErrToolNotFound, name)
		status.Error = status.Err.Error()
		return status
	}
	status.Path = path

	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	stdout, stderr, err := t.Runner.Run(ctx, "", path, "--version")
	if err != nil {
		status.Err = fmt.Errorf("%s --version: %w", name, err)
		status.Error = status.Err.Error()
		return status
	}
	status.Version = firstLine(stdout)
	if status.Version == "" {
		status.Version = firstLine(stderr)
	}
	return status
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
