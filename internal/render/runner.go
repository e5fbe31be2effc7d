package render

import (
	"bytes"
	"context"
	"os/exec"

	"github.com/alnah/go-latex2img/internal/process"
)

// CommandRunner abstracts command execution to enable testing without a TeX installation.
type CommandRunner interface {
	LookPath(name string) (string, error)
	Run(ctx context.Context, dir, name string, args ...string) (stdout, stderr string, err error)
}

// ExecRunner implements CommandRunner using os/exec.
// Commands run in their own process group so a timeout kills the whole tree.
type ExecRunner struct{}

// Compile-time interface implementation check.
var _ CommandRunner = (*ExecRunner)(nil)

// LookPath resolves name on PATH.
func (r *ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// Run executes name in dir and returns its captured output.
func (r *ExecRunner) Run(ctx context.Context, dir, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...) // #nosec G204 -- tool names come from config
	cmd.Dir = dir
	process.Isolate(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}
