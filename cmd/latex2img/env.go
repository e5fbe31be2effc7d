package main

import (
	"io"
	"os"
	"time"

	"github.com/alnah/go-latex2img/internal/config"
	"github.com/alnah/go-latex2img/internal/render"
)

// Environment holds injectable dependencies for testability.
// Includes I/O, time, configuration, and the command runner for TeX tools.
type Environment struct {
	Now    func() time.Time
	Stdout io.Writer
	Stderr io.Writer
	Config *config.Config      // Base config when no file is given
	Runner render.CommandRunner // nil runs the real tools
}

// DefaultEnv returns the production environment.
func DefaultEnv() *Environment {
	return &Environment{
		Now:    time.Now,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Config: config.DefaultConfig(),
	}
}

// runner returns the configured command runner or the exec-backed default.
func (e *Environment) runner() render.CommandRunner {
	if e.Runner != nil {
		return e.Runner
	}
	return &render.ExecRunner{}
}
