package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alnah/go-latex2img/internal/config"
)

// fakeTeX stands in for latex, dvipng and kpsewhich. It writes the files
// the real tools would write so the whole render path runs without TeX.
// A formula containing \undefined fails to compile.
type fakeTeX struct {
	missing map[string]bool // tool names LookPath and Run reject
}

func (f *fakeTeX) LookPath(name string) (string, error) {
	if f.missing[name] {
		return "", &exec.Error{Name: name, Err: exec.ErrNotFound}
	}
	return "/usr/bin/" + name, nil
}

func (f *fakeTeX) Run(_ context.Context, dir, name string, args ...string) (string, string, error) {
	tool := filepath.Base(name)
	if f.missing[tool] {
		return "", "", &exec.Error{Name: name, Err: exec.ErrNotFound}
	}

	switch {
	case len(args) == 1 && args[0] == "--version":
		return tool + " 1.0 (fake)\n", "", nil
	case tool == "kpsewhich":
		return "/texmf/" + args[0] + "\n", "", nil
	case tool == "dvipng":
		out := ""
		for i, a := range args {
			if a == "-o" && i+1 < len(args) {
				out = args[i+1]
			}
		}
		return "", "", os.WriteFile(filepath.Join(dir, out), []byte("png"), 0o644)
	default:
		src, err := os.ReadFile(filepath.Join(dir, args[len(args)-1]))
		if err != nil {
			return "", "", err
		}
		if strings.Contains(string(src), `\undefined`) {
			return "! Undefined control sequence.\nl.5 \\undefined\n", "", errors.New("exit status 1")
		}
		return "", "", os.WriteFile(filepath.Join(dir, "formula.dvi"), []byte("dvi"), 0o644)
	}
}

// testEnv returns an Environment writing to buffers and running fakeTeX.
func testEnv(runner *fakeTeX) (*Environment, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	if runner == nil {
		runner = &fakeTeX{}
	}
	return &Environment{
		Now:    time.Now,
		Stdout: &stdout,
		Stderr: &stderr,
		Config: config.DefaultConfig(),
		Runner: runner,
	}, &stdout, &stderr
}

// noEnv is a getenv that sees no variables.
func noEnv(string) string { return "" }

// mapEnv returns a getenv backed by m.
func mapEnv(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

// writeDoc creates a document under dir and returns its path.
func writeDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

// readDoc returns the content of path.
func readDoc(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	return string(data)
}
