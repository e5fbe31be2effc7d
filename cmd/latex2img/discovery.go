package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/alnah/go-latex2img/internal/config"
	"github.com/alnah/go-latex2img/internal/fileutil"
)

// Sentinel errors for document discovery.
var (
	ErrNoInput          = errors.New("no input specified")
	ErrNoDocuments      = errors.New("no documents found")
	ErrInvalidExtension = errors.New("document extension not accepted")
)

// resolveInputPath picks the positional argument, then input.root.
func resolveInputPath(args []string, cfg *config.Config) (string, error) {
	switch {
	case len(args) > 1:
		return "", fmt.Errorf("%w: expected one input path, got %d", ErrInvalidFlag, len(args))
	case len(args) == 1:
		return args[0], nil
	case cfg.Input.Root != "":
		return cfg.Input.Root, nil
	default:
		return "", ErrNoInput
	}
}

// discoverDocuments finds the documents to process under inputPath and
// returns the input root image directories are resolved against.
// A file is its own batch and its directory is the root. Hidden
// directories below a root directory are skipped.
func discoverDocuments(inputPath string, extensions []string) (string, []string, error) {
	info, err := os.Stat(inputPath)
	if err != nil {
		return "", nil, err
	}

	if !info.IsDir() {
		if !hasExtension(inputPath, extensions) {
			return "", nil, fmt.Errorf("%w: %s (want %s)", ErrInvalidExtension, inputPath, strings.Join(extensions, ", "))
		}
		return filepath.Dir(inputPath), []string{inputPath}, nil
	}

	var files []string
	err = filepath.WalkDir(inputPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("scanning %s: %w", path, err)
		}
		if d.IsDir() {
			if path != inputPath && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && hasExtension(path, extensions) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return "", nil, err
	}

	if len(files) == 0 {
		return "", nil, fmt.Errorf("%w in %s (extensions: %s)", ErrNoDocuments, inputPath, strings.Join(extensions, ", "))
	}
	return inputPath, files, nil
}

// hasExtension reports whether path ends in one of extensions, ignoring case.
func hasExtension(path string, extensions []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return false
	}
	for _, want := range extensions {
		if fileutil.NormalizeExtension(want) == ext {
			return true
		}
	}
	return false
}
