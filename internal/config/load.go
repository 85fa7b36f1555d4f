package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/joho/godotenv"
)

// Loaded captures resolved config path, parsed values, and non-fatal warnings.
type Loaded struct {
	Path     string
	Config   Config
	Warnings []Warning
	Exists   bool
	EnvFiles []string
}

// Load resolves, reads, parses, and validates the runtime configuration.
//
// The working directory .env is loaded before the path is resolved, so it
// may set ENTRETIEN_CONFIG. A .env next to the resolved config follows.
// Variables already set in the environment win.
func Load(explicitPath string) (Loaded, error) {
	var env envLoader
	if err := env.load(".env"); err != nil {
		return Loaded{}, err
	}

	resolvedPath, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}
	if err := env.load(filepath.Join(filepath.Dir(resolvedPath), ".env")); err != nil {
		return Loaded{}, err
	}

	base := Default()
	content, err := os.ReadFile(resolvedPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Loaded{
				Path:   resolvedPath,
				Config: base,
				Warnings: []Warning{{
					Message: fmt.Sprintf("config file %q not found; using defaults", resolvedPath),
				}},
				Exists:   false,
				EnvFiles: env.loaded,
			}, nil
		}
		return Loaded{}, fmt.Errorf("read config %q: %w", resolvedPath, err)
	}

	cfg, warnings, err := Parse(string(content), base)
	if err != nil {
		return Loaded{}, fmt.Errorf("parse config %q: %w", resolvedPath, err)
	}

	return Loaded{
		Path:     resolvedPath,
		Config:   cfg,
		Warnings: warnings,
		Exists:   true,
		EnvFiles: env.loaded,
	}, nil
}

// envLoader loads each .env file at most once and records what it loaded.
type envLoader struct {
	loaded []string
}

func (e *envLoader) load(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil
	}
	if slices.Contains(e.loaded, abs) {
		return nil
	}
	if _, err := os.Stat(abs); err != nil {
		return nil
	}
	if err := godotenv.Load(abs); err != nil {
		return fmt.Errorf("load env file %q: %w", abs, err)
	}
	e.loaded = append(e.loaded, abs)
	return nil
}
