package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PathEnv points at the config file when --config is not given.
const PathEnv = "ENTRETIEN_CONFIG"

const appDir = "entretien"

// ResolvePath locates config.jsonc: the explicit path, then $ENTRETIEN_CONFIG,
// then the XDG config directory. A leading ~ is expanded.
func ResolvePath(explicit string) (string, error) {
	for _, candidate := range []string{explicit, os.Getenv(PathEnv)} {
		if candidate = strings.TrimSpace(candidate); candidate != "" {
			return expandHome(candidate)
		}
	}
	dir, err := xdgDir("XDG_CONFIG_HOME", ".config")
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.jsonc"), nil
}

// StateDir holds the log, the stored token, and debug dumps.
func StateDir() (string, error) {
	return xdgDir("XDG_STATE_HOME", filepath.Join(".local", "state"))
}

func xdgDir(env string, homeFallback string) (string, error) {
	if base := strings.TrimSpace(os.Getenv(env)); base != "" {
		return filepath.Join(base, appDir), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory for %s: %w", env, err)
	}
	return filepath.Join(home, homeFallback, appDir), nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand %q: %w", path, err)
	}
	return filepath.Join(home, path[1:]), nil
}
