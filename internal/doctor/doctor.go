// Package doctor runs readiness diagnostics for config, credentials, backend, and devices.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/souhaylelhammadi/entretien/internal/api"
	"github.com/souhaylelhammadi/entretien/internal/audio"
	"github.com/souhaylelhammadi/entretien/internal/config"
	"github.com/souhaylelhammadi/entretien/internal/hypr"
)

const probeTimeout = 2 * time.Second

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, loaded config.Loaded) Report {
	cfg := loaded.Config
	checks := []Check{}

	configMsg := fmt.Sprintf("loaded %q", loaded.Path)
	if !loaded.Exists {
		configMsg = fmt.Sprintf("using defaults (%q not found)", loaded.Path)
	}
	checks = append(checks, Check{Name: "config", Pass: true, Message: configMsg})

	tokenPath, err := api.DefaultTokenPath()
	if err != nil {
		checks = append(checks, Check{Name: "api.token", Pass: false, Message: err.Error()})
	} else {
		checks = append(checks, checkToken(api.TokenStore{Path: tokenPath}, time.Now()))
	}

	checks = append(checks, checkBackend(ctx, cfg.API))
	checks = append(checks, checkEnvSet(cfg.ASR.APIKeyEnv, "asr.api_key"))
	checks = append(checks, checkAudioSelection(ctx, cfg))
	checks = append(checks, checkVideoDevice(cfg.Video.Device))
	checks = append(checks, checkCommand(cfg.Video.Capture.Argv, "video.capture_cmd"))
	if cfg.TTS.Backend == "command" {
		checks = append(checks, checkCommand(cfg.TTS.Command.Argv, "tts.command"))
	}

	if cfg.Indicator.Enable {
		switch cfg.Indicator.Backend {
		case "hypr":
			checks = append(checks, checkHyprland(ctx))
		case "desktop":
			checks = append(checks, checkBinary("busctl", "desktop notifications"))
		}
	}

	return Report{Checks: checks}
}

// checkToken reports whether a usable bearer token is stored.
func checkToken(store api.TokenStore, now time.Time) Check {
	store.Now = func() time.Time { return now }
	token, err := store.Token()
	if err != nil {
		return Check{Name: "api.token", Pass: false, Message: err.Error()}
	}
	if exp, ok := api.TokenExpiry(token); ok {
		return Check{Name: "api.token", Pass: true, Message: fmt.Sprintf("valid until %s", exp.Format(time.RFC3339))}
	}
	return Check{Name: "api.token", Pass: true, Message: "token present"}
}

// checkBackend probes the configured backend health endpoint.
func checkBackend(ctx context.Context, cfg config.APIConfig) Check {
	client, err := api.NewClient(api.Options{
		BaseURL:    cfg.BaseURL,
		Timeout:    probeTimeout,
		HealthPath: cfg.HealthPath,
	})
	if err != nil {
		return Check{Name: "api.backend", Pass: false, Message: err.Error()}
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := client.Health(probeCtx); err != nil {
		return Check{Name: "api.backend", Pass: false, Message: err.Error()}
	}
	return Check{Name: "api.backend", Pass: true, Message: fmt.Sprintf("reachable at %s", cfg.BaseURL)}
}

// checkEnvSet validates that the named environment variable is non-empty.
func checkEnvSet(envName string, name string) Check {
	if strings.TrimSpace(envName) == "" {
		return Check{Name: name, Pass: false, Message: "environment variable name is empty"}
	}
	if strings.TrimSpace(os.Getenv(envName)) == "" {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("%s is not set", envName)}
	}
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("%s is set", envName)}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	check := checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
	check.Name = name
	return check
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

// checkVideoDevice validates that the camera device node exists.
func checkVideoDevice(device string) Check {
	device = strings.TrimSpace(device)
	if device == "" {
		return Check{Name: "video.device", Pass: false, Message: "device is empty"}
	}
	info, err := os.Stat(device)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Check{Name: "video.device", Pass: false, Message: fmt.Sprintf("%s does not exist", device)}
		}
		return Check{Name: "video.device", Pass: false, Message: err.Error()}
	}
	if info.Mode()&os.ModeDevice == 0 {
		return Check{Name: "video.device", Pass: false, Message: fmt.Sprintf("%s is not a device node", device)}
	}
	return Check{Name: "video.device", Pass: true, Message: fmt.Sprintf("found %s", device)}
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(ctx context.Context, cfg config.Config) Check {
	selection, err := audio.SelectDevice(ctx, cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

// checkHyprland validates the hypr indicator backend can reach hyprctl.
func checkHyprland(ctx context.Context) Check {
	if strings.TrimSpace(os.Getenv("HYPRLAND_INSTANCE_SIGNATURE")) == "" {
		return Check{Name: "hyprland", Pass: false, Message: "HYPRLAND_INSTANCE_SIGNATURE is empty"}
	}
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	tag, err := hypr.QueryVersion(probeCtx)
	if err != nil {
		return Check{Name: "hyprland", Pass: false, Message: err.Error()}
	}
	return Check{Name: "hyprland", Pass: true, Message: "hyprctl " + tag}
}
