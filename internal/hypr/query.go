package hypr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// queryJSON runs `hyprctl -j <target>` and decodes the reply into dst.
func queryJSON(ctx context.Context, target string, dst any) error {
	out, err := hyprctl(ctx, "-j", target)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(out, dst); err != nil {
		return fmt.Errorf("decode hyprctl %s json: %w", target, err)
	}
	return nil
}

// QueryFocusedMonitor returns the focused monitor name, falling back to the
// first monitor listed.
func QueryFocusedMonitor(ctx context.Context) (string, error) {
	var monitors []struct {
		Name    string `json:"name"`
		Focused bool   `json:"focused"`
	}
	if err := queryJSON(ctx, "monitors", &monitors); err != nil {
		return "", err
	}
	if len(monitors) == 0 {
		return "", errors.New("hyprctl monitors returned no outputs")
	}
	name := monitors[0].Name
	for _, mon := range monitors {
		if mon.Focused {
			name = mon.Name
			break
		}
	}
	return strings.TrimSpace(name), nil
}

// QueryVersion reports the running compositor version, which doubles as a
// reachability check for the notification backend.
func QueryVersion(ctx context.Context) (string, error) {
	var info struct {
		Tag    string `json:"tag"`
		Branch string `json:"branch"`
	}
	if err := queryJSON(ctx, "version", &info); err != nil {
		return "", err
	}
	for _, candidate := range []string{info.Tag, info.Branch} {
		if tag := strings.TrimSpace(candidate); tag != "" {
			return tag, nil
		}
	}
	return "", errors.New("hyprctl version returned no tag")
}
