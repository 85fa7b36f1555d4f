// Package hypr wraps the hyprctl commands used for on-screen session state.
package hypr

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Icon selects the glyph Hyprland draws next to a notification.
type Icon int

const (
	IconNone    Icon = -1
	IconWarning Icon = 0
	IconInfo    Icon = 1
	IconHint    Icon = 2
	IconError   Icon = 3
	IconOK      Icon = 5
)

// DefaultColor is the notification accent used when none is given.
const DefaultColor = "rgb(89b4fa)"

// Notification is one `hyprctl dispatch notify` call.
type Notification struct {
	Icon      Icon
	TimeoutMS int
	Color     string
	// FontSize overrides the compositor default when positive.
	FontSize int
	Text     string
}

func (n Notification) args() []string {
	color := strings.TrimSpace(n.Color)
	if color == "" {
		color = DefaultColor
	}
	text := n.Text
	if n.FontSize > 0 {
		text = fmt.Sprintf("fontsize:%d %s", n.FontSize, text)
	}
	return []string{
		"--quiet", "dispatch", "notify",
		strconv.Itoa(int(n.Icon)),
		strconv.Itoa(n.TimeoutMS),
		color,
		text,
	}
}

// Notify shows n until its timeout elapses or DismissNotify is called.
func Notify(ctx context.Context, n Notification) error {
	_, err := hyprctl(ctx, n.args()...)
	return err
}

// DismissNotify dismisses active Hyprland notifications.
func DismissNotify(ctx context.Context) error {
	_, err := hyprctl(ctx, "--quiet", "dispatch", "dismissnotify")
	return err
}

func hyprctl(ctx context.Context, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, "hyprctl", args...).CombinedOutput()
	if err == nil {
		return out, nil
	}
	if detail := strings.TrimSpace(string(out)); detail != "" {
		return nil, fmt.Errorf("hyprctl %s failed: %w (%s)", strings.Join(args, " "), err, detail)
	}
	return nil, fmt.Errorf("hyprctl %s failed: %w", strings.Join(args, " "), err)
}
