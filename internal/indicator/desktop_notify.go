package indicator

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

const (
	notificationsDest  = "org.freedesktop.Notifications"
	notificationsPath  = "/org/freedesktop/Notifications"
	notificationsIface = "org.freedesktop.Notifications"
)

// Freedesktop urgency levels carried in the "urgency" hint.
const (
	urgencyLow      byte = 0
	urgencyNormal   byte = 1
	urgencyCritical byte = 2
)

// busctlRun executes busctl and returns its combined output.
var busctlRun = func(ctx context.Context, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, "busctl", args...).CombinedOutput()
}

// desktopNotification is one Notify call on the session bus.
type desktopNotification struct {
	AppName   string
	ReplaceID uint32
	Summary   string
	Body      string
	Urgency   byte
	Category  string
	TimeoutMS int
}

// args renders the busctl argument list. Hints are encoded inline as
// count followed by key, signature, value triples.
func (d desktopNotification) args() []string {
	args := []string{
		"--user", "call", notificationsDest, notificationsPath, notificationsIface,
		"Notify", "susssasa{sv}i",
		d.AppName,
		strconv.FormatUint(uint64(d.ReplaceID), 10),
		"",
		d.Summary,
		d.Body,
		"0",
	}

	hints := [][3]string{{"urgency", "y", strconv.Itoa(int(d.Urgency))}}
	if d.Category != "" {
		hints = append(hints, [3]string{"category", "s", d.Category})
	}
	args = append(args, strconv.Itoa(len(hints)))
	for _, hint := range hints {
		args = append(args, hint[0], hint[1], hint[2])
	}
	return append(args, strconv.Itoa(d.TimeoutMS))
}

// desktopNotify sends n and returns the notification ID assigned by the server.
func desktopNotify(ctx context.Context, n desktopNotification) (uint32, error) {
	out, err := busctlRun(ctx, n.args()...)
	if err != nil {
		return 0, busctlError("desktop notify", err, out)
	}
	return parseNotifyReply(out)
}

// desktopDismiss closes a notification by ID.
func desktopDismiss(ctx context.Context, id uint32) error {
	out, err := busctlRun(ctx,
		"--user", "call", notificationsDest, notificationsPath, notificationsIface,
		"CloseNotification", "u", strconv.FormatUint(uint64(id), 10),
	)
	if err != nil {
		return busctlError("desktop dismiss", err, out)
	}
	return nil
}

// parseNotifyReply reads busctl's "u <id>" reply.
func parseNotifyReply(out []byte) (uint32, error) {
	reply := strings.TrimSpace(string(out))
	fields := strings.Fields(reply)
	if len(fields) < 2 || fields[0] != "u" {
		return 0, fmt.Errorf("desktop notify invalid response: %q", reply)
	}
	value, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("desktop notify parse id %q: %w", fields[1], err)
	}
	return uint32(value), nil
}

func busctlError(op string, err error, out []byte) error {
	if detail := strings.TrimSpace(string(out)); detail != "" {
		return fmt.Errorf("%s failed: %w (%s)", op, err, detail)
	}
	return fmt.Errorf("%s failed: %w", op, err)
}
