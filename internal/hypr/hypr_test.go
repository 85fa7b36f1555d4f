package hypr

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQueryFocusedMonitorAndVersion(t *testing.T) {
	installHyprctlStub(t, `
if [[ "${1:-}" == "-j" && "${2:-}" == "monitors" ]]; then
  echo '[{"name":"HDMI-A-1","focused":false},{"name":" DP-1 ","focused":true}]'
  exit 0
fi
if [[ "${1:-}" == "-j" && "${2:-}" == "version" ]]; then
  echo '{"branch":"main","tag":" v0.48.1 "}'
  exit 0
fi
exit 1
`)

	monitor, err := QueryFocusedMonitor(context.Background())
	require.NoError(t, err)
	require.Equal(t, "DP-1", monitor)

	version, err := QueryVersion(context.Background())
	require.NoError(t, err)
	require.Equal(t, "v0.48.1", version)
}

func TestQueryFocusedMonitorFallsBackToFirst(t *testing.T) {
	installHyprctlStub(t, `
echo '[{"name":"eDP-1","focused":false}]'
`)

	monitor, err := QueryFocusedMonitor(context.Background())
	require.NoError(t, err)
	require.Equal(t, "eDP-1", monitor)
}

func TestQueryFocusedMonitorRejectsEmptyList(t *testing.T) {
	installHyprctlStub(t, `
echo '[]'
`)

	_, err := QueryFocusedMonitor(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "no outputs")
}

func TestQueryVersionRejectsMissingTag(t *testing.T) {
	installHyprctlStub(t, `
echo '{}'
`)

	_, err := QueryVersion(context.Background())
	require.ErrorContains(t, err, "no tag")
}

func TestNotifyAndDismissUseHyprctlDispatch(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "hypr-args.log")
	t.Setenv("HYPR_ARGS_FILE", argsFile)
	installHyprctlStub(t, `
printf '%s\n' "$*" >> "${HYPR_ARGS_FILE}"
`)

	err := Notify(context.Background(), Notification{Icon: IconError, TimeoutMS: 4000, Text: "Camera or microphone unavailable"})
	require.NoError(t, err)

	err = DismissNotify(context.Background())
	require.NoError(t, err)

	data, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	require.Equal(t, "--quiet dispatch notify 3 4000 rgb(89b4fa) Camera or microphone unavailable", lines[0])
	require.Equal(t, "--quiet dispatch dismissnotify", lines[1])
}

func TestNotifyReturnsCombinedOutputOnFailure(t *testing.T) {
	installHyprctlStub(t, `
echo 'boom from hyprctl' >&2
exit 1
`)

	err := Notify(context.Background(), Notification{Icon: IconInfo, TimeoutMS: 1000, Color: "rgb(a6e3a1)", Text: "Listening"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "boom from hyprctl")
}

func TestNotificationArgsFontSize(t *testing.T) {
	args := Notification{Icon: IconNone, TimeoutMS: 300000, Color: " ", FontSize: 14, Text: "Question 2/5"}.args()
	require.Equal(t, []string{"--quiet", "dispatch", "notify", "-1", "300000", DefaultColor, "fontsize:14 Question 2/5"}, args)
}

func TestQueryVersionFallsBackToBranch(t *testing.T) {
	installHyprctlStub(t, `
echo '{"branch":" main ","tag":""}'
`)

	version, err := QueryVersion(context.Background())
	require.NoError(t, err)
	require.Equal(t, "main", version)
}

func TestQueryReportsDecodeFailure(t *testing.T) {
	installHyprctlStub(t, `
echo 'not json'
`)

	_, err := QueryFocusedMonitor(context.Background())
	require.ErrorContains(t, err, "decode hyprctl monitors json")
}

func installHyprctlStub(t *testing.T, body string) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "hyprctl")
	script := "#!/usr/bin/env bash\nset -euo pipefail\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))
}
