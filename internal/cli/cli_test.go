package cli

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDefaultsToHelp(t *testing.T) {
	parsed, err := Parse(nil)
	require.NoError(t, err)
	require.True(t, parsed.ShowHelp)
	require.Equal(t, CommandHelp, parsed.Command)
}

func TestParseCommandWithConfig(t *testing.T) {
	parsed, err := Parse([]string{"--config", "/tmp/entretien.jsonc", "doctor"})
	require.NoError(t, err)
	require.Equal(t, CommandDoctor, parsed.Command)
	require.Equal(t, "/tmp/entretien.jsonc", parsed.ConfigPath)
	require.False(t, parsed.ShowHelp)
}

func TestParseStartTakesInterviewID(t *testing.T) {
	parsed, err := Parse([]string{"--config", "/tmp/cfg", "start", "6650f1c2a9"})
	require.NoError(t, err)
	require.Equal(t, CommandStart, parsed.Command)
	require.Equal(t, "6650f1c2a9", parsed.InterviewID)
	require.Equal(t, "/tmp/cfg", parsed.ConfigPath)
}

func TestParseArgMatrix(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantErr  string
		wantCmd  Command
		wantHelp bool
		wantPath string
		wantID   string
	}{
		{
			name:     "help short flag",
			args:     []string{"-h"},
			wantCmd:  CommandHelp,
			wantHelp: true,
		},
		{
			name:     "help long flag",
			args:     []string{"--help"},
			wantCmd:  CommandHelp,
			wantHelp: true,
		},
		{
			name:     "version flag",
			args:     []string{"--version"},
			wantCmd:  CommandVersion,
			wantHelp: false,
		},
		{
			name:    "config after command",
			args:    []string{"status", "--config", "/tmp/cfg"},
			wantErr: "unexpected arguments after command",
		},
		{
			name:    "missing config path",
			args:    []string{"--config"},
			wantErr: "requires a path",
		},
		{
			name:     "config equals form",
			args:     []string{"--config=/tmp/eq.jsonc", "status"},
			wantCmd:  CommandStatus,
			wantPath: "/tmp/eq.jsonc",
		},
		{
			name:    "config equals without path",
			args:    []string{"--config=", "status"},
			wantErr: "requires a path",
		},
		{
			name:    "unknown flag",
			args:    []string{"--bogus"},
			wantErr: "unknown flag",
		},
		{
			name:    "unknown command",
			args:    []string{"bogus"},
			wantErr: "unknown command",
		},
		{
			name:    "extra args after command",
			args:    []string{"doctor", "extra"},
			wantErr: "unexpected arguments",
		},
		{
			name:    "start without id",
			args:    []string{"start"},
			wantErr: "requires an interview id",
		},
		{
			name:    "recordings with blank id",
			args:    []string{"recordings", "  "},
			wantErr: "requires an interview id",
		},
		{
			name:    "start with two ids",
			args:    []string{"start", "a", "b"},
			wantErr: "unexpected arguments",
		},
		{
			name:    "next takes no id",
			args:    []string{"next", "a"},
			wantErr: "unexpected arguments",
		},
		{
			name:     "valid hangup command",
			args:     []string{"hangup"},
			wantCmd:  CommandHangup,
			wantHelp: false,
		},
		{
			name:     "valid recordings with config",
			args:     []string{"--config", "/tmp/cfg", "recordings", "iv-9"},
			wantCmd:  CommandRecordings,
			wantHelp: false,
			wantPath: "/tmp/cfg",
			wantID:   "iv-9",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			parsed, err := Parse(tc.args)
			if tc.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.wantErr)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tc.wantCmd, parsed.Command)
			require.Equal(t, tc.wantHelp, parsed.ShowHelp)
			require.Equal(t, tc.wantPath, parsed.ConfigPath)
			require.Equal(t, tc.wantID, parsed.InterviewID)
		})
	}
}

func TestControlCommands(t *testing.T) {
	for _, cmd := range []Command{CommandNext, CommandPrevious, CommandNarrate, CommandMute, CommandRetry, CommandHangup} {
		require.True(t, cmd.Control(), cmd)
	}
	for _, cmd := range []Command{CommandStart, CommandStatus, CommandDoctor, CommandLogin} {
		require.False(t, cmd.Control(), cmd)
	}
}

func TestHelpTextIncludesCoreCommands(t *testing.T) {
	text := HelpText("entretien")
	require.Contains(t, text, "start ID")
	require.Contains(t, text, "next")
	require.Contains(t, text, "hangup")
	require.Contains(t, text, "recordings ID")
	require.Contains(t, text, "doctor")
	require.Contains(t, text, "--config PATH")
}
