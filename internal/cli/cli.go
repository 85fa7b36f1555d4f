package cli

import (
	"errors"
	"fmt"
	"strings"
)

type Command string

const (
	CommandStart      Command = "start"
	CommandNext       Command = "next"
	CommandPrevious   Command = "previous"
	CommandNarrate    Command = "narrate"
	CommandMute       Command = "mute"
	CommandRetry      Command = "retry"
	CommandHangup     Command = "hangup"
	CommandStatus     Command = "status"
	CommandRecordings Command = "recordings"
	CommandLogin      Command = "login"
	CommandLogout     Command = "logout"
	CommandDevices    Command = "devices"
	CommandDoctor     Command = "doctor"
	CommandVersion    Command = "version"
	CommandHelp       Command = "help"
)

// validCommands maps each command to whether it takes an interview id.
var validCommands = map[Command]bool{
	CommandStart:      true,
	CommandNext:       false,
	CommandPrevious:   false,
	CommandNarrate:    false,
	CommandMute:       false,
	CommandRetry:      false,
	CommandHangup:     false,
	CommandStatus:     false,
	CommandRecordings: true,
	CommandLogin:      false,
	CommandLogout:     false,
	CommandDevices:    false,
	CommandDoctor:     false,
	CommandVersion:    false,
	CommandHelp:       false,
}

// Control reports whether the command is forwarded to a running session.
func (c Command) Control() bool {
	switch c {
	case CommandNext, CommandPrevious, CommandNarrate, CommandMute, CommandRetry, CommandHangup:
		return true
	default:
		return false
	}
}

type Parsed struct {
	Command     Command
	InterviewID string
	ConfigPath  string
	ShowHelp    bool
}

func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-h", "--help":
			parsed.ShowHelp = true
			parsed.Command = CommandHelp
		case "--version":
			parsed.ShowHelp = false
			parsed.Command = CommandVersion
		case "--config":
			i++
			if i >= len(args) {
				return Parsed{}, errors.New("--config requires a path")
			}
			parsed.ConfigPath = args[i]
		default:
			if value, ok := strings.CutPrefix(arg, "--config="); ok {
				if strings.TrimSpace(value) == "" {
					return Parsed{}, errors.New("--config requires a path")
				}
				parsed.ConfigPath = value
				continue
			}
			if strings.HasPrefix(arg, "-") {
				return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
			}

			cmd := Command(arg)
			takesID, ok := validCommands[cmd]
			if !ok {
				return Parsed{}, fmt.Errorf("unknown command: %s", arg)
			}

			parsed.Command = cmd
			parsed.ShowHelp = cmd == CommandHelp
			rest := args[i+1:]
			if takesID {
				if len(rest) == 0 || strings.TrimSpace(rest[0]) == "" {
					return Parsed{}, fmt.Errorf("command %q requires an interview id", arg)
				}
				parsed.InterviewID = strings.TrimSpace(rest[0])
				rest = rest[1:]
			}
			if len(rest) > 0 {
				return Parsed{}, fmt.Errorf("unexpected arguments after command %q", arg)
			}
			return parsed, nil
		}
	}

	return parsed, nil
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] <command> [interview-id]

Session:
  start ID        Run the interview ID in this terminal
  next            Save the answer and go to the next question
  previous        Go back to the previous question
  narrate         Read the current question again (skips narration in progress)
  mute            Toggle the microphone
  retry           Retry camera access or a failed upload
  hangup          End the session without uploading
  status          Print session state and progress

Account:
  recordings ID   List saved recordings of interview ID
  login           Store a bearer token for the backend API
  logout          Forget the stored token

Diagnostics:
  devices         List available input devices
  doctor          Run configuration and environment checks
  version         Print version information
  help            Show this help

Flags:
  --config PATH   Config file path, also --config=PATH
                  (default: $ENTRETIEN_CONFIG, then $XDG_CONFIG_HOME/entretien/config.jsonc)
  -h, --help      Show help
  --version       Show version
`, binaryName)
}
