package narrator

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// CommandSynthesizer runs a local TTS binary per utterance. {text} and
// {voice} placeholders are substituted; without {text} the text goes to
// stdin.
type CommandSynthesizer struct {
	Argv  []string
	Voice string
}

func (c CommandSynthesizer) Speak(ctx context.Context, text string) error {
	if len(c.Argv) == 0 {
		return errors.New("tts command is empty")
	}
	argv, viaStdin := c.expand(text)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if viaStdin {
		cmd.Stdin = strings.NewReader(text)
	}
	output, err := cmd.CombinedOutput()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		msg := strings.TrimSpace(string(output))
		if msg == "" {
			return fmt.Errorf("tts command %q: %w", argv[0], err)
		}
		return fmt.Errorf("tts command %q: %w: %s", argv[0], err, msg)
	}
	return nil
}

func (c CommandSynthesizer) expand(text string) ([]string, bool) {
	viaStdin := true
	out := make([]string, 0, len(c.Argv))
	for _, arg := range c.Argv {
		if strings.Contains(arg, "{text}") {
			viaStdin = false
		}
		if arg == "{voice}" && c.Voice == "" {
			// Drop a dangling voice flag argument.
			if len(out) > 0 && strings.HasPrefix(out[len(out)-1], "-") {
				out = out[:len(out)-1]
			}
			continue
		}
		arg = strings.ReplaceAll(arg, "{voice}", c.Voice)
		arg = strings.ReplaceAll(arg, "{text}", text)
		out = append(out, arg)
	}
	return out, viaStdin
}
