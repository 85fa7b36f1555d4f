package output

import (
	"errors"
	"log/slog"

	"github.com/atotto/clipboard"
)

// ErrClipboardUnsupported means no clipboard utility was found.
var ErrClipboardUnsupported = errors.New("no clipboard utility available (install wl-clipboard or xclip)")

// Copier writes text to the system clipboard.
type Copier struct {
	logger *slog.Logger
	write  func(string) error
}

// NewCopier builds a clipboard writer.
func NewCopier(logger *slog.Logger) *Copier {
	return &Copier{logger: logger, write: writeSystemClipboard}
}

// Copy writes text to the clipboard. Empty text is a no-op.
func (c *Copier) Copy(text string) error {
	if text == "" {
		return nil
	}
	if err := c.write(text); err != nil {
		if c.logger != nil {
			c.logger.Warn("clipboard copy failed", "error", err.Error())
		}
		return err
	}
	if c.logger != nil {
		c.logger.Debug("summary copied to clipboard", "bytes", len(text))
	}
	return nil
}

func writeSystemClipboard(text string) error {
	if clipboard.Unsupported {
		return ErrClipboardUnsupported
	}
	return clipboard.WriteAll(text)
}
