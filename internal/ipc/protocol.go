package ipc

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
)

// Control commands accepted by a running session.
const (
	CommandStatus   = "status"
	CommandNext     = "next"
	CommandPrevious = "previous"
	CommandNarrate  = "narrate"
	CommandMute     = "mute"
	CommandRetry    = "retry"
	CommandHangup   = "hangup"
)

// maxMessageBytes bounds one newline-delimited JSON message.
const maxMessageBytes = 16 << 10

var errMessageTooLarge = fmt.Errorf("message exceeds %d bytes", maxMessageBytes)

// Request is one control command sent to the session owner.
type Request struct {
	Command string `json:"command"`
}

// normalized trims and lowercases the command name.
func (r Request) normalized() Request {
	r.Command = strings.ToLower(strings.TrimSpace(r.Command))
	return r
}

// Response carries the command outcome and, for status, the session snapshot.
type Response struct {
	OK      bool   `json:"ok"`
	State   string `json:"state,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`

	Question  int    `json:"question,omitempty"`
	Total     int    `json:"total,omitempty"`
	Answered  int    `json:"answered,omitempty"`
	Elapsed   int    `json:"elapsed,omitempty"`
	Muted     bool   `json:"muted,omitempty"`
	LastError string `json:"last_error,omitempty"`
}

// Err returns the rejection carried by a non-OK response.
func (r Response) Err() error {
	if r.OK {
		return nil
	}
	if r.Error == "" {
		return errors.New("request rejected")
	}
	return errors.New(r.Error)
}

// readMessage returns one newline-terminated message. The slice is only
// valid until the next read on br.
func readMessage(br *bufio.Reader) ([]byte, error) {
	line, err := br.ReadSlice('\n')
	if errors.Is(err, bufio.ErrBufferFull) {
		return nil, errMessageTooLarge
	}
	return line, err
}
