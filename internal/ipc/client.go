package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"
	"time"
)

// Client sends control commands to the session owning Path.
type Client struct {
	Path    string
	Timeout time.Duration
}

// Send performs one request/response exchange bounded by c.Timeout.
func (c Client) Send(ctx context.Context, req Request) (Response, error) {
	dialer := net.Dialer{Timeout: c.Timeout}
	conn, err := dialer.DialContext(ctx, "unix", c.Path)
	if err != nil {
		return Response{}, err
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(c.Timeout)); err != nil {
		return Response{}, fmt.Errorf("set deadline: %w", err)
	}
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return Response{}, fmt.Errorf("encode request: %w", err)
	}

	line, err := readMessage(bufio.NewReaderSize(conn, maxMessageBytes))
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}
	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}

// Forward delivers command to a running session. delivered is false when
// nothing listens on the socket; a rejected command returns delivered with
// the response error.
func (c Client) Forward(ctx context.Context, command string) (resp Response, delivered bool, err error) {
	resp, err = c.Send(ctx, Request{Command: command})
	switch {
	case err == nil:
		return resp, true, resp.Err()
	case IsNoListener(err):
		return Response{}, false, nil
	default:
		return Response{}, true, fmt.Errorf("forward command %q: %w", command, err)
	}
}

// Probe reports whether a responsive session owns the socket.
func (c Client) Probe(ctx context.Context) (bool, error) {
	_, err := c.Send(ctx, Request{Command: CommandStatus})
	if err == nil {
		return true, nil
	}
	if IsNoListener(err) {
		return false, nil
	}
	return false, fmt.Errorf("probe socket: %w", err)
}

// IsNoListener reports dial failures meaning no session is running: the
// socket file is absent or nobody accepts on it.
func IsNoListener(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		strings.Contains(err.Error(), "no such file or directory")
}
