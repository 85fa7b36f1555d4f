package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// connTimeout bounds a single client exchange.
const connTimeout = 2 * time.Second

// Handler processes one control command.
type Handler interface {
	Handle(context.Context, Request) Response
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(context.Context, Request) Response

func (f HandlerFunc) Handle(ctx context.Context, req Request) Response {
	return f(ctx, req)
}

// Serve answers control clients until ctx is cancelled or the listener
// closes. In-flight exchanges finish before Serve returns.
func Serve(ctx context.Context, listener net.Listener, handler Handler) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	stop := context.AfterFunc(ctx, func() { _ = listener.Close() })
	defer stop()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept IPC connection: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer conn.Close()
			_ = conn.SetDeadline(time.Now().Add(connTimeout))
			_ = json.NewEncoder(conn).Encode(exchange(ctx, conn, handler))
		}()
	}
}

// exchange reads one request from conn and produces its response.
func exchange(ctx context.Context, conn net.Conn, handler Handler) Response {
	line, err := readMessage(bufio.NewReaderSize(conn, maxMessageBytes))
	if err != nil {
		return Response{OK: false, Error: fmt.Sprintf("read request: %v", err)}
	}

	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return Response{OK: false, Error: fmt.Sprintf("decode request: %v", err)}
	}
	req = req.normalized()
	if req.Command == "" {
		return Response{OK: false, Error: "missing command"}
	}
	return handler.Handle(ctx, req)
}
