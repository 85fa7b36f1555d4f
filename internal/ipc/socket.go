package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"
)

// ErrAlreadyRunning means another process owns the session socket.
var ErrAlreadyRunning = errors.New("an interview session is already running")

// SocketName is the session socket file name.
const SocketName = "entretien.sock"

// RuntimeSocketPath returns the session socket under XDG_RUNTIME_DIR, or a
// per-user directory under the system temp dir when that is unset.
func RuntimeSocketPath() (string, error) {
	runtimeDir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR"))
	if runtimeDir == "" {
		runtimeDir = filepath.Join(os.TempDir(), fmt.Sprintf("entretien-%d", os.Getuid()))
	}
	return filepath.Join(runtimeDir, SocketName), nil
}

const defaultProbeTimeout = 200 * time.Millisecond

// AcquireOptions tunes socket ownership recovery.
type AcquireOptions struct {
	// ProbeTimeout bounds the liveness check against an existing socket.
	// Zero means 200ms.
	ProbeTimeout time.Duration
	// Retries is how many extra listen attempts follow a stale-socket removal.
	Retries int
	// OnStale runs after a stale socket is unlinked.
	OnStale func(context.Context) error
}

// Owner is the listening end of the session socket. Close also unlinks the
// socket file.
type Owner struct {
	net.Listener
	path   string
	unlink sync.Once
}

// Path returns the socket file path.
func (o *Owner) Path() string { return o.path }

func (o *Owner) Close() error {
	err := o.Listener.Close()
	o.unlink.Do(func() {
		if removeErr := os.Remove(o.path); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) && err == nil {
			err = removeErr
		}
	})
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Acquire claims the session socket at path. A socket left by a dead owner
// is removed and the claim retried; a responsive owner yields
// ErrAlreadyRunning.
func Acquire(ctx context.Context, path string, opts AcquireOptions) (*Owner, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("ensure runtime socket dir: %w", err)
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = defaultProbeTimeout
	}
	probe := Client{Path: path, Timeout: opts.ProbeTimeout}

	for attempt := 0; attempt <= opts.Retries; attempt++ {
		listener, err := net.Listen("unix", path)
		if err == nil {
			_ = os.Chmod(path, 0o600)
			return &Owner{Listener: listener, path: path}, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) && !strings.Contains(err.Error(), "address already in use") {
			return nil, fmt.Errorf("listen unix %s: %w", path, err)
		}

		alive, probeErr := probe.Probe(ctx)
		switch {
		case alive:
			return nil, ErrAlreadyRunning
		case probeErr != nil:
			return nil, fmt.Errorf("probe existing socket %s: %w", path, probeErr)
		}

		if removeErr := os.Remove(path); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale socket %s: %w", path, removeErr)
		}
		if opts.OnStale != nil {
			_ = opts.OnStale(ctx)
		}

		if attempt < opts.Retries {
			backoff := time.Duration(25*(attempt+1)) * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return nil, fmt.Errorf("failed to acquire socket %s after %d retries", path, opts.Retries)
}
