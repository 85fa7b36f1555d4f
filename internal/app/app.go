package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"github.com/souhaylelhammadi/entretien/internal/api"
	"github.com/souhaylelhammadi/entretien/internal/audio"
	"github.com/souhaylelhammadi/entretien/internal/cli"
	"github.com/souhaylelhammadi/entretien/internal/config"
	"github.com/souhaylelhammadi/entretien/internal/doctor"
	"github.com/souhaylelhammadi/entretien/internal/indicator"
	"github.com/souhaylelhammadi/entretien/internal/ipc"
	"github.com/souhaylelhammadi/entretien/internal/logging"
	"github.com/souhaylelhammadi/entretien/internal/output"
	"github.com/souhaylelhammadi/entretien/internal/pipeline"
	"github.com/souhaylelhammadi/entretien/internal/session"
	"github.com/souhaylelhammadi/entretien/internal/tui"
	"github.com/souhaylelhammadi/entretien/internal/version"
)

const binaryName = "entretien"

// forwardTimeout bounds one control command sent to a running session.
const forwardTimeout = 220 * time.Millisecond

type Runner struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

func Execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	r := Runner{Stdin: stdin, Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText(binaryName))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText(binaryName))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	logRuntime, err := logging.New()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("load config failed", "error", err.Error())
		return 1
	}
	for _, w := range cfgLoaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"env_files", cfgLoaded.EnvFiles,
		"log", logRuntime.Path,
	)

	if parsed.Command.Control() {
		return r.forwardOrFail(ctx, string(parsed.Command))
	}

	switch parsed.Command {
	case cli.CommandStart:
		return r.commandStart(ctx, cfgLoaded.Config, parsed.InterviewID, logger)
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	case cli.CommandRecordings:
		return r.commandRecordings(ctx, cfgLoaded.Config, parsed.InterviewID, logger)
	case cli.CommandLogin:
		return r.commandLogin()
	case cli.CommandLogout:
		return r.commandLogout()
	case cli.CommandDoctor:
		report := doctor.Run(ctx, cfgLoaded)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandDevices:
		return r.commandDevices(ctx, cfgLoaded.Config)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func (r Runner) commandDevices(ctx context.Context, cfg config.Config) int {
	devices, err := audio.ListDevices(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no audio devices found")
		return 1
	}

	for _, device := range devices {
		defaultMark := " "
		if device.Default {
			defaultMark = "*"
		}
		availability := "yes"
		if !device.Available {
			availability = "no"
		}
		muted := "no"
		if device.Muted {
			muted = "yes"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			defaultMark,
			device.ID,
			device.Description,
			device.State,
			availability,
			muted,
		)
	}

	camera := "missing"
	if _, err := os.Stat(cfg.Video.Device); err == nil {
		camera = "present"
	}
	fmt.Fprintf(r.Stdout, "  camera=%s | %s\n", cfg.Video.Device, camera)
	return 0
}

func (r Runner) commandStatus(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	}

	resp, handled, err := tryForward(ctx, socketPath, ipc.CommandStatus)
	if handled {
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		if resp.State == "" {
			resp.State = "idle"
		}
		fmt.Fprintln(r.Stdout, formatStatus(resp))
		return 0
	}

	fmt.Fprintln(r.Stdout, "idle")
	return 0
}

func formatStatus(resp ipc.Response) string {
	parts := []string{resp.State}
	if resp.Total > 0 {
		parts = append(parts,
			fmt.Sprintf("question %d/%d", resp.Question, resp.Total),
			fmt.Sprintf("answered %d", resp.Answered),
			fmt.Sprintf("elapsed %ds", resp.Elapsed),
		)
	}
	if resp.Muted {
		parts = append(parts, "muted")
	}
	line := strings.Join(parts, " | ")
	if resp.LastError != "" {
		line += "\nerror: " + resp.LastError
	}
	return line
}

func (r Runner) forwardOrFail(ctx context.Context, command string) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	resp, handled, err := tryForward(ctx, socketPath, command)
	if !handled {
		fmt.Fprintf(r.Stderr, "error: no active %s session\n", binaryName)
		return 1
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

func (r Runner) commandStart(ctx context.Context, cfg config.Config, interviewID string, logger *slog.Logger) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	owner, err := ipc.Acquire(ctx, socketPath, ipc.AcquireOptions{ProbeTimeout: 180 * time.Millisecond, Retries: 8})
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer owner.Close()

	tokens, err := r.tokenStore()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	notifier := indicator.New(cfg.Indicator, logger)
	opts := pipeline.Options{
		InterviewID: interviewID,
		Tokens:      tokens,
		Indicator:   notifier,
		Logger:      logger,
	}

	var ui *tui.UI
	if cfg.Output.TUI && isTerminal(r.Stdin) && isTerminal(r.Stdout) {
		ui = tui.New(tui.Options{
			MaxDuration: time.Duration(cfg.Interview.MaxDurationS) * time.Second,
			Input:       r.Stdin,
			Output:      r.Stdout,
			AltScreen:   true,
		})
		opts.Observer = ui
		opts.Preview = ui
	} else {
		opts.Observer = newProgressPrinter(r.Stdout)
	}

	rt, err := pipeline.New(cfg, opts)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("session setup failed", "error", err.Error())
		return 1
	}
	defer func() { _ = rt.Close() }()

	controller := session.NewController(rt.Deps, rt.Options)

	serverCtx, serverCancel := context.WithCancel(ctx)
	defer serverCancel()

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- ipc.Serve(serverCtx, owner, controller)
	}()

	if ui != nil {
		ui.Attach(controller)
		uiErrCh := ui.Start()
		go func() {
			if err := <-uiErrCh; err != nil {
				logger.Warn("live view exited", "error", err.Error())
			}
		}()
	}

	result := controller.Run(ctx)
	if ui != nil {
		ui.Stop()
	}
	serverCancel()
	if serverErr := <-serverErrCh; serverErr != nil {
		fmt.Fprintf(r.Stderr, "error: ipc server failed: %v\n", serverErr)
		return 1
	}

	logSessionResult(logger, result)

	if err := output.Render(r.Stdout, result); err != nil {
		logger.Warn("render summary failed", "error", err.Error())
	}
	if cfg.Output.Clipboard && result.Err == nil {
		if err := output.NewCopier(logger).Copy(output.Summary(result)); err != nil {
			fmt.Fprintf(r.Stderr, "warning: %v\n", err)
		}
	}

	if result.Err != nil && !errors.Is(result.Err, context.Canceled) {
		fmt.Fprintf(r.Stderr, "error: %v\n", result.Err)
		return 1
	}
	return 0
}

func (r Runner) commandRecordings(ctx context.Context, cfg config.Config, interviewID string, logger *slog.Logger) int {
	tokens, err := r.tokenStore()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	client, err := api.NewClient(api.Options{
		BaseURL:    cfg.API.BaseURL,
		Timeout:    time.Duration(cfg.API.TimeoutMS) * time.Millisecond,
		HealthPath: cfg.API.HealthPath,
		Tokens:     tokens,
		Logger:     logger,
	})
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	recordings, err := client.ListRecordings(ctx, interviewID)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(recordings) == 0 {
		fmt.Fprintf(r.Stdout, "no recordings for interview %s\n", interviewID)
		return 0
	}

	tw := tabwriter.NewWriter(r.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tSTATUS\tDURATION\tVIDEO")
	for _, rec := range recordings {
		created := "-"
		if !rec.CreatedAt.IsZero() {
			created = rec.CreatedAt.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			rec.ID,
			created,
			valueOr(rec.Status, "-"),
			(time.Duration(rec.Duration) * time.Second).String(),
			valueOr(rec.VideoURL, "-"),
		)
	}
	if err := tw.Flush(); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func (r Runner) commandLogin() int {
	store, err := r.tokenStore()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	token, err := r.readToken()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: read token: %v\n", err)
		return 1
	}
	if err := store.Save(token); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	if exp, ok := api.TokenExpiry(token); ok {
		if !exp.After(time.Now()) {
			fmt.Fprintf(r.Stderr, "warning: token already expired at %s\n", exp.Format(time.RFC3339))
		} else {
			fmt.Fprintf(r.Stdout, "token saved (expires %s)\n", exp.Local().Format(time.RFC3339))
			return 0
		}
	}
	fmt.Fprintln(r.Stdout, "token saved")
	return 0
}

func (r Runner) commandLogout() int {
	store, err := r.tokenStore()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if err := store.Discard(); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	fmt.Fprintln(r.Stdout, "logged out")
	return 0
}

func (r Runner) tokenStore() (api.TokenStore, error) {
	path, err := api.DefaultTokenPath()
	if err != nil {
		return api.TokenStore{}, err
	}
	return api.TokenStore{Path: path}, nil
}

// readToken prompts without echo on a terminal, otherwise reads one line.
func (r Runner) readToken() (string, error) {
	if file, ok := r.Stdin.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		fmt.Fprint(r.Stderr, "Bearer token: ")
		raw, err := term.ReadPassword(int(file.Fd()))
		fmt.Fprintln(r.Stderr)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(raw)), nil
	}
	if r.Stdin == nil {
		return "", errors.New("no input")
	}
	line, err := bufio.NewReader(r.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func isTerminal(v any) bool {
	file, ok := v.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}

func valueOr(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func logSessionResult(logger *slog.Logger, result session.Result) {
	if logger == nil {
		return
	}
	fields := []any{
		"state", result.State,
		"interview_id", result.InterviewID,
		"cancelled", result.Cancelled,
		"timed_out", result.TimedOut,
		"started_at", result.StartedAt.Format(time.RFC3339Nano),
		"finished_at", result.FinishedAt.Format(time.RFC3339Nano),
		"duration_ms", result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
		"audio_device", result.AudioDevice,
		"video_bytes", result.VideoBytes,
		"question_count", result.Metadata.QuestionCount,
		"completed_questions", result.Metadata.CompletedQuestions,
		"answers", len(result.Metadata.Transcriptions),
		"video_url", result.Saved.VideoURL,
	}

	if result.Err != nil {
		logger.Error("session failed", append(fields, "error", result.Err.Error())...)
		return
	}
	logger.Info("session complete", fields...)
}

// tryForward sends command to a running session. handled is false when no
// session owns the socket.
func tryForward(ctx context.Context, socketPath string, command string) (ipc.Response, bool, error) {
	client := ipc.Client{Path: socketPath, Timeout: forwardTimeout}
	return client.Forward(ctx, command)
}
