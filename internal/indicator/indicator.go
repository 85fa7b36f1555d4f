// Package indicator handles visual state notifications and audio cue playback.
package indicator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/souhaylelhammadi/entretien/internal/config"
	"github.com/souhaylelhammadi/entretien/internal/hypr"
)

const (
	colorRecording = "rgb(89b4fa)"
	colorNarrating = "rgb(cba6f7)"
	colorListening = "rgb(a6e3a1)"
	colorUploading = "rgb(f9e2af)"
	colorError     = "rgb(f38ba8)"

	stickyTimeoutMS = 300000
)

// Notifier routes session state to Hyprland or desktop notifications and
// plays audio cues.
type Notifier struct {
	cfg      config.IndicatorConfig
	logger   *slog.Logger
	messages messages
	play     playFunc

	mu                    sync.Mutex
	focusedMonitor        string
	desktopNotificationID uint32
	soundMu               sync.Mutex
}

// New creates an indicator from config.
func New(cfg config.IndicatorConfig, logger *slog.Logger) *Notifier {
	return &Notifier{
		cfg:      cfg,
		logger:   logger,
		messages: indicatorMessagesFromEnv(),
		play:     playPCM,
	}
}

// ShowRecording signals that camera and microphone are live.
func (n *Notifier) ShowRecording(ctx context.Context) {
	if !n.cfg.Enable {
		return
	}
	n.ensureFocusedMonitor(ctx)
	n.run(ctx, func(ctx context.Context) error {
		return n.notify(ctx, hypr.IconInfo, stickyTimeoutMS, colorRecording, n.messages.recording)
	})
}

// ShowNarrating signals that a question is being read aloud.
func (n *Notifier) ShowNarrating(ctx context.Context) {
	n.show(ctx, colorNarrating, n.messages.narrating)
}

// ShowListening signals that the answer is being transcribed.
func (n *Notifier) ShowListening(ctx context.Context) {
	n.show(ctx, colorListening, n.messages.listening)
}

// ShowUploading signals finalization and upload.
func (n *Notifier) ShowUploading(ctx context.Context) {
	n.show(ctx, colorUploading, n.messages.uploading)
}

// ShowError displays an error-state indicator message.
func (n *Notifier) ShowError(ctx context.Context, text string) {
	if !n.cfg.Enable {
		return
	}
	text = n.messages.translate(text)
	if text == "" {
		text = n.messages.errorText
	}
	timeout := n.cfg.ErrorTimeoutMS
	if timeout <= 0 {
		timeout = 1200
	}
	n.run(ctx, func(ctx context.Context) error {
		return n.notify(ctx, hypr.IconError, timeout, colorError, text)
	})
}

// CueStart emits the session start cue.
func (n *Notifier) CueStart(ctx context.Context) {
	n.playCue(ctx, cueStart)
}

// CueNext emits the question advance cue.
func (n *Notifier) CueNext(ctx context.Context) {
	n.playCue(ctx, cueNext)
}

// CueComplete emits the successful-upload cue.
func (n *Notifier) CueComplete(ctx context.Context) {
	n.playCue(ctx, cueComplete)
}

// CueCancel emits the hangup cue.
func (n *Notifier) CueCancel(ctx context.Context) {
	n.playCue(ctx, cueCancel)
}

// Hide dismisses the active indicator surface.
func (n *Notifier) Hide(ctx context.Context) {
	if !n.cfg.Enable {
		return
	}
	n.run(ctx, n.dismiss)
}

// FocusedMonitor returns the monitor captured when recording began.
func (n *Notifier) FocusedMonitor() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.focusedMonitor
}

func (n *Notifier) show(ctx context.Context, color string, text string) {
	if !n.cfg.Enable {
		return
	}
	n.run(ctx, func(ctx context.Context) error {
		return n.notify(ctx, hypr.IconInfo, stickyTimeoutMS, color, text)
	})
}

// ensureFocusedMonitor resolves and caches the focused monitor once per session.
func (n *Notifier) ensureFocusedMonitor(ctx context.Context) {
	if !n.hyprBackend() {
		return
	}
	n.mu.Lock()
	alreadySet := n.focusedMonitor != ""
	n.mu.Unlock()
	if alreadySet {
		return
	}

	monitor, err := hypr.QueryFocusedMonitor(ctx)
	if err != nil {
		n.log("indicator focused monitor query failed", err)
		return
	}

	n.mu.Lock()
	n.focusedMonitor = monitor
	n.mu.Unlock()
}

func (n *Notifier) hyprBackend() bool {
	return !strings.EqualFold(strings.TrimSpace(n.cfg.Backend), "desktop")
}

// notify dispatches indicator output through the configured backend.
func (n *Notifier) notify(ctx context.Context, icon hypr.Icon, timeoutMS int, color string, text string) error {
	if !n.hyprBackend() {
		urgency, category := urgencyNormal, "x-entretien.session"
		if icon == hypr.IconError {
			urgency, category = urgencyCritical, "x-entretien.error"
		}
		return n.notifyDesktop(ctx, desktopNotification{
			Summary:   text,
			Urgency:   urgency,
			Category:  category,
			TimeoutMS: timeoutMS,
		})
	}
	return hypr.Notify(ctx, hypr.Notification{Icon: icon, TimeoutMS: timeoutMS, Color: color, Text: text})
}

// dismiss removes indicator output from the configured backend.
func (n *Notifier) dismiss(ctx context.Context) error {
	if !n.hyprBackend() {
		return n.dismissDesktop(ctx)
	}
	return hypr.DismissNotify(ctx)
}

// notifyDesktop sends a replaceable desktop notification and stores its ID.
func (n *Notifier) notifyDesktop(ctx context.Context, note desktopNotification) error {
	n.mu.Lock()
	note.ReplaceID = n.desktopNotificationID
	n.mu.Unlock()

	note.AppName = strings.TrimSpace(n.cfg.DesktopAppName)
	if note.AppName == "" {
		note.AppName = "entretien"
	}

	id, err := desktopNotify(ctx, note)
	if err != nil {
		return err
	}

	n.mu.Lock()
	n.desktopNotificationID = id
	n.mu.Unlock()
	return nil
}

// dismissDesktop closes the current desktop notification ID when present.
func (n *Notifier) dismissDesktop(ctx context.Context) error {
	n.mu.Lock()
	id := n.desktopNotificationID
	n.desktopNotificationID = 0
	n.mu.Unlock()

	if id == 0 {
		return nil
	}
	return desktopDismiss(ctx, id)
}

// run executes an indicator operation with a bounded timeout.
func (n *Notifier) run(ctx context.Context, fn func(context.Context) error) {
	runCtx, cancel := context.WithTimeout(ctx, 400*time.Millisecond)
	defer cancel()
	if err := fn(runCtx); err != nil {
		n.log("indicator dispatch failed", err)
	}
}

// playCue serializes cue playback and emits audio asynchronously. The cue
// outlives the caller's ctx so a hangup cue still plays during teardown.
func (n *Notifier) playCue(ctx context.Context, kind cueKind) {
	if !n.cfg.SoundEnable {
		return
	}
	cueCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	go func() {
		defer cancel()
		n.soundMu.Lock()
		defer n.soundMu.Unlock()
		if err := emitCue(cueCtx, kind, n.play); err != nil {
			n.log("indicator audio cue failed", err)
		}
	}()
}

// log emits debug-only indicator failures to the runtime logger.
func (n *Notifier) log(message string, err error) {
	if n.logger == nil || err == nil {
		return
	}
	n.logger.Debug(message, "error", err.Error())
}
