package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/souhaylelhammadi/entretien/internal/api"
	"github.com/souhaylelhammadi/entretien/internal/fsm"
	"github.com/souhaylelhammadi/entretien/internal/interview"
	"github.com/souhaylelhammadi/entretien/internal/media"
	"github.com/souhaylelhammadi/entretien/internal/recorder"
)

// acquire opens camera and microphone, starts the recorder, and narrates
// the current question. Failures leave the session in the error state.
func (c *Controller) acquire(ctx context.Context, event fsm.Event) {
	if err := c.transition(event); err != nil {
		c.logger.Warn("acquire rejected", "error", err)
		return
	}

	stream, err := c.deps.Media.Acquire(ctx)
	if err != nil {
		c.failMedia(ctx, err)
		return
	}
	c.stream = stream

	if c.bridge != nil {
		_, _ = c.bridge.Stop(ctx)
	}
	bridge, err := c.deps.Bridge(stream.Audio(), c.events)
	if err != nil {
		c.bridge = nil
		c.failMedia(ctx, fmt.Errorf("speech recognizer: %w", err))
		return
	}
	c.bridge = bridge

	if err := c.startRecorder(ctx); err != nil {
		c.failMedia(ctx, err)
		return
	}

	_ = c.store.SetFlag(interview.FlagWebcamActive, true)
	_ = c.store.SetFlag(interview.FlagCameraError, false)
	_ = c.store.SetFlag(interview.FlagStarted, true)
	_ = c.store.SetFlag(interview.FlagMuted, false)
	c.store.ClearError()
	if err := c.transition(fsm.EventAcquired); err != nil {
		c.logger.Error("acquired transition rejected", "error", err)
		return
	}

	info := stream.Info()
	c.logger.Info("media acquired",
		"stream_id", info.ID,
		"video_device", info.VideoDevice,
		"audio_device", info.AudioDevice,
		"mime_type", info.MimeType,
	)
	c.deps.Indicator.CueStart(ctx)
	c.deps.Indicator.ShowRecording(ctx)
	c.narrateCurrent(ctx)
}

func (c *Controller) startRecorder(ctx context.Context) error {
	segment, err := c.stream.NextSegment(ctx)
	if err != nil {
		return err
	}
	if err := c.deps.Recorder.Start(segment); err != nil {
		_ = segment.Close()
		return fmt.Errorf("start recorder: %w", err)
	}
	c.recording = true
	_ = c.store.SetFlag(interview.FlagRecording, true)
	return nil
}

// failMedia releases whatever was acquired and waits for retry or hangup.
func (c *Controller) failMedia(ctx context.Context, err error) {
	c.logger.Error("media acquisition failed", "error", err)
	c.releaseStream()
	_ = c.store.SetFlag(interview.FlagCameraError, true)
	_ = c.store.SetFlag(interview.FlagWebcamActive, true)
	_ = c.store.SetFlag(interview.FlagRecording, false)
	c.store.SetError(err.Error())

	message := "Camera or microphone unavailable"
	if !errors.Is(err, media.ErrMediaAccess) {
		message = "Unable to start recording"
	}
	c.deps.Indicator.ShowError(ctx, message)
	_ = c.transition(fsm.EventFail)
}

func (c *Controller) releaseStream() {
	if c.stream == nil {
		return
	}
	if err := c.stream.Release(); err != nil {
		c.logger.Warn("media release failed", "error", err)
	}
	c.stream = nil
}

// beginFinalize stops everything feeding the artifact and hands the
// recorder drain to a helper.
func (c *Controller) beginFinalize(ctx context.Context) {
	c.cancelNarration()
	c.listen = listenRef{}
	if err := c.transition(fsm.EventFinalize); err != nil {
		c.logger.Error("finalize rejected", "error", err)
		return
	}
	_ = c.store.SetFlag(interview.FlagProcessing, true)
	_ = c.store.SetFlag(interview.FlagListening, false)
	c.deps.Indicator.ShowUploading(ctx)

	timeout := c.opts.StopTimeout
	c.spawn(func(hctx context.Context) {
		stopCtx, cancel := context.WithTimeout(hctx, timeout)
		defer cancel()
		artifact, err := c.deps.Recorder.Stop(stopCtx)
		c.events.post(recorderStopped{artifact: artifact, err: err})
	})
}

func (c *Controller) onRecorderStopped(ctx context.Context, ev recorderStopped) {
	if c.State() != fsm.StateFinalizing {
		return
	}
	c.recording = false
	_ = c.store.SetFlag(interview.FlagRecording, false)

	switch {
	case errors.Is(ev.err, recorder.ErrEmptyRecording):
		c.logger.Warn("empty recording; restarting recorder", "error", ev.err)
		c.store.SetError(ev.err.Error())
		c.deps.Indicator.ShowError(ctx, "Nothing was recorded")
		if err := c.startRecorder(ctx); err != nil {
			c.failMedia(ctx, err)
			return
		}
		_ = c.transition(fsm.EventResume)
		_ = c.store.SetFlag(interview.FlagProcessing, false)
		c.timedOut = false
		c.narrateCurrent(ctx)
		return
	case ev.err != nil || ev.artifact.Size() == 0:
		err := ErrMissingArtifact
		if ev.err != nil {
			err = fmt.Errorf("%w: %w", ErrMissingArtifact, ev.err)
		}
		c.logger.Error("finalize failed", "error", err)
		c.store.SetError(err.Error())
		c.deps.Indicator.ShowError(ctx, "No recording to upload")
		_ = c.store.SetFlag(interview.FlagProcessing, false)
		_ = c.transition(fsm.EventFail)
		return
	}

	st := c.store.Snapshot()
	meta := interview.BuildMetadata(c.opts.InterviewID, st, c.opts.Now())
	c.pending = &api.SaveRequest{
		InterviewID:    c.opts.InterviewID,
		Video:          ev.artifact.Data,
		Filename:       c.opts.Filename,
		MimeType:       c.streamInfo().MimeType,
		Metadata:       meta,
		IdempotencyKey: uuid.NewString(),
	}
	c.logger.Info("recording finalized",
		"bytes", ev.artifact.Size(),
		"chunks", ev.artifact.Chunks,
		"completed_questions", meta.CompletedQuestions,
		"transcriptions", len(meta.Transcriptions),
	)
	c.upload()
}

func (c *Controller) upload() {
	req := *c.pending
	c.spawn(func(hctx context.Context) {
		result, err := c.deps.Backend.SaveInterview(hctx, req)
		c.events.post(uploadDone{result: result, err: err})
	})
}

func (c *Controller) onUploadDone(ctx context.Context, ev uploadDone) {
	if c.State() != fsm.StateFinalizing || c.pending == nil {
		return
	}
	if ev.err != nil {
		message := ev.err.Error()
		var uploadErr *api.UploadError
		if errors.As(ev.err, &uploadErr) && uploadErr.Message != "" {
			message = uploadErr.Message
		}
		c.logger.Error("upload failed", "error", ev.err, "idempotency_key", c.pending.IdempotencyKey)
		c.store.SetError(message)
		_ = c.store.SetFlag(interview.FlagProcessing, false)
		c.deps.Indicator.ShowError(ctx, message)
		_ = c.transition(fsm.EventFail)
		return
	}

	req := c.pending
	c.pending = nil
	info := c.streamInfo()
	c.releaseStream()
	c.store.Reset()
	_ = c.transition(fsm.EventFinalized)
	c.deps.Indicator.CueComplete(ctx)
	c.deps.Indicator.Hide(ctx)
	c.logger.Info("interview saved", "video_url", ev.result.VideoURL, "status", ev.result.Status)

	c.result = &Result{
		Metadata:    req.Metadata,
		Saved:       ev.result,
		VideoBytes:  len(req.Video),
		AudioDevice: info.AudioDevice,
	}
}

// retry resubmits a failed upload, or reacquires media otherwise.
func (c *Controller) retry(ctx context.Context) {
	if c.State() != fsm.StateError {
		return
	}
	c.store.ClearError()
	if c.pending != nil {
		if err := c.transition(fsm.EventRetryUpload); err != nil {
			c.logger.Warn("retry rejected", "error", err)
			return
		}
		_ = c.store.SetFlag(interview.FlagProcessing, true)
		c.deps.Indicator.ShowUploading(ctx)
		c.logger.Info("retrying upload", "idempotency_key", c.pending.IdempotencyKey)
		c.upload()
		return
	}

	c.releaseStream()
	c.logger.Info("retrying media acquisition")
	c.acquire(ctx, fsm.EventRetryAcquire)
}

// teardown stops every component. It is idempotent.
func (c *Controller) teardown() {
	c.cancelNarration()
	c.listen = listenRef{}
	c.cancelHelpers()
	c.helpers.Wait()

	stopCtx, cancel := context.WithTimeout(context.Background(), c.opts.StopTimeout)
	defer cancel()

	if c.bridge != nil {
		if _, err := c.bridge.Stop(stopCtx); err != nil {
			c.logger.Warn("recognizer stop failed", "error", err)
		}
	}
	if c.recording {
		c.recording = false
		_, err := c.deps.Recorder.Stop(stopCtx)
		if err != nil && !errors.Is(err, recorder.ErrEmptyRecording) && !errors.Is(err, recorder.ErrNotRecording) {
			c.logger.Warn("recorder stop failed", "error", err)
		}
	}
	c.releaseStream()

	for _, flag := range []interview.Flag{interview.FlagRecording, interview.FlagListening, interview.FlagSpeaking, interview.FlagProcessing} {
		_ = c.store.SetFlag(flag, false)
	}
	if err := c.transition(fsm.EventHangup); err == nil {
		hideCtx, cancelHide := context.WithTimeout(context.Background(), c.opts.StopTimeout)
		defer cancelHide()
		c.deps.Indicator.CueCancel(hideCtx)
		c.deps.Indicator.Hide(hideCtx)
		c.logger.Info("session hung up", "elapsed_s", c.elapsed)
	}
}

func (c *Controller) streamInfo() media.Info {
	if c.stream == nil {
		return media.Info{}
	}
	return c.stream.Info()
}
