package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/audiolibrelab/looprec/internal/audio"
	"github.com/audiolibrelab/looprec/internal/config"
	"github.com/audiolibrelab/looprec/internal/metrics"
)

// Options configures a Controller
type Options struct {
	Preset audio.Preset
	Mode   config.ModeConfig
}

// Controller owns the capture and playback handles. At most one of them is
// set at any time and every switch between them runs as a transition guarded
// by UIState.IsLoading.
//
// Subscribers are called outside the state lock, in order, and must not call
// back into the controller synchronously.
type Controller struct {
	backend     audio.Backend
	permissions audio.Permissions
	storage     audio.Storage
	opts        Options

	permMu sync.Mutex

	mu          sync.Mutex
	state       UIState
	capture     audio.CaptureHandle
	captureGen  uint64
	playback    audio.PlaybackHandle
	playbackGen uint64
	transport   bool // a play/pause/stop call is in flight
	closed      bool
	inflight    sync.WaitGroup

	notifyMu    sync.Mutex
	subscribers map[int]func(UIState)
	nextSub     int
}

func New(backend audio.Backend, permissions audio.Permissions, storage audio.Storage, opts Options) *Controller {
	c := &Controller{
		backend:     backend,
		permissions: permissions,
		storage:     storage,
		opts:        opts,
		state:       initialState(),
		subscribers: make(map[int]func(UIState)),
	}
	metrics.ObserveSessionKind(KindIdle.String(), allKinds)
	return c
}

// State returns a snapshot of the UI state
func (c *Controller) State() UIState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers fn for every state change. The returned func removes it;
// once it returns fn is not called again.
func (c *Controller) Subscribe(fn func(UIState)) func() {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	id := c.nextSub
	c.nextSub++
	c.subscribers[id] = fn

	return func() {
		c.notifyMu.Lock()
		delete(c.subscribers, id)
		c.notifyMu.Unlock()
	}
}

// update applies fn under the state lock and notifies subscribers when fn
// reports a change.
func (c *Controller) update(fn func(s *UIState) bool) {
	c.mu.Lock()
	if !fn(&c.state) {
		c.mu.Unlock()
		return
	}
	c.syncKindLocked()
	snapshot := c.state

	// taking notifyMu before releasing mu keeps notifications in state order
	c.notifyMu.Lock()
	c.mu.Unlock()
	defer c.notifyMu.Unlock()

	for _, sub := range c.subscribers {
		sub(snapshot)
	}
}

func (c *Controller) syncKindLocked() {
	kind := KindIdle
	switch {
	case c.capture != nil:
		kind = KindRecording
	case c.playback != nil:
		kind = KindPlayback
	}
	if kind != c.state.Session {
		metrics.ObserveSessionKind(kind.String(), allKinds)
	}
	c.state.Session = kind
}

// RequestPermission asks for the microphone once. Later calls return the
// first answer.
func (c *Controller) RequestPermission(ctx context.Context) (bool, error) {
	c.permMu.Lock()
	defer c.permMu.Unlock()

	if s := c.State(); s.PermissionAsked {
		return s.HavePermission, nil
	}

	granted, err := c.permissions.RequestMicrophone(ctx)
	if err != nil {
		return false, errors.Wrap(err, "microphone permission request failed")
	}

	c.update(func(s *UIState) bool {
		s.PermissionAsked = true
		s.HavePermission = granted
		return true
	})

	if granted {
		slog.Info("Microphone permission granted")
	} else {
		slog.Warn("Microphone permission denied")
	}
	return granted, nil
}

// checkUsableLocked reports the errors every control shares
func (c *Controller) checkUsableLocked() error {
	switch {
	case c.closed:
		return ErrClosed
	case !c.state.HavePermission:
		return ErrPermissionDenied
	case c.state.IsLoading || c.transport:
		return ErrBusy
	}
	return nil
}

// beginTransition sets the busy flag. The returned func clears it and must be
// deferred by the caller with a pointer to its result.
func (c *Controller) beginTransition(op string, precondition func() error) (func(*error), error) {
	var err error
	c.update(func(s *UIState) bool {
		err = c.checkUsableLocked()
		if err == nil && precondition != nil {
			err = precondition()
		}
		if err != nil {
			return false
		}
		c.inflight.Add(1)
		s.IsLoading = true
		return true
	})
	if err != nil {
		metrics.TransitionsTotal.WithLabelValues(op, resultLabel(err)).Inc()
		return nil, err
	}
	metrics.Busy.Set(1)
	start := time.Now()
	slog.Debug("Transition started", "operation", op)

	return func(errp *error) {
		c.update(func(s *UIState) bool {
			s.IsLoading = false
			return true
		})
		metrics.Busy.Set(0)
		c.inflight.Done()

		var err error
		if errp != nil {
			err = *errp
		}
		metrics.TransitionsTotal.WithLabelValues(op, resultLabel(err)).Inc()
		metrics.TransitionDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		slog.Debug("Transition finished", "operation", op, "duration", time.Since(start), "error", err)
	}, nil
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrPermissionDenied):
		return "denied"
	case errors.Is(err, ErrNoDataCollected):
		return "no_data"
	default:
		return "error"
	}
}

// BeginRecording tears down playback and starts a new capture
func (c *Controller) BeginRecording(ctx context.Context) (err error) {
	done, err := c.beginTransition("begin_recording", nil)
	if err != nil {
		return err
	}
	defer done(&err)

	c.teardownPlayback(ctx)

	if err := c.backend.SetAudioMode(ctx, audio.RecordingMode(c.opts.Mode)); err != nil {
		return fault(ErrCaptureFault, err, "failed to set recording audio mode")
	}

	c.mu.Lock()
	prior := c.capture
	c.mu.Unlock()
	if prior != nil {
		c.releaseCapture(prior)
	}

	capture := c.backend.NewCapture(c.opts.Preset)
	if err := capture.Prepare(ctx); err != nil {
		capture.Release()
		return fault(ErrCaptureFault, err, "failed to prepare recording")
	}

	c.attachCapture(capture)

	if err := capture.Start(ctx); err != nil {
		c.releaseCapture(capture)
		return fault(ErrCaptureFault, err, "failed to start recording")
	}

	slog.Info("Recording", "id", capture.ID(), "preset", c.opts.Preset.Name)
	return nil
}

// attachCapture makes h the owned capture handle and subscribes to its status
func (c *Controller) attachCapture(h audio.CaptureHandle) {
	var gen uint64
	c.update(func(s *UIState) bool {
		c.captureGen++
		gen = c.captureGen
		c.capture = h
		s.Artifact = h.ArtifactURI()
		s.RecordingMillis = 0
		return true
	})
	h.SetStatusCallback(c.captureStatus(gen))
}

// releaseCapture detaches and releases h and empties the capture slot.
// Callbacks already in flight are dropped by the generation check.
func (c *Controller) releaseCapture(h audio.CaptureHandle) {
	c.update(func(s *UIState) bool {
		if c.capture == h {
			c.captureGen++
			c.capture = nil
		}
		s.IsRecording = false
		return true
	})
	h.SetStatusCallback(nil)
	if err := h.Release(); err != nil {
		slog.Warn("Failed to release recording", "id", h.ID(), "error", err)
	}
}

func (c *Controller) captureStatus(gen uint64) func(audio.RecordingStatus) {
	return func(status audio.RecordingStatus) {
		autoEnd := false
		c.update(func(s *UIState) bool {
			if c.captureGen != gen || c.capture == nil {
				return false
			}
			switch {
			case status.CanRecord:
				s.IsRecording = status.IsRecording
				s.RecordingMillis = status.DurationMillis
			case status.IsDoneRecording:
				s.IsRecording = false
				s.RecordingMillis = status.DurationMillis
				if !s.IsLoading && !c.closed {
					autoEnd = true
					c.inflight.Add(1)
				}
			default:
				return false
			}
			return true
		})

		if autoEnd {
			go c.autoEnd()
		}
	}
}

// autoEnd finishes a recording that ended on its own
func (c *Controller) autoEnd() {
	defer c.inflight.Done()

	slog.Info("Recording finished by the platform, enabling playback")
	err := c.EndRecordingAndEnablePlayback(context.Background())
	if err != nil && !errors.Is(err, ErrBusy) && !errors.Is(err, ErrNoRecording) && !errors.Is(err, ErrClosed) {
		slog.Warn("Automatic end of recording failed", "error", err)
	}
}

// EndRecordingAndEnablePlayback stops the capture and loads its artifact for
// looped playback. When stop fails the session returns to idle.
func (c *Controller) EndRecordingAndEnablePlayback(ctx context.Context) (err error) {
	done, err := c.beginTransition("end_recording", func() error {
		if c.capture == nil {
			return ErrNoRecording
		}
		return nil
	})
	if err != nil {
		return err
	}
	defer done(&err)

	c.mu.Lock()
	capture := c.capture
	c.mu.Unlock()

	uri := capture.ArtifactURI()
	stopErr := capture.Stop(ctx)
	c.releaseCapture(capture)

	if stopErr != nil {
		if errors.Is(stopErr, audio.ErrNoDataCollected) {
			slog.Info("Stop was called too quickly, no data has yet been received", "error", stopErr)
			return stopErr
		}
		slog.Error("Stop error", "id", capture.ID(), "error", stopErr)
		return fault(ErrCaptureFault, stopErr, "failed to stop recording")
	}

	c.logFileInfo(uri)

	if err := c.backend.SetAudioMode(ctx, audio.PlaybackMode(c.opts.Mode)); err != nil {
		return fault(ErrPlaybackFault, err, "failed to set playback audio mode")
	}

	var gen uint64
	c.update(func(s *UIState) bool {
		c.playbackGen++
		gen = c.playbackGen
		return false
	})

	playback, status, err := c.backend.LoadPlayback(ctx, uri, audio.PlaybackOptions{
		Looping: true,
		Volume:  1.0,
	}, c.playbackStatus(gen))
	if err != nil {
		c.update(func(s *UIState) bool {
			if c.playbackGen == gen {
				c.playbackGen++
			}
			s.IsPlaybackAllowed = false
			s.IsPlaying = false
			s.ShouldPlay = false
			return true
		})
		slog.Error("Failed to load recording for playback", "file", uri, "error", err)
		return fault(ErrPlaybackFault, err, "failed to load recording")
	}

	c.update(func(s *UIState) bool {
		c.playback = playback
		applyPlaybackStatus(s, status)
		return true
	})

	slog.Info("Playback ready", "file", uri)
	return nil
}

func (c *Controller) logFileInfo(uri string) {
	info, err := c.storage.Info(uri)
	if err != nil {
		slog.Warn("Failed to read recording info", "file", uri, "error", err)
		return
	}
	slog.Info("File info", "file", info.URI, "exists", info.Exists, "size", info.Size, "duration", info.Duration)
	if info.Exists {
		metrics.RecordingBytes.Observe(float64(info.Size))
	}
}

func (c *Controller) playbackStatus(gen uint64) func(audio.PlaybackStatus) {
	return func(status audio.PlaybackStatus) {
		c.update(func(s *UIState) bool {
			if c.playbackGen != gen {
				return false
			}
			applyPlaybackStatus(s, status)
			return true
		})
	}
}

func applyPlaybackStatus(s *UIState, status audio.PlaybackStatus) {
	if !status.IsLoaded {
		s.IsPlaybackAllowed = false
		s.IsPlaying = false
		if status.Error != "" {
			slog.Error("Fatal player error", "error", status.Error)
		}
		return
	}
	s.ShouldPlay = status.ShouldPlay
	s.IsPlaying = status.IsPlaying
	s.Rate = status.Rate
	s.Volume = status.Volume
	s.Muted = status.Muted
	s.IsPlaybackAllowed = true
}

// teardownPlayback stops, detaches and unloads the playback handle, if any
func (c *Controller) teardownPlayback(ctx context.Context) {
	c.mu.Lock()
	playback := c.playback
	c.mu.Unlock()
	if playback == nil {
		return
	}

	if err := playback.Stop(ctx); err != nil {
		slog.Warn("Failed to stop playback", "id", playback.ID(), "error", err)
	}

	c.update(func(s *UIState) bool {
		c.playbackGen++
		return false
	})
	playback.SetStatusCallback(nil)

	if err := playback.Unload(ctx); err != nil {
		slog.Warn("Failed to unload playback", "id", playback.ID(), "error", err)
	}

	c.update(func(s *UIState) bool {
		c.playback = nil
		s.IsPlaybackAllowed = false
		s.IsPlaying = false
		s.ShouldPlay = false
		return true
	})
}

// PressRecord is the record button: it begins a recording, or ends the
// current one and enables playback.
func (c *Controller) PressRecord(ctx context.Context) error {
	if c.State().Session == KindRecording {
		return c.EndRecordingAndEnablePlayback(ctx)
	}
	return c.BeginRecording(ctx)
}

// beginTransport reserves the playback handle for a transport command. A nil
// handle means there is nothing to control.
func (c *Controller) beginTransport(op string) (audio.PlaybackHandle, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkUsableLocked(); err != nil {
		metrics.TransitionsTotal.WithLabelValues(op, resultLabel(err)).Inc()
		return nil, false, err
	}
	if c.playback == nil {
		return nil, false, nil
	}
	c.transport = true
	return c.playback, c.state.IsPlaying, nil
}

func (c *Controller) endTransport(op string, err error) {
	c.mu.Lock()
	c.transport = false
	c.mu.Unlock()
	metrics.TransitionsTotal.WithLabelValues(op, resultLabel(err)).Inc()
}

// TogglePlayPause pauses when playing and plays otherwise. Without a loaded
// recording it does nothing.
func (c *Controller) TogglePlayPause(ctx context.Context) (err error) {
	playback, playing, err := c.beginTransport("play_pause")
	if err != nil || playback == nil {
		return err
	}
	defer func() { c.endTransport("play_pause", err) }()

	if playing {
		err = playback.Pause(ctx)
	} else {
		err = playback.Play(ctx)
	}
	if err != nil {
		return fault(ErrPlaybackFault, err, "play/pause failed")
	}
	return nil
}

// StopPlayback stops the transport; the recording stays loaded
func (c *Controller) StopPlayback(ctx context.Context) (err error) {
	playback, _, err := c.beginTransport("stop")
	if err != nil || playback == nil {
		return err
	}
	defer func() { c.endTransport("stop", err) }()

	if err := playback.Stop(ctx); err != nil {
		return fault(ErrPlaybackFault, err, "stop failed")
	}
	return nil
}

// Close waits for in-flight transitions and tears down whichever handle is
// owned. The controller is unusable afterwards.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.inflight.Wait()

	c.mu.Lock()
	capture := c.capture
	c.mu.Unlock()

	if capture != nil {
		if err := capture.Stop(ctx); err != nil {
			slog.Debug("Recording stopped on close", "error", err)
		}
		c.releaseCapture(capture)
	}
	c.teardownPlayback(ctx)
	return nil
}
