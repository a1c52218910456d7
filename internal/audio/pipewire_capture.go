package audio

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// Artifacts at or below this size hold a container header and no audio
const minArtifactBytes = 1024

type captureState int

const (
	captureIdle captureState = iota
	capturePrepared
	captureRecording
	captureDone
	captureReleased
)

func (s captureState) String() string {
	switch s {
	case captureIdle:
		return "idle"
	case capturePrepared:
		return "prepared"
	case captureRecording:
		return "recording"
	case captureDone:
		return "done"
	case captureReleased:
		return "released"
	default:
		return "unknown"
	}
}

// pipeWireCapture records the configured sources with ffmpeg through pw-jack
type pipeWireCapture struct {
	id      string
	backend *PipeWireBackend
	preset  Preset
	sources []string

	mu        sync.Mutex
	cb        func(RecordingStatus)
	state     captureState
	path      string
	proc      *process
	startedAt time.Time
	stoppedAt time.Time

	stopPoll      chan struct{}
	pollDone      chan struct{}
	cancelConnect context.CancelFunc
}

func (h *pipeWireCapture) ID() string {
	return h.id
}

func (h *pipeWireCapture) ArtifactURI() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.path
}

// SetStatusCallback replaces the callback. A status snapshot taken before the
// swap may still be delivered to the old callback.
func (h *pipeWireCapture) SetStatusCallback(cb func(RecordingStatus)) {
	h.mu.Lock()
	h.cb = cb
	h.mu.Unlock()
}

func (h *pipeWireCapture) emit(status RecordingStatus) {
	h.mu.Lock()
	cb := h.cb
	h.mu.Unlock()
	if cb != nil {
		cb(status)
	}
}

// clientName is the JACK client ffmpeg registers as
func (h *pipeWireCapture) clientName() string {
	return "looprec_" + h.id[:8]
}

func (h *pipeWireCapture) Prepare(ctx context.Context) error {
	h.mu.Lock()
	if h.state != captureIdle {
		state := h.state
		h.mu.Unlock()
		return errors.Newf("cannot prepare capture handle in state %s", state)
	}

	if !h.backend.Mode().AllowCaptureOnIOS {
		h.mu.Unlock()
		return ErrCaptureDisabled
	}

	for _, tool := range []string{"pw-jack", "ffmpeg"} {
		if _, err := h.backend.lookPath(tool); err != nil {
			h.mu.Unlock()
			return errors.Wrapf(err, "%s is required for recording", tool)
		}
	}

	dir := h.backend.cfg.Output.Directory
	if err := h.backend.fs.MkdirAll(dir, 0755); err != nil {
		h.mu.Unlock()
		return errors.Wrap(err, "failed to create output directory")
	}

	h.path = filepath.Join(dir, fmt.Sprintf("looprec-%s.%s", h.id, h.preset.Extension))
	h.backend.retireArtifact(h.path)
	h.state = capturePrepared
	h.mu.Unlock()

	slog.Debug("Capture prepared", "id", h.id, "file", h.path, "preset", h.preset.String())
	h.emit(RecordingStatus{CanRecord: true})
	return nil
}

func (h *pipeWireCapture) ffmpegArgs() []string {
	return []string{
		"ffmpeg",
		"-f", "jack",
		"-channels", strconv.Itoa(h.preset.Channels),
		"-i", h.clientName(),
		"-ar", strconv.Itoa(h.preset.SampleRate),
		"-c:a", h.preset.Codec,
		"-y",
		h.path,
	}
}

func (h *pipeWireCapture) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.state != capturePrepared {
		h.mu.Unlock()
		return ErrNotPrepared
	}

	proc, err := h.backend.startProcess("pw-jack", h.ffmpegArgs(), h.backend.env())
	if err != nil {
		h.mu.Unlock()
		return err
	}

	connectCtx, cancel := context.WithCancel(context.Background())
	h.proc = proc
	h.state = captureRecording
	h.startedAt = h.backend.clock.Now()
	h.stopPoll = make(chan struct{})
	h.pollDone = make(chan struct{})
	h.cancelConnect = cancel
	go h.pollLoop(h.stopPoll, h.pollDone)
	go h.connectSources(connectCtx)
	h.mu.Unlock()

	slog.Info("Recording started", "id", h.id, "file", h.path, "sources", h.sources)
	h.emit(RecordingStatus{CanRecord: true, IsRecording: true})
	return nil
}

// connectSources links each configured source to the matching ffmpeg input
func (h *pipeWireCapture) connectSources(ctx context.Context) {
	pw := h.backend.pipewire
	for i, source := range h.sources {
		destPort := fmt.Sprintf("%s:input_%d", h.clientName(), i+1)

		if err := pw.WaitForPort(ctx, destPort, 5*time.Second); err != nil {
			slog.Error("FFmpeg JACK port did not appear", "port", destPort, "error", err)
			continue
		}
		if err := pw.ConnectPortsWithRetry(ctx, source, destPort); err != nil {
			slog.Error("Failed to connect source", "source", source, "dest", destPort, "error", err)
			continue
		}
		slog.Debug("Connected source", "source", source, "dest", destPort)
	}
}

func (h *pipeWireCapture) pollLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := h.backend.clock.NewTicker(h.backend.statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			if h.poll() {
				return
			}
		}
	}
}

// poll reports progress and ends the recording when the process died or the
// preset size limit was reached. It returns true once polling should stop.
func (h *pipeWireCapture) poll() bool {
	h.mu.Lock()
	if h.state != captureRecording {
		h.mu.Unlock()
		return true
	}
	proc := h.proc
	elapsed := h.durationLocked()
	h.mu.Unlock()

	size := h.artifactSize()

	if proc != nil && proc.Exited() {
		slog.Warn("Capture process exited unexpectedly", "id", h.id, "error", proc.Err())
		h.finish()
		return true
	}

	if limit := h.preset.MaxFileSize; limit > 0 && size >= limit {
		slog.Info("Recording reached max file size", "id", h.id, "size", size, "limit", limit)
		h.finish()
		return true
	}

	h.emit(RecordingStatus{
		CanRecord:      true,
		IsRecording:    true,
		DurationMillis: elapsed.Milliseconds(),
		SizeBytes:      size,
	})
	return false
}

// finish ends a recording that stopped on its own
func (h *pipeWireCapture) finish() {
	h.mu.Lock()
	if h.state != captureRecording {
		h.mu.Unlock()
		return
	}
	proc := h.proc
	h.mu.Unlock()

	if proc != nil {
		if err := proc.Interrupt(stopTimeout); err != nil {
			slog.Warn("Capture process did not stop cleanly", "id", h.id, "error", err)
		}
	}

	h.mu.Lock()
	h.markDoneLocked()
	elapsed := h.durationLocked()
	h.mu.Unlock()

	h.emit(RecordingStatus{
		IsDoneRecording: true,
		DurationMillis:  elapsed.Milliseconds(),
		SizeBytes:       h.artifactSize(),
	})
}

func (h *pipeWireCapture) markDoneLocked() {
	if h.state == captureRecording {
		h.stoppedAt = h.backend.clock.Now()
	}
	h.state = captureDone
	if h.cancelConnect != nil {
		h.cancelConnect()
	}
}

func (h *pipeWireCapture) durationLocked() time.Duration {
	switch {
	case h.startedAt.IsZero():
		return 0
	case h.state == captureRecording:
		return h.backend.clock.Since(h.startedAt)
	default:
		return h.stoppedAt.Sub(h.startedAt)
	}
}

func (h *pipeWireCapture) artifactSize() int64 {
	h.mu.Lock()
	path := h.path
	h.mu.Unlock()

	if path == "" {
		return 0
	}
	info, err := h.backend.fs.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// stopPolling stops the status poller and waits for it to exit
func (h *pipeWireCapture) stopPolling() {
	h.mu.Lock()
	stop, done := h.stopPoll, h.pollDone
	h.stopPoll = nil
	h.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (h *pipeWireCapture) Stop(ctx context.Context) error {
	h.mu.Lock()
	switch h.state {
	case captureRecording, captureDone:
	case captureReleased:
		h.mu.Unlock()
		return ErrReleased
	default:
		h.mu.Unlock()
		return ErrNotRecording
	}
	proc := h.proc
	h.mu.Unlock()

	h.stopPolling()

	var procErr error
	if proc != nil {
		procErr = proc.Interrupt(stopTimeout)
	}

	h.mu.Lock()
	h.markDoneLocked()
	elapsed := h.durationLocked()
	h.mu.Unlock()

	size := h.artifactSize()
	h.emit(RecordingStatus{
		IsDoneRecording: true,
		DurationMillis:  elapsed.Milliseconds(),
		SizeBytes:       size,
	})

	if procErr != nil {
		return procErr
	}
	if size <= minArtifactBytes {
		return errors.Wrapf(ErrNoDataCollected, "recording %s holds %d bytes", h.path, size)
	}

	slog.Info("Recording stopped", "id", h.id, "file", h.path, "size", size, "duration", elapsed)
	return nil
}

// Release frees the process and poller. The artifact stays on disk for
// playback until the next recording replaces it.
func (h *pipeWireCapture) Release() error {
	h.stopPolling()

	h.mu.Lock()
	proc := h.proc
	h.proc = nil
	if h.cancelConnect != nil {
		h.cancelConnect()
	}
	h.state = captureReleased
	h.cb = nil
	h.mu.Unlock()

	if proc != nil {
		proc.Kill()
	}
	return nil
}
