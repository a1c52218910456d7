package audio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"syscall"

	"github.com/cockroachdb/errors"
)

// pipeWirePlayer plays a recording through an external player. Pausing
// suspends the player process; stopping ends it so the next Play starts from
// the beginning.
type pipeWirePlayer struct {
	id      string
	backend *PipeWireBackend
	uri     string
	player  string
	opts    PlaybackOptions

	mu         sync.Mutex
	cb         func(PlaybackStatus)
	proc       *process
	paused     bool
	loaded     bool
	shouldPlay bool
	lastErr    string
}

func (h *pipeWirePlayer) ID() string {
	return h.id
}

func (h *pipeWirePlayer) SetStatusCallback(cb func(PlaybackStatus)) {
	h.mu.Lock()
	h.cb = cb
	h.mu.Unlock()
}

// Status returns the current transport state
func (h *pipeWirePlayer) Status() PlaybackStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.statusLocked()
}

func (h *pipeWirePlayer) statusLocked() PlaybackStatus {
	if !h.loaded {
		return PlaybackStatus{Error: h.lastErr}
	}
	return PlaybackStatus{
		IsLoaded:   true,
		ShouldPlay: h.shouldPlay,
		IsPlaying:  h.proc != nil && !h.paused,
		IsLooping:  h.opts.Looping,
		Rate:       1.0,
		Volume:     h.opts.Volume,
		Muted:      h.opts.Muted,
	}
}

// emit snapshots the status and callback under the lock and delivers outside it
func (h *pipeWirePlayer) emit() {
	h.mu.Lock()
	cb := h.cb
	status := h.statusLocked()
	h.mu.Unlock()
	if cb != nil {
		cb(status)
	}
}

// volume scales the requested volume by the configured output volume, in percent
func (h *pipeWirePlayer) volume() int {
	if h.opts.Muted {
		return 0
	}
	return int(h.opts.Volume * h.backend.cfg.Playback.Volume * 100)
}

func (h *pipeWirePlayer) args() []string {
	switch h.player {
	case "mpv":
		args := []string{"--no-video", "--really-quiet", fmt.Sprintf("--volume=%d", h.volume())}
		if h.opts.Looping {
			args = append(args, "--loop-file=inf")
		}
		return append(args, h.uri)
	case "ffplay":
		args := []string{"-nodisp", "-loglevel", "quiet", "-volume", fmt.Sprint(h.volume())}
		if h.opts.Looping {
			args = append(args, "-loop", "0")
		} else {
			args = append(args, "-autoexit")
		}
		return append(args, h.uri)
	default:
		return []string{h.uri}
	}
}

func (h *pipeWirePlayer) Play(ctx context.Context) error {
	h.mu.Lock()
	if !h.loaded {
		h.mu.Unlock()
		return ErrUnloaded
	}

	switch {
	case h.proc != nil && h.paused:
		if err := h.proc.Signal(syscall.SIGCONT); err != nil {
			h.mu.Unlock()
			return errors.Wrapf(err, "failed to resume %s", h.player)
		}
		h.paused = false
	case h.proc == nil:
		proc, err := h.backend.startProcess(h.player, h.args(), h.backend.env())
		if err != nil {
			h.mu.Unlock()
			return err
		}
		h.proc = proc
		h.paused = false
		go h.watch(proc)
	}
	h.shouldPlay = true
	h.mu.Unlock()

	slog.Debug("Playback started", "id", h.id, "player", h.player)
	h.emit()
	return nil
}

func (h *pipeWirePlayer) Pause(ctx context.Context) error {
	h.mu.Lock()
	if !h.loaded {
		h.mu.Unlock()
		return ErrUnloaded
	}
	if h.proc != nil && !h.paused {
		if err := h.proc.Signal(syscall.SIGSTOP); err != nil {
			h.mu.Unlock()
			return errors.Wrapf(err, "failed to pause %s", h.player)
		}
		h.paused = true
	}
	h.shouldPlay = false
	h.mu.Unlock()

	slog.Debug("Playback paused", "id", h.id)
	h.emit()
	return nil
}

func (h *pipeWirePlayer) Stop(ctx context.Context) error {
	h.mu.Lock()
	if !h.loaded {
		h.mu.Unlock()
		return ErrUnloaded
	}
	h.stopLocked()
	h.mu.Unlock()

	slog.Debug("Playback stopped", "id", h.id)
	h.emit()
	return nil
}

// stopLocked ends the player process. Clearing proc first tells watch the
// exit was requested.
func (h *pipeWirePlayer) stopLocked() {
	proc := h.proc
	h.proc = nil
	h.paused = false
	h.shouldPlay = false
	if proc != nil {
		proc.Kill()
	}
}

func (h *pipeWirePlayer) Unload(ctx context.Context) error {
	h.mu.Lock()
	if !h.loaded {
		h.mu.Unlock()
		return nil
	}
	h.stopLocked()
	h.loaded = false
	h.mu.Unlock()

	slog.Debug("Sound unloaded", "id", h.id, "uri", h.uri)
	h.emit()
	return nil
}

// watch reports a player that exits without being stopped
func (h *pipeWirePlayer) watch(proc *process) {
	<-proc.Done()

	h.mu.Lock()
	if h.proc != proc {
		h.mu.Unlock()
		return
	}
	h.proc = nil
	h.paused = false
	h.shouldPlay = false

	if h.opts.Looping || proc.Err() != nil {
		msg := fmt.Sprintf("%s exited unexpectedly", h.player)
		if err := proc.Err(); err != nil {
			msg = fmt.Sprintf("%s: %v", msg, err)
		}
		h.loaded = false
		h.lastErr = msg
		slog.Debug("Player exited", "id", h.id, "error", msg, "output", proc.stderr.Tail())
	}
	h.mu.Unlock()

	h.emit()
}
