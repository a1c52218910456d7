// Package audiotest provides in-memory implementations of the audio ports
// with scriptable failures for controller and server tests.
package audiotest

import (
	"context"
	"fmt"
	"sync"

	"github.com/audiolibrelab/looprec/internal/audio"
)

// Backend is a fake audio.Backend. Error fields apply to every handle it
// creates after they are set.
type Backend struct {
	mu sync.Mutex

	SetModeErr error
	PrepareErr error
	StartErr   error
	StopErr    error
	LoadErr    error
	Sources    []string

	// OnSetMode runs at the start of every SetAudioMode call, before any
	// lock is taken. Tests use it to hold a transition in flight.
	OnSetMode func(mode audio.AudioMode)
	// OnLoad runs at the start of every LoadPlayback call with its status
	// callback, before LoadErr is returned.
	OnLoad func(cb func(audio.PlaybackStatus))

	modes    []audio.AudioMode
	captures []*Capture
	players  []*Player
}

func NewBackend() *Backend {
	return &Backend{Sources: []string{"system:capture_1"}}
}

func (b *Backend) SetAudioMode(ctx context.Context, mode audio.AudioMode) error {
	if b.OnSetMode != nil {
		b.OnSetMode(mode)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.SetModeErr != nil {
		return b.SetModeErr
	}
	b.modes = append(b.modes, mode)
	return nil
}

func (b *Backend) NewCapture(preset audio.Preset) audio.CaptureHandle {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := &Capture{
		id:         fmt.Sprintf("capture-%d", len(b.captures)+1),
		uri:        fmt.Sprintf("/tmp/looprec-%d.%s", len(b.captures)+1, preset.Extension),
		preset:     preset,
		prepareErr: b.PrepareErr,
		startErr:   b.StartErr,
		stopErr:    b.StopErr,
	}
	b.captures = append(b.captures, c)
	return c
}

func (b *Backend) LoadPlayback(ctx context.Context, uri string, opts audio.PlaybackOptions, cb func(audio.PlaybackStatus)) (audio.PlaybackHandle, audio.PlaybackStatus, error) {
	if b.OnLoad != nil {
		b.OnLoad(cb)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.LoadErr != nil {
		return nil, audio.PlaybackStatus{}, b.LoadErr
	}

	p := &Player{
		id:      fmt.Sprintf("player-%d", len(b.players)+1),
		URI:     uri,
		Options: opts,
		cb:      cb,
		loaded:  true,
		playing: opts.ShouldPlay,
	}
	b.players = append(b.players, p)
	return p, p.Status(), nil
}

func (b *Backend) ListSources() ([]string, error) {
	return b.Sources, nil
}

func (b *Backend) GetType() audio.BackendType {
	return "fake"
}

// Modes returns every audio mode applied so far
func (b *Backend) Modes() []audio.AudioMode {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]audio.AudioMode(nil), b.modes...)
}

func (b *Backend) Captures() []*Capture {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Capture(nil), b.captures...)
}

func (b *Backend) Players() []*Player {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Player(nil), b.players...)
}

// LastCapture returns the most recent capture handle or nil
func (b *Backend) LastCapture() *Capture {
	captures := b.Captures()
	if len(captures) == 0 {
		return nil
	}
	return captures[len(captures)-1]
}

func (b *Backend) LastPlayer() *Player {
	players := b.Players()
	if len(players) == 0 {
		return nil
	}
	return players[len(players)-1]
}

// Capture is a fake audio.CaptureHandle that records its calls
type Capture struct {
	id     string
	uri    string
	preset audio.Preset

	mu         sync.Mutex
	prepareErr error
	startErr   error
	stopErr    error
	cb         func(audio.RecordingStatus)
	calls      []string
	released   bool
}

func (c *Capture) ID() string {
	return c.id
}

func (c *Capture) Preset() audio.Preset {
	return c.preset
}

func (c *Capture) record(call string) {
	c.mu.Lock()
	c.calls = append(c.calls, call)
	c.mu.Unlock()
}

func (c *Capture) Prepare(ctx context.Context) error {
	c.record("prepare")
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prepareErr
}

func (c *Capture) Start(ctx context.Context) error {
	c.record("start")
	c.mu.Lock()
	err := c.startErr
	c.mu.Unlock()
	if err != nil {
		return err
	}
	c.Emit(audio.RecordingStatus{CanRecord: true, IsRecording: true})
	return nil
}

func (c *Capture) Stop(ctx context.Context) error {
	c.record("stop")
	c.mu.Lock()
	err := c.stopErr
	c.mu.Unlock()
	c.Emit(audio.RecordingStatus{IsDoneRecording: true, DurationMillis: 1500})
	return err
}

func (c *Capture) SetStatusCallback(cb func(audio.RecordingStatus)) {
	c.mu.Lock()
	c.cb = cb
	c.mu.Unlock()
	if cb == nil {
		c.record("detach")
	}
}

func (c *Capture) ArtifactURI() string {
	return c.uri
}

func (c *Capture) Release() error {
	c.record("release")
	c.mu.Lock()
	c.released = true
	c.mu.Unlock()
	return nil
}

// Emit delivers a status to the attached callback, if any
func (c *Capture) Emit(status audio.RecordingStatus) {
	c.mu.Lock()
	cb := c.cb
	c.mu.Unlock()
	if cb != nil {
		cb(status)
	}
}

// Callback returns the currently attached callback so tests can invoke a
// stale one after detach.
func (c *Capture) Callback() func(audio.RecordingStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cb
}

func (c *Capture) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func (c *Capture) Released() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released
}

// Player is a fake audio.PlaybackHandle
type Player struct {
	id      string
	URI     string
	Options audio.PlaybackOptions

	mu       sync.Mutex
	cb       func(audio.PlaybackStatus)
	calls    []string
	loaded   bool
	playing  bool
	PlayErr  error
	PauseErr error
}

func (p *Player) ID() string {
	return p.id
}

// Status returns the transport state the player would report
func (p *Player) Status() audio.PlaybackStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statusLocked()
}

func (p *Player) statusLocked() audio.PlaybackStatus {
	if !p.loaded {
		return audio.PlaybackStatus{}
	}
	return audio.PlaybackStatus{
		IsLoaded:   true,
		ShouldPlay: p.playing,
		IsPlaying:  p.playing,
		IsLooping:  p.Options.Looping,
		Rate:       1.0,
		Volume:     p.Options.Volume,
		Muted:      p.Options.Muted,
	}
}

func (p *Player) transition(call string, fn func() error) error {
	p.mu.Lock()
	p.calls = append(p.calls, call)
	if err := fn(); err != nil {
		p.mu.Unlock()
		return err
	}
	cb := p.cb
	status := p.statusLocked()
	p.mu.Unlock()

	if cb != nil {
		cb(status)
	}
	return nil
}

func (p *Player) Play(ctx context.Context) error {
	return p.transition("play", func() error {
		if p.PlayErr != nil {
			return p.PlayErr
		}
		if !p.loaded {
			return audio.ErrUnloaded
		}
		p.playing = true
		return nil
	})
}

func (p *Player) Pause(ctx context.Context) error {
	return p.transition("pause", func() error {
		if p.PauseErr != nil {
			return p.PauseErr
		}
		if !p.loaded {
			return audio.ErrUnloaded
		}
		p.playing = false
		return nil
	})
}

func (p *Player) Stop(ctx context.Context) error {
	return p.transition("stop", func() error {
		if !p.loaded {
			return audio.ErrUnloaded
		}
		p.playing = false
		return nil
	})
}

func (p *Player) Unload(ctx context.Context) error {
	return p.transition("unload", func() error {
		p.loaded = false
		p.playing = false
		return nil
	})
}

func (p *Player) SetStatusCallback(cb func(audio.PlaybackStatus)) {
	p.mu.Lock()
	p.cb = cb
	if cb == nil {
		p.calls = append(p.calls, "detach")
	}
	p.mu.Unlock()
}

// Emit delivers a status to the attached callback, if any
func (p *Player) Emit(status audio.PlaybackStatus) {
	p.mu.Lock()
	cb := p.cb
	p.mu.Unlock()
	if cb != nil {
		cb(status)
	}
}

func (p *Player) Callback() func(audio.PlaybackStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cb
}

func (p *Player) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *Player) Loaded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loaded
}

// Permissions is a fake audio.Permissions answering with Granted
type Permissions struct {
	Granted bool
	Err     error

	mu    sync.Mutex
	calls int
}

func (p *Permissions) RequestMicrophone(ctx context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.Granted, p.Err
}

// Calls returns how many times the user was prompted
func (p *Permissions) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Storage is a fake audio.Storage
type Storage struct {
	Err error

	mu      sync.Mutex
	queried []string
}

func (s *Storage) Info(uri string) (audio.FileInfo, error) {
	s.mu.Lock()
	s.queried = append(s.queried, uri)
	s.mu.Unlock()
	if s.Err != nil {
		return audio.FileInfo{}, s.Err
	}
	return audio.FileInfo{URI: uri, Exists: true, Size: 44100}, nil
}

func (s *Storage) Queried() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queried...)
}
