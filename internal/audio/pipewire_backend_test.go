package audio

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiolibrelab/looprec/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Audio: config.AudioConfig{
			Backend: "pipewire",
			Sources: []string{"system:capture_1"},
			Preset:  "low",
			Presets: map[string]config.PresetConfig{
				"low": {SampleRate: 22050, Channels: 1, Codec: "pcm_s16le", Extension: "wav"},
			},
			StatusInterval: 250 * time.Millisecond,
		},
		Mode: config.ModeConfig{
			InterruptionPolicy: "do_not_mix",
			PlayInSilentMode:   true,
			DuckOthers:         true,
		},
		Playback:    config.PlaybackConfig{Players: []string{"mpv", "ffplay"}, Volume: 1.0},
		Output:      config.OutputConfig{Directory: "/recordings"},
		Permissions: config.PermissionsConfig{Microphone: config.PermissionGranted},
		Server:      config.ServerConfig{Addr: ":0"},
	}
}

// testBackend runs every helper as a long sleep so signals behave like the
// real tools without needing ffmpeg or a player installed.
func testBackend(t *testing.T, helper ...string) (*PipeWireBackend, clockwork.FakeClock) {
	t.Helper()

	if len(helper) == 0 {
		helper = []string{"sleep", "30"}
	}

	cfg := testConfig()
	clock := clockwork.NewFakeClock()
	b := &PipeWireBackend{
		cfg:            cfg,
		pipewire:       &PipeWire{run: (&fakePwLink{}).run},
		fs:             afero.NewMemMapFs(),
		clock:          clock,
		statusInterval: cfg.Audio.StatusInterval,
		lookPath:       func(file string) (string, error) { return "/usr/bin/" + file, nil },
		startProcess: func(name string, args []string, env []string) (*process, error) {
			return startProcess(helper[0], helper[1:], env)
		},
	}
	require.NoError(t, b.SetAudioMode(context.Background(), RecordingMode(cfg.Mode)))
	return b, clock
}

type statusRecorder[T any] struct {
	mu       sync.Mutex
	statuses []T
}

func (r *statusRecorder[T]) record(s T) {
	r.mu.Lock()
	r.statuses = append(r.statuses, s)
	r.mu.Unlock()
}

func (r *statusRecorder[T]) last() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var zero T
	if len(r.statuses) == 0 {
		return zero, false
	}
	return r.statuses[len(r.statuses)-1], true
}

func writeArtifact(t *testing.T, fs afero.Fs, path string, size int) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, make([]byte, size), 0644))
}

func TestCapture_RecordAndStop(t *testing.T) {
	b, clock := testBackend(t)
	ctx := context.Background()

	h := b.NewCapture(NewPreset(b.cfg))
	rec := &statusRecorder[RecordingStatus]{}
	h.SetStatusCallback(rec.record)

	require.NoError(t, h.Prepare(ctx))
	assert.Regexp(t, `^/recordings/looprec-[0-9a-f-]+\.wav$`, h.ArtifactURI())

	require.NoError(t, h.Start(ctx))
	writeArtifact(t, b.fs, h.ArtifactURI(), 4096)

	clock.BlockUntil(1)
	clock.Advance(250 * time.Millisecond)

	require.Eventually(t, func() bool {
		s, ok := rec.last()
		return ok && s.IsRecording && s.SizeBytes == 4096 && s.DurationMillis == 250
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, h.Stop(ctx))

	s, _ := rec.last()
	assert.True(t, s.IsDoneRecording)
	assert.False(t, s.IsRecording)
	assert.Equal(t, int64(250), s.DurationMillis)

	require.NoError(t, h.Release())
	exists, err := afero.Exists(b.fs, h.ArtifactURI())
	require.NoError(t, err)
	assert.True(t, exists, "artifact is kept for playback")
}

func TestCapture_StopBeforeData(t *testing.T) {
	b, _ := testBackend(t)
	ctx := context.Background()

	h := b.NewCapture(NewPreset(b.cfg))
	require.NoError(t, h.Prepare(ctx))
	require.NoError(t, h.Start(ctx))

	err := h.Stop(ctx)
	assert.True(t, errors.Is(err, ErrNoDataCollected))
	require.NoError(t, h.Release())
}

func TestCapture_MaxFileSizeEndsRecording(t *testing.T) {
	b, clock := testBackend(t)
	ctx := context.Background()

	preset := NewPreset(b.cfg)
	preset.MaxFileSize = 2048

	h := b.NewCapture(preset)
	done := make(chan RecordingStatus, 1)
	h.SetStatusCallback(func(s RecordingStatus) {
		if s.IsDoneRecording {
			select {
			case done <- s:
			default:
			}
		}
	})

	require.NoError(t, h.Prepare(ctx))
	require.NoError(t, h.Start(ctx))
	writeArtifact(t, b.fs, h.ArtifactURI(), 4096)

	clock.BlockUntil(1)
	clock.Advance(250 * time.Millisecond)

	select {
	case s := <-done:
		assert.Equal(t, int64(4096), s.SizeBytes)
	case <-time.After(5 * time.Second):
		t.Fatal("recording did not end at max file size")
	}

	require.NoError(t, h.Stop(ctx))
	require.NoError(t, h.Release())
}

func TestCapture_RequiresRecordingMode(t *testing.T) {
	b, _ := testBackend(t)
	ctx := context.Background()
	require.NoError(t, b.SetAudioMode(ctx, PlaybackMode(b.cfg.Mode)))

	h := b.NewCapture(NewPreset(b.cfg))
	assert.ErrorIs(t, h.Prepare(ctx), ErrCaptureDisabled)
}

func TestCapture_LifecycleOrder(t *testing.T) {
	b, _ := testBackend(t)
	ctx := context.Background()

	h := b.NewCapture(NewPreset(b.cfg))
	assert.ErrorIs(t, h.Start(ctx), ErrNotPrepared)
	assert.ErrorIs(t, h.Stop(ctx), ErrNotRecording)

	require.NoError(t, h.Release())
	assert.ErrorIs(t, h.Stop(ctx), ErrReleased)
}

func TestCapture_NewRecordingRetiresPrevious(t *testing.T) {
	b, _ := testBackend(t)
	ctx := context.Background()

	first := b.NewCapture(NewPreset(b.cfg))
	require.NoError(t, first.Prepare(ctx))
	writeArtifact(t, b.fs, first.ArtifactURI(), 4096)
	require.NoError(t, first.Release())

	second := b.NewCapture(NewPreset(b.cfg))
	require.NoError(t, second.Prepare(ctx))
	assert.NotEqual(t, first.ArtifactURI(), second.ArtifactURI())

	exists, err := afero.Exists(b.fs, first.ArtifactURI())
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLoadPlayback_Transport(t *testing.T) {
	b, _ := testBackend(t)
	ctx := context.Background()
	writeArtifact(t, b.fs, "/recordings/take.wav", 4096)

	rec := &statusRecorder[PlaybackStatus]{}
	h, status, err := b.LoadPlayback(ctx, "/recordings/take.wav", PlaybackOptions{Looping: true, Volume: 1}, rec.record)
	require.NoError(t, err)
	defer h.Unload(ctx)

	assert.True(t, status.IsLoaded)
	assert.False(t, status.IsPlaying)
	assert.True(t, status.IsLooping)

	require.NoError(t, h.Play(ctx))
	s, _ := rec.last()
	assert.True(t, s.IsPlaying)

	require.NoError(t, h.Pause(ctx))
	s, _ = rec.last()
	assert.False(t, s.IsPlaying)
	assert.True(t, s.IsLoaded)

	require.NoError(t, h.Play(ctx))
	s, _ = rec.last()
	assert.True(t, s.IsPlaying)

	require.NoError(t, h.Stop(ctx))
	s, _ = rec.last()
	assert.False(t, s.IsPlaying)
	assert.True(t, s.IsLoaded, "stop keeps the sound loaded")

	require.NoError(t, h.Unload(ctx))
	s, _ = rec.last()
	assert.False(t, s.IsLoaded)
	assert.ErrorIs(t, h.Play(ctx), ErrUnloaded)
}

func TestLoadPlayback_UnexpectedExit(t *testing.T) {
	b, _ := testBackend(t, "false")
	ctx := context.Background()
	writeArtifact(t, b.fs, "/recordings/take.wav", 4096)

	rec := &statusRecorder[PlaybackStatus]{}
	_, _, err := b.LoadPlayback(ctx, "/recordings/take.wav", PlaybackOptions{Looping: true, ShouldPlay: true, Volume: 1}, rec.record)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s, ok := rec.last()
		return ok && !s.IsLoaded && s.Error != ""
	}, 5*time.Second, 10*time.Millisecond)
}

func TestLoadPlayback_MissingFile(t *testing.T) {
	b, _ := testBackend(t)

	_, _, err := b.LoadPlayback(context.Background(), "/recordings/missing.wav", PlaybackOptions{}, nil)
	assert.ErrorContains(t, err, "recording not found")
}

func TestLoadPlayback_NoPlayer(t *testing.T) {
	b, _ := testBackend(t)
	b.lookPath = func(string) (string, error) { return "", errors.New("not found") }
	writeArtifact(t, b.fs, "/recordings/take.wav", 4096)

	_, _, err := b.LoadPlayback(context.Background(), "/recordings/take.wav", PlaybackOptions{}, nil)
	assert.ErrorIs(t, err, ErrNoPlayer)
}

func TestPlayerArgs(t *testing.T) {
	b, _ := testBackend(t)
	b.cfg.Playback.Volume = 0.5

	mpv := &pipeWirePlayer{backend: b, uri: "/r.wav", player: "mpv", opts: PlaybackOptions{Looping: true, Volume: 1}}
	assert.Equal(t, []string{"--no-video", "--really-quiet", "--volume=50", "--loop-file=inf", "/r.wav"}, mpv.args())

	ffplay := &pipeWirePlayer{backend: b, uri: "/r.wav", player: "ffplay", opts: PlaybackOptions{Volume: 1, Muted: true}}
	assert.Equal(t, []string{"-nodisp", "-loglevel", "quiet", "-volume", "0", "-autoexit", "/r.wav"}, ffplay.args())
}

func TestBackend_Env(t *testing.T) {
	b, _ := testBackend(t)

	env := b.env()
	assert.Contains(t, env, "PULSE_PROP=media.role=Production")
	assert.Contains(t, env, "PIPEWIRE_PROPS={ media.role=Production }")
}
