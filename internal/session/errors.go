package session

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/audiolibrelab/looprec/internal/audio"
)

var (
	// ErrPermissionDenied is terminal: no operation succeeds once the
	// microphone was refused.
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrNoDataCollected marks a recording stopped before any audio arrived
	ErrNoDataCollected = audio.ErrNoDataCollected
	ErrCaptureFault    = errors.New("capture fault")
	ErrPlaybackFault   = errors.New("playback fault")
	// ErrBusy is returned while a transition is in flight
	ErrBusy        = errors.New("session is busy")
	ErrNoRecording = errors.New("no recording in progress")
	ErrClosed      = errors.New("session closed")
)

// fault wraps err with msg and puts kind in its unwrap chain, so both the
// standard and the cockroachdb errors.Is classify it.
func fault(kind, err error, msg string) error {
	return fmt.Errorf("%w: %w", kind, errors.Wrap(err, msg))
}
