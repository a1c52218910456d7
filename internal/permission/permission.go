// Package permission decides whether looprec may use the microphone.
package permission

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/audiolibrelab/looprec/internal/audio"
	"github.com/audiolibrelab/looprec/internal/config"
)

const Question = "Allow looprec to use the microphone? [y/N] "

// Prompter asks the user on a terminal. Each call prompts again; caching the
// answer is up to the caller.
//
// A prompt cancelled through ctx leaves its read pending. The line it
// eventually reads answers the next prompt, so input is never taken by an
// orphaned reader.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer

	mu      sync.Mutex
	pending chan readResult
}

type readResult struct {
	line string
	err  error
}

// NewPrompter reads answers from in. Share in with any other reader of the
// same terminal so buffered input is not lost.
func NewPrompter(in *bufio.Reader, out io.Writer) *Prompter {
	return &Prompter{in: in, out: out}
}

func (p *Prompter) RequestMicrophone(ctx context.Context) (bool, error) {
	if _, err := fmt.Fprint(p.out, Question); err != nil {
		return false, errors.Wrap(err, "failed to write permission prompt")
	}

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case r := <-p.read():
		p.mu.Lock()
		p.pending = nil
		p.mu.Unlock()

		if r.err != nil && !(errors.Is(r.err, io.EOF) && r.line != "") {
			if errors.Is(r.err, io.EOF) {
				// closed input counts as no
				return false, nil
			}
			return false, errors.Wrap(r.err, "failed to read permission answer")
		}
		return parseAnswer(r.line), nil
	}
}

// read returns the channel of the pending line read, starting one if none is
// in flight
func (p *Prompter) read() <-chan readResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pending == nil {
		ch := make(chan readResult, 1)
		go func() {
			line, err := p.in.ReadString('\n')
			ch <- readResult{line: line, err: err}
		}()
		p.pending = ch
	}
	return p.pending
}

func parseAnswer(line string) bool {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

// Static answers without asking
type Static bool

func (s Static) RequestMicrophone(ctx context.Context) (bool, error) {
	return bool(s), nil
}

// FromConfig returns the permission source selected by permissions.microphone.
// prompt falls back to the terminal pair in and out.
func FromConfig(cfg config.PermissionsConfig, in *bufio.Reader, out io.Writer) audio.Permissions {
	switch cfg.Microphone {
	case config.PermissionGranted:
		slog.Debug("Microphone permission granted by configuration")
		return Static(true)
	case config.PermissionDenied:
		slog.Debug("Microphone permission denied by configuration")
		return Static(false)
	default:
		return NewPrompter(in, out)
	}
}
