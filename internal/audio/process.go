package audio

import (
	"bytes"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

const stopTimeout = 5 * time.Second

// process is a running helper binary (ffmpeg, mpv, ffplay)
type process struct {
	name string
	cmd  *exec.Cmd
	done chan struct{}
	err  error

	stderr *logWriter

	stopOnce sync.Once
	stopErr  error
}

func startProcess(name string, args []string, env []string) (*process, error) {
	cmd := exec.Command(name, args...)
	cmd.Env = env

	stderr := &logWriter{process: name, stream: "stderr"}
	cmd.Stdout = &logWriter{process: name, stream: "stdout"}
	cmd.Stderr = stderr

	slog.Debug("Starting process", "process", name, "args", args)
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "failed to start %s", name)
	}

	p := &process{
		name:   name,
		cmd:    cmd,
		done:   make(chan struct{}),
		stderr: stderr,
	}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()

	return p, nil
}

// Done is closed once the process has exited
func (p *process) Done() <-chan struct{} {
	return p.done
}

func (p *process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Err is the wait error; only valid after Done
func (p *process) Err() error {
	return p.err
}

func (p *process) Signal(sig os.Signal) error {
	if p.Exited() {
		return nil
	}
	return p.cmd.Process.Signal(sig)
}

// Interrupt sends SIGINT so the process can finalize its output, then waits
// for it to exit, force killing after timeout. Exits caused by the signal are
// not errors.
func (p *process) Interrupt(timeout time.Duration) error {
	p.stopOnce.Do(func() {
		p.stopErr = p.interrupt(timeout)
	})
	return p.stopErr
}

func (p *process) interrupt(timeout time.Duration) error {
	if !p.Exited() {
		slog.Debug("Sending SIGINT", "process", p.name)
		if err := p.cmd.Process.Signal(os.Interrupt); err != nil {
			slog.Debug("Failed to send interrupt, falling back to SIGKILL", "process", p.name, "error", err)
			p.cmd.Process.Kill()
		}
	}

	select {
	case <-p.done:
		if p.err != nil && !isSignalExit(p.err) {
			slog.Debug("Process stderr", "process", p.name, "output", p.stderr.Tail())
			return errors.Wrapf(p.err, "%s process failed", p.name)
		}
		return nil

	case <-time.After(timeout):
		slog.Warn("Process did not exit within timeout, force killing", "process", p.name)
		p.cmd.Process.Kill()
		<-p.done
		return nil
	}
}

// Kill terminates the process immediately and waits for it
func (p *process) Kill() {
	if p.Exited() {
		return
	}
	p.cmd.Process.Kill()
	<-p.done
}

func isSignalExit(err error) bool {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	// ffmpeg exits with 255 after a graceful interrupt
	if exitErr.ExitCode() == 255 {
		return true
	}
	if exitErr.ProcessState != nil {
		state := exitErr.ProcessState.String()
		return state == "signal: interrupt" || state == "signal: killed"
	}
	return false
}

// logWriter forwards process output to the debug log and keeps a short tail
// for error reports.
type logWriter struct {
	process string
	stream  string

	mu   sync.Mutex
	tail []byte
}

const tailSize = 4096

func (w *logWriter) Write(b []byte) (int, error) {
	for _, line := range bytes.Split(bytes.TrimRight(b, "\n"), []byte("\n")) {
		if len(line) > 0 {
			slog.Debug("Process output", "process", w.process, "stream", w.stream, "line", string(line))
		}
	}

	w.mu.Lock()
	w.tail = append(w.tail, b...)
	if len(w.tail) > tailSize {
		w.tail = w.tail[len(w.tail)-tailSize:]
	}
	w.mu.Unlock()

	return len(b), nil
}

func (w *logWriter) Tail() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return string(w.tail)
}
