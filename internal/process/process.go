package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Status represents the current state of a process.
type Status string

const (
	StatusRunning Status = "running"
	StatusExited  Status = "exited"
	StatusFailed  Status = "failed"
	StatusStopped Status = "stopped"
)

// outputBufferSize is the buffer size for capturing subprocess stdout/stderr.
const outputBufferSize = 4096

// DefaultGracefulTimeout is used when Config.GracefulTimeout is zero.
const DefaultGracefulTimeout = 2 * time.Second

// ErrStopped is returned by Wait when the process was ended by Stop.
var ErrStopped = errors.New("process: stopped")

// Config describes a process to run.
type Config struct {
	// Name is a human-readable identifier for logging.
	Name string

	// Binary is the executable, resolved through PATH when not absolute.
	Binary string

	// Args are command-line arguments to pass to the binary.
	Args []string

	// Env are additional environment variables (key=value format).
	Env []string

	// WorkDir is the working directory for the process.
	WorkDir string

	// GracefulTimeout is how long to wait after SIGTERM before SIGKILL.
	GracefulTimeout time.Duration

	// Logger receives lifecycle and output messages. May be nil.
	Logger Logger
}

// Logger defines the logging interface for the process package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Process is a started child process.
type Process struct {
	config Config
	logger Logger
	cmd    *exec.Cmd
	start  time.Time
	done   chan struct{}

	mu      sync.Mutex
	status  Status
	err     error
	stopped bool
}

// Start launches the process and returns without waiting for it.
func Start(cfg Config) (*Process, error) {
	if cfg.GracefulTimeout <= 0 {
		cfg.GracefulTimeout = DefaultGracefulTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	cmd := exec.Command(cfg.Binary, cfg.Args...) //nolint:gosec // binary comes from operator config

	// Own process group so Stop reaches the player's children too
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if cfg.Env != nil {
		cmd.Env = append(os.Environ(), cfg.Env...)
	}
	if cfg.WorkDir != "" {
		cmd.Dir = cfg.WorkDir
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", cfg.Name, err)
	}

	p := &Process{
		config: cfg,
		logger: logger,
		cmd:    cmd,
		start:  time.Now(),
		done:   make(chan struct{}),
		status: StatusRunning,
	}

	var output sync.WaitGroup
	output.Add(2)
	go p.captureOutput("stdout", stdout, &output)
	go p.captureOutput("stderr", stderr, &output)
	go p.wait(&output)

	logger.Debug("process started", "name", cfg.Name, "pid", cmd.Process.Pid)
	return p, nil
}

// captureOutput reads from the given reader and logs each chunk.
func (p *Process) captureOutput(stream string, r io.Reader, wg *sync.WaitGroup) {
	defer wg.Done()
	buf := make([]byte, outputBufferSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			p.logger.Debug("process output",
				"name", p.config.Name,
				"stream", stream,
				"output", string(buf[:n]),
			)
		}
		if err != nil {
			return
		}
	}
}

// wait reaps the process once its output pipes have drained.
func (p *Process) wait(output *sync.WaitGroup) {
	output.Wait()
	err := p.cmd.Wait()

	p.mu.Lock()
	switch {
	case p.stopped:
		p.status = StatusStopped
		p.err = ErrStopped
	case err != nil:
		p.status = StatusFailed
		p.err = fmt.Errorf("%s exited: %w", p.config.Name, err)
	default:
		p.status = StatusExited
	}
	p.mu.Unlock()

	p.logger.Debug("process finished",
		"name", p.config.Name,
		"status", p.Status(),
		"duration", time.Since(p.start),
	)
	close(p.done)
}

// Done is closed when the process has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the process exits or ctx is done. It returns the exit
// error, ErrStopped if Stop ended it, or ctx.Err().
func (p *Process) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the exit error once the process has finished.
func (p *Process) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Status returns the current status.
func (p *Process) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// PID returns the process ID.
func (p *Process) PID() int {
	return p.cmd.Process.Pid
}

// Stop terminates the process group: SIGTERM, then SIGKILL after the
// graceful timeout. Stopping an exited process is a no-op.
func (p *Process) Stop() error {
	select {
	case <-p.done:
		return nil
	default:
	}

	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()

	pid := p.cmd.Process.Pid

	// Negative PID signals the whole group created via Setpgid
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		p.logger.Warn("failed to send SIGTERM to process group", "name", p.config.Name, "error", err)
	}

	timer := time.NewTimer(p.config.GracefulTimeout)
	defer timer.Stop()
	select {
	case <-p.done:
		return nil
	case <-timer.C:
		p.logger.Warn("graceful shutdown timeout, sending SIGKILL",
			"name", p.config.Name,
			"timeout", p.config.GracefulTimeout,
		)
	}

	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("killing process group %s: %w", p.config.Name, err)
	}
	<-p.done
	return nil
}
