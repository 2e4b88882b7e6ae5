package hardware

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/nerrad567/haunt-core/internal/process"
)

// Audio plays sound files.
type Audio interface {
	// Play starts playback and returns without waiting for it to end.
	Play(ctx context.Context, file string) (*Playback, error)
	// StopAll ends every playback in progress.
	StopAll() error
	// Check verifies the player is installed.
	Check(ctx context.Context) error
}

// Playback is one sound being played.
type Playback struct {
	File string

	done <-chan struct{}
	err  func() error
	stop func() error
}

// NewPlayback wraps a running playback. err is consulted after done closes.
func NewPlayback(file string, done <-chan struct{}, err func() error, stop func() error) *Playback {
	return &Playback{File: file, done: done, err: err, stop: stop}
}

// FinishedPlayback returns a playback that has already ended with err.
func FinishedPlayback(file string, err error) *Playback {
	done := make(chan struct{})
	close(done)
	return NewPlayback(file, done, func() error { return err }, func() error { return nil })
}

// Done is closed when playback ends.
func (p *Playback) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until playback ends or ctx is done.
func (p *Playback) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop ends playback.
func (p *Playback) Stop() error {
	return p.stop()
}

// Player plays files through an external command such as aplay or mpg123.
// The file path is appended to Args.
type Player struct {
	binary string
	args   []string
	dir    string
	logger Logger

	mu     sync.Mutex
	active map[*Playback]struct{}
}

// NewPlayer creates a player. Relative file names resolve against dir.
func NewPlayer(binary string, args []string, dir string) *Player {
	return &Player{
		binary: binary,
		args:   args,
		dir:    dir,
		logger: noopLogger{},
		active: make(map[*Playback]struct{}),
	}
}

// SetLogger sets the logger for the player.
func (p *Player) SetLogger(logger Logger) {
	p.logger = logger
}

// Resolve returns the full path for file.
func (p *Player) Resolve(file string) string {
	if filepath.IsAbs(file) || p.dir == "" {
		return file
	}
	return filepath.Join(p.dir, file)
}

// Play starts the player process for file.
func (p *Player) Play(ctx context.Context, file string) (*Playback, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := p.Resolve(file)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrAudioFileMissing, path)
	}

	args := append(append([]string(nil), p.args...), path)
	proc, err := process.Start(process.Config{
		Name:   filepath.Base(p.binary),
		Binary: p.binary,
		Args:   args,
		Logger: p.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("playing %s: %w", file, err)
	}

	pb := NewPlayback(file, proc.Done(), proc.Err, proc.Stop)

	p.mu.Lock()
	p.active[pb] = struct{}{}
	p.mu.Unlock()

	go func() {
		<-proc.Done()
		p.mu.Lock()
		delete(p.active, pb)
		p.mu.Unlock()
		if err := proc.Err(); err != nil && !errors.Is(err, process.ErrStopped) {
			p.logger.Warn("audio playback failed", "file", file, "error", err)
		}
	}()

	p.logger.Info("audio playing", "file", file, "pid", proc.PID())
	return pb, nil
}

// Active returns how many playbacks are running.
func (p *Player) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

// StopAll stops every active playback concurrently.
func (p *Player) StopAll() error {
	p.mu.Lock()
	playing := make([]*Playback, 0, len(p.active))
	for pb := range p.active {
		playing = append(playing, pb)
	}
	p.mu.Unlock()

	errs := make([]error, len(playing))
	var wg sync.WaitGroup
	for i, pb := range playing {
		wg.Add(1)
		go func(i int, pb *Playback) {
			defer wg.Done()
			errs[i] = pb.Stop()
		}(i, pb)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Check looks the player up on PATH and verifies the sound directory exists.
func (p *Player) Check(context.Context) error {
	if _, err := exec.LookPath(p.binary); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPlayerMissing, p.binary, err)
	}
	if p.dir != "" {
		info, err := os.Stat(p.dir)
		if err != nil || !info.IsDir() {
			return fmt.Errorf("%w: sound directory %s", ErrAudioFileMissing, p.dir)
		}
	}
	return nil
}
