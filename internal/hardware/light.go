package hardware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultFlashInterval is the length of one on/off flash cycle.
const DefaultFlashInterval = 300 * time.Millisecond

// Light is a network colour light.
type Light interface {
	SetColor(ctx context.Context, c Color) error
	// supersedeLocked ends any running flash. Caller holds l.mu.
func (l *ColorLight) supersedeLocked() {
	l.flashGen++
	if l.flashCancel != nil {
		l.flashCancel()
		l.flashCancel = nil
	}
}

// Flash toggles the light count times, each cycle lasting one interval.
// The light ends in the state it started in unless SetColor, On, Off or
// another Flash takes it over first; the superseded flash then stops
// without restoring and reports nil.
func (l *ColorLight) Flash(ctx context.Context, count int) <-chan error {
	done := make(chan error, 1)
	if count <= 0 {
		done <- nil
		close(done)
		return done
	}

	l.mu.Lock()
	l.supersedeLocked()
	gen := l.flashGen
	fctx, cancel := context.WithCancel(ctx)
	l.flashCancel = cancel
	snap := flashState{wasOn: l.on, restore: l.color, color: l.color}
	if snap.color.IsBlack() {
		snap.color = l.flashColor
	}
	l.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()
		done <- l.flash(fctx, gen, count, snap)
	}()
	return done
}

// flashState is the light as a flash found it.
type flashState struct {
	wasOn   bool
	restore Color
	color   Color
}

// flash runs without holding l.mu between steps. Each transport call takes
// the lock and is skipped once a newer command owns the light.
func (l *ColorLight) flash(ctx context.Context, gen uint64, count int, st flashState) error {
	var errs []error
	send := func(fn func() error) bool {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.flashGen != gen {
			return false
		}
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
		return true
	}

	half := l.interval / 2
	if !send(func() error { return l.transport.Color(ctx, st.color) }) {
		return nil
	}
	for i := 0; i < count; i++ {
		if !send(func() error { return l.transport.Power(ctx, true) }) {
			return nil
		}
		if err := sleepCtx(ctx, half); err != nil {
			errs = append(errs, err)
			break
		}
		if !send(func() error { return l.transport.Power(ctx, false) }) {
			return nil
		}
		if err := sleepCtx(ctx, l.interval-half); err != nil {
			errs = append(errs, err)
			break
		}
	}

	// Restore with a fresh context so a cancelled run does not leave the light stuck.
	restoreCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	restored := send(func() error {
		l.flashCancel = nil
		switch {
		case !st.wasOn:
			return l.transport.Power(restoreCtx, false)
		case !st.restore.IsBlack():
			return l.transport.Color(restoreCtx, st.restore)
		default:
			return l.transport.Power(restoreCtx, true)
		}
	})
	if !restored {
		return nil
	}

	if len(errs) > 0 {
		l.logger.Warn("light flash had failures", "count", count, "failures", len(errs))
		return fmt.Errorf("flashing light: %w", errors.Join(errs...))
	}
	return nil
}

// sleepCtx sleeps for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
