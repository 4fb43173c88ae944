package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// Driver is the live rendering context behind a session, once started.
type Driver interface {
	Info() *Info
	Render(frame int) ([]byte, error)
	Close() error
}

// Starter brings up a Driver. The context is cancelled when the session ends.
type Starter func(ctx context.Context) (Driver, error)

// lazy is a Session whose driver is started in the background.
type lazy struct {
	name   string
	cancel context.CancelFunc

	ready chan struct{}
	drv   Driver
	err   error

	rendering atomic.Bool
	ended     atomic.Bool

	endOnce sync.Once
	endErr  error
}

// New returns a session named name that starts its driver with start.
// Initialization begins immediately; a failure is reported by the
// first operation that needs the driver.
func New(name string, start Starter) Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &lazy{
		name:   name,
		cancel: cancel,
		ready:  make(chan struct{}),
	}

	go func() {
		defer close(s.ready)
		drv, err := start(ctx)
		if err != nil {
			s.err = &InitError{Session: name, Err: err}
			return
		}
		s.drv = drv
	}()
	return s
}

// wait blocks until the driver is up or ctx is done.
func (s *lazy) wait(ctx context.Context) (Driver, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.ready:
	}
	if s.err != nil {
		return nil, s.err
	}
	if s.ended.Load() {
		return nil, ErrEnded
	}
	return s.drv, nil
}

func (s *lazy) Info(ctx context.Context) (*Info, error) {
	drv, err := s.wait(ctx)
	if err != nil {
		return nil, err
	}
	return drv.Info(), nil
}

// Render seeks the scene to frame and captures it.
// Once the driver is up the render is not interrupted by ctx.
func (s *lazy) Render(ctx context.Context, frame int) ([]byte, error) {
	if s.rendering.Swap(true) {
		return nil, ErrConcurrentRender
	}
	defer s.rendering.Store(false)

	drv, err := s.wait(ctx)
	if err != nil {
		return nil, err
	}

	buf, err := drv.Render(frame)
	if err != nil {
		return nil, &RenderError{Session: s.name, Frame: frame, Err: err}
	}
	return buf, nil
}

// End abandons a pending initialization, then releases the driver.
// It is safe to call more than once.
func (s *lazy) End() error {
	s.ended.Store(true)
	s.endOnce.Do(func() {
		select {
		case <-s.ready:
		default:
			// abandon a pending init.
			s.cancel()
			<-s.ready
		}
		if s.drv != nil {
			err := s.drv.Close()
			if err != nil && !errors.Is(err, context.Canceled) {
				s.endErr = fmt.Errorf("session %s: close: %w", s.name, err)
			}
		}
		s.cancel()
	})
	return s.endErr
}
