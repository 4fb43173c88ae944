package session

import (
	"errors"
	"fmt"
)

var ErrConcurrentRender = errors.New("render() may not be called concurrently")
var ErrEnded = errors.New("session ended")

// InitError is returned by every operation on a session that failed to start.
type InitError struct {
	Session string
	Err     error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("session %s: init: %v", e.Session, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// RenderError is returned when the scene failed to produce a frame.
type RenderError struct {
	Session string
	Frame   int
	Err     error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("session %s: render frame %d: %v", e.Session, e.Frame, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }
