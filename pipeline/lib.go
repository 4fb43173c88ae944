package pipeline

import (
	"fmt"
)

// Sink consumes rendered frames in ascending frame order.
type Sink interface {
	WriteFrame(buf []byte, frame int) error
	// End is called once after the last frame.
	End() error
}

// Aborter is implemented by sinks that can discard partial output
// when a run fails.
type Aborter interface {
	Abort() error
}

// SinkError is returned when a sink failed to take a frame.
// Frame is -1 if the sink failed to end.
type SinkError struct {
	Sink  string
	Frame int
	Err   error
}

func (e *SinkError) Error() string {
	if e.Frame < 0 {
		return fmt.Sprintf("sink %s: end: %v", e.Sink, e.Err)
	}
	return fmt.Sprintf("sink %s: frame %d: %v", e.Sink, e.Frame, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }

// FrameError is returned when a frame could not be rendered.
type FrameError struct {
	Frame int
	Err   error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("frame %d: %v", e.Frame, e.Err)
}

func (e *FrameError) Unwrap() error { return e.Err }

// sinkName names a sink in logs and errors.
func sinkName(idx int, s Sink) string {
	if st, ok := s.(fmt.Stringer); ok {
		return st.String()
	}
	return fmt.Sprintf("#%d", idx)
}
