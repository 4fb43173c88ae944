package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/superfly/frameRender/metrics"
	"github.com/superfly/frameRender/pool"
)

// Pipeline renders a range of frames and hands them to sinks in order.
type Pipeline struct {
	r     pool.Renderer
	sinks []Sink
	log   *zap.Logger
}

type Opt func(*Pipeline)

func Logger(log *zap.Logger) Opt {
	return func(p *Pipeline) { p.log = log }
}

// Sinks adds sinks that receive every frame.
func Sinks(sinks ...Sink) Opt {
	return func(p *Pipeline) { p.sinks = append(p.sinks, sinks...) }
}

func New(r pool.Renderer, opts ...Opt) *Pipeline {
	p := &Pipeline{
		r:   r,
		log: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type result struct {
	buf []byte
	err error
}

// CheckRange reports whether [start, end) is a frame range Run accepts.
func CheckRange(start, end int) error {
	if start < 0 || end < start {
		return fmt.Errorf("bad frame range [%d, %d)", start, end)
	}
	return nil
}

// Run renders frames [start, end).
//
// Every frame is requested from the renderer up front; the renderer decides
// how many run at once. Results are forwarded to the sinks strictly in frame
// order. On the first render or sink error, frames not yet started are
// cancelled, in-flight frames are waited for, sinks are aborted, and the
// error is returned. A bad range aborts the sinks too. Sinks are only ended
// after a complete run.
func (p *Pipeline) Run(ctx context.Context, start, end int) error {
	if err := CheckRange(start, end); err != nil {
		p.abort()
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	n := end - start
	slots := make([]chan result, n)
	var g errgroup.Group
	for i := range slots {
		slots[i] = make(chan result, 1)
		frame := start + i
		g.Go(func() error {
			buf, err := p.r.Render(ctx, frame)
			slots[i] <- result{buf, err}
			return nil
		})
	}

	if err := p.drain(slots, start); err != nil {
		p.log.Error("pipeline: aborting", zap.Error(err))
		cancel()
		g.Wait()
		p.abort()
		return err
	}
	g.Wait()

	var err error
	for idx, s := range p.sinks {
		if eerr := s.End(); eerr != nil {
			err = errors.Join(err, &SinkError{Sink: sinkName(idx, s), Frame: -1, Err: eerr})
		}
	}
	p.log.Info("pipeline: done", zap.Int("frames", n))
	return err
}

// drain forwards results to the sinks in slot order.
func (p *Pipeline) drain(slots []chan result, start int) error {
	for i, slot := range slots {
		frame := start + i
		res := <-slot
		if res.err != nil {
			return &FrameError{Frame: frame, Err: res.err}
		}

		p.log.Info("pipeline: render frame", zap.Int("frame", frame), zap.Int("done", i), zap.Int("total", len(slots)))
		for idx, s := range p.sinks {
			if err := s.WriteFrame(res.buf, frame); err != nil {
				return &SinkError{Sink: sinkName(idx, s), Frame: frame, Err: err}
			}
		}
		metrics.FramesWritten.Inc()
	}
	return nil
}

func (p *Pipeline) abort() {
	for idx, s := range p.sinks {
		a, ok := s.(Aborter)
		if !ok {
			continue
		}
		if err := a.Abort(); err != nil {
			p.log.Warn("pipeline: abort sink", zap.String("sink", sinkName(idx, s)), zap.Error(err))
		}
	}
}
