package pool

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/superfly/frameRender/metrics"
	"github.com/superfly/frameRender/session"
	"github.com/superfly/frameRender/stats"
)

var ErrPoolClosed = fmt.Errorf("The Pool Is Closed")

const (
	StatsAcquire = "acquire"
	StatsRender  = "render"
)

// worker is a session owned by the pool.
type worker struct {
	id   int
	sess session.Session
}

// Pool is a pool of up to max sessions, spawned on demand.
// Each session runs at most one operation at a time.
type Pool struct {
	name    string
	max     int
	factory session.Factory
	log     *zap.Logger
	stats   *stats.Set
	metrics poolMetrics

	mu     sync.Mutex
	nextId int
	idle   []*worker
	busy   map[*worker]struct{}
	closed bool

	// wake is closed and replaced whenever capacity may have changed.
	// Every waiter watches the same channel.
	wake chan struct{}
}

type Opt func(*Pool)

// Size sets the maximum number of live sessions.
func Size(max int) Opt {
	if max < 1 {
		max = 1
	}
	return func(p *Pool) { p.max = max }
}

// Name sets the pool name used in logs and metrics.
func Name(name string) Opt {
	return func(p *Pool) { p.name = name }
}

func Logger(log *zap.Logger) Opt {
	return func(p *Pool) { p.log = log }
}

// Stats sets where acquire and render timings are collected.
func Stats(s *stats.Set) Opt {
	return func(p *Pool) { p.stats = s }
}

// New creates a pool that spawns sessions with factory.
// No session is spawned until work arrives.
func New(factory session.Factory, opts ...Opt) *Pool {
	p := &Pool{
		name:    "pool-" + uuid.NewString()[:8],
		max:     runtime.NumCPU(),
		factory: factory,
		log:     zap.NewNop(),
		stats:   stats.NewSet(),

		busy: make(map[*worker]struct{}),
		wake: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(p)
	}

	p.log = p.log.With(zap.String("pool", p.name))
	p.metrics = newPoolMetrics(p.name)
	return p
}

// poolMetrics are a pool's series, labelled once with its name.
// Writes through them after End are not exported.
type poolMetrics struct {
	spawned prometheus.Counter
	failed  prometheus.Counter
	busy    prometheus.Gauge
	idle    prometheus.Gauge
	acquire prometheus.Observer
	render  prometheus.Observer
}

func newPoolMetrics(name string) poolMetrics {
	return poolMetrics{
		spawned: metrics.SessionsSpawned.WithLabelValues(name),
		failed:  metrics.SessionsFailed.WithLabelValues(name),
		busy:    metrics.SessionsBusy.WithLabelValues(name),
		idle:    metrics.SessionsIdle.WithLabelValues(name),
		acquire: metrics.AcquireSeconds.WithLabelValues(name),
		render:  metrics.RenderSeconds.WithLabelValues(name),
	}
}

// Stats returns the pool's timing statistics.
func (p *Pool) Stats() *stats.Set {
	return p.stats
}

// Counts returns the number of idle and busy sessions.
func (p *Pool) Counts() (idle, busy int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle), len(p.busy)
}

// notifyLocked wakes every waiter. p.mu must be held.
func (p *Pool) notifyLocked() {
	close(p.wake)
	p.wake = make(chan struct{})
}

func (p *Pool) gaugesLocked() {
	p.metrics.idle.Set(float64(len(p.idle)))
	p.metrics.busy.Set(float64(len(p.busy)))
}

// obtain returns an idle worker, now marked busy. Below capacity it spawns a
// new worker first, so the pool ramps up to max before reusing workers.
// If nothing is idle it returns a channel that closes when capacity may have freed.
func (p *Pool) obtain() (*worker, <-chan struct{}, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, nil, ErrPoolClosed
	}

	if len(p.idle)+len(p.busy) < p.max {
		p.nextId += 1
		w := &worker{
			id:   p.nextId,
			sess: p.factory(fmt.Sprintf("%s-worker-%d", p.name, p.nextId)),
		}
		p.idle = append(p.idle, w)
		p.log.Info("pool: spawn worker", zap.Int("worker", w.id))
		p.metrics.spawned.Inc()
		p.notifyLocked()
	}

	if len(p.idle) > 0 {
		w := p.idle[0]
		p.idle = p.idle[1:]
		p.busy[w] = struct{}{}
		p.gaugesLocked()
		return w, nil, nil
	}

	return nil, p.wake, nil
}

// release returns w to the idle list, or terminates it if its operation failed.
// A failed worker is ended before it stops counting against capacity.
func (p *Pool) release(w *worker, opErr error) {
	if opErr != nil {
		p.log.Warn("pool: worker failed, terminating", zap.Int("worker", w.id), zap.Error(opErr))
		p.metrics.failed.Inc()
		if err := w.sess.End(); err != nil {
			p.log.Warn("pool: worker end", zap.Int("worker", w.id), zap.Error(err))
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.busy, w)
	if opErr == nil && !p.closed {
		p.idle = append(p.idle, w)
	}
	p.gaugesLocked()
	p.notifyLocked()
}

// work runs fn on a session with exclusive access, waiting for one if necessary.
// ctx only bounds the wait; once a session is acquired fn runs to completion.
func work[T any](ctx context.Context, p *Pool, task string, fn func(context.Context, session.Session) (T, error)) (T, error) {
	var zero T
	acquire := p.stats.Get(StatsAcquire).Start()
	for {
		w, wake, err := p.obtain()
		if err != nil {
			return zero, err
		}

		if w == nil {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-wake:
			}
			continue
		}

		dt := acquire.End()
		p.metrics.acquire.Observe(dt.Seconds())

		p.log.Debug("pool: worker task", zap.Int("worker", w.id), zap.String("task", task))
		res, err := fn(context.WithoutCancel(ctx), w.sess)
		p.release(w, err)
		if err != nil {
			return zero, err
		}
		return res, nil
	}
}

// Info returns the scene metadata.
func (p *Pool) Info(ctx context.Context) (*session.Info, error) {
	return work(ctx, p, "getInfo", func(ctx context.Context, s session.Session) (*session.Info, error) {
		return s.Info(ctx)
	})
}

// Render renders frame on the next available session.
func (p *Pool) Render(ctx context.Context, frame int) ([]byte, error) {
	if frame < 0 {
		return nil, fmt.Errorf("render(%d): frame must not be negative", frame)
	}

	return work(ctx, p, fmt.Sprintf("render(%d)", frame), func(ctx context.Context, s session.Session) ([]byte, error) {
		t := p.stats.Get(StatsRender).Start()
		buf, err := s.Render(ctx, frame)
		if err != nil {
			return nil, err
		}
		dt := t.End()
		p.metrics.render.Observe(dt.Seconds())
		return buf, nil
	})
}

// End terminates every session, idle or busy, and waits for all of them.
// Later operations fail with ErrPoolClosed.
func (p *Pool) End() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	workers := append(p.idle, lo.Keys(p.busy)...)
	p.idle = nil
	p.notifyLocked()
	p.mu.Unlock()
	metrics.DeletePool(p.name)

	p.log.Info("pool: end", zap.Int("workers", len(workers)))

	var mu sync.Mutex
	var err error
	var g errgroup.Group
	for _, w := range workers {
		g.Go(func() error {
			if eerr := w.sess.End(); eerr != nil {
				mu.Lock()
				err = errors.Join(err, fmt.Errorf("worker %d: %w", w.id, eerr))
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()
	return err
}
