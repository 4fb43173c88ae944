package pool

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/superfly/frameRender/metrics"
	"github.com/superfly/frameRender/session"
)

var testScene = session.Info{Width: 16, Height: 9, Fps: 30, NumberOfFrames: 100}

func jitter(frame int) time.Duration {
	return time.Duration(rand.Intn(5)) * time.Millisecond
}

func TestRenderBounded(t *testing.T) {
	for _, max := range []int{1, 2, 4} {
		t.Run(fmt.Sprintf("max=%d", max), func(t *testing.T) {
			mock := session.NewMock(testScene)
			mock.Delay = jitter
			p := New(mock.Factory(), Size(max))

			var wg sync.WaitGroup
			errs := make(chan error, 40)
			for i := 0; i < 40; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := p.Render(context.Background(), i)
					errs <- err
				}()
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				assert.NoError(t, err)
			}

			assert.True(t, mock.MaxRendering() <= max)
			assert.Equal(t, max, len(mock.Created()))
			idle, busy := p.Counts()
			assert.Equal(t, max, idle)
			assert.Equal(t, 0, busy)

			assert.NoError(t, p.End())
			assert.Equal(t, 0, mock.Live())
		})
	}
}

func TestConcurrentInfoSpawnsOnce(t *testing.T) {
	mock := session.NewMock(testScene)
	mock.InitDelay = 10 * time.Millisecond
	p := New(mock.Factory(), Size(1))
	defer p.End()

	var wg sync.WaitGroup
	infos := make([]*session.Info, 2)
	errs := make([]error, 2)
	for i := range infos {
		wg.Add(1)
		go func() {
			defer wg.Done()
			infos[i], errs[i] = p.Info(context.Background())
		}()
	}
	wg.Wait()
	assert.NoError(t, errors.Join(errs...))

	assert.Equal(t, infos[0], infos[1])
	assert.Equal(t, testScene.Width, infos[0].Width)
	assert.Equal(t, 1, len(mock.Created()))
}

func TestFailureIsolated(t *testing.T) {
	mock := session.NewMock(testScene)
	mock.Delay = jitter
	failed := false
	var mu sync.Mutex
	mock.Fail = func(name string, frame int) error {
		mu.Lock()
		defer mu.Unlock()
		if frame == 3 && !failed {
			failed = true
			return errors.New("scene threw")
		}
		return nil
	}
	p := New(mock.Factory(), Size(2))

	_, err := p.Render(context.Background(), 3)
	var rerr *session.RenderError
	assert.True(t, errors.As(err, &rerr))
	assert.Equal(t, 3, rerr.Frame)

	// the failed session was ended before the error surfaced.
	ended := mock.Ended()
	assert.Equal(t, 1, len(ended))
	for _, n := range ended {
		assert.Equal(t, 1, n)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		if i == 3 {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Render(context.Background(), i)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	// a replacement was spawned, but never more than max at a time.
	assert.True(t, len(mock.Created()) >= 2)
	assert.True(t, mock.Live() <= 2)
	assert.True(t, mock.MaxRendering() <= 2)

	assert.NoError(t, p.End())
	assert.Equal(t, 0, mock.Live())
}

func TestInitFailure(t *testing.T) {
	mock := session.NewMock(testScene)
	mock.InitFail = func(name string) error {
		if len(name) > 0 && name[len(name)-1] == '1' {
			return errors.New("browser crashed")
		}
		return nil
	}
	p := New(mock.Factory(), Size(1), Name("initfail"))
	defer p.End()

	_, err := p.Info(context.Background())
	var ierr *session.InitError
	assert.True(t, errors.As(err, &ierr))

	// the next call gets a fresh session.
	info, err := p.Info(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, testScene.Height, info.Height)
	assert.Equal(t, []string{"initfail-worker-1", "initfail-worker-2"}, mock.Created())
}

func TestEndTerminatesBusy(t *testing.T) {
	mock := session.NewMock(testScene)
	mock.Delay = func(int) time.Duration { return 50 * time.Millisecond }
	p := New(mock.Factory(), Size(3))

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Render(context.Background(), i)
		}()
	}

	// wait until all three are busy.
	for {
		_, busy := p.Counts()
		if busy == 3 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	assert.NoError(t, p.End())
	ended := mock.Ended()
	assert.Equal(t, 3, len(ended))
	for _, n := range ended {
		assert.Equal(t, 1, n)
	}
	wg.Wait()

	_, err := p.Render(context.Background(), 0)
	assert.IsError(t, err, ErrPoolClosed)
	assert.NoError(t, p.End())
}

func TestEndDropsMetrics(t *testing.T) {
	mock := session.NewMock(testScene)
	mock.Delay = func(int) time.Duration { return 30 * time.Millisecond }
	p := New(mock.Factory(), Size(2), Name("short-lived"))

	_, err := p.Render(context.Background(), 0)
	assert.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SessionsSpawned.WithLabelValues("short-lived")))

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Render(context.Background(), i)
		}()
	}
	for {
		_, busy := p.Counts()
		if busy == 2 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	assert.NoError(t, p.End())
	// renders finishing after End must not bring the series back.
	wg.Wait()

	assert.False(t, metrics.SessionsSpawned.DeleteLabelValues("short-lived"))
	assert.False(t, metrics.SessionsFailed.DeleteLabelValues("short-lived"))
	assert.False(t, metrics.SessionsBusy.DeleteLabelValues("short-lived"))
	assert.False(t, metrics.SessionsIdle.DeleteLabelValues("short-lived"))
	assert.False(t, metrics.AcquireSeconds.DeleteLabelValues("short-lived"))
	assert.False(t, metrics.RenderSeconds.DeleteLabelValues("short-lived"))
}

func TestWaitCancelled(t *testing.T) {
	mock := session.NewMock(testScene)
	mock.Delay = func(int) time.Duration { return 100 * time.Millisecond }
	p := New(mock.Factory(), Size(1))
	defer p.End()

	go p.Render(context.Background(), 0)
	for {
		_, busy := p.Counts()
		if busy == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := p.Render(ctx, 1)
	assert.IsError(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, len(mock.Created()))
}

func TestNegativeFrame(t *testing.T) {
	mock := session.NewMock(testScene)
	p := New(mock.Factory())
	defer p.End()

	_, err := p.Render(context.Background(), -1)
	assert.Error(t, err)
	assert.Equal(t, 0, len(mock.Created()))
}
