package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
)

var testScene = Info{Width: 32, Height: 18, Fps: 24, NumberOfFrames: 48}

func TestInfoCached(t *testing.T) {
	mock := NewMock(testScene)
	mock.InitDelay = 5 * time.Millisecond
	s := mock.Factory()("s1")
	defer s.End()

	ctx := context.Background()
	a, err := s.Info(ctx)
	assert.NoError(t, err)
	b, err := s.Info(ctx)
	assert.NoError(t, err)
	assert.True(t, a == b)
	assert.Equal(t, 32, a.Width)
	assert.Equal(t, 48, a.NumberOfFrames)
}

func TestRenderFrame(t *testing.T) {
	mock := NewMock(testScene)
	s := mock.Factory()("s1")
	defer s.End()

	buf, err := s.Render(context.Background(), 12)
	assert.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(buf))
	assert.NoError(t, err)
	assert.Equal(t, 32, img.Bounds().Dx())
	assert.Equal(t, 18, img.Bounds().Dy())
}

func TestAlphaFrame(t *testing.T) {
	mock := NewMock(testScene)
	mock.Alpha = true
	s := mock.Factory()("s1")
	defer s.End()

	buf, err := s.Render(context.Background(), 0)
	assert.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(buf))
	assert.NoError(t, err)

	// the bar starts at x=0, so sample the far corner.
	_, _, _, a := img.At(31, 17).RGBA()
	assert.Equal(t, uint32(0), a)
}

func TestConcurrentRender(t *testing.T) {
	mock := NewMock(testScene)
	mock.Delay = func(int) time.Duration { return 50 * time.Millisecond }
	s := mock.Factory()("s1")
	defer s.End()

	done := make(chan error)
	go func() {
		_, err := s.Render(context.Background(), 0)
		done <- err
	}()

	// give the first render time to start.
	time.Sleep(10 * time.Millisecond)
	_, err := s.Render(context.Background(), 1)
	assert.IsError(t, err, ErrConcurrentRender)
	assert.NoError(t, <-done)

	// and it can render again once the first finished.
	_, err = s.Render(context.Background(), 1)
	assert.NoError(t, err)
}

func TestInitError(t *testing.T) {
	boom := errors.New("no browser")
	s := New("s1", func(ctx context.Context) (Driver, error) {
		return nil, boom
	})

	_, err := s.Info(context.Background())
	var ierr *InitError
	assert.True(t, errors.As(err, &ierr))
	assert.Equal(t, "s1", ierr.Session)
	assert.IsError(t, err, boom)

	_, err = s.Render(context.Background(), 0)
	assert.IsError(t, err, boom)

	assert.NoError(t, s.End())
}

func TestRenderError(t *testing.T) {
	mock := NewMock(testScene)
	mock.Fail = func(name string, frame int) error {
		return errors.New("seekToFrame is not defined")
	}
	s := mock.Factory()("s1")
	defer s.End()

	_, err := s.Render(context.Background(), 7)
	var rerr *RenderError
	assert.True(t, errors.As(err, &rerr))
	assert.Equal(t, 7, rerr.Frame)
}

func TestEndOnce(t *testing.T) {
	mock := NewMock(testScene)
	s := mock.Factory()("s1")
	_, err := s.Info(context.Background())
	assert.NoError(t, err)

	assert.NoError(t, s.End())
	assert.NoError(t, s.End())
	assert.Equal(t, map[string]int{"s1": 1}, mock.Ended())
	assert.Equal(t, 0, mock.Live())

	_, err = s.Info(context.Background())
	assert.IsError(t, err, ErrEnded)
}

func TestEndDuringInit(t *testing.T) {
	mock := NewMock(testScene)
	mock.InitDelay = time.Minute
	s := mock.Factory()("s1")

	assert.NoError(t, s.End())
	assert.Equal(t, 0, len(mock.Ended()))
	assert.Equal(t, 0, mock.Live())
}

func TestWaitCancelled(t *testing.T) {
	mock := NewMock(testScene)
	mock.InitDelay = time.Second
	s := mock.Factory()("s1")
	defer s.End()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_, err := s.Info(ctx)
	assert.IsError(t, err, context.DeadlineExceeded)
}

func TestConfigKey(t *testing.T) {
	a := Config{Url: "http://x/", Scale: 1}
	b := Config{Url: "http://x/", Args: []string{"--no-sandbox"}}
	c := Config{Url: "http://x/", Scale: 2}
	d := Config{Url: "http://x/", Scale: 1, Alpha: true}

	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
	assert.NotEqual(t, a.Key(), d.Key())
	assert.Equal(t, `{"url":"http://x/","alpha":false,"scale":1}`, a.Key())
}

func TestInfoFromMap(t *testing.T) {
	info, err := InfoFromMap(map[string]any{
		"width":          float64(1920),
		"height":         float64(1080),
		"fps":            float64(60),
		"numberOfFrames": float64(300),
		"title":          "hello",
	})
	assert.NoError(t, err)
	assert.Equal(t, 1920, info.Width)
	assert.Equal(t, 300, info.NumberOfFrames)
	assert.Equal(t, map[string]any{"title": "hello"}, info.Extra)
}

func TestInfoJson(t *testing.T) {
	info := Info{Width: 640, Height: 360, Fps: 24, NumberOfFrames: 48, Extra: map[string]any{"title": "intro"}}
	bs, err := json.Marshal(&info)
	assert.NoError(t, err)

	var flat map[string]any
	assert.NoError(t, json.Unmarshal(bs, &flat))
	assert.Equal(t, map[string]any{
		"width":          float64(640),
		"height":         float64(360),
		"fps":            float64(24),
		"numberOfFrames": float64(48),
		"title":          "intro",
	}, flat)

	var back Info
	assert.NoError(t, json.Unmarshal(bs, &back))
	assert.Equal(t, info, back)

	bs, err = json.Marshal(Info{Width: 1, Height: 1})
	assert.NoError(t, err)
	assert.False(t, strings.Contains(string(bs), "extra"))
}

func TestAllocatorOptions(t *testing.T) {
	base := len(allocatorOptions(nil))
	opts := allocatorOptions([]string{"--no-sandbox", "--window-size=800,600", "--"})
	assert.Equal(t, base+2, len(opts))
}
