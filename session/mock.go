package session

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"time"
)

// MockScheme is the url scheme served by mock sessions instead of a browser.
const MockScheme = "mock://"

// IsMockUrl returns true if url should be rendered by mock sessions.
func IsMockUrl(url string) bool {
	return strings.HasPrefix(url, MockScheme)
}

// Mock is a factory of in-process sessions that draw synthetic frames.
// It records session lifecycles so tests can inspect them.
type Mock struct {
	Scene Info
	Alpha bool

	// InitDelay is how long a session takes to start.
	InitDelay time.Duration
	// Delay returns how long rendering frame takes.
	Delay func(frame int) time.Duration
	// InitFail, if set, makes the named session fail to start.
	InitFail func(name string) error
	// Fail, if set, makes rendering frame on the named session fail.
	Fail func(name string, frame int) error

	mu           sync.Mutex
	created      []string
	ended        map[string]int
	live         int
	rendering    int
	maxRendering int
}

// NewMock returns a mock factory for a scene described by info.
func NewMock(info Info) *Mock {
	return &Mock{
		Scene: info,
		ended: make(map[string]int),
	}
}

// DefaultMock returns a small mock scene used for mock:// urls.
func DefaultMock(cfg Config) *Mock {
	m := NewMock(Info{Width: 64, Height: 36, Fps: 30, NumberOfFrames: 60})
	m.Alpha = cfg.Alpha
	return m
}

func (m *Mock) Factory() Factory {
	return func(name string) Session {
		m.mu.Lock()
		m.created = append(m.created, name)
		m.mu.Unlock()

		return New(name, func(ctx context.Context) (Driver, error) {
			if m.InitDelay > 0 {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(m.InitDelay):
				}
			}
			if m.InitFail != nil {
				if err := m.InitFail(name); err != nil {
					return nil, err
				}
			}

			m.mu.Lock()
			m.live += 1
			m.mu.Unlock()
			info := m.Scene
			return &mockDriver{mock: m, name: name, info: &info}, nil
		})
	}
}

// Created returns the names of all sessions created so far.
func (m *Mock) Created() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.created...)
}

// Ended returns how many times each session's driver was closed.
func (m *Mock) Ended() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	ended := make(map[string]int, len(m.ended))
	for k, v := range m.ended {
		ended[k] = v
	}
	return ended
}

// Live returns the number of started, not yet closed drivers.
func (m *Mock) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live
}

// MaxRendering returns the highest number of simultaneous renders seen.
func (m *Mock) MaxRendering() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxRendering
}

type mockDriver struct {
	mock *Mock
	name string
	info *Info
}

func (d *mockDriver) Info() *Info {
	return d.info
}

func (d *mockDriver) Render(frame int) ([]byte, error) {
	m := d.mock
	m.mu.Lock()
	m.rendering += 1
	if m.rendering > m.maxRendering {
		m.maxRendering = m.rendering
	}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.rendering -= 1
		m.mu.Unlock()
	}()

	if m.Delay != nil {
		time.Sleep(m.Delay(frame))
	}
	if m.Fail != nil {
		if err := m.Fail(d.name, frame); err != nil {
			return nil, err
		}
	}
	return drawFrame(d.info, frame, m.Alpha)
}

func (d *mockDriver) Close() error {
	m := d.mock
	m.mu.Lock()
	defer m.mu.Unlock()
	m.live -= 1
	m.ended[d.name] += 1
	return nil
}

// drawFrame draws a frame whose color encodes the frame number.
func drawFrame(info *Info, frame int, alpha bool) ([]byte, error) {
	img := image.NewNRGBA(image.Rect(0, 0, info.Width, info.Height))
	n := info.NumberOfFrames
	if n <= 0 {
		n = 1
	}
	shade := uint8(255 * (frame % n) / n)
	bg := color.NRGBA{R: 0, G: 0, B: 0, A: 255}
	if alpha {
		bg.A = 0
	}
	fg := color.NRGBA{R: shade, G: 255 - shade, B: 128, A: 255}

	// a bar that sweeps across the scene.
	barX := info.Width * (frame % n) / n
	for y := 0; y < info.Height; y++ {
		for x := 0; x < info.Width; x++ {
			if x >= barX && x < barX+info.Width/10+1 {
				img.SetNRGBA(x, y, fg)
			} else {
				img.SetNRGBA(x, y, bg)
			}
		}
	}

	buf := bytes.NewBuffer(nil)
	if err := png.Encode(buf, img); err != nil {
		return nil, fmt.Errorf("png.Encode: %w", err)
	}
	return buf.Bytes(), nil
}
