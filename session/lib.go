package session

import (
	"context"
	"encoding/json"
	"fmt"
)

// Info is the scene metadata reported by a session.
// Width and Height come from the scene element, the rest from the page's getInfo().
type Info struct {
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	Fps            float64 `json:"fps"`
	NumberOfFrames int     `json:"numberOfFrames"`

	// Extra holds any additional fields the scene reported.
	// They are encoded alongside the fields above, not nested.
	Extra map[string]any `json:"-"`
}

// infoFields is Info without its custom encoding.
type infoFields Info

func (i Info) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(i.Extra)+4)
	for k, v := range i.Extra {
		m[k] = v
	}
	m["width"] = i.Width
	m["height"] = i.Height
	m["fps"] = i.Fps
	m["numberOfFrames"] = i.NumberOfFrames
	return json.Marshal(m)
}

func (i *Info) UnmarshalJSON(bs []byte) error {
	var m map[string]any
	if err := json.Unmarshal(bs, &m); err != nil {
		return err
	}
	info, err := InfoFromMap(m)
	if err != nil {
		return err
	}
	*i = *info
	return nil
}

// Session is one live rendering context.
// At most one Render may be in flight at a time.
type Session interface {
	Info(ctx context.Context) (*Info, error)
	Render(ctx context.Context, frame int) ([]byte, error)
	End() error
}

// Factory creates a new session. The session starts initializing
// immediately, and all operations wait for initialization to finish.
type Factory func(name string) Session

// Config is the rendering configuration a factory is bound to.
type Config struct {
	Url   string   `json:"url"`
	Alpha bool     `json:"alpha"`
	Scale float64  `json:"scale"`
	Args  []string `json:"-"`
}

// Key returns the canonical cache key for the config.
// Only url, alpha and scale take part in it.
func (c Config) Key() string {
	scale := c.Scale
	if scale <= 0 {
		scale = 1
	}
	bs, _ := json.Marshal(struct {
		Url   string  `json:"url"`
		Alpha bool    `json:"alpha"`
		Scale float64 `json:"scale"`
	}{c.Url, c.Alpha, scale})
	return string(bs)
}

func (c Config) String() string {
	return fmt.Sprintf("%s (alpha=%v scale=%v)", c.Url, c.Alpha, c.Scale)
}

// InfoFromMap builds Info from the object a scene reported.
func InfoFromMap(m map[string]any) (*Info, error) {
	bs, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode scene info: %w", err)
	}

	var fields infoFields
	if err := json.Unmarshal(bs, &fields); err != nil {
		return nil, fmt.Errorf("decode scene info: %w", err)
	}
	info := Info(fields)

	for k, v := range m {
		switch k {
		case "width", "height", "fps", "numberOfFrames":
			continue
		}
		if info.Extra == nil {
			info.Extra = make(map[string]any)
		}
		info.Extra[k] = v
	}
	return &info, nil
}
