package pool

import (
	"context"

	"github.com/superfly/frameRender/session"
)

// Renderer renders frames of one scene.
type Renderer interface {
	Info(ctx context.Context) (*session.Info, error)
	Render(ctx context.Context, frame int) ([]byte, error)
}

var _ Renderer = (*Pool)(nil)
