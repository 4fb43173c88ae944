package output

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// PngDir writes every frame to its own file in a directory.
type PngDir struct {
	dir string
	log *zap.Logger
}

// FrameName returns the file name used for frame.
func FrameName(frame int) string {
	return fmt.Sprintf("frame%06d.png", frame)
}

// NewPngDir creates dir if needed.
func NewPngDir(dir string, log *zap.Logger) (*PngDir, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("png: mkdir %s: %w", dir, err)
	}
	return &PngDir{dir: dir, log: log}, nil
}

func (p *PngDir) String() string {
	return "png:" + p.dir
}

func (p *PngDir) WriteFrame(buf []byte, frame int) error {
	path := filepath.Join(p.dir, FrameName(frame))
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("png: write %s: %w", path, err)
	}
	p.log.Debug("png: wrote frame", zap.String("path", path))
	return nil
}

func (p *PngDir) End() error {
	return nil
}
