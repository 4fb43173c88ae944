package output

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"

	"go.uber.org/zap"
)

// Ffmpeg encodes frames into a video by piping PNGs into an ffmpeg process.
type Ffmpeg struct {
	path string
	fps  float64
	cmd  string
	args []string
	log  *zap.Logger

	mu     sync.Mutex
	proc   *exec.Cmd
	stdin  io.WriteCloser
	copied sync.WaitGroup
	done   bool
}

type FfmpegOpt func(*Ffmpeg)

// FfmpegCommand sets the ffmpeg binary.
func FfmpegCommand(cmd string) FfmpegOpt {
	return func(f *Ffmpeg) { f.cmd = cmd }
}

// FfmpegArgs replaces the arguments passed to ffmpeg.
func FfmpegArgs(args ...string) FfmpegOpt {
	return func(f *Ffmpeg) { f.args = args }
}

func FfmpegLogger(log *zap.Logger) FfmpegOpt {
	return func(f *Ffmpeg) { f.log = log }
}

// EncodeArgs returns the default ffmpeg arguments for writing path at fps.
func EncodeArgs(path string, fps float64) []string {
	return []string{
		"-f", "image2pipe",
		"-framerate", strconv.FormatFloat(fps, 'f', -1, 64),
		"-i", "-",
		"-c:v", "libx264",
		"-crf", "16",
		"-preset", "ultrafast",
		"-y", path,
	}
}

// NewFfmpeg starts ffmpeg writing a video to path.
func NewFfmpeg(path string, fps float64, opts ...FfmpegOpt) (*Ffmpeg, error) {
	if fps <= 0 {
		return nil, fmt.Errorf("ffmpeg: bad framerate %v", fps)
	}

	f := &Ffmpeg{
		path: path,
		fps:  fps,
		cmd:  "ffmpeg",
		args: EncodeArgs(path, fps),
		log:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}

	f.proc = exec.Command(f.cmd, f.args...)
	stdin, err := f.proc.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: stdin: %w", err)
	}
	stderr, err := f.proc.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: stderr: %w", err)
	}
	f.stdin = stdin

	if err := f.proc.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg: start %s: %w", f.cmd, err)
	}
	f.log.Info("ffmpeg: start", zap.String("path", path), zap.Int("pid", f.proc.Process.Pid))

	f.copied.Add(1)
	go f.copyLog(stderr)
	return f, nil
}

// copyLog forwards ffmpeg's stderr to the logger line by line.
func (f *Ffmpeg) copyLog(r io.Reader) {
	defer f.copied.Done()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		f.log.Debug("ffmpeg: stderr", zap.String("line", scanner.Text()))
	}
}

func (f *Ffmpeg) String() string {
	return "ffmpeg:" + f.path
}

func (f *Ffmpeg) WriteFrame(buf []byte, frame int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.done {
		return fmt.Errorf("ffmpeg: write after end")
	}
	if _, err := f.stdin.Write(buf); err != nil {
		return fmt.Errorf("ffmpeg: write frame %d: %w", frame, err)
	}
	return nil
}

// End closes ffmpeg's input and waits for the video to be written.
func (f *Ffmpeg) End() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.done {
		return nil
	}
	f.done = true

	err := f.stdin.Close()
	f.copied.Wait()
	if werr := f.proc.Wait(); werr != nil {
		var exitErr *exec.ExitError
		if errors.As(werr, &exitErr) {
			werr = fmt.Errorf("ffmpeg: exit code %d: %w", exitErr.ExitCode(), werr)
		}
		err = errors.Join(err, werr)
	}
	f.log.Info("ffmpeg: end", zap.String("path", f.path), zap.Error(err))
	return err
}

// Abort kills ffmpeg without finishing the video.
func (f *Ffmpeg) Abort() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.done {
		return nil
	}
	f.done = true

	err := f.proc.Process.Kill()
	f.stdin.Close()
	f.copied.Wait()
	f.proc.Wait()
	f.log.Warn("ffmpeg: abort", zap.String("path", f.path))
	return err
}
