package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/superfly/frameRender/auth"
	"github.com/superfly/frameRender/output"
	"github.com/superfly/frameRender/pipeline"
	"github.com/superfly/frameRender/pool"
	"github.com/superfly/frameRender/server"
	"github.com/superfly/frameRender/session"
)

type renderFlags struct {
	url         string
	video       string
	ffmpeg      string
	png         string
	parallelism int
	start       int
	end         int
	scale       float64
	alpha       bool
	chromeArgs  []string
	remote      string
	tokenKey    string
	serverId    string
}

func defaultUrl() string {
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	return "file://" + filepath.Join(wd, "index.html")
}

func renderCmd() *cobra.Command {
	var f renderFlags
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a range of frames to a video and/or png files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRender(cmd.Context(), &f)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.url, "url", defaultUrl(), "page to render, or mock://name")
	flags.StringVar(&f.video, "video", "video.mp4", "video file to encode with ffmpeg, empty to skip")
	flags.StringVar(&f.ffmpeg, "ffmpeg", "ffmpeg", "ffmpeg binary")
	flags.StringVar(&f.png, "png", "", "directory to write frameNNNNNN.png files to")
	flags.IntVar(&f.parallelism, "parallelism", runtime.NumCPU(), "number of render sessions")
	flags.IntVar(&f.start, "start", 0, "first frame")
	flags.IntVar(&f.end, "end", -1, "frame to stop before, defaults to the scene's frame count")
	flags.Float64Var(&f.scale, "scale", 1, "device scale factor")
	flags.BoolVar(&f.alpha, "alpha", false, "render with a transparent background")
	flags.StringArrayVar(&f.chromeArgs, "chrome-arg", nil, "extra chrome flag, repeatable")
	flags.StringVar(&f.remote, "remote", "", "render through the server at this base url")
	flags.StringVar(&f.tokenKey, "token-key", os.Getenv("FRAMERENDER_PRIVATE"), "private key for signing remote requests")
	flags.StringVar(&f.serverId, "server-id", os.Getenv("FRAMERENDER_SERVER_ID"), "id of the remote server, for tokens")
	return cmd
}

func renderFactory(f *renderFlags) (session.Factory, error) {
	cfg := session.Config{Url: f.url, Alpha: f.alpha, Scale: f.scale}
	if f.remote == "" {
		return server.DefaultFactory(f.chromeArgs)(cfg), nil
	}

	var opts []session.RemoteOpt
	if f.tokenKey != "" {
		signer, err := auth.NewSigner(f.tokenKey)
		if err != nil {
			return nil, fmt.Errorf("auth.NewSigner: %w", err)
		}
		opts = append(opts, session.RemoteAuth(signer, f.serverId))
	}
	return session.NewRemoteFactory(f.remote, cfg, opts...), nil
}

func runRender(ctx context.Context, f *renderFlags) error {
	log := newLogger()
	defer log.Sync()

	if f.video == "" && f.png == "" {
		return fmt.Errorf("nothing to do: set --video or --png")
	}
	if f.parallelism < 1 {
		return fmt.Errorf("--parallelism must be at least 1")
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	factory, err := renderFactory(f)
	if err != nil {
		return err
	}

	p := pool.New(factory, pool.Name("render"), pool.Size(f.parallelism), pool.Logger(log))
	defer func() {
		if err := p.End(); err != nil {
			log.Warn("render: end pool", zap.Error(err))
		}
	}()

	info, err := p.Info(ctx)
	if err != nil {
		return fmt.Errorf("getInfo: %w", err)
	}
	log.Info("render: scene",
		zap.String("url", f.url),
		zap.Int("width", info.Width),
		zap.Int("height", info.Height),
		zap.Float64("fps", info.Fps),
		zap.Int("frames", info.NumberOfFrames))

	end := f.end
	if end < 0 {
		end = info.NumberOfFrames
	}
	if err := pipeline.CheckRange(f.start, end); err != nil {
		return fmt.Errorf("--start/--end: %w", err)
	}

	sinks, err := openSinks(f, info, log)
	if err != nil {
		return err
	}

	start := time.Now()
	if err := pipeline.New(p, pipeline.Sinks(sinks...), pipeline.Logger(log)).Run(ctx, f.start, end); err != nil {
		return err
	}

	for name, st := range p.Stats().Snapshot() {
		log.Info("render: stats", zap.String("name", name), zap.Int("count", st.Count),
			zap.Float64("avg", st.Avg), zap.Float64("min", st.Min), zap.Float64("max", st.Max), zap.Float64("stddev", st.StdDev))
	}
	log.Info("render: done", zap.Int("frames", end-f.start), zap.Duration("elapsed", time.Since(start)))
	return nil
}

// openSinks creates the outputs asked for. If one fails, those already
// created are aborted.
func openSinks(f *renderFlags, info *session.Info, log *zap.Logger) ([]pipeline.Sink, error) {
	var sinks []pipeline.Sink
	fail := func(err error) ([]pipeline.Sink, error) {
		for _, s := range sinks {
			if a, ok := s.(pipeline.Aborter); ok {
				a.Abort()
			}
		}
		return nil, err
	}

	if f.video != "" {
		ff, err := output.NewFfmpeg(f.video, info.Fps, output.FfmpegCommand(f.ffmpeg), output.FfmpegLogger(log))
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, ff)
	}
	if f.png != "" {
		dir, err := output.NewPngDir(f.png, log)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, dir)
	}
	return sinks, nil
}
