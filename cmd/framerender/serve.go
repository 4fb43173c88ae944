package main

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/superfly/frameRender/auth"
	"github.com/superfly/frameRender/server"
)

type serveFlags struct {
	port        int
	parallelism int
	rate        float64
	burst       int
	publicKey   string
	serverId    string
	grace       time.Duration
	chromeArgs  []string
}

func serveCmd() *cobra.Command {
	var f serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve single frame renders over http",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(&f)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&f.port, "port", 8080, "http port")
	flags.IntVar(&f.parallelism, "parallelism", runtime.NumCPU(), "render sessions per pool")
	flags.Float64Var(&f.rate, "rate", 0, "requests per second per client, 0 for no limit")
	flags.IntVar(&f.burst, "burst", 10, "request burst per client")
	flags.StringVar(&f.publicKey, "public-key", os.Getenv("FRAMERENDER_PUBLIC"), "require tokens signed for this public key")
	flags.StringVar(&f.serverId, "server-id", os.Getenv("FRAMERENDER_SERVER_ID"), "server id tokens must name")
	flags.DurationVar(&f.grace, "grace", 5*time.Second, "graceful shutdown time")
	flags.StringArrayVar(&f.chromeArgs, "chrome-arg", nil, "extra chrome flag, repeatable")
	return cmd
}

func runServe(f *serveFlags) error {
	log := newLogger()
	defer log.Sync()

	opts := []server.Opt{
		server.Port(f.port),
		server.Parallelism(f.parallelism),
		server.Factories(server.DefaultFactory(f.chromeArgs)),
		server.RateLimit(f.rate, f.burst),
		server.Logger(log),
	}
	if f.publicKey != "" {
		if f.serverId == "" {
			return fmt.Errorf("--public-key needs --server-id")
		}
		verifier, err := auth.NewVerifier(f.publicKey, f.serverId, 5*time.Second, log)
		if err != nil {
			return fmt.Errorf("auth.NewVerifier: %w", err)
		}
		opts = append(opts, server.Verifier(verifier))
	}

	srv, err := server.New(opts...)
	if err != nil {
		return fmt.Errorf("server.New: %w", err)
	}
	defer srv.Close()

	log.Info("serve: listening", zap.Int("port", f.port), zap.Int("parallelism", f.parallelism))
	if err := server.RunWithSignals(srv.Server, f.grace, log); err != nil {
		return fmt.Errorf("RunWithSignals: %w", err)
	}
	log.Info("serve: stopped")
	return nil
}
