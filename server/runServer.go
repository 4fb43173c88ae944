package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// RunWithSignals serves until the server stops on its own or SIGINT/SIGTERM
// arrives. On a signal, in-flight requests get graceTime to finish before
// remaining connections are closed.
func RunWithSignals(s *http.Server, graceTime time.Duration, log *zap.Logger) error {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)
	return runUntil(s, graceTime, sig, log)
}

func runUntil(s *http.Server, graceTime time.Duration, stop <-chan os.Signal, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}

	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe() }()

	var err error
	select {
	case got := <-stop:
		log.Info("server: shutting down", zap.Stringer("signal", got), zap.Duration("grace", graceTime))
		ctx, cancel := context.WithTimeout(context.Background(), graceTime)
		if serr := s.Shutdown(ctx); serr != nil {
			log.Warn("server: graceful shutdown", zap.Error(serr))
		}
		cancel()
		s.Close()
		err = <-done
	case err = <-done:
	}

	if !errors.Is(err, http.ErrServerClosed) {
		log.Error("server: listen", zap.Error(err))
		return err
	}
	return nil
}
