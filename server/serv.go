package server

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/superfly/frameRender/auth"
)

// Server renders single frames over http, keeping a pool warm for the
// most recent configuration.
type Server struct {
	*http.Server
	cache    *Cache
	verifier auth.Verifier
	log      *zap.Logger

	port        int
	parallelism int
	newFactory  FactoryFunc
	rate        rate.Limit
	burst       int
}

type Opt func(*Server)

func Port(port int) Opt {
	return func(s *Server) { s.port = port }
}

// Parallelism sets the size of every pool the server builds.
func Parallelism(n int) Opt {
	return func(s *Server) { s.parallelism = n }
}

// Factories sets how sessions are made for a configuration.
func Factories(f FactoryFunc) Opt {
	return func(s *Server) { s.newFactory = f }
}

// RateLimit limits each client to r requests per second with bursts of b.
// A non-positive r disables limiting.
func RateLimit(r float64, b int) Opt {
	return func(s *Server) {
		s.rate = rate.Limit(r)
		s.burst = b
	}
}

// Verifier requires requests to carry a token accepted by v.
func Verifier(v auth.Verifier) Opt {
	return func(s *Server) { s.verifier = v }
}

func Logger(log *zap.Logger) Opt {
	return func(s *Server) { s.log = log }
}

func New(opts ...Opt) (*Server, error) {
	server := &Server{
		log:         zap.NewNop(),
		port:        8080,
		parallelism: runtime.NumCPU(),
		newFactory:  DefaultFactory(nil),
	}
	for _, opt := range opts {
		opt(server)
	}
	if server.parallelism < 1 {
		return nil, fmt.Errorf("parallelism must be at least 1, got %d", server.parallelism)
	}

	server.cache = NewCache(server.parallelism, server.newFactory, server.log)

	render := http.NewServeMux()
	render.HandleFunc("GET /render", server.handleRender)
	render.HandleFunc("GET /info", server.handleInfo)

	var renderHandler http.Handler = render
	if server.verifier != nil {
		renderHandler = server.withAuth(renderHandler)
	}
	if server.rate > 0 {
		lim := newLimiter(server.rate, server.burst, time.Minute, server.log)
		renderHandler = lim.middleware(renderHandler)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /render", server.withRequest("render", renderHandler))
	mux.Handle("GET /info", server.withRequest("info", renderHandler))
	mux.Handle("GET /stats", server.withRequest("stats", http.HandlerFunc(server.handleStats)))
	mux.Handle("GET /metrics", promhttp.Handler())

	server.Server = &http.Server{
		Addr:           fmt.Sprintf(":%d", server.port),
		ReadTimeout:    10 * time.Second,
		MaxHeaderBytes: 4096,
		Handler:        mux,
	}
	return server, nil
}

// Cache returns the server's pool cache.
func (s *Server) Cache() *Cache {
	return s.cache
}

// Close stops the http server and ends the live pool.
func (s *Server) Close() error {
	err := s.Server.Close()
	if cerr := s.cache.Close(); cerr != nil {
		s.log.Warn("server: end pool", zap.Error(cerr))
	}
	return err
}
