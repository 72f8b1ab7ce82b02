package metricsrv

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/tinytelemetry/netwatch/internal/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server serves the Prometheus text endpoint.
type Server struct {
	addr     string
	registry *prometheus.Registry
	server   *http.Server
}

// NewServer registers the snapshot collector on a fresh registry.
func NewServer(addr string, source model.SnapshotSource) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(NewCollector(source))
	return &Server{addr: addr, registry: registry}
}

// Start begins serving /metrics.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go s.server.Serve(listener)
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
