package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metricServer serves the default Prometheus registry on /metrics.
type metricServer struct {
	mu     sync.Mutex
	server *http.Server
	addr   net.Addr
	// closed is set by Shutdown so a late ListenAndServe returns at once.
	closed bool
}

func (m *metricServer) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}

// Addr returns the bound address once ListenAndServe is listening.
func (m *metricServer) Addr() net.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addr
}

func (m *metricServer) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ln.Close()
	}
	m.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	m.addr = ln.Addr()
	srv := m.server
	m.mu.Unlock()

	err = srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
