package metrics

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/temoto/nmeaproxy/log2"
)

const shutdownTimeout = 2 * time.Second

// Server serves /metrics until Close.
type Server struct {
	log    *log2.Log
	ll     net.Listener
	server *http.Server
	done   chan struct{}
}

// Listen binds address immediately, so busy port is reported at startup.
func Listen(addr string, reg *prometheus.Registry, log *log2.Log) (*Server, error) {
	ll, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Annotatef(err, "metrics listen=%s", addr)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		ErrorLog: log.Stdlib(),
	}))
	s := &Server{
		log: log,
		ll:  ll,
		server: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ErrorLog:          log.Stdlib(),
		},
		done: make(chan struct{}),
	}
	go s.serve()
	log.Infof("metrics: serving http://%s/metrics", ll.Addr())
	return s, nil
}

func (s *Server) Addr() string { return s.ll.Addr().String() }

func (s *Server) serve() {
	defer close(s.done)
	if err := s.server.Serve(s.ll); err != nil && err != http.ErrServerClosed {
		s.log.Errorf("metrics: serve %v", err)
	}
}

func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := s.server.Shutdown(ctx)
	<-s.done
	return errors.Annotate(err, "metrics shutdown")
}
