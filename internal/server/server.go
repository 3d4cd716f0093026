// Package server serves the monitor: the status page, the WebSocket state
// feed and Prometheus metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"

	"github.com/soar/padrelay/internal/hub"
)

type Options struct {
	Addr        string
	Hub         *hub.Hub
	Broadcaster *hub.Broadcaster
	// Pusher handles push_button requests from clients; nil disables them.
	Pusher   hub.ButtonPusher
	Gatherer prometheus.Gatherer
	// Page is the status page HTML, served minified at "/".
	Page []byte
}

type Server struct {
	hub         *hub.Hub
	broadcaster *hub.Broadcaster
	pusher      hub.ButtonPusher
	gatherer    prometheus.Gatherer
	page        []byte
	addr        string
	log         *zerolog.Logger

	ctx        context.Context
	cancel     context.CancelFunc
	httpServer *http.Server
}

func New(opts Options, logger *zerolog.Logger) (*Server, error) {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	page, err := minifyPage(opts.Page)
	if err != nil {
		return nil, fmt.Errorf("minify status page: %w", err)
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		hub:         opts.Hub,
		broadcaster: opts.Broadcaster,
		pusher:      opts.Pusher,
		gatherer:    gatherer,
		page:        page,
		addr:        opts.Addr,
		log:         logger,
		ctx:         ctx,
		cancel:      cancel,
	}
	s.httpServer = &http.Server{Handler: s.Handler()}
	return s, nil
}

func minifyPage(src []byte) ([]byte, error) {
	m := minify.New()
	m.AddFunc("text/css", css.Minify)
	m.AddFunc("text/html", html.Minify)
	m.AddFuncRegexp(regexp.MustCompile("^(application|text)/(x-)?(java|ecma)script$"), js.Minify)
	return m.Bytes("text/html", src)
}

// Handler returns the HTTP routes served by the monitor.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/", s.handlePage)
	return mux
}

// ListenAndServe blocks until the server stops. A graceful Shutdown returns nil.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	return s.Serve(ln)
}

func (s *Server) Serve(ln net.Listener) error {
	s.log.Info().Str("addr", ln.Addr().String()).Msg("HTTP server listening")
	err := s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	s.log.Info().Msg("Shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
