package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Handler processes one raw request and returns the raw response. An error
// aborts the connection without a response.
type Handler interface {
	ServeRequest(ctx context.Context, req []byte) ([]byte, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req []byte) ([]byte, error)

// ServeRequest implements Handler.
func (f HandlerFunc) ServeRequest(ctx context.Context, req []byte) ([]byte, error) {
	return f(ctx, req)
}

// IDGenerator produces request ids for connection logs.
type IDGenerator interface {
	Generate() string
}

// UUIDv7 generates time-ordered UUID request ids.
type UUIDv7 struct{}

// Generate implements IDGenerator.
func (UUIDv7) Generate() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Observer is told about every finished exchange. metrics.Metrics
// implements it.
type Observer interface {
	ObserveRequest(service, outcome string, took time.Duration)
	ObserveNotifies(count int)
}

type nopObserver struct{}

func (nopObserver) ObserveRequest(string, string, time.Duration) {}
func (nopObserver) ObserveNotifies(int)                          {}

// Request outcomes reported to the Observer.
const (
	OutcomeOK      = "ok"
	OutcomeAborted = "aborted"
)

// Defaults. No timeout is required by the exchange model; the deadlines
// keep a stalled peer from holding a socket forever.
const (
	DefaultReadTimeout    = 30 * time.Second
	DefaultWriteTimeout   = 10 * time.Second
	DefaultMaxRequestSize = 1 << 20
	DefaultMinBackoff     = 100 * time.Millisecond
	DefaultMaxBackoff     = 30 * time.Second
)

// ErrRequestTooLarge is returned when a request exceeds the size limit.
var ErrRequestTooLarge = errors.New("request too large")

// SocketServer serves a Handler on a Unix socket, one connection at a
// time.
type SocketServer struct {
	name    string
	path    string
	handler Handler

	logger         *slog.Logger
	ids            IDGenerator
	observer       Observer
	readTimeout    time.Duration
	writeTimeout   time.Duration
	maxRequestSize int64
	minBackoff     time.Duration
	maxBackoff     time.Duration

	readyOnce sync.Once
	ready     chan struct{}
}

// Option configures a SocketServer.
type Option func(*SocketServer)

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *SocketServer) { s.logger = l }
}

// WithIDGenerator sets the request id source. Default: UUIDv7.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *SocketServer) { s.ids = g }
}

// WithObserver sets the exchange observer.
func WithObserver(o Observer) Option {
	return func(s *SocketServer) { s.observer = o }
}

// WithTimeouts sets the per-connection read and write deadlines. Zero
// disables a deadline.
func WithTimeouts(read, write time.Duration) Option {
	return func(s *SocketServer) {
		s.readTimeout = read
		s.writeTimeout = write
	}
}

// WithMaxRequestSize bounds the request size in bytes. Zero or less
// disables the bound.
func WithMaxRequestSize(n int64) Option {
	return func(s *SocketServer) { s.maxRequestSize = n }
}

// WithBindBackoff sets the retry delays used when binding fails.
func WithBindBackoff(first, limit time.Duration) Option {
	return func(s *SocketServer) {
		s.minBackoff = first
		s.maxBackoff = limit
	}
}

// NewSocketServer creates a server named name (used in logs and metrics)
// that will listen on path.
func NewSocketServer(name, path string, h Handler, opts ...Option) *SocketServer {
	s := &SocketServer{
		name:           name,
		path:           path,
		handler:        h,
		logger:         slog.Default(),
		ids:            UUIDv7{},
		observer:       nopObserver{},
		readTimeout:    DefaultReadTimeout,
		writeTimeout:   DefaultWriteTimeout,
		maxRequestSize: DefaultMaxRequestSize,
		minBackoff:     DefaultMinBackoff,
		maxBackoff:     DefaultMaxBackoff,
		ready:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("service", name, "path", path)
	if s.minBackoff <= 0 {
		s.minBackoff = DefaultMinBackoff
	}
	if s.maxBackoff < s.minBackoff {
		s.maxBackoff = s.minBackoff
	}
	return s
}

// Path returns the socket path.
func (s *SocketServer) Path() string {
	return s.path
}

// Ready is closed once the server first listens.
func (s *SocketServer) Ready() <-chan struct{} {
	return s.ready
}

// Serve binds the socket and handles connections until ctx is cancelled.
//
// A failed bind or a broken listener is logged and retried with capped
// exponential backoff; it never ends the process. Serve returns nil once
// ctx is done and the socket file has been removed.
func (s *SocketServer) Serve(ctx context.Context) error {
	backoff := s.minBackoff
	for {
		ln, err := s.listen()
		if err == nil {
			s.readyOnce.Do(func() { close(s.ready) })
			s.logger.Info("socket server listening")
			err = s.acceptLoop(ctx, ln)
			s.cleanup(ln)
			if ctx.Err() != nil {
				s.logger.Info("socket server stopped")
				return nil
			}
			backoff = s.minBackoff
			s.logger.Error("listener failed", "error", err, "retry_in", backoff)
		} else {
			s.logger.Error("bind failed", "error", err, "retry_in", backoff)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, s.maxBackoff)
	}
}

func (s *SocketServer) listen() (net.Listener, error) {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("removing stale socket %s: %w", s.path, err)
	}
	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", s.path, err)
	}
	return ln, nil
}

func (s *SocketServer) cleanup(ln net.Listener) {
	ln.Close()
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("removing socket", "error", err)
	}
}

// acceptLoop returns nil when ctx is cancelled, or the error that broke
// the listener.
func (s *SocketServer) acceptLoop(ctx context.Context, ln net.Listener) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			ln.Close()
		case <-done:
		}
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			s.logger.Warn("accept failed", "error", err)
			continue
		}
		s.handleConnection(ctx, conn)
	}
}

func (s *SocketServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	start := time.Now()
	logger := s.logger.With("request_id", s.ids.Generate())

	if s.readTimeout > 0 {
		conn.SetReadDeadline(start.Add(s.readTimeout))
	}
	req, err := readAll(conn, s.maxRequestSize)
	if err != nil {
		logger.Warn("reading request", "error", err)
		s.observer.ObserveRequest(s.name, OutcomeAborted, time.Since(start))
		return
	}
	if len(req) == 0 {
		logger.Debug("empty request")
		s.observer.ObserveRequest(s.name, OutcomeAborted, time.Since(start))
		return
	}

	resp, err := s.handler.ServeRequest(ctx, req)
	if err != nil {
		logger.Warn("request aborted", "error", err)
		s.observer.ObserveRequest(s.name, OutcomeAborted, time.Since(start))
		return
	}

	if s.writeTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	if _, err := conn.Write(resp); err != nil {
		logger.Debug("writing response", "error", err)
	}
	logger.Debug("request served", "bytes_in", len(req), "bytes_out", len(resp), "took", time.Since(start))
	s.observer.ObserveRequest(s.name, OutcomeOK, time.Since(start))
}

// readAll reads r to EOF, failing once more than limit bytes arrive.
func readAll(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrRequestTooLarge, limit)
	}
	return data, nil
}
