package smtpd

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	goSubmit "github.com/MrEthical07/goSubmit"
	"github.com/oklog/ulid/v2"
)

// ErrServerClosed is returned by Serve after Shutdown or Close.
var ErrServerClosed = errors.New("smtpd: server closed")

// Config holds listener settings. Transaction limits such as the recipient
// cap are enforced by the Engine.
type Config struct {
	Addr         string
	Domain       string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// MaxMessageBytes is advertised with SIZE and caps the DATA payload.
	MaxMessageBytes int64
	// MaxLineLength bounds a single command or message line.
	MaxLineLength int
	// MaxInvalidCommands closes the connection after that many unknown
	// verbs. Zero disables the limit.
	MaxInvalidCommands int
	// AllowInsecureAuth offers AUTH on connections without TLS.
	AllowInsecureAuth bool
	// TLSConfig enables STARTTLS.
	TLSConfig *tls.Config
}

// DefaultConfig returns settings for a plaintext submission listener on
// port 587.
func DefaultConfig() Config {
	return Config{
		Addr:               ":587",
		Domain:             "localhost",
		ReadTimeout:        2 * time.Minute,
		WriteTimeout:       2 * time.Minute,
		MaxMessageBytes:    25 << 20,
		MaxLineLength:      2000,
		MaxInvalidCommands: 10,
	}
}

// Server accepts SMTP connections and drives each through the Engine. It
// also owns the Engine's reaper while serving.
type Server struct {
	engine *goSubmit.Engine
	cfg    Config
	logger *slog.Logger
	newID  func() string

	mu        sync.Mutex
	listeners map[net.Listener]struct{}
	conns     map[*conn]struct{}
	wg        sync.WaitGroup
	done      chan struct{}
	closeOnce sync.Once
}

// NewServer wires an Engine behind an SMTP listener. A nil logger discards
// output.
func NewServer(engine *goSubmit.Engine, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		engine:    engine,
		cfg:       cfg,
		logger:    logger,
		newID:     func() string { return ulid.Make().String() },
		listeners: make(map[net.Listener]struct{}),
		conns:     make(map[*conn]struct{}),
		done:      make(chan struct{}),
	}
}

// Serve accepts connections on l. It returns nil once Shutdown or Close
// stops it, and ErrServerClosed when called after that.
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	if s.closing() {
		s.mu.Unlock()
		return ErrServerClosed
	}
	s.listeners[l] = struct{}{}
	s.mu.Unlock()

	s.engine.StartReaper(context.Background())
	s.logger.Info("smtp submission listening", "addr", l.Addr().String())

	var tempDelay time.Duration
	for {
		nc, err := l.Accept()
		if err != nil {
			if s.closing() {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else if tempDelay *= 2; tempDelay > time.Second {
					tempDelay = time.Second
				}
				s.logger.Warn("smtp accept", "error", err.Error(), "retry_in", tempDelay.String())
				time.Sleep(tempDelay)
				continue
			}
			return err
		}
		tempDelay = 0

		c := newConn(s, nc)
		if !s.track(c) {
			_ = nc.Close()
			return nil
		}
		go func() {
			defer s.untrack(c)
			c.serve()
		}()
	}
}

// ListenAndServe listens on the configured address.
func (s *Server) ListenAndServe() error {
	l, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Shutdown stops accepting connections and waits for open ones to finish
// their current command. Connections still open when ctx expires are
// closed.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.stopListening()

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
	case <-ctx.Done():
		s.dropConns()
		<-finished
		err = ctx.Err()
	}
	s.engine.StopReaper()
	return err
}

// Close drops every open connection immediately.
func (s *Server) Close() error {
	err := s.stopListening()
	s.dropConns()
	s.wg.Wait()
	s.engine.StopReaper()
	return err
}

func (s *Server) closing() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Server) stopListening() error {
	s.closeOnce.Do(func() { close(s.done) })

	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	for l := range s.listeners {
		if cerr := l.Close(); cerr != nil && err == nil {
			err = cerr
		}
		delete(s.listeners, l)
	}
	return err
}

func (s *Server) dropConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		_ = c.raw.Close()
	}
}

func (s *Server) track(c *conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing() {
		return false
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(c *conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	s.wg.Done()
}
