// Package server implements the TCP listener and per-connection
// accept loop: one goroutine per connection, each owning its own Job
// Manager. There is no shared job registry across connections.
package server

import (
	"context"
	"net"
	"strconv"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/behrlich/transposed/internal/constants"
	"github.com/behrlich/transposed/internal/eventlog"
	"github.com/behrlich/transposed/internal/logging"
	"github.com/behrlich/transposed/internal/memoracle"
	"github.com/behrlich/transposed/internal/metrics"
)

// Server binds the listener and accepts connections, handing each to its
// own goroutine and Job Manager.
type Server struct {
	Oracle  memoracle.Oracle
	Metrics *metrics.Metrics
	EventLog *eventlog.Logger
	Log     *logging.Logger

	mu       sync.Mutex
	listener net.Listener
}

// New constructs a Server with defaults filled in for any nil field
// (a production sysOracle, the process metrics, and the default
// loggers).
func New(oracle memoracle.Oracle, mtr *metrics.Metrics, evlog *eventlog.Logger, log *logging.Logger) *Server {
	if oracle == nil {
		oracle = memoracle.NewSysOracle()
	}
	if mtr == nil {
		mtr = metrics.NewMetrics()
	}
	if evlog == nil {
		evlog = eventlog.Default()
	}
	if log == nil {
		log = logging.Default()
	}
	return &Server{Oracle: oracle, Metrics: mtr, EventLog: evlog, Log: log}
}

// listenConfig sets SO_REUSEADDR on the listening socket the way the
// teacher's queue runner reaches for unix.* syscalls directly rather than
// relying on stdlib defaults.
func listenConfig() net.ListenConfig {
	return net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}
}

// ListenAndServe binds to 127.0.0.1:port (port="" picks any free port),
// prints the listen event line, and serves connections until the
// listener is closed.
func (s *Server) ListenAndServe(port string) error {
	cfg := listenConfig()
	ln, err := cfg.Listen(context.Background(), "tcp", net.JoinHostPort(constants.ListenAddress, port))
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	_, boundPort, _ := net.SplitHostPort(ln.Addr().String())
	s.EventLog.Listen(boundPort)
	s.Log.Infof("listening on %s", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.listener == nil
			s.mu.Unlock()
			if closed {
				return nil
			}
			s.Log.Warnf("accept error: %v", err)
			continue
		}

		_, peerPort, _ := net.SplitHostPort(conn.RemoteAddr().String())
		s.EventLog.Accept(peerPort)

		go s.handleConn(conn)
	}
}

// Close stops accepting new connections. In-flight connections and their
// running transposes are left to finish; this matches the spec's
// deliberate absence of any cancellation path.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	ln := s.listener
	s.listener = nil
	return ln.Close()
}

// BoundPort returns the port the listener is bound to, valid only after
// ListenAndServe has returned from cfg.Listen.
func (s *Server) BoundPort() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return 0, net.ErrClosed
	}
	_, p, err := net.SplitHostPort(s.listener.Addr().String())
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(p)
}
