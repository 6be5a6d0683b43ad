package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/raniellyferreira/redis-injector/lua"
	"github.com/raniellyferreira/redis-injector/protocol"
	"github.com/raniellyferreira/redis-injector/storage"
)

// DefaultIdleTimeout closes connections that send nothing for this long
const DefaultIdleTimeout = 5 * time.Minute

// Option configures a Server
type Option func(*Server)

// WithPassword requires AUTH before any other command
func WithPassword(password string) Option {
	return func(s *Server) { s.password = password }
}

// WithLogger sets the server logger
func WithLogger(logger Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithIdleTimeout sets the per-connection read deadline. Zero disables it.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Server) { s.idleTimeout = d }
}

// Server serves a storage.Storage over RESP
type Server struct {
	store       storage.Storage
	lua         *lua.Engine
	addr        string
	password    string
	idleTimeout time.Duration
	logger      Logger

	listener net.Listener
	clients  sync.Map // net.Conn -> *client

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	connections atomic.Int64
	commands    atomic.Int64
	errors      atomic.Int64
}

// NewServer creates a server that will listen on addr
func NewServer(addr string, store storage.Storage, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		store:       store,
		lua:         lua.NewEngine(store),
		addr:        addr,
		idleTimeout: DefaultIdleTimeout,
		logger:      nopLogger{},
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start binds the listener and begins accepting clients
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln
	s.logger.Info("Sink server listening", "addr", ln.Addr().String())

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Stop closes the listener and every client, then waits for handlers
func (s *Server) Stop() error {
	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}
	s.clients.Range(func(_, v interface{}) bool {
		v.(*client).close()
		return true
	})
	s.wg.Wait()
	return nil
}

// Addr returns the bound address once started
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Stats returns connection and command counters
func (s *Server) Stats() map[string]interface{} {
	connected := 0
	s.clients.Range(func(_, _ interface{}) bool {
		connected++
		return true
	})
	return map[string]interface{}{
		"connected_clients": connected,
		"total_connections": s.connections.Load(),
		"total_commands":    s.commands.Load(),
		"total_errors":      s.errors.Load(),
	}
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("Accept failed", "error", err)
			continue
		}

		s.connections.Add(1)
		c := &client{
			conn:          conn,
			reader:        protocol.NewReader(conn),
			writer:        protocol.NewWriter(conn),
			server:        s,
			authenticated: s.password == "",
		}
		s.clients.Store(conn, c)

		// Stop may have swept the clients before this one was stored
		if s.ctx.Err() != nil {
			c.close()
			return
		}

		s.wg.Add(1)
		go c.serve()
	}
}

// client is one connection
type client struct {
	conn          net.Conn
	reader        *protocol.Reader
	writer        *protocol.Writer
	server        *Server
	authenticated bool
	quit          bool
	closeOnce     sync.Once
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		c.conn.Close()
		c.server.clients.Delete(c.conn)
	})
}

func (c *client) serve() {
	defer c.server.wg.Done()
	defer c.close()

	for !c.quit {
		if c.server.idleTimeout > 0 {
			c.conn.SetReadDeadline(time.Now().Add(c.server.idleTimeout))
		}

		value, err := c.reader.ReadNext()
		if err != nil {
			var perr *protocol.Error
			if errors.As(err, &perr) {
				c.writeError("ERR Protocol error: " + perr.Message)
				c.writer.Flush()
			} else if err != io.EOF && c.server.ctx.Err() == nil {
				c.server.logger.Debug("Client read failed", "remote", c.conn.RemoteAddr().String(), "error", err)
			}
			return
		}

		cmd, err := protocol.ParseCommand(value)
		if err != nil {
			c.writeError("ERR Protocol error: " + err.Error())
		} else {
			c.server.commands.Add(1)
			c.dispatch(cmd)
		}

		// Replies for a pipelined burst go out together
		if c.reader.Buffered() == 0 || c.quit {
			if err := c.writer.Flush(); err != nil {
				return
			}
		}
	}
}
