package ipc

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gsdkit/telegram-mcp/logger"
)

// HandlerFunc processes one request's params and returns the result payload.
// clientID identifies the connection the request arrived on.
type HandlerFunc func(clientID string, params json.RawMessage) (any, error)

// ErrorCoder lets handler errors choose the code placed in the response
// envelope; errors without one get CodeHandlerError.
type ErrorCoder interface {
	error
	ErrorCode() string
}

// Server accepts adapter connections on a Unix domain socket and dispatches
// NDJSON requests to registered handlers. Each connection gets a uuid
// clientID for the daemon to key session state on.
type Server struct {
	socketPath string
	log        *slog.Logger

	handlers     map[string]HandlerFunc
	onDisconnect func(clientID string)

	listener net.Listener
	wg       sync.WaitGroup

	mu     sync.RWMutex
	conns  map[string]net.Conn
	closed bool
}

// NewServer creates a server for socketPath. Register handlers and call
// Listen then Serve.
func NewServer(socketPath string) *Server {
	return &Server{
		socketPath: socketPath,
		log:        logger.WithComponent("ipc-server"),
		handlers:   make(map[string]HandlerFunc),
		conns:      make(map[string]net.Conn),
	}
}

// SocketPath returns the socket the server binds.
func (s *Server) SocketPath() string {
	return s.socketPath
}

// Handle registers fn for method. Not safe to call after Serve.
func (s *Server) Handle(method string, fn HandlerFunc) {
	s.handlers[method] = fn
}

// OnDisconnect registers a callback invoked with the clientID of each
// connection after it ends, for session teardown.
func (s *Server) OnDisconnect(fn func(clientID string)) {
	s.onDisconnect = fn
}

// Listen binds the socket. A stale socket file from a dead daemon is removed
// first; the live socket is restricted to the owning user.
func (s *Server) Listen() error {
	if err := os.Remove(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket %s: %w", s.socketPath, err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.socketPath, err)
	}

	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		listener.Close()
		return fmt.Errorf("chmod socket %s: %w", s.socketPath, err)
	}

	s.listener = listener
	s.log.Info("listening", "socket", s.socketPath)
	return nil
}

// Serve runs the accept loop until Close. Listen must have succeeded.
func (s *Server) Serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.isClosed() {
				return
			}
			s.log.Warn("accept error", "error", err)
			continue
		}

		clientID := uuid.NewString()
		s.mu.Lock()
		s.conns[clientID] = conn
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConnection(clientID, conn)
	}
}

// Close stops accepting, closes every live connection, and removes the
// socket file once all connection handlers have returned.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	conns := make([]net.Conn, 0, len(s.conns))
	for _, conn := range s.conns {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	if s.listener != nil {
		s.listener.Close()
	}
	for _, conn := range conns {
		conn.Close()
	}
	s.wg.Wait()
	os.Remove(s.socketPath)
	s.log.Info("stopped", "socket", s.socketPath)
}

func (s *Server) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *Server) handleConnection(clientID string, conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.conns, clientID)
		s.mu.Unlock()
		if s.onDisconnect != nil {
			s.onDisconnect(clientID)
		}
		s.log.Debug("client disconnected", "client_id", clientID)
	}()

	s.log.Debug("client connected", "client_id", clientID)

	reader := bufio.NewReader(conn)
	for {
		if s.isClosed() {
			return
		}

		conn.SetReadDeadline(time.Now().Add(ReadTimeout))
		line, err := reader.ReadBytes('\n')
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return
		}

		if strings.TrimSpace(string(line)) == "" {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.log.Warn("malformed request line", "client_id", clientID, "error", err)
			s.writeResponse(conn, Response{
				ID:    "unknown",
				Error: &RespError{Message: "invalid JSON: " + err.Error(), Code: CodeParseError},
			})
			continue
		}

		s.writeResponse(conn, s.dispatch(clientID, req))
	}
}

func (s *Server) dispatch(clientID string, req Request) Response {
	handler, ok := s.handlers[req.Method]
	if !ok {
		return Response{
			ID:    req.ID,
			Error: &RespError{Message: "unknown method: " + req.Method, Code: CodeMethodNotFound},
		}
	}

	result, err := s.callHandler(clientID, req, handler)
	if err != nil {
		code := CodeHandlerError
		var coded ErrorCoder
		if errors.As(err, &coded) && coded.ErrorCode() != "" {
			code = coded.ErrorCode()
		}
		return Response{ID: req.ID, Error: &RespError{Message: err.Error(), Code: code}}
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return Response{
			ID:    req.ID,
			Error: &RespError{Message: "marshal result: " + err.Error(), Code: CodeHandlerError},
		}
	}
	return Response{ID: req.ID, Result: payload}
}

// callHandler isolates handler panics so one bad request cannot take the
// daemon down with it.
func (s *Server) callHandler(clientID string, req Request, handler HandlerFunc) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("handler panic", "method", req.Method, "panic", r)
			err = fmt.Errorf("internal error handling %s", req.Method)
		}
	}()
	return handler(clientID, req.Params)
}

func (s *Server) writeResponse(conn net.Conn, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.log.Error("marshal response", "error", err)
		return
	}
	conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
	if _, err := conn.Write(append(data, '\n')); err != nil {
		s.log.Warn("write response", "error", err)
	}
}
