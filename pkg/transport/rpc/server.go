package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
)

const maxLineBytes = 4 * 1024 * 1024

// HandlerFunc processes a request and returns the result payload or an error.
type HandlerFunc func(ctx context.Context, req Request) (any, error)

// Notifier sends a notification back to the peer that made the current call.
type Notifier func(method string, params any) error

type notifierKey struct{}

// WithNotifier returns a context whose calls report notifications to n.
func WithNotifier(ctx context.Context, n Notifier) context.Context {
	return context.WithValue(ctx, notifierKey{}, n)
}

// NotifierFrom returns the notifier for the connection serving ctx. Outside
// a served connection it returns a no-op.
func NotifierFrom(ctx context.Context) Notifier {
	if n, ok := ctx.Value(notifierKey{}).(Notifier); ok {
		return n
	}
	return func(string, any) error { return nil }
}

// Server dispatches JSON-RPC requests to registered handlers. Calls on one
// connection run concurrently; responses are written as they complete.
type Server struct {
	handlers map[string]HandlerFunc
	listener net.Listener
	conns    map[net.Conn]struct{}
	mu       sync.RWMutex
	logger   *slog.Logger
}

// NewServer creates a server with no handlers.
func NewServer(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		handlers: make(map[string]HandlerFunc),
		conns:    make(map[net.Conn]struct{}),
		logger:   logger,
	}
}

// Handle registers a handler for a method.
func (s *Server) Handle(method string, h HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

func (s *Server) handler(method string) (HandlerFunc, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handlers[method]
	return h, ok
}

// Serve reads requests from r and writes responses to w until r reaches EOF.
// Calls still running at that point are cancelled and awaited.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wmu      sync.Mutex
		inflight sync.WaitGroup
	)
	write := func(v any) {
		data, err := json.Marshal(v)
		if err != nil {
			s.logger.Error("marshal message", "err", err)
			return
		}
		wmu.Lock()
		defer wmu.Unlock()
		if _, err := w.Write(append(data, '\n')); err != nil {
			s.logger.Error("write message", "err", err)
		}
	}
	notify := Notifier(func(method string, params any) error {
		write(Notification{JSONRPC: Version, Method: method, Params: params})
		return nil
	})
	ctx = WithNotifier(ctx, notify)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.logger.Warn("invalid message", "err", err)
			write(newErrorResponse(nil, Errorf(CodeParseError, "parse error: %v", err)))
			continue
		}
		if req.JSONRPC != Version || req.Method == "" {
			if !req.IsNotification() {
				write(newErrorResponse(req.ID, Errorf(CodeInvalidRequest, "invalid request")))
			}
			continue
		}

		inflight.Add(1)
		go func(req Request) {
			defer inflight.Done()
			if resp, ok := s.dispatch(ctx, req); ok {
				write(resp)
			}
		}(req)
	}
	err := scanner.Err()
	closing := ctx.Err() != nil

	cancel()
	inflight.Wait()
	if err != nil && !closing {
		return fmt.Errorf("read requests: %w", err)
	}
	return nil
}

// dispatch runs the handler for req. The bool is false for notifications,
// which never get a response.
func (s *Server) dispatch(ctx context.Context, req Request) (Response, bool) {
	h, ok := s.handler(req.Method)
	if !ok {
		if req.IsNotification() {
			s.logger.Debug("ignoring notification", "method", req.Method)
			return Response{}, false
		}
		return newErrorResponse(req.ID, Errorf(CodeMethodNotFound, "method not found: %s", req.Method)), true
	}

	result, err := h(ctx, req)
	if req.IsNotification() {
		if err != nil {
			s.logger.Warn("notification handler", "method", req.Method, "err", err)
		}
		return Response{}, false
	}
	if err != nil {
		var rpcErr *Error
		if !errors.As(err, &rpcErr) {
			rpcErr = &Error{Code: CodeInternalError, Message: err.Error()}
		}
		s.logger.Debug("request failed", "method", req.Method, "code", rpcErr.Code, "err", rpcErr.Message)
		return newErrorResponse(req.ID, rpcErr), true
	}
	if result == nil {
		result = struct{}{}
	}
	resp, err := newResponse(req.ID, result)
	if err != nil {
		return newErrorResponse(req.ID, Errorf(CodeInternalError, "%v", err)), true
	}
	return resp, true
}

// Listen serves connections on a unix socket until ctx is cancelled. Any
// stale socket file is removed first.
func (s *Server) Listen(ctx context.Context, socketPath string) error {
	if err := os.Remove(socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket: %w", err)
	}

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen %s: %w", socketPath, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.logger.Info("server listening", "socket", socketPath)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Error("accept error", "err", err)
			continue
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()
		go s.serveConn(ctx, conn)
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()
	if err := s.Serve(ctx, conn, conn); err != nil {
		s.logger.Debug("connection closed", "err", err)
	}
}

// Shutdown closes the listener and every open connection.
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		addr := s.listener.Addr().String()
		s.listener.Close()
		os.Remove(addr)
	}
	for conn := range s.conns {
		conn.Close()
	}
}
