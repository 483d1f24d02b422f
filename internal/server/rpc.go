package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/aelexs/registration-gateway/pkg/protocol"
)

// FrameHandler dispatches one request frame to the application layer.
// *port.Handler satisfies this.
type FrameHandler interface {
	Handle(ctx context.Context, frame protocol.Frame, clientAddr string) (protocol.Frame, error)
}

// rpcServer accepts framed-protocol connections and serves request frames
// sequentially per connection. Connections are tracked so shutdown can first
// drain and then force-close stragglers.
type rpcServer struct {
	handler        FrameHandler
	logger         *slog.Logger
	requestTimeout time.Duration

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool

	wg sync.WaitGroup
}

func newRPCServer(handler FrameHandler, requestTimeout time.Duration, logger *slog.Logger) *rpcServer {
	return &rpcServer{
		handler:        handler,
		logger:         logger,
		requestTimeout: requestTimeout,
		conns:          make(map[net.Conn]struct{}),
	}
}

// Serve accepts connections until the listener closes.
func (s *rpcServer) Serve(ctx context.Context, ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		if !s.track(conn) {
			_ = conn.Close()
			return nil
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.serveConn(ctx, conn)
		}()
	}
}

func (s *rpcServer) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *rpcServer) untrack(conn net.Conn) {
	_ = conn.Close()
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// serveConn reads frames until EOF, a malformed frame, or shutdown. One
// request is in flight per connection at a time.
func (s *rpcServer) serveConn(ctx context.Context, conn net.Conn) {
	clientAddr := remoteHost(conn)
	logger := s.logger.With(slog.String("client_addr", clientAddr))

	for {
		frame, err := protocol.ReadFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				logger.Debug("rpc.connection_dropped", slog.String("error", err.Error()))
			}
			return
		}

		reqCtx, cancel := context.WithTimeout(ctx, s.requestTimeout)
		resp, err := s.handler.Handle(reqCtx, frame, clientAddr)
		cancel()
		if err != nil {
			// Unparseable body or unknown method: the stream cannot be
			// trusted past this point.
			logger.Debug("rpc.bad_request", slog.String("error", err.Error()))
			return
		}

		if err := protocol.WriteFrame(conn, resp); err != nil {
			logger.Debug("rpc.write_failed", slog.String("error", err.Error()))
			return
		}
	}
}

// Shutdown waits for in-flight connections to finish, force-closing any that
// outlive ctx.
func (s *rpcServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		for conn := range s.conns {
			_ = conn.Close()
		}
		s.mu.Unlock()
		<-done
		return ctx.Err()
	}
}

// remoteHost strips the port from the peer address; rate limiting keys on
// the host alone.
func remoteHost(conn net.Conn) string {
	addr := conn.RemoteAddr().String()
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
