package rpc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"go.uber.org/zap"
)

// Handler answers one request body for a given tag and returns the
// response tag/body to frame back, or an error (translated to
// TagError/ErrorResponse by the server).
type Handler func(ctx context.Context, body []byte) (Tag, []byte, error)

// Server dispatches each accepted connection to registered handlers by
// tag, one message at a time per connection.
type Server struct {
	logger   *zap.Logger
	handlers map[Tag]Handler
}

// NewServer returns a server with no handlers registered.
func NewServer(logger *zap.Logger) *Server {
	return &Server{logger: logger, handlers: make(map[Tag]Handler)}
}

// Handle registers fn as the handler for tag, replacing any previous
// registration.
func (s *Server) Handle(tag Tag, fn Handler) {
	s.handlers[tag] = fn
}

// Serve accepts connections from ln until it returns an error (e.g. the
// listener is closed).
func (s *Server) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return fmt.Errorf("rpc: accept: %w", err)
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := bufio.NewReader(conn)
	for {
		tag, body, err := readFrame(r)
		if err != nil {
			if !errors.Is(err, io.EOF) && s.logger != nil {
				s.logger.Debug("rpc: connection closed", zap.Error(err))
			}
			return
		}

		respTag, respBody, herr := s.dispatch(ctx, tag, body)
		if herr != nil {
			respTag = TagError
			respBody, _ = encode(ErrorResponse{Message: herr.Error()})
		}
		if err := writeFrame(conn, respTag, respBody); err != nil {
			if s.logger != nil {
				s.logger.Debug("rpc: write response failed", zap.Error(err))
			}
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, tag Tag, body []byte) (Tag, []byte, error) {
	handler, ok := s.handlers[tag]
	if !ok {
		return 0, nil, fmt.Errorf("rpc: no handler registered for tag %d", tag)
	}
	return handler(ctx, body)
}
