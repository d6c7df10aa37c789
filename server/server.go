// Package server is the receiving end of the benchmark protocol. It
// accepts one client, collects its result frames and stops at the
// termination frame.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/weiihann/offloadbench/frame"
)

// ErrUnterminated is returned when the client hangs up before sending
// the termination frame.
var ErrUnterminated = errors.New("connection closed before termination frame")

// Session is everything received on one connection.
type Session struct {
	Remote     string        `json:"remote"`
	Frames     [][]string    `json:"frames"`
	Terminated bool          `json:"terminated"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Results returns the fields of every frame in arrival order.
func (s *Session) Results() []string {
	var out []string
	for _, f := range s.Frames {
		out = append(out, f...)
	}

	return out
}

// Server listens for a single benchmark client.
type Server struct {
	ln     net.Listener
	logger *slog.Logger
}

// Listen opens a TCP listener on addr.
func Listen(addr string, logger *slog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	return &Server{ln: ln, logger: logger.With(slog.String("listen", ln.Addr().String()))}, nil
}

// Addr returns the listener's address.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Serve accepts one connection and reads it to the termination frame.
// Cancelling ctx closes the listener and any open connection.
func (s *Server) Serve(ctx context.Context) (*Session, error) {
	stop := context.AfterFunc(ctx, func() { s.ln.Close() })
	defer stop()

	s.logger.InfoContext(ctx, "waiting for client")

	conn, err := s.ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		return nil, fmt.Errorf("accept: %w", err)
	}
	defer conn.Close()

	stopConn := context.AfterFunc(ctx, func() { conn.Close() })
	defer stopConn()

	sess := &Session{Remote: conn.RemoteAddr().String()}
	logger := s.logger.With(slog.String("client", sess.Remote))
	logger.InfoContext(ctx, "client accepted")

	start := time.Now()
	r := frame.NewReader(conn)

	for {
		f, err := r.Next()
		if err != nil {
			sess.Elapsed = time.Since(start)

			if ctx.Err() != nil {
				return sess, ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return sess, ErrUnterminated
			}

			return sess, fmt.Errorf("read frame: %w", err)
		}

		if f.Kind == frame.KindTermination {
			sess.Terminated = true
			break
		}

		fields := f.Fields()
		sess.Frames = append(sess.Frames, fields)

		logger.InfoContext(ctx, "frame received",
			slog.Int("frame", len(sess.Frames)),
			slog.Int("results", len(fields)),
			slog.Int("bytes", len(f.Payload)),
		)
	}

	sess.Elapsed = time.Since(start)

	logger.InfoContext(ctx, "client finished",
		slog.Int("frames", len(sess.Frames)),
		slog.Duration("elapsed", sess.Elapsed),
	)

	return sess, nil
}

// Close stops listening.
func (s *Server) Close() error {
	return s.ln.Close()
}
