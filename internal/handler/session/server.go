// Package session serves the terminal-facing TCP protocol: a stream of JSON
// request objects in, one JSON response line per request out.
package session

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"QuantBridge/internal/domain/models"
	domrepo "QuantBridge/internal/domain/repository"
	"QuantBridge/internal/protocol"
	"QuantBridge/internal/usecase"
	applogger "QuantBridge/pkg/logger"
)

// Processor turns one raw request document into a result.
type Processor interface {
	Handle(ctx context.Context, transport string, raw []byte) models.Result
}

// Server accepts connections and runs one goroutine per session. All sessions
// share the same Processor.
type Server struct {
	addr    string
	proc    Processor
	metrics domrepo.Metrics
	log     *applogger.Logger

	mu     sync.Mutex
	ln     net.Listener
	conns  map[net.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

func NewServer(addr string, proc Processor, metrics domrepo.Metrics, log *applogger.Logger) *Server {
	if log == nil {
		log = applogger.Nop()
	}
	return &Server{
		addr:    addr,
		proc:    proc,
		metrics: metrics,
		log:     log.With(applogger.String("component", "session")),
		conns:   make(map[net.Conn]struct{}),
	}
}

// Listen binds the listener without accepting.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("session listen %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Start binds and accepts in the background.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	s.log.Info("session server listening", applogger.String("addr", s.Addr().String()))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.Serve(ctx); err != nil {
			s.log.Error("session accept loop ended", applogger.Error(err))
		}
	}()
	return nil
}

// Serve runs the accept loop until Stop. It returns nil after a clean stop.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return errors.New("session server is not listening")
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return fmt.Errorf("accept: %w", err)
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

// Stop closes the listener and every open session, then waits for the
// session goroutines, bounded by ctx.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.ln != nil {
		_ = s.ln.Close()
	}
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("session server stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for sessions: %w", ctx.Err())
	}
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) track(c net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrack(c net.Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	_ = c.Close()
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	remote := conn.RemoteAddr().String()
	log := s.log.With(applogger.String("remote", remote))
	s.metrics.SessionOpened(usecase.TransportTCP)
	log.Info("session opened")
	defer func() {
		s.metrics.SessionClosed(usecase.TransportTCP)
		log.Info("session closed")
	}()

	w := bufio.NewWriter(conn)
	dec := json.NewDecoder(conn)
	for {
		var raw json.RawMessage
		err := dec.Decode(&raw)
		var res models.Result
		switch {
		case err == nil:
			res = s.proc.Handle(ctx, usecase.TransportTCP, raw)
		case isMalformed(err):
			s.metrics.RecordError("malformed_json")
			s.metrics.RecordRequest(usecase.TransportTCP, "error")
			res = models.Failure(fmt.Errorf("%w: malformed JSON: %v", models.ErrInvalidInput, err))
			dec = resync(dec, err, conn)
		case errors.Is(err, io.ErrUnexpectedEOF):
			// peer closed its write side mid-object
			s.metrics.RecordError("malformed_json")
			s.metrics.RecordRequest(usecase.TransportTCP, "error")
			res = models.Failure(fmt.Errorf("%w: malformed JSON: truncated object", models.ErrInvalidInput))
			if err := writeResult(w, res); err != nil {
				log.Warn("session write failed", applogger.Error(err))
			}
			return
		case errors.Is(err, io.EOF) || s.isClosed():
			return
		default:
			log.Warn("session read failed", applogger.Error(err))
			return
		}

		if err := writeResult(w, res); err != nil {
			log.Warn("session write failed", applogger.Error(err))
			return
		}
	}
}

func isMalformed(err error) bool {
	var se *json.SyntaxError
	return errors.As(err, &se)
}

// resync builds a decoder that restarts at the first '{' at or after the byte
// that broke the previous value, keeping any requests already buffered.
func resync(dec *json.Decoder, err error, conn io.Reader) *json.Decoder {
	rest, _ := io.ReadAll(dec.Buffered())
	from := 0
	var se *json.SyntaxError
	if errors.As(err, &se) {
		from = int(se.Offset - 1 - dec.InputOffset())
	}
	if from < 0 || from > len(rest) {
		from = 0
	}
	i := bytes.IndexByte(rest[from:], '{')
	switch {
	case i < 0:
		rest = nil
	case from+i == 0:
		// the broken value itself starts here; look past it
		if j := bytes.IndexByte(rest[1:], '{'); j >= 0 {
			rest = rest[1+j:]
		} else {
			rest = nil
		}
	default:
		rest = rest[from+i:]
	}
	return json.NewDecoder(io.MultiReader(bytes.NewReader(rest), conn))
}

func writeResult(w *bufio.Writer, res models.Result) error {
	if _, err := w.Write(protocol.Encode(res)); err != nil {
		return err
	}
	return w.Flush()
}

var _ Processor = (*usecase.SignalService)(nil)
