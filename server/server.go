// Package server runs a DICOM storage service provider: a TCP listener that
// negotiates associations and answers DIMSE requests through a handler.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/caio-sobreiro/dicomstore/dimse"
	dicomerrors "github.com/caio-sobreiro/dicomstore/errors"
	"github.com/caio-sobreiro/dicomstore/interfaces"
	"github.com/caio-sobreiro/dicomstore/metrics"
	"github.com/caio-sobreiro/dicomstore/negotiation"
	"github.com/caio-sobreiro/dicomstore/pdu"
	"github.com/caio-sobreiro/dicomstore/types"
)

// Option configures a Server instance.
type Option func(*Server)

// WithLogger overrides the logger used by the server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.Logger = logger
	}
}

// WithReadTimeout bounds association setup and the read of a single PDU.
func WithReadTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		s.ReadTimeout = timeout
	}
}

// WithWriteTimeout sets the write timeout for client connections.
func WithWriteTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		s.WriteTimeout = timeout
	}
}

// WithDIMSETimeout sets how long to wait for the next request before
// logging a warning. The association stays open.
func WithDIMSETimeout(timeout time.Duration) Option {
	return func(s *Server) {
		s.DIMSETimeout = timeout
	}
}

// WithMaxPDULength sets the maximum PDU length advertised to peers.
func WithMaxPDULength(n uint32) Option {
	return func(s *Server) {
		s.MaxPDULength = n
	}
}

// WithNegotiator sets the negotiator that answers proposed presentation contexts.
func WithNegotiator(n *negotiation.Negotiator) Option {
	return func(s *Server) {
		s.Negotiator = n
	}
}

// WithStrictCalledAETitle rejects associations addressed to another AE title.
func WithStrictCalledAETitle(strict bool) Option {
	return func(s *Server) {
		s.StrictCalledAETitle = strict
	}
}

// WithAssociationHandler observes (and may reject) associations.
func WithAssociationHandler(h interfaces.AssociationHandler) Option {
	return func(s *Server) {
		s.AssociationHandler = h
	}
}

// WithErrorReporter receives errors that end an association.
func WithErrorReporter(r interfaces.ErrorReporter) Option {
	return func(s *Server) {
		s.ErrorReporter = r
	}
}

// WithMetrics records association outcomes in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.Metrics = m
	}
}

// Server exposes a reusable DICOM listener that wires the DIMSE and PDU layers.
// Any number of servers can run in one process.
type Server struct {
	AETitle      string
	Handler      interfaces.ServiceHandler
	Logger       *slog.Logger
	ReadTimeout  time.Duration // Association setup and single PDU reads (default: 30s)
	WriteTimeout time.Duration // Write timeout for connections (default: 30s)
	DIMSETimeout time.Duration // Idle warning threshold between requests (default: 60s)
	MaxPDULength uint32

	Negotiator          *negotiation.Negotiator
	StrictCalledAETitle bool
	AssociationHandler  interfaces.AssociationHandler
	ErrorReporter       interfaces.ErrorReporter
	Metrics             *metrics.Metrics

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	cancel   context.CancelFunc
	done     chan struct{}
}

// Default timeouts applied by New.
const (
	DefaultReadTimeout  = 30 * time.Second
	DefaultWriteTimeout = 30 * time.Second
	DefaultDIMSETimeout = 60 * time.Second
)

// New builds a Server with the provided AE title and handler.
func New(aeTitle string, handler interfaces.ServiceHandler, opts ...Option) *Server {
	srv := &Server{
		AETitle:      aeTitle,
		Handler:      handler,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
		DIMSETimeout: DefaultDIMSETimeout,
		MaxPDULength: types.DefaultMaxPDULength,
	}
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}

// ListenAndServe listens on the given address and serves until the context is done or an error occurs.
func ListenAndServe(ctx context.Context, address, aeTitle string, handler interfaces.ServiceHandler, opts ...Option) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	defer listener.Close()

	srv := New(aeTitle, handler, opts...)
	return srv.Serve(ctx, listener)
}

// Start listens on address and serves in the background until Stop is called.
func (s *Server) Start(address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("dicomserver: listen on %s: %w", address, err)
	}
	if err := s.validate(); err != nil {
		_ = listener.Close()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		cancel()
		_ = listener.Close()
		return errors.New("dicomserver: already started")
	}
	s.cancel = cancel
	s.done = done
	s.listener = listener
	s.mu.Unlock()

	go func() {
		defer close(done)
		if err := s.Serve(ctx, listener); err != nil && !errors.Is(err, context.Canceled) {
			s.logger().Error("DICOM server stopped", "error", err)
		}
	}()
	return nil
}

// Addr returns the listener address, or nil before the server is serving.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener and every open association, then waits for
// their handlers to return. It is a no-op for a server that was not started.
func (s *Server) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Server) validate() error {
	if s == nil {
		return errors.New("dicomserver: server is nil")
	}
	if s.Handler == nil {
		return errors.New("dicomserver: handler is required")
	}
	if s.AETitle == "" {
		return errors.New("dicomserver: AE title is required")
	}
	if len(s.AETitle) > 16 {
		return fmt.Errorf("dicomserver: AE title %q is longer than 16 characters", s.AETitle)
	}
	return nil
}

// Serve accepts connections from listener until ctx is cancelled or an unrecoverable error occurs.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	if listener == nil {
		return errors.New("dicomserver: listener is required")
	}
	if err := s.validate(); err != nil {
		return err
	}

	logger := s.logger()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.listener = listener
	s.conns = make(map[net.Conn]struct{})
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	logger.Info("DICOM server listening",
		"address", listener.Addr().String(),
		"ae_title", s.AETitle,
		"strict_called_ae", s.StrictCalledAETitle)

	var (
		wg       sync.WaitGroup
		serveErr error
	)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				logger.Warn("Accept timeout", "error", err)
				continue
			}
			serveErr = err
			break
		}

		s.track(conn, true)
		wg.Add(1)
		go func(c net.Conn) {
			defer wg.Done()
			defer s.track(c, false)
			s.handleConnection(ctx, c, logger)
		}(conn)
	}

	cancel()
	s.closeConnections()
	wg.Wait()
	logger.Info("DICOM server stopped", "address", listener.Addr().String())

	if serveErr != nil {
		return serveErr
	}

	return ctx.Err()
}

func (s *Server) track(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

// closeConnections unblocks association setup reads, which do not watch the context.
func (s *Server) closeConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn, logger *slog.Logger) {
	logger.Info("Accepted DICOM connection",
		"remote_addr", conn.RemoteAddr())

	layer := pdu.NewLayer(conn, pdu.Config{
		AETitle:      s.AETitle,
		MaxPDULength: s.MaxPDULength,
		DIMSETimeout: s.DIMSETimeout,
		ReadTimeout:  s.ReadTimeout,
		WriteTimeout: s.WriteTimeout,
		Logger:       logger,
	})
	defer layer.Close()

	params, err := layer.Accept(ctx, pdu.AcceptOptions{
		Negotiator:          s.Negotiator,
		StrictCalledAETitle: s.StrictCalledAETitle,
		Authorize:           s.authorize,
	})
	if err != nil {
		var assocErr *dicomerrors.AssociationError
		if errors.As(err, &assocErr) {
			s.Metrics.AssociationRejected()
		} else if ctx.Err() == nil {
			logger.Warn("Association setup failed",
				"remote_addr", conn.RemoteAddr(),
				"error", err)
		}
		s.report(ctx, params, err)
		return
	}

	s.Metrics.AssociationOpened()
	assocLogger := layer.Logger()
	err = dimse.NewService(s.Handler, assocLogger).Serve(ctx, layer)
	if err != nil && ctx.Err() != nil {
		_ = layer.Abort(dicomerrors.AbortSourceServiceProvider, dicomerrors.AbortReasonNotSpecified)
	}
	s.Metrics.AssociationClosed(err != nil)

	if s.AssociationHandler != nil {
		s.AssociationHandler.AssociationClosed(ctx, params, err)
	}

	switch {
	case err == nil:
		assocLogger.Info("Association released")
	case ctx.Err() != nil:
		assocLogger.Info("Association closed by server shutdown")
	default:
		var abortErr *dicomerrors.AbortError
		if errors.As(err, &abortErr) {
			assocLogger.Warn("Association aborted by peer",
				"source", abortErr.Source,
				"reason", dicomerrors.AbortReasonName(abortErr.Reason))
		} else {
			assocLogger.Warn("DIMSE connection ended", "error", err)
		}
		s.report(ctx, params, err)
	}
}

func (s *Server) authorize(ctx context.Context, params *types.AssociationParameters) error {
	if s.AssociationHandler == nil {
		return nil
	}
	return s.AssociationHandler.AssociationRequested(ctx, params)
}

func (s *Server) report(ctx context.Context, params *types.AssociationParameters, err error) {
	if s.ErrorReporter != nil {
		s.ErrorReporter.ReportError(ctx, params, err)
	}
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
