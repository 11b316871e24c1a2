// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/renderfleet/missioncontrol/lib/clock"
)

// HTTPServerConfig configures an HTTPServer.
type HTTPServerConfig struct {
	// Address is the TCP listen address, e.g. "127.0.0.1:8000". Port 0
	// picks a free port; Listen reports which. Required.
	Address string

	Handler http.Handler // required
	Logger  *slog.Logger // required

	// LongPollTimeout is the longest a handler holds a request open.
	LongPollTimeout time.Duration

	// WriteTimeout bounds the time from reading a request to finishing
	// its response, unless the handler calls LiftWriteDeadline. Default
	// LongPollTimeout plus 30 seconds.
	WriteTimeout time.Duration

	// ShutdownTimeout bounds the wait for in-flight requests once
	// serving stops. Default 10 seconds.
	ShutdownTimeout time.Duration
}

// HTTPServer serves a handler over TCP until its context ends.
// Request contexts derive from that context, so held long-poll
// requests return as soon as shutdown starts.
type HTTPServer struct {
	config   HTTPServerConfig
	listener net.Listener
}

// NewHTTPServer checks config and returns an unbound server.
func NewHTTPServer(config HTTPServerConfig) *HTTPServer {
	if config.Address == "" || config.Handler == nil || config.Logger == nil {
		panic("service.NewHTTPServer: Address, Handler and Logger are required")
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 10 * time.Second
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = config.LongPollTimeout + 30*time.Second
	}
	return &HTTPServer{config: config}
}

// Listen binds the address and returns the bound address. Serve binds
// on its own when Listen was not called.
func (s *HTTPServer) Listen() (net.Addr, error) {
	if s.listener != nil {
		return s.listener.Addr(), nil
	}
	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return nil, fmt.Errorf("service: listening on %s: %w", s.config.Address, err)
	}
	s.listener = listener
	return listener.Addr(), nil
}

// Serve handles requests until ctx is cancelled or the listener fails,
// then drains in-flight requests. A cancelled ctx is a clean stop and
// returns nil.
func (s *HTTPServer) Serve(ctx context.Context) error {
	address, err := s.Listen()
	if err != nil {
		return err
	}
	server := &http.Server{
		Handler:           s.config.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.config.WriteTimeout,
		IdleTimeout:       time.Minute,
		BaseContext:       func(net.Listener) context.Context { return ctx },
		ErrorLog:          slog.NewLogLogger(s.config.Logger.Handler(), slog.LevelWarn),
	}
	s.config.Logger.Info("http server listening", "address", address.String())

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := server.Serve(s.listener); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("service: serving http: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("service: http shutdown: %w", err)
		}
		return nil
	})
	if err := group.Wait(); err != nil {
		s.config.Logger.Error("http server stopped", "error", err)
		return err
	}
	s.config.Logger.Info("http server stopped")
	return nil
}

// LogRequests logs every request at debug level once it completes.
func LogRequests(next http.Handler, logger *slog.Logger, clk clock.Clock) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		start := clk.Now()
		recorder := &statusRecorder{ResponseWriter: writer, status: http.StatusOK}
		next.ServeHTTP(recorder, request)
		logger.Debug("request",
			"method", request.Method,
			"path", request.URL.Path,
			"status", recorder.status,
			"duration", clk.Now().Sub(start).Round(time.Millisecond),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Unwrap lets http.ResponseController reach the connection.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// LiftWriteDeadline removes the write deadline for the rest of the
// response. Handlers streaming blob content or running an ingestion
// call it first: their responses take as long as the data does.
func LiftWriteDeadline(writer http.ResponseWriter) error {
	return http.NewResponseController(writer).SetWriteDeadline(time.Time{})
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteJSON writes value as a JSON response with the given status.
func WriteJSON(writer http.ResponseWriter, status int, value any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	json.NewEncoder(writer).Encode(value)
}

// WriteError writes err as an ErrorResponse.
func WriteError(writer http.ResponseWriter, status int, err error) {
	WriteJSON(writer, status, ErrorResponse{Error: err.Error()})
}
