/*
Copyright 2026 The Podo Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package proxy is the activation proxy: a plain TCP listener that answers
// the ingress controller's auth subrequests and redirects everything else.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"sigs.k8s.io/controller-runtime/pkg/log"

	logutil "github.com/podo-dev/podo/pkg/common/observability/logging"
	"github.com/podo-dev/podo/pkg/podo/metrics"
	errutil "github.com/podo-dev/podo/pkg/podo/util/error"
)

// maxChunk bounds the first read of a connection.
const maxChunk = 4096

// acceptRetryDelay is the pause after a failed Accept.
const acceptRetryDelay = 50 * time.Millisecond

// Activator brings the workload behind a key up.
type Activator interface {
	Activate(ctx context.Context, key string) error
}

// Server accepts connections and runs one request per connection.
type Server struct {
	addr        string
	activator   Activator
	readTimeout time.Duration
}

func NewServer(addr string, activator Activator, readTimeout time.Duration) *Server {
	return &Server{addr: addr, activator: activator, readTimeout: readTimeout}
}

// Start listens on the server address and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("activation proxy failed to listen on %s - %w", s.addr, err)
	}
	return s.Serve(ctx, lis)
}

// NeedLeaderElection implements manager.LeaderElectionRunnable.
func (s *Server) NeedLeaderElection() bool {
	return false
}

// Serve accepts connections on lis until ctx is cancelled, then waits for
// the open connections to finish.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	logger := log.FromContext(ctx).WithValues("address", lis.Addr().String())
	logger.Info("Activation proxy listening")

	var wg sync.WaitGroup
	defer wg.Wait()

	doneCh := make(chan struct{})
	defer close(doneCh)
	go func() {
		select {
		case <-ctx.Done():
			logger.Info("Activation proxy shutting down")
		case <-doneCh:
		}
		_ = lis.Close()
	}()

	for {
		conn, err := lis.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("activation proxy listener closed - %w", err)
			}
			logger.Error(err, "Failed to accept connection")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(acceptRetryDelay):
			}
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.ServeConn(ctx, conn)
		}()
	}
}

// ServeConn reads the first chunk of conn, answers it and closes conn.
func (s *Server) ServeConn(ctx context.Context, conn net.Conn) {
	logger := log.FromContext(ctx).WithValues("conn", uuid.NewString(), "remote", conn.RemoteAddr().String())
	ctx = log.IntoContext(ctx, logger)
	defer conn.Close()

	defer func() {
		if r := recover(); r != nil {
			logger.Error(fmt.Errorf("%v", r), "Panic while serving connection")
			s.respond(ctx, conn, failed(bodyInternal))
		}
	}()

	if s.readTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	}
	buf := make([]byte, maxChunk)
	n, err := conn.Read(buf)
	if n == 0 {
		logger.V(logutil.DEBUG).Info("Connection closed before a request arrived", "err", err)
		return
	}

	req := ParseRequest(buf[:n])
	if !req.IsActivation() {
		metrics.RecordRedirect()
		logger.V(logutil.VERBOSE).Info("Redirecting request", "path", req.Path)
		s.respond(ctx, conn, redirect(req.Path))
		return
	}

	logger = logger.WithValues("key", req.Key)
	ctx = log.IntoContext(ctx, logger)
	logger.V(logutil.VERBOSE).Info("Activation requested")
	if err := s.activator.Activate(ctx, req.Key); err != nil {
		if errutil.IsCode(err, errutil.ActivationTimeout) {
			s.respond(ctx, conn, failed(bodyTimeout))
			return
		}
		s.respond(ctx, conn, failed(bodyInternal))
		return
	}
	s.respond(ctx, conn, activated())
}

func (s *Server) respond(ctx context.Context, conn net.Conn, resp Response) {
	if s.readTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(s.readTimeout))
	}
	if _, err := resp.WriteTo(conn); err != nil {
		log.FromContext(ctx).V(logutil.DEBUG).Info("Failed to write response", "code", resp.Code, "err", err.Error())
		return
	}
	log.FromContext(ctx).V(logutil.TRACE).Info("Response sent", "code", resp.Code)
}
