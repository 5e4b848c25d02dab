// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package udp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/absmach/coapfs/pkg/coap"
	cerrors "github.com/absmach/coapfs/pkg/errors"
	"github.com/absmach/coapfs/pkg/handler"
	"github.com/absmach/coapfs/pkg/metrics"
	"github.com/absmach/coapfs/pkg/parser"
	"github.com/absmach/coapfs/pkg/ratelimit"
	"github.com/google/uuid"
)

const (
	// DefaultShutdownTimeout is the default timeout for graceful shutdown.
	DefaultShutdownTimeout = 30 * time.Second

	// MaxDatagramSize is the maximum size of a UDP datagram.
	MaxDatagramSize = 65535

	// DefaultBufferSize is the default buffer size for UDP datagrams.
	DefaultBufferSize = 15000

	// DefaultWorkerPoolSize is the default number of workers for datagram processing.
	DefaultWorkerPoolSize = 100
)

// ErrShutdownTimeout is returned when graceful shutdown exceeds the configured timeout.
var ErrShutdownTimeout = errors.New("shutdown timeout exceeded")

// Config holds the UDP server configuration.
type Config struct {
	// Address is the listen address (host:port)
	Address string

	// ShutdownTimeout is the maximum time to wait for queued datagrams to be
	// answered during graceful shutdown
	ShutdownTimeout time.Duration

	// BufferSize is the size of datagram read buffers in bytes.
	// If 0, uses DefaultBufferSize (15000 bytes).
	// Must not exceed MaxDatagramSize (65535).
	BufferSize int

	// WorkerPoolSize is the number of goroutines in the datagram processing pool.
	// If 0, uses DefaultWorkerPoolSize (100).
	WorkerPoolSize int

	// QueueSize is the number of datagrams that may wait for a worker.
	// If 0, uses twice the worker pool size. Datagrams arriving while the
	// queue is full are dropped.
	QueueSize int

	// ReadBufferSize sets the socket receive buffer size (SO_RCVBUF).
	// If 0, uses system default.
	ReadBufferSize int

	// WriteBufferSize sets the socket send buffer size (SO_SNDBUF).
	// If 0, uses system default.
	WriteBufferSize int

	// RateLimiter limits datagrams per sender. Nil disables rate limiting.
	RateLimiter *ratelimit.Limiter

	// Metrics records transport metrics. Nil disables them.
	Metrics *metrics.Metrics

	// Logger for server events
	Logger *slog.Logger
}

// packetJob represents a datagram waiting for a worker.
type packetJob struct {
	clientAddr *net.UDPAddr
	data       []byte
}

// Server is a UDP server answering each datagram through a pluggable parser.
// Datagrams are processed concurrently by a fixed pool of workers.
type Server struct {
	config     Config
	parser     parser.Parser
	handler    handler.Handler
	bufferPool *sync.Pool
	packetCh   chan packetJob
	workerWg   sync.WaitGroup

	ready     chan struct{}
	readyOnce sync.Once
	mu        sync.RWMutex
	localAddr net.Addr
}

// New creates a new UDP server with the given configuration, parser, and handler.
func New(cfg Config, p parser.Parser, h handler.Handler) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.BufferSize > MaxDatagramSize {
		cfg.BufferSize = MaxDatagramSize
	}
	if cfg.WorkerPoolSize == 0 {
		cfg.WorkerPoolSize = DefaultWorkerPoolSize
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = cfg.WorkerPoolSize * 2
	}

	// Create buffer pool for efficient memory reuse
	bufferPool := &sync.Pool{
		New: func() interface{} {
			buf := make([]byte, cfg.BufferSize)
			return &buf
		},
	}

	return &Server{
		config:     cfg,
		parser:     p,
		handler:    h,
		bufferPool: bufferPool,
		packetCh:   make(chan packetJob, cfg.QueueSize),
		ready:      make(chan struct{}),
	}
}

// Ready is closed once the server is bound and reading datagrams.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// LocalAddr returns the bound address, or nil before the server is ready.
func (s *Server) LocalAddr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.localAddr
}

// Listen starts the UDP server and blocks until the context is cancelled.
// On cancellation it stops reading, answers datagrams already queued and
// returns ErrShutdownTimeout if that takes longer than ShutdownTimeout.
// A Server can only be started once.
func (s *Server) Listen(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to resolve address %s: %w", s.config.Address, err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Address, err)
	}
	defer conn.Close()

	// Configure socket buffer sizes if specified
	if s.config.ReadBufferSize > 0 {
		if err := conn.SetReadBuffer(s.config.ReadBufferSize); err != nil {
			s.config.Logger.Warn("failed to set read buffer size",
				slog.String("error", err.Error()))
		}
	}
	if s.config.WriteBufferSize > 0 {
		if err := conn.SetWriteBuffer(s.config.WriteBufferSize); err != nil {
			s.config.Logger.Warn("failed to set write buffer size",
				slog.String("error", err.Error()))
		}
	}

	s.mu.Lock()
	s.localAddr = conn.LocalAddr()
	s.mu.Unlock()

	s.config.Logger.Info("UDP server started",
		slog.String("address", conn.LocalAddr().String()),
		slog.Int("worker_pool_size", s.config.WorkerPoolSize),
		slog.Int("queue_size", s.config.QueueSize),
		slog.Int("buffer_size", s.config.BufferSize))

	// Workers keep running after ctx is cancelled so queued datagrams are
	// still answered during shutdown.
	s.startWorkerPool(context.WithoutCancel(ctx), conn)

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		s.readLoop(ctx, conn)
	}()

	s.readyOnce.Do(func() { close(s.ready) })

	// Wait for shutdown signal
	<-ctx.Done()
	s.config.Logger.Info("shutdown signal received, stopping reads")

	// Unblock the pending read without closing the socket; workers still
	// need it to send responses.
	if err := conn.SetReadDeadline(time.Now()); err != nil {
		s.config.Logger.Error("error interrupting reads", slog.String("error", err.Error()))
		conn.Close()
	}
	<-readDone

	close(s.packetCh)
	return s.drain()
}

func (s *Server) readLoop(ctx context.Context, conn *net.UDPConn) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Get buffer from pool
		bufPtr := s.bufferPool.Get().(*[]byte)
		buffer := *bufPtr

		n, clientAddr, err := conn.ReadFromUDP(buffer)
		if err != nil {
			s.bufferPool.Put(bufPtr)
			select {
			case <-ctx.Done():
				// Expected error during shutdown
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.config.Logger.Error("failed to read UDP datagram",
				slog.String("error", err.Error()))
			continue
		}

		// Make a copy of the data for processing
		datagram := make([]byte, n)
		copy(datagram, buffer[:n])
		s.bufferPool.Put(bufPtr)

		s.config.Metrics.DatagramReceived()

		if s.config.RateLimiter != nil {
			allowed := s.config.RateLimiter.Allow(clientAddr.String())
			s.config.Metrics.SetRateLimitSenders(s.config.RateLimiter.Stats())
			if !allowed {
				s.drop(slog.LevelDebug, metrics.DropRateLimited, clientAddr, cerrors.ErrRateLimited)
				continue
			}
		}

		// Send datagram to worker pool (non-blocking)
		select {
		case s.packetCh <- packetJob{clientAddr: clientAddr, data: datagram}:
			s.config.Metrics.SetQueueDepth(len(s.packetCh))
		default:
			s.drop(slog.LevelWarn, metrics.DropQueueFull, clientAddr, cerrors.ErrQueueFull)
		}
	}
}

// drop counts and logs a datagram that never reaches a worker.
func (s *Server) drop(level slog.Level, reason string, clientAddr *net.UDPAddr, cause error) {
	s.config.Metrics.DatagramDropped(reason)
	err := cerrors.New("enqueue", "udp", "", clientAddr.String(), cause)
	s.config.Logger.Log(context.Background(), level, "dropping datagram",
		slog.String("reason", reason),
		slog.String("error", err.Error()))
}

// drain waits for workers to answer the queued datagrams.
func (s *Server) drain() error {
	done := make(chan struct{})
	go func() {
		s.workerWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.config.Logger.Info("all workers stopped")
		return nil
	case <-time.After(s.config.ShutdownTimeout):
		s.config.Logger.Warn("shutdown timeout exceeded, abandoning queued datagrams",
			slog.Int("queued", len(s.packetCh)))
		return ErrShutdownTimeout
	}
}

// startWorkerPool starts the worker goroutines for datagram processing.
func (s *Server) startWorkerPool(ctx context.Context, conn *net.UDPConn) {
	for i := 0; i < s.config.WorkerPoolSize; i++ {
		s.workerWg.Add(1)
		go func(workerID int) {
			defer s.workerWg.Done()
			s.packetWorker(ctx, conn, workerID)
		}(i)
	}
	s.config.Logger.Info("worker pool started", slog.Int("workers", s.config.WorkerPoolSize))
}

// packetWorker processes datagrams until the channel is closed.
func (s *Server) packetWorker(ctx context.Context, conn *net.UDPConn, workerID int) {
	for job := range s.packetCh {
		s.config.Metrics.SetQueueDepth(len(s.packetCh))
		if err := s.handlePacket(ctx, conn, job.clientAddr, job.data); err != nil {
			s.config.Logger.Debug("datagram handler error",
				slog.Int("worker", workerID),
				slog.String("client", job.clientAddr.String()),
				slog.String("error", err.Error()))
		}
	}
}

// handlePacket answers a single datagram through the parser. The reply,
// if any, goes back to the sender's address.
func (s *Server) handlePacket(ctx context.Context, conn *net.UDPConn, clientAddr *net.UDPAddr, data []byte) error {
	hctx := &handler.Context{
		RequestID:  uuid.NewString(),
		RemoteAddr: clientAddr.String(),
	}

	reader := bytes.NewReader(data)
	writer := &udpClientWriter{conn: conn, addr: clientAddr}

	err := s.parser.Parse(ctx, reader, writer, s.handler, hctx)
	if reason, ok := coap.DecodeReason(err); ok {
		s.config.Metrics.DecodeFailed(reason)
	}
	return err
}

// udpClientWriter is an io.Writer that writes to a specific UDP client address.
type udpClientWriter struct {
	conn *net.UDPConn
	addr *net.UDPAddr
}

func (w *udpClientWriter) Write(p []byte) (n int, err error) {
	return w.conn.WriteToUDP(p, w.addr)
}
