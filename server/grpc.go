package server

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"

	"orderly/internal/fanout"
	"orderly/logger"
	"orderly/models"
	"orderly/proto/orderbook"
)

// GRPCServer streams merged books to gRPC clients. Each call is an
// independent fan-out subscriber.
type GRPCServer struct {
	orderbook.UnimplementedOrderbookAggregatorServer

	dist                *fanout.Distributor
	maxUpdatesPerSecond float64
	server              *grpc.Server
	listener            net.Listener
	log                 *logger.Log
}

func NewGRPCServer(dist *fanout.Distributor, maxUpdatesPerSecond float64) *GRPCServer {
	s := &GRPCServer{
		dist:                dist,
		maxUpdatesPerSecond: maxUpdatesPerSecond,
		log:                 logger.GetLogger(),
	}
	s.server = grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    30 * time.Second,
			Timeout: 10 * time.Second,
		}),
		grpc.ChainStreamInterceptor(s.recoveryStreamInterceptor, s.loggingStreamInterceptor),
	)
	orderbook.RegisterOrderbookAggregatorServer(s.server, s)
	return s
}

// ListenGRPC binds port and serves in the background. A bind failure is
// returned to the caller.
func ListenGRPC(dist *fanout.Distributor, port int, maxUpdatesPerSecond float64) (*GRPCServer, error) {
	s := NewGRPCServer(dist, maxUpdatesPerSecond)
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("failed to bind gRPC port %d: %w", port, err)
	}
	s.listener = lis

	go func() {
		if err := s.server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			s.log.WithComponent("grpc").WithError(err).Error("gRPC server exited")
		}
	}()

	s.log.WithComponent("grpc").WithFields(logger.Fields{
		"address": lis.Addr().String(),
		"service": orderbook.OrderbookAggregator_ServiceDesc.ServiceName,
	}).Info("gRPC server listening")
	return s, nil
}

// Port returns the bound TCP port.
func (s *GRPCServer) Port() int {
	if s.listener == nil {
		return 0
	}
	if addr, ok := s.listener.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

// Stop waits up to timeout for streams to finish, then closes them.
func (s *GRPCServer) Stop(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		s.server.Stop()
	}
	s.log.WithComponent("grpc").Info("gRPC server stopped")
}

// BookSummary streams every merged book to one client until it goes away
// or the distributor closes.
func (s *GRPCServer) BookSummary(_ *orderbook.Empty, stream orderbook.OrderbookAggregator_BookSummaryServer) error {
	ctx := stream.Context()
	sub := s.dist.Subscribe("grpc-" + uuid.NewString())

	err := fanout.Forward(ctx, sub, newLimiter(s.maxUpdatesPerSecond), func(book models.MergedBook) error {
		return stream.Send(NewProtoSummary(book))
	})

	switch {
	case ctx.Err() != nil:
		return nil
	case errors.Is(err, fanout.ErrClosed):
		return status.Error(codes.Unavailable, "aggregator is shutting down")
	default:
		return err
	}
}

func (s *GRPCServer) loggingStreamInterceptor(srv any, stream grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	start := time.Now()
	err := handler(srv, stream)

	entry := s.log.WithComponent("grpc").WithFields(logger.Fields{
		"method":   info.FullMethod,
		"duration": time.Since(start).String(),
	})
	if err != nil {
		st, _ := status.FromError(err)
		entry.WithField("grpc_code", st.Code().String()).WithError(err).Warn("gRPC stream ended with error")
	} else {
		entry.Info("gRPC stream completed")
	}
	return err
}

func (s *GRPCServer) recoveryStreamInterceptor(srv any, stream grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithComponent("grpc").WithFields(logger.Fields{
				"method": info.FullMethod,
				"panic":  fmt.Sprint(r),
			}).Error("gRPC stream panic recovered")
			err = status.Errorf(codes.Internal, "internal server error")
		}
	}()
	return handler(srv, stream)
}
