// Package grpc runs the gRPC health endpoint of the transfer server.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/securexfer/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name of the transfer listener.
const ServiceName = "securexfer.Transfer"

type HealthServer struct {
	address string
	logger  logging.Logger
	health  *health.Server
}

// NewHealthServer creates a health server that reports NOT_SERVING until
// SetServing(true) is called.
func NewHealthServer(a string, l logging.Logger) *HealthServer {
	s := &HealthServer{
		address: a,
		logger:  l.With("module", "health_server"),
		health:  health.NewServer(),
	}
	s.SetServing(false)
	return s
}

// SetServing updates both the overall and the transfer service status.
func (s *HealthServer) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

func (s *HealthServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.serve(ctx, listen)
}

func (s *HealthServer) serve(ctx context.Context, listen net.Listener) error {

	// creates gRPC-server
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor))

	// registers service
	healthpb.RegisterHealthServer(srv, s.health)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping health server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting health server", "address", listen.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
