package probe

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/ledgerops/bridgewatch/internal/core/domain"
)

// GRPCChecker probes a bridge that exposes the standard gRPC health protocol.
type GRPCChecker struct {
	endpoint string
	service  string
	conn     *grpc.ClientConn
}

// NewGRPCChecker creates a gRPC endpoint checker. The connection is lazy:
// the bridge may well be down when the watchdog boots.
func NewGRPCChecker(endpoint, service string) (*GRPCChecker, error) {
	// Parse endpoint to determine if TLS is needed
	target := endpoint
	var opts []grpc.DialOption

	if strings.HasPrefix(endpoint, "https://") || strings.HasSuffix(endpoint, ":443") {
		creds := credentials.NewTLS(&tls.Config{})
		opts = append(opts, grpc.WithTransportCredentials(creds))
		target = strings.TrimPrefix(target, "https://")
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
		target = strings.TrimPrefix(target, "http://")
	}

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create grpc client for %s: %w", target, err)
	}

	return &GRPCChecker{
		endpoint: endpoint,
		service:  service,
		conn:     conn,
	}, nil
}

// Check requires the health service to report SERVING.
func (c *GRPCChecker) Check(ctx context.Context) error {
	resp, err := healthpb.NewHealthClient(c.conn).Check(ctx, &healthpb.HealthCheckRequest{
		Service: c.service,
	})
	if err != nil {
		return &CheckError{Kind: grpcFailureKind(err), Err: fmt.Errorf("health check: %w", err)}
	}

	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return &CheckError{
			Kind: domain.FailureStatus,
			Err:  fmt.Errorf("endpoint reports status %s", resp.GetStatus()),
		}
	}
	return nil
}

// Close cleans up resources.
func (c *GRPCChecker) Close() error {
	return c.conn.Close()
}

func grpcFailureKind(err error) domain.FailureKind {
	if status.Code(err) == codes.DeadlineExceeded {
		return domain.FailureTimeout
	}
	return domain.FailureConnection
}
