package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ledgerops/bridgewatch/internal/core/domain"
)

// maxHealthBody caps how much of a health response we read.
const maxHealthBody = 64 * 1024

// EndpointChecker performs the reachability tier against one transport.
type EndpointChecker interface {
	Check(ctx context.Context) error
	Close() error
}

// CheckError is an endpoint check failure carrying its probe classification.
type CheckError struct {
	Kind domain.FailureKind
	Err  error
}

func (e *CheckError) Error() string { return e.Err.Error() }
func (e *CheckError) Unwrap() error { return e.Err }

// NewChecker builds the checker for a target's configured transport.
func NewChecker(transport, url, grpcService string, timeout time.Duration) (EndpointChecker, error) {
	switch transport {
	case "http", "":
		return NewHTTPChecker(url, timeout), nil
	case "grpc":
		return NewGRPCChecker(url, grpcService)
	default:
		return nil, fmt.Errorf("unsupported health transport: %s", transport)
	}
}

// HTTPChecker probes an HTTP health endpoint.
type HTTPChecker struct {
	url    string
	client *http.Client
}

// NewHTTPChecker creates an HTTP endpoint checker.
func NewHTTPChecker(url string, timeout time.Duration) *HTTPChecker {
	return &HTTPChecker{
		url: url,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Check requires a 2xx response; if the body is JSON with a status field,
// the field must agree that the bridge is up.
func (c *HTTPChecker) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return &CheckError{Kind: domain.FailureConnection, Err: fmt.Errorf("create request: %w", err)}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &CheckError{Kind: transportFailureKind(err), Err: fmt.Errorf("health request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxHealthBody))
	if err != nil {
		return &CheckError{Kind: transportFailureKind(err), Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &CheckError{
			Kind: domain.FailureStatus,
			Err:  fmt.Errorf("http %d from health endpoint", resp.StatusCode),
		}
	}

	var report struct {
		Status string `json:"status"`
	}
	if json.Unmarshal(body, &report) == nil && report.Status != "" {
		switch strings.ToLower(report.Status) {
		case "ok", "healthy", "up":
		default:
			return &CheckError{
				Kind: domain.FailureStatus,
				Err:  fmt.Errorf("endpoint reports status %q", report.Status),
			}
		}
	}

	return nil
}

// Close cleans up resources.
func (c *HTTPChecker) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

func transportFailureKind(err error) domain.FailureKind {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return domain.FailureTimeout
	}
	return domain.FailureConnection
}
