package runner

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ConnectivityTimeout bounds the backend reachability check.
const ConnectivityTimeout = 5 * time.Second

var (
	// ErrConnectivityTimeout means the endpoint did not answer in time.
	ErrConnectivityTimeout = errors.New("request timed out")
	// ErrUnreachable means the request failed for any other reason.
	ErrUnreachable = errors.New("endpoint unreachable")
)

// CheckConnectivity issues a GET against endpoint. Any HTTP response counts
// as reachable.
func CheckConnectivity(ctx context.Context, endpoint string, skipTLSVerify bool) error {
	ctx, cancel := context.WithTimeout(ctx, ConnectivityTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}

	client := &http.Client{}
	if skipTLSVerify {
		client.Transport = &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}
	}

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrConnectivityTimeout
		}
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	_ = resp.Body.Close()
	return nil
}
