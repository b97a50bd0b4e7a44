package readiness

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"
)

type Endpoint struct {
	Raw     string
	Network string // tcp or unix
	Address string // host:port, or the socket path for unix
}

// EndpointFromEnv parses the endpoint in the environment variable key,
// falling back to fallback when it is unset.
func EndpointFromEnv(key, fallback string) (Endpoint, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		raw = fallback
	}
	ep, err := ParseEndpoint(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%s: %w", key, err)
	}
	return ep, nil
}

// ParseEndpoint parses an endpoint like:
//
//	tcp://indi:7624
//	localhost:7624
//	unix:///var/run/indi.sock
func ParseEndpoint(raw string) (Endpoint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Endpoint{}, fmt.Errorf("endpoint is empty")
	}

	if !strings.Contains(raw, "://") {
		if _, _, err := net.SplitHostPort(raw); err != nil {
			return Endpoint{}, fmt.Errorf("invalid endpoint %q: %w", raw, err)
		}
		return Endpoint{Raw: raw, Network: "tcp", Address: raw}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid endpoint %q: %w", raw, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "unix":
		// url.Parse treats unix:///path as Path="/path"
		if u.Path == "" {
			return Endpoint{}, fmt.Errorf("unix endpoint missing socket path: %q", raw)
		}
		return Endpoint{Raw: raw, Network: "unix", Address: u.Path}, nil

	case "tcp":
		if u.Host == "" || u.Port() == "" {
			return Endpoint{}, fmt.Errorf("tcp endpoint missing host:port: %q", raw)
		}
		return Endpoint{Raw: raw, Network: "tcp", Address: u.Host}, nil

	default:
		return Endpoint{}, fmt.Errorf("unsupported endpoint scheme %q (use tcp:// or unix://)", u.Scheme)
	}
}

func TCPEndpoint(host string, port int) Endpoint {
	addr := net.JoinHostPort(host, fmt.Sprint(port))
	return Endpoint{Raw: "tcp://" + addr, Network: "tcp", Address: addr}
}

func (e Endpoint) String() string {
	return e.Network + "://" + e.Address
}

// Dial opens a connection, bounded by timeout and ctx.
func (e Endpoint) Dial(ctx context.Context, timeout time.Duration) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: timeout}
	return dialer.DialContext(ctx, e.Network, e.Address)
}
