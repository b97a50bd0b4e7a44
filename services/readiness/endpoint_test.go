package readiness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		network string
		address string
		wantErr string
	}{
		{name: "tcp url", raw: "tcp://indi:7624", network: "tcp", address: "indi:7624"},
		{name: "bare host port", raw: "localhost:7624", network: "tcp", address: "localhost:7624"},
		{name: "unix", raw: "unix:///var/run/indi.sock", network: "unix", address: "/var/run/indi.sock"},
		{name: "empty", raw: " ", wantErr: "endpoint is empty"},
		{name: "tcp missing port", raw: "tcp://indi", wantErr: "missing host:port"},
		{name: "unix missing path", raw: "unix://", wantErr: "missing socket path"},
		{name: "bad scheme", raw: "http://indi:7624", wantErr: "unsupported endpoint scheme"},
		{name: "no port", raw: "indi", wantErr: "invalid endpoint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ep, err := ParseEndpoint(tt.raw)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.network, ep.Network)
			assert.Equal(t, tt.address, ep.Address)
		})
	}
}

func TestEndpointFromEnv(t *testing.T) {
	t.Setenv("INDI_SERVER", "")
	ep, err := EndpointFromEnv("INDI_SERVER", "tcp://indi:7624")
	require.NoError(t, err)
	assert.Equal(t, "tcp://indi:7624", ep.String())

	t.Setenv("INDI_SERVER", "127.0.0.1:17624")
	ep, err = EndpointFromEnv("INDI_SERVER", "tcp://indi:7624")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:17624", ep.Address)

	t.Setenv("INDI_SERVER", "ftp://x:1")
	_, err = EndpointFromEnv("INDI_SERVER", "")
	assert.ErrorContains(t, err, "INDI_SERVER")
}

func TestTCPEndpoint(t *testing.T) {
	assert.Equal(t, "tcp://localhost:7624", TCPEndpoint("localhost", 7624).String())
	assert.Equal(t, "tcp://[::1]:7624", TCPEndpoint("::1", 7624).String())
}
