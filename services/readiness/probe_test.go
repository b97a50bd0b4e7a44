package readiness

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// freeAddr returns a loopback address nothing is listening on.
func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func fastPolicy(timeout time.Duration) Policy {
	return Policy{
		Timeout:         timeout,
		InitialInterval: 10 * time.Millisecond,
		MaxInterval:     50 * time.Millisecond,
		DialTimeout:     200 * time.Millisecond,
	}
}

func TestProbe_ImmediatelyReady(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	metrics := NewMetrics(prometheus.NewRegistry())
	p := NewProber(nil, metrics)

	ep, err := ParseEndpoint(ln.Addr().String())
	require.NoError(t, err)

	res, err := p.Probe(context.Background(), ep, fastPolicy(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Attempts.WithLabelValues(ep.String(), OutcomeReady)))
}

func TestProbe_WaitsForLateListener(t *testing.T) {
	addr := freeAddr(t)
	ep, err := ParseEndpoint(addr)
	require.NoError(t, err)

	started := make(chan net.Listener, 1)
	go func() {
		time.Sleep(150 * time.Millisecond)
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			started <- nil
			return
		}
		started <- ln
	}()

	metrics := NewMetrics(prometheus.NewRegistry())
	res, err := NewProber(nil, metrics).Probe(context.Background(), ep, fastPolicy(5*time.Second))

	ln := <-started
	if ln == nil {
		t.Skip("port was taken before the late listener could bind")
	}
	defer ln.Close()

	require.NoError(t, err)
	assert.Greater(t, res.Attempts, 1)
	assert.GreaterOrEqual(t, testutil.ToFloat64(metrics.Attempts.WithLabelValues(ep.String(), OutcomeRefused)), 1.0)
}

func TestProbe_TimesOut(t *testing.T) {
	ep, err := ParseEndpoint(freeAddr(t))
	require.NoError(t, err)

	start := time.Now()
	res, err := NewProber(nil, nil).Probe(context.Background(), ep, fastPolicy(200*time.Millisecond))
	require.Error(t, err)
	assert.True(t, IsRefused(err), "expected connection refused, got %v", err)
	assert.Contains(t, err.Error(), "not ready after")
	assert.GreaterOrEqual(t, res.Attempts, 1)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestProbe_ContextCancelled(t *testing.T) {
	ep, err := ParseEndpoint(freeAddr(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = NewProber(nil, nil).Probe(ctx, ep, fastPolicy(5*time.Second))
	assert.Error(t, err)
}

func TestOnce_ClassifiesRefused(t *testing.T) {
	ep, err := ParseEndpoint(freeAddr(t))
	require.NoError(t, err)

	a := NewProber(nil, nil).Once(context.Background(), ep, 200*time.Millisecond)
	assert.False(t, a.Ready)
	assert.True(t, a.Refused)
	assert.Error(t, a.Err)
}

// serve accepts connections on ln and hands each to handle until ln closes.
func serve(ln net.Listener, handle func(net.Conn)) {
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go handle(conn)
		}
	}()
}

func TestOnce_AcceptThenCloseIsNotReady(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	serve(ln, func(c net.Conn) { c.Close() })

	ep, err := ParseEndpoint(ln.Addr().String())
	require.NoError(t, err)

	metrics := NewMetrics(prometheus.NewRegistry())
	a := NewProber(nil, metrics).Once(context.Background(), ep, 200*time.Millisecond)
	assert.False(t, a.Ready)
	assert.True(t, a.Closed)
	assert.False(t, a.Refused)
	assert.True(t, errors.Is(a.Err, ErrClosedEarly), "got %v", a.Err)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Attempts.WithLabelValues(ep.String(), OutcomeClosed)))
}

func TestOnce_PeerSendingDataIsReady(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	serve(ln, func(c net.Conn) {
		defer c.Close()
		_, _ = c.Write([]byte("<defTextVector/>"))
		time.Sleep(time.Second)
	})

	ep, err := ParseEndpoint(ln.Addr().String())
	require.NoError(t, err)

	p := NewProber(nil, nil)
	p.settle = 5 * time.Second

	a := p.Once(context.Background(), ep, 200*time.Millisecond)
	assert.True(t, a.Ready)
	assert.Less(t, a.Elapsed, 2*time.Second)
}

func TestProbe_HangupNeverBecomesReady(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	serve(ln, func(c net.Conn) { c.Close() })

	ep, err := ParseEndpoint(ln.Addr().String())
	require.NoError(t, err)

	res, err := NewProber(nil, nil).Probe(context.Background(), ep, fastPolicy(500*time.Millisecond))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrClosedEarly), "got %v", err)
	assert.GreaterOrEqual(t, res.Attempts, 1)
}

func TestProbe_ReadyOnceServerHoldsConnections(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	// Hang up on the first connections, like a port proxy with no backend yet.
	var accepted atomic.Int32
	serve(ln, func(c net.Conn) {
		defer c.Close()
		if accepted.Add(1) <= 2 {
			return
		}
		time.Sleep(time.Second)
	})

	ep, err := ParseEndpoint(ln.Addr().String())
	require.NoError(t, err)

	metrics := NewMetrics(prometheus.NewRegistry())
	p := NewProber(nil, metrics)
	p.settle = 50 * time.Millisecond

	res, err := p.Probe(context.Background(), ep, fastPolicy(5*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Attempts.WithLabelValues(ep.String(), OutcomeClosed)))
}
