package client

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ezenkico/indi-stack/services/readiness"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	return ln
}

func closedEndpoint(t *testing.T) readiness.Endpoint {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ep, err := readiness.ParseEndpoint(ln.Addr().String())
	require.NoError(t, err)
	require.NoError(t, ln.Close())
	return ep
}

func TestHealth_ServerUp(t *testing.T) {
	server := listen(t)
	ep, err := readiness.ParseEndpoint(server.Addr().String())
	require.NoError(t, err)

	srv := httptest.NewServer(New(Config{Server: ep}, nil).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK\n", string(body))
}

func TestHealth_ServerDown(t *testing.T) {
	srv := httptest.NewServer(New(Config{Server: closedEndpoint(t)}, nil).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(body), "device server unavailable")
}

func TestHealth_JSON(t *testing.T) {
	c := New(Config{Server: closedEndpoint(t)}, nil)
	c.recordChange("main.py")

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health?format=json")
	require.NoError(t, err)
	defer resp.Body.Close()

	var out healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "unavailable", out.Status)
	assert.Equal(t, 1, out.SourceChanges)
	assert.Equal(t, "main.py", out.LastChangePath)
	require.NotNil(t, out.LastChange)
}

func TestMetrics(t *testing.T) {
	c := New(Config{Server: closedEndpoint(t)}, nil)
	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `indi_stack_client_health_checks_total{result="unavailable"} 1`)
	assert.Contains(t, string(body), "indi_stack_readiness_probe_attempts_total")
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	server := listen(t)
	ep, err := readiness.ParseEndpoint(server.Addr().String())
	require.NoError(t, err)

	c := New(Config{Server: ep, WaitForServer: true}, nil)
	ln := listen(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestWatcher_ReportsChanges(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "__pycache__"), 0o755))

	changed := make(chan string, 16)
	w, err := NewWatcher(dir, DefaultWatchIgnore, discardLogger(), func(p string) { changed <- p })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.pyc"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.py"), []byte("print('hi')\n"), 0o644))

	select {
	case p := <-changed:
		assert.Equal(t, "main.py", p)
	case <-time.After(3 * time.Second):
		t.Fatal("no change reported")
	}
}

func TestWatcher_InvalidPattern(t *testing.T) {
	_, err := NewWatcher(t.TempDir(), []string{"[unclosed"}, nil, func(string) {})
	assert.ErrorContains(t, err, "invalid watch ignore pattern")
}

func TestWatcher_IgnoredDir(t *testing.T) {
	w := &Watcher{ignore: DefaultWatchIgnore}
	assert.True(t, w.ignoredDir("__pycache__"))
	assert.True(t, w.ignoredDir("pkg/__pycache__"))
	assert.True(t, w.ignoredDir(".git"))
	assert.False(t, w.ignoredDir("."))
	assert.False(t, w.ignoredDir("indi"))
	assert.True(t, w.ignored(strings.Join([]string{"indi", "client.pyc"}, "/")))
}
