package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ezenkico/indi-stack/services/readiness"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	DefaultServer     = "tcp://indi:7624"
	DefaultListenAddr = ":8888"
)

type Config struct {
	ListenAddr string
	Server     readiness.Endpoint

	// Wait for the device server before serving; failure is logged, not fatal
	WaitForServer bool
	Policy        readiness.Policy

	// Probe timeout used by /health
	HealthTimeout time.Duration

	// Optional source directory to watch, with doublestar ignore patterns
	WatchDir    string
	WatchIgnore []string
}

// Client is the process started in the client container: it waits for the
// device server, then answers health checks about it.
type Client struct {
	cfg    Config
	logger *slog.Logger

	registry     *prometheus.Registry
	prober       *readiness.Prober
	healthChecks *prometheus.CounterVec
	changes      prometheus.Counter

	mu             sync.RWMutex
	lastChange     time.Time
	lastChangePath string
	changeCount    int
}

func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = time.Second
	}
	if cfg.WatchIgnore == nil {
		cfg.WatchIgnore = DefaultWatchIgnore
	}

	registry := prometheus.NewRegistry()
	c := &Client{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		prober:   readiness.NewProber(logger, readiness.NewMetrics(registry)),
		healthChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "indi_stack",
			Subsystem: "client",
			Name:      "health_checks_total",
			Help:      "Health checks served, by result.",
		}, []string{"result"}),
		changes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "indi_stack",
			Subsystem: "client",
			Name:      "source_changes_total",
			Help:      "File changes observed in the watched source directory.",
		}),
	}
	registry.MustRegister(c.healthChecks, c.changes)

	return c
}

func (c *Client) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", c.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))
	return mux
}

type healthResponse struct {
	Status         string     `json:"status"`
	Server         string     `json:"server"`
	Error          string     `json:"error,omitempty"`
	SourceChanges  int        `json:"source_changes"`
	LastChange     *time.Time `json:"last_change,omitempty"`
	LastChangePath string     `json:"last_change_path,omitempty"`
}

func (c *Client) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	attempt := c.prober.Once(r.Context(), c.cfg.Server, c.cfg.HealthTimeout)

	status := http.StatusOK
	resp := healthResponse{Status: "ok", Server: c.cfg.Server.String()}
	if !attempt.Ready {
		status = http.StatusServiceUnavailable
		resp.Status = "unavailable"
		resp.Error = attempt.Err.Error()
	}
	c.healthChecks.WithLabelValues(resp.Status).Inc()

	c.mu.RLock()
	resp.SourceChanges = c.changeCount
	if !c.lastChange.IsZero() {
		t := c.lastChange
		resp.LastChange = &t
		resp.LastChangePath = c.lastChangePath
	}
	c.mu.RUnlock()

	if r.URL.Query().Get("format") == "json" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if status == http.StatusOK {
		fmt.Fprint(w, "OK\n")
		return
	}
	fmt.Fprintf(w, "device server unavailable: %s\n", resp.Error)
}

func (c *Client) recordChange(path string) {
	c.mu.Lock()
	c.lastChange = time.Now()
	c.lastChangePath = path
	c.changeCount++
	c.mu.Unlock()
	c.changes.Inc()
}

// Run waits for the device server when configured, starts the source
// watcher and serves HTTP until ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", c.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", c.cfg.ListenAddr, err)
	}
	return c.Serve(ctx, ln)
}

func (c *Client) Serve(ctx context.Context, ln net.Listener) error {
	if c.cfg.WaitForServer {
		c.logger.Info("Waiting for device server", "server", c.cfg.Server.String())
		if _, err := c.prober.Probe(ctx, c.cfg.Server, c.cfg.Policy); err != nil {
			c.logger.Error("Device server not reachable", "server", c.cfg.Server.String(), "error", err)
		}
	}

	var wg sync.WaitGroup
	if c.cfg.WatchDir != "" {
		w, err := NewWatcher(c.cfg.WatchDir, c.cfg.WatchIgnore, c.logger, c.recordChange)
		if err != nil {
			_ = ln.Close()
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Run(ctx); err != nil {
				c.logger.Error("Source watcher stopped", "error", err)
			}
		}()
	}

	srv := &http.Server{
		Handler:           c.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	c.logger.Info("Client listening", "addr", ln.Addr().String())

	var serveErr error
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			serveErr = fmt.Errorf("shutdown http server: %w", err)
		}
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("serve http: %w", err)
		}
	}

	wg.Wait()
	return serveErr
}
