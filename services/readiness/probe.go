package readiness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type Policy struct {
	// Overall wait window
	Timeout time.Duration

	// First backoff interval; grows exponentially up to MaxInterval
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// Per-attempt dial timeout
	DialTimeout time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		Timeout:         30 * time.Second,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		DialTimeout:     time.Second,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.Timeout <= 0 {
		p.Timeout = d.Timeout
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = d.InitialInterval
	}
	if p.MaxInterval < p.InitialInterval {
		p.MaxInterval = max(d.MaxInterval, p.InitialInterval)
	}
	if p.DialTimeout <= 0 {
		p.DialTimeout = d.DialTimeout
	}
	return p
}

// DefaultSettle is how long an accepted connection must stay open before
// the peer counts as ready. Docker's userland proxy accepts on a published
// port before anything listens in the container, then closes right away.
const DefaultSettle = 200 * time.Millisecond

// ErrClosedEarly is returned when the peer accepted and then hung up.
var ErrClosedEarly = errors.New("connection closed before the server was ready")

type Result struct {
	Endpoint string
	Attempts int
	Elapsed  time.Duration
}

// Attempt is the outcome of a single connection attempt.
type Attempt struct {
	Ready   bool
	Refused bool
	Closed  bool
	Elapsed time.Duration
	Err     error
}

type Prober struct {
	logger  *slog.Logger
	metrics *Metrics
	settle  time.Duration
}

func NewProber(logger *slog.Logger, metrics *Metrics) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{logger: logger, metrics: metrics, settle: DefaultSettle}
}

// IsRefused reports whether err means nothing is listening yet.
func IsRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ENOENT)
}

func (p *Prober) observe(ep Endpoint, outcome string) {
	if p.metrics == nil {
		return
	}
	p.metrics.Attempts.WithLabelValues(ep.String(), outcome).Inc()
}

// Once makes a single connection attempt. The attempt is ready when the
// connection survives the settle period or the peer sends data; a peer that
// hangs up first is not.
func (p *Prober) Once(ctx context.Context, ep Endpoint, dialTimeout time.Duration) Attempt {
	start := time.Now()
	conn, err := ep.Dial(ctx, dialTimeout)
	if err != nil {
		outcome := OutcomeError
		if IsRefused(err) {
			outcome = OutcomeRefused
		}
		p.observe(ep, outcome)
		return Attempt{Refused: outcome == OutcomeRefused, Elapsed: time.Since(start), Err: err}
	}
	defer conn.Close()

	if err := p.hold(ctx, conn); err != nil {
		outcome := OutcomeError
		if errors.Is(err, ErrClosedEarly) {
			outcome = OutcomeClosed
		}
		p.observe(ep, outcome)
		return Attempt{Closed: outcome == OutcomeClosed, Elapsed: time.Since(start), Err: err}
	}

	p.observe(ep, OutcomeReady)
	return Attempt{Ready: true, Elapsed: time.Since(start)}
}

// hold waits up to the settle period for the peer to either send data or
// close the connection.
func (p *Prober) hold(ctx context.Context, conn net.Conn) error {
	if p.settle <= 0 {
		return nil
	}
	deadline := time.Now().Add(p.settle)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return err
	}

	var buf [1]byte
	n, err := conn.Read(buf[:])
	if n > 0 {
		return nil
	}
	var netErr net.Error
	switch {
	case errors.As(err, &netErr) && netErr.Timeout():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return nil
	case errors.Is(err, io.EOF), errors.Is(err, syscall.ECONNRESET):
		return fmt.Errorf("%w: %v", ErrClosedEarly, err)
	default:
		return err
	}
}

// Probe polls ep with exponential backoff until it accepts a connection,
// the policy timeout elapses or ctx is cancelled.
func (p *Prober) Probe(ctx context.Context, ep Endpoint, policy Policy) (Result, error) {
	policy = policy.withDefaults()

	ctx, cancel := context.WithTimeout(ctx, policy.Timeout)
	defer cancel()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = policy.InitialInterval
	b.MaxInterval = policy.MaxInterval
	b.MaxElapsedTime = policy.Timeout
	b.Reset()

	res := Result{Endpoint: ep.String()}
	start := time.Now()
	var lastErr error

	err := backoff.RetryNotify(func() error {
		res.Attempts++
		a := p.Once(ctx, ep, policy.DialTimeout)
		if a.Ready {
			return nil
		}
		lastErr = a.Err
		return a.Err
	}, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
		p.logger.Debug("Endpoint not ready",
			"endpoint", ep.String(),
			"attempt", res.Attempts,
			"retry_in", next,
			"error", err)
	})

	res.Elapsed = time.Since(start)
	if err != nil {
		if lastErr == nil {
			lastErr = err
		}
		return res, fmt.Errorf("%s not ready after %s (%d attempts): %w",
			ep.String(), res.Elapsed.Round(time.Millisecond), res.Attempts, lastErr)
	}

	if p.metrics != nil {
		p.metrics.TimeToReady.WithLabelValues(ep.String()).Observe(res.Elapsed.Seconds())
	}
	p.logger.Info("Endpoint ready",
		"endpoint", ep.String(),
		"attempts", res.Attempts,
		"elapsed", res.Elapsed.Round(time.Millisecond))

	return res, nil
}
