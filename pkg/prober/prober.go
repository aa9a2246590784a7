package prober

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"relaydock/relay/pkg/mirror"
	"relaydock/relay/pkg/telemetry/metrics"
)

// Config controls probe cadence and circuit-breaker sensitivity (mirrors
// config.ProbeConfig; duplicated as plain fields to avoid an import-time
// dependency on pkg/config).
type Config struct {
	Interval         time.Duration
	CronSchedule     string
	Timeout          time.Duration
	Jitter           time.Duration
	FailureThreshold int
	SlowThreshold    time.Duration
}

// Prober runs scheduled sweeps over every enabled mirror, pinging
// `<upstream_url>/v2/` and reporting the result to the registry. Probes
// run concurrently across mirrors but at most one in flight per mirror,
// so a slow sweep never piles up probes against the same upstream.
type Prober struct {
	registry  *mirror.Registry
	client    *http.Client
	cfg       Config
	logger    *slog.Logger
	collector *metrics.Collector

	inFlight sync.Map // map[int64]struct{}

	mu      sync.Mutex
	ticker  *time.Ticker
	cron    *cron.Cron
	running bool
	stopCh  chan struct{}
}

// NewProber constructs a Prober. client is used for all probe requests;
// callers typically pass one dedicated to probing, distinct from the
// proxy engine's per-mirror forwarding clients.
func NewProber(reg *mirror.Registry, client *http.Client, cfg Config) *Prober {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 1
	}
	if cfg.SlowThreshold <= 0 {
		cfg.SlowThreshold = 10 * time.Second
	}
	if client == nil {
		client = &http.Client{}
	}
	return &Prober{
		registry: reg,
		client:   client,
		cfg:      cfg,
		logger:   slog.Default().With("component", "prober"),
	}
}

// SetCollector wires a metrics collector into the prober after
// construction; nil disables recording.
func (p *Prober) SetCollector(c *metrics.Collector) {
	p.collector = c
}

// ProbeAll runs one sweep over every enabled mirror, waits for all probes
// to complete, and returns. Safe to call concurrently with the scheduled
// loop — per-mirror single-flight guards prevent a double probe of the
// same mirror; a mirror already being probed is simply skipped for this
// sweep.
func (p *Prober) ProbeAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, m := range p.registry.List() {
		if !m.Enabled {
			continue
		}
		if _, already := p.inFlight.LoadOrStore(m.ID, struct{}{}); already {
			continue
		}
		wg.Add(1)
		go func(m mirror.Mirror) {
			defer wg.Done()
			defer p.inFlight.Delete(m.ID)
			p.probeOne(ctx, m)
		}(m)
	}
	wg.Wait()
}

// probeOne pings a single mirror and updates the registry with the
// outcome.
func (p *Prober) probeOne(ctx context.Context, m mirror.Mirror) {
	reqCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	start := time.Now()
	status, err := p.ping(reqCtx, m)
	latency := time.Since(start)

	now := time.Now()
	healthy := err == nil && (status == http.StatusOK || status == http.StatusUnauthorized) && latency <= p.cfg.SlowThreshold

	if p.collector != nil {
		p.collector.RecordProbeLatency(m.Prefix, latency.Seconds())
	}

	if healthy {
		if uerr := p.registry.UpdateHealth(m.ID, float64(latency.Milliseconds()), now); uerr != nil {
			p.logger.Error("failed to record successful probe", "mirror_id", m.ID, "error", uerr)
		}
		if p.collector != nil {
			p.collector.UpdateMirrorHealth(m.Prefix, true)
			p.collector.UpdateConsecutiveFailures(m.Prefix, 0)
		}
		p.logger.Debug("probe succeeded", "mirror_id", m.ID, "prefix", m.Prefix, "latency_ms", latency.Milliseconds())
		return
	}

	if rerr := p.registry.RecordFailure(m.ID, p.cfg.FailureThreshold, now); rerr != nil {
		p.logger.Error("failed to record probe failure", "mirror_id", m.ID, "error", rerr)
	}
	if p.collector != nil {
		updated, uerr := p.registry.GetByID(m.ID)
		if uerr == nil {
			p.collector.UpdateMirrorHealth(m.Prefix, updated.Health == mirror.HealthHealthy)
			p.collector.UpdateConsecutiveFailures(m.Prefix, updated.ConsecutiveFailures)
		}
	}
	switch {
	case err != nil:
		p.logger.Warn("probe failed", "mirror_id", m.ID, "prefix", m.Prefix, "error", err)
	case latency > p.cfg.SlowThreshold:
		p.logger.Warn("probe too slow, treated as failure", "mirror_id", m.ID, "prefix", m.Prefix, "latency_ms", latency.Milliseconds())
	default:
		p.logger.Warn("probe returned unhealthy status", "mirror_id", m.ID, "prefix", m.Prefix, "status", status)
	}
}

func (p *Prober) ping(ctx context.Context, m mirror.Mirror) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, trimTrailingSlash(m.UpstreamURL)+"/v2/", nil)
	if err != nil {
		return 0, err
	}
	if m.UpstreamHost != "" {
		req.Host = m.UpstreamHost
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

func trimTrailingSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

// Start begins scheduled sweeps and returns once the scheduler is
// running; sweeps continue in the background until ctx is cancelled or
// Stop is called. CronSchedule, when set, takes precedence over Interval.
func (p *Prober) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}

	if p.cfg.CronSchedule != "" {
		if _, err := cron.ParseStandard(p.cfg.CronSchedule); err != nil {
			return fmt.Errorf("invalid probe schedule %q: %w", p.cfg.CronSchedule, err)
		}
		c := cron.New()
		if _, err := c.AddFunc(p.cfg.CronSchedule, func() { p.sweepWithJitter(ctx) }); err != nil {
			return fmt.Errorf("schedule probe sweep: %w", err)
		}
		c.Start()
		p.cron = c
	} else {
		p.ticker = time.NewTicker(p.cfg.Interval)
		p.stopCh = make(chan struct{})
		go p.runTickerLoop(ctx)
	}

	p.running = true
	p.logger.Info("health prober started", "interval", p.cfg.Interval, "cron_schedule", p.cfg.CronSchedule)

	go func() {
		<-ctx.Done()
		p.Stop()
	}()
	return nil
}

func (p *Prober) runTickerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-p.ticker.C:
			p.sweepWithJitter(ctx)
		}
	}
}

// sweepWithJitter sleeps a random [0, Jitter) delay before sweeping, so
// many relay instances sharing upstreams don't probe in lockstep.
func (p *Prober) sweepWithJitter(ctx context.Context) {
	if p.cfg.Jitter > 0 {
		select {
		case <-time.After(time.Duration(rand.Int63n(int64(p.cfg.Jitter)))):
		case <-ctx.Done():
			return
		}
	}
	p.ProbeAll(ctx)
}

// Stop halts the scheduler. Safe to call multiple times.
func (p *Prober) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	if p.ticker != nil {
		p.ticker.Stop()
		close(p.stopCh)
		p.ticker = nil
	}
	if p.cron != nil {
		stopCtx := p.cron.Stop()
		<-stopCtx.Done()
		p.cron = nil
	}
	p.running = false
	p.logger.Info("health prober stopped")
}
