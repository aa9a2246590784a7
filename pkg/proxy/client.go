package proxy

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// ClientConfig controls the per-mirror HTTP client pool. It mirrors the
// relevant fields of config.ProxyConfig; duplicated as plain fields so
// this package has no import-time dependency on pkg/config.
type ClientConfig struct {
	ConnectTimeout        time.Duration
	UpstreamHeaderTimeout time.Duration
	IdleConnsPerHost      int
	MaxConnsPerHost       int
}

// clientPool hands out one *http.Client per mirror, each with its own
// connection pool sized per-host so a slow or unhealthy mirror can't starve
// connections meant for another. Each entry pairs a Transport tuned for
// reuse (MaxIdleConnsPerHost, IdleConnTimeout, ForceAttemptHTTP2) and the
// header-wait timeout (ResponseHeaderTimeout) with a Client that never
// follows redirects itself.
type clientPool struct {
	cfg ClientConfig

	mu      sync.RWMutex
	clients map[int64]*http.Client
}

func newClientPool(cfg ClientConfig) *clientPool {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.UpstreamHeaderTimeout <= 0 {
		cfg.UpstreamHeaderTimeout = 10 * time.Second
	}
	if cfg.IdleConnsPerHost <= 0 {
		cfg.IdleConnsPerHost = 32
	}
	if cfg.MaxConnsPerHost <= 0 {
		cfg.MaxConnsPerHost = 256
	}
	return &clientPool{
		cfg:     cfg,
		clients: make(map[int64]*http.Client),
	}
}

// get returns the client for mirrorID, creating one on first use.
func (p *clientPool) get(mirrorID int64) *http.Client {
	p.mu.RLock()
	c, ok := p.clients[mirrorID]
	p.mu.RUnlock()
	if ok {
		return c
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[mirrorID]; ok {
		return c
	}

	dialer := &net.Dialer{Timeout: p.cfg.ConnectTimeout}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConnsPerHost:   p.cfg.IdleConnsPerHost,
		MaxConnsPerHost:       p.cfg.MaxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: p.cfg.UpstreamHeaderTimeout,
		ForceAttemptHTTP2:     true,
	}
	c = &http.Client{
		Transport: transport,
		// CheckRedirect hands every 3xx back unfollowed; the engine's
		// followRedirects chases redirects itself, for blob GETs only.
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	p.clients[mirrorID] = c
	return c
}

// invalidate drops a cached client, e.g. after a mirror's upstream URL
// changes via the Admin API.
func (p *clientPool) invalidate(mirrorID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.clients, mirrorID)
}
