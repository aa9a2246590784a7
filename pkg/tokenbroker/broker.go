package tokenbroker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"relaydock/relay/pkg/telemetry/metrics"
)

// Config controls cache sizing and request timing for a Broker (mirrors
// config.TokenCacheConfig; duplicated here as plain fields so this package
// has no import-time dependency on pkg/config).
type Config struct {
	Capacity      int
	SafetyMargin  time.Duration
	DefaultTTL    time.Duration
	RealmTimeout  time.Duration
}

// inflight is a single in-progress realm fetch that other goroutines
// waiting on the same key can join instead of issuing their own request.
type inflight struct {
	done  chan struct{}
	entry TokenCacheEntry
	err   error
}

// Broker turns a parsed Www-Authenticate challenge plus
// mirror credentials into a ready-to-use bearer token, reusing a cached
// token when one is still valid and collapsing concurrent fetches for the
// same (mirror, scope) into one upstream request. The single-flight join
// is hand-rolled over a mutex and per-key completion channels; no
// singleflight library is exercised anywhere in the retrieval pack (see
// DESIGN.md).
type Broker struct {
	cfg       Config
	client    *http.Client
	cache     *cache
	collector *metrics.Collector

	mu       sync.Mutex
	inFlight map[entryKey]*inflight
}

// tokenCacheMetricName is the cache label under which the broker's
// Prometheus cache-hit/miss/size metrics are reported.
const tokenCacheMetricName = "token_broker"

// NewBroker constructs a Broker. client is the HTTP client used to talk to
// token realms; callers typically pass one with the same timeouts as the
// proxy engine's upstream client.
func NewBroker(cfg Config, client *http.Client) *Broker {
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.RealmTimeout <= 0 {
		cfg.RealmTimeout = 10 * time.Second
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 60 * time.Second
	}
	return &Broker{
		cfg:      cfg,
		client:   client,
		cache:    newCache(cfg.Capacity),
		inFlight: make(map[entryKey]*inflight),
	}
}

// SetCollector wires a metrics collector into the broker after
// construction; nil disables recording.
func (b *Broker) SetCollector(c *metrics.Collector) {
	b.collector = c
}

// tokenResponse is the realm's JSON body. Registries are inconsistent
// about which of token/access_token they populate; both are accepted.
type tokenResponse struct {
	Token       string `json:"token"`
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// FetchToken returns a bearer token satisfying challenge for mirrorID,
// using user/pass as Basic credentials against the realm whenever user
// is non-empty. A cached token is reused as long as
// it has at least cfg.SafetyMargin of life left. Concurrent callers for
// the same mirror+scope share one realm round trip.
func (b *Broker) FetchToken(ctx context.Context, mirrorID int64, challenge Challenge, user, pass string) (string, error) {
	key := entryKey{mirrorID: mirrorID, scope: challenge.Scope}

	if entry, ok := b.cache.get(key); ok {
		if time.Until(entry.ExpiresAt) > b.cfg.SafetyMargin {
			b.recordCacheHit()
			return entry.Token, nil
		}
	}
	b.recordCacheMiss()

	b.mu.Lock()
	if fl, ok := b.inFlight[key]; ok {
		b.mu.Unlock()
		<-fl.done
		if fl.err != nil {
			return "", fl.err
		}
		return fl.entry.Token, nil
	}

	fl := &inflight{done: make(chan struct{})}
	b.inFlight[key] = fl
	b.mu.Unlock()

	entry, err := b.fetchFromRealm(ctx, challenge, user, pass)
	fl.entry, fl.err = entry, err
	close(fl.done)

	b.mu.Lock()
	delete(b.inFlight, key)
	b.mu.Unlock()

	if err != nil {
		return "", err
	}
	evicted := b.cache.put(key, entry)
	if b.collector != nil {
		for i := 0; i < evicted; i++ {
			b.collector.RecordCacheEviction(tokenCacheMetricName)
		}
		b.collector.UpdateCacheSize(tokenCacheMetricName, b.cache.len())
	}
	return entry.Token, nil
}

func (b *Broker) recordCacheHit() {
	if b.collector != nil {
		b.collector.RecordCacheHit(tokenCacheMetricName)
	}
}

func (b *Broker) recordCacheMiss() {
	if b.collector != nil {
		b.collector.RecordCacheMiss(tokenCacheMetricName)
	}
}

func (b *Broker) fetchFromRealm(ctx context.Context, challenge Challenge, user, pass string) (TokenCacheEntry, error) {
	reqCtx, cancel := context.WithTimeout(ctx, b.cfg.RealmTimeout)
	defer cancel()

	u, err := url.Parse(challenge.Realm)
	if err != nil {
		return TokenCacheEntry{}, &AuthFailureError{Realm: challenge.Realm, Cause: fmt.Errorf("invalid realm URL: %w", err)}
	}
	q := u.Query()
	if challenge.Service != "" {
		q.Set("service", challenge.Service)
	}
	if challenge.Scope != "" {
		q.Set("scope", challenge.Scope)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		return TokenCacheEntry{}, &AuthFailureError{Realm: challenge.Realm, Cause: err}
	}
	if user != "" {
		req.Header.Set("Authorization", "Basic "+basicAuth(user, pass))
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return TokenCacheEntry{}, &AuthFailureError{Realm: challenge.Realm, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return TokenCacheEntry{}, &AuthFailureError{
			Realm: challenge.Realm,
			Cause: fmt.Errorf("realm returned status %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return TokenCacheEntry{}, &AuthFailureError{Realm: challenge.Realm, Cause: err}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return TokenCacheEntry{}, &AuthFailureError{Realm: challenge.Realm, Cause: fmt.Errorf("malformed token response: %w", err)}
	}

	token := tr.Token
	if token == "" {
		token = tr.AccessToken
	}
	if token == "" {
		return TokenCacheEntry{}, &AuthFailureError{Realm: challenge.Realm, Cause: fmt.Errorf("token response had no token field")}
	}

	ttl := b.cfg.DefaultTTL
	if tr.ExpiresIn > 0 {
		ttl = time.Duration(tr.ExpiresIn) * time.Second
	}

	return TokenCacheEntry{
		Token:     token,
		ExpiresAt: time.Now().Add(ttl),
		Realm:     challenge.Realm,
	}, nil
}

// Len reports the number of cached tokens, for metrics and tests.
func (b *Broker) Len() int {
	return b.cache.len()
}

func basicAuth(user, pass string) string {
	return base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
}
