package proxy

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"relaydock/relay/pkg/mirror"
	"relaydock/relay/pkg/proxyerr"
	"relaydock/relay/pkg/store"
	"relaydock/relay/pkg/telemetry/metrics"
	"relaydock/relay/pkg/telemetry/tracing"
	"relaydock/relay/pkg/tokenbroker"
	"relaydock/relay/pkg/traffic"
)

// EngineConfig controls engine-level behavior not already owned by the
// per-mirror HTTP clients (see ClientConfig).
type EngineConfig struct {
	DefaultPrefix     string
	MaxRedirects      int
	StreamIdleTimeout time.Duration

	// maxBufferedBody bounds how large a request body the engine will
	// buffer in memory to support a single auth-retry. Bodies larger than
	// this are sent without retry capability — by the time a client pushes
	// a large blob it has ordinarily already completed the auth handshake
	// via a preceding HEAD/GET.
	MaxBufferedBody int64
}

// Engine resolves an incoming registry request to an upstream mirror,
// forwards it transparently (including the Bearer/Basic auth handshake on
// the client's behalf), streams the response back, and records the
// attempt in the traffic recorder regardless of outcome.
type Engine struct {
	cfg       EngineConfig
	registry  *mirror.Registry
	broker    *tokenbroker.Broker
	recorder  *traffic.Recorder
	collector *metrics.Collector
	tracer    *tracing.Tracer
	clients   *clientPool
	logger    *slog.Logger
}

// NewEngine wires the engine's collaborators together.
func NewEngine(cfg EngineConfig, clientCfg ClientConfig, reg *mirror.Registry, broker *tokenbroker.Broker, recorder *traffic.Recorder) *Engine {
	if cfg.DefaultPrefix == "" {
		cfg.DefaultPrefix = mirror.DefaultPrefix
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = 5
	}
	if cfg.StreamIdleTimeout <= 0 {
		cfg.StreamIdleTimeout = 60 * time.Second
	}
	if cfg.MaxBufferedBody <= 0 {
		cfg.MaxBufferedBody = 10 << 20
	}
	return &Engine{
		cfg:      cfg,
		registry: reg,
		broker:   broker,
		recorder: recorder,
		clients:  newClientPool(clientCfg),
		logger:   slog.Default().With("component", "proxy.engine"),
	}
}

// SetCollector wires a metrics collector into the engine after
// construction; nil disables recording. Kept as a post-construction
// setter rather than a NewEngine parameter so metrics stays optional
// without forcing every existing caller (and test) to thread one
// through.
func (e *Engine) SetCollector(c *metrics.Collector) {
	e.collector = c
}

// SetTracer wires a tracer into the engine after construction; nil (or
// an unconstructed zero Tracer) leaves ServeHTTP's Start calls returning
// noop spans, since tracing.Tracer.Start itself degrades to a noop
// tracer when tracing is disabled.
func (e *Engine) SetTracer(t *tracing.Tracer) {
	e.tracer = t
}

// startSpan is a convenience wrapper so call sites don't need a nil
// check on e.tracer; an engine with no tracer configured returns the
// incoming span from ctx unchanged (possibly a noop span).
func (e *Engine) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if e.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return e.tracer.Start(ctx, name)
}

// hopByHopHeaders are stripped from both the forwarded request and the
// relayed response.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

func (e *Engine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	ctx, span := e.startSpan(r.Context(), "relay.proxy.request")
	defer span.End()
	tracing.SetRequestAttributes(span, r.Header.Get("X-Request-Id"), clientIP(r), r.Method)
	r = r.WithContext(ctx)

	if r.URL.Path == "/v2/" || r.URL.Path == "/v2" {
		w.Header().Set("Docker-Distribution-API-Version", "registry/2.0")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("{}"))
		return
	}

	route, err := ParseRoute(r.URL.Path, e.registry, e.cfg.DefaultPrefix)
	if err != nil {
		e.record(route, nil, r, start, 0, http.StatusBadRequest)
		tracing.SetErrorAttributes(span, err, "bad_request")
		proxyerr.WriteError(w, err)
		return
	}
	tracing.SetRepositoryAttribute(span, route.ImageRef)
	if route.Operation == OpDiscovery {
		w.Header().Set("Docker-Distribution-API-Version", "registry/2.0")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("{}"))
		return
	}

	body, err := e.bufferBody(r)
	if err != nil {
		proxyerr.WriteError(w, proxyerr.New(proxyerr.KindBadRequest, "failed to read request body", err))
		return
	}

	e.forward(w, r, route, body, start)
}

// bufferBody reads r.Body into memory when it's small enough to support a
// single auth-retry replay, and restores r.Body so the original can still
// be consumed if buffering is skipped.
func (e *Engine) bufferBody(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	if r.ContentLength > e.cfg.MaxBufferedBody {
		return nil, nil
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, e.cfg.MaxBufferedBody+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > e.cfg.MaxBufferedBody {
		r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(data), r.Body))
		return nil, nil
	}
	return data, nil
}

// forward implements pre-first-byte failover across mirrors sharing
// route.Prefix and, per chosen mirror, the Bearer/Basic auth handshake.
func (e *Engine) forward(w http.ResponseWriter, r *http.Request, route Route, body []byte, start time.Time) {
	tried := map[int64]bool{}

	for {
		_, selectSpan := e.startSpan(r.Context(), "relay.mirror.select")
		m, err := mirror.SelectExcluding(e.registry, route.Prefix, tried)
		if err != nil {
			selectSpan.End()
			if len(tried) > 0 {
				// Healthy mirrors existed but every one failed before the
				// first byte reached the client.
				e.record(route, nil, r, start, 0, http.StatusBadGateway)
				e.recordForwardingError(route.Prefix, "upstreams_exhausted")
				proxyerr.WriteError(w, proxyerr.New(proxyerr.KindUpstreamUnavailable, "all mirrors failed for prefix "+route.Prefix, err))
				return
			}
			e.record(route, nil, r, start, 0, http.StatusServiceUnavailable)
			e.recordForwardingError(route.Prefix, "no_upstream")
			proxyerr.WriteError(w, proxyerr.New(proxyerr.KindNoUpstream, "no healthy mirror for prefix "+route.Prefix, err))
			return
		}
		tracing.SetMirrorAttributes(selectSpan, m.Prefix, m.UpstreamURL)
		selectSpan.End()
		tried[m.ID] = true

		resp, authErr, transportErr := e.attempt(r, route, m, body)
		if transportErr != nil {
			e.logger.WarnContext(r.Context(), "upstream attempt failed, trying next mirror",
				"mirror_id", m.ID, "prefix", route.Prefix, "error", transportErr)
			e.recordForwardingError(route.Prefix, "transport_error")
			continue
		}
		if authErr != nil {
			e.record(route, &m, r, start, 0, http.StatusBadGateway)
			e.recordForwardingError(route.Prefix, "auth_failure")
			proxyerr.WriteError(w, proxyerr.New(proxyerr.KindAuthFailure, "token realm rejected credentials", authErr))
			return
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			e.logger.WarnContext(r.Context(), "upstream returned 5xx, trying next mirror",
				"mirror_id", m.ID, "prefix", route.Prefix, "status", resp.StatusCode)
			e.recordForwardingError(route.Prefix, "upstream_5xx")
			continue
		}

		tracing.SetRetryAttribute(trace.SpanFromContext(r.Context()), len(tried)-1)
		bytesOut, truncated := e.relay(w, r, resp, route)
		e.record(route, &m, r, start, bytesOut, resp.StatusCode)
		if truncated {
			// Abort the client connection so a body cut short upstream is
			// never delivered as a cleanly terminated response.
			panic(http.ErrAbortHandler)
		}
		return
	}
}

// attempt runs the full request/auth-handshake/redirect-following flow
// against a single mirror. A non-nil transportErr means the mirror should
// be excluded and the next one tried: no bytes have reached the client
// yet. A non-nil authErr means the token broker itself failed and should
// surface as AuthFailure rather than trigger failover.
func (e *Engine) attempt(r *http.Request, route Route, m mirror.Mirror, body []byte) (resp *http.Response, authErr, transportErr error) {
	_, callSpan := e.startSpan(r.Context(), "relay.upstream.call")
	defer callSpan.End()
	tracing.SetMirrorAttributes(callSpan, m.Prefix, m.UpstreamURL)
	tracing.SetRepositoryAttribute(callSpan, route.ImageRef)
	defer func() {
		if transportErr != nil {
			tracing.SetErrorAttributes(callSpan, transportErr, "transport_error")
		} else if authErr != nil {
			tracing.SetErrorAttributes(callSpan, authErr, "auth_failure")
		}
	}()

	client := e.clients.get(m.ID)

	req, err := e.buildRequest(r, route, m, body, "")
	if err != nil {
		return nil, nil, err
	}
	resp, err = client.Do(req)
	if err != nil {
		return nil, nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		challengeHeader := resp.Header.Get("Www-Authenticate")
		resp.Body.Close()

		authHeader, err := e.authenticate(r.Context(), m, challengeHeader)
		if err != nil {
			return nil, err, nil
		}
		if authHeader == "" {
			// No usable challenge or no credentials configured; surface
			// the original 401 unchanged rather than retry pointlessly.
			req, err = e.buildRequest(r, route, m, body, "")
			if err != nil {
				return nil, nil, err
			}
			resp, err = client.Do(req)
			if err != nil {
				return nil, nil, err
			}
			return e.followRedirects(resp, route, client)
		}

		retryReq, err := e.buildRequest(r, route, m, body, authHeader)
		if err != nil {
			return nil, nil, err
		}
		resp, err = client.Do(retryReq)
		if err != nil {
			return nil, nil, err
		}
		return e.followRedirects(resp, route, client)
	}

	return e.followRedirects(resp, route, client)
}

// authenticate parses challengeHeader and satisfies it per mirror.AuthKind,
// returning a ready-to-use Authorization header value, or "" if the
// challenge can't be satisfied with this mirror's configuration.
func (e *Engine) authenticate(ctx context.Context, m mirror.Mirror, challengeHeader string) (string, error) {
	if challengeHeader == "" {
		return "", nil
	}
	ctx, span := e.startSpan(ctx, "relay.auth.handshake")
	defer span.End()

	challenge, err := tokenbroker.ParseChallenge(challengeHeader)
	if err != nil {
		return "", nil
	}
	tracing.SetTokenAttributes(span, false, challenge.Scope)

	switch challenge.Scheme {
	case tokenbroker.SchemeBasic:
		if m.AuthKind != mirror.AuthBasic || m.AuthUser == "" {
			return "", nil
		}
		return "Basic " + basicAuthHeader(m.AuthUser, m.AuthPass), nil
	case tokenbroker.SchemeBearer:
		token, err := e.broker.FetchToken(ctx, m.ID, challenge, m.AuthUser, m.AuthPass)
		if err != nil {
			tracing.SetErrorAttributes(span, err, "token_fetch_failed")
			return "", err
		}
		return "Bearer " + token, nil
	default:
		return "", nil
	}
}

// followRedirects chases 3xx responses for blob GETs only; every other
// operation passes the redirect straight through to the client.
func (e *Engine) followRedirects(resp *http.Response, route Route, client *http.Client) (*http.Response, error, error) {
	if route.Operation != OpBlob || resp.Request.Method != http.MethodGet {
		return resp, nil, nil
	}

	for i := 0; i < e.cfg.MaxRedirects; i++ {
		if resp.StatusCode < 300 || resp.StatusCode >= 400 {
			return resp, nil, nil
		}
		location := resp.Header.Get("Location")
		if location == "" {
			return resp, nil, nil
		}
		next, err := url.Parse(location)
		if err != nil {
			resp.Body.Close()
			return nil, nil, err
		}
		base, _ := url.Parse(resp.Request.URL.String())
		resolved := base.ResolveReference(next)

		resp.Body.Close()
		req, err := http.NewRequestWithContext(resp.Request.Context(), http.MethodGet, resolved.String(), nil)
		if err != nil {
			return nil, nil, err
		}
		resp, err = client.Do(req)
		if err != nil {
			return nil, nil, err
		}
	}
	return resp, nil, nil
}

// buildRequest assembles the upstream request: method/body forwarded
// verbatim, Host rewritten, incoming Authorization stripped and replaced
// with authHeader (when non-empty).
func (e *Engine) buildRequest(r *http.Request, route Route, m mirror.Mirror, body []byte, authHeader string) (*http.Request, error) {
	target := strings.TrimRight(m.UpstreamURL, "/") + route.UpstreamPath
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	} else if r.Body != nil && r.Body != http.NoBody {
		bodyReader = r.Body
	}

	req, err := http.NewRequestWithContext(r.Context(), r.Method, target, bodyReader)
	if err != nil {
		return nil, err
	}

	for k, vv := range r.Header {
		if isHopByHop(k) || k == "Authorization" {
			continue
		}
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}

	host := m.UpstreamHost
	if host == "" {
		if u, err := url.Parse(m.UpstreamURL); err == nil {
			host = u.Host
		}
	}
	req.Host = host

	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	if body != nil {
		req.ContentLength = int64(len(body))
	} else if bodyReader != nil {
		req.ContentLength = r.ContentLength
	}
	tracing.Inject(req.Context(), req.Header)

	return req, nil
}

// relay streams resp's body to w, stripping hop-by-hop and Set-Cookie
// headers, and reports the number of bytes actually delivered, including
// a partial count on client-abort or mid-stream upstream error. truncated
// is true when the upstream died mid-body and the client connection must
// be torn down rather than finished normally.
func (e *Engine) relay(w http.ResponseWriter, r *http.Request, resp *http.Response, route Route) (bytesOut int64, truncated bool) {
	defer resp.Body.Close()

	dst := w.Header()
	for k, vv := range resp.Header {
		if isHopByHop(k) || k == "Set-Cookie" {
			continue
		}
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)

	counting := traffic.NewCountingReader(resp.Body)
	_, copyErr := io.Copy(w, counting)
	if copyErr != nil {
		select {
		case <-r.Context().Done():
			e.logger.InfoContext(r.Context(), "client aborted mid-stream",
				"path", r.URL.Path, "bytes_out", counting.BytesRead())
		default:
			e.logger.WarnContext(r.Context(), "upstream error mid-stream",
				"path", r.URL.Path, "bytes_out", counting.BytesRead(), "error", copyErr)
			truncated = true
		}
	}
	return counting.BytesRead(), truncated
}

func (e *Engine) record(route Route, m *mirror.Mirror, r *http.Request, start time.Time, bytesOut int64, status int) {
	mirrorLabel := route.Prefix
	if m != nil {
		mirrorLabel = m.Prefix
	}
	if e.collector != nil {
		e.collector.RecordRequest(mirrorLabel, strconv.Itoa(status), time.Since(start), bytesOut)
	}

	span := trace.SpanFromContext(r.Context())
	tracing.SetDurationAttribute(span, time.Since(start).Milliseconds())
	tracing.SetBytesOutAttribute(span, bytesOut)

	if e.recorder == nil {
		return
	}
	var mirrorID int64
	if m != nil {
		mirrorID = m.ID
	}
	e.recorder.RecordAsync(store.TrafficRecord{
		Timestamp:      start,
		ClientIP:       clientIP(r),
		Method:         r.Method,
		Path:           r.URL.Path,
		MirrorID:       mirrorID,
		UpstreamStatus: status,
		BytesOut:       bytesOut,
		DurationMS:     time.Since(start).Milliseconds(),
		ImageRef:       route.ImageRef,
	})
}

// recordForwardingError is a no-op when metrics are disabled; kind
// identifies why this mirror attempt was abandoned (see callers in
// forward).
func (e *Engine) recordForwardingError(prefix, kind string) {
	if e.collector == nil {
		return
	}
	e.collector.RecordForwardingError(prefix, kind)
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.IndexByte(fwd, ','); idx >= 0 {
			return strings.TrimSpace(fwd[:idx])
		}
		return strings.TrimSpace(fwd)
	}
	host := r.RemoteAddr
	if idx := strings.LastIndexByte(host, ':'); idx >= 0 {
		return host[:idx]
	}
	return host
}

func basicAuthHeader(user, pass string) string {
	return base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
}

func isHopByHop(header string) bool {
	for _, h := range hopByHopHeaders {
		if strings.EqualFold(h, header) {
			return true
		}
	}
	return false
}
