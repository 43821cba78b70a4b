// Package streamproxy relays audio files from the archive to browser
// clients. It exists for two reasons: the archive does not send the CORS
// headers an audio element needs, and the raw archive URLs should never be
// handed to clients directly. The proxy validates every target against the
// trusted domain before any upstream call, so it cannot be used as an open
// relay.
package streamproxy

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/grafana/dskit/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/zachfi/archivestream/pkg/apiutil"
)

var module = "streamproxy"

// forwardedRequestHeaders are the only incoming headers relayed upstream.
// Notably absent: cookies and authorization.
var forwardedRequestHeaders = []string{
	"Range",
	"If-None-Match",
	"If-Modified-Since",
}

// allowedResponseHeaders are copied from the upstream response before the
// caching policy overrides Cache-Control.
var allowedResponseHeaders = []string{
	"Content-Type",
	"Content-Length",
	"Content-Range",
	"Accept-Ranges",
	"ETag",
	"Last-Modified",
	"Date",
	"Cache-Control",
}

const (
	// cacheControlShared marks full-file responses as cacheable by any
	// intermediary for a day. cacheControlNoStore applies to range and HEAD
	// responses: a cached 206 served to a different range request would
	// corrupt playback.
	cacheControlShared  = "public, max-age=86400, stale-while-revalidate=3600"
	cacheControlNoStore = "no-store"
)

type Proxy struct {
	services.Service
	cfg    *Config
	logger *slog.Logger
	client *http.Client

	requests       *prometheus.CounterVec
	rejected       prometheus.Counter
	upstreamErrors prometheus.Counter
	bytesProxied   prometheus.Counter
}

// New creates and returns a new Proxy.
func New(cfg Config, logger slog.Logger, reg prometheus.Registerer) (*Proxy, error) {
	if cfg.AllowedDomain == "" {
		cfg.AllowedDomain = defaultAllowedDomain
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.ResponseHeaderTimeout == 0 {
		cfg.ResponseHeaderTimeout = defaultResponseHeaderTimeout
	}

	// Timeout on connection setup only. The client carries no overall
	// timeout so a long playback session can stream indefinitely.
	dialer := &net.Dialer{Timeout: cfg.DialTimeout}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
	}

	p := &Proxy{
		cfg:    &cfg,
		logger: logger.With("module", module),
		client: &http.Client{Transport: transport},
	}

	factory := promauto.With(reg)
	p.requests = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "archivestream",
		Name:      "proxy_requests_total",
		Help:      "Stream proxy requests by method.",
	}, []string{"method"})
	p.rejected = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "archivestream",
		Name:      "proxy_rejected_total",
		Help:      "Requests rejected before any upstream call.",
	})
	p.upstreamErrors = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "archivestream",
		Name:      "proxy_upstream_errors_total",
		Help:      "Upstream fetches that failed at the transport level.",
	})
	p.bytesProxied = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "archivestream",
		Name:      "proxy_bytes_proxied_total",
		Help:      "Body bytes relayed from upstream to clients.",
	})

	p.Service = services.NewIdleService(nil, nil)

	return p, nil
}

// Handler returns the HTTP handler for the stream endpoint.
func (p *Proxy) Handler() http.Handler {
	return http.HandlerFunc(p.handleStream)
}

func (p *Proxy) handleStream(w http.ResponseWriter, req *http.Request) {
	// Every response carries CORS headers, including errors, so a browser
	// can read the failure instead of seeing an opaque network error.
	apiutil.SetCORS(w.Header())

	switch req.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodGet, http.MethodHead:
	default:
		p.rejected.Inc()
		apiutil.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	p.requests.WithLabelValues(req.Method).Inc()

	target, err := validateTarget(req.URL.Query().Get("url"), p.cfg.AllowedDomain)
	if err != nil {
		p.rejected.Inc()
		apiutil.WriteError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	upReq, err := http.NewRequestWithContext(req.Context(), req.Method, target, nil)
	if err != nil {
		p.rejected.Inc()
		apiutil.WriteError(w, http.StatusBadRequest, "Invalid url parameter", err.Error())
		return
	}
	for _, h := range forwardedRequestHeaders {
		if v := req.Header.Get(h); v != "" {
			upReq.Header.Set(h, v)
		}
	}

	resp, err := p.client.Do(upReq)
	if err != nil {
		p.upstreamErrors.Inc()
		p.logger.Error("upstream fetch failed", "url", target, "err", err)
		apiutil.WriteError(w, http.StatusBadGateway, "Upstream fetch failed", err.Error())
		return
	}
	defer resp.Body.Close()

	for _, h := range allowedResponseHeaders {
		if v := resp.Header.Get(h); v != "" {
			w.Header().Set(h, v)
		}
	}

	if req.Method == http.MethodHead || req.Header.Get("Range") != "" {
		w.Header().Set("Cache-Control", cacheControlNoStore)
	} else {
		w.Header().Set("Cache-Control", cacheControlShared)
	}

	// Pass the upstream status through verbatim. 206, 304 and even 404 are
	// legitimate answers the client must see unaltered.
	w.WriteHeader(resp.StatusCode)

	if req.Method == http.MethodHead {
		return
	}

	n, err := io.Copy(w, resp.Body)
	p.bytesProxied.Add(float64(n))
	if err != nil {
		// Headers are already out; nothing to send the client. Usually the
		// listener just closed the tab mid-stream.
		p.logger.Debug("stream copy ended early", "url", target, "written", n, "err", err)
	}
}

// validateTarget is the proxy's sole access-control boundary. The URL must
// be absolute, https, and on the allowed domain or one of its subdomains.
// Anything else is rejected before an upstream connection is attempted.
func validateTarget(raw, domain string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("Missing query parameter: url")
	}

	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() {
		return "", fmt.Errorf("Invalid url parameter")
	}

	if u.Scheme != "https" {
		return "", fmt.Errorf("Only https targets are allowed")
	}

	host := u.Hostname()
	if host != domain && !strings.HasSuffix(host, "."+domain) {
		return "", fmt.Errorf("Target host is not allowed")
	}

	return u.String(), nil
}
