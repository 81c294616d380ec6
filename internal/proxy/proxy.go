package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"time"

	"bootkeeper/internal/config"
	"bootkeeper/internal/logger"
	"bootkeeper/internal/models"

	"github.com/google/uuid"
)

const HeaderRequestID = "X-Request-Id"

/**
 * Route forwards a path prefix to a role's port
 * @property {string} prefix - Segment-aware path prefix, "/" catches everything
 * @property {config.PortRole} target - Role receiving the request
 * @property {bool} stripPrefix - Remove prefix before forwarding
 * @property {func(string) string} rewrite - Optional extra path transform, applied after stripping
 */
type Route struct {
	Prefix      string
	Target      config.PortRole
	StripPrefix bool
	Rewrite     func(string) string
}

// Matches reports whether path is the prefix itself or below it.
func (rt Route) Matches(path string) bool {
	prefix := strings.TrimSuffix(rt.Prefix, "/")
	if prefix == "" {
		return true
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func (rt Route) forwardPath(path string) string {
	if rt.StripPrefix {
		path = strings.TrimPrefix(path, strings.TrimSuffix(rt.Prefix, "/"))
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
	}
	if rt.Rewrite != nil {
		path = rt.Rewrite(path)
	}
	return path
}

// Observer receives one call per proxied request.
type Observer interface {
	ObserveProxy(route string, code int, elapsed time.Duration)
}

type Options struct {
	// TargetHost is where role ports are reached, 127.0.0.1 when empty
	TargetHost      string
	DialTimeout     time.Duration
	ResponseTimeout time.Duration
	Observer        Observer
}

type route struct {
	Route
	proxy *httputil.ReverseProxy
}

/**
 * Proxy stitches several role ports into one surface
 * @description
 * - First matching route wins, routes keep their configured order
 * - Bodies are streamed both ways, nothing is buffered
 * - Dial is bounded by DialTimeout and response headers by ResponseTimeout
 * - Refused or failed dials map to 502, elapsed deadlines to 504, unmatched paths to 404
 */
type Proxy struct {
	routes    []*route
	transport *http.Transport
	observer  Observer
}

func New(routes []Route, opts Options) *Proxy {
	if opts.TargetHost == "" {
		opts.TargetHost = "127.0.0.1"
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 2 * time.Second
	}
	if opts.ResponseTimeout <= 0 {
		opts.ResponseTimeout = 30 * time.Second
	}
	p := &Proxy{
		transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   opts.DialTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ResponseHeaderTimeout: opts.ResponseTimeout,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   32,
			IdleConnTimeout:       90 * time.Second,
		},
		observer: opts.Observer,
	}
	for _, rt := range routes {
		p.routes = append(p.routes, p.newRoute(rt, opts.TargetHost))
	}
	return p
}

func (p *Proxy) newRoute(rt Route, host string) *route {
	target := &url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort(host, strconv.Itoa(rt.Target.ResolvedPort)),
	}
	r := &route{Route: rt}
	r.proxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Path = rt.forwardPath(pr.In.URL.Path)
			pr.Out.URL.RawPath = ""
			pr.SetURL(target)
			pr.SetXForwarded()
			pr.Out.Host = pr.In.Host
			if pr.Out.Header.Get(HeaderRequestID) == "" {
				pr.Out.Header.Set(HeaderRequestID, uuid.NewString())
			}
		},
		Transport:     p.transport,
		FlushInterval: -1,
		ErrorHandler: func(w http.ResponseWriter, req *http.Request, err error) {
			p.writeError(w, req, rt, err)
		},
	}
	return r
}

func (p *Proxy) match(path string) *route {
	for _, r := range p.routes {
		if r.Matches(path) {
			return r
		}
	}
	return nil
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}

	r := p.match(req.URL.Path)
	if r == nil {
		writeJSON(rec, http.StatusNotFound, models.ErrorResponse{
			Code:  "route.not_found",
			Error: fmt.Sprintf("no route for %s", req.URL.Path),
		})
		p.observe("none", rec.code, start)
		return
	}
	r.proxy.ServeHTTP(rec, req)
	p.observe(r.Prefix, rec.code, start)
}

func (p *Proxy) observe(route string, code int, start time.Time) {
	if p.observer != nil {
		p.observer.ObserveProxy(route, code, time.Since(start))
	}
}

// CloseIdleConnections drops pooled upstream connections.
func (p *Proxy) CloseIdleConnections() {
	p.transport.CloseIdleConnections()
}

func (p *Proxy) writeError(w http.ResponseWriter, req *http.Request, rt Route, err error) {
	if errors.Is(err, context.Canceled) && req.Context().Err() != nil {
		// client went away, nobody to answer
		w.WriteHeader(499)
		return
	}
	status, code := classify(err)
	logger.Warnf("Proxy %s %s -> %s:%d failed (%d): %v",
		req.Method, req.URL.Path, rt.Target.Name, rt.Target.ResolvedPort, status, err)
	writeJSON(w, status, models.ErrorResponse{
		Code:  code,
		Error: fmt.Sprintf("%s (port %d) unavailable: %v", rt.Target.Name, rt.Target.ResolvedPort, err),
	})
}

// classify maps an upstream error to a status and error code.
func classify(err error) (int, string) {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, "upstream.timeout"
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return http.StatusGatewayTimeout, "upstream.timeout"
	}
	return http.StatusBadGateway, "upstream.unavailable"
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	code        int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wroteHeader {
		s.code = code
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	s.wroteHeader = true
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach Hijack for upgraded connections.
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

/**
 * Build routes from configuration
 * @param {[]config.RouteConfig} defs - Configured routes
 * @param {*config.PortRegistry} ports - Resolved roles
 * @returns {([]Route, error)} Routes in configured order
 * @throws
 * - config.ErrUnknownRole for a target that is not declared
 */
func RoutesFromConfig(defs []config.RouteConfig, ports *config.PortRegistry) ([]Route, error) {
	routes := make([]Route, 0, len(defs))
	for _, d := range defs {
		role, ok := ports.Role(d.Target)
		if !ok {
			return nil, fmt.Errorf("route %q target %q: %w", d.Prefix, d.Target, config.ErrUnknownRole)
		}
		routes = append(routes, Route{Prefix: d.Prefix, Target: role, StripPrefix: d.StripPrefix})
	}
	return routes, nil
}
