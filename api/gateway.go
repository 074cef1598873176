package api

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"

	"CollectLedger/internal/config"
	"CollectLedger/internal/logger"
	"CollectLedger/pkg/loadbalancer"
)

const maxLoggedErrorBody = 512

// Route sends every request under Prefix to one of the upstreams.
type Route struct {
	Prefix    string
	Upstreams []string
}

// DefaultRoutes points each public prefix at the local service port.
func DefaultRoutes() []Route {
	return []Route{
		{Prefix: "/import/", Upstreams: []string{fmt.Sprintf("http://localhost:%d", config.DefaultSettlementPort)}},
		{Prefix: "/config/", Upstreams: []string{fmt.Sprintf("http://localhost:%d", config.DefaultRegistryPort)}},
		{Prefix: "/reports/", Upstreams: []string{fmt.Sprintf("http://localhost:%d", config.DefaultReportsPort)}},
	}
}

// RoutesFromConfig overrides the default upstreams with the
// <name>_upstreams lists of the gateway config.
func RoutesFromConfig(cfg map[string]interface{}) []Route {
	routes := DefaultRoutes()
	keys := map[string]string{
		"/import/":  "settlement_upstreams",
		"/config/":  "registry_upstreams",
		"/reports/": "reports_upstreams",
	}
	for i, r := range routes {
		if ups := config.Strings(cfg, keys[r.Prefix]); len(ups) > 0 {
			routes[i].Upstreams = ups
		}
	}
	return routes
}

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	return r.RemoteAddr
}

// NewGatewayHandler builds the public mux: one round-robin reverse proxy per
// route prefix, a health probe and a JSON 404.
func NewGatewayHandler(routes []Route) (http.Handler, error) {
	mux := http.NewServeMux()
	sort.Slice(routes, func(i, j int) bool { return routes[i].Prefix < routes[j].Prefix })
	for _, route := range routes {
		lb, err := loadbalancer.NewLoadBalancer(route.Upstreams)
		if err != nil {
			return nil, fmt.Errorf("gateway route %s: %w", route.Prefix, err)
		}
		mux.Handle(route.Prefix, auditedProxy(route.Prefix, lb))
	}

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		RespondWithPayload(w, http.StatusOK, "API Gateway is healthy", nil)
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		logger.Audit("[Gateway] [Error] %s from %s (route not found)", r.URL.Path, r.RemoteAddr)
		RespondWithError(w, http.StatusNotFound, "Route not found")
	})
	return mux, nil
}

// auditedProxy writes one audit line for the incoming request and one for
// the proxied outcome, including the start of the body on errors.
func auditedProxy(prefix string, lb *loadbalancer.LoadBalancer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Audit("[Gateway] Incoming request: %s %s from %s", r.Method, r.URL.Path, extractClientIP(r))

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		lb.ServeHTTP(rw, r)
		if rw.statusCode >= 400 {
			logger.Audit("[Gateway][ERROR] Proxied %s for %s, status %d, error: %s",
				prefix, r.URL.Path, rw.statusCode, strings.TrimSpace(rw.body.String()))
			return
		}
		logger.Audit("[Gateway] Proxied %s for %s, status %d", prefix, r.URL.Path, rw.statusCode)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code and the
// start of error bodies. It passes Hijack and Flush through so websocket
// upgrades on /import/events survive the proxy.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if rw.statusCode >= 400 && rw.body.Len() < maxLoggedErrorBody {
		n := maxLoggedErrorBody - rw.body.Len()
		if n > len(b) {
			n = len(b)
		}
		rw.body.Write(b[:n])
	}
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("gateway: response writer cannot hijack")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}
