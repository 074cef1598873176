package loadbalancer

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"sync"
)

var ErrNoUpstreams = errors.New("loadbalancer: no upstream servers")

// LoadBalancer proxies each request to the next upstream in round-robin
// order.
type LoadBalancer struct {
	servers []*url.URL
	mu      sync.Mutex
	current int
	proxy   *httputil.ReverseProxy
}

func NewLoadBalancer(servers []string) (*LoadBalancer, error) {
	if len(servers) == 0 {
		return nil, ErrNoUpstreams
	}
	lb := &LoadBalancer{}
	for _, s := range servers {
		u, err := url.Parse(strings.TrimRight(strings.TrimSpace(s), "/"))
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("loadbalancer: bad upstream %q", s)
		}
		lb.servers = append(lb.servers, u)
	}
	lb.proxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(lb.GetNextServer())
			pr.SetXForwarded()
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte(`{"success":false,"error":"upstream service unavailable"}`))
		},
	}
	return lb, nil
}

func (lb *LoadBalancer) GetNextServer() *url.URL {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	server := lb.servers[lb.current]
	lb.current = (lb.current + 1) % len(lb.servers)
	return server
}

// Servers lists the upstreams in rotation order.
func (lb *LoadBalancer) Servers() []string {
	out := make([]string, len(lb.servers))
	for i, u := range lb.servers {
		out[i] = u.String()
	}
	return out
}

func (lb *LoadBalancer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	lb.proxy.ServeHTTP(w, r)
}
