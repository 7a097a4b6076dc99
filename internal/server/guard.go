package server

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/zeropass/zeropass/internal/config"
	"github.com/zeropass/zeropass/internal/httperr"
)

// guardEntry holds a rate limiter and its last-used timestamp for cleanup.
type guardEntry struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // UnixNano
}

// IPGuard protects the API itself with a per-client-IP token bucket. It is
// unrelated to the rate-limit rules inside a policy: those account per
// simulated client, this one accounts per real caller.
type IPGuard struct {
	limiters       sync.Map // IP string -> *guardEntry
	mu             sync.RWMutex
	perIP          int
	burst          int
	trustedProxies []string

	cleanupInterval time.Duration
	cancel          context.CancelFunc
}

// NewIPGuard creates a per-IP guard. perIP is requests per minute per IP;
// burst is the token bucket burst size. cleanupInterval controls how often
// inactive entries are removed.
func NewIPGuard(perIP, burst int, cleanupInterval time.Duration, trustedProxies []string) *IPGuard {
	ctx, cancel := context.WithCancel(context.Background())
	g := &IPGuard{
		perIP:           perIP,
		burst:           burst,
		trustedProxies:  trustedProxies,
		cleanupInterval: cleanupInterval,
		cancel:          cancel,
	}
	go g.cleanup(ctx)
	return g
}

// Middleware enforces the guard on every request passing through it.
func (g *IPGuard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := trustedClientIP(r.RemoteAddr, r.Header.Get("X-Forwarded-For"), g.proxies())
		if !g.getLimiter(ip).Allow() {
			httperr.Write(w, httperr.ErrRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Stop stops the cleanup goroutine.
func (g *IPGuard) Stop() {
	g.cancel()
}

// OnConfigReload applies new guard limits. Existing per-IP buckets are
// discarded so they pick up the new rate on next use.
func (g *IPGuard) OnConfigReload(newCfg *config.Config) error {
	g.mu.Lock()
	changed := g.perIP != newCfg.Limits.PerIP || g.burst != newCfg.Limits.Burst
	g.perIP = newCfg.Limits.PerIP
	g.burst = newCfg.Limits.Burst
	g.mu.Unlock()

	if changed {
		g.limiters.Range(func(key, _ interface{}) bool {
			g.limiters.Delete(key)
			return true
		})
	}
	return nil
}

func (g *IPGuard) proxies() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.trustedProxies
}

// getLimiter returns the rate limiter for the given IP, creating one if needed.
func (g *IPGuard) getLimiter(ip string) *rate.Limiter {
	now := time.Now().UnixNano()

	if v, ok := g.limiters.Load(ip); ok {
		entry := v.(*guardEntry)
		entry.lastSeen.Store(now)
		return entry.limiter
	}

	g.mu.RLock()
	perSecond := float64(g.perIP) / 60.0
	burst := g.burst
	g.mu.RUnlock()

	limiter := rate.NewLimiter(rate.Limit(perSecond), burst)
	entry := &guardEntry{limiter: limiter}
	entry.lastSeen.Store(now)

	actual, loaded := g.limiters.LoadOrStore(ip, entry)
	if loaded {
		existing := actual.(*guardEntry)
		existing.lastSeen.Store(now)
		return existing.limiter
	}
	return limiter
}

// cleanup periodically removes inactive IP entries.
func (g *IPGuard) cleanup(ctx context.Context) {
	ticker := time.NewTicker(g.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-g.cleanupInterval).UnixNano()
			g.limiters.Range(func(key, value interface{}) bool {
				entry := value.(*guardEntry)
				if entry.lastSeen.Load() < cutoff {
					g.limiters.Delete(key)
				}
				return true
			})
		}
	}
}

// trustedClientIP extracts the real client IP based on trusted proxy
// configuration. With no trusted proxies, RemoteAddr wins (safe default);
// otherwise the rightmost non-trusted X-Forwarded-For hop is used.
func trustedClientIP(remoteAddr, xForwardedFor string, trustedProxies []string) string {
	remoteIP := stripPort(remoteAddr)

	if len(trustedProxies) == 0 || xForwardedFor == "" {
		return remoteIP
	}

	trustedNets := parseCIDRs(trustedProxies)

	parts := strings.Split(xForwardedFor, ",")
	ips := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			ips = append(ips, trimmed)
		}
	}

	for i := len(ips) - 1; i >= 0; i-- {
		ip := net.ParseIP(ips[i])
		if ip == nil {
			continue
		}
		if !isIPTrusted(ip, trustedNets) {
			return ips[i]
		}
	}

	// Every hop in the chain is a trusted proxy.
	return remoteIP
}

func stripPort(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// parseCIDRs parses a slice of CIDR strings or plain IPs into []*net.IPNet.
func parseCIDRs(cidrs []string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, ipNet, err := net.ParseCIDR(c)
		if err == nil {
			nets = append(nets, ipNet)
			continue
		}
		ip := net.ParseIP(c)
		if ip != nil {
			mask := net.CIDRMask(128, 128)
			if ip.To4() != nil {
				mask = net.CIDRMask(32, 32)
			}
			nets = append(nets, &net.IPNet{IP: ip, Mask: mask})
		}
	}
	return nets
}

func isIPTrusted(ip net.IP, trustedNets []*net.IPNet) bool {
	for _, n := range trustedNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
