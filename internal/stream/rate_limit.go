package stream

import "sync"

// globalStreamCap bounds total concurrent SSE connections across all IPs,
// independent of the per-IP limit.
const globalStreamCap = 1000

// ipLimiter does the concurrent-connection accounting for the positions
// stream: per-IP slots plus the global cap. Slots are held for the whole
// life of a connection, not per request, so counts only move on connect
// and disconnect.
type ipLimiter struct {
	mu       sync.Mutex
	perIP    map[string]int
	global   int
	maxPerIP int
}

func newIPLimiter(maxPerIP int) *ipLimiter {
	return &ipLimiter{
		perIP:    make(map[string]int),
		maxPerIP: maxPerIP,
	}
}

// acquire claims a slot for ip. False means the caller must turn the
// connection away.
func (l *ipLimiter) acquire(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.global >= globalStreamCap || l.perIP[ip] >= l.maxPerIP {
		return false
	}
	l.perIP[ip]++
	l.global++
	return true
}

// release returns ip's slot and drops the map entry once the IP has no
// connections left.
func (l *ipLimiter) release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.perIP[ip]--
	l.global--
	if l.perIP[ip] <= 0 {
		delete(l.perIP, ip)
	}
}

// count reports ip's current connection count.
func (l *ipLimiter) count(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.perIP[ip]
}
