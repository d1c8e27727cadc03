package mw

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// Limiter 按任意 key 维护独立的令牌桶，长时间未使用的桶会被回收。
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	idle    time.Duration
	once    sync.Once
	done    chan struct{}
}

func NewLimiter(limit rate.Limit, burst int, idle time.Duration) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		limit:   limit,
		burst:   burst,
		idle:    idle,
		done:    make(chan struct{}),
	}
}

// Allow reports whether one more event for key fits in its bucket.
func (l *Limiter) Allow(key string) bool {
	now := time.Now()
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.seen = now
	l.mu.Unlock()
	return b.lim.AllowN(now, 1)
}

// Sweep drops buckets idle since before now-idle and returns how many remain.
func (l *Limiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, b := range l.buckets {
		if now.Sub(b.seen) > l.idle {
			delete(l.buckets, k)
		}
	}
	return len(l.buckets)
}

func (l *Limiter) run(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-l.done:
			return
		case now := <-t.C:
			l.Sweep(now)
		}
	}
}

// Stop 停止后台回收 goroutine，可重复调用。
func (l *Limiter) Stop() {
	l.once.Do(func() { close(l.done) })
}

// Middleware 以 keyFn 的结果作为限速维度，超限返回 429。
func (l *Limiter) Middleware(keyFn func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(keyFn(c)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}

// RateLimit 返回一个基于 IP+路由的令牌桶限速中间件。
func RateLimit(limit rate.Limit, burst int) gin.HandlerFunc {
	l := NewLimiter(limit, burst, 2*time.Minute)
	go l.run(30 * time.Second)
	return l.Middleware(routeKey)
}

// HandshakeLimit throttles websocket upgrades per remote IP regardless of path.
func HandshakeLimit(limit rate.Limit, burst int) gin.HandlerFunc {
	l := NewLimiter(limit, burst, 5*time.Minute)
	go l.run(time.Minute)
	return l.Middleware(func(c *gin.Context) string { return remoteIP(c.Request.RemoteAddr) })
}

func routeKey(c *gin.Context) string {
	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}
	return remoteIP(c.Request.RemoteAddr) + "|" + path
}

// remoteIP 只信任 TCP 对端地址，不解析 X-Forwarded-For。
func remoteIP(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
