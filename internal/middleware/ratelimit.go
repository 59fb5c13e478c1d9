package middleware

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"eventmaster-auth/pkg/apierror"
)

const authPathPrefix = "/api/auth"

// Decision is the outcome of one rate limit check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter decides whether the caller identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// RateLimitMiddleware applies a tighter limiter to the auth endpoints than
// to the rest of the API. A nil limiter means unlimited.
type RateLimitMiddleware struct {
	general Limiter
	auth    Limiter
}

func NewRateLimitMiddleware(general Limiter, auth Limiter) *RateLimitMiddleware {
	return &RateLimitMiddleware{general: general, auth: auth}
}

func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limiter, scope := m.general, "general"
		if strings.HasPrefix(strings.ToLower(r.URL.Path), authPathPrefix) {
			limiter, scope = m.auth, "auth"
		}
		if limiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		clientIP := extractClientIP(r)
		decision, err := limiter.Allow(r.Context(), scope+":"+clientIP)
		if err != nil {
			// Fail open; an unavailable limiter backend must not take the API down.
			slog.Warn("rate limiter unavailable", "scope", scope, "client_ip", clientIP, "error", err)
			next.ServeHTTP(w, r)
			return
		}

		if !decision.Allowed {
			secs := int(math.Ceil(decision.RetryAfter.Seconds()))
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			writeAPIError(w, apierror.RateLimited())
			return
		}

		next.ServeHTTP(w, r)
	})
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LocalLimiter keeps one token bucket per key in process memory.
type LocalLimiter struct {
	rpm     int
	mu      sync.Mutex
	clients map[string]*clientLimiter
}

// NewLocalLimiter returns nil (unlimited) when rpm is not positive.
func NewLocalLimiter(rpm int) Limiter {
	if rpm <= 0 {
		return nil
	}
	return &LocalLimiter{rpm: rpm, clients: map[string]*clientLimiter{}}
}

func (l *LocalLimiter) Allow(_ context.Context, key string) (Decision, error) {
	limiter := l.getLimiter(key)
	if limiter.Allow() {
		return Decision{Allowed: true, Remaining: int(limiter.Tokens())}, nil
	}
	return Decision{Allowed: false, RetryAfter: time.Minute / time.Duration(l.rpm)}, nil
}

func (l *LocalLimiter) getLimiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry, exists := l.clients[key]; exists {
		entry.lastSeen = time.Now()
		l.gcLocked()
		return entry.limiter
	}

	created := &clientLimiter{
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.rpm)), l.rpm),
		lastSeen: time.Now(),
	}
	l.clients[key] = created
	l.gcLocked()

	return created.limiter
}

func (l *LocalLimiter) gcLocked() {
	if len(l.clients) < 1000 {
		return
	}

	cutoff := time.Now().Add(-10 * time.Minute)
	for key, entry := range l.clients {
		if entry.lastSeen.Before(cutoff) {
			delete(l.clients, key)
		}
	}
}
