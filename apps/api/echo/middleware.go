package echoapi

import (
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/edurpg/edurpg/core"
)

func adminMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsAdmin && contextHasAnyRole(ctx, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

func teacherOrAdminMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsTeacher || claims.IsAdmin {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

const (
	limiterIdleTTL    = 10 * time.Minute
	limiterSweepEvery = time.Minute
	maxLimiters       = 10000
)

type clientLimiter struct {
	*rate.Limiter
	lastSeen time.Time
}

// limiters holds one token bucket per client. Idle buckets are dropped and the map never exceeds max entries.
type limiters struct {
	mu        sync.Mutex
	r         rate.Limit
	burst     int
	max       int
	m         map[string]*clientLimiter
	lastSweep time.Time
}

func newLimiters(r rate.Limit, burst, max int) *limiters {
	return &limiters{r: r, burst: burst, max: max, m: make(map[string]*clientLimiter)}
}

func (l *limiters) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := core.Now()
	if now.Sub(l.lastSweep) >= limiterSweepEvery {
		l.sweep(now)
	}
	lim, ok := l.m[key]
	if !ok {
		if len(l.m) >= l.max {
			l.sweep(now)
			if len(l.m) >= l.max {
				l.evictOldest()
			}
		}
		lim = &clientLimiter{Limiter: rate.NewLimiter(l.r, l.burst)}
		l.m[key] = lim
	}
	lim.lastSeen = now
	return lim.Limiter
}

func (l *limiters) sweep(now time.Time) {
	for key, lim := range l.m {
		if now.Sub(lim.lastSeen) > limiterIdleTTL {
			delete(l.m, key)
		}
	}
	l.lastSweep = now
}

func (l *limiters) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for key, lim := range l.m {
		if oldestKey == "" || lim.lastSeen.Before(oldest) {
			oldestKey, oldest = key, lim.lastSeen
		}
	}
	delete(l.m, oldestKey)
}

func (l *limiters) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}

// rateLimitMiddleware limits requests per authenticated user, or per IP before authentication.
// A zero rps disables it.
func rateLimitMiddleware(rps float64, burst int) echo.MiddlewareFunc {
	if burst < 1 {
		burst = 1
	}
	l := newLimiters(rate.Limit(rps), burst, maxLimiters)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if rps <= 0 {
			return next
		}
		return func(ctx echo.Context) error {
			key := "ip:" + ctx.RealIP()
			if id, err := contextUserID(ctx); err == nil {
				key = "user:" + id
			}
			if !l.get(key).Allow() {
				return errTooManyRequests
			}
			return next(ctx)
		}
	}
}
