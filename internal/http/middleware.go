package http

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"comic-shelf/internal/domain"
)

const userContextKey = "comic-shelf.user"

func requestLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"latency":  time.Since(start),
			"clientIP": c.ClientIP(),
		}).Debug("request handled")
	}
}

// errorResponder turns the last error recorded with c.Error into the JSON
// error envelope. Handlers record errors and return without writing.
func errorResponder(logger logrus.FieldLogger, production bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err
		status, message := classifyError(err, production)

		entry := logger.WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": status,
		}).WithError(err)
		if status >= http.StatusInternalServerError {
			entry.Error("request failed")
		} else {
			entry.Warn("request rejected")
		}

		c.JSON(status, gin.H{"success": false, "message": message})
	}
}

func classifyError(err error, production bool) (int, string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrMissingFields),
		errors.Is(err, domain.ErrInvalidFileType),
		errors.Is(err, domain.ErrFileTooLarge):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrAuth):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		if production {
			return status, "Internal server error"
		}
		return status, err.Error()
	}

	var derr *domain.Error
	if errors.As(err, &derr) {
		return status, derr.Msg
	}
	return status, err.Error()
}

// requireUser authenticates the bearer token and stores the user in the context.
func (h *Handler) requireUser(c *gin.Context) {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		_ = c.Error(domain.Errorf(domain.ErrAuth, "No token provided"))
		c.Abort()
		return
	}

	user, err := h.users.Authenticate(c.Request.Context(), strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")))
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}

	c.Set(userContextKey, user)
	c.Next()
}

func currentUser(c *gin.Context) *domain.User {
	v, ok := c.Get(userContextKey)
	if !ok {
		return nil
	}
	user, _ := v.(*domain.User)
	return user
}

// rateLimit throttles a route to rps requests per second per client IP,
// with a burst of rps.
func rateLimit(rps int) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	limiters := newIPLimiters(rate.Limit(rps), rps, 10*time.Minute)

	return func(c *gin.Context) {
		if !limiters.get(c.ClientIP(), time.Now()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"success": false, "message": "Too many requests"})
			return
		}
		c.Next()
	}
}

type ipLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// ipLimiters hands out one limiter per client. Entries idle for longer than
// idle are dropped on the next sweep.
type ipLimiters struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
	byIP      map[string]*ipLimiter
}

func newIPLimiters(limit rate.Limit, burst int, idle time.Duration) *ipLimiters {
	return &ipLimiters{
		limit: limit,
		burst: burst,
		idle:  idle,
		byIP:  make(map[string]*ipLimiter),
	}
}

func (l *ipLimiters) get(ip string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > l.idle {
		for key, entry := range l.byIP {
			if now.Sub(entry.lastSeen) > l.idle {
				delete(l.byIP, key)
			}
		}
		l.lastSweep = now
	}

	entry, ok := l.byIP[ip]
	if !ok {
		entry = &ipLimiter{lim: rate.NewLimiter(l.limit, l.burst)}
		l.byIP[ip] = entry
	}
	entry.lastSeen = now
	return entry.lim
}
