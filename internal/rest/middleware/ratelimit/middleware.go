// Package ratelimit throttles evidence-writing requests per client IP.
package ratelimit

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/robalyx/legalgate/internal/rest/middleware/requestinfo"
	"github.com/robalyx/legalgate/internal/setup/config"
	"github.com/robalyx/legalgate/pkg/utils"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const headerRetryAfter = "Retry-After"

// Responder writes the rejection body.
type Responder interface {
	JSON(w http.ResponseWriter, status int, v any) error
}

type limiterState struct {
	mu           sync.Mutex
	limiter      *rate.Limiter
	strikes      int       // Consecutive rejected requests
	blockedUntil time.Time // Set once strikes reach the limit
}

// Middleware implements per-IP rate limiting with temporary blocks for repeat offenders.
type Middleware struct {
	limiters  *utils.TTLMap[string, *limiterState]
	config    config.RateLimit
	responder Responder
	logger    *zap.Logger
	now       func() time.Time
}

// New creates a new rate limiting middleware.
func New(cfg config.RateLimit, responder Responder, logger *zap.Logger) *Middleware {
	// Idle limiters outlive both the refill window and a block
	ttl := time.Second * time.Duration(max(cfg.BurstSize*2, cfg.BlockDuration*2, 60))

	return &Middleware{
		limiters:  utils.NewTTLMap[string, *limiterState](ttl),
		config:    cfg,
		responder: responder,
		logger:    logger.Named("rate_limit"),
		now:       time.Now,
	}
}

// Close stops the limiter cleanup loop.
func (m *Middleware) Close() {
	m.limiters.Close()
}

// AsRESTMiddleware returns a bunrouter middleware handler.
// Requests without a resolvable client IP share a single limiter.
func (m *Middleware) AsRESTMiddleware(next bunrouter.HandlerFunc) bunrouter.HandlerFunc {
	return func(w http.ResponseWriter, req bunrouter.Request) error {
		clientIP := requestinfo.FromContext(req.Context()).IPAddress
		if clientIP == "" {
			clientIP = requestinfo.ClientIP(req.Request)
		}

		if allowed, retryAfter := m.Allow(clientIP); !allowed {
			if retryAfter > 0 {
				w.Header().Set(headerRetryAfter, fmt.Sprintf("%.0f", retryAfter.Seconds()))
			}

			return m.responder.JSON(w, http.StatusTooManyRequests, map[string]string{
				"error":   "rate_limited",
				"message": "Too many requests, try again later",
			})
		}

		return next(w, req)
	}
}

// Allow consumes a token for clientIP and reports how long to wait when refused.
func (m *Middleware) Allow(clientIP string) (bool, time.Duration) {
	if m.config.RequestsPerSecond <= 0 {
		return true, 0
	}

	state := m.getLimiter(clientIP)

	state.mu.Lock()
	defer state.mu.Unlock()

	now := m.now()

	if now.Before(state.blockedUntil) {
		return false, state.blockedUntil.Sub(now).Round(time.Second)
	}

	reservation := state.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return m.strike(state, clientIP, 0, now)
	}

	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return m.strike(state, clientIP, delay, now)
	}

	state.strikes = 0

	return true, 0
}

// strike records a refused request and blocks the client once the strike limit is hit.
func (m *Middleware) strike(state *limiterState, clientIP string, delay time.Duration, now time.Time) (bool, time.Duration) {
	state.strikes++

	if m.config.StrikeLimit > 0 && state.strikes >= m.config.StrikeLimit {
		block := time.Duration(m.config.BlockDuration) * time.Second
		state.blockedUntil = now.Add(block)
		state.strikes = 0

		m.logger.Info("Client blocked for repeated rate limit violations",
			zap.String("ip", clientIP),
			zap.Duration("blockDuration", block))

		return false, block
	}

	m.logger.Debug("Rate limit exceeded",
		zap.String("ip", clientIP),
		zap.Int("strikes", state.strikes))

	return false, delay
}

// getLimiter returns the limiter state for clientIP, creating it on first use.
func (m *Middleware) getLimiter(clientIP string) *limiterState {
	if state, ok := m.limiters.Get(clientIP); ok {
		return state
	}

	state := &limiterState{
		limiter: rate.NewLimiter(rate.Limit(m.config.RequestsPerSecond), max(m.config.BurstSize, 1)),
	}
	m.limiters.Set(clientIP, state)

	return state
}
