package gateway

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/terminal-bench/flightsurety/internal/auth"
	"github.com/terminal-bench/flightsurety/internal/observability"
	"github.com/terminal-bench/flightsurety/internal/surety"
	"github.com/terminal-bench/flightsurety/pkg/models"
)

// Gateway is the HTTP surface of the App
type Gateway struct {
	router      *gin.Engine
	server      *http.Server
	app         *surety.App
	auth        *auth.Service
	logger      zerolog.Logger
	rateLimiter *RateLimiter

	wsClients map[uuid.UUID]*WSClient
	wsMu      sync.RWMutex
}

// RateLimiter is a sliding-window limiter keyed by client IP
type RateLimiter struct {
	requests map[string][]time.Time

	mu        sync.Mutex
	limit     int
	window    time.Duration
	now       func() time.Time
	lastSweep time.Time
}

// Config holds gateway configuration
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	MaxHeaderBytes  int
	RateLimitWindow time.Duration
	// RateLimitMax is the number of requests allowed per window; 0 turns
	// rate limiting off.
	RateLimitMax int
}

// DefaultConfig returns a Config listening on addr
func DefaultConfig(addr string) Config {
	return Config{
		Addr:            addr,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		MaxHeaderBytes:  1 << 20,
		RateLimitWindow: time.Minute,
		RateLimitMax:    600,
	}
}

// NewGateway creates the gateway over app. Tokens are verified with authSvc.
func NewGateway(cfg Config, app *surety.App, authSvc *auth.Service, logger zerolog.Logger) *Gateway {
	router := gin.New()
	router.Use(gin.Recovery())

	g := &Gateway{
		router:    router,
		app:       app,
		auth:      authSvc,
		logger:    logger.With().Str("component", "gateway").Logger(),
		wsClients: make(map[uuid.UUID]*WSClient),
	}
	if cfg.RateLimitMax > 0 {
		g.rateLimiter = NewRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow)
	}
	g.server = &http.Server{
		Addr:           cfg.Addr,
		Handler:        router,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
	}

	g.setupRoutes()
	return g
}

// Handler exposes the router, mostly for tests
func (g *Gateway) Handler() http.Handler {
	return g.router
}

func (g *Gateway) setupRoutes() {
	g.router.Use(g.tracingMiddleware())
	g.router.Use(observability.RequestLogger(g.logger))
	g.router.Use(observability.RequestMetricsMiddleware())
	if g.rateLimiter != nil {
		g.router.Use(g.rateLimitMiddleware())
	}

	g.router.GET("/health", g.healthCheck)
	g.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := g.router.Group("/api/v1")
	{
		// Operations
		v1.GET("/operational", g.getOperational)
		v1.PUT("/operational", g.authMiddleware(), g.setOperational)
		v1.GET("/callers", g.listCallers)
		v1.POST("/callers", g.authMiddleware(), g.authorizeCaller)
		v1.DELETE("/callers/:address", g.authMiddleware(), g.deauthorizeCaller)

		// Airline admission
		v1.GET("/registrations", g.listRegistrations)
		v1.POST("/registrations", g.authMiddleware(), g.submitRegistration)
		v1.GET("/registrations/:index", g.getRegistration)
		v1.GET("/registrations/:index/vote", g.optionalAuthMiddleware(), g.getVote)
		v1.POST("/registrations/:index/votes", g.authMiddleware(), g.voteRegistration)
		v1.POST("/registrations/:index/execute", g.authMiddleware(), g.executeRegistration)

		// Airlines
		v1.POST("/airlines/fund", g.authMiddleware(), g.payAirline)
		v1.GET("/airlines/:address", g.getAirline)
		v1.GET("/airlines/:address/index", g.getRegIndex)

		// Flights and insurance
		v1.GET("/flights", g.listFlights)
		v1.POST("/flights", g.authMiddleware(), g.registerFlight)
		v1.GET("/flights/:key", g.getFlight)
		v1.GET("/flights/:key/policies", g.listPolicies)
		v1.POST("/flights/:key/insurance", g.authMiddleware(), g.purchaseInsurance)
		v1.GET("/flights/:key/status", g.getStatusRequest)
		v1.POST("/flights/:key/status", g.authMiddleware(), g.fetchFlightStatus)
		v1.GET("/balance", g.authMiddleware(), g.getBalance)
		v1.POST("/withdrawals", g.authMiddleware(), g.withdraw)

		// Oracles
		v1.POST("/oracles", g.authMiddleware(), g.registerOracle)
		v1.GET("/oracles/me", g.authMiddleware(), g.getOracle)
		v1.POST("/oracles/responses", g.authMiddleware(), g.submitOracleResponse)

		// Ledger
		v1.GET("/stats", g.getStats)
		v1.GET("/events", g.listEvents)
		v1.GET("/events/ws", g.handleWebSocket)
	}
}

// Start serves until Shutdown is called
func (g *Gateway) Start() error {
	g.logger.Info().Str("addr", g.server.Addr).Msg("gateway listening")
	if err := g.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and closes event streams
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.wsMu.RLock()
	for _, client := range g.wsClients {
		client.close()
	}
	g.wsMu.RUnlock()
	return g.server.Shutdown(ctx)
}

// Middleware

func (g *Gateway) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("Authorization")
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		if !g.verify(c, token) {
			return
		}
		c.Next()
	}
}

// optionalAuthMiddleware sets the caller when a token is present. A bad
// token is still rejected.
func (g *Gateway) optionalAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := c.GetHeader("Authorization"); token != "" && !g.verify(c, token) {
			return
		}
		c.Next()
	}
}

func (g *Gateway) verify(c *gin.Context, token string) bool {
	account, _, err := g.auth.VerifyToken(token)
	if err != nil {
		msg := "invalid token"
		if errors.Is(err, auth.ErrTokenExpired) {
			msg = "token expired"
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
		return false
	}
	c.Set("caller", account)
	return true
}

func (g *Gateway) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !g.rateLimiter.Allow(ip) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func (g *Gateway) tracingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader("X-Correlation-ID")
		if correlationID == "" {
			correlationID = uuid.New().String()
		}

		c.Set("correlation_id", correlationID)
		c.Header("X-Correlation-ID", correlationID)
		c.Next()
	}
}

func callerOf(c *gin.Context) models.Address {
	caller, _ := c.Get("caller")
	addr, _ := caller.(models.Address)
	return addr
}

// NewRateLimiter allows limit requests per key in any window
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

// Allow checks if a request is allowed
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-rl.window)
	if now.Sub(rl.lastSweep) >= rl.window {
		rl.sweep(cutoff)
		rl.lastSweep = now
	}

	requests := rl.requests[key]
	valid := requests[:0]
	for _, t := range requests {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}

	if len(valid) >= rl.limit {
		if len(valid) == 0 {
			delete(rl.requests, key)
		} else {
			rl.requests[key] = valid
		}
		return false
	}

	rl.requests[key] = append(valid, now)
	return true
}

// sweep drops keys with no request after cutoff
func (rl *RateLimiter) sweep(cutoff time.Time) {
	for key, requests := range rl.requests {
		if len(requests) == 0 || !requests[len(requests)-1].After(cutoff) {
			delete(rl.requests, key)
		}
	}
}
