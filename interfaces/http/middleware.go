package http

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/missatech/breach-analytics/domain/entity"
	"github.com/missatech/breach-analytics/pkg/metrics"
)

const requestIDHeader = "X-Request-ID"

// RequestLogger logs every request with its latency and outcome. A request
// id is assigned when the client did not send one, so log lines across the
// stack stay correlatable.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header(requestIDHeader, requestID)
		c.Set("request_id", requestID)

		c.Next()

		if raw != "" {
			path = path + "?" + raw
		}
		logger.Info("http request",
			zap.String("request_id", requestID),
			zap.String("client_ip", c.ClientIP()),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status_code", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// Metrics records request counts and latency per route template.
func Metrics(collector *metrics.Collector) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		collector.RecordHTTPRequest(c.Request.Method, endpoint, c.Writer.Status(), time.Since(start))
	}
}

// RateLimitConfig controls per-client request throttling.
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// DefaultRateLimitConfig allows a generous per-client budget.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:           false,
		RequestsPerSecond: 20,
		Burst:             40,
	}
}

// Validate checks the configuration bounds.
func (c RateLimitConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.RequestsPerSecond <= 0 {
		return entity.NewValidationError("requests_per_second", "must be positive")
	}
	if c.Burst < 1 {
		return entity.NewValidationError("burst", "must be at least 1")
	}
	return nil
}

// RateLimit throttles clients with a token bucket per client IP.
func RateLimit(cfg RateLimitConfig, logger *zap.Logger) gin.HandlerFunc {
	var (
		mu       sync.Mutex
		limiters = make(map[string]*rate.Limiter)
	)

	return func(c *gin.Context) {
		key := c.ClientIP()

		mu.Lock()
		limiter, ok := limiters[key]
		if !ok {
			limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
			limiters[key] = limiter
		}
		mu.Unlock()

		if !limiter.Allow() {
			logger.Warn("request blocked by rate limit",
				zap.String("client_ip", key),
				zap.String("path", c.Request.URL.Path))
			c.Header("Retry-After", "1")
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate limit exceeded",
				"details": "request budget exhausted, retry later",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// AuthConfig controls bearer-token authentication on the API group.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Secret  string `mapstructure:"secret"`
	Issuer  string `mapstructure:"issuer"`
}

// DefaultAuthConfig leaves the API open; production deployments enable it
// through configuration.
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{Enabled: false}
}

// Validate checks the configuration bounds.
func (c AuthConfig) Validate() error {
	if c.Enabled && c.Secret == "" {
		return entity.NewValidationError("auth.secret", "required when auth is enabled")
	}
	return nil
}

type apiClaims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// Auth validates an HMAC-signed bearer token on every request. The token
// subject is exposed to handlers as "user_id".
func Auth(cfg AuthConfig, logger *zap.Logger) gin.HandlerFunc {
	secret := []byte(cfg.Secret)

	return func(c *gin.Context) {
		tokenString, ok := extractBearerToken(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "authentication required",
				"details": "missing bearer token",
			})
			c.Abort()
			return
		}

		opts := []jwt.ParserOption{
			jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		}
		if cfg.Issuer != "" {
			opts = append(opts, jwt.WithIssuer(cfg.Issuer))
		}

		token, err := jwt.ParseWithClaims(tokenString, &apiClaims{}, func(*jwt.Token) (interface{}, error) {
			return secret, nil
		}, opts...)
		if err != nil || !token.Valid {
			logger.Warn("rejected bearer token",
				zap.String("client_ip", c.ClientIP()),
				zap.Error(err))
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "authentication failed",
				"details": "invalid or expired token",
			})
			c.Abort()
			return
		}

		if claims, ok := token.Claims.(*apiClaims); ok {
			c.Set("user_id", claims.Subject)
			c.Set("roles", claims.Roles)
		}
		c.Next()
	}
}

func extractBearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer "), true
	}
	return "", false
}
