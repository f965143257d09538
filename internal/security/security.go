package security

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/errors"
	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/types"
)

// AnalyzeRequestKey is the gin context key holding a validated analyze request
const AnalyzeRequestKey = "analyze_request"

// Bounds on subject fields accepted from clients
const (
	maxCredibilityScore = 1_000_000
	maxXPTotal          = 1_000_000_000
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.-]*$`)

// Config holds security configuration
type Config struct {
	MaxUsernameLength int           `json:"max_username_length"`
	MaxBodyBytes      int64         `json:"max_body_bytes"`
	RequestTimeout    time.Duration `json:"request_timeout"`
	EnableHSTS        bool          `json:"enable_hsts"`
}

// DefaultConfig returns secure defaults
func DefaultConfig() Config {
	return Config{
		MaxUsernameLength: 64,
		MaxBodyBytes:      64 << 10,
		RequestTimeout:    30 * time.Second,
	}
}

// Middleware hardens the HTTP surface and validates subjects sent by clients
type Middleware struct {
	config Config
}

// NewMiddleware creates a new security middleware instance
func NewMiddleware(config Config) *Middleware {
	return &Middleware{config: config}
}

// SanitizeUsername trims whitespace and a leading @ handle marker
func SanitizeUsername(username string) string {
	return strings.TrimPrefix(strings.TrimSpace(username), "@")
}

// ValidateSubject rejects subject fields that could not have come from the
// reputation network. Unresolvable subjects pass; the orchestrator reports them.
func (m *Middleware) ValidateSubject(subject types.SubjectIdentity) error {
	if subject.ID < 0 {
		return errors.NewValidationError("subject id must not be negative", subject.ID)
	}
	if subject.CredibilityScore < 0 || subject.CredibilityScore > maxCredibilityScore {
		return errors.NewValidationError("credibility score out of range", subject.CredibilityScore)
	}
	if subject.XPTotal < 0 || subject.XPTotal > maxXPTotal {
		return errors.NewValidationError("xp total out of range", subject.XPTotal)
	}

	if subject.Username == "" {
		return nil
	}
	if len(subject.Username) > m.config.MaxUsernameLength {
		return errors.NewValidationError(fmt.Sprintf("username exceeds maximum length of %d characters", m.config.MaxUsernameLength))
	}
	if strings.Contains(subject.Username, "\x00") || !utf8.ValidString(subject.Username) {
		return errors.NewValidationError("username contains invalid characters")
	}
	if !usernamePattern.MatchString(subject.Username) {
		return errors.NewValidationError("invalid username format", subject.Username)
	}
	return nil
}

// BindAnalyzeRequest decodes and validates the analyze body, storing the
// sanitized request under AnalyzeRequestKey
func (m *Middleware) BindAnalyzeRequest(c *gin.Context) {
	var req types.AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := errors.NewValidationError("invalid JSON body", err.Error())
		c.AbortWithStatusJSON(appErr.HTTPStatus, appErr)
		return
	}

	req.Subject.Username = SanitizeUsername(req.Subject.Username)
	if err := m.ValidateSubject(req.Subject); err != nil {
		appErr := errors.ToAppError(err)
		c.AbortWithStatusJSON(appErr.HTTPStatus, appErr)
		return
	}

	c.Set(AnalyzeRequestKey, req)
	c.Next()
}

// SecurityHeaders adds security headers to responses
func (m *Middleware) SecurityHeaders(c *gin.Context) {
	c.Header("X-Content-Type-Options", "nosniff")
	c.Header("X-Frame-Options", "DENY")
	c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
	c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
	c.Header("Permissions-Policy", "geolocation=(), microphone=(), camera=()")

	if m.config.EnableHSTS || c.Request.TLS != nil {
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}

	c.Next()
}

// ValidateContentType requires JSON on requests that carry a body
func (m *Middleware) ValidateContentType(c *gin.Context) {
	if c.Request.ContentLength == 0 {
		c.Next()
		return
	}

	contentType := strings.ToLower(c.GetHeader("Content-Type"))
	if !strings.HasPrefix(contentType, "application/json") {
		c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, gin.H{
			"error": "unsupported content type",
		})
		return
	}

	c.Next()
}

// LimitBody caps request bodies at MaxBodyBytes
func (m *Middleware) LimitBody(c *gin.Context) {
	if c.Request.Body != nil && m.config.MaxBodyBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, m.config.MaxBodyBytes)
	}
	c.Next()
}

// RequestTimeout bounds the request context
func (m *Middleware) RequestTimeout(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), m.config.RequestTimeout)
	defer cancel()

	c.Request = c.Request.WithContext(ctx)
	c.Header("X-Timeout", strconv.Itoa(int(m.config.RequestTimeout.Seconds())))

	c.Next()
}
