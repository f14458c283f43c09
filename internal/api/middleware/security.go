package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// apiContentSecurityPolicy allows nothing but same-origin images, which is
// all a JSON API with a photo endpoint ever returns.
const apiContentSecurityPolicy = "default-src 'none'; img-src 'self'; frame-ancestors 'none'"

// SecurityConfig holds configuration for security middleware.
type SecurityConfig struct {
	// AllowedOrigins are the webview or browser origins of host apps on the
	// same device. "*" disables credentialed requests.
	AllowedOrigins []string
}

// DefaultSecurityConfig allows any origin without credentials.
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{AllowedOrigins: []string{"*"}}
}

func (c SecurityConfig) wildcard() bool {
	for _, o := range c.AllowedOrigins {
		if o == "*" {
			return true
		}
	}
	return len(c.AllowedOrigins) == 0
}

// NewCORS creates a CORS middleware for the catch API.
func NewCORS(config SecurityConfig) echo.MiddlewareFunc {
	origins := config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{
			http.MethodGet,
			http.MethodHead,
			http.MethodPatch,
			http.MethodPost,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			"X-User-Id",
		},
		AllowCredentials: !config.wildcard(),
	})
}

// NewSecureHeaders sets response hardening headers. HSTS is left off since
// the API listens on plain HTTP.
func NewSecureHeaders() echo.MiddlewareFunc {
	return middleware.SecureWithConfig(middleware.SecureConfig{
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		ContentSecurityPolicy: apiContentSecurityPolicy,
		ReferrerPolicy:        "no-referrer",
	})
}

// NoStore marks API responses as uncacheable. Catch photos under
// imagePrefix are immutable and keep default caching.
func NoStore(imagePrefix string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !strings.HasPrefix(c.Request().URL.Path, imagePrefix) {
				c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
			}
			return next(c)
		}
	}
}

// NewBodyLimit creates a middleware that limits the request body size.
func NewBodyLimit(limit string) echo.MiddlewareFunc {
	return middleware.BodyLimit(limit)
}
