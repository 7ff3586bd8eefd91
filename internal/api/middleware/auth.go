package middleware

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
)

const (
	ScopeAdmin     = "admin"
	ScopeMailQueue = "mail-queue"
)

type AuthMiddleware struct {
	jwtSecret string
	apiKeys   map[string]APIKeyInfo
}

type APIKeyInfo struct {
	Name      string
	Scopes    []string
	ExpiresAt time.Time
}

type Claims struct {
	Role   string   `json:"role"`
	Scopes []string `json:"scopes"`
	jwt.RegisteredClaims
}

func NewAuthMiddleware(jwtSecret string) *AuthMiddleware {
	return &AuthMiddleware{
		jwtSecret: jwtSecret,
		apiKeys:   make(map[string]APIKeyInfo),
	}
}

// RegisterAPIKey accepts key in the X-API-Key header. Empty keys are ignored.
func (m *AuthMiddleware) RegisterAPIKey(key string, info APIKeyInfo) {
	if key == "" {
		return
	}
	m.apiKeys[key] = info
}

func (m *AuthMiddleware) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m.jwtSecret == "" && len(m.apiKeys) == 0 {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "Authentication is not configured")
			}

			// Check API Key first
			apiKey := c.Request().Header.Get("X-API-Key")
			if apiKey != "" {
				return m.validateAPIKey(c, apiKey, next)
			}

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Missing authorization header")
			}

			tokenParts := strings.Split(authHeader, " ")
			if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization header format")
			}

			return m.validateJWT(c, tokenParts[1], next)
		}
	}
}

func (m *AuthMiddleware) validateAPIKey(c echo.Context, key string, next echo.HandlerFunc) error {
	var (
		info  APIKeyInfo
		found bool
	)
	for candidate, i := range m.apiKeys {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(key)) == 1 {
			info, found = i, true
		}
	}
	if !found {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid API key")
	}

	if !info.ExpiresAt.IsZero() && time.Now().After(info.ExpiresAt) {
		return echo.NewHTTPError(http.StatusUnauthorized, "API key has expired")
	}

	c.Set("subject", "apikey:"+info.Name)
	c.Set("isAPIKey", true)
	c.Set("scopes", info.Scopes)

	return next(c)
}

func (m *AuthMiddleware) validateJWT(c echo.Context, tokenString string, next echo.HandlerFunc) error {
	if m.jwtSecret == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(m.jwtSecret), nil
	})

	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
	}

	if !token.Valid {
		return echo.NewHTTPError(http.StatusUnauthorized, "Token is not valid")
	}

	scopes := claims.Scopes
	if claims.Role == ScopeAdmin {
		scopes = append(scopes, ScopeAdmin)
	}

	c.Set("subject", claims.Subject)
	c.Set("scopes", scopes)
	c.Set("isAPIKey", false)

	return next(c)
}

// RequireScope rejects authenticated callers that lack scope. The admin
// scope grants everything.
func RequireScope(scope string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !HasScope(c, scope) {
				return echo.NewHTTPError(http.StatusForbidden, "Missing scope "+scope)
			}
			return next(c)
		}
	}
}

func GetSubject(c echo.Context) string {
	if sub, ok := c.Get("subject").(string); ok {
		return sub
	}
	return ""
}

func GetScopes(c echo.Context) []string {
	if scopes, ok := c.Get("scopes").([]string); ok {
		return scopes
	}
	return nil
}

func IsAPIKey(c echo.Context) bool {
	if isAPIKey, ok := c.Get("isAPIKey").(bool); ok {
		return isAPIKey
	}
	return false
}

func HasScope(c echo.Context, required string) bool {
	for _, scope := range GetScopes(c) {
		if scope == ScopeAdmin || scope == required {
			return true
		}
	}
	return false
}
