package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"clipfeed/internal/httputil"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// ViewerIDKey is the context key for the authenticated viewer's ID
	ViewerIDKey contextKey = "viewer_id"

	// AccessTokenCookie is the cookie web clients carry the access token in.
	AccessTokenCookie = "access_token"
)

// Claims are the access token claims. Tokens issued by the account service carry the
// viewer id in user_id; standard tokens carry it in sub.
type Claims struct {
	UserID string `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

// ViewerID returns user_id, falling back to sub.
func (c *Claims) ViewerID() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}

// AuthMiddleware creates a middleware that validates JWT tokens
// Checks Authorization header first (for mobile), then falls back to cookie (for web)
func AuthMiddleware(jwtSecret string) func(http.Handler) http.Handler {
	key := []byte(jwtSecret)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := extractToken(r)
			if tokenString == "" {
				httputil.WriteUnauthorized(w, "Missing authentication token")
				return
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return key, nil
			})

			if err != nil {
				if errors.Is(err, jwt.ErrTokenExpired) {
					httputil.WriteUnauthorizedWithCode(w, httputil.ErrCodeTokenExpired, "Access token has expired")
					return
				}
				httputil.WriteUnauthorizedWithCode(w, httputil.ErrCodeTokenInvalid, "Invalid authentication token")
				return
			}

			viewerID := claims.ViewerID()
			if !token.Valid || viewerID == "" {
				httputil.WriteUnauthorizedWithCode(w, httputil.ErrCodeTokenInvalid, "Invalid token claims")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithViewerID(r.Context(), viewerID)))
		})
	}
}

func extractToken(r *http.Request) string {
	// 1. Authorization header (mobile apps)
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}

	// 2. Cookie (web browsers)
	if cookie, err := r.Cookie(AccessTokenCookie); err == nil {
		return cookie.Value
	}
	return ""
}

// WithViewerID stores the viewer id in ctx.
func WithViewerID(ctx context.Context, viewerID string) context.Context {
	return context.WithValue(ctx, ViewerIDKey, viewerID)
}

// GetViewerIDFromContext extracts the viewer ID from the request context
// Returns the viewer ID and true if found, or "" and false if not found
func GetViewerIDFromContext(ctx context.Context) (string, bool) {
	viewerID, ok := ctx.Value(ViewerIDKey).(string)
	return viewerID, ok && viewerID != ""
}
