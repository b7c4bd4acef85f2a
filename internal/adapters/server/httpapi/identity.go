package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hylla/timelog/internal/adapters/server/common"
)

// Caller identity modes.
const (
	IdentityNone   = "none"
	IdentityHeader = "header"
	IdentityJWT    = "jwt"
)

// DefaultUserHeader carries the caller name set by an authenticating reverse proxy.
const DefaultUserHeader = "X-Remote-User"

// IdentityConfig selects how the caller of each request is established.
type IdentityConfig struct {
	Mode          string
	UserHeader    string
	AnonymousUser string
	JWTSecret     string
}

// Validate reports unusable identity settings.
func (c IdentityConfig) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Mode)) {
	case "", IdentityNone, IdentityHeader:
		return nil
	case IdentityJWT:
		if strings.TrimSpace(c.JWTSecret) == "" {
			return fmt.Errorf("jwt identity mode requires a secret")
		}
		return nil
	default:
		return fmt.Errorf("unsupported identity mode %q", c.Mode)
	}
}

// WithIdentity resolves the caller of each request and stores it on the request context.
// Requests whose identity cannot be established receive a 401 envelope.
func WithIdentity(cfg IdentityConfig, next http.Handler) http.Handler {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	header := strings.TrimSpace(cfg.UserHeader)
	if header == "" {
		header = DefaultUserHeader
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := strings.TrimSpace(cfg.AnonymousUser)
		switch mode {
		case IdentityHeader:
			if v := strings.TrimSpace(r.Header.Get(header)); v != "" {
				caller = v
			}
		case IdentityJWT:
			subject, err := bearerSubject(r.Header.Get("Authorization"), cfg.JWTSecret)
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, APIError{
					Code:    common.CodeUnauthorized,
					Message: err.Error(),
					Hint:    "Send Authorization: Bearer <token> signed with the configured secret.",
				})
				return
			}
			caller = subject
		}
		next.ServeHTTP(w, r.WithContext(common.WithCaller(r.Context(), caller)))
	})
}

// bearerSubject validates one HS256 bearer token and returns its subject claim.
func bearerSubject(authorization, secret string) (string, error) {
	authorization = strings.TrimSpace(authorization)
	if authorization == "" {
		return "", fmt.Errorf("missing bearer token")
	}
	scheme, tokenString, ok := strings.Cut(authorization, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(tokenString) == "" {
		return "", fmt.Errorf("invalid authorization header")
	}
	token, err := jwt.Parse(strings.TrimSpace(tokenString), func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return "", fmt.Errorf("invalid token")
	}
	subject, err := token.Claims.GetSubject()
	if err != nil || strings.TrimSpace(subject) == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return strings.TrimSpace(subject), nil
}
