package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"securevault/pkg/requestcontext"
)

// UserClaims are the claims the engine needs from an externally-issued
// vault-owner JWT. Signup and login happen elsewhere; the engine only
// validates the token and extracts the acting owner's identity.
type UserClaims struct {
	UserID string
}

// UserValidator validates a vault-owner bearer token.
type UserValidator interface {
	ValidateUserToken(tokenString string) (*UserClaims, error)
}

// GetUserID retrieves the authenticated vault owner ID from the context.
func GetUserID(ctx context.Context) string {
	return requestcontext.UserID(ctx)
}

// RequireUser rejects requests without a valid owner bearer token and
// threads the owner ID through the context for services and audit entries.
func RequireUser(validator UserValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || token == "" {
				unauthorized(w)
				return
			}
			claims, err := validator.ValidateUserToken(token)
			if err != nil {
				logger.WarnContext(r.Context(), "rejected user token",
					"error", err,
					"request_id", GetRequestID(r.Context()),
				)
				unauthorized(w)
				return
			}
			ctx := requestcontext.WithUserID(r.Context(), claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ValidateUserToken accepts the same HMAC scheme as admin tokens but
// requires the "user" role.
func (v *JWTValidator) ValidateUserToken(tokenString string) (*UserClaims, error) {
	parsed, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, jwt.ErrTokenInvalidSubject
	}
	if role, _ := claims["role"].(string); role != "user" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return &UserClaims{UserID: sub}, nil
}
