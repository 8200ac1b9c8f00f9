package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"securevault/pkg/requestcontext"
)

// AdminClaims are the claims the engine needs from an externally-issued
// admin JWT. Admin login itself happens elsewhere; the engine only validates
// the token and extracts the acting admin's identity.
type AdminClaims struct {
	AdminID string
	Role    string
}

// AdminValidator validates an admin bearer token.
type AdminValidator interface {
	ValidateToken(tokenString string) (*AdminClaims, error)
}

// GetAdminID retrieves the authenticated admin ID from the context.
func GetAdminID(ctx context.Context) string {
	return requestcontext.AdminID(ctx)
}

// RequireAdmin rejects requests without a valid admin bearer token and
// threads the admin ID through the context for services and audit entries.
func RequireAdmin(validator AdminValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || token == "" {
				unauthorized(w)
				return
			}
			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(r.Context(), "rejected admin token",
					"error", err,
					"request_id", GetRequestID(r.Context()),
				)
				unauthorized(w)
				return
			}
			ctx := requestcontext.WithAdminID(r.Context(), claims.AdminID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"Invalid or expired token"}`))
}

// JWTValidator validates HMAC-signed admin JWTs issued by the identity
// provider the deployment trusts.
type JWTValidator struct {
	secret []byte
}

// NewJWTValidator builds a validator over a shared HMAC secret.
func NewJWTValidator(secret string) *JWTValidator {
	return &JWTValidator{secret: []byte(secret)}
}

func (v *JWTValidator) ValidateToken(tokenString string) (*AdminClaims, error) {
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
	role, _ := claims["role"].(string)
	if role != "admin" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return &AdminClaims{AdminID: sub, Role: role}, nil
}
