package testutil

import (
	"net/http"

	"securevault/pkg/requestcontext"
)

// WithAdminID adds an admin identity to the request context.
// This simulates what the admin auth middleware would do for
// authenticated requests.
func WithAdminID(req *http.Request, adminID string) *http.Request {
	ctx := requestcontext.WithAdminID(req.Context(), adminID)
	return req.WithContext(ctx)
}

// WithRequestID adds a request ID to the request context.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	ctx := requestcontext.WithRequestID(req.Context(), requestID)
	return req.WithContext(ctx)
}
