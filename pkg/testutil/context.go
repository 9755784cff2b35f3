package testutil

import (
	"net/http"

	"citywalk/pkg/requestcontext"
)

// WithBearer sets the Authorization header the admin routes expect.
func WithBearer(req *http.Request, token string) *http.Request {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

// WithActor adds an admin actor to the request context.
// This simulates what RequireAuth does for authenticated requests.
func WithActor(req *http.Request, actorID string) *http.Request {
	if actorID == "" {
		return req
	}
	return req.WithContext(requestcontext.WithActorID(req.Context(), actorID))
}
