package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/mrz1836/taskreview/internal/domain"
)

type actorKey struct{}

// authenticate resolves the caller and stores the actor in the request context.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, err := s.auth.Authenticate(r.Context(), credentialFrom(r))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), actorKey{}, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// credentialFrom returns the bearer token, or the actor header when no
// Authorization header is present.
func credentialFrom(r *http.Request) string {
	if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
		if len(h) > len("bearer ") && strings.EqualFold(h[:len("bearer ")], "bearer ") {
			return strings.TrimSpace(h[len("bearer "):])
		}
		return h
	}
	return r.Header.Get(ActorHeader)
}

// actorFrom returns the authenticated actor. Routes behind authenticate always have one.
func actorFrom(ctx context.Context) domain.Actor {
	actor, _ := ctx.Value(actorKey{}).(domain.Actor)
	return actor
}
