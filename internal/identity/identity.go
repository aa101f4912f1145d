// Package identity resolves callers into domain.Actor values.
//
// The workflow engine never infers privileges from an actor ID; it trusts the
// Admin flag set here by one authoritative Provider.
package identity

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/mrz1836/taskreview/internal/domain"
	reviewerrors "github.com/mrz1836/taskreview/internal/errors"
)

// Provider turns a presented credential into an Actor.
type Provider interface {
	Authenticate(ctx context.Context, credential string) (domain.Actor, error)
}

// StaticProvider trusts the credential as the actor ID and grants admin to the
// configured list. Suitable for the local CLI and for deployments behind an
// authenticating proxy.
type StaticProvider struct {
	admins []string
}

var _ Provider = (*StaticProvider)(nil)

// NewStaticProvider returns a StaticProvider granting admin to admins.
func NewStaticProvider(admins []string) *StaticProvider {
	clean := make([]string, 0, len(admins))
	for _, a := range admins {
		if a = strings.TrimSpace(a); a != "" {
			clean = append(clean, a)
		}
	}
	return &StaticProvider{admins: clean}
}

// Authenticate implements Provider.
func (p *StaticProvider) Authenticate(_ context.Context, credential string) (domain.Actor, error) {
	id := strings.TrimSpace(credential)
	if id == "" {
		return domain.Actor{}, fmt.Errorf("%w: actor ID is required", reviewerrors.ErrUnauthenticated)
	}
	return domain.Actor{ID: id, Admin: slices.Contains(p.admins, id)}, nil
}
