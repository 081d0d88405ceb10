// Package tiergate answers subscription-tier questions from static
// configuration until a billing service is wired in.
package tiergate

import (
	"context"
	"strings"
)

// Static allows everyone, or an explicit list of users. Entries may name a
// user ("u1") or a user and feature ("u1:scheduling").
type Static struct {
	allowAll bool
	allowed  map[string]struct{}
}

// NewStatic creates a gate.
func NewStatic(allowAll bool, allowed []string) *Static {
	set := make(map[string]struct{}, len(allowed))
	for _, entry := range allowed {
		if entry = strings.TrimSpace(entry); entry != "" {
			set[entry] = struct{}{}
		}
	}
	return &Static{allowAll: allowAll, allowed: set}
}

// Allowed implements domain.TierGate.
func (g *Static) Allowed(_ context.Context, userID, feature string) (bool, error) {
	if g.allowAll {
		return true, nil
	}
	if _, ok := g.allowed[userID]; ok {
		return true, nil
	}
	_, ok := g.allowed[userID+":"+feature]
	return ok, nil
}
