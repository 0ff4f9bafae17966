// Package authz gates dispatches: a plugin's required permissions, roles,
// and features are checked against the caller's session before invocation.
package authz

import (
	"context"
	"strings"

	"github.com/prochub/prochub/internal/procerr"
)

// Session is the caller's security context for one dispatch.
type Session struct {
	Subject  string
	TenantID string

	Permissions map[string]struct{}
	Roles       map[string]struct{}
	Features    map[string]struct{}
}

// NewSession normalizes the grant lists into a Session. Empty and blank
// entries are dropped; "*" grants everything within its class.
func NewSession(subject, tenantID string, permissions, roles, features []string) Session {
	return Session{
		Subject:     subject,
		TenantID:    tenantID,
		Permissions: normalize(permissions),
		Roles:       normalize(roles),
		Features:    normalize(features),
	}
}

func normalize(grants []string) map[string]struct{} {
	out := make(map[string]struct{}, len(grants))
	for _, g := range grants {
		g = strings.TrimSpace(g)
		if g == "" {
			continue
		}
		out[g] = struct{}{}
	}
	return out
}

type sessionKey struct{}

// WithSession attaches a session to ctx.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// FromContext retrieves the session attached by WithSession.
func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	return s, ok
}

// Requirements are the capabilities a plugin demands of its callers.
type Requirements struct {
	Permissions []string
	Roles       []string
	Features    []string
}

// Gate approves or denies one dispatch. A nil error means allowed.
type Gate interface {
	Authorize(ctx context.Context, session Session, processID string, required Requirements) error
}

// SessionGate is the default gate: every required capability must be present
// in the session (or covered by the "*" wildcard of its class).
type SessionGate struct{}

func (SessionGate) Authorize(_ context.Context, session Session, processID string, required Requirements) error {
	var missing []string
	missing = appendMissing(missing, "permission", required.Permissions, session.Permissions)
	missing = appendMissing(missing, "role", required.Roles, session.Roles)
	missing = appendMissing(missing, "feature", required.Features, session.Features)

	if len(missing) > 0 {
		return &procerr.UnauthorizedError{ProcessID: processID, Missing: missing}
	}
	return nil
}

func appendMissing(missing []string, class string, required []string, granted map[string]struct{}) []string {
	if len(required) == 0 {
		return missing
	}
	if _, ok := granted["*"]; ok {
		return missing
	}
	for _, want := range required {
		want = strings.TrimSpace(want)
		if want == "" {
			continue
		}
		if _, ok := granted[want]; !ok {
			missing = append(missing, class+":"+want)
		}
	}
	return missing
}
