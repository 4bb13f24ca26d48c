package shared

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"slices"
	"strconv"
	"time"

	"github.com/phrazzld/gatekeeper/internal/domain"
)

// ContextKey is the type of keys stored in a request context by this package.
type ContextKey string

// Context keys for various values
const (
	// TraceIDKey is the key for the trace ID in the request context
	TraceIDKey ContextKey = "traceID"

	// AuthenticatedKey is the key for the AuthenticatedContext
	AuthenticatedKey ContextKey = "authenticated"

	// TraceIDLength is the number of bytes used to generate the trace ID
	TraceIDLength = 16 // 32 hex characters
)

// AuthenticatedContext is the request-scoped identity installed by the
// request gate. At most one exists per request and it is never shared
// between requests.
type AuthenticatedContext struct {
	Identifier  string      `json:"email"`
	Role        domain.Role `json:"role"`
	Authorities []string    `json:"authorities"`
}

// NewAuthenticatedContext builds the context for an enabled principal.
func NewAuthenticatedContext(p *domain.Principal) *AuthenticatedContext {
	return &AuthenticatedContext{
		Identifier:  p.Identifier,
		Role:        p.Role,
		Authorities: p.Authorities(),
	}
}

// HasAuthority reports whether the context grants authority, e.g. "ROLE_ADMIN".
func (a *AuthenticatedContext) HasAuthority(authority string) bool {
	return a != nil && slices.Contains(a.Authorities, authority)
}

// WithAuthenticated returns a copy of ctx carrying auth.
func WithAuthenticated(ctx context.Context, auth *AuthenticatedContext) context.Context {
	return context.WithValue(ctx, AuthenticatedKey, auth)
}

// AuthenticatedFrom returns the AuthenticatedContext attached to ctx, if any.
func AuthenticatedFrom(ctx context.Context) (*AuthenticatedContext, bool) {
	auth, ok := ctx.Value(AuthenticatedKey).(*AuthenticatedContext)
	return auth, ok && auth != nil
}

// SetTraceID adds a freshly generated trace ID to the context.
func SetTraceID(ctx context.Context) context.Context {
	return WithTraceID(ctx, generateTraceID())
}

// WithTraceID adds the given trace ID to the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID retrieves the trace ID from the context.
// If no trace ID exists, it returns an empty string.
func GetTraceID(ctx context.Context) string {
	traceID, ok := ctx.Value(TraceIDKey).(string)
	if !ok {
		return ""
	}
	return traceID
}

// generateTraceID creates a random 32-character hex trace ID. If crypto/rand
// fails the current time is used so the value is never static.
func generateTraceID() string {
	b := make([]byte, TraceIDLength)
	if _, err := rand.Read(b); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 16)
	}
	return hex.EncodeToString(b)
}
