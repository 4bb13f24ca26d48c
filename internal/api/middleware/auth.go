package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/phrazzld/gatekeeper/internal/api/shared"
	"github.com/phrazzld/gatekeeper/internal/platform/logger"
	"github.com/phrazzld/gatekeeper/internal/redact"
	"github.com/phrazzld/gatekeeper/internal/service/auth"
	"github.com/phrazzld/gatekeeper/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Gate outcomes, used as the metric label.
const (
	GateAuthenticated    = "authenticated"
	GateNoToken          = "no_token"
	GateInvalidToken     = "invalid_token"
	GateUnknownPrincipal = "unknown_principal"
	GateDisabled         = "disabled"
	GateStoreError       = "store_error"
	GateReentrant        = "reentrant"
)

const bearerScheme = "bearer"

// TokenValidator verifies a bearer token. ExtractSubject is a best-effort
// unverified read used only for logging rejected tokens.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*auth.Claims, error)
	ExtractSubject(token string) (string, bool)
}

// GateMetrics counts gate outcomes. A nil *GateMetrics records nothing.
type GateMetrics struct {
	outcomes *prometheus.CounterVec
}

// NewGateMetrics registers the gate collectors with reg.
func NewGateMetrics(reg prometheus.Registerer) *GateMetrics {
	return &GateMetrics{
		outcomes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gatekeeper",
				Subsystem: "auth",
				Name:      "gate_total",
				Help:      "Total number of requests seen by the auth gate by outcome",
			},
			[]string{"outcome"},
		),
	}
}

func (m *GateMetrics) record(outcome string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(outcome).Inc()
}

// Gate is the request gate. It never rejects a request: it either attaches
// an AuthenticatedContext or lets the request through anonymously, leaving
// the decision to RequireAuthenticated and RequireRole.
type Gate struct {
	tokens     TokenValidator
	principals store.PrincipalFinder
	metrics    *GateMetrics
}

// NewGate creates a Gate. metrics may be nil.
func NewGate(tokens TokenValidator, principals store.PrincipalFinder, metrics *GateMetrics) (*Gate, error) {
	if tokens == nil {
		return nil, errors.New("token validator cannot be nil")
	}
	if principals == nil {
		return nil, errors.New("principal finder cannot be nil")
	}
	return &Gate{tokens: tokens, principals: principals, metrics: metrics}, nil
}

// Authenticate resolves the bearer token of the request, if any, into an
// AuthenticatedContext. A request that already carries one is passed
// through untouched.
func (g *Gate) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if _, ok := shared.AuthenticatedFrom(ctx); ok {
			g.metrics.record(GateReentrant)
			next.ServeHTTP(w, r)
			return
		}

		authCtx, outcome := g.resolve(ctx, r.Header.Get("Authorization"))
		g.metrics.record(outcome)
		trace.SpanFromContext(ctx).SetAttributes(attribute.String("auth.outcome", outcome))

		if authCtx != nil {
			r = r.WithContext(shared.WithAuthenticated(ctx, authCtx))
		}
		next.ServeHTTP(w, r)
	})
}

func (g *Gate) resolve(ctx context.Context, header string) (*shared.AuthenticatedContext, string) {
	log := logger.FromContextOrDefault(ctx)

	token, ok := BearerToken(header)
	if !ok {
		return nil, GateNoToken
	}

	claims, err := g.tokens.Validate(ctx, token)
	if err != nil {
		attrs := []any{slog.String("reason", redact.Error(err))}
		if subject, ok := g.tokens.ExtractSubject(token); ok {
			attrs = append(attrs, slog.String("subject", redact.String(subject)))
		}
		log.Warn("rejected bearer token, continuing anonymously", attrs...)
		return nil, GateInvalidToken
	}

	principal, err := g.principals.FindByIdentifier(ctx, claims.Subject)
	switch {
	case errors.Is(err, store.ErrPrincipalNotFound):
		log.Debug("token subject has no principal")
		return nil, GateUnknownPrincipal
	case err != nil:
		log.Error("failed to resolve principal, continuing anonymously",
			slog.String("error", redact.Error(err)))
		return nil, GateStoreError
	case !principal.Enabled:
		log.Info("token subject is disabled")
		return nil, GateDisabled
	}

	log.Debug("request authenticated", slog.String("role", string(principal.Role)))
	return shared.NewAuthenticatedContext(principal), GateAuthenticated
}

// BearerToken extracts the token from an Authorization header value. The
// scheme is matched case-insensitively. A header with another scheme, or no
// header, reports false. A bearer header with an empty token reports true
// with an empty token so that it is validated, and rejected, like any other.
func BearerToken(header string) (string, bool) {
	scheme, rest, found := strings.Cut(strings.TrimSpace(header), " ")
	if !strings.EqualFold(scheme, bearerScheme) {
		return "", false
	}
	if !found {
		return "", true
	}
	return strings.TrimSpace(rest), true
}
