package selection

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/shifahealth/platform/internal/audit"
	"github.com/shifahealth/platform/internal/identity"
	"github.com/shifahealth/platform/internal/membership"
	"github.com/shifahealth/platform/internal/observability/metrics"
	"github.com/shifahealth/platform/internal/tenancy"
	"github.com/shifahealth/platform/pkg/logging"
)

var switchTracer = otel.Tracer("shifa.internal.selection.switch")

// ErrAccessDenied indicates the user holds no active membership for the
// requested clinic.
var ErrAccessDenied = errors.New("selection: clinic access denied")

// Selection is the active clinic selection after a successful switch.
type Selection struct {
	ClinicID string `json:"clinic_id"`
	Role     string `json:"role"`
	Token    string `json:"-"`
}

// Invalidator drops per-user cached state after a switch so everything is
// rebuilt against the newly active clinic.
type Invalidator interface {
	Invalidate(ctx context.Context, userID string)
}

// Service performs clinic selection and switching. A switch either fully
// succeeds (token minted, cookies written, caches invalidated, audited) or
// leaves the prior selection untouched.
type Service struct {
	memberships membership.Repository
	issuer      *identity.TokenIssuer
	cookies     *CookieStore
	invalidator Invalidator
	audit       *audit.Service
	metrics     *metrics.TenancyMetrics
	logger      *logging.Logger
}

// NewService creates a selection service. invalidator, audit, and metrics
// are optional.
func NewService(
	memberships membership.Repository,
	issuer *identity.TokenIssuer,
	cookies *CookieStore,
	invalidator Invalidator,
	auditService *audit.Service,
	tenancyMetrics *metrics.TenancyMetrics,
	logger *logging.Logger,
) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		memberships: memberships,
		issuer:      issuer,
		cookies:     cookies,
		invalidator: invalidator,
		audit:       auditService,
		metrics:     tenancyMetrics,
		logger:      logger,
	}
}

// Cookies exposes the cookie store for the guard and auth handlers.
func (s *Service) Cookies() *CookieStore {
	return s.cookies
}

// Switch changes the active clinic. Switching to the already-active clinic
// is a no-op: no token is minted, no cookie rewritten, no event audited.
// The boolean reports whether a switch actually happened.
func (s *Service) Switch(ctx context.Context, w http.ResponseWriter, r *http.Request, principal tenancy.Principal, clinicID string) (*Selection, bool, error) {
	return s.change(ctx, w, r, principal, clinicID, false)
}

// Select performs the initial clinic selection. Same contract as Switch;
// audited as a selection rather than a switch.
func (s *Service) Select(ctx context.Context, w http.ResponseWriter, r *http.Request, principal tenancy.Principal, clinicID string) (*Selection, bool, error) {
	return s.change(ctx, w, r, principal, clinicID, true)
}

func (s *Service) change(ctx context.Context, w http.ResponseWriter, r *http.Request, principal tenancy.Principal, clinicID string, initial bool) (*Selection, bool, error) {
	start := time.Now()
	ctx, span := switchTracer.Start(ctx, "selection.switch", trace.WithAttributes(
		attribute.String("clinic.id", clinicID),
		attribute.Bool("selection.initial", initial),
	))
	defer span.End()
	defer func() { s.metrics.ObserveSwitchLatency(time.Since(start).Seconds()) }()

	// The membership row is authoritative, even for a clinic that is
	// already selected: a revoked membership must not ride on a
	// still-valid cookie token.
	m, err := s.memberships.Get(ctx, principal.UserID, clinicID)
	if err != nil {
		if errors.Is(err, membership.ErrNotFound) {
			s.deny(ctx, principal.UserID, clinicID, "no membership")
			return nil, false, ErrAccessDenied
		}
		s.metrics.ObserveSwitch("error")
		return nil, false, err
	}
	if !m.HasRelationship {
		s.deny(ctx, principal.UserID, clinicID, "membership revoked")
		return nil, false, ErrAccessDenied
	}

	// Idempotence: already on this clinic with a still-valid token.
	if current, ok := s.hydrateFromCookies(r, principal); ok && current.ClinicID == clinicID {
		span.SetAttributes(attribute.String("selection.outcome", "noop"))
		s.metrics.ObserveSwitch("noop")
		return &Selection{ClinicID: clinicID, Role: m.Role}, false, nil
	}

	token, err := s.issuer.IssueClinicToken(principal.UserID, clinicID, m.Role)
	if err != nil {
		// Prior selection cookies are untouched on any failure path.
		s.metrics.ObserveSwitch("error")
		return nil, false, err
	}

	s.cookies.SetSelection(w, clinicID, token)

	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx, principal.UserID)
	}
	if err := s.audit.RecordSwitch(ctx, principal.UserID, clinicID, m.Role, initial); err != nil {
		s.logger.Error("audit record for clinic switch failed", "user_id", principal.UserID, "clinic_id", clinicID, "error", err)
	}

	span.SetAttributes(attribute.String("selection.outcome", "switched"))
	s.metrics.ObserveSwitch("switched")
	s.logger.Info("clinic switched",
		"user_id", principal.UserID,
		"clinic_id", clinicID,
		"clinic_role", m.Role,
		"initial", initial,
	)
	return &Selection{ClinicID: clinicID, Role: m.Role, Token: token}, true, nil
}

func (s *Service) deny(ctx context.Context, userID, clinicID, reason string) {
	s.metrics.ObserveSwitch("denied")
	if err := s.audit.RecordSwitchDenied(ctx, userID, clinicID, reason); err != nil {
		s.logger.Error("audit record for denied switch failed", "user_id", userID, "clinic_id", clinicID, "error", err)
	}
	s.logger.Warn("clinic switch denied", "user_id", userID, "clinic_id", clinicID, "reason", reason)
}

// Hydrate resolves the active clinic for a request from the selection
// cookies, verifying the token belongs to the principal and that an active
// membership still backs the selection. Used by the guard before deciding a
// request has no clinic selected.
func (s *Service) Hydrate(r *http.Request, principal tenancy.Principal, memberships []membership.Membership) (tenancy.ActiveClinic, bool) {
	claims, ok := s.hydrateFromCookies(r, principal)
	if !ok {
		return tenancy.ActiveClinic{}, false
	}
	m, ok := membership.FindActive(memberships, claims.ClinicID)
	if !ok {
		return tenancy.ActiveClinic{}, false
	}
	// The membership row is authoritative for the role: a role change after
	// the token was minted takes effect without a re-switch.
	return tenancy.ActiveClinic{ClinicID: claims.ClinicID, Role: m.Role}, true
}

func (s *Service) hydrateFromCookies(r *http.Request, principal tenancy.Principal) (*identity.ClinicClaims, bool) {
	clinicID := s.cookies.ClinicID(r)
	token := s.cookies.ClinicToken(r)
	if clinicID == "" || token == "" {
		return nil, false
	}
	claims, err := s.issuer.ParseClinicToken(token, principal.UserID)
	if err != nil || claims.ClinicID != clinicID {
		return nil, false
	}
	return claims, true
}
