package identity

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token scope markers carried in the "typ" claim. A session token never
// authorizes clinic-scoped operations and vice versa.
const (
	tokenTypeSession = "session"
	tokenTypeClinic  = "clinic"
)

// SessionClaims are carried by the session credential scope.
type SessionClaims struct {
	jwt.RegisteredClaims
	Email     string `json:"email"`
	Role      string `json:"role"`
	TokenType string `json:"typ"`
}

// ClinicClaims are carried by the clinic-scoped credential scope. The token
// is valid only for operations within ClinicID.
type ClinicClaims struct {
	jwt.RegisteredClaims
	ClinicID   string `json:"clinic_id"`
	ClinicRole string `json:"clinic_role"`
	TokenType  string `json:"typ"`
}

// TokenIssuer mints and validates both credential scopes. The scopes use
// separate secrets and separate lifetimes so one can expire or be rotated
// without touching the other.
type TokenIssuer struct {
	sessionSecret []byte
	clinicSecret  []byte
	sessionTTL    time.Duration
	clinicTTL     time.Duration
	now           func() time.Time
}

// NewTokenIssuer builds an issuer for both token scopes.
func NewTokenIssuer(sessionSecret, clinicSecret string, sessionTTL, clinicTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{
		sessionSecret: []byte(sessionSecret),
		clinicSecret:  []byte(clinicSecret),
		sessionTTL:    sessionTTL,
		clinicTTL:     clinicTTL,
		now:           time.Now,
	}
}

// IssueSession mints a session token for the user.
func (i *TokenIssuer) IssueSession(user *User) (string, error) {
	now := i.now()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.sessionTTL)),
		},
		Email:     user.Email,
		Role:      user.Role,
		TokenType: tokenTypeSession,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.sessionSecret)
}

// ParseSession validates a session token and returns its claims.
func (i *TokenIssuer) ParseSession(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return i.sessionSecret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.TokenType != tokenTypeSession || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// IssueClinicToken mints a clinic-scoped token for the user's role within
// one clinic.
func (i *TokenIssuer) IssueClinicToken(userID, clinicID, clinicRole string) (string, error) {
	now := i.now()
	claims := ClinicClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.clinicTTL)),
		},
		ClinicID:   clinicID,
		ClinicRole: clinicRole,
		TokenType:  tokenTypeClinic,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.clinicSecret)
}

// ParseClinicToken validates a clinic-scoped token. The token must belong to
// userID; a clinic token stolen across accounts never validates.
func (i *TokenIssuer) ParseClinicToken(tokenString, userID string) (*ClinicClaims, error) {
	claims := &ClinicClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return i.clinicSecret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.TokenType != tokenTypeClinic || claims.ClinicID == "" {
		return nil, ErrTokenInvalid
	}
	if claims.Subject != userID {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
