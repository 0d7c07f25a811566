package apiv1

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/infra/logging"
)

const RoleAdmin = "admin"

var errUnauthorized = errors.New("missing or invalid bearer token")

// Claims carry the owner id in the subject. Role "admin" may act on any owner's records.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller.
type Principal struct {
	OwnerID string
	Admin   bool
}

// Authenticator issues and checks HS256 bearer tokens.
type Authenticator struct {
	secret []byte
	now    func() time.Time
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret), now: time.Now}
}

// Mint signs a token for ownerID. It backs `paymentctl token` and tests.
func (a *Authenticator) Mint(ownerID, role string, ttl time.Duration) (string, error) {
	now := a.now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   ownerID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *Authenticator) parse(tok string) (*Claims, error) {
	claims := &Claims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil || !tkn.Valid || claims.Subject == "" {
		return nil, errUnauthorized
	}
	return claims, nil
}

// ParseFromRequest reads "Authorization: Bearer <jwt>".
func (a *Authenticator) ParseFromRequest(r *http.Request) (*Principal, error) {
	hdr := r.Header.Get("Authorization")
	if len(hdr) < 7 || !strings.EqualFold(hdr[:7], "bearer ") {
		return nil, errUnauthorized
	}
	claims, err := a.parse(strings.TrimSpace(hdr[7:]))
	if err != nil {
		return nil, err
	}
	return &Principal{OwnerID: claims.Subject, Admin: claims.Role == RoleAdmin}, nil
}

type principalKey struct{}

func withPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFrom(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}

// RequireAuth rejects requests without a valid token and stores the principal in the context.
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := a.ParseFromRequest(r)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{Code: "UNAUTHORIZED", Message: err.Error()})
			return
		}
		ctx := logging.WithUserID(r.Context(), p.OwnerID)
		next.ServeHTTP(w, r.WithContext(withPrincipal(ctx, p)))
	})
}

// scopeOwner is the owner filter a principal may use: its own id, or "" (any owner) for admins.
func scopeOwner(p *Principal) string {
	if p.Admin {
		return ""
	}
	return p.OwnerID
}
