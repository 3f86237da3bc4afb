// Package auth issues and checks login tokens and guards routes by role.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/certprep/internal/model"
)

// CookieName is the cookie carrying the login token.
const CookieName = "auth-token"

// TokenTTL is how long a login stays valid.
const TokenTTL = 24 * time.Hour

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrNoToken      = errors.New("no token")
)

// UserLookup loads users by ID. It returns nil, nil for unknown IDs.
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// Claims are the JWT claims of a login token.
type Claims struct {
	Username string         `json:"username"`
	Role     model.UserRole `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator signs tokens with one HS256 secret.
type Authenticator struct {
	secret        []byte
	users         UserLookup
	secureCookies bool
	now           func() time.Time
}

// New creates an Authenticator. secret must not be empty.
func New(secret string, users UserLookup, secureCookies bool) (*Authenticator, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	return &Authenticator{
		secret:        []byte(secret),
		users:         users,
		secureCookies: secureCookies,
		now:           time.Now,
	}, nil
}

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Issue signs a token for u.
func (a *Authenticator) Issue(u *model.User) (string, error) {
	now := a.now()
	claims := Claims{
		Username: u.Username,
		Role:     u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Parse validates a token and returns its claims.
func (a *Authenticator) Parse(token string) (*Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return &claims, nil
}

// SetCookie writes the login cookie.
func (a *Authenticator) SetCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(TokenTTL / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   a.secureCookies,
	})
}

// ClearCookie removes the login cookie.
func (a *Authenticator) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   a.secureCookies,
	})
}

func tokenFromRequest(r *http.Request) (string, error) {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value, nil
	}
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok && tok != "" {
			return tok, nil
		}
	}
	return "", ErrNoToken
}

// Authenticate resolves the active user behind the request's token.
func (a *Authenticator) Authenticate(r *http.Request) (*model.User, error) {
	tok, err := tokenFromRequest(r)
	if err != nil {
		return nil, err
	}
	claims, err := a.Parse(tok)
	if err != nil {
		return nil, err
	}
	u, err := a.users.GetUserByID(r.Context(), claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if u == nil || !u.Active {
		return nil, fmt.Errorf("%w: user unknown or inactive", ErrInvalidToken)
	}
	return u, nil
}

// Middleware stores the authenticated user in the request context. Requests
// without a valid token pass through anonymously.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := a.Authenticate(r)
		if err != nil {
			if !errors.Is(err, ErrNoToken) {
				slog.Debug("authentication failed", "path", r.URL.Path, "error", err)
			}
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(model.ContextWithUser(r.Context(), u)))
	})
}

// RequireUser rejects anonymous requests with 401.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if model.UserFromContext(r.Context()) == nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole returns middleware that checks the user has one of the allowed roles.
func RequireRole(allowed ...model.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := model.UserFromContext(r.Context())
			if user == nil {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			for _, role := range allowed {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "forbidden")
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, "{\"error\":%q}\n", msg)
}
