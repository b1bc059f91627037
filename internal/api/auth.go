package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// Caller is the authenticated principal of a request.
type Caller struct {
	Address string
	Admin   bool
}

type callerKey struct{}

func withCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

func CallerFrom(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok
}

// Auth checks HS256 bearer tokens. The sub claim is the caller address, admin gates round
// creation and whitelist changes.
type Auth struct {
	Secret []byte
}

func GenerateToken(secret []byte, address string, admin bool, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":   address,
		"admin": admin,
		"exp":   time.Now().Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func (a Auth) parse(r *http.Request) (Caller, error) {
	header := r.Header.Get("Authorization")
	raw := strings.TrimPrefix(header, "Bearer ")
	if header == "" || raw == header {
		return Caller{}, fmt.Errorf("missing bearer token")
	}
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.Secret, nil
	})
	if err != nil {
		return Caller{}, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Caller{}, fmt.Errorf("invalid token")
	}
	sub, _ := claims["sub"].(string)
	if strings.TrimSpace(sub) == "" {
		return Caller{}, fmt.Errorf("token has no subject")
	}
	admin, _ := claims["admin"].(bool)
	return Caller{Address: sub, Admin: admin}, nil
}

// Protect rejects requests without a valid token.
func (a Auth) Protect(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := a.parse(r)
		if err != nil {
			respondWithError(w, http.StatusUnauthorized, "unauthorized: "+err.Error())
			return
		}
		next(w, r.WithContext(withCaller(r.Context(), c)))
	}
}

// Admin is Protect plus the admin claim.
func (a Auth) Admin(next http.HandlerFunc) http.HandlerFunc {
	return a.Protect(func(w http.ResponseWriter, r *http.Request) {
		if c, _ := CallerFrom(r.Context()); !c.Admin {
			respondWithError(w, http.StatusForbidden, "admin only")
			return
		}
		next(w, r)
	})
}
