package httpx

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/ariefcatur/go-food-orders/internal/orders"
	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
)

const (
	RoleCustomer   = "customer"
	RoleRestaurant = "restaurant"

	HeaderInternalToken = "X-Internal-Token"
)

// Claims is the bearer token body. Subject is the user id.
type Claims struct {
	Role         string `json:"role,omitempty"`
	RestaurantID string `json:"restaurant_id,omitempty"`
	jwt.RegisteredClaims
}

type Principal struct {
	UserID       string
	Role         string
	RestaurantID string
}

type ctxKeyPrincipal struct{}

func PrincipalFrom(ctx context.Context) Principal {
	p, _ := ctx.Value(ctxKeyPrincipal{}).(Principal)
	return p
}

func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKeyPrincipal{}, p)
}

// Guards are the middlewares protecting each route group.
type Guards struct {
	User       func(http.Handler) http.Handler
	Restaurant func(http.Handler) http.Handler
	Internal   func(http.Handler) http.Handler
}

func NewGuards(jwtSecret []byte, internalToken string, log *zap.Logger) Guards {
	user := jwtAuth(jwtSecret, log)
	return Guards{
		User: user,
		Restaurant: func(next http.Handler) http.Handler {
			return user(requireRestaurant(log)(next))
		},
		Internal: internalOnly(internalToken, log),
	}
}

func jwtAuth(secret []byte, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				writeError(w, r, log, orders.ErrUnauthorized)
				return
			}
			claims := &Claims{}
			token, err := jwt.ParseWithClaims(strings.TrimPrefix(auth, "Bearer "), claims,
				func(t *jwt.Token) (interface{}, error) { return secret, nil },
				jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil || !token.Valid || claims.Subject == "" {
				writeError(w, r, log, orders.ErrUnauthorized)
				return
			}
			ctx := ContextWithPrincipal(r.Context(), Principal{
				UserID:       claims.Subject,
				Role:         claims.Role,
				RestaurantID: claims.RestaurantID,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func requireRestaurant(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := PrincipalFrom(r.Context())
			if p.Role != RoleRestaurant || p.RestaurantID == "" {
				writeError(w, r, log, orders.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// internalOnly admits callers presenting the shared internal credential. It
// never accepts user bearer tokens.
func internalOnly(token string, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(HeaderInternalToken)
			if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				log.Warn("internal call rejected", zap.String("path", r.URL.Path), zap.String("remote", r.RemoteAddr))
				writeError(w, r, log, orders.ErrUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
