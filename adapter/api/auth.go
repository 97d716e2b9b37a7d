package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	identity "github.com/felixgeelhaar/therapia/internal/identity/domain"
	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
)

// Claims are the JWT claims understood by the API. Subject is the user UUID.
type Claims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

type actorCtxKey struct{}

// WithActor stores the authenticated caller in ctx.
func WithActor(ctx context.Context, actor identity.Actor) context.Context {
	return context.WithValue(ctx, actorCtxKey{}, actor)
}

// ActorFromContext returns the caller, or the anonymous actor.
func ActorFromContext(ctx context.Context) identity.Actor {
	if actor, ok := ctx.Value(actorCtxKey{}).(identity.Actor); ok {
		return actor
	}
	return identity.Actor{}
}

// IssueToken signs an HS256 token for userID. It is used by `therapia token`
// and tests.
func IssueToken(secret string, userID uuid.UUID, roles []identity.Role, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is empty")
	}
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, string(r))
	}
	now := time.Now()
	claims := Claims{
		Roles: names,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// parseToken validates an HS256 token and returns the actor it names.
func parseToken(secret, tokenString string) (identity.Actor, error) {
	if secret == "" {
		return identity.Actor{}, errors.New("jwt secret not configured")
	}
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil {
		return identity.Actor{}, err
	}
	if !token.Valid {
		return identity.Actor{}, jwt.ErrTokenInvalidClaims
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil || userID == uuid.Nil {
		return identity.Actor{}, errors.New("subject is not a user id")
	}
	return identity.Actor{UserID: userID, Roles: identity.ParseRoles(claims.Roles)}, nil
}

// authenticate resolves the bearer token into an actor. Requests without a
// token continue anonymously; the use cases decide what anonymous callers
// may do.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(tokenString) == "" {
			s.writeError(w, r, errInvalidToken.WithMessage("authorization header must be a bearer token"))
			return
		}
		actor, err := parseToken(s.jwtSecret, strings.TrimSpace(tokenString))
		if err != nil {
			s.logger.DebugContext(r.Context(), "token rejected", "error", err)
			s.writeError(w, r, errInvalidToken)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

// requireAdmin rejects callers without an owner, assistant or editor role.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := ActorFromContext(r.Context())
		if actor.IsAnonymous() {
			s.writeError(w, r, errInvalidToken.WithMessage("authentication required"))
			return
		}
		if !actor.IsAdmin() {
			s.writeError(w, r, sharedDomain.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
