package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"cityzen/models"
	"cityzen/utils"
)

type actorKey struct{}

var (
	errMissingToken = errors.New("authorization header required")
	errBadFormat    = errors.New("invalid authorization format, expected: Bearer <token>")
	errBadToken     = errors.New("invalid or expired token")
)

// Authenticator verifies bearer tokens and puts the caller's Actor in the request context.
// Tokens are issued elsewhere; this side only checks them.
type Authenticator struct {
	jwtSecret  []byte
	adminToken string
}

// NewAuthenticator creates a new authenticator. An empty adminToken disables the static admin bearer.
func NewAuthenticator(jwtSecret, adminToken string) *Authenticator {
	return &Authenticator{jwtSecret: []byte(jwtSecret), adminToken: adminToken}
}

// WithActor stores actor in ctx.
func WithActor(ctx context.Context, actor models.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the actor set by one of the Require middlewares.
func ActorFromContext(ctx context.Context) (models.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(models.Actor)
	return actor, ok
}

// RequireCitizen rejects authority and admin tokens.
func (a *Authenticator) RequireCitizen(next http.Handler) http.Handler {
	return a.require(next, models.ActorCitizen)
}

// RequireAuthority accepts only authority-scoped tokens.
func (a *Authenticator) RequireAuthority(next http.Handler) http.Handler {
	return a.require(next, models.ActorAuthority)
}

// RequireAdmin accepts the static ADMIN_TOKEN or an admin JWT.
func (a *Authenticator) RequireAdmin(next http.Handler) http.Handler {
	return a.require(next, models.ActorAdmin)
}

// RequireAny accepts any valid token.
func (a *Authenticator) RequireAny(next http.Handler) http.Handler {
	return a.require(next)
}

func (a *Authenticator) require(next http.Handler, allowed ...models.ActorType) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, err := a.authenticate(r)
		if err != nil {
			respondWithError(w, http.StatusUnauthorized, "Unauthorized", err.Error())
			return
		}
		if len(allowed) > 0 && !permitted(actor.Type, allowed) {
			respondWithError(w, http.StatusForbidden, "Forbidden", fmt.Sprintf("%s token not accepted for this endpoint", actor.Type))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

func permitted(t models.ActorType, allowed []models.ActorType) bool {
	for _, a := range allowed {
		if a == t {
			return true
		}
	}
	return false
}

func (a *Authenticator) authenticate(r *http.Request) (models.Actor, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return models.Actor{}, errMissingToken
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return models.Actor{}, errBadFormat
	}
	tokenString := parts[1]

	if a.adminToken != "" && subtle.ConstantTimeCompare([]byte(tokenString), []byte(a.adminToken)) == 1 {
		return models.AdminActor("admin"), nil
	}
	if len(a.jwtSecret) == 0 {
		return models.Actor{}, errBadToken
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.jwtSecret, nil
	}, jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return models.Actor{}, errBadToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return models.Actor{}, errBadToken
	}
	return actorFromClaims(claims)
}

func actorFromClaims(claims jwt.MapClaims) (models.Actor, error) {
	actorType, _ := claims[utils.ClaimActorType].(string)
	switch models.ActorType(actorType) {
	case models.ActorCitizen:
		uid, _ := claims[utils.ClaimCitizenUID].(string)
		if uid == "" {
			return models.Actor{}, errors.New("invalid token: citizen_uid not found")
		}
		return models.CitizenActor(uid), nil
	case models.ActorAuthority:
		id, ok := claims[utils.ClaimAuthorityID].(float64)
		if !ok || id <= 0 {
			return models.Actor{}, errors.New("invalid token: authority_id not found")
		}
		officer, _ := claims[utils.ClaimOfficer].(string)
		return models.AuthorityActor(int64(id), officer), nil
	case models.ActorAdmin:
		adminID, _ := claims[utils.ClaimAdminID].(string)
		if adminID == "" {
			return models.Actor{}, errors.New("invalid token: admin_id not found")
		}
		return models.AdminActor(adminID), nil
	}
	return models.Actor{}, errors.New("invalid token: unknown actor type")
}

// Helper function for error responses
func respondWithError(w http.ResponseWriter, statusCode int, errorType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(models.ErrorResponse{Error: errorType, Message: message, Code: statusCode})
}
