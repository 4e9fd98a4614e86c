package middleware

import (
	"context"
	"net/http"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/user"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/handler/http/response"
	"github.com/go-chi/jwtauth/v5"
)

type actorKey struct{}

// WithActor stores the resolved actor on the context.
func WithActor(ctx context.Context, actor user.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the actor resolved by AuthRequired.
func ActorFromContext(ctx context.Context) (user.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(user.Actor)
	return actor, ok
}

// AuthRequired accepts verified access tokens only and resolves the caller's
// capabilities once, from the role claim.
func AuthRequired(ja *jwtauth.JWTAuth) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			token, claims, err := jwtauth.FromContext(r.Context())
			if err != nil {
				response.Unauthorized(w, err.Error())
				return
			}

			if token == nil {
				response.HandleError(w, user.ErrInvalidToken)
				return
			}

			tokenType, ok := claims["type"].(string)
			if tokenType != "access" || !ok {
				response.HandleError(w, user.ErrInvalidToken)
				return
			}

			userID, _ := claims["user_id"].(string)
			roleStr, _ := claims["role"].(string)
			if userID == "" || roleStr == "" {
				response.HandleError(w, user.ErrInvalidToken)
				return
			}

			companyID, _ := claims["company_id"].(string)
			if companyID == "" {
				response.HandleError(w, user.ErrNoCompany)
				return
			}

			actor := user.NewActor(userID, companyID, user.Role(roleStr))
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		}
		return http.HandlerFunc(hfn)
	}
}
