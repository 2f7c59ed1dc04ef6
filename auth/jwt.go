package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/golang-jwt/jwt/v5/request"
	"github.com/google/uuid"
	"github.com/programme-lv/streaks/httpjson"
	"github.com/programme-lv/streaks/srvcerror"
)

const ScopeAdmin = "admin"

type JwtClaims struct {
	Username string   `json:"username,omitempty"`
	Email    string   `json:"email,omitempty"`
	UUID     string   `json:"uuid,omitempty"`
	Scopes   []string `json:"scopes,omitempty"`
	jwt.RegisteredClaims
}

func (c *JwtClaims) UserID() (uuid.UUID, error) {
	return uuid.Parse(c.UUID)
}

func (c *JwtClaims) HasScope(scope string) bool {
	return slices.Contains(c.Scopes, scope)
}

type ClaimsKeyType string

var CtxJwtClaimsKey ClaimsKeyType = "jwtClaims"

// GenerateJWT issues tokens for tests and the CLI; login lives elsewhere.
func GenerateJWT(username, email string, id uuid.UUID, scopes []string, jwtKey []byte, ttl time.Duration) (string, error) {
	claims := &JwtClaims{
		Username:         username,
		Email:            email,
		UUID:             id.String(),
		Scopes:           scopes,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl))},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtKey)
}

func ValidateJWT(tokenStr string, jwtKey []byte) (*JwtClaims, error) {
	claims := &JwtClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return jwtKey, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrSignatureInvalid) {
			return nil, errors.New("invalid token signature")
		}
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	return claims, nil
}

// GetJwtAuthMiddleware validates JWT token and adds the claims to the request context.
// Requests without a token pass through with nil claims.
func GetJwtAuthMiddleware(jwtKey []byte) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			token, err := request.BearerExtractor{}.ExtractToken(r)
			if err != nil {
				if errors.Is(err, request.ErrNoTokenInRequest) {
					ctx := context.WithValue(r.Context(), CtxJwtClaimsKey, (*JwtClaims)(nil))
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
				httpjson.HandleError(slog.Default(), w, srvcerror.ErrUnauthorized().SetDebug(err))
				return
			}

			claims, err := ValidateJWT(token, jwtKey)
			if err != nil {
				httpjson.HandleError(slog.Default(), w, srvcerror.ErrUnauthorized().SetDebug(err))
				return
			}

			ctx := context.WithValue(r.Context(), CtxJwtClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		}
		return http.HandlerFunc(hfn)
	}
}

func ClaimsFromContext(ctx context.Context) *JwtClaims {
	claims, _ := ctx.Value(CtxJwtClaimsKey).(*JwtClaims)
	return claims
}

// RequireUser rejects requests without valid claims.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ClaimsFromContext(r.Context()) == nil {
			httpjson.HandleError(slog.Default(), w, srvcerror.ErrUnauthorized())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				httpjson.HandleError(slog.Default(), w, srvcerror.ErrUnauthorized())
				return
			}
			if !claims.HasScope(scope) {
				httpjson.HandleError(slog.Default(), w, srvcerror.ErrForbidden())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
