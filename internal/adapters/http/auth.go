package httpadapter

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kirillkom/care-records/internal/core/domain"
)

type callerContextKey struct{}

func callerFromContext(ctx context.Context) (domain.Caller, bool) {
	caller, ok := ctx.Value(callerContextKey{}).(domain.Caller)
	return caller, ok
}

// bearerAuth turns an HS256 token minted by the account service into the
// caller identity. The token subject is the caller id.
type bearerAuth struct {
	secret []byte
	opts   []jwt.ParserOption
}

func newBearerAuth(secret, issuer string) *bearerAuth {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &bearerAuth{secret: []byte(secret), opts: opts}
}

func (a *bearerAuth) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, err := a.authenticate(r.Header.Get("Authorization"))
		if err != nil {
			writeError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), callerContextKey{}, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *bearerAuth) authenticate(header string) (domain.Caller, error) {
	if len(a.secret) == 0 {
		return domain.Caller{}, domain.WrapError(domain.ErrUnauthorized, "authenticate", errors.New("token verification is not configured"))
	}
	raw, ok := bearerToken(header)
	if !ok {
		return domain.Caller{}, domain.WrapError(domain.ErrUnauthorized, "authenticate", errors.New("missing bearer token"))
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, a.opts...)
	if err != nil {
		return domain.Caller{}, domain.WrapError(domain.ErrUnauthorized, "authenticate", err)
	}

	caller := domain.Caller{ID: strings.TrimSpace(claims.Subject)}
	if err := caller.Validate(); err != nil {
		return domain.Caller{}, err
	}
	return caller, nil
}

func bearerToken(headerValue string) (string, bool) {
	headerValue = strings.TrimSpace(headerValue)
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(headerValue, bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(headerValue, bearerPrefix))
	return token, token != ""
}
