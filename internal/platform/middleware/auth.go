package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/platform/httputil"
	"custodia/pkg/requestcontext"
)

// PartyVerifier turns a bearer token into an authenticated party address.
// Signature verification of ledger transactions happens upstream; by the time
// a request reaches this service the gateway has exchanged proof of key
// ownership for a signed JWT whose subject is the party's address.
type PartyVerifier interface {
	Verify(token string) (id.PartyID, error)
}

// JWTVerifier validates HS256 tokens issued by the gateway.
type JWTVerifier struct {
	signingKey []byte
}

func NewJWTVerifier(signingKey string) *JWTVerifier {
	return &JWTVerifier{signingKey: []byte(signingKey)}
}

func (v *JWTVerifier) Verify(tokenString string) (id.PartyID, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid bearer token")
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", dErrors.New(dErrors.CodeUnauthorized, "token has no subject")
	}
	party, err := id.ParsePartyID(subject)
	if err != nil {
		return "", dErrors.New(dErrors.CodeUnauthorized, "token subject is not a valid party address")
	}
	return party, nil
}

// RequireParty rejects requests without a verifiable party identity and
// injects the party address into the request context for services.
func RequireParty(verifier PartyVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			tokenString, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || tokenString == "" {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
				return
			}

			party, err := verifier.Verify(tokenString)
			if err != nil {
				logger.WarnContext(r.Context(), "authentication failed",
					"request_id", requestcontext.RequestID(r.Context()),
					"error", err.Error(),
				)
				httputil.WriteError(w, err)
				return
			}

			ctx := requestcontext.WithParty(r.Context(), party)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
