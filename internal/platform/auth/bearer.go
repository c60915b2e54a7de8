package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// BearerAuthenticator authenticates requests by a shared static token.
// An empty token disables authentication; every request is then attributed
// to the anonymous subject. Deployed services are expected to set a token.
type BearerAuthenticator struct {
	token   string
	subject string
}

const anonymousSubject = "anonymous"

func NewBearerAuthenticator(token string) *BearerAuthenticator {
	return &BearerAuthenticator{
		token:   strings.TrimSpace(token),
		subject: "token-bearer",
	}
}

func (a *BearerAuthenticator) Enabled() bool {
	return a != nil && a.token != ""
}

func (a *BearerAuthenticator) Authenticate(r *http.Request) (Identity, error) {
	if !a.Enabled() {
		return Identity{Subject: anonymousSubject}, nil
	}

	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return Identity{}, ErrUnauthenticated
	}
	presented := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if presented == "" {
		return Identity{}, ErrUnauthenticated
	}
	if subtle.ConstantTimeCompare([]byte(presented), []byte(a.token)) != 1 {
		return Identity{}, ErrUnauthenticated
	}
	return Identity{Subject: a.subject}, nil
}

// Middleware rejects unauthenticated requests and stores the identity in the
// request context for handlers. Paths under skipPrefixes (health probes)
// bypass authentication.
func Middleware(a *BearerAuthenticator, next http.Handler, skipPrefixes ...string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, prefix := range skipPrefixes {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}
		identity, err := a.Authenticate(r)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthenticated"}` + "\n"))
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), identity)))
	})
}
