package server

import (
	"crypto/subtle"
	"net/http"
)

// Realm is advertised in the WWW-Authenticate challenge.
const Realm = "jmapproxy"

// Authenticator decides whether a username/password pair may read the
// session.
type Authenticator interface {
	Authenticate(username, password string) bool
}

// CredentialGate accepts exactly one service credential pair.
type CredentialGate struct {
	username []byte
	password []byte
}

// NewCredentialGate returns a gate for the configured service credentials.
func NewCredentialGate(username, password string) *CredentialGate {
	return &CredentialGate{
		username: []byte(username),
		password: []byte(password),
	}
}

// Authenticate reports whether both fields match byte for byte. Both
// comparisons always run.
func (g *CredentialGate) Authenticate(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), g.username)
	passOK := subtle.ConstantTimeCompare([]byte(password), g.password)
	return userOK&passOK == 1
}

// Middleware rejects requests without valid Basic credentials with 401 and
// an empty body. next only runs for authenticated requests.
func (g *CredentialGate) Middleware(next http.Handler) http.Handler {
	return requireBasicAuth(g)(next)
}

func requireBasicAuth(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, password, ok := r.BasicAuth()
			if !ok || !auth.Authenticate(username, password) {
				w.Header().Set("WWW-Authenticate", `Basic realm="`+Realm+`"`)
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
