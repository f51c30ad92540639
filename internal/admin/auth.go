package admin

import (
	"crypto/subtle"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/proconsa/erp-bridge/internal/platform/httpx"
)

// basicAuth guards the API with a single operator credential. The password is
// stored as a bcrypt hash, never plaintext, so a leaked env dump stays useless.
func (s *Server) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || s.cfg.PasswordHash == "" {
			unauthorized(w)
			return
		}
		userOK := subtle.ConstantTimeCompare([]byte(user), []byte(s.cfg.User)) == 1
		passOK := bcrypt.CompareHashAndPassword([]byte(s.cfg.PasswordHash), []byte(pass)) == nil
		if !userOK || !passOK {
			unauthorized(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="erp-bridge"`)
	httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
}
