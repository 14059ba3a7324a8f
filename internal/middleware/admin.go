package middleware

import (
	"net/http"

	"github.com/mmeshcher/coffeevend-system/internal/admin"
)

// AdminAuth ограничивает доступ административными учётными записями через
// HTTP Basic Auth, делегируя проверку внедрённому admin.Verifier.
func AdminAuth(verifier admin.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			login, password, ok := r.BasicAuth()
			if !ok || verifier == nil || !verifier.Verify(login, password) {
				w.Header().Set("WWW-Authenticate", `Basic realm="coffeevend admin"`)
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
