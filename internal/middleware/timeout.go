package middleware

import (
	"net/http"
	"time"

	"eventmaster-auth/pkg/apierror"
)

// Timeout bounds each request. The handler's context is cancelled when the
// deadline passes, which rolls back any open store transaction.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	message := `{"success":false,"error":{"code":"` + apierror.CodeTimeout + `","message":"request timed out"}}`

	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, timeout, message)
	}
}
