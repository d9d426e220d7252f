package middleware

import (
	"net/http"
	"regexp"

	"github.com/google/uuid"

	"wgfleet/internal/logs"
)

const RequestIDHeader = "X-Request-Id"

// принимаются только id, которые безопасно писать в лог и в заголовок
var validID = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// RequestID кладёт id запроса в контекст, откуда его берут логи операций над
// пирами и сверки. Невалидный или пустой входящий id заменяется новым uuid.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if !validID.MatchString(id) {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logs.WithRequestID(r.Context(), id)))
	})
}

func GetRequestID(r *http.Request) string {
	return logs.RequestID(r.Context())
}
