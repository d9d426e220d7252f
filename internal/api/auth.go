package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"wgfleet/internal/models"
)

// ActorHeader ставит шлюз перед сервисом: кто выполняет запрос. Используется
// только для аудита, решения о доступе принимаются выше.
const ActorHeader = "X-Actor"

type ctxKey string

const actorKey ctxKey = "actor"

// SharedSecretAuth: Authorization: Bearer <secret>. Пустой secret отключает проверку.
func SharedSecretAuth(secret string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				next.ServeHTTP(w, r)
				return
			}
			const p = "Bearer "
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, p) ||
				subtle.ConstantTimeCompare([]byte(strings.TrimPrefix(auth, p)), []byte(secret)) != 1 {
				models.WriteProblem(w, http.StatusUnauthorized, "Unauthorized", "missing or invalid bearer token", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Actor кладёт X-Actor в контекст, если он есть.
func Actor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a := strings.TrimSpace(r.Header.Get(ActorHeader)); a != "" {
			r = r.WithContext(context.WithValue(r.Context(), actorKey, a))
		}
		next.ServeHTTP(w, r)
	})
}

func ActorFrom(ctx context.Context) string {
	s, _ := ctx.Value(actorKey).(string)
	return s
}

// requireActor нужен изменяющим запросам.
func requireActor(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ActorFrom(r.Context()) == "" {
			models.WriteProblem(w, http.StatusUnauthorized, "Unauthorized", ActorHeader+" header is required", nil)
			return
		}
		next(w, r)
	}
}
