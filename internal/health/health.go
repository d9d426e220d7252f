package health

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"wgfleet/internal/models"
)

const checkTimeout = 3 * time.Second

// Check описывает одну проверку готовности.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

// RegisterRoutes регистрирует базовый liveness.
func RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", liveness).Methods(http.MethodGet)
}

// RegisterRoutesWithChecks регистрирует liveness и readiness. /readyz отдаёт 503, пока
// хотя бы одна проверка падает.
func RegisterRoutesWithChecks(r *mux.Router, checks ...Check) {
	RegisterRoutes(r)
	r.HandleFunc("/readyz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), checkTimeout)
		defer cancel()
		res := make(map[string]string, len(checks))
		ok := true
		for _, c := range checks {
			if err := c.Fn(ctx); err != nil {
				res[c.Name] = err.Error()
				ok = false
				continue
			}
			res[c.Name] = "ok"
		}
		status := http.StatusOK
		if !ok {
			status = http.StatusServiceUnavailable
		}
		models.WriteJSON(w, status, res)
	}).Methods(http.MethodGet)
}

// DB пингует базу.
func DB(db *gorm.DB) Check {
	return Check{Name: "db", Fn: func(ctx context.Context) error {
		if db == nil {
			return errors.New("db not configured")
		}
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}}
}

// Interface проверяет, что интерфейс отвечает и имеет ключ.
func Interface(iface string, publicKey func(ctx context.Context, iface string) (string, error)) Check {
	return Check{Name: "interface", Fn: func(ctx context.Context) error {
		k, err := publicKey(ctx, iface)
		if err != nil {
			return err
		}
		if k == "" || k == "(none)" {
			return errors.New(iface + " has no private key")
		}
		return nil
	}}
}

func liveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}
