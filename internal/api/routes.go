package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

const Prefix = "/api/v1"

// RegisterRoutes вешает API на r. Порядок важен: литеральные сегменты
// (users, transfer-data, generate-peer-config) раньше {id}.
func RegisterRoutes(r *mux.Router, h *Handler, sharedSecret string) {
	sub := r.PathPrefix(Prefix).Subrouter()
	sub.Use(SharedSecretAuth(sharedSecret), Actor)

	sub.HandleFunc("/peers", h.ListPeers).Methods(http.MethodGet)
	sub.HandleFunc("/peers/users/{user_id}", h.ListUserPeers).Methods(http.MethodGet)
	sub.HandleFunc("/peers/users/{user_id}/bundle", h.UserBundle).Methods(http.MethodGet)
	sub.HandleFunc("/peers/transfer-data/{id}", h.TransferData).Methods(http.MethodGet)
	sub.HandleFunc("/peers/generate-peer-config/{id}", h.GeneratePeerConfig).Methods(http.MethodPost)
	sub.HandleFunc("/peers/{id}", h.GetPeer).Methods(http.MethodGet)
	sub.HandleFunc("/peers/{user_id}", requireActor(h.CreatePeer)).Methods(http.MethodPost)
	sub.HandleFunc("/peers/{id}", requireActor(h.UpdatePeer)).Methods(http.MethodPut)
	sub.HandleFunc("/peers/{id}", requireActor(h.DeletePeer)).Methods(http.MethodDelete)

	sub.HandleFunc("/pool", h.PoolStats).Methods(http.MethodGet)
	sub.HandleFunc("/reconcile", requireActor(h.Reconcile)).Methods(http.MethodPost)
}
