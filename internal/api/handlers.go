package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"wgfleet/internal/controller"
	"wgfleet/internal/middleware"
	"wgfleet/internal/models"
	"wgfleet/internal/peers"
	"wgfleet/internal/repo"
)

const maxBody = 1 << 20

type PeerService interface {
	List(ctx context.Context, owner string) ([]peers.PeerView, error)
	Get(ctx context.Context, id string) (*peers.PeerView, error)
	Transfer(ctx context.Context, id string) (models.TransferSnapshot, error)
	Create(ctx context.Context, actor, owner string, in peers.CreatePeerInput) (*models.Peer, error)
	Update(ctx context.Context, actor, id string, in peers.UpdatePeerInput) (*models.Peer, error)
	Delete(ctx context.Context, actor, id string) error
	RenderConfig(ctx context.Context, id string) ([]byte, error)
	RenderBundle(ctx context.Context, owner string) ([]byte, error)
}

type PoolReporter interface {
	PoolStats(ctx context.Context) (repo.PoolStats, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context) (controller.Report, error)
}

type Handler struct {
	peers PeerService
	pool  PoolReporter
	rec   Reconciler
	log   logrus.FieldLogger
}

func NewHandler(ps PeerService, pool PoolReporter, rec Reconciler, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{peers: ps, pool: pool, rec: rec, log: log}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, _ := models.StatusOf(err)
	l := h.log.WithFields(logrus.Fields{"reqid": middleware.GetRequestID(r), "status": status})
	if status >= http.StatusInternalServerError {
		l.WithError(err).Error(r.Method + " " + r.URL.Path)
	} else {
		l.WithError(err).Debug(r.Method + " " + r.URL.Path)
	}
	models.WriteError(w, err, map[string]any{"reqid": middleware.GetRequestID(r)})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: request body: %v", models.ErrInvalidInput, err)
	}
	return nil
}

// ---------- peers ----------

// ListPeers: владелец из ?user_id=, иначе вызывающий. Без обоих — все пиры.
func (h *Handler) ListPeers(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("user_id")
	if owner == "" {
		owner = ActorFrom(r.Context())
	}
	h.list(w, r, owner)
}

func (h *Handler) ListUserPeers(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, mux.Vars(r)["user_id"])
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, owner string) {
	views, err := h.peers.List(r.Context(), owner)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, views)
}

func (h *Handler) GetPeer(w http.ResponseWriter, r *http.Request) {
	v, err := h.peers.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, v)
}

func (h *Handler) TransferData(w http.ResponseWriter, r *http.Request) {
	s, err := h.peers.Transfer(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, s)
}

func (h *Handler) CreatePeer(w http.ResponseWriter, r *http.Request) {
	var in peers.CreatePeerInput
	if err := decode(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.peers.Create(r.Context(), ActorFrom(r.Context()), mux.Vars(r)["user_id"], in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/peers/"+p.ID)
	models.WriteJSON(w, http.StatusCreated, p)
}

func (h *Handler) UpdatePeer(w http.ResponseWriter, r *http.Request) {
	var in peers.UpdatePeerInput
	if err := decode(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.peers.Update(r.Context(), ActorFrom(r.Context()), mux.Vars(r)["id"], in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) DeletePeer(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.peers.Delete(r.Context(), ActorFrom(r.Context()), id); err != nil {
		h.fail(w, r, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, map[string]string{"message": "peer " + id + " removed"})
}

func (h *Handler) GeneratePeerConfig(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	conf, err := h.peers.RenderConfig(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+id+`.conf"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(conf)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(conf)
}

func (h *Handler) UserBundle(w http.ResponseWriter, r *http.Request) {
	owner := mux.Vars(r)["user_id"]
	arc, err := h.peers.RenderBundle(r.Context(), owner)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/gzip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", owner+"-peers.tar.gz"))
	w.Header().Set("Content-Length", strconv.Itoa(len(arc)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(arc)
}

// ---------- pool / reconcile ----------

func (h *Handler) PoolStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.pool.PoolStats(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, st)
}

func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	rep, err := h.rec.Reconcile(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.log.WithFields(logrus.Fields{"actor": ActorFrom(r.Context()), "reqid": middleware.GetRequestID(r)}).Info("reconcile requested")
	models.WriteJSON(w, http.StatusOK, rep)
}
