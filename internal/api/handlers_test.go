package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"wgfleet/internal/controller"
	"wgfleet/internal/logs"
	"wgfleet/internal/middleware"
	"wgfleet/internal/models"
	"wgfleet/internal/peers"
	"wgfleet/internal/repo"
)

type stubService struct {
	listFn     func(context.Context, string) ([]peers.PeerView, error)
	getFn      func(context.Context, string) (*peers.PeerView, error)
	transferFn func(context.Context, string) (models.TransferSnapshot, error)
	createFn   func(context.Context, string, string, peers.CreatePeerInput) (*models.Peer, error)
	updateFn   func(context.Context, string, string, peers.UpdatePeerInput) (*models.Peer, error)
	deleteFn   func(context.Context, string, string) error
	renderFn   func(context.Context, string) ([]byte, error)
	bundleFn   func(context.Context, string) ([]byte, error)
}

func (s stubService) List(ctx context.Context, owner string) ([]peers.PeerView, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, owner)
}

func (s stubService) Get(ctx context.Context, id string) (*peers.PeerView, error) {
	if s.getFn == nil {
		return &peers.PeerView{}, nil
	}
	return s.getFn(ctx, id)
}

func (s stubService) Transfer(ctx context.Context, id string) (models.TransferSnapshot, error) {
	if s.transferFn == nil {
		return models.DefaultTransfer(), nil
	}
	return s.transferFn(ctx, id)
}

func (s stubService) Create(ctx context.Context, actor, owner string, in peers.CreatePeerInput) (*models.Peer, error) {
	if s.createFn == nil {
		return &models.Peer{}, nil
	}
	return s.createFn(ctx, actor, owner, in)
}

func (s stubService) Update(ctx context.Context, actor, id string, in peers.UpdatePeerInput) (*models.Peer, error) {
	if s.updateFn == nil {
		return &models.Peer{}, nil
	}
	return s.updateFn(ctx, actor, id, in)
}

func (s stubService) Delete(ctx context.Context, actor, id string) error {
	if s.deleteFn == nil {
		return nil
	}
	return s.deleteFn(ctx, actor, id)
}

func (s stubService) RenderConfig(ctx context.Context, id string) ([]byte, error) {
	if s.renderFn == nil {
		return nil, nil
	}
	return s.renderFn(ctx, id)
}

func (s stubService) RenderBundle(ctx context.Context, owner string) ([]byte, error) {
	if s.bundleFn == nil {
		return nil, nil
	}
	return s.bundleFn(ctx, owner)
}

type stubPool struct{ stats repo.PoolStats }

func (s stubPool) PoolStats(context.Context) (repo.PoolStats, error) { return s.stats, nil }

type stubReconciler struct{ err error }

func (s stubReconciler) Reconcile(context.Context) (controller.Report, error) {
	return controller.Report{Interface: "wg0", Applied: []string{"k1"}}, s.err
}

func newRouter(svc stubService, secret string) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.RequestID)
	h := NewHandler(svc, stubPool{stats: repo.PoolStats{Subnet: "10.0.0.0/24", Total: 253, Assigned: 2}}, stubReconciler{}, logs.Discard())
	RegisterRoutes(r, h, secret)
	return r
}

func do(r http.Handler, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

var asAlice = map[string]string{ActorHeader: "alice"}

func problem(t *testing.T, rec *httptest.ResponseRecorder) models.Problem {
	t.Helper()
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	var p models.Problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return p
}

func TestListPeers_OwnerResolution(t *testing.T) {
	var owners []string
	svc := stubService{listFn: func(_ context.Context, owner string) ([]peers.PeerView, error) {
		owners = append(owners, owner)
		return []peers.PeerView{{
			Peer:             models.Peer{ID: "p1", Name: "laptop"},
			TransferSnapshot: models.TransferSnapshot{RX: 1, TX: 2, Endpoint: models.EndpointUnknown},
		}}, nil
	}}
	r := newRouter(svc, "")

	rec := do(r, http.MethodGet, "/api/v1/peers?user_id=u1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	do(r, http.MethodGet, "/api/v1/peers", "", asAlice)
	do(r, http.MethodGet, "/api/v1/peers/users/u2", "", nil)
	require.Equal(t, []string{"u1", "alice", "u2"}, owners)

	var body []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "laptop", body[0]["peer_name"])
	require.Equal(t, "never", body[0]["latest_handshake"])
	require.Equal(t, "unknown", body[0]["endpoint"])
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: peer x", models.ErrNotFound), http.StatusNotFound},
		{models.ErrInvalidInput, http.StatusBadRequest},
		{models.ErrPoolExhausted, http.StatusConflict},
		{models.ErrConstraintViolation, http.StatusConflict},
		{models.ErrServerNotConfigured, http.StatusServiceUnavailable},
		{models.ErrTelemetryUnavailable, http.StatusServiceUnavailable},
		{models.ErrMalformedListing, http.StatusBadGateway},
		{models.ErrKeyGeneration, http.StatusInternalServerError},
		{models.ErrInterfaceCommand, http.StatusBadGateway},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		t.Run(c.err.Error(), func(t *testing.T) {
			svc := stubService{getFn: func(context.Context, string) (*peers.PeerView, error) { return nil, c.err }}
			rec := do(newRouter(svc, ""), http.MethodGet, "/api/v1/peers/abc", "", nil)
			require.Equal(t, c.status, rec.Code)
			p := problem(t, rec)
			require.Equal(t, c.status, p.Status)
			require.NotEmpty(t, rec.Header().Get("X-Request-Id"))
		})
	}
}

func TestCreatePeer(t *testing.T) {
	var got peers.CreatePeerInput
	var gotActor, gotOwner string
	svc := stubService{createFn: func(_ context.Context, actor, owner string, in peers.CreatePeerInput) (*models.Peer, error) {
		got, gotActor, gotOwner = in, actor, owner
		return &models.Peer{ID: "p1", UserID: owner, Name: in.Name, AssignedIP: "10.0.0.7"}, nil
	}}
	r := newRouter(svc, "")

	rec := do(r, http.MethodPost, "/api/v1/peers/u1", `{"peer_name":"laptop","ip":"10.0.0.7"}`, asAlice)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "/api/v1/peers/p1", rec.Header().Get("Location"))
	require.Equal(t, peers.CreatePeerInput{Name: "laptop", RequestedAddress: "10.0.0.7"}, got)
	require.Equal(t, "alice", gotActor)
	require.Equal(t, "u1", gotOwner)

	rec = do(r, http.MethodPost, "/api/v1/peers/u1", `{"peer_name":"laptop"}`, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(r, http.MethodPost, "/api/v1/peers/u1", `{"name":"laptop"}`, asAlice)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateAndDelete(t *testing.T) {
	var upd peers.UpdatePeerInput
	deleted := ""
	svc := stubService{
		updateFn: func(_ context.Context, _, id string, in peers.UpdatePeerInput) (*models.Peer, error) {
			upd = in
			return &models.Peer{ID: id}, nil
		},
		deleteFn: func(_ context.Context, _, id string) error {
			deleted = id
			return nil
		},
	}
	r := newRouter(svc, "")

	rec := do(r, http.MethodPut, "/api/v1/peers/p1", `{"peer_name":"new"}`, asAlice)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, upd.Name)
	require.Equal(t, "new", *upd.Name)
	require.Nil(t, upd.RequestedAddress)

	rec = do(r, http.MethodDelete, "/api/v1/peers/p1", "", asAlice)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "p1", deleted)

	rec = do(r, http.MethodDelete, "/api/v1/peers/p1", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGeneratePeerConfigAndTransfer(t *testing.T) {
	svc := stubService{
		renderFn: func(_ context.Context, id string) ([]byte, error) {
			return []byte("[Interface]\nPrivateKey = x\n"), nil
		},
		transferFn: func(context.Context, string) (models.TransferSnapshot, error) {
			return models.TransferSnapshot{RX: 1024, TX: 2048, LatestHandshake: models.HandshakeAt(1699999999), Endpoint: "203.0.113.5:51820"}, nil
		},
	}
	r := newRouter(svc, "")

	rec := do(r, http.MethodPost, "/api/v1/peers/generate-peer-config/p1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Body.String(), "[Interface]")

	rec = do(r, http.MethodGet, "/api/v1/peers/transfer-data/p1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"rx":1024,"tx":2048,"latest_handshake":1699999999,"endpoint":"203.0.113.5:51820"}`, rec.Body.String())
}

func TestUserBundle(t *testing.T) {
	svc := stubService{bundleFn: func(_ context.Context, owner string) ([]byte, error) {
		return []byte("gz:" + owner), nil
	}}
	rec := do(newRouter(svc, ""), http.MethodGet, "/api/v1/peers/users/u1/bundle", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/gzip", rec.Header().Get("Content-Type"))
	require.Equal(t, "gz:u1", rec.Body.String())
}

func TestPoolAndReconcile(t *testing.T) {
	r := newRouter(stubService{}, "")

	rec := do(r, http.MethodGet, "/api/v1/pool", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"subnet":"10.0.0.0/24","total":253,"assigned":2}`, rec.Body.String())

	rec = do(r, http.MethodPost, "/api/v1/reconcile", "", asAlice)
	require.Equal(t, http.StatusOK, rec.Code)
	var rep controller.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	require.Equal(t, []string{"k1"}, rep.Applied)
}

func TestSharedSecret(t *testing.T) {
	r := newRouter(stubService{}, "s3cret")

	rec := do(r, http.MethodGet, "/api/v1/pool", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, http.StatusUnauthorized, problem(t, rec).Status)

	rec = do(r, http.MethodGet, "/api/v1/pool", "", map[string]string{"Authorization": "Bearer wrong"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(r, http.MethodGet, "/api/v1/pool", "", map[string]string{"Authorization": "Bearer s3cret"})
	require.Equal(t, http.StatusOK, rec.Code)
}
