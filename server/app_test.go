package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"wgfleet/config"
	"wgfleet/internal/logs"
	"wgfleet/internal/models"
)

const serverKey = "yAnz5TF+lXXJte14tji3zlMNq+hd2rYUIgJBgB3fBmk="

// scriptRunner отвечает вместо утилит wg и wg-quick.
type scriptRunner struct {
	mu    sync.Mutex
	calls []string
}

func (s *scriptRunner) Run(_ context.Context, _ []byte, name string, args ...string) ([]byte, error) {
	line := strings.Join(append([]string{name}, args...), " ")
	s.mu.Lock()
	s.calls = append(s.calls, line)
	s.mu.Unlock()
	if strings.HasSuffix(line, " public-key") {
		return []byte(serverKey + "\n"), nil
	}
	return nil, nil
}

func (s *scriptRunner) has(prefix string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.calls {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Server.Address, cfg.Server.HTTPPort = "127.0.0.1", "0"
	cfg.Logging.Level = "error"
	cfg.Database.Driver = "sqlite"
	cfg.Database.DSN = filepath.Join(dir, "db", "registry.db")
	cfg.WireGuard.Interface = "wg0"
	cfg.WireGuard.Keygen = "native"
	cfg.WireGuard.Inspector = "exec"
	cfg.WireGuard.Persist = true
	cfg.Client.Endpoint = "vpn.example.com:51820"
	cfg.Client.AllowedIPs = "0.0.0.0/0"
	cfg.Client.Keepalive = 25
	cfg.Reconcile.JournalDir = filepath.Join(dir, "intents")
	cfg.Telemetry.Strict = true
	return cfg
}

func call(a *App, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("X-Actor", "admin")
	rec := httptest.NewRecorder()
	a.Router.ServeHTTP(rec, req)
	return rec
}

func TestApp_EndToEnd(t *testing.T) {
	run := &scriptRunner{}
	a := &App{Runner: run}
	require.NoError(t, a.Initialize(testConfig(t)))
	t.Cleanup(a.Close)
	ctx := context.Background()

	rec := call(a, http.MethodPost, "/api/v1/peers/u1", `{"peer_name":"laptop"}`)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code, "server not provisioned")

	srv, n, err := a.InitServer(ctx, "10.9.0.1/29", "", false)
	require.NoError(t, err)
	require.Equal(t, serverKey, srv.PublicKey)
	require.Equal(t, 5, n)

	_, _, err = a.InitServer(ctx, "10.9.0.1/29", "", false)
	require.Error(t, err, "second init without force")

	_, err = a.SeedPool(ctx, "10.10.0.0/24")
	require.ErrorIs(t, err, models.ErrInvalidInput)

	rec = call(a, http.MethodPost, "/api/v1/peers/u1", `{"peer_name":"laptop"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var p models.Peer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	require.Equal(t, "10.9.0.2", p.AssignedIP)
	require.True(t, run.has("wg set wg0 peer "+p.PublicKey+" allowed-ips 10.9.0.2/32"))
	require.True(t, run.has("wg-quick save wg0"))

	rec = call(a, http.MethodGet, "/api/v1/pool", "")
	require.JSONEq(t, `{"subnet":"10.9.0.0/29","total":5,"assigned":1}`, rec.Body.String())

	rec = call(a, http.MethodPost, "/api/v1/peers/generate-peer-config/"+p.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Address = 10.9.0.2/29\n")
	require.Contains(t, rec.Body.String(), "PublicKey = "+serverKey+"\n")
	require.Contains(t, rec.Body.String(), "PersistentKeepalive = 25\n")

	rec = call(a, http.MethodGet, "/api/v1/peers/"+p.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"latest_handshake":"never"`)

	rep, err := a.Reconcile(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{p.PublicKey}, rep.Applied, "wg show reports nothing, so the peer is re-applied")

	rec = call(a, http.MethodDelete, "/api/v1/peers/"+p.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, run.has("wg set wg0 peer "+p.PublicKey+" remove"))

	rec = call(a, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	pending, err := a.Journal.Pending()
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestApp_InitServerForceWarnsAboutCachedIdentity(t *testing.T) {
	cfg := testConfig(t)
	cfg.Logging.Level = "warn"
	a := &App{Runner: &scriptRunner{}}
	require.NoError(t, a.Initialize(cfg))
	t.Cleanup(a.Close)
	hook := logtest.NewLocal(logs.Logger)
	ctx := context.Background()

	_, _, err := a.InitServer(ctx, "10.9.0.1/29", "", false)
	require.NoError(t, err)
	require.Empty(t, hook.AllEntries())

	srv, _, err := a.InitServer(ctx, "10.9.0.1/29", "", true)
	require.NoError(t, err)
	require.Equal(t, serverKey, srv.PublicKey)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	require.Equal(t, logrus.WarnLevel, entry.Level)
	require.Contains(t, entry.Message, "restart")
	require.Equal(t, "wg0", entry.Data["iface"])
}
