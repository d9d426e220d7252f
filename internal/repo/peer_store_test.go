package repo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"wgfleet/internal/db/dbtest"
	"wgfleet/internal/models"
)

func TestRegistry_UniqueViolationBecomesConstraintError(t *testing.T) {
	d := dbtest.Open(t)
	ctx := context.Background()
	srv := models.ServerIdentity{InterfaceName: "wg0", PublicKey: "srv", ServerIPs: "10.0.0.1/24"}
	require.NoError(t, d.Create(&srv).Error)

	reg := NewRegistry(d)
	p1 := &models.Peer{ID: "a", UserID: "u", ServerID: srv.ID, Name: "one", PublicKey: "pub", PrivateKey: "priv1", AssignedIP: "10.0.0.2"}
	require.NoError(t, reg.Peers.Create(ctx, p1))

	err := reg.Transaction(ctx, func(tx *Registry) error {
		return tx.Peers.Create(ctx, &models.Peer{ID: "b", UserID: "u", ServerID: srv.ID, Name: "two", PublicKey: "pub", PrivateKey: "priv2", AssignedIP: "10.0.0.3"})
	})
	require.ErrorIs(t, err, models.ErrConstraintViolation)

	got, err := reg.Peers.Get(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, got.Server)
	require.Equal(t, "srv", got.Server.PublicKey)

	_, err = reg.Peers.Get(ctx, "b")
	require.ErrorIs(t, err, models.ErrNotFound)

	require.ErrorIs(t, reg.Peers.Delete(ctx, "b"), models.ErrNotFound)
}

func TestAuditStore_AppendAndRecent(t *testing.T) {
	a := NewAuditStore(dbtest.Open(t))
	ctx := context.Background()
	require.NoError(t, a.Append(ctx, "alice", models.ActionAdded, "laptop", map[string]any{"address": "10.0.0.2"}))
	require.NoError(t, a.Append(ctx, "bob", models.ActionRemoved, "laptop", nil))

	rows, err := a.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "bob", rows[0].Actor)
	require.JSONEq(t, `{"address":"10.0.0.2"}`, string(rows[1].Details))
}
