package repo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"wgfleet/internal/db/dbtest"
	"wgfleet/internal/models"
)

func TestServerStore_ResolveMissing(t *testing.T) {
	s := NewServerStore(dbtest.Open(t))
	_, err := s.Resolve(context.Background())
	require.ErrorIs(t, err, models.ErrServerNotConfigured)
}

func TestServerStore_ProvisionAndResolve(t *testing.T) {
	s := NewServerStore(dbtest.Open(t))
	ctx := context.Background()
	in := models.ServerIdentity{InterfaceName: "wg0", PublicKey: "srv", ServerIPs: "10.0.0.1/24"}

	_, err := s.Provision(ctx, in, false)
	require.NoError(t, err)

	got, err := s.Resolve(ctx)
	require.NoError(t, err)
	require.Equal(t, "wg0", got.InterfaceName)
	sub, err := got.Subnet()
	require.NoError(t, err)
	require.Equal(t, "10.0.0.0/24", sub)

	_, err = s.Provision(ctx, in, false)
	require.ErrorIs(t, err, ErrServerExists)

	in.PublicKey = "srv2"
	_, err = s.Provision(ctx, in, true)
	require.NoError(t, err)
	got, err = s.Resolve(ctx)
	require.NoError(t, err)
	require.Equal(t, "srv2", got.PublicKey)
}

func TestServerStore_ProvisionRejectsBadCIDR(t *testing.T) {
	s := NewServerStore(dbtest.Open(t))
	_, err := s.Provision(context.Background(), models.ServerIdentity{InterfaceName: "wg0", ServerIPs: "nope"}, false)
	require.ErrorIs(t, err, models.ErrInvalidInput)
}
