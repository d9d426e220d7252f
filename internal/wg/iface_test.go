package wg

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"wgfleet/internal/models"
)

func TestInterfaceController_ApplyPersists(t *testing.T) {
	r := newFakeRunner(map[string]reply{
		"wg set wg0 peer PUB allowed-ips 10.0.0.7/32": {},
		"wg-quick save wg0": {},
	})
	c := NewInterfaceController(r, Tools{}, true)
	require.NoError(t, c.ApplyPeer(context.Background(), "wg0", "PUB", "10.0.0.7"))
	require.Equal(t, []string{"wg set wg0 peer PUB allowed-ips 10.0.0.7/32", "wg-quick save wg0"}, r.argvs())
}

func TestInterfaceController_RemoveWithoutPersist(t *testing.T) {
	r := newFakeRunner(map[string]reply{"wg set wg0 peer PUB remove": {}})
	c := NewInterfaceController(r, Tools{}, false)
	require.NoError(t, c.RemovePeer(context.Background(), "wg0", "PUB"))
	require.Equal(t, []string{"wg set wg0 peer PUB remove"}, r.argvs())
}

func TestInterfaceController_Failures(t *testing.T) {
	r := newFakeRunner(map[string]reply{
		"wg set wg0 peer PUB allowed-ips fd00::5/128": {},
		"wg-quick save wg0": {err: exitErr(1, "wg-quick: `wg0' is not a WireGuard interface")},
	})
	c := NewInterfaceController(r, Tools{}, true)
	err := c.ApplyPeer(context.Background(), "wg0", "PUB", "fd00::5")
	require.ErrorIs(t, err, models.ErrInterfaceCommand)
	require.Contains(t, err.Error(), "not a WireGuard interface")

	err = c.RemovePeer(context.Background(), "wg0", "OTHER")
	require.ErrorIs(t, err, models.ErrInterfaceCommand)

	err = c.ApplyPeer(context.Background(), "wg0", "PUB", "bogus")
	require.ErrorIs(t, err, models.ErrInvalidInput)
}
