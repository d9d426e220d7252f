package wg

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"wgfleet/internal/models"
)

func telemetryRunner(transfer, handshakes, endpoints string) *fakeRunner {
	return newFakeRunner(map[string]reply{
		"wg show wg0 transfer":          {out: transfer},
		"wg show wg0 latest-handshakes": {out: handshakes},
		"wg show wg0 endpoints":         {out: endpoints},
	})
}

func TestSnapshot_ParsesListings(t *testing.T) {
	r := telemetryRunner(
		"pubA\t1024\t2048\npubB\t1\t2\n",
		"pubA\t1699999999\npubB\t0\n",
		"pubA\t203.0.113.5:51820\npubB\t(none)\n",
	)
	snap, err := NewTelemetryReader(r, Tools{}).Snapshot(context.Background(), "wg0")
	require.NoError(t, err)

	require.Equal(t, models.TransferSnapshot{
		RX:              1024,
		TX:              2048,
		LatestHandshake: models.HandshakeAt(1699999999),
		Endpoint:        "203.0.113.5:51820",
	}, snap["pubA"])
	require.Equal(t, "(none)", snap["pubB"].Endpoint)

	require.Equal(t, models.TransferSnapshot{Endpoint: "unknown"}, Lookup(snap, "pubZ"))
	require.Equal(t, "never", Lookup(snap, "pubZ").LatestHandshake.String())
}

func TestSnapshot_PartialListingsKeepDefaults(t *testing.T) {
	r := telemetryRunner("", "pubA off\n", "pubA 198.51.100.1:4000\n")
	snap, err := NewTelemetryReader(r, Tools{}).Snapshot(context.Background(), "wg0")
	require.NoError(t, err)
	got := snap["pubA"]
	require.Zero(t, got.RX)
	require.Zero(t, got.TX)
	require.False(t, got.LatestHandshake.Valid, "non-numeric handshake is never")
	require.Equal(t, "198.51.100.1:4000", got.Endpoint)
}

func TestSnapshot_CommandFailureFailsWhole(t *testing.T) {
	r := newFakeRunner(map[string]reply{
		"wg show wg0 transfer":          {out: "pubA 1 2\n"},
		"wg show wg0 latest-handshakes": {err: exitErr(1, "Unable to access interface: No such device")},
	})
	snap, err := NewTelemetryReader(r, Tools{}).Snapshot(context.Background(), "wg0")
	require.ErrorIs(t, err, models.ErrTelemetryUnavailable)
	require.Nil(t, snap)
}

func TestSnapshot_MalformedFailsFast(t *testing.T) {
	cases := map[string]*fakeRunner{
		"too few transfer fields":  telemetryRunner("pubA 1\n", "", ""),
		"too many endpoint fields": telemetryRunner("", "", "pubA 1.2.3.4:5 extra\n"),
		"non-integer counter":      telemetryRunner("pubA 1k 2\n", "", ""),
		"duplicate key":            telemetryRunner("pubA 1 2\npubA 3 4\n", "", ""),
	}
	for name, r := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewTelemetryReader(r, Tools{}).Snapshot(context.Background(), "wg0")
			require.ErrorIs(t, err, models.ErrMalformedListing)
			require.ErrorIs(t, err, models.ErrTelemetryUnavailable)
		})
	}
}

func TestPeersAndPublicKey(t *testing.T) {
	r := newFakeRunner(map[string]reply{
		"wg show wg0 allowed-ips": {out: "pubA\t10.0.0.2/32\npubB\t(none)\npubC\t10.0.0.4/32 fd00::4/128\n"},
		"wg show wg0 public-key":  {out: "SRV=\n"},
	})
	tr := NewTelemetryReader(r, Tools{})
	peers, err := tr.Peers(context.Background(), "wg0")
	require.NoError(t, err)
	sort.Slice(peers, func(i, j int) bool { return peers[i].PublicKey < peers[j].PublicKey })
	require.Equal(t, []LivePeer{
		{PublicKey: "pubA", AllowedIPs: []string{"10.0.0.2/32"}},
		{PublicKey: "pubB"},
		{PublicKey: "pubC", AllowedIPs: []string{"10.0.0.4/32", "fd00::4/128"}},
	}, peers)

	pk, err := tr.PublicKey(context.Background(), "wg0")
	require.NoError(t, err)
	require.Equal(t, "SRV=", pk)
}
