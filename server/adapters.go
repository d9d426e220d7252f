package server

import (
	"context"

	"wgfleet/config"
	"wgfleet/internal/peers"
	"wgfleet/internal/repo"
	"wgfleet/internal/wg"
)

func toolsFrom(cfg *config.Config) wg.Tools {
	return wg.Tools{WG: cfg.WireGuard.WGBin, WGQuick: cfg.WireGuard.WGQuickBin}
}

// wireguard.keygen: exec — утилита wg, native — wgtypes.
func newKeyGenerator(cfg *config.Config, r wg.Runner, tools wg.Tools) peers.KeyGenerator {
	if cfg.WireGuard.Keygen == "native" {
		return wg.NativeKeyGenerator{}
	}
	return wg.NewExecKeyGenerator(r, tools)
}

// wireguard.inspector: exec — `wg show`, wgctrl — netlink.
func newInspector(cfg *config.Config, tel *wg.TelemetryReader) wg.Inspector {
	if cfg.WireGuard.Inspector == "wgctrl" {
		return wg.NewDeviceInspector()
	}
	return tel
}

// poolReporter отдаёт статистику пула подсети сервера.
type poolReporter struct{ app *App }

func (p *poolReporter) PoolStats(ctx context.Context) (repo.PoolStats, error) {
	srv, err := p.app.Servers.Resolve(ctx)
	if err != nil {
		return repo.PoolStats{}, err
	}
	subnet, err := srv.Subnet()
	if err != nil {
		return repo.PoolStats{}, err
	}
	return p.app.Registry.Pool.Stats(ctx, subnet)
}
