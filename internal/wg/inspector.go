package wg

import (
	"context"
	"fmt"

	"golang.zx2c4.com/wireguard/wgctrl"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"wgfleet/internal/models"
)

// LivePeer описывает пир так, как его видит ядро.
type LivePeer struct {
	PublicKey  string
	AllowedIPs []string
}

// Inspector читает живое состояние интерфейса для сверки и провижининга.
type Inspector interface {
	Peers(ctx context.Context, iface string) ([]LivePeer, error)
	PublicKey(ctx context.Context, iface string) (string, error)
}

var (
	_ Inspector = (*TelemetryReader)(nil)
	_ Inspector = (*DeviceInspector)(nil)
)

type deviceClient interface {
	Device(name string) (*wgtypes.Device, error)
	Close() error
}

// DeviceInspector ходит в ядро через netlink (wgctrl), без утилиты wg.
type DeviceInspector struct {
	open func() (deviceClient, error)
}

func NewDeviceInspector() *DeviceInspector {
	return &DeviceInspector{open: func() (deviceClient, error) { return wgctrl.New() }}
}

func (d *DeviceInspector) device(iface string) (*wgtypes.Device, error) {
	c, err := d.open()
	if err != nil {
		return nil, fmt.Errorf("%w: wgctrl: %v", models.ErrTelemetryUnavailable, err)
	}
	defer c.Close()
	dev, err := c.Device(iface)
	if err != nil {
		return nil, fmt.Errorf("%w: wgctrl device %s: %v", models.ErrTelemetryUnavailable, iface, err)
	}
	return dev, nil
}

func (d *DeviceInspector) Peers(_ context.Context, iface string) ([]LivePeer, error) {
	dev, err := d.device(iface)
	if err != nil {
		return nil, err
	}
	out := make([]LivePeer, 0, len(dev.Peers))
	for _, p := range dev.Peers {
		lp := LivePeer{PublicKey: p.PublicKey.String()}
		for _, n := range p.AllowedIPs {
			lp.AllowedIPs = append(lp.AllowedIPs, n.String())
		}
		out = append(out, lp)
	}
	return out, nil
}

func (d *DeviceInspector) PublicKey(_ context.Context, iface string) (string, error) {
	dev, err := d.device(iface)
	if err != nil {
		return "", err
	}
	return dev.PublicKey.String(), nil
}
