package wg

import (
	"context"
	"fmt"
	"net/netip"

	"wgfleet/internal/models"
)

// InterfaceController меняет набор пиров живого интерфейса и сохраняет его
// конфигурацию через `wg-quick save`. Применение и сохранение делаются отдельными вызовами.
type InterfaceController struct {
	runner  Runner
	tools   Tools
	persist bool
}

func NewInterfaceController(r Runner, tools Tools, persist bool) *InterfaceController {
	return &InterfaceController{runner: r, tools: tools, persist: persist}
}

// ApplyPeer: wg set <if> peer <pub> allowed-ips <addr>/32, затем Persist.
func (c *InterfaceController) ApplyPeer(ctx context.Context, iface, publicKey, address string) error {
	allowed, err := HostPrefix(address)
	if err != nil {
		return err
	}
	if _, err := c.runner.Run(ctx, nil, c.tools.wg(), "set", iface, "peer", publicKey, "allowed-ips", allowed); err != nil {
		return fmt.Errorf("%w: %w", models.ErrInterfaceCommand, err)
	}
	return c.Persist(ctx, iface)
}

// RemovePeer: wg set <if> peer <pub> remove, затем Persist.
func (c *InterfaceController) RemovePeer(ctx context.Context, iface, publicKey string) error {
	if _, err := c.runner.Run(ctx, nil, c.tools.wg(), "set", iface, "peer", publicKey, "remove"); err != nil {
		return fmt.Errorf("%w: %w", models.ErrInterfaceCommand, err)
	}
	return c.Persist(ctx, iface)
}

func (c *InterfaceController) Persist(ctx context.Context, iface string) error {
	if !c.persist {
		return nil
	}
	if _, err := c.runner.Run(ctx, nil, c.tools.wgQuick(), "save", iface); err != nil {
		return fmt.Errorf("%w: %w", models.ErrInterfaceCommand, err)
	}
	return nil
}

// HostPrefix возвращает адрес пира как allowed-ips: /32 для IPv4, /128 для IPv6.
func HostPrefix(address string) (string, error) {
	a, err := netip.ParseAddr(address)
	if err != nil {
		return "", fmt.Errorf("%w: peer address %q: %v", models.ErrInvalidInput, address, err)
	}
	a = a.Unmap()
	return netip.PrefixFrom(a, a.BitLen()).String(), nil
}
