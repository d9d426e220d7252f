package wg

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"wgfleet/internal/models"
)

// TelemetryReader читает счётчики, рукопожатия и endpoint'ы пиров живого интерфейса.
type TelemetryReader struct {
	runner Runner
	tools  Tools
}

func NewTelemetryReader(r Runner, tools Tools) *TelemetryReader {
	return &TelemetryReader{runner: r, tools: tools}
}

// Snapshot делает три запроса к интерфейсу. Любая ошибка команды или разбора —
// ошибка всего снимка, частичный результат не возвращается.
func (t *TelemetryReader) Snapshot(ctx context.Context, iface string) (map[string]models.TransferSnapshot, error) {
	transfer, err := t.query(ctx, iface, transferListing)
	if err != nil {
		return nil, err
	}
	handshakes, err := t.query(ctx, iface, handshakeListing)
	if err != nil {
		return nil, err
	}
	endpoints, err := t.query(ctx, iface, endpointListing)
	if err != nil {
		return nil, err
	}

	out := make(map[string]models.TransferSnapshot, len(transfer))
	for key, f := range transfer {
		rx, err := strconv.ParseInt(f[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: transfer rx for %s: %q", models.ErrMalformedListing, key, f[0])
		}
		tx, err := strconv.ParseInt(f[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: transfer tx for %s: %q", models.ErrMalformedListing, key, f[1])
		}
		s := Lookup(out, key)
		s.RX, s.TX = rx, tx
		out[key] = s
	}
	for key, f := range handshakes {
		s := Lookup(out, key)
		if ts, err := strconv.ParseInt(f[0], 10, 64); err == nil {
			s.LatestHandshake = models.HandshakeAt(ts)
		} else {
			s.LatestHandshake = models.Handshake{}
		}
		out[key] = s
	}
	for key, f := range endpoints {
		s := Lookup(out, key)
		s.Endpoint = f[0]
		out[key] = s
	}
	return out, nil
}

// Lookup возвращает снимок пира либо значения по умолчанию.
func Lookup(m map[string]models.TransferSnapshot, publicKey string) models.TransferSnapshot {
	if s, ok := m[publicKey]; ok {
		return s
	}
	return models.DefaultTransfer()
}

// Peers возвращает пиры интерфейса с их allowed-ips (`wg show <if> allowed-ips`).
func (t *TelemetryReader) Peers(ctx context.Context, iface string) ([]LivePeer, error) {
	rows, err := t.query(ctx, iface, allowedIPsListing)
	if err != nil {
		return nil, err
	}
	out := make([]LivePeer, 0, len(rows))
	for key, f := range rows {
		p := LivePeer{PublicKey: key}
		for _, ip := range f {
			if ip != "(none)" {
				p.AllowedIPs = append(p.AllowedIPs, ip)
			}
		}
		out = append(out, p)
	}
	return out, nil
}

// PublicKey возвращает собственный ключ интерфейса.
func (t *TelemetryReader) PublicKey(ctx context.Context, iface string) (string, error) {
	out, err := t.runner.Run(ctx, nil, t.tools.wg(), "show", iface, "public-key")
	if err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrTelemetryUnavailable, err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (t *TelemetryReader) query(ctx context.Context, iface string, s listingSchema) (map[string][]string, error) {
	out, err := t.runner.Run(ctx, nil, t.tools.wg(), "show", iface, s.verb)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrTelemetryUnavailable, err)
	}
	return s.parse(out)
}
