package wg

import (
	"context"
	"fmt"
	"strings"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"wgfleet/internal/models"
)

type KeyPair struct {
	Private string
	Public  string
}

// ExecKeyGenerator вызывает `wg genkey`, затем `wg pubkey` с приватным ключом на stdin.
type ExecKeyGenerator struct {
	runner Runner
	tools  Tools
}

func NewExecKeyGenerator(r Runner, tools Tools) *ExecKeyGenerator {
	return &ExecKeyGenerator{runner: r, tools: tools}
}

func (g *ExecKeyGenerator) Generate(ctx context.Context) (KeyPair, error) {
	out, err := g.runner.Run(ctx, nil, g.tools.wg(), "genkey")
	if err != nil {
		return KeyPair{}, fmt.Errorf("%w: %w", models.ErrKeyGeneration, err)
	}
	priv, err := checkKey(out)
	if err != nil {
		return KeyPair{}, err
	}

	out, err = g.runner.Run(ctx, []byte(priv+"\n"), g.tools.wg(), "pubkey")
	if err != nil {
		return KeyPair{}, fmt.Errorf("%w: %w", models.ErrKeyGeneration, err)
	}
	pub, err := checkKey(out)
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{Private: priv, Public: pub}, nil
}

func checkKey(out []byte) (string, error) {
	k := strings.TrimSpace(string(out))
	if _, err := wgtypes.ParseKey(k); err != nil {
		return "", fmt.Errorf("%w: generator returned a malformed key: %v", models.ErrKeyGeneration, err)
	}
	return k, nil
}

// NativeKeyGenerator генерирует ключи в процессе, без утилиты wg.
type NativeKeyGenerator struct{}

func (NativeKeyGenerator) Generate(context.Context) (KeyPair, error) {
	priv, err := wgtypes.GeneratePrivateKey()
	if err != nil {
		return KeyPair{}, fmt.Errorf("%w: %v", models.ErrKeyGeneration, err)
	}
	return KeyPair{Private: priv.String(), Public: priv.PublicKey().String()}, nil
}
