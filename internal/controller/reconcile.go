package controller

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"wgfleet/internal/journal"
	"wgfleet/internal/logs"
	"wgfleet/internal/models"
	"wgfleet/internal/repo"
	"wgfleet/internal/wg"
)

// Репозитории и внешние зависимости
type Interface interface {
	ApplyPeer(ctx context.Context, iface, publicKey, address string) error
	RemovePeer(ctx context.Context, iface, publicKey string) error
}

type ServerResolver interface {
	Resolve(ctx context.Context) (*models.ServerIdentity, error)
}

// Journal: Exclusive ждёт, пока закончатся все операции над пирами.
type Journal interface {
	Exclusive() (func(), error)
	Pending() ([]journal.Intent, error)
	Resolve(id string) error
}

type Options struct {
	// PruneUnknown снимает с интерфейса любые ключи, которых нет в реестре.
	PruneUnknown bool
}

type Reconciler struct {
	Registry  *repo.Registry
	Server    ServerResolver
	Inspector wg.Inspector
	Interface Interface
	Journal   Journal
	Opts      Options
	Log       logrus.FieldLogger
}

func NewReconciler(reg *repo.Registry, srv ServerResolver, ins wg.Inspector, ifc Interface, j Journal, opts Options, log logrus.FieldLogger) *Reconciler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Reconciler{Registry: reg, Server: srv, Inspector: ins, Interface: ifc, Journal: j, Opts: opts, Log: log}
}

type Report struct {
	Interface       string   `json:"interface"`
	Applied         []string `json:"applied"`
	Removed         []string `json:"removed"`
	Skipped         []string `json:"skipped"`
	PoolFixed       int      `json:"pool_fixed"`
	IntentsResolved int      `json:"intents_resolved"`
}

// Reconcile приводит живой интерфейс к реестру. Реестр — источник истины:
// недостающие пиры ставятся, лишние ключи снимаются, если их оставило
// незавершённое намерение (или включён PruneUnknown). Намерения снимаются
// только после прохода без ошибок.
func (r *Reconciler) Reconcile(ctx context.Context) (Report, error) {
	rep := Report{Applied: []string{}, Removed: []string{}, Skipped: []string{}}

	// пока блокировка взята, каждое ожидающее намерение оставлено сбоем
	unlock, err := r.Journal.Exclusive()
	if err != nil {
		return rep, fmt.Errorf("journal: %w", err)
	}
	defer unlock()

	srv, err := r.Server.Resolve(ctx)
	if err != nil {
		return rep, err
	}
	iface := srv.InterfaceName
	rep.Interface = iface
	l := logs.With(ctx, r.Log).WithFields(logrus.Fields{"op": "reconcile", "iface": iface})

	intents, err := r.Journal.Pending()
	if err != nil {
		return rep, fmt.Errorf("journal: %w", err)
	}
	intentKeys := map[string]bool{}
	for _, in := range intents {
		for _, k := range in.Keys() {
			intentKeys[k] = true
		}
	}

	// 1) живое состояние и реестр
	live, err := r.Inspector.Peers(ctx, iface)
	if err != nil {
		return rep, err
	}
	liveByKey := make(map[string][]string, len(live))
	for _, p := range live {
		liveByKey[p.PublicKey] = p.AllowedIPs
	}
	peers, err := r.Registry.Peers.List(ctx, "")
	if err != nil {
		return rep, err
	}

	var errs []error

	// 2) пиры реестра, которых нет на интерфейсе или у которых другие allowed-ips
	known := make(map[string]bool, len(peers))
	held := make(map[string]bool, len(peers))
	for _, p := range peers {
		known[p.PublicKey] = true
		held[p.AssignedIP] = true
		want, err := wg.HostPrefix(p.AssignedIP)
		if err != nil {
			errs = append(errs, fmt.Errorf("peer %s: %w", p.ID, err))
			continue
		}
		got, ok := liveByKey[p.PublicKey]
		if ok && len(got) == 1 && got[0] == want {
			continue
		}
		if err := r.Interface.ApplyPeer(ctx, iface, p.PublicKey, p.AssignedIP); err != nil {
			errs = append(errs, fmt.Errorf("apply %s: %w", p.ID, err))
			continue
		}
		l.WithFields(logrus.Fields{"peer_id": p.ID, "address": p.AssignedIP}).Info("peer re-applied")
		rep.Applied = append(rep.Applied, p.PublicKey)
	}

	// 3) ключи интерфейса, которых нет в реестре
	unknown := make([]string, 0)
	for k := range liveByKey {
		if !known[k] && k != srv.PublicKey {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	for _, k := range unknown {
		if !intentKeys[k] && !r.Opts.PruneUnknown {
			rep.Skipped = append(rep.Skipped, k)
			continue
		}
		if err := r.Interface.RemovePeer(ctx, iface, k); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", k, err))
			continue
		}
		l.WithField("public_key", k).Info("stray peer removed")
		rep.Removed = append(rep.Removed, k)
	}
	if len(rep.Skipped) > 0 {
		l.WithField("keys", rep.Skipped).Warn("unknown peers left on interface")
	}

	// 4) флаги пула
	fixed, err := r.Registry.Pool.Repair(ctx, held)
	rep.PoolFixed = fixed
	if err != nil {
		errs = append(errs, fmt.Errorf("pool repair: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		return rep, err
	}

	// 5) намерения
	for _, in := range intents {
		if err := r.Journal.Resolve(in.ID); err != nil {
			return rep, err
		}
		rep.IntentsResolved++
	}
	l.WithFields(logrus.Fields{
		"applied": len(rep.Applied), "removed": len(rep.Removed),
		"pool_fixed": rep.PoolFixed, "intents": rep.IntentsResolved,
	}).Info("reconcile done")
	return rep, nil
}
