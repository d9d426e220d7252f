// Package peers управляет жизненным циклом пиров: реестр, пул адресов,
// ключи и живой интерфейс меняются одной операцией.
package peers

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"wgfleet/internal/journal"
	"wgfleet/internal/logs"
	"wgfleet/internal/models"
	"wgfleet/internal/repo"
	"wgfleet/internal/wg"
)

const maxNameLen = 255

type KeyGenerator interface {
	Generate(ctx context.Context) (wg.KeyPair, error)
}

type Interface interface {
	ApplyPeer(ctx context.Context, iface, publicKey, address string) error
	RemovePeer(ctx context.Context, iface, publicKey string) error
}

type Telemetry interface {
	Snapshot(ctx context.Context, iface string) (map[string]models.TransferSnapshot, error)
}

type ServerResolver interface {
	Resolve(ctx context.Context) (*models.ServerIdentity, error)
}

// Journal: Hold держится от намерения до его снятия, чтобы сверка не
// приняла ключ операции в полёте за оставленный сбоем.
type Journal interface {
	Hold() (func(), error)
	Begin(in journal.Intent) (string, error)
	Resolve(id string) error
}

// Options — параметры клиентских профилей и чтения телеметрии.
type Options struct {
	Endpoint        string
	AllowedIPs      string
	Keepalive       int
	StrictTelemetry bool
}

type Dependencies struct {
	Registry  *repo.Registry
	Server    ServerResolver
	Keys      KeyGenerator
	Interface Interface
	Telemetry Telemetry
	Journal   Journal
	Logger    logrus.FieldLogger
}

// PeerView объединяет запись реестра вместе со свежим снимком телеметрии.
type PeerView struct {
	models.Peer
	models.TransferSnapshot
}

type CreatePeerInput struct {
	Name             string `json:"peer_name"`
	RequestedAddress string `json:"ip,omitempty"`
}

// UpdatePeerInput: nil-поле не меняется.
type UpdatePeerInput struct {
	Name             *string `json:"peer_name,omitempty"`
	RequestedAddress *string `json:"ip,omitempty"`
}

type Service struct {
	d    Dependencies
	opts Options
	log  logrus.FieldLogger
}

func New(d Dependencies, opts Options) *Service {
	if opts.Keepalive <= 0 {
		opts.Keepalive = 30
	}
	l := d.Logger
	if l == nil {
		l = logrus.StandardLogger()
	}
	return &Service{d: d, opts: opts, log: l}
}

// ---------- чтение ----------

// List возвращает пиров владельца (при пустом owner всех) с одним снимком телеметрии на запрос.
func (s *Service) List(ctx context.Context, owner string) ([]PeerView, error) {
	peers, err := s.d.Registry.Peers.List(ctx, owner)
	if err != nil {
		return nil, err
	}
	out := make([]PeerView, 0, len(peers))
	if len(peers) == 0 {
		return out, nil
	}
	srv, err := s.d.Server.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	snap, err := s.snapshot(ctx, srv.InterfaceName)
	if err != nil {
		return nil, err
	}
	for _, p := range peers {
		out = append(out, PeerView{Peer: p, TransferSnapshot: wg.Lookup(snap, p.PublicKey)})
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, id string) (*PeerView, error) {
	p, err := s.d.Registry.Peers.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	snap, err := s.snapshot(ctx, p.Server.InterfaceName)
	if err != nil {
		return nil, err
	}
	return &PeerView{Peer: *p, TransferSnapshot: wg.Lookup(snap, p.PublicKey)}, nil
}

// Transfer отдаёт только телеметрию пира.
func (s *Service) Transfer(ctx context.Context, id string) (models.TransferSnapshot, error) {
	v, err := s.Get(ctx, id)
	if err != nil {
		return models.TransferSnapshot{}, err
	}
	return v.TransferSnapshot, nil
}

func (s *Service) snapshot(ctx context.Context, iface string) (map[string]models.TransferSnapshot, error) {
	snap, err := s.d.Telemetry.Snapshot(ctx, iface)
	if err == nil {
		return snap, nil
	}
	if s.opts.StrictTelemetry {
		return nil, err
	}
	logs.With(ctx, s.log).WithError(err).WithField("iface", iface).Warn("telemetry unavailable, using defaults")
	return map[string]models.TransferSnapshot{}, nil
}

// ---------- запись ----------

// Create: сервер → адрес → ключи → намерение → интерфейс → запись → аудит → коммит.
func (s *Service) Create(ctx context.Context, actor, owner string, in CreatePeerInput) (*models.Peer, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, fmt.Errorf("%w: owner is required", models.ErrInvalidInput)
	}
	name, err := checkName(in.Name)
	if err != nil {
		return nil, err
	}

	srv, err := s.d.Server.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	subnet, err := srv.Subnet()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrServerNotConfigured, err)
	}

	p := &models.Peer{
		ID:        uuid.NewString(),
		UserID:    owner,
		ServerID:  srv.ID,
		Name:      name,
		CreatedBy: actor,
		UpdatedBy: actor,
	}
	l := logs.With(ctx, s.log).WithFields(logrus.Fields{"op": journal.OpCreate, "peer_id": p.ID, "actor": actor, "iface": srv.InterfaceName})

	release, err := s.d.Journal.Hold()
	if err != nil {
		return nil, err
	}
	defer release()

	var intentID string
	err = s.d.Registry.Transaction(ctx, func(tx *repo.Registry) error {
		addr, err := tx.Pool.Allocate(ctx, subnet, in.RequestedAddress)
		if err != nil {
			return err
		}
		kp, err := s.d.Keys.Generate(ctx)
		if err != nil {
			return err
		}
		p.AssignedIP, p.PublicKey, p.PrivateKey = addr, kp.Public, kp.Private

		intentID, err = s.d.Journal.Begin(journal.Intent{
			Op: journal.OpCreate, PeerID: p.ID, PublicKey: kp.Public,
			Address: addr, Interface: srv.InterfaceName, Actor: actor,
		})
		if err != nil {
			return err
		}
		if err := s.d.Interface.ApplyPeer(ctx, srv.InterfaceName, kp.Public, addr); err != nil {
			return err
		}
		if err := tx.Peers.Create(ctx, p); err != nil {
			return err
		}
		return tx.Audit.Append(ctx, actor, models.ActionAdded, p.Name, auditDetails(p))
	})
	if err != nil {
		l.WithError(err).Error("create peer failed")
		return nil, err
	}
	s.resolveIntent(l, intentID)
	l.WithField("address", p.AssignedIP).Info("peer added")
	p.Server = srv
	return p, nil
}

// Update всегда выпускает новую пару ключей, даже если меняется только имя.
func (s *Service) Update(ctx context.Context, actor, id string, in UpdatePeerInput) (*models.Peer, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	var name *string
	if in.Name != nil {
		n, err := checkName(*in.Name)
		if err != nil {
			return nil, err
		}
		name = &n
	}
	var requested string
	if in.RequestedAddress != nil && strings.TrimSpace(*in.RequestedAddress) != "" {
		a, err := repo.ParseHostAddr(*in.RequestedAddress)
		if err != nil {
			return nil, err
		}
		requested = a.String()
	}

	l := logs.With(ctx, s.log).WithFields(logrus.Fields{"op": journal.OpUpdate, "peer_id": id, "actor": actor})
	release, err := s.d.Journal.Hold()
	if err != nil {
		return nil, err
	}
	defer release()

	var (
		intentID string
		out      *models.Peer
	)
	err = s.d.Registry.Transaction(ctx, func(tx *repo.Registry) error {
		p, err := tx.Peers.Get(ctx, id)
		if err != nil {
			return err
		}
		iface := p.Server.InterfaceName
		l = l.WithField("iface", iface)

		oldAddr, oldKey := p.AssignedIP, p.PublicKey
		addr := oldAddr
		if requested != "" {
			addr = requested
		}
		// новый адрес резервируется до любых команд: отказ не трогает интерфейс
		if addr != oldAddr {
			subnet, err := p.Server.Subnet()
			if err != nil {
				return fmt.Errorf("%w: %v", models.ErrServerNotConfigured, err)
			}
			if _, err := tx.Pool.Allocate(ctx, subnet, addr); err != nil {
				return err
			}
		}

		kp, err := s.d.Keys.Generate(ctx)
		if err != nil {
			return err
		}

		intentID, err = s.d.Journal.Begin(journal.Intent{
			Op: journal.OpUpdate, PeerID: p.ID, PublicKey: kp.Public, OldPublicKey: oldKey,
			Address: addr, Interface: iface, Actor: actor,
		})
		if err != nil {
			return err
		}
		if err := s.d.Interface.RemovePeer(ctx, iface, oldKey); err != nil {
			return err
		}
		if err := s.d.Interface.ApplyPeer(ctx, iface, kp.Public, addr); err != nil {
			return err
		}
		if addr != oldAddr {
			if err := tx.Pool.Release(ctx, oldAddr); err != nil {
				return err
			}
		}

		if name != nil {
			p.Name = *name
		}
		p.AssignedIP, p.PublicKey, p.PrivateKey = addr, kp.Public, kp.Private
		p.UpdatedBy = actor
		if err := tx.Peers.Save(ctx, p); err != nil {
			return err
		}
		details := auditDetails(p)
		details["old_public_key"] = oldKey
		if addr != oldAddr {
			details["old_address"] = oldAddr
		}
		out = p
		return tx.Audit.Append(ctx, actor, models.ActionUpdated, p.Name, details)
	})
	if err != nil {
		l.WithError(err).Error("update peer failed")
		return nil, err
	}
	s.resolveIntent(l, intentID)
	l.WithField("address", out.AssignedIP).Info("peer updated")
	return out, nil
}

func (s *Service) Delete(ctx context.Context, actor, id string) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	l := logs.With(ctx, s.log).WithFields(logrus.Fields{"op": journal.OpDelete, "peer_id": id, "actor": actor})
	release, err := s.d.Journal.Hold()
	if err != nil {
		return err
	}
	defer release()

	var intentID string
	err = s.d.Registry.Transaction(ctx, func(tx *repo.Registry) error {
		p, err := tx.Peers.Get(ctx, id)
		if err != nil {
			return err
		}
		iface := p.Server.InterfaceName
		l = l.WithField("iface", iface)

		intentID, err = s.d.Journal.Begin(journal.Intent{
			Op: journal.OpDelete, PeerID: p.ID, PublicKey: p.PublicKey,
			Address: p.AssignedIP, Interface: iface, Actor: actor,
		})
		if err != nil {
			return err
		}
		if err := s.d.Interface.RemovePeer(ctx, iface, p.PublicKey); err != nil {
			return err
		}
		if err := tx.Pool.Release(ctx, p.AssignedIP); err != nil {
			return err
		}
		if err := tx.Peers.Delete(ctx, p.ID); err != nil {
			return err
		}
		return tx.Audit.Append(ctx, actor, models.ActionRemoved, p.Name, auditDetails(p))
	})
	if err != nil {
		l.WithError(err).Error("delete peer failed")
		return err
	}
	s.resolveIntent(l, intentID)
	l.Info("peer removed")
	return nil
}

// намерение, которое не удалось снять, подберёт сверка; операция уже закоммичена
func (s *Service) resolveIntent(l logrus.FieldLogger, id string) {
	if err := s.d.Journal.Resolve(id); err != nil {
		l.WithError(err).WithField("intent", id).Warn("intent left pending")
	}
}

func requireActor(actor string) error {
	if strings.TrimSpace(actor) == "" {
		return fmt.Errorf("%w: actor is required", models.ErrInvalidInput)
	}
	return nil
}

func checkName(name string) (string, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return "", fmt.Errorf("%w: peer_name is required", models.ErrInvalidInput)
	case len(name) > maxNameLen:
		return "", fmt.Errorf("%w: peer_name longer than %d", models.ErrInvalidInput, maxNameLen)
	}
	return name, nil
}

func auditDetails(p *models.Peer) map[string]any {
	return map[string]any{
		"peer_id":    p.ID,
		"user_id":    p.UserID,
		"address":    p.AssignedIP,
		"public_key": p.PublicKey,
	}
}
