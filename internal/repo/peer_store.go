package repo

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"wgfleet/internal/models"
)

type PeerStore struct{ db *gorm.DB }

func NewPeerStore(d *gorm.DB) *PeerStore { return &PeerStore{db: d} }

// List возвращает пиров владельца; пустой owner — всех.
func (s *PeerStore) List(ctx context.Context, owner string) ([]models.Peer, error) {
	var peers []models.Peer
	q := s.db.WithContext(ctx).Order("created_at asc, id asc")
	if owner != "" {
		q = q.Where("user_id = ?", owner)
	}
	if err := q.Find(&peers).Error; err != nil {
		return nil, err
	}
	return peers, nil
}

// Get загружает пира вместе с сервером.
func (s *PeerStore) Get(ctx context.Context, id string) (*models.Peer, error) {
	var p models.Peer
	err := s.db.WithContext(ctx).Preload("Server").Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: peer %s", models.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if p.Server == nil {
		return nil, fmt.Errorf("%w: server %d of peer %s", models.ErrNotFound, p.ServerID, id)
	}
	return &p, nil
}

func (s *PeerStore) Create(ctx context.Context, p *models.Peer) error {
	return translate(s.db.WithContext(ctx).Omit(clause.Associations).Create(p).Error)
}

func (s *PeerStore) Save(ctx context.Context, p *models.Peer) error {
	return translate(s.db.WithContext(ctx).Omit(clause.Associations).Save(p).Error)
}

func (s *PeerStore) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Peer{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: peer %s", models.ErrNotFound, id)
	}
	return nil
}
