package repo

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gorm.io/gorm"

	"wgfleet/internal/models"
)

var ErrServerExists = errors.New("server identity already provisioned")

// ServerStore читает синглтон ServerIdentity. После первого успешного чтения
// значение кэшируется: запись создаётся один раз при провижининге.
type ServerStore struct {
	db *gorm.DB

	mu     sync.RWMutex
	cached *models.ServerIdentity
}

func NewServerStore(d *gorm.DB) *ServerStore { return &ServerStore{db: d} }

// Resolve возвращает единственную запись или ErrServerNotConfigured.
func (s *ServerStore) Resolve(ctx context.Context) (*models.ServerIdentity, error) {
	s.mu.RLock()
	c := s.cached
	s.mu.RUnlock()
	if c != nil {
		cp := *c
		return &cp, nil
	}

	var rows []models.ServerIdentity
	if err := s.db.WithContext(ctx).Order("id asc").Limit(2).Find(&rows).Error; err != nil {
		return nil, err
	}
	switch len(rows) {
	case 0:
		return nil, models.ErrServerNotConfigured
	case 1:
	default:
		return nil, fmt.Errorf("%w: more than one server identity record", models.ErrServerNotConfigured)
	}
	if _, err := rows[0].Prefix(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrServerNotConfigured, err)
	}

	s.mu.Lock()
	s.cached = &rows[0]
	s.mu.Unlock()
	cp := rows[0]
	return &cp, nil
}

// Provision создаёт запись сервера. Существующую перезаписывает только при force.
func (s *ServerStore) Provision(ctx context.Context, in models.ServerIdentity, force bool) (*models.ServerIdentity, error) {
	if _, err := in.Prefix(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	var out models.ServerIdentity
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.ServerIdentity
		err := tx.Order("id asc").First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			out = in
			out.ID = 0
			return tx.Create(&out).Error
		case err != nil:
			return err
		case !force:
			return ErrServerExists
		}
		existing.InterfaceName = in.InterfaceName
		existing.PublicKey = in.PublicKey
		existing.ServerIPs = in.ServerIPs
		out = existing
		return tx.Save(&out).Error
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
	return &out, nil
}
