package repo

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"wgfleet/internal/db"
	"wgfleet/internal/models"
)

// Registry объединяет хранилища реестра над одним *gorm.DB (или транзакцией).
type Registry struct {
	db *gorm.DB

	Peers *PeerStore
	Pool  *PoolStore
	Audit *AuditStore
}

func NewRegistry(d *gorm.DB) *Registry {
	return &Registry{
		db:    d,
		Peers: NewPeerStore(d),
		Pool:  NewPoolStore(d),
		Audit: NewAuditStore(d),
	}
}

// Transaction выполняет fn в одной транзакции; ошибка fn откатывает её.
// Нарушение уникального индекса при записи или коммите становится ErrConstraintViolation.
func (r *Registry) Transaction(ctx context.Context, fn func(tx *Registry) error) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRegistry(tx))
	})
	return translate(err)
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, models.ErrConstraintViolation) {
		return err
	}
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: %v", models.ErrConstraintViolation, err)
	}
	return err
}
