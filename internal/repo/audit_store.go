package repo

import (
	"context"
	"encoding/json"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"wgfleet/internal/models"
)

type AuditStore struct{ db *gorm.DB }

func NewAuditStore(d *gorm.DB) *AuditStore { return &AuditStore{db: d} }

// Append дописывает запись журнала аудита. Изменения и удаления записей не предусмотрены.
func (s *AuditStore) Append(ctx context.Context, actor, action, target string, details map[string]any) error {
	e := models.AuditLogEntry{Actor: actor, Action: action, Target: target}
	if len(details) > 0 {
		raw, err := json.Marshal(details)
		if err != nil {
			return err
		}
		e.Details = datatypes.JSON(raw)
	}
	return s.db.WithContext(ctx).Create(&e).Error
}

// Recent возвращает последние записи, новые первыми.
func (s *AuditStore) Recent(ctx context.Context, limit int) ([]models.AuditLogEntry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	var out []models.AuditLogEntry
	err := s.db.WithContext(ctx).Order("id desc").Limit(limit).Find(&out).Error
	return out, err
}
