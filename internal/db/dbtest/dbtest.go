// Package dbtest поднимает реестр на SQLite в памяти для тестов.
package dbtest

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"wgfleet/internal/db"
)

// Open возвращает мигрированную БД. Одно соединение: ":memory:" живёт, пока
// соединение открыто, а транзакции сериализуются так же, как блокировки строк в postgres.
func Open(t *testing.T) *gorm.DB {
	t.Helper()
	d, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Discard,
	})
	require.NoError(t, err)
	sqlDB, err := d.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.Migrate(d))
	return d
}
