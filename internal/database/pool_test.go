package database

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/EreZAzariyA/dream-team-builder-sub007/config"
	"github.com/EreZAzariyA/dream-team-builder-sub007/internal/metrics"
	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// =============================================================================
// 🧪 PoolManager 测试
// =============================================================================

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pool.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	require.NoError(t, err)
	return db
}

func newTestPool(t *testing.T, cfg PoolConfig) *PoolManager {
	t.Helper()
	pm, err := NewPoolManager(openTestDB(t), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pm.Close() })
	return pm
}

type row struct {
	ID    uint `gorm:"primaryKey"`
	Value string
}

func TestNewPoolManager(t *testing.T) {
	cfg := PoolConfig{Name: "test", MaxOpenConns: 4, MaxIdleConns: 2, ConnMaxLifetime: time.Hour}
	pm := newTestPool(t, cfg)

	assert.NotNil(t, pm.DB())
	assert.Equal(t, cfg, pm.config)
	assert.Equal(t, 4, pm.Stats().MaxOpenConnections)
}

func TestNewPoolManager_NilDB(t *testing.T) {
	_, err := NewPoolManager(nil, DefaultPoolConfig(), zap.NewNop())
	assert.Error(t, err)
}

func TestPoolManager_PingAndClose(t *testing.T) {
	pm := newTestPool(t, PoolConfig{MaxOpenConns: 1})
	ctx := context.Background()

	require.NoError(t, pm.Ping(ctx))
	require.NoError(t, pm.Close())
	assert.Error(t, pm.Ping(ctx))
	// 重复关闭
	assert.NoError(t, pm.Close())
}

func TestPoolManager_HealthCheckRecordsConnections(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollectorWithRegistry("test", reg, zap.NewNop())

	pm, err := NewPoolManager(openTestDB(t), PoolConfig{Name: "sqlite", MaxOpenConns: 2}, zap.NewNop(), WithCollector(collector))
	require.NoError(t, err)
	defer pm.Close()

	pm.checkOnce()

	n, err := testutil.GatherAndCount(reg, "test_db_connections_open")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPoolManager_WithTransaction(t *testing.T) {
	pm := newTestPool(t, PoolConfig{MaxOpenConns: 1})
	ctx := context.Background()
	require.NoError(t, pm.DB().AutoMigrate(&row{}))

	require.NoError(t, pm.WithTransaction(ctx, func(tx *gorm.DB) error {
		return tx.Create(&row{Value: "committed"}).Error
	}))

	err := pm.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&row{Value: "rolled back"}).Error; err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, pm.DB().Model(&row{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestPoolManager_WithTransactionRetry(t *testing.T) {
	pm := newTestPool(t, PoolConfig{MaxOpenConns: 1})
	ctx := context.Background()

	t.Run("retries transient errors", func(t *testing.T) {
		var calls atomic.Int32
		err := pm.WithTransactionRetry(ctx, 3, func(tx *gorm.DB) error {
			if calls.Add(1) < 3 {
				return errors.New("database is locked")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("permanent error returns at once", func(t *testing.T) {
		var calls atomic.Int32
		err := pm.WithTransactionRetry(ctx, 3, func(tx *gorm.DB) error {
			calls.Add(1)
			return errors.New("constraint failed")
		})
		require.Error(t, err)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("exhausted", func(t *testing.T) {
		err := pm.WithTransactionRetry(ctx, 2, func(tx *gorm.DB) error {
			return errors.New("deadlock detected")
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "after 2 retries")
	})

	t.Run("closed pool", func(t *testing.T) {
		closed := newTestPool(t, PoolConfig{MaxOpenConns: 1})
		require.NoError(t, closed.Close())
		err := closed.WithTransaction(ctx, func(tx *gorm.DB) error { return nil })
		assert.Error(t, err)
	})
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("Deadlock found when trying to get lock"), true},
		{errors.New("ERROR: could not serialize access (SQLSTATE 40001)"), true},
		{errors.New("driver: bad connection"), true},
		{errors.New("Lock wait timeout exceeded"), true},
		{errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{errors.New("UNIQUE constraint failed"), false},
	}
	for _, tt := range tests {
		name := "nil"
		if tt.err != nil {
			name = tt.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryableError(tt.err))
		})
	}
}

// =============================================================================
// 🔌 Open / Dialector
// =============================================================================

func TestDialector(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.DatabaseConfig
		want    string
		wantErr bool
	}{
		{name: "postgres", cfg: config.DatabaseConfig{Driver: "postgres", Host: "h", Port: 5432}, want: "postgres"},
		{name: "mysql", cfg: config.DatabaseConfig{Driver: "mysql", Host: "h", Port: 3306}, want: "mysql"},
		{name: "sqlite", cfg: config.DatabaseConfig{Driver: "sqlite", Name: "x.db"}, want: "sqlite"},
		{name: "empty", cfg: config.DatabaseConfig{}, wantErr: true},
		{name: "unknown", cfg: config.DatabaseConfig{Driver: "oracle"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Dialector(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Name())
		})
	}
}

func TestOpen_Sqlite(t *testing.T) {
	cfg := config.DatabaseConfig{
		Driver:       "sqlite",
		Name:         filepath.Join(t.TempDir(), "state.db"),
		MaxOpenConns: 1,
	}
	pm, err := Open(cfg, nil, zap.NewNop())
	require.NoError(t, err)
	defer pm.Close()

	assert.Equal(t, "sqlite", pm.config.Name)
	assert.Equal(t, 1, pm.Stats().MaxOpenConnections)
	require.NoError(t, pm.Ping(context.Background()))
}
