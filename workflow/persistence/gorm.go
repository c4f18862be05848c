package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/EreZAzariyA/dream-team-builder-sub007/internal/database"
	"github.com/EreZAzariyA/dream-team-builder-sub007/internal/metrics"
	"github.com/EreZAzariyA/dream-team-builder-sub007/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// workflowRecord 数据库中的一行。完整状态以 JSON 保存，user_id 与 status 单独成列便于筛选。
type workflowRecord struct {
	ID        string    `gorm:"primaryKey;size:64"`
	UserID    string    `gorm:"size:128;index"`
	Status    string    `gorm:"size:32;index"`
	State     string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time
}

func (workflowRecord) TableName() string { return "workflow_states" }

// GormStore 基于 GORM 的状态存储，支持 sqlite / postgres / mysql
type GormStore struct {
	ops
}

// NewGormStore 创建数据库存储并自动迁移表结构
func NewGormStore(pool *database.PoolManager, collector *metrics.Collector, logger *zap.Logger) (*GormStore, error) {
	if pool == nil {
		return nil, errors.New("nil pool manager")
	}
	if err := pool.DB().AutoMigrate(&workflowRecord{}); err != nil {
		return nil, fmt.Errorf("migrate workflow_states: %w", err)
	}
	return &GormStore{ops: newOps(&gormBackend{pool: pool, retries: 3}, collector, logger)}, nil
}

type gormBackend struct {
	pool    *database.PoolManager
	retries int
}

func (g *gormBackend) name() string { return "database" }

func (g *gormBackend) load(ctx context.Context, id string) (*types.WorkflowState, error) {
	var rec workflowRecord
	err := g.pool.DB().WithContext(ctx).Where("id = ?", id).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeRecord(&rec)
}

func (g *gormBackend) update(ctx context.Context, id string, create bool, fn func(*types.WorkflowState) error) error {
	return g.pool.WithTransactionRetry(ctx, g.retries, func(tx *gorm.DB) error {
		var rec workflowRecord
		st := &types.WorkflowState{}
		err := tx.Where("id = ?", id).Take(&rec).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if !create {
				return ErrNotFound
			}
			rec.ID = id
		case err != nil:
			return err
		default:
			if st, err = decodeRecord(&rec); err != nil {
				return err
			}
		}

		if err := fn(st); err != nil {
			return err
		}

		data, err := json.Marshal(st)
		if err != nil {
			return fmt.Errorf("marshal state: %w", err)
		}
		rec.UserID = st.UserID
		rec.Status = string(st.Status)
		rec.State = string(data)
		rec.CreatedAt = st.CreatedAt
		rec.UpdatedAt = st.UpdatedAt
		return tx.Save(&rec).Error
	})
}

func (g *gormBackend) all(ctx context.Context) ([]*types.WorkflowState, error) {
	var recs []workflowRecord
	if err := g.pool.DB().WithContext(ctx).Order("created_at, id").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]*types.WorkflowState, 0, len(recs))
	for i := range recs {
		st, err := decodeRecord(&recs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

func decodeRecord(rec *workflowRecord) (*types.WorkflowState, error) {
	var st types.WorkflowState
	if err := json.Unmarshal([]byte(rec.State), &st); err != nil {
		return nil, fmt.Errorf("decode workflow %s: %w", rec.ID, err)
	}
	return &st, nil
}
