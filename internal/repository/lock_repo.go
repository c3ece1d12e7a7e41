package repository

import (
	"context"
	"sort"

	"gorm.io/gorm"
)

// LockRepository 事务级互斥锁
type LockRepository interface {
	// Acquire 获取一组命名锁，持有到所在事务结束
	// 必须在 Repository.Transaction 内调用，否则语句结束即释放
	Acquire(ctx context.Context, keys ...string) error
}

type lockRepo struct {
	db *gorm.DB
}

// NewLockRepo 创建基于 PostgreSQL advisory lock 的 LockRepository
func NewLockRepo(db *gorm.DB) LockRepository {
	return &lockRepo{db: db}
}

func (r *lockRepo) Acquire(ctx context.Context, keys ...string) error {
	// 固定加锁顺序，避免两个事务交叉持锁死锁
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	var prev string
	for i, key := range sorted {
		if i > 0 && key == prev {
			continue
		}
		prev = key
		if err := r.db.WithContext(ctx).
			Exec("SELECT pg_advisory_xact_lock(hashtextextended(?, 0))", key).Error; err != nil {
			return err
		}
	}
	return nil
}
