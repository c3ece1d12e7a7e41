package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrationsTable 记录课表库迁移版本的表
const migrationsTable = "timetable_schema_migrations"

// requiredIndexes 并发写入唯一性依赖的索引，迁移后必须存在
var requiredIndexes = []string{
	"uq_bookings_live_key",
	"uq_classrooms_code",
}

// ErrDirtySchema 上次迁移中途失败，需人工修复后再启动
var ErrDirtySchema = errors.New("数据库迁移处于 dirty 状态")

// RunMigrations 应用内嵌迁移并校验冲突检测依赖的索引
// dirty 状态直接返回 ErrDirtySchema，不在半迁移的表结构上提供服务
func RunMigrations(db *sql.DB, logger *zap.Logger) error {
	m, err := newMigrator(db)
	if err != nil {
		return err
	}

	if _, dirty, err := m.Version(); err == nil && dirty {
		return ErrDirtySchema
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("执行迁移失败: %w", err)
	}

	version, dirty, err := m.Version()
	switch {
	case err != nil:
		return fmt.Errorf("读取迁移版本失败: %w", err)
	case dirty:
		return ErrDirtySchema
	}

	if err := verifyIndexes(db); err != nil {
		return err
	}

	logger.Info("数据库迁移完成", zap.Uint("version", version), zap.Strings("indexes", requiredIndexes))
	return nil
}

func newMigrator(db *sql.DB) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("加载迁移文件失败: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: migrationsTable})
	if err != nil {
		return nil, fmt.Errorf("创建迁移驱动失败: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("初始化迁移实例失败: %w", err)
	}
	return m, nil
}

// verifyIndexes 缺少唯一索引时预约并发写入不再有数据库兜底
func verifyIndexes(db *sql.DB) error {
	for _, name := range requiredIndexes {
		var exists bool
		err := db.QueryRow(
			"SELECT EXISTS (SELECT 1 FROM pg_indexes WHERE schemaname = current_schema() AND indexname = $1)", name,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("检查索引 %s 失败: %w", name, err)
		}
		if !exists {
			return fmt.Errorf("迁移后缺少索引 %s", name)
		}
	}
	return nil
}
