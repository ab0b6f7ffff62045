package sql

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"maildash/backend/internal/config"
	"maildash/backend/internal/domain"
	"maildash/backend/internal/storage"
	pgclient "maildash/backend/internal/storage/postgres"
)

// Store 基于 GORM 的关系型存储实现（支持 PostgreSQL、MySQL 和 SQLite）
//
// 唯一约束由数据库索引保证：
//   - email_requests(domain_id, username)
//   - domain_mailboxes(domain_id, username)
//
// 事务内创建的 Store 共享同一个 *gorm.DB 事务句柄
type Store struct {
	db      *gorm.DB
	closers []func()
}

var _ storage.Store = (*Store)(nil)

// Open 根据配置选择数据库方言并创建存储
//
// PostgreSQL 使用 pgx 连接池，并通过 database/sql 适配层交给 GORM
func Open(cfg config.DatabaseConfig, log *zap.Logger) (*Store, error) {
	var (
		dialector gorm.Dialector
		closers   []func()
	)

	switch cfg.Type {
	case "postgres":
		client, err := pgclient.New(&cfg, log)
		if err != nil {
			return nil, err
		}
		dialector = postgres.New(postgres.Config{Conn: client.DB()})
		closers = append(closers, client.Close)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}

	store, err := NewStoreWithDialector(dialector, cfg)
	if err != nil {
		for _, c := range closers {
			c()
		}
		return nil, err
	}
	store.closers = closers
	return store, nil
}

// NewStoreWithDialector 使用指定的 GORM dialector 创建存储实例
func NewStoreWithDialector(dialector gorm.Dialector, cfg config.DatabaseConfig) (*Store, error) {
	gormConfig := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	store := &Store{db: db}

	if cfg.AutoMigrate {
		if err := store.Migrate(); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	return store, nil
}

// Migrate 自动迁移数据库表结构
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(
		&domain.User{},
		&domain.Domain{},
		&domain.DomainMailbox{},
		&domain.EmailRequest{},
		&domain.SMSLog{},
	)
}

// Atomic 在数据库事务中执行 fn，fn 返回错误时回滚
func (s *Store) Atomic(ctx context.Context, fn func(tx storage.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	err = sqlDB.Close()
	for _, c := range s.closers {
		c()
	}
	return err
}

// Health 检查数据库连接
func (s *Store) Health(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// DB 返回底层 GORM 实例
func (s *Store) DB() *gorm.DB {
	return s.db
}

// translate 将数据库错误转换为领域错误
//
// 参数:
//   - err: GORM 返回的错误
//   - notFound: 记录不存在时的提示
//   - conflict: 违反唯一约束时的提示
func translate(err error, notFound, conflict string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return domain.WrapError(domain.KindNotFound, notFound, err)
	case errors.Is(err, gorm.ErrDuplicatedKey), isDuplicateKeyError(err):
		return domain.WrapError(domain.KindConflict, conflict, err)
	}
	return err
}

// isDuplicateKeyError 兜底识别未被方言翻译的唯一约束错误
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "duplicate key") ||
		strings.Contains(errStr, "UNIQUE constraint") ||
		strings.Contains(errStr, "Duplicate entry") ||
		strings.Contains(errStr, "23505")
}
