package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// 错误定义
var (
	ErrNotFound = errors.New("record not found")
)

// Repositories 仓库集合
type Repositories struct {
	db *gorm.DB

	User    *UserRepository
	Part    *PartRepository
	Route   *RouteRepository
	Stage   *StageRepository
	Setting *SettingRepository
	Audit   *AuditRepository
	History *HistoryRepository
}

// NewRepositories 创建仓库集合
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		db:      db,
		User:    NewUserRepository(db),
		Part:    NewPartRepository(db),
		Route:   NewRouteRepository(db),
		Stage:   NewStageRepository(db),
		Setting: NewSettingRepository(db),
		Audit:   NewAuditRepository(db),
		History: NewHistoryRepository(db),
	}
}

// DB 获取底层连接
func (r *Repositories) DB() *gorm.DB {
	return r.db
}

// Transaction 在事务中执行 fn，传入绑定到事务的仓库集合。
// 在已有事务内调用时 gorm 使用 SAVEPOINT。
func (r *Repositories) Transaction(ctx context.Context, fn func(tx *Repositories) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepositories(tx))
	})
}

// notFound 把 gorm 的未找到错误统一为 ErrNotFound
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// IsDuplicate 是否唯一键冲突（需要 gorm.Config.TranslateError）
func IsDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
