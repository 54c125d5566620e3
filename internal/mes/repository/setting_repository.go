package repository

import (
	"context"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SettingRepository 单行系统配置
type SettingRepository struct {
	db *gorm.DB
}

func NewSettingRepository(db *gorm.DB) *SettingRepository {
	return &SettingRepository{db: db}
}

// Get 获取系统配置，不存在时返回零值
func (r *SettingRepository) Get(ctx context.Context) (*entity.SystemSetting, error) {
	var setting entity.SystemSetting
	err := r.db.WithContext(ctx).First(&setting, "id = ?", entity.SystemSettingID).Error
	if err != nil {
		if err = notFound(err); err == ErrNotFound {
			return &entity.SystemSetting{ID: entity.SystemSettingID}, nil
		}
		return nil, err
	}
	return &setting, nil
}

// DefaultRouteID 默认路线ID，未设置返回 nil
func (r *SettingRepository) DefaultRouteID(ctx context.Context) (*uint, error) {
	setting, err := r.Get(ctx)
	if err != nil {
		return nil, err
	}
	return setting.DefaultRouteID, nil
}

// SetDefaultRoute 设置或清除默认路线
func (r *SettingRepository) SetDefaultRoute(ctx context.Context, routeID *uint) error {
	setting := entity.SystemSetting{ID: entity.SystemSettingID, DefaultRouteID: routeID}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"default_route_id", "updated_at"}),
	}).Create(&setting).Error
}
