package repository

import (
	"context"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"gorm.io/gorm"
)

type RouteRepository struct {
	db *gorm.DB
}

func NewRouteRepository(db *gorm.DB) *RouteRepository {
	return &RouteRepository{db: db}
}

func (r *RouteRepository) withStages(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Stages", func(db *gorm.DB) *gorm.DB {
			return db.Order("stage_order ASC")
		}).
		Preload("Stages.Stage")
}

// FindByID 根据ID查找路线（含有序工序）
func (r *RouteRepository) FindByID(ctx context.Context, id uint) (*entity.RouteTemplate, error) {
	var route entity.RouteTemplate
	if err := r.withStages(ctx).First(&route, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &route, nil
}

// FindByName 按名称精确查找（含有序工序）
func (r *RouteRepository) FindByName(ctx context.Context, name string) (*entity.RouteTemplate, error) {
	var route entity.RouteTemplate
	if err := r.withStages(ctx).First(&route, "name = ?", name).Error; err != nil {
		return nil, notFound(err)
	}
	return &route, nil
}

// List 获取全部路线
func (r *RouteRepository) List(ctx context.Context) ([]entity.RouteTemplate, error) {
	var routes []entity.RouteTemplate
	err := r.withStages(ctx).Order("name ASC").Find(&routes).Error
	return routes, err
}

// Create 创建路线（不含工序）
func (r *RouteRepository) Create(ctx context.Context, route *entity.RouteTemplate) error {
	return r.db.WithContext(ctx).Omit("Stages").Create(route).Error
}

// AddStage 追加工序绑定
func (r *RouteRepository) AddStage(ctx context.Context, rs *entity.RouteStage) error {
	return r.db.WithContext(ctx).Omit("Stage").Create(rs).Error
}

// Count 路线总数
func (r *RouteRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.RouteTemplate{}).Count(&count).Error
	return count, err
}

// Delete 删除路线及其工序绑定
func (r *RouteRepository) Delete(ctx context.Context, id uint) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("template_id = ?", id).Delete(&entity.RouteStage{}).Error; err != nil {
		return err
	}
	return db.Delete(&entity.RouteTemplate{}, "id = ?", id).Error
}

// HasStage 路线是否包含某工序（大小写无关）
func (r *RouteRepository) HasStage(ctx context.Context, routeID uint, stageName string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.RouteStage{}).
		Joins("JOIN stages ON stages.id = route_stages.stage_id").
		Where("route_stages.template_id = ? AND stages.name_key = ?", routeID, entity.StageKey(stageName)).
		Count(&count).Error
	return count > 0, err
}

type StageRepository struct {
	db *gorm.DB
}

func NewStageRepository(db *gorm.DB) *StageRepository {
	return &StageRepository{db: db}
}

// FindByName 大小写无关查找
func (r *StageRepository) FindByName(ctx context.Context, name string) (*entity.Stage, error) {
	var stage entity.Stage
	if err := r.db.WithContext(ctx).First(&stage, "name_key = ?", entity.StageKey(name)).Error; err != nil {
		return nil, notFound(err)
	}
	return &stage, nil
}

func (r *StageRepository) Create(ctx context.Context, stage *entity.Stage) error {
	return r.db.WithContext(ctx).Create(stage).Error
}

func (r *StageRepository) List(ctx context.Context) ([]entity.Stage, error) {
	var stages []entity.Stage
	err := r.db.WithContext(ctx).Order("name ASC").Find(&stages).Error
	return stages, err
}

func (r *StageRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.Stage{}).Count(&count).Error
	return count, err
}
