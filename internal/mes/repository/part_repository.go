package repository

import (
	"context"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"gorm.io/gorm"
)

type PartRepository struct {
	db *gorm.DB
}

func NewPartRepository(db *gorm.DB) *PartRepository {
	return &PartRepository{db: db}
}

// PartFilter 列表过滤条件
type PartFilter struct {
	ProductDesignation string
	Status             string
	ResponsibleID      string
	ParentID           string
	Keyword            string
}

// FindByID 根据 part_id 查找零件（含路线和负责人）
func (r *PartRepository) FindByID(ctx context.Context, partID string) (*entity.Part, error) {
	var part entity.Part
	err := r.db.WithContext(ctx).
		Preload("RouteTemplate.Stages", func(db *gorm.DB) *gorm.DB {
			return db.Order("stage_order ASC")
		}).
		Preload("RouteTemplate.Stages.Stage").
		Preload("Responsible").
		Preload("Children").
		First(&part, "part_id = ?", partID).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &part, nil
}

// Exists 零件是否已存在
func (r *PartRepository) Exists(ctx context.Context, partID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.Part{}).
		Where("part_id = ?", partID).
		Count(&count).Error
	return count > 0, err
}

// Create 创建零件
func (r *PartRepository) Create(ctx context.Context, part *entity.Part) error {
	return r.db.WithContext(ctx).Omit("RouteTemplate", "Responsible", "Children").Create(part).Error
}

// Update 保存零件的标量字段
func (r *PartRepository) Update(ctx context.Context, part *entity.Part) error {
	return r.db.WithContext(ctx).Omit("RouteTemplate", "Responsible", "Children").Save(part).Error
}

// Delete 删除零件及其历史记录，子零件保留
func (r *PartRepository) Delete(ctx context.Context, partID string) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("part_id = ?", partID).Delete(&entity.AuditLog{}).Error; err != nil {
		return err
	}
	if err := db.Where("part_id = ?", partID).Delete(&entity.StatusHistory{}).Error; err != nil {
		return err
	}
	if err := db.Where("part_id = ?", partID).Delete(&entity.ResponsibleHistory{}).Error; err != nil {
		return err
	}
	return db.Delete(&entity.Part{}, "part_id = ?", partID).Error
}

// ListByIDs 批量获取
func (r *PartRepository) ListByIDs(ctx context.Context, partIDs []string) ([]entity.Part, error) {
	var parts []entity.Part
	if len(partIDs) == 0 {
		return parts, nil
	}
	err := r.db.WithContext(ctx).
		Where("part_id IN ?", partIDs).
		Order("part_id ASC").
		Find(&parts).Error
	return parts, err
}

// ListChildren 获取直接子零件
func (r *PartRepository) ListChildren(ctx context.Context, parentID string) ([]entity.Part, error) {
	var parts []entity.Part
	err := r.db.WithContext(ctx).
		Where("parent_id = ?", parentID).
		Order("part_id ASC").
		Find(&parts).Error
	return parts, err
}

// List 分页查询
func (r *PartRepository) List(ctx context.Context, page, pageSize int, filter PartFilter) ([]entity.Part, int64, error) {
	var parts []entity.Part
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.Part{})
	if filter.ProductDesignation != "" {
		query = query.Where("product_designation = ?", filter.ProductDesignation)
	}
	if filter.Status != "" {
		query = query.Where("current_status = ?", filter.Status)
	}
	if filter.ResponsibleID != "" {
		query = query.Where("responsible_id = ?", filter.ResponsibleID)
	}
	if filter.ParentID != "" {
		query = query.Where("parent_id = ?", filter.ParentID)
	}
	if filter.Keyword != "" {
		like := "%" + filter.Keyword + "%"
		query = query.Where("part_id LIKE ? OR name LIKE ?", like, like)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Preload("RouteTemplate").
		Order("created_at DESC, part_id ASC").
		Offset(offset).
		Limit(pageSize).
		Find(&parts).Error

	return parts, total, err
}

// CountByRoute 引用某路线的零件数量
func (r *PartRepository) CountByRoute(ctx context.Context, routeID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.Part{}).
		Where("route_template_id = ?", routeID).
		Count(&count).Error
	return count, err
}

// DetachChildren 清除子零件的父引用
func (r *PartRepository) DetachChildren(ctx context.Context, parentID string) error {
	return r.db.WithContext(ctx).
		Model(&entity.Part{}).
		Where("parent_id = ?", parentID).
		Update("parent_id", nil).Error
}
