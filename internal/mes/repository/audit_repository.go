package repository

import (
	"context"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"gorm.io/gorm"
)

// AuditRepository 审计日志仓库
type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Record 追加一条审计日志
func (r *AuditRepository) Record(ctx context.Context, partID, userID, action, details, category string) error {
	log := &entity.AuditLog{
		PartID:   partID,
		UserID:   userID,
		Action:   action,
		Details:  details,
		Category: category,
	}
	return r.db.WithContext(ctx).Create(log).Error
}

// ListByPart 查询某零件的审计日志
func (r *AuditRepository) ListByPart(ctx context.Context, partID string) ([]entity.AuditLog, error) {
	var logs []entity.AuditLog
	err := r.db.WithContext(ctx).
		Where("part_id = ?", partID).
		Order("created_at DESC, id DESC").
		Find(&logs).Error
	return logs, err
}

// List 分页查询全部审计日志
func (r *AuditRepository) List(ctx context.Context, category string, page, pageSize int) ([]entity.AuditLog, int64, error) {
	var logs []entity.AuditLog
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.AuditLog{})
	if category != "" {
		query = query.Where("category = ?", category)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&logs).Error

	return logs, total, err
}

// HistoryRepository 工序完成与负责人变更记录
type HistoryRepository struct {
	db *gorm.DB
}

func NewHistoryRepository(db *gorm.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

func (r *HistoryRepository) CreateStatus(ctx context.Context, h *entity.StatusHistory) error {
	return r.db.WithContext(ctx).Create(h).Error
}

func (r *HistoryRepository) FindStatus(ctx context.Context, id uint) (*entity.StatusHistory, error) {
	var h entity.StatusHistory
	if err := r.db.WithContext(ctx).First(&h, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &h, nil
}

func (r *HistoryRepository) DeleteStatus(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&entity.StatusHistory{}, "id = ?", id).Error
}

// LatestStatus 最近一条工序记录，没有返回 nil
func (r *HistoryRepository) LatestStatus(ctx context.Context, partID string) (*entity.StatusHistory, error) {
	var h entity.StatusHistory
	err := r.db.WithContext(ctx).
		Where("part_id = ?", partID).
		Order("created_at DESC, id DESC").
		First(&h).Error
	if err != nil {
		if err = notFound(err); err == ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &h, nil
}

func (r *HistoryRepository) ListStatus(ctx context.Context, partID string) ([]entity.StatusHistory, error) {
	var items []entity.StatusHistory
	err := r.db.WithContext(ctx).
		Where("part_id = ?", partID).
		Order("created_at ASC, id ASC").
		Find(&items).Error
	return items, err
}

func (r *HistoryRepository) CreateResponsible(ctx context.Context, h *entity.ResponsibleHistory) error {
	return r.db.WithContext(ctx).Create(h).Error
}
