package entity

import "time"

// 审计分类
const (
	AuditCategoryPart       = "part"
	AuditCategoryManagement = "management"
)

// 审计动作
const (
	AuditActionCreate            = "Create"
	AuditActionEdit              = "Edit"
	AuditActionDelete            = "Delete"
	AuditActionBulkDelete        = "Bulk delete"
	AuditActionCompositionUpdate = "Composition update"
	AuditActionResponsibleChange = "Responsible change"
	AuditActionStageComplete     = "Stage completed"
	AuditActionStageCancel       = "Stage cancelled"
	AuditActionQRGeneration      = "QR generation"
)

// AuditLog 只追加的操作日志
type AuditLog struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	PartID    string    `json:"part_id" gorm:"size:64;not null;index"`
	UserID    string    `json:"user_id" gorm:"size:32"`
	Action    string    `json:"action" gorm:"size:50;not null"`
	Details   string    `json:"details" gorm:"type:text"`
	Category  string    `json:"category" gorm:"size:20;not null;default:part;index"`
	CreatedAt time.Time `json:"timestamp" gorm:"index"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}

// StatusHistory 工序完成记录
type StatusHistory struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	PartID    string    `json:"part_id" gorm:"size:64;not null;index"`
	Status    string    `json:"status" gorm:"size:100;not null"`
	Quantity  int       `json:"quantity" gorm:"not null"`
	UserID    string    `json:"user_id" gorm:"size:32"`
	CreatedAt time.Time `json:"timestamp" gorm:"index"`
}

func (StatusHistory) TableName() string {
	return "status_history"
}

// ResponsibleHistory 负责人变更记录，UserID 为空表示取消指派
type ResponsibleHistory struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	PartID    string    `json:"part_id" gorm:"size:64;not null;index"`
	UserID    *string   `json:"user_id" gorm:"size:32"`
	CreatedAt time.Time `json:"timestamp"`
}

func (ResponsibleHistory) TableName() string {
	return "responsible_history"
}

// AllModels 需要迁移的全部模型
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&Stage{},
		&RouteTemplate{},
		&RouteStage{},
		&SystemSetting{},
		&Part{},
		&AuditLog{},
		&StatusHistory{},
		&ResponsibleHistory{},
	}
}
