package entity

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// RouteTemplate 工艺路线模板
type RouteTemplate struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"size:512;not null;uniqueIndex"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Stages []RouteStage `json:"stages,omitempty" gorm:"foreignKey:TemplateID"`

	// 非数据库字段，由 SystemSetting 推导
	IsDefault bool `json:"is_default" gorm:"-"`
}

func (RouteTemplate) TableName() string {
	return "route_templates"
}

// StageNames 按顺序返回阶段名称
func (t *RouteTemplate) StageNames() []string {
	names := make([]string, 0, len(t.Stages))
	for _, rs := range t.Stages {
		if rs.Stage != nil {
			names = append(names, rs.Stage.Name)
		}
	}
	return names
}

// RouteStage 路线中的一个工序位置，Order 从 0 开始
type RouteStage struct {
	ID         uint   `json:"id" gorm:"primaryKey"`
	TemplateID uint   `json:"template_id" gorm:"not null;uniqueIndex:idx_route_stage_order"`
	StageID    uint   `json:"stage_id" gorm:"not null;index"`
	Order      int    `json:"order" gorm:"column:stage_order;not null;uniqueIndex:idx_route_stage_order"`
	Stage      *Stage `json:"stage,omitempty" gorm:"foreignKey:StageID"`
}

func (RouteStage) TableName() string {
	return "route_stages"
}

// Stage 工序（车、铣、焊……）
type Stage struct {
	ID      uint   `json:"id" gorm:"primaryKey"`
	Name    string `json:"name" gorm:"size:100;not null"`
	NameKey string `json:"-" gorm:"size:100;not null;uniqueIndex"`
}

func (Stage) TableName() string {
	return "stages"
}

// BeforeSave 维护大小写无关的唯一键
func (s *Stage) BeforeSave(tx *gorm.DB) error {
	s.NameKey = StageKey(s.Name)
	return nil
}

// StageKey 工序名称的归一化键
func StageKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// SystemSetting 单行系统配置，保存默认路线
type SystemSetting struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	DefaultRouteID *uint     `json:"default_route_id"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (SystemSetting) TableName() string {
	return "system_settings"
}

// SystemSettingID 唯一一行的主键
const SystemSettingID uint = 1
