package entity

import "time"

// 零件状态
const (
	PartStatusInStock = "In stock"
)

// Part 生产零件（叶子零件或装配体）
type Part struct {
	PartID             string    `json:"part_id" gorm:"primaryKey;size:64"`
	ProductDesignation string    `json:"product_designation" gorm:"size:200;index"`
	Name               string    `json:"name" gorm:"size:200;not null"`
	Material           string    `json:"material" gorm:"size:100"`
	Size               string    `json:"size" gorm:"size:100"`
	QuantityTotal      int       `json:"quantity_total" gorm:"not null;default:1"`
	QuantityCompleted  int       `json:"quantity_completed" gorm:"not null;default:0"`
	DrawingHandle      *string   `json:"drawing_handle,omitempty" gorm:"size:512"`
	RouteTemplateID    *uint     `json:"route_template_id" gorm:"index"`
	ParentID           *string   `json:"parent_id,omitempty" gorm:"size:64;index"`
	ResponsibleID      *string   `json:"responsible_id,omitempty" gorm:"size:32;index"`
	CurrentStatus      string    `json:"current_status" gorm:"size:100;not null;default:'In stock'"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`

	// 关联
	RouteTemplate *RouteTemplate `json:"route_template,omitempty" gorm:"foreignKey:RouteTemplateID"`
	Responsible   *User          `json:"responsible,omitempty" gorm:"foreignKey:ResponsibleID"`
	Children      []Part         `json:"children,omitempty" gorm:"foreignKey:ParentID"`
}

func (Part) TableName() string {
	return "parts"
}

// IsAssembly 是否有子零件
func (p *Part) IsAssembly() bool {
	return len(p.Children) > 0
}

// Remaining 剩余未完成数量
func (p *Part) Remaining() int {
	if p.QuantityCompleted >= p.QuantityTotal {
		return 0
	}
	return p.QuantityTotal - p.QuantityCompleted
}
