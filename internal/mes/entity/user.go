package entity

import "time"

// User 用户实体
type User struct {
	ID        string    `json:"id" gorm:"primaryKey;size:32"`
	Username  string    `json:"username" gorm:"size:64;not null;uniqueIndex"`
	Name      string    `json:"name" gorm:"size:64"`
	Role      string    `json:"role" gorm:"size:32;not null;default:operator"` // admin/technologist/operator
	Status    string    `json:"status" gorm:"size:16;not null;default:active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// DisplayName 用于日志和通知的用户名
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}
