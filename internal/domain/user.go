package domain

import "time"

// UserRole 用户角色
type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
	RoleSuper UserRole = "super" // 超级管理员
)

// Valid 判断角色取值是否合法
func (r UserRole) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleSuper:
		return true
	}
	return false
}

// User 表示仪表盘账户
type User struct {
	ID           string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Username     string     `json:"username" gorm:"type:varchar(100);not null"`
	UsernameKey  string     `json:"-" gorm:"uniqueIndex;type:varchar(100);not null"` // 小写用户名，数据库层保证大小写不敏感唯一
	Email        string     `json:"email" gorm:"uniqueIndex;type:varchar(255);not null"`
	PasswordHash string     `json:"-" gorm:"type:varchar(255)"` // 不返回给前端
	Role         UserRole   `json:"role" gorm:"type:varchar(20);default:'user';index"`
	IsActive     bool       `json:"isActive" gorm:"default:true"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty"`
}

// IsAdmin 判断用户是否具备管理员能力
func (u *User) IsAdmin() bool {
	return u != nil && (u.Role == RoleAdmin || u.Role == RoleSuper)
}

// IsSuper 判断用户是否为超级管理员
func (u *User) IsSuper() bool {
	return u != nil && u.Role == RoleSuper
}

// UserFilter 用户列表筛选条件
type UserFilter struct {
	Page     int
	PageSize int
	Search   string // 匹配用户名或邮箱
	Role     *UserRole
	IsActive *bool
}
