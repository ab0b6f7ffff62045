package domain

import "time"

// DomainStatus 域名生命周期状态
type DomainStatus string

const (
	DomainStatusActive    DomainStatus = "active"
	DomainStatusExpired   DomainStatus = "expired"
	DomainStatusPending   DomainStatus = "pending"
	DomainStatusCancelled DomainStatus = "cancelled"
)

// Valid 判断状态取值是否合法
func (s DomainStatus) Valid() bool {
	switch s {
	case DomainStatusActive, DomainStatusExpired, DomainStatusPending, DomainStatusCancelled:
		return true
	}
	return false
}

// Domain 通过注册商购买或同步导入的域名
type Domain struct {
	ID             string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name           string          `json:"name" gorm:"uniqueIndex;type:varchar(253);not null"`
	Status         DomainStatus    `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	OwnerID        string          `json:"ownerId" gorm:"type:varchar(36);index;not null"`
	RegisteredAt   *time.Time      `json:"registeredAt,omitempty"`
	ExpiresAt      *time.Time      `json:"expiresAt,omitempty" gorm:"index"`
	AutoRenew      bool            `json:"autoRenew" gorm:"default:false"`
	RegistrarID    string          `json:"registrarId,omitempty" gorm:"type:varchar(64)"`
	RegistrarOrder string          `json:"registrarOrder,omitempty" gorm:"type:varchar(64)"`
	Mailboxes      []DomainMailbox `json:"mailboxes" gorm:"foreignKey:DomainID;constraint:OnDelete:CASCADE"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// IsActive 域名是否可接受邮箱申请
func (d *Domain) IsActive() bool {
	return d.Status == DomainStatusActive
}

// HasMailbox 判断用户名是否已作为邮箱存在（大小写不敏感）
func (d *Domain) HasMailbox(username string) bool {
	username = NormalizeUsername(username)
	for _, mb := range d.Mailboxes {
		if NormalizeUsername(mb.Username) == username {
			return true
		}
	}
	return false
}

// DomainMailbox 已在域名上开通的邮箱
type DomainMailbox struct {
	ID        string    `json:"-" gorm:"primaryKey;type:varchar(36)"`
	DomainID  string    `json:"-" gorm:"type:varchar(36);not null;uniqueIndex:idx_domain_mailbox_username,priority:1"`
	Username  string    `json:"username" gorm:"type:varchar(64);not null;uniqueIndex:idx_domain_mailbox_username,priority:2"`
	FullEmail string    `json:"fullEmail" gorm:"type:varchar(320);not null"`
	CreatedAt time.Time `json:"createdAt"`
}

// DomainFilter 域名列表筛选条件
type DomainFilter struct {
	OwnerID string // 为空表示全部
	Status  *DomainStatus
}
