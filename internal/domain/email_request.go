package domain

import (
	"fmt"
	"strings"
	"time"
)

// RequestStatus 邮箱申请状态
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusCreated  RequestStatus = "created"
	RequestStatusRejected RequestStatus = "rejected"
)

// Valid 判断状态取值是否合法
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestStatusPending, RequestStatusCreated, RequestStatusRejected:
		return true
	}
	return false
}

// IsTerminal 已开通或已拒绝的申请不再离开当前状态
func (s RequestStatus) IsTerminal() bool {
	return s == RequestStatusCreated || s == RequestStatusRejected
}

// TransportSettings 收发信服务器参数，零值字段表示未设置
type TransportSettings struct {
	Server   string `json:"server,omitempty"`
	Port     int    `json:"port,omitempty"`
	Security string `json:"security,omitempty"` // SSL/TLS、STARTTLS 或 none
	Username string `json:"username,omitempty"`
	Secret   string `json:"secret,omitempty"`
}

// Merge 浅合并：patch 中已设置的字段覆盖原值，其余字段保留
//
// 参数:
//   - patch: 本次提交的部分参数，可为 nil
//
// 返回值:
//   - *TransportSettings: 合并后的新对象，两者都为 nil 时返回 nil
func (t *TransportSettings) Merge(patch *TransportSettings) *TransportSettings {
	if t == nil && patch == nil {
		return nil
	}
	out := &TransportSettings{}
	if t != nil {
		*out = *t
	}
	if patch == nil {
		return out
	}
	if patch.Server != "" {
		out.Server = patch.Server
	}
	if patch.Port != 0 {
		out.Port = patch.Port
	}
	if patch.Security != "" {
		out.Security = patch.Security
	}
	if patch.Username != "" {
		out.Username = patch.Username
	}
	if patch.Secret != "" {
		out.Secret = patch.Secret
	}
	return out
}

// EmailRequest 在某个域名上开通邮箱的申请
type EmailRequest struct {
	ID               string             `json:"id" gorm:"primaryKey;type:varchar(36)"`
	DomainID         string             `json:"domainId" gorm:"type:varchar(36);not null;uniqueIndex:idx_email_request_domain_username,priority:1"`
	DomainName       string             `json:"domainName" gorm:"type:varchar(253);not null"`
	Username         string             `json:"username" gorm:"type:varchar(64);not null;uniqueIndex:idx_email_request_domain_username,priority:2"`
	FullEmailAddress string             `json:"fullEmailAddress" gorm:"type:varchar(320);not null"`
	Secret           string             `json:"-" gorm:"type:varchar(255);not null"`
	RequestedBy      string             `json:"requestedBy" gorm:"type:varchar(36);not null;index"`
	Status           RequestStatus      `json:"status" gorm:"type:varchar(20);not null;default:'pending';index"`
	Notes            string             `json:"notes,omitempty" gorm:"type:text"`
	ProcessedBy      string             `json:"processedBy,omitempty" gorm:"type:varchar(36)"`
	ProcessedAt      *time.Time         `json:"processedAt,omitempty"`
	OutboundSettings *TransportSettings `json:"outboundSettings,omitempty" gorm:"serializer:json;type:text"`
	InboundSettings  *TransportSettings `json:"inboundSettings,omitempty" gorm:"serializer:json;type:text"`
	CreatedAt        time.Time          `json:"createdAt"`
	UpdatedAt        time.Time          `json:"updatedAt"`
}

// Clone 返回深拷贝，存储层借此避免调用方修改共享状态
func (r *EmailRequest) Clone() *EmailRequest {
	if r == nil {
		return nil
	}
	c := *r
	if r.ProcessedAt != nil {
		t := *r.ProcessedAt
		c.ProcessedAt = &t
	}
	if r.OutboundSettings != nil {
		s := *r.OutboundSettings
		c.OutboundSettings = &s
	}
	if r.InboundSettings != nil {
		s := *r.InboundSettings
		c.InboundSettings = &s
	}
	return &c
}

// EmailRequestFilter 申请列表筛选条件
type EmailRequestFilter struct {
	RequestedBy string // 为空表示全部
	DomainID    string
	Status      *RequestStatus
}

// NormalizeUsername 规范化邮箱用户名（去空白并转小写）
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// ComposeAddress 拼接完整邮箱地址
func ComposeAddress(username, domainName string) string {
	return fmt.Sprintf("%s@%s", NormalizeUsername(username), strings.ToLower(domainName))
}
