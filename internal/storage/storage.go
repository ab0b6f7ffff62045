package storage

import (
	"context"
	"time"

	"maildash/backend/internal/domain"
)

// 存储层统一使用 domain 包中的分类错误：
//   - 记录不存在返回 domain.KindNotFound
//   - 违反唯一约束或条件更新失败返回 domain.KindConflict
//   - 申请对应的域名已被删除返回 domain.KindUpstreamInconsistency

// UserRepository 定义账户数据存取操作。
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	UpdateUser(ctx context.Context, user *domain.User) error
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error
	ListUsers(ctx context.Context, filter domain.UserFilter) ([]domain.User, int, error)
	DeleteUser(ctx context.Context, userID string) error
}

// DomainRepository 定义域名及其邮箱列表的存取操作。
type DomainRepository interface {
	CreateDomain(ctx context.Context, d *domain.Domain) error
	// GetDomain 返回的域名包含按创建时间排序的邮箱列表
	GetDomain(ctx context.Context, id string) (*domain.Domain, error)
	GetDomainByName(ctx context.Context, name string) (*domain.Domain, error)
	ListDomains(ctx context.Context, filter domain.DomainFilter) ([]domain.Domain, error)
	// UpdateDomain 只更新域名自身字段，不修改邮箱列表
	UpdateDomain(ctx context.Context, d *domain.Domain) error
	// DeleteDomain 删除域名，同时删除其邮箱列表和所有邮箱申请
	DeleteDomain(ctx context.Context, id string) error
	// AddMailbox 追加邮箱，(域名, 用户名) 重复时返回冲突
	AddMailbox(ctx context.Context, domainID string, mailbox *domain.DomainMailbox) error
	// ExpireDomains 将到期的 active 域名标记为 expired，返回处理数量
	ExpireDomains(ctx context.Context, now time.Time) (int, error)
}

// EmailRequestRepository 定义邮箱申请存取操作。
type EmailRequestRepository interface {
	// CreateEmailRequest 插入申请；(域名, 用户名) 已有申请或已开通邮箱时返回冲突
	CreateEmailRequest(ctx context.Context, req *domain.EmailRequest) error
	GetEmailRequest(ctx context.Context, id string) (*domain.EmailRequest, error)
	ListEmailRequests(ctx context.Context, filter domain.EmailRequestFilter) ([]domain.EmailRequest, error)
	// UpdateEmailRequest 条件更新：仅当当前状态等于 expected 时写入，否则返回冲突
	UpdateEmailRequest(ctx context.Context, req *domain.EmailRequest, expected domain.RequestStatus) error
	DeleteEmailRequest(ctx context.Context, id string) error
}

// SMSLogRepository 定义短信记录存取操作。
type SMSLogRepository interface {
	// SaveSMSLog 按 SourceID 幂等保存，重复时返回冲突
	SaveSMSLog(ctx context.Context, log *domain.SMSLog) error
	GetSMSLog(ctx context.Context, id string) (*domain.SMSLog, error)
	GetSMSLogBySource(ctx context.Context, sourceID string) (*domain.SMSLog, error)
	ListSMSLogs(ctx context.Context, filter domain.SMSLogFilter) ([]domain.SMSLog, error)
}

// Tx 事务内可用的仓储集合
type Tx interface {
	UserRepository
	DomainRepository
	EmailRequestRepository
	SMSLogRepository
}

// Store 定义完整的存储接口。
type Store interface {
	Tx

	// Atomic 在单个事务中执行 fn，fn 返回错误时全部回滚
	Atomic(ctx context.Context, fn func(tx Tx) error) error

	// 工具方法
	Close() error
	Health(ctx context.Context) error
}
