package sql

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"maildash/backend/internal/domain"
)

const domainNotFound = "domain not found"

func withMailboxes(db *gorm.DB) *gorm.DB {
	return db.Preload("Mailboxes", func(db *gorm.DB) *gorm.DB {
		return db.Order("created_at ASC")
	})
}

// CreateDomain 创建域名，名称唯一
func (s *Store) CreateDomain(ctx context.Context, d *domain.Domain) error {
	d.Name = strings.ToLower(d.Name)
	err := s.db.WithContext(ctx).Omit("Mailboxes").Create(d).Error
	return translate(err, domainNotFound, "domain already exists")
}

// GetDomain 根据 ID 获取域名（含邮箱列表）
func (s *Store) GetDomain(ctx context.Context, id string) (*domain.Domain, error) {
	var d domain.Domain
	if err := withMailboxes(s.db.WithContext(ctx)).Where("id = ?", id).First(&d).Error; err != nil {
		return nil, translate(err, domainNotFound, "")
	}
	return &d, nil
}

// GetDomainByName 根据名称获取域名
func (s *Store) GetDomainByName(ctx context.Context, name string) (*domain.Domain, error) {
	var d domain.Domain
	if err := withMailboxes(s.db.WithContext(ctx)).Where("name = ?", strings.ToLower(name)).First(&d).Error; err != nil {
		return nil, translate(err, domainNotFound, "")
	}
	return &d, nil
}

// ListDomains 列出域名，按名称排序
func (s *Store) ListDomains(ctx context.Context, filter domain.DomainFilter) ([]domain.Domain, error) {
	query := withMailboxes(s.db.WithContext(ctx))
	if filter.OwnerID != "" {
		query = query.Where("owner_id = ?", filter.OwnerID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	domains := make([]domain.Domain, 0)
	if err := query.Order("name ASC").Find(&domains).Error; err != nil {
		return nil, err
	}
	return domains, nil
}

// UpdateDomain 更新域名状态和注册信息，不修改名称和邮箱列表
func (s *Store) UpdateDomain(ctx context.Context, d *domain.Domain) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing domain.Domain
		if err := tx.Where("id = ?", d.ID).First(&existing).Error; err != nil {
			return translate(err, domainNotFound, "")
		}
		return tx.Model(d).
			Select("status", "owner_id", "registered_at", "expires_at", "auto_renew",
				"registrar_id", "registrar_order", "updated_at").
			Updates(d).Error
	})
}

// DeleteDomain 删除域名，同时删除其邮箱和邮箱申请
func (s *Store) DeleteDomain(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("domain_id = ?", id).Delete(&domain.EmailRequest{}).Error; err != nil {
			return err
		}
		if err := tx.Where("domain_id = ?", id).Delete(&domain.DomainMailbox{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&domain.Domain{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.NotFound(domainNotFound)
		}
		return nil
	})
}

// AddMailbox 追加邮箱，(domain_id, username) 唯一索引冲突时返回 Conflict
func (s *Store) AddMailbox(ctx context.Context, domainID string, mailbox *domain.DomainMailbox) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&domain.Domain{}).Where("id = ?", domainID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return domain.NotFound(domainNotFound)
		}
		mailbox.DomainID = domainID
		mailbox.Username = domain.NormalizeUsername(mailbox.Username)
		if err := tx.Create(mailbox).Error; err != nil {
			return translate(err, domainNotFound, "mailbox already exists on domain")
		}
		return tx.Model(&domain.Domain{}).Where("id = ?", domainID).
			UpdateColumn("updated_at", mailbox.CreatedAt).Error
	})
}

// ExpireDomains 将已过期的 active 域名标记为 expired
func (s *Store) ExpireDomains(ctx context.Context, now time.Time) (int, error) {
	result := s.db.WithContext(ctx).Model(&domain.Domain{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", domain.DomainStatusActive, now).
		Updates(map[string]interface{}{
			"status":     domain.DomainStatusExpired,
			"updated_at": now,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return int(result.RowsAffected), nil
}
