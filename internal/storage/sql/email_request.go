package sql

import (
	"context"

	"gorm.io/gorm"

	"maildash/backend/internal/domain"
)

const requestNotFound = "email request not found"

// CreateEmailRequest 插入申请
//
// (domain_id, username) 由唯一索引保护，并发提交时只有一个能成功，
// 其余返回 Conflict；已开通的邮箱同样视为冲突
func (s *Store) CreateEmailRequest(ctx context.Context, req *domain.EmailRequest) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&domain.DomainMailbox{}).
			Where("domain_id = ? AND username = ?", req.DomainID, req.Username).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return domain.Conflict("mailbox already exists on domain")
		}
		return translate(tx.Create(req).Error, requestNotFound, "mailbox already requested")
	})
}

// GetEmailRequest 根据 ID 获取申请
func (s *Store) GetEmailRequest(ctx context.Context, id string) (*domain.EmailRequest, error) {
	var req domain.EmailRequest
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&req).Error; err != nil {
		return nil, translate(err, requestNotFound, "")
	}
	return &req, nil
}

// ListEmailRequests 列出申请，按创建时间倒序
func (s *Store) ListEmailRequests(ctx context.Context, filter domain.EmailRequestFilter) ([]domain.EmailRequest, error) {
	query := s.db.WithContext(ctx).Model(&domain.EmailRequest{})
	if filter.RequestedBy != "" {
		query = query.Where("requested_by = ?", filter.RequestedBy)
	}
	if filter.DomainID != "" {
		query = query.Where("domain_id = ?", filter.DomainID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	requests := make([]domain.EmailRequest, 0)
	if err := query.Order("created_at DESC").Find(&requests).Error; err != nil {
		return nil, err
	}
	return requests, nil
}

// UpdateEmailRequest 条件更新申请，仅当当前状态等于 expected 时写入
func (s *Store) UpdateEmailRequest(ctx context.Context, req *domain.EmailRequest, expected domain.RequestStatus) error {
	result := s.db.WithContext(ctx).Model(req).
		Where("status = ?", expected).
		Select("status", "notes", "secret", "processed_by", "processed_at",
			"outbound_settings", "inbound_settings", "updated_at").
		Updates(req)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&domain.EmailRequest{}).Where("id = ?", req.ID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return domain.NotFound(requestNotFound)
	}
	return domain.Conflict("email request was modified concurrently")
}

// DeleteEmailRequest 删除申请
func (s *Store) DeleteEmailRequest(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.EmailRequest{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.NotFound(requestNotFound)
	}
	return nil
}
