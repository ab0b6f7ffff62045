package sql

import (
	"context"
	"strings"

	"maildash/backend/internal/domain"
)

// SaveSMSLog 保存短信记录，source_id 重复时返回 Conflict
func (s *Store) SaveSMSLog(ctx context.Context, log *domain.SMSLog) error {
	return translate(s.db.WithContext(ctx).Create(log).Error, "sms log not found", "sms log already ingested")
}

// GetSMSLog 根据 ID 获取短信记录
func (s *Store) GetSMSLog(ctx context.Context, id string) (*domain.SMSLog, error) {
	var log domain.SMSLog
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&log).Error; err != nil {
		return nil, translate(err, "sms log not found", "")
	}
	return &log, nil
}

// GetSMSLogBySource 根据来源邮件 ID 获取短信记录
func (s *Store) GetSMSLogBySource(ctx context.Context, sourceID string) (*domain.SMSLog, error) {
	var log domain.SMSLog
	if err := s.db.WithContext(ctx).Where("source_id = ?", sourceID).First(&log).Error; err != nil {
		return nil, translate(err, "sms log not found", "")
	}
	return &log, nil
}

// ListSMSLogs 按接收时间倒序列出短信记录
func (s *Store) ListSMSLogs(ctx context.Context, filter domain.SMSLogFilter) ([]domain.SMSLog, error) {
	query := s.db.WithContext(ctx).Model(&domain.SMSLog{})
	if filter.Sender != "" {
		query = query.Where("LOWER(sender) = ?", strings.ToLower(filter.Sender))
	}
	if filter.Query != "" {
		like := "%" + strings.ToLower(filter.Query) + "%"
		query = query.Where("LOWER(content) LIKE ? OR LOWER(sender) LIKE ?", like, like)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	logs := make([]domain.SMSLog, 0)
	if err := query.Order("received_at DESC").Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
