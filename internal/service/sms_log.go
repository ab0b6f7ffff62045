package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"maildash/backend/internal/domain"
	"maildash/backend/internal/monitoring"
	"maildash/backend/internal/smslog"
	"maildash/backend/internal/storage"
)

const maxSMSListLimit = 500

// SMSLogService 短信转发邮件入库与查询
type SMSLogService struct {
	store        storage.SMSLogRepository
	defaultLimit int
	metrics      *monitoring.Metrics
	log          *zap.Logger
	now          func() time.Time
}

// NewSMSLogService 创建短信记录服务
func NewSMSLogService(store storage.SMSLogRepository, defaultLimit int, metrics *monitoring.Metrics, log *zap.Logger) *SMSLogService {
	if defaultLimit <= 0 {
		defaultLimit = 100
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &SMSLogService{
		store:        store,
		defaultLimit: defaultLimit,
		metrics:      metrics,
		log:          log,
		now:          time.Now,
	}
}

// IngestInput 入库输入
type IngestInput struct {
	SourceID string // 来源邮件的 Message-ID，用于去重
	Subject  string
	Raw      string
}

// Ingest 解析并保存一条短信记录
//
// 原文总是保存，解析失败时状态为 failed 并记录原因。
// 同一 SourceID 重复入库时返回已有记录，created 为 false。
//
// 返回值:
//   - *domain.SMSLog: 保存的记录
//   - bool: 是否新建
//   - error: 存储错误
func (s *SMSLogService) Ingest(ctx context.Context, input IngestInput) (*domain.SMSLog, bool, error) {
	if strings.TrimSpace(input.Raw) == "" {
		return nil, false, domain.ValidationFailed("raw text is required")
	}
	sourceID := strings.TrimSpace(input.SourceID)
	if sourceID == "" {
		sourceID = uuid.NewString()
	}

	entry := &domain.SMSLog{
		ID:         uuid.NewString(),
		SourceID:   sourceID,
		Subject:    input.Subject,
		RawText:    input.Raw,
		ReceivedAt: s.now().UTC(),
	}

	rec, err := smslog.Parse(input.Raw)
	if err != nil {
		entry.ParseStatus = domain.ParseStatusFailed
		entry.ParseError = err.Error()
	} else {
		entry.Sender = rec.Sender
		entry.SentAt = rec.SentAt
		entry.Content = rec.Content
		entry.ParseStatus = rec.Status
	}

	if err := s.store.SaveSMSLog(ctx, entry); err != nil {
		if !errors.Is(err, domain.ErrConflict) {
			return nil, false, err
		}
		existing, lookupErr := s.store.GetSMSLogBySource(ctx, sourceID)
		if lookupErr != nil {
			return nil, false, err
		}
		s.log.Debug("sms log already ingested", zap.String("source_id", sourceID))
		return existing, false, nil
	}

	s.metrics.RecordSMSIngested(string(entry.ParseStatus))
	s.log.Info("sms log ingested",
		zap.String("id", entry.ID),
		zap.String("source_id", sourceID),
		zap.String("status", string(entry.ParseStatus)),
	)
	return entry, true, nil
}

// List 查询短信记录，按接收时间倒序
func (s *SMSLogService) List(ctx context.Context, filter domain.SMSLogFilter) ([]domain.SMSLog, error) {
	if filter.Limit <= 0 {
		filter.Limit = s.defaultLimit
	}
	if filter.Limit > maxSMSListLimit {
		filter.Limit = maxSMSListLimit
	}
	filter.Query = strings.TrimSpace(filter.Query)
	filter.Sender = strings.TrimSpace(filter.Sender)
	return s.store.ListSMSLogs(ctx, filter)
}

// Get 获取单条短信记录
func (s *SMSLogService) Get(ctx context.Context, id string) (*domain.SMSLog, error) {
	return s.store.GetSMSLog(ctx, id)
}
