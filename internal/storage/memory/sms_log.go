package memory

import (
	"context"
	"sort"
	"strings"

	"maildash/backend/internal/domain"
)

func cloneSMSLog(l *domain.SMSLog) *domain.SMSLog {
	c := *l
	if l.SentAt != nil {
		t := *l.SentAt
		c.SentAt = &t
	}
	return &c
}

// SaveSMSLog 保存短信记录，SourceID 重复时返回冲突
func (v *view) SaveSMSLog(ctx context.Context, log *domain.SMSLog) error {
	if _, ok := v.st.bySource[log.SourceID]; ok {
		return domain.Conflict("sms log already ingested")
	}
	v.st.smsLogs[log.ID] = cloneSMSLog(log)
	v.st.bySource[log.SourceID] = log.ID
	return nil
}

// GetSMSLog 根据 ID 获取短信记录
func (v *view) GetSMSLog(ctx context.Context, id string) (*domain.SMSLog, error) {
	l, ok := v.st.smsLogs[id]
	if !ok {
		return nil, domain.NotFound("sms log not found")
	}
	return cloneSMSLog(l), nil
}

// GetSMSLogBySource 根据来源邮件 ID 获取短信记录
func (v *view) GetSMSLogBySource(ctx context.Context, sourceID string) (*domain.SMSLog, error) {
	id, ok := v.st.bySource[sourceID]
	if !ok {
		return nil, domain.NotFound("sms log not found")
	}
	return v.GetSMSLog(ctx, id)
}

// ListSMSLogs 按接收时间倒序列出短信记录
func (v *view) ListSMSLogs(ctx context.Context, filter domain.SMSLogFilter) ([]domain.SMSLog, error) {
	query := strings.ToLower(filter.Query)
	out := make([]domain.SMSLog, 0)
	for _, l := range v.st.smsLogs {
		if filter.Sender != "" && !strings.EqualFold(l.Sender, filter.Sender) {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(l.Content), query) &&
			!strings.Contains(strings.ToLower(l.Sender), query) {
			continue
		}
		out = append(out, *cloneSMSLog(l))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ReceivedAt.After(out[j].ReceivedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) SaveSMSLog(ctx context.Context, log *domain.SMSLog) error {
	return s.write(func(v *view) error { return v.SaveSMSLog(ctx, log) })
}

func (s *Store) GetSMSLog(ctx context.Context, id string) (l *domain.SMSLog, err error) {
	err = s.read(func(v *view) error { l, err = v.GetSMSLog(ctx, id); return err })
	return l, err
}

func (s *Store) GetSMSLogBySource(ctx context.Context, sourceID string) (l *domain.SMSLog, err error) {
	err = s.read(func(v *view) error { l, err = v.GetSMSLogBySource(ctx, sourceID); return err })
	return l, err
}

func (s *Store) ListSMSLogs(ctx context.Context, filter domain.SMSLogFilter) (list []domain.SMSLog, err error) {
	err = s.read(func(v *view) error { list, err = v.ListSMSLogs(ctx, filter); return err })
	return list, err
}
