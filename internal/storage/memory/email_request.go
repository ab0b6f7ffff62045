package memory

import (
	"context"
	"sort"

	"maildash/backend/internal/domain"
)

// CreateEmailRequest 插入申请，(域名, 用户名) 在申请和已开通邮箱中都必须唯一
func (v *view) CreateEmailRequest(ctx context.Context, req *domain.EmailRequest) error {
	key := mailboxKey(req.DomainID, req.Username)
	if _, ok := v.st.byMailbox[key]; ok {
		return domain.Conflict("mailbox already requested")
	}
	if d, ok := v.st.domains[req.DomainID]; ok && d.HasMailbox(req.Username) {
		return domain.Conflict("mailbox already exists on domain")
	}
	if _, ok := v.st.requests[req.ID]; ok {
		return domain.Conflict("request already exists")
	}
	v.st.requests[req.ID] = req.Clone()
	v.st.byMailbox[key] = req.ID
	return nil
}

// GetEmailRequest 根据 ID 获取申请
func (v *view) GetEmailRequest(ctx context.Context, id string) (*domain.EmailRequest, error) {
	req, ok := v.st.requests[id]
	if !ok {
		return nil, domain.NotFound("email request not found")
	}
	return req.Clone(), nil
}

// ListEmailRequests 列出申请，按创建时间倒序
func (v *view) ListEmailRequests(ctx context.Context, filter domain.EmailRequestFilter) ([]domain.EmailRequest, error) {
	out := make([]domain.EmailRequest, 0)
	for _, req := range v.st.requests {
		if filter.RequestedBy != "" && req.RequestedBy != filter.RequestedBy {
			continue
		}
		if filter.DomainID != "" && req.DomainID != filter.DomainID {
			continue
		}
		if filter.Status != nil && req.Status != *filter.Status {
			continue
		}
		out = append(out, *req.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// UpdateEmailRequest 条件更新申请
func (v *view) UpdateEmailRequest(ctx context.Context, req *domain.EmailRequest, expected domain.RequestStatus) error {
	current, ok := v.st.requests[req.ID]
	if !ok {
		return domain.NotFound("email request not found")
	}
	if current.Status != expected {
		return domain.Conflict("email request was modified concurrently")
	}
	updated := req.Clone()
	// 申请的归属字段不可变
	updated.DomainID = current.DomainID
	updated.Username = current.Username
	updated.CreatedAt = current.CreatedAt
	v.st.requests[req.ID] = updated
	return nil
}

// DeleteEmailRequest 删除申请
func (v *view) DeleteEmailRequest(ctx context.Context, id string) error {
	req, ok := v.st.requests[id]
	if !ok {
		return domain.NotFound("email request not found")
	}
	delete(v.st.byMailbox, mailboxKey(req.DomainID, req.Username))
	delete(v.st.requests, id)
	return nil
}

func (s *Store) CreateEmailRequest(ctx context.Context, req *domain.EmailRequest) error {
	return s.write(func(v *view) error { return v.CreateEmailRequest(ctx, req) })
}

func (s *Store) GetEmailRequest(ctx context.Context, id string) (req *domain.EmailRequest, err error) {
	err = s.read(func(v *view) error { req, err = v.GetEmailRequest(ctx, id); return err })
	return req, err
}

func (s *Store) ListEmailRequests(ctx context.Context, filter domain.EmailRequestFilter) (list []domain.EmailRequest, err error) {
	err = s.read(func(v *view) error { list, err = v.ListEmailRequests(ctx, filter); return err })
	return list, err
}

func (s *Store) UpdateEmailRequest(ctx context.Context, req *domain.EmailRequest, expected domain.RequestStatus) error {
	return s.write(func(v *view) error { return v.UpdateEmailRequest(ctx, req, expected) })
}

func (s *Store) DeleteEmailRequest(ctx context.Context, id string) error {
	return s.write(func(v *view) error { return v.DeleteEmailRequest(ctx, id) })
}
