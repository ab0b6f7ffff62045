package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"maildash/backend/internal/domain"
)

func cloneDomain(d *domain.Domain) *domain.Domain {
	c := *d
	if d.RegisteredAt != nil {
		t := *d.RegisteredAt
		c.RegisteredAt = &t
	}
	if d.ExpiresAt != nil {
		t := *d.ExpiresAt
		c.ExpiresAt = &t
	}
	c.Mailboxes = append([]domain.DomainMailbox(nil), d.Mailboxes...)
	return &c
}

func mailboxKey(domainID, username string) string {
	return domainID + "/" + domain.NormalizeUsername(username)
}

// CreateDomain 创建域名，名称唯一
func (v *view) CreateDomain(ctx context.Context, d *domain.Domain) error {
	name := strings.ToLower(d.Name)
	if _, ok := v.st.domains[d.ID]; ok {
		return domain.Conflict("domain already exists")
	}
	if _, ok := v.st.byDomainName[name]; ok {
		return domain.Conflict("domain already exists")
	}
	stored := cloneDomain(d)
	stored.Name = name
	v.st.domains[d.ID] = stored
	v.st.byDomainName[name] = d.ID
	return nil
}

// GetDomain 根据 ID 获取域名
func (v *view) GetDomain(ctx context.Context, id string) (*domain.Domain, error) {
	d, ok := v.st.domains[id]
	if !ok {
		return nil, domain.NotFound("domain not found")
	}
	return cloneDomain(d), nil
}

// GetDomainByName 根据名称获取域名
func (v *view) GetDomainByName(ctx context.Context, name string) (*domain.Domain, error) {
	id, ok := v.st.byDomainName[strings.ToLower(name)]
	if !ok {
		return nil, domain.NotFound("domain not found")
	}
	return v.GetDomain(ctx, id)
}

// ListDomains 列出域名，按名称排序
func (v *view) ListDomains(ctx context.Context, filter domain.DomainFilter) ([]domain.Domain, error) {
	out := make([]domain.Domain, 0, len(v.st.domains))
	for _, d := range v.st.domains {
		if filter.OwnerID != "" && d.OwnerID != filter.OwnerID {
			continue
		}
		if filter.Status != nil && d.Status != *filter.Status {
			continue
		}
		out = append(out, *cloneDomain(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// UpdateDomain 更新域名字段，保留现有邮箱列表
func (v *view) UpdateDomain(ctx context.Context, d *domain.Domain) error {
	old, ok := v.st.domains[d.ID]
	if !ok {
		return domain.NotFound("domain not found")
	}
	updated := cloneDomain(d)
	updated.Name = old.Name
	updated.Mailboxes = append([]domain.DomainMailbox(nil), old.Mailboxes...)
	v.st.domains[d.ID] = updated
	return nil
}

// DeleteDomain 删除域名及其邮箱申请
func (v *view) DeleteDomain(ctx context.Context, id string) error {
	d, ok := v.st.domains[id]
	if !ok {
		return domain.NotFound("domain not found")
	}
	for reqID, req := range v.st.requests {
		if req.DomainID == id {
			delete(v.st.byMailbox, mailboxKey(req.DomainID, req.Username))
			delete(v.st.requests, reqID)
		}
	}
	delete(v.st.byDomainName, d.Name)
	delete(v.st.domains, id)
	return nil
}

// AddMailbox 追加邮箱
func (v *view) AddMailbox(ctx context.Context, domainID string, mailbox *domain.DomainMailbox) error {
	d, ok := v.st.domains[domainID]
	if !ok {
		return domain.NotFound("domain not found")
	}
	if d.HasMailbox(mailbox.Username) {
		return domain.Conflict("mailbox already exists on domain")
	}
	updated := cloneDomain(d)
	mb := *mailbox
	mb.DomainID = domainID
	mb.Username = domain.NormalizeUsername(mb.Username)
	updated.Mailboxes = append(updated.Mailboxes, mb)
	updated.UpdatedAt = mb.CreatedAt
	v.st.domains[domainID] = updated
	return nil
}

// ExpireDomains 将已过期的 active 域名标记为 expired
func (v *view) ExpireDomains(ctx context.Context, now time.Time) (int, error) {
	count := 0
	for id, d := range v.st.domains {
		if d.Status != domain.DomainStatusActive || d.ExpiresAt == nil || d.ExpiresAt.After(now) {
			continue
		}
		updated := cloneDomain(d)
		updated.Status = domain.DomainStatusExpired
		updated.UpdatedAt = now
		v.st.domains[id] = updated
		count++
	}
	return count, nil
}

func (s *Store) CreateDomain(ctx context.Context, d *domain.Domain) error {
	return s.write(func(v *view) error { return v.CreateDomain(ctx, d) })
}

func (s *Store) GetDomain(ctx context.Context, id string) (d *domain.Domain, err error) {
	err = s.read(func(v *view) error { d, err = v.GetDomain(ctx, id); return err })
	return d, err
}

func (s *Store) GetDomainByName(ctx context.Context, name string) (d *domain.Domain, err error) {
	err = s.read(func(v *view) error { d, err = v.GetDomainByName(ctx, name); return err })
	return d, err
}

func (s *Store) ListDomains(ctx context.Context, filter domain.DomainFilter) (list []domain.Domain, err error) {
	err = s.read(func(v *view) error { list, err = v.ListDomains(ctx, filter); return err })
	return list, err
}

func (s *Store) UpdateDomain(ctx context.Context, d *domain.Domain) error {
	return s.write(func(v *view) error { return v.UpdateDomain(ctx, d) })
}

func (s *Store) DeleteDomain(ctx context.Context, id string) error {
	return s.write(func(v *view) error { return v.DeleteDomain(ctx, id) })
}

func (s *Store) AddMailbox(ctx context.Context, domainID string, mailbox *domain.DomainMailbox) error {
	return s.write(func(v *view) error { return v.AddMailbox(ctx, domainID, mailbox) })
}

func (s *Store) ExpireDomains(ctx context.Context, now time.Time) (n int, err error) {
	err = s.write(func(v *view) error { n, err = v.ExpireDomains(ctx, now); return err })
	return n, err
}
