package service

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"maildash/backend/internal/credcache"
	"maildash/backend/internal/domain"
	"maildash/backend/internal/monitoring"
	"maildash/backend/internal/registrar"
	"maildash/backend/internal/storage"
)

// 同步时并发处理的域名条目数
const syncConcurrency = 4

// DomainService 域名购买、同步与生命周期管理
type DomainService struct {
	store        storage.Store
	registrar    registrar.Registrar
	defaultYears int
	metrics      *monitoring.Metrics
	log          *zap.Logger
	now          func() time.Time
	syncGroup    singleflight.Group
}

// NewDomainService 创建域名服务
func NewDomainService(store storage.Store, reg registrar.Registrar, defaultYears int, metrics *monitoring.Metrics, log *zap.Logger) *DomainService {
	if defaultYears <= 0 {
		defaultYears = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &DomainService{
		store:        store,
		registrar:    reg,
		defaultYears: defaultYears,
		metrics:      metrics,
		log:          log,
		now:          time.Now,
	}
}

// SyncResult 同步结果
type SyncResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

func normalizeDomainName(name string) (string, error) {
	name = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(name)), ".")
	if err := domain.ValidateDomainName(name); err != nil {
		return "", err
	}
	return name, nil
}

// Purchase 通过注册商购买域名并保存
//
// 参数:
//   - ctx: 上下文
//   - owner: 购买者
//   - name: 域名
//   - years: 注册年限，<=0 时使用默认值
//
// 返回值:
//   - *domain.Domain: 新域名，注册商异步处理时状态为 pending
//   - error: 域名已存在或不可注册返回 Conflict，注册商异常返回 upstream 类错误
func (s *DomainService) Purchase(ctx context.Context, owner *domain.User, name string, years int) (*domain.Domain, error) {
	if owner == nil {
		return nil, domain.Unauthenticated("login required")
	}
	name, err := normalizeDomainName(name)
	if err != nil {
		return nil, err
	}
	if years <= 0 {
		years = s.defaultYears
	}
	if years > 10 {
		return nil, domain.ValidationFailed("registration period too long (max 10 years)")
	}

	if _, err := s.store.GetDomainByName(ctx, name); err == nil {
		return nil, domain.Conflict("domain already exists")
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	var availability []registrar.Availability
	err = s.callRegistrar("check", func() error {
		var err error
		availability, err = s.registrar.Check(ctx, owner.ID, []string{name})
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(availability) == 0 || !availability[0].Available {
		return nil, domain.Conflict("domain is not available")
	}

	var reg *registrar.Registration
	err = s.callRegistrar("register", func() error {
		var err error
		reg, err = s.registrar.Register(ctx, owner.ID, name, years)
		return err
	})
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	expires := now.AddDate(years, 0, 0)
	d := &domain.Domain{
		ID:             uuid.NewString(),
		Name:           name,
		Status:         domain.DomainStatusActive,
		OwnerID:        owner.ID,
		RegisteredAt:   &now,
		ExpiresAt:      &expires,
		RegistrarID:    reg.DomainID,
		RegistrarOrder: reg.OrderID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if reg.Pending {
		d.Status = domain.DomainStatusPending
	}

	if err := s.store.CreateDomain(ctx, d); err != nil {
		// 注册商侧已扣费，记录订单号便于人工处理
		s.log.Error("domain registered but not saved",
			zap.String("domain", name),
			zap.String("order_id", reg.OrderID),
			zap.Error(err),
		)
		return nil, err
	}

	s.metrics.RecordDomainPurchased()
	s.log.Info("domain purchased",
		zap.String("domain", name),
		zap.String("owner", owner.ID),
		zap.String("status", string(d.Status)),
		zap.String("order_id", reg.OrderID),
	)
	return d, nil
}

// CheckAvailability 查询域名是否可注册
func (s *DomainService) CheckAvailability(ctx context.Context, actor *domain.User, names []string) ([]registrar.Availability, error) {
	if actor == nil {
		return nil, domain.Unauthenticated("login required")
	}
	if len(names) == 0 {
		return nil, domain.ValidationFailed("at least one domain name is required")
	}
	if len(names) > 50 {
		return nil, domain.ValidationFailed("too many domain names (max 50)")
	}

	normalized := make([]string, 0, len(names))
	for _, n := range names {
		name, err := normalizeDomainName(n)
		if err != nil {
			return nil, err
		}
		normalized = append(normalized, name)
	}

	var result []registrar.Availability
	err := s.callRegistrar("check", func() error {
		var err error
		result, err = s.registrar.Check(ctx, actor.ID, normalized)
		return err
	})
	return result, err
}

// List 列出域名，管理员可见全部，普通用户只看自己的
func (s *DomainService) List(ctx context.Context, actor *domain.User) ([]domain.Domain, error) {
	if actor == nil {
		return nil, domain.Unauthenticated("login required")
	}
	filter := domain.DomainFilter{}
	if !actor.IsAdmin() {
		filter.OwnerID = actor.ID
	}
	return s.store.ListDomains(ctx, filter)
}

// Get 获取域名详情，所有者或管理员可见
func (s *DomainService) Get(ctx context.Context, actor *domain.User, id string) (*domain.Domain, error) {
	if actor == nil {
		return nil, domain.Unauthenticated("login required")
	}
	d, err := s.store.GetDomain(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && d.OwnerID != actor.ID {
		return nil, domain.Forbidden("not the owner of this domain")
	}
	return d, nil
}

// Delete 删除域名及其邮箱列表和全部申请，所有者或管理员可操作
func (s *DomainService) Delete(ctx context.Context, actor *domain.User, id string) error {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return err
	}
	if err := s.store.DeleteDomain(ctx, id); err != nil {
		return err
	}
	s.log.Info("domain deleted", zap.String("domain_id", id), zap.String("actor", actor.ID))
	return nil
}

// SyncFromRegistrar 从注册商拉取账户下的域名，新增或更新状态和日期
//
// 同一用户的并发同步请求合并为一次；已有域名的邮箱列表保持不变，
// 属于其他用户的同名域名跳过。
func (s *DomainService) SyncFromRegistrar(ctx context.Context, owner *domain.User) (*SyncResult, error) {
	if owner == nil {
		return nil, domain.Unauthenticated("login required")
	}
	v, err, _ := s.syncGroup.Do(owner.ID, func() (interface{}, error) {
		return s.sync(ctx, owner)
	})
	if err != nil {
		return nil, err
	}
	return v.(*SyncResult), nil
}

func (s *DomainService) sync(ctx context.Context, owner *domain.User) (*SyncResult, error) {
	var listed []registrar.RegisteredDomain
	err := s.callRegistrar("list", func() error {
		var err error
		listed, err = s.registrar.ListDomains(ctx, owner.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	var created, updated, skipped int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(syncConcurrency)
	for _, item := range listed {
		item := item
		g.Go(func() error {
			outcome, err := s.syncOne(gctx, owner, item)
			if err != nil {
				return err
			}
			switch outcome {
			case syncCreated:
				atomic.AddInt64(&created, 1)
			case syncUpdated:
				atomic.AddInt64(&updated, 1)
			default:
				atomic.AddInt64(&skipped, 1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &SyncResult{Created: int(created), Updated: int(updated), Skipped: int(skipped)}
	s.log.Info("registrar sync finished",
		zap.String("owner", owner.ID),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}

type syncOutcome int

const (
	syncSkipped syncOutcome = iota
	syncCreated
	syncUpdated
)

func (s *DomainService) syncOne(ctx context.Context, owner *domain.User, item registrar.RegisteredDomain) (syncOutcome, error) {
	name, err := normalizeDomainName(item.Name)
	if err != nil {
		s.log.Warn("skipping invalid registrar domain", zap.String("domain", item.Name))
		return syncSkipped, nil
	}

	status := domain.DomainStatusActive
	if item.IsExpired || (item.ExpiresAt != nil && item.ExpiresAt.Before(s.now())) {
		status = domain.DomainStatusExpired
	}
	now := s.now().UTC()

	existing, err := s.store.GetDomainByName(ctx, name)
	if errors.Is(err, domain.ErrNotFound) {
		d := &domain.Domain{
			ID:           uuid.NewString(),
			Name:         name,
			Status:       status,
			OwnerID:      owner.ID,
			RegisteredAt: item.CreatedAt,
			ExpiresAt:    item.ExpiresAt,
			AutoRenew:    item.AutoRenew,
			RegistrarID:  item.RegistrarID,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.store.CreateDomain(ctx, d); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				return syncSkipped, nil
			}
			return syncSkipped, err
		}
		return syncCreated, nil
	}
	if err != nil {
		return syncSkipped, err
	}

	if existing.OwnerID != owner.ID {
		s.log.Warn("registrar domain owned by another account",
			zap.String("domain", name),
			zap.String("owner", existing.OwnerID),
		)
		return syncSkipped, nil
	}

	existing.Status = status
	existing.RegisteredAt = item.CreatedAt
	existing.ExpiresAt = item.ExpiresAt
	existing.AutoRenew = item.AutoRenew
	existing.RegistrarID = item.RegistrarID
	existing.UpdatedAt = now
	if err := s.store.UpdateDomain(ctx, existing); err != nil {
		return syncSkipped, err
	}
	return syncUpdated, nil
}

// ExpireOverdue 将已过期的 active 域名标记为 expired
func (s *DomainService) ExpireOverdue(ctx context.Context) (int, error) {
	n, err := s.store.ExpireDomains(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.metrics.RecordDomainsExpired(n)
		s.log.Info("domains expired", zap.Int("count", n))
	}
	return n, nil
}

// callRegistrar 执行一次注册商调用，记录指标并把错误转换为业务错误
func (s *DomainService) callRegistrar(operation string, fn func() error) error {
	start := time.Now()
	err := fn()
	result := "ok"
	if err != nil {
		result = "error"
	}
	s.metrics.RecordRegistrarCall(operation, result, time.Since(start))
	if err == nil {
		return nil
	}

	s.log.Warn("registrar call failed", zap.String("operation", operation), zap.Error(err))
	return registrarError(err)
}

func registrarError(err error) error {
	var (
		formatErr *registrar.UpstreamFormatError
		apiErr    *registrar.APIError
		domainErr *domain.Error
	)
	switch {
	case errors.As(err, &formatErr):
		return domain.WrapError(domain.KindUpstreamFormat, "registrar returned an unexpected response", err)
	case errors.As(err, &apiErr):
		return domain.WrapError(domain.KindUpstream, "registrar rejected the request", err)
	case errors.Is(err, credcache.ErrNoCredential):
		return domain.WrapError(domain.KindUpstream, "registrar credentials are not configured", err)
	case registrar.IsTimeout(err):
		return domain.WrapError(domain.KindUpstream, "registrar timed out", err)
	case errors.As(err, &domainErr):
		return err
	default:
		return domain.WrapError(domain.KindUpstream, "registrar unavailable", err)
	}
}
