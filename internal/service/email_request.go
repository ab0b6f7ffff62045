package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"maildash/backend/internal/domain"
	"maildash/backend/internal/monitoring"
	"maildash/backend/internal/storage"
)

// DomainRegistry 邮箱申请流程依赖的域名视图
type DomainRegistry interface {
	// FindActiveDomain 返回可接受申请的域名；不存在返回 NotFound，非 active 返回 InvalidState
	FindActiveDomain(ctx context.Context, id string) (*domain.Domain, error)
	// AppendMailbox 在域名上追加邮箱；域名不存在返回 NotFound，用户名已存在返回 Conflict
	AppendMailbox(ctx context.Context, domainID, username, fullAddress string, createdAt time.Time) error
}

// EventPublisher 工作流事件发布者
type EventPublisher interface {
	Publish(event domain.Event)
}

type noopPublisher struct{}

func (noopPublisher) Publish(domain.Event) {}

// storeRegistry 基于存储事务的域名视图
type storeRegistry struct {
	repo storage.DomainRepository
}

// NewDomainRegistry 在给定仓储（通常是事务）之上创建域名视图
func NewDomainRegistry(repo storage.DomainRepository) DomainRegistry {
	return &storeRegistry{repo: repo}
}

func (r *storeRegistry) FindActiveDomain(ctx context.Context, id string) (*domain.Domain, error) {
	d, err := r.repo.GetDomain(ctx, id)
	if err != nil {
		return nil, err
	}
	if !d.IsActive() {
		return nil, domain.InvalidState("domain is not active")
	}
	return d, nil
}

func (r *storeRegistry) AppendMailbox(ctx context.Context, domainID, username, fullAddress string, createdAt time.Time) error {
	return r.repo.AddMailbox(ctx, domainID, &domain.DomainMailbox{
		ID:        uuid.NewString(),
		DomainID:  domainID,
		Username:  username,
		FullEmail: fullAddress,
		CreatedAt: createdAt,
	})
}

// EmailRequestService 邮箱开通申请的审批流程
//
// 申请状态只有 pending -> created 和 pending -> rejected 两条路径。
// 每次提交、审批、删除都在一个存储事务中完成，并发冲突返回 Conflict。
type EmailRequestService struct {
	store   storage.Store
	policy  domain.SecretPolicy
	events  EventPublisher
	metrics *monitoring.Metrics
	log     *zap.Logger
	now     func() time.Time
}

// NewEmailRequestService 创建邮箱申请服务
//
// 参数:
//   - store: 存储
//   - policy: 邮箱密码策略
//   - events: 事件发布者，可为 nil
//   - metrics: 监控指标，可为 nil
//   - log: 日志记录器
func NewEmailRequestService(store storage.Store, policy domain.SecretPolicy, events EventPublisher, metrics *monitoring.Metrics, log *zap.Logger) *EmailRequestService {
	if events == nil {
		events = noopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &EmailRequestService{
		store:   store,
		policy:  policy,
		events:  events,
		metrics: metrics,
		log:     log,
		now:     time.Now,
	}
}

// SubmitInput 提交申请的输入
type SubmitInput struct {
	DomainID string
	Username string
	Secret   string
	Notes    string
}

// Submit 提交邮箱开通申请
//
// 参数:
//   - ctx: 上下文
//   - input: 域名、用户名、邮箱密码和备注
//   - requester: 申请人
//
// 返回值:
//   - *domain.EmailRequest: 状态为 pending 的申请
//   - error: 域名不存在返回 NotFound，域名非 active 返回 InvalidState，
//     输入不合法返回 ValidationFailed，邮箱已开通或已有申请返回 Conflict
func (s *EmailRequestService) Submit(ctx context.Context, input SubmitInput, requester *domain.User) (*domain.EmailRequest, error) {
	if requester == nil {
		return nil, domain.Unauthenticated("login required")
	}
	username := domain.NormalizeUsername(input.Username)
	if err := domain.ValidateMailboxUsername(username); err != nil {
		return nil, err
	}
	if err := s.policy.Validate(input.Secret); err != nil {
		return nil, err
	}

	var created *domain.EmailRequest
	err := s.store.Atomic(ctx, func(tx storage.Tx) error {
		d, err := NewDomainRegistry(tx).FindActiveDomain(ctx, input.DomainID)
		if err != nil {
			return err
		}
		if d.HasMailbox(username) {
			return domain.Conflict("mailbox already exists")
		}

		now := s.now().UTC()
		req := &domain.EmailRequest{
			ID:               uuid.NewString(),
			DomainID:         d.ID,
			DomainName:       d.Name,
			Username:         username,
			FullEmailAddress: domain.ComposeAddress(username, d.Name),
			Secret:           input.Secret,
			RequestedBy:      requester.ID,
			Status:           domain.RequestStatusPending,
			Notes:            input.Notes,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := tx.CreateEmailRequest(ctx, req); err != nil {
			return err
		}
		created = req
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			s.metrics.RecordRequestConflict("submit")
		}
		return nil, err
	}

	s.metrics.RecordRequestSubmitted()
	s.log.Info("email request submitted",
		zap.String("request_id", created.ID),
		zap.String("address", created.FullEmailAddress),
		zap.String("requested_by", requester.ID),
	)
	s.events.Publish(domain.NewRequestEvent(domain.EventRequestSubmitted, created, requester.ID, created.CreatedAt))
	return created, nil
}

// TransitionInput 审批输入，指针字段为 nil 表示不修改
type TransitionInput struct {
	Status   domain.RequestStatus
	Notes    *string
	Secret   *string
	Outbound *domain.TransportSettings
	Inbound  *domain.TransportSettings
}

func (in TransitionInput) hasEdits() bool {
	return in.Notes != nil || in.Secret != nil || in.Outbound != nil || in.Inbound != nil
}

// apply 写入备注、密码，并浅合并收发信参数
func (in TransitionInput) apply(req *domain.EmailRequest) {
	if in.Notes != nil {
		req.Notes = *in.Notes
	}
	if in.Secret != nil {
		req.Secret = *in.Secret
	}
	if in.Outbound != nil {
		req.OutboundSettings = req.OutboundSettings.Merge(in.Outbound)
	}
	if in.Inbound != nil {
		req.InboundSettings = req.InboundSettings.Merge(in.Inbound)
	}
}

// Transition 管理员审批申请
//
// pending 申请可变为 created 或 rejected；变为 created 时在同一事务中把邮箱追加到域名。
// 已处于终态的申请：目标与当前状态相同且无其他修改时原样返回；
// 目标相同但带有修改时只更新备注、密码和收发信参数；目标不同返回 InvalidState。
//
// 参数:
//   - ctx: 上下文
//   - id: 申请 ID
//   - input: 目标状态及可选修改
//   - actor: 操作的管理员
//
// 返回值:
//   - *domain.EmailRequest: 变更后的申请
//   - error: 非管理员返回 Forbidden，并发审批失败返回 Conflict，
//     域名已不存在返回 UpstreamInconsistency
func (s *EmailRequestService) Transition(ctx context.Context, id string, input TransitionInput, actor *domain.User) (*domain.EmailRequest, error) {
	if actor == nil {
		return nil, domain.Unauthenticated("login required")
	}
	if !actor.IsAdmin() {
		return nil, domain.Forbidden("admin capability required")
	}
	if !input.Status.Valid() {
		return nil, domain.ValidationFailed("invalid target status")
	}
	if input.Status == domain.RequestStatusPending {
		return nil, domain.InvalidState("a request cannot return to pending")
	}
	if input.Secret != nil {
		if err := s.policy.Validate(*input.Secret); err != nil {
			return nil, err
		}
	}

	var (
		result    *domain.EmailRequest
		changed   bool
		appended  bool
		fromState domain.RequestStatus
	)
	err := s.store.Atomic(ctx, func(tx storage.Tx) error {
		req, err := tx.GetEmailRequest(ctx, id)
		if err != nil {
			return err
		}
		fromState = req.Status
		now := s.now().UTC()

		if req.Status.IsTerminal() {
			if req.Status != input.Status {
				return domain.InvalidState("request already " + string(req.Status))
			}
			if !input.hasEdits() {
				result = req
				return nil
			}
			input.apply(req)
			req.UpdatedAt = now
			if err := tx.UpdateEmailRequest(ctx, req, req.Status); err != nil {
				return err
			}
			result, changed = req, true
			return nil
		}

		req.Status = input.Status
		req.ProcessedBy = actor.ID
		req.ProcessedAt = &now
		req.UpdatedAt = now
		input.apply(req)

		if err := tx.UpdateEmailRequest(ctx, req, domain.RequestStatusPending); err != nil {
			return err
		}

		if input.Status == domain.RequestStatusCreated {
			err := NewDomainRegistry(tx).AppendMailbox(ctx, req.DomainID, req.Username, req.FullEmailAddress, now)
			if errors.Is(err, domain.ErrNotFound) {
				return domain.WrapError(domain.KindUpstreamInconsistency, "domain of request no longer exists", err)
			}
			if err != nil {
				return err
			}
			appended = true
		}
		result, changed = req, true
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			s.metrics.RecordRequestConflict("transition")
		}
		s.log.Warn("email request transition failed",
			zap.String("request_id", id),
			zap.String("target", string(input.Status)),
			zap.String("actor", actor.ID),
			zap.Error(err),
		)
		return nil, err
	}
	if !changed {
		return result, nil
	}

	if appended {
		s.metrics.RecordMailboxProvisioned()
	}
	s.metrics.RecordRequestTransition(string(result.Status))
	s.log.Info("email request transitioned",
		zap.String("request_id", result.ID),
		zap.String("from", string(fromState)),
		zap.String("to", string(result.Status)),
		zap.String("actor", actor.ID),
	)
	s.events.Publish(domain.NewRequestEvent(domain.EventRequestTransitioned, result, actor.ID, result.UpdatedAt))
	return result, nil
}

// Remove 删除申请
//
// 普通用户只能删除自己仍处于 pending 的申请；管理员可以删除任意申请。
// 删除申请不会撤销域名上已开通的邮箱。
func (s *EmailRequestService) Remove(ctx context.Context, id string, actor *domain.User) error {
	if actor == nil {
		return domain.Unauthenticated("login required")
	}

	var removed *domain.EmailRequest
	err := s.store.Atomic(ctx, func(tx storage.Tx) error {
		req, err := tx.GetEmailRequest(ctx, id)
		if err != nil {
			return err
		}
		if !actor.IsAdmin() {
			if req.RequestedBy != actor.ID {
				return domain.Forbidden("not the owner of this request")
			}
			if req.Status != domain.RequestStatusPending {
				return domain.Forbidden("only pending requests can be removed")
			}
		}
		if err := tx.DeleteEmailRequest(ctx, id); err != nil {
			return err
		}
		removed = req
		return nil
	})
	if err != nil {
		return err
	}

	s.metrics.RecordRequestRemoved()
	s.log.Info("email request removed",
		zap.String("request_id", removed.ID),
		zap.String("status", string(removed.Status)),
		zap.String("actor", actor.ID),
	)
	s.events.Publish(domain.NewRequestEvent(domain.EventRequestRemoved, removed, actor.ID, s.now().UTC()))
	return nil
}

// Get 获取申请，申请人本人或管理员可见
func (s *EmailRequestService) Get(ctx context.Context, id string, actor *domain.User) (*domain.EmailRequest, error) {
	if actor == nil {
		return nil, domain.Unauthenticated("login required")
	}
	req, err := s.store.GetEmailRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && req.RequestedBy != actor.ID {
		return nil, domain.Forbidden("not the owner of this request")
	}
	return req, nil
}

// List 列出申请，普通用户只能看到自己的申请
func (s *EmailRequestService) List(ctx context.Context, filter domain.EmailRequestFilter, actor *domain.User) ([]domain.EmailRequest, error) {
	if actor == nil {
		return nil, domain.Unauthenticated("login required")
	}
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, domain.ValidationFailed("invalid status filter")
	}
	if !actor.IsAdmin() {
		filter.RequestedBy = actor.ID
	}
	return s.store.ListEmailRequests(ctx, filter)
}
