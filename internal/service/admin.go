package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"maildash/backend/internal/auth"
	"maildash/backend/internal/domain"
	"maildash/backend/internal/storage"
)

// AdminService 管理员账户管理
//
// 规则：只有超级管理员可以授予或收回角色；除超级管理员外任何人不能修改超级管理员；
// 管理员不能移除自己的管理员能力（降级、禁用或删除自己）。
type AdminService struct {
	store    storage.Store
	accounts *auth.Service
	log      *zap.Logger
	now      func() time.Time
}

// NewAdminService 创建管理服务
func NewAdminService(store storage.Store, accounts *auth.Service, log *zap.Logger) *AdminService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AdminService{
		store:    store,
		accounts: accounts,
		log:      log,
		now:      time.Now,
	}
}

// ListUsersInput 列出用户的输入参数
type ListUsersInput struct {
	Page     int
	PageSize int
	Search   string // 搜索关键词（邮箱/用户名）
	Role     *domain.UserRole
	IsActive *bool
}

// ListUsersOutput 列出用户的输出结果
type ListUsersOutput struct {
	Users      []domain.User `json:"users"`
	Total      int           `json:"total"`
	Page       int           `json:"page"`
	PageSize   int           `json:"pageSize"`
	TotalPages int           `json:"totalPages"`
}

func requireAdmin(actor *domain.User) error {
	if actor == nil {
		return domain.Unauthenticated("login required")
	}
	if !actor.IsAdmin() {
		return domain.Forbidden("admin capability required")
	}
	return nil
}

// ListUsers 列出所有用户（需要管理员权限）
func (s *AdminService) ListUsers(ctx context.Context, actor *domain.User, input ListUsersInput) (*ListUsersOutput, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	// 设置默认分页
	if input.Page <= 0 {
		input.Page = 1
	}
	if input.PageSize <= 0 {
		input.PageSize = 20
	}
	if input.PageSize > 100 {
		input.PageSize = 100
	}

	users, total, err := s.store.ListUsers(ctx, domain.UserFilter{
		Page:     input.Page,
		PageSize: input.PageSize,
		Search:   input.Search,
		Role:     input.Role,
		IsActive: input.IsActive,
	})
	if err != nil {
		return nil, err
	}

	return &ListUsersOutput{
		Users:      users,
		Total:      total,
		Page:       input.Page,
		PageSize:   input.PageSize,
		TotalPages: (total + input.PageSize - 1) / input.PageSize,
	}, nil
}

// GetUser 获取用户详情（需要管理员权限）
func (s *AdminService) GetUser(ctx context.Context, actor *domain.User, userID string) (*domain.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.store.GetUserByID(ctx, userID)
}

// CreateUserInput 管理员创建账户的输入
type CreateUserInput struct {
	Username string
	Email    string
	Password string
	Role     domain.UserRole
}

// CreateUser 创建账户；创建非普通用户角色需要超级管理员
func (s *AdminService) CreateUser(ctx context.Context, actor *domain.User, input CreateUserInput) (*domain.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if input.Role == "" {
		input.Role = domain.RoleUser
	}
	if input.Role != domain.RoleUser && !actor.IsSuper() {
		return nil, domain.Forbidden("only super admin can grant roles")
	}

	user, err := s.accounts.CreateAccount(ctx, auth.RegisterInput{
		Username: input.Username,
		Email:    input.Email,
		Password: input.Password,
	}, input.Role)
	if err != nil {
		return nil, err
	}
	s.log.Info("user created by admin", zap.String("user_id", user.ID), zap.String("actor", actor.ID))
	return user, nil
}

// UpdateUserInput 更新用户的输入参数，nil 表示不修改
type UpdateUserInput struct {
	UserID   string
	Role     *domain.UserRole
	IsActive *bool
}

// UpdateUser 更新用户角色或启用状态（需要管理员权限）
func (s *AdminService) UpdateUser(ctx context.Context, actor *domain.User, input UpdateUserInput) (*domain.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if input.Role != nil && !input.Role.Valid() {
		return nil, domain.ValidationFailed("invalid role")
	}

	var updated *domain.User
	err := s.store.Atomic(ctx, func(tx storage.Tx) error {
		user, err := tx.GetUserByID(ctx, input.UserID)
		if err != nil {
			return err
		}
		if user.IsSuper() && !actor.IsSuper() {
			return domain.Forbidden("cannot modify super admin")
		}
		self := user.ID == actor.ID

		if input.Role != nil && *input.Role != user.Role {
			if !actor.IsSuper() {
				return domain.Forbidden("only super admin can change roles")
			}
			if self && *input.Role == domain.RoleUser {
				return domain.Forbidden("cannot remove own admin capability")
			}
			user.Role = *input.Role
		}
		if input.IsActive != nil {
			if self && !*input.IsActive {
				return domain.Forbidden("cannot deactivate yourself")
			}
			user.IsActive = *input.IsActive
		}

		user.UpdatedAt = s.now().UTC()
		if err := tx.UpdateUser(ctx, user); err != nil {
			return err
		}
		updated = user
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("user updated by admin",
		zap.String("user_id", updated.ID),
		zap.String("role", string(updated.Role)),
		zap.Bool("active", updated.IsActive),
		zap.String("actor", actor.ID),
	)
	return updated, nil
}

// DeleteUser 删除用户（需要管理员权限）
func (s *AdminService) DeleteUser(ctx context.Context, actor *domain.User, userID string) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if userID == actor.ID {
		return domain.Forbidden("cannot delete yourself")
	}

	err := s.store.Atomic(ctx, func(tx storage.Tx) error {
		user, err := tx.GetUserByID(ctx, userID)
		if err != nil {
			return err
		}
		if user.IsSuper() && !actor.IsSuper() {
			return domain.Forbidden("cannot modify super admin")
		}
		return tx.DeleteUser(ctx, userID)
	})
	if err != nil {
		return err
	}
	s.log.Info("user deleted by admin", zap.String("user_id", userID), zap.String("actor", actor.ID))
	return nil
}
