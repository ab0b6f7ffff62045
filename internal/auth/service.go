package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"maildash/backend/internal/auth/jwt"
	"maildash/backend/internal/domain"
	"maildash/backend/internal/storage"
)

// Service 认证服务：注册、登录、令牌校验和修改密码
type Service struct {
	users  storage.UserRepository
	tokens *jwt.Manager
	log    *zap.Logger
	now    func() time.Time
}

// NewService 创建认证服务
func NewService(users storage.UserRepository, tokens *jwt.Manager, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		users:  users,
		tokens: tokens,
		log:    log,
		now:    time.Now,
	}
}

// RegisterInput 注册输入
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// AuthResponse 认证响应
type AuthResponse struct {
	User *domain.User `json:"user"`
	*TokenResponse
}

// Register 用户注册，新账户固定为普通用户
func (s *Service) Register(ctx context.Context, input RegisterInput) (*AuthResponse, error) {
	user, err := s.CreateAccount(ctx, input, domain.RoleUser)
	if err != nil {
		return nil, err
	}
	return s.issue(user)
}

// CreateAccount 校验输入并创建指定角色的账户
//
// 参数:
//   - ctx: 上下文
//   - input: 用户名、邮箱、密码
//   - role: 新账户角色
//
// 返回值:
//   - *domain.User: 新账户
//   - error: 校验失败返回 ValidationFailed，用户名或邮箱已存在返回 Conflict
func (s *Service) CreateAccount(ctx context.Context, input RegisterInput, role domain.UserRole) (*domain.User, error) {
	username := strings.TrimSpace(input.Username)
	email := strings.ToLower(strings.TrimSpace(input.Email))

	if err := domain.ValidateAccountUsername(username); err != nil {
		return nil, err
	}
	if err := domain.ValidateAccountEmail(email); err != nil {
		return nil, err
	}
	if err := domain.ValidateAccountPassword(input.Password); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, domain.ValidationFailed("invalid role")
	}

	passwordHash, err := HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now().UTC()
	user := &domain.User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.log.Info("account created",
		zap.String("user_id", user.ID),
		zap.String("username", user.Username),
		zap.String("role", string(user.Role)),
	)
	return user, nil
}

// Login 用户登录，identifier 可以是用户名或邮箱
func (s *Service) Login(ctx context.Context, identifier, password string) (*AuthResponse, error) {
	identifier = strings.TrimSpace(identifier)

	user, err := s.lookup(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if !CheckPassword(password, user.PasswordHash) {
		return nil, domain.Unauthenticated("invalid credentials")
	}
	if !user.IsActive {
		return nil, domain.Forbidden("account is disabled")
	}

	now := s.now().UTC()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.log.Warn("failed to update last login", zap.String("user_id", user.ID), zap.Error(err))
	} else {
		user.LastLoginAt = &now
	}

	return s.issue(user)
}

func (s *Service) lookup(ctx context.Context, identifier string) (*domain.User, error) {
	var (
		user *domain.User
		err  error
	)
	if strings.Contains(identifier, "@") {
		user, err = s.users.GetUserByEmail(ctx, strings.ToLower(identifier))
	} else {
		user, err = s.users.GetUserByUsername(ctx, identifier)
	}
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.Unauthenticated("invalid credentials")
	}
	return user, err
}

// Refresh 使用刷新令牌换取新的令牌对，角色以当前账户数据为准
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	claims, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, domain.WrapError(domain.KindUnauthenticated, "invalid refresh token", err)
	}
	user, err := s.activeUser(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	return s.issue(user)
}

// Authenticate 校验访问令牌并返回对应账户
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*domain.User, error) {
	if accessToken == "" {
		return nil, domain.Unauthenticated("missing token")
	}
	claims, err := s.tokens.ValidateAccessToken(accessToken)
	if err != nil {
		return nil, domain.WrapError(domain.KindUnauthenticated, "invalid token", err)
	}
	return s.activeUser(ctx, claims.UserID)
}

func (s *Service) activeUser(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.Unauthenticated("account no longer exists")
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, domain.Unauthenticated("account is disabled")
	}
	return user, nil
}

// HasAdminCapability 判断账户是否具备管理员能力
func (s *Service) HasAdminCapability(user *domain.User) bool {
	return user.IsAdmin()
}

// GetUserByID 根据 ID 获取用户
func (s *Service) GetUserByID(ctx context.Context, userID string) (*domain.User, error) {
	return s.users.GetUserByID(ctx, userID)
}

// ChangePassword 修改密码
func (s *Service) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}

	// 验证旧密码
	if !CheckPassword(oldPassword, user.PasswordHash) {
		return domain.ValidationFailed("invalid old password")
	}
	if err := domain.ValidateAccountPassword(newPassword); err != nil {
		return err
	}

	newHash, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	user.PasswordHash = newHash
	user.UpdatedAt = s.now().UTC()
	return s.users.UpdateUser(ctx, user)
}

func (s *Service) issue(user *domain.User) (*AuthResponse, error) {
	pair, err := s.tokens.GenerateTokenPair(user.ID, string(user.Role))
	if err != nil {
		return nil, err
	}
	return &AuthResponse{User: user, TokenResponse: newTokenResponse(pair)}, nil
}

// HashPassword 哈希密码
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword 检查密码是否匹配
func CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
