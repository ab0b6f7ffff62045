package sql

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"maildash/backend/internal/domain"
)

const userNotFound = "user not found"

// CreateUser 创建用户，用户名和邮箱大小写不敏感唯一
func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	normalizeUser(user)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&domain.User{}).
			Where("username_key = ? OR email = ?", user.UsernameKey, user.Email).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return domain.Conflict("username or email already exists")
		}
		return translate(tx.Create(user).Error, userNotFound, "user already exists")
	})
}

func normalizeUser(user *domain.User) {
	user.Email = strings.ToLower(user.Email)
	user.UsernameKey = strings.ToLower(user.Username)
}

// GetUserByID 根据 ID 获取用户
func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, translate(err, userNotFound, "")
	}
	return &user, nil
}

// GetUserByEmail 根据邮箱获取用户
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	if err := s.db.WithContext(ctx).Where("email = ?", strings.ToLower(email)).First(&user).Error; err != nil {
		return nil, translate(err, userNotFound, "")
	}
	return &user, nil
}

// GetUserByUsername 根据用户名获取用户
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	var user domain.User
	if err := s.db.WithContext(ctx).Where("username_key = ?", strings.ToLower(username)).First(&user).Error; err != nil {
		return nil, translate(err, userNotFound, "")
	}
	return &user, nil
}

// UpdateUser 更新用户资料、角色和状态
func (s *Store) UpdateUser(ctx context.Context, user *domain.User) error {
	normalizeUser(user)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing domain.User
		if err := tx.Where("id = ?", user.ID).First(&existing).Error; err != nil {
			return translate(err, userNotFound, "")
		}
		var count int64
		if err := tx.Model(&domain.User{}).
			Where("id <> ? AND (username_key = ? OR email = ?)", user.ID, user.UsernameKey, user.Email).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return domain.Conflict("username or email already exists")
		}
		err := tx.Model(user).
			Select("username", "username_key", "email", "password_hash", "role", "is_active", "updated_at").
			Updates(user).Error
		return translate(err, userNotFound, "username or email already exists")
	})
}

// UpdateLastLogin 更新最后登录时间
func (s *Store) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	result := s.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", userID).
		UpdateColumn("last_login_at", at)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.NotFound(userNotFound)
	}
	return nil
}

// ListUsers 分页列出用户，按创建时间倒序
func (s *Store) ListUsers(ctx context.Context, filter domain.UserFilter) ([]domain.User, int, error) {
	query := s.db.WithContext(ctx).Model(&domain.User{})
	if filter.Search != "" {
		like := "%" + strings.ToLower(filter.Search) + "%"
		query = query.Where("LOWER(username) LIKE ? OR email LIKE ?", like, like)
	}
	if filter.Role != nil {
		query = query.Where("role = ?", *filter.Role)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Order("created_at DESC")
	if filter.PageSize > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		query = query.Offset((page - 1) * filter.PageSize).Limit(filter.PageSize)
	}

	users := make([]domain.User, 0)
	if err := query.Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, int(total), nil
}

// DeleteUser 删除用户
func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	result := s.db.WithContext(ctx).Where("id = ?", userID).Delete(&domain.User{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.NotFound(userNotFound)
	}
	return nil
}
